package orchestrator

import (
	"sync"
	"time"
)

// MemoryPressurePolicy implements the out-of-memory backoff named in
// spec.md §7 ("Reduce auto-save interval, shrink trajectory chunk size,
// drop non-essential diagnostics") and promised as its own component in
// SPEC_FULL.md §5. It is edge-triggered: Evaluate only reports entering or
// leaving pressure once per crossing, so the orchestrator applies each
// backoff step exactly once instead of re-resetting tickers every tick.
type MemoryPressurePolicy struct {
	mu sync.Mutex

	baseAutosave    time.Duration
	backoffAutosave time.Duration
	baseTrajCap     int
	backoffTrajCap  int
	active          bool
}

// NewMemoryPressurePolicy derives the backoff targets from the configured
// baseline: autosave interval is quartered (flush sooner, free memory
// sooner) and trajectory buffer capacity is quartered (spill to disk in
// smaller, more frequent chunks), both floored at a sane minimum.
func NewMemoryPressurePolicy(baseAutosave time.Duration, baseTrajCap int) *MemoryPressurePolicy {
	backoffAutosave := baseAutosave / 4
	if backoffAutosave < time.Second {
		backoffAutosave = time.Second
	}
	backoffTrajCap := baseTrajCap / 4
	if backoffTrajCap < 100 {
		backoffTrajCap = 100
	}
	return &MemoryPressurePolicy{
		baseAutosave:    baseAutosave,
		backoffAutosave: backoffAutosave,
		baseTrajCap:     baseTrajCap,
		backoffTrajCap:  backoffTrajCap,
	}
}

// Evaluate records the current RSS budget fraction against threshold and
// reports whether this call is the edge crossing into or out of pressure.
func (p *MemoryPressurePolicy) Evaluate(budgetFraction, threshold float64) (enteredPressure, leftPressure bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	over := budgetFraction >= threshold
	if over && !p.active {
		p.active = true
		return true, false
	}
	if !over && p.active {
		p.active = false
		return false, true
	}
	return false, false
}

// Active reports whether the policy currently considers the process under
// memory pressure.
func (p *MemoryPressurePolicy) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// AutosaveInterval returns the interval the autosave ticker should run at
// given the current pressure state.
func (p *MemoryPressurePolicy) AutosaveInterval() time.Duration {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return p.backoffAutosave
	}
	return p.baseAutosave
}

// TrajectoryCapacity returns the trajectory ring buffer capacity the
// telemetry store should run at given the current pressure state.
func (p *MemoryPressurePolicy) TrajectoryCapacity() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		return p.backoffTrajCap
	}
	return p.baseTrajCap
}

// DropDiagnostics reports whether non-essential diagnostic records (the
// primary EKF's covariance snapshots) should be skipped while under
// pressure; the trajectory and sample record themselves are never dropped.
func (p *MemoryPressurePolicy) DropDiagnostics() bool {
	return p.Active()
}
