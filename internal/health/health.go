// Package health tracks the run-level signals spread across every other
// subsystem that don't belong to any one of them: per-sensor sample rate
// and silence, process RSS high-water mark, and filter convergence (NIS
// trending down, rejection rate settling). It consumes counters the
// sensor, supervisor, and filter packages already expose rather than
// duplicating their state.
package health

import (
	"runtime"
	"sync"
	"time"
)

// SampleRateTracker computes a simple windowed samples-per-second figure
// from a monotonically increasing count, without storing individual
// sample timestamps.
type SampleRateTracker struct {
	mu        sync.Mutex
	lastCount int64
	lastT     time.Time
	rateHz    float64
}

// NewSampleRateTracker returns a tracker starting from zero.
func NewSampleRateTracker() *SampleRateTracker {
	return &SampleRateTracker{lastT: time.Time{}}
}

// Observe folds in the current cumulative sample count at time now and
// returns the instantaneous rate since the previous observation.
func (s *SampleRateTracker) Observe(count int64, now time.Time) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastT.IsZero() {
		s.lastCount, s.lastT = count, now
		return 0
	}
	dt := now.Sub(s.lastT).Seconds()
	if dt <= 0 {
		return s.rateHz
	}
	s.rateHz = float64(count-s.lastCount) / dt
	s.lastCount, s.lastT = count, now
	return s.rateHz
}

// RateHz returns the most recently computed rate.
func (s *SampleRateTracker) RateHz() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rateHz
}

// RSSMonitor tracks the process's heap-allocation high-water mark as a
// proxy for resident memory, and reports the fraction of a configured
// budget currently in use.
type RSSMonitor struct {
	mu        sync.Mutex
	budgetMB  float64
	highWater float64
}

// NewRSSMonitor returns a monitor against the given budget in megabytes.
func NewRSSMonitor(budgetMB float64) *RSSMonitor {
	return &RSSMonitor{budgetMB: budgetMB}
}

// Sample reads current heap allocation via runtime.MemStats, updates the
// high-water mark, and returns the current value in MB.
func (r *RSSMonitor) Sample() float64 {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	mb := float64(m.HeapAlloc) / (1024 * 1024)

	r.mu.Lock()
	defer r.mu.Unlock()
	if mb > r.highWater {
		r.highWater = mb
	}
	return mb
}

// HighWaterMB returns the largest value Sample has ever observed.
func (r *RSSMonitor) HighWaterMB() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.highWater
}

// BudgetFraction returns currentMB (typically the value Sample just
// returned) as a fraction of the configured budget (>1.0 means over
// budget).
func (r *RSSMonitor) BudgetFraction(currentMB float64) float64 {
	if r.budgetMB <= 0 {
		return 0
	}
	return currentMB / r.budgetMB
}

// ConvergenceTracker summarizes whether the primary EKF's recent updates
// look converged: NIS trending down and rejection rate settling, both
// over a short rolling window.
type ConvergenceTracker struct {
	mu         sync.Mutex
	nisWindow  []float64
	windowSize int
	rejections int64
	updates    int64
}

// NewConvergenceTracker returns a tracker over the given NIS window size.
func NewConvergenceTracker(windowSize int) *ConvergenceTracker {
	if windowSize <= 0 {
		windowSize = 20
	}
	return &ConvergenceTracker{windowSize: windowSize}
}

// Observe records one GPS update's NIS and whether it was rejected.
func (c *ConvergenceTracker) Observe(nis float64, rejected bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.updates++
	if rejected {
		c.rejections++
	}
	c.nisWindow = append(c.nisWindow, nis)
	if len(c.nisWindow) > c.windowSize {
		c.nisWindow = c.nisWindow[len(c.nisWindow)-c.windowSize:]
	}
}

// MeanNIS returns the rolling window's mean NIS, 0 if no samples yet.
func (c *ConvergenceTracker) MeanNIS() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.nisWindow) == 0 {
		return 0
	}
	var sum float64
	for _, v := range c.nisWindow {
		sum += v
	}
	return sum / float64(len(c.nisWindow))
}

// RejectionRate returns rejections/updates over the tracker's entire
// lifetime, 0 if no updates yet.
func (c *ConvergenceTracker) RejectionRate() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.updates == 0 {
		return 0
	}
	return float64(c.rejections) / float64(c.updates)
}

// SilenceState reports whether a sensor has gone silent, mirroring the
// supervisor's own silence test so the health monitor can surface the same
// condition in live status without depending on the supervisor package.
func SilenceState(lastSampleEpoch float64, now time.Time, threshold time.Duration) bool {
	last := time.Unix(0, int64(lastSampleEpoch*float64(time.Second)))
	return now.Sub(last) > threshold
}
