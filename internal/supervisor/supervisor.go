// Package supervisor implements the Liveness Supervisor: a single ticking
// goroutine that watches each registered sensor source for death or silence
// and drives a bounded, cooldown-gated restart (spec.md §4.2). There is no
// teacher equivalent of process supervision; this follows the same
// context-cancellation/ticker idiom the teacher uses for its periodic
// background tasks (e.g. a flush loop ticking on a fixed interval).
package supervisor

import (
	"context"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/monitoring"
)

// Source is the subset of sensor.Source the supervisor restarts.
type Source interface {
	Start(ctx context.Context) error
	Stop() error
	IsAlive() bool
	LastSampleTime() float64
}

// Watched registers one source under supervision, along with its silence
// threshold and whether its loss is fatal (accel) or merely disables that
// stream (GPS/gyro, per spec.md §4.2i).
type Watched struct {
	Name             string
	SilenceThreshold time.Duration
	Fatal            bool
	// ProcessPattern identifies the platform sensor-bridge binary by name
	// for residual-process reaping between stop and restart (spec.md
	// §4.2.1d "Kill any residual platform sensor-bridge processes by
	// pattern"). Empty disables reaping (e.g. in tests with fake sources).
	ProcessPattern string

	mu           sync.Mutex
	source       Source
	factory      func() Source
	restartCount int
	disabled     bool
	fatalErr     error
}

// RestartCount returns the number of restart attempts made for this source.
func (w *Watched) RestartCount() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.restartCount
}

// Disabled reports whether the source has exceeded max_restart_attempts and
// been given up on (only possible for non-fatal sources).
func (w *Watched) Disabled() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.disabled
}

// FatalErr returns the error that caused a fatal source to be abandoned, or
// nil if none occurred.
func (w *Watched) FatalErr() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fatalErr
}

// Current returns the currently active Source instance (it changes across
// restarts).
func (w *Watched) Current() Source {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.source
}

// Supervisor ticks every TickInterval and restarts any watched source that
// has died or gone silent.
type Supervisor struct {
	cfg     *config.TuningConfig
	mu      sync.Mutex
	watched []*Watched

	fatalSignal atomic.Bool
}

// New creates a Supervisor.
func New(cfg *config.TuningConfig) *Supervisor {
	return &Supervisor{cfg: cfg}
}

// Watch registers a source. factory constructs a fresh Source instance for
// restart attempts (spec.md §4.2g "Instantiate a new source").
func (s *Supervisor) Watch(name string, initial Source, factory func() Source, silenceThreshold time.Duration, fatal bool) *Watched {
	w := &Watched{Name: name, SilenceThreshold: silenceThreshold, Fatal: fatal, source: initial, factory: factory}
	s.mu.Lock()
	s.watched = append(s.watched, w)
	s.mu.Unlock()
	return w
}

// FatalTriggered reports whether a fatal source was abandoned, signalling
// the orchestrator should terminate the process (spec.md §4.2i "accel
// failure is fatal").
func (s *Supervisor) FatalTriggered() bool { return s.fatalSignal.Load() }

// Run ticks at cfg.GetSupervisorTickInterval() until ctx is cancelled,
// checking every watched source for death or silence each tick (spec.md
// §4.2 "One thread, periodic 2s tick").
func (s *Supervisor) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.GetSupervisorTickInterval())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Supervisor) checkAll(ctx context.Context) {
	s.mu.Lock()
	watched := make([]*Watched, len(s.watched))
	copy(watched, s.watched)
	s.mu.Unlock()

	for _, w := range watched {
		if w.Disabled() {
			continue
		}
		if s.needsRestart(w) {
			s.restart(ctx, w)
		}
	}
}

func (s *Supervisor) needsRestart(w *Watched) bool {
	cur := w.Current()
	if cur == nil {
		return true
	}
	if !cur.IsAlive() {
		return true
	}
	lastSampleAgo := time.Since(epochToTime(cur.LastSampleTime()))
	return lastSampleAgo > w.SilenceThreshold
}

// restart performs the full restart sequence (spec.md §4.2.1a-i): acquire
// the per-source restart mutex (the Watched's own mu, held across the
// entire sequence so concurrent restart triggers are serialized), re-check
// liveness, stop, cooldown, and start a fresh instance.
func (s *Supervisor) restart(ctx context.Context, w *Watched) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// Re-check after acquiring the lock: another path may have already
	// recovered this source (spec.md §4.2.1b).
	if w.source != nil && w.source.IsAlive() && time.Since(epochToTime(w.source.LastSampleTime())) <= w.SilenceThreshold {
		return
	}

	if w.source != nil {
		if err := w.source.Stop(); err != nil {
			monitoring.Opsf("supervisor: %s: stop before restart: %v", w.Name, err)
		}
	}

	reapResidualProcesses(ctx, w.ProcessPattern, w.Name,
		s.cfg.GetResidualProcessPollInterval(), s.cfg.GetResidualProcessPollTimeout())

	monitoring.Diagf("supervisor: %s: waiting restart cooldown %s", w.Name, s.cfg.GetRestartCooldown())
	select {
	case <-ctx.Done():
		return
	case <-time.After(s.cfg.GetRestartCooldown()):
	}

	fresh := w.factory()
	startCtx, cancel := context.WithTimeout(ctx, s.cfg.GetRestartValidateTimeout())
	err := fresh.Start(startCtx)
	cancel()

	if err != nil {
		monitoring.Opsf("supervisor: %s: restart attempt failed, retrying once with extra timeout: %v", w.Name, err)
		retryCtx, retryCancel := context.WithTimeout(ctx, s.cfg.GetRestartValidateTimeout()+s.cfg.GetRestartRetryExtraTimeout())
		err = fresh.Start(retryCtx)
		retryCancel()
	}

	w.restartCount++

	if err != nil {
		monitoring.Opsf("supervisor: %s: restart failed after retry: %v", w.Name, err)
		if w.restartCount >= s.cfg.GetMaxRestartAttempts() {
			if w.Fatal {
				w.fatalErr = err
				s.fatalSignal.Store(true)
				monitoring.Opsf("supervisor: %s: fatal, exceeded max_restart_attempts (%d)", w.Name, s.cfg.GetMaxRestartAttempts())
			} else {
				w.disabled = true
				monitoring.Opsf("supervisor: %s: disabled, exceeded max_restart_attempts (%d)", w.Name, s.cfg.GetMaxRestartAttempts())
			}
		}
		return
	}

	w.source = fresh
	monitoring.Diagf("supervisor: %s: restarted successfully (attempt %d)", w.Name, w.restartCount)
}

func epochToTime(epochSeconds float64) time.Time {
	return time.Unix(0, int64(epochSeconds*float64(time.Second)))
}

// reapResidualProcesses kills any lingering platform sensor-bridge process
// matching pattern and polls for its absence (spec.md §4.2.1d-e: "Kill any
// residual platform sensor-bridge processes by pattern. Poll until no
// matching process remains (up to 5s), with 200ms interval."). pattern is
// matched against the full command line, mirroring `pkill -f`. An empty
// pattern (tests wiring in-process fakes) or a missing pkill/pgrep binary
// both skip straight through: this system spawns exactly one long-lived
// child per sensor, so reaping only matters when a previous crashed run
// left an orphan behind.
func reapResidualProcesses(ctx context.Context, pattern, name string, pollInterval, pollTimeout time.Duration) {
	if pattern == "" {
		return
	}

	if err := exec.Command("pkill", "-f", pattern).Run(); err != nil {
		if _, isExitErr := err.(*exec.ExitError); !isExitErr {
			monitoring.Tracef("supervisor: %s: pkill for pattern %q unavailable: %v", name, pattern, err)
			return
		}
	}

	deadline := time.Now().Add(pollTimeout)
	for {
		err := exec.Command("pgrep", "-f", pattern).Run()
		if err != nil {
			// pgrep exits 1 when nothing matches; any other error means the
			// tool itself is unavailable and there is nothing further to
			// verify either way.
			return
		}
		if time.Now().After(deadline) {
			monitoring.Opsf("supervisor: %s: residual process matching %q still present after %s", name, pattern, pollTimeout)
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(pollInterval):
		}
	}
}
