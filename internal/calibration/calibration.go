// Package calibration estimates per-axis accelerometer bias and gravity
// magnitude from an initial stationary window, and converts raw
// accelerometer vectors into the gravity-subtracted scalar motion magnitude
// the filters consume (spec.md §4.5).
package calibration

import (
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/monitoring"
)

// Sample3 is one raw tri-axis accelerometer reading.
type Sample3 struct {
	T          float64
	X, Y, Z    float64
}

// Calibrator holds the current bias/gravity estimate and converts raw
// vectors into the scalar magnitude `m = max(0, |a| - g)` fed to
// update_accel. It is safe for concurrent use: the reader goroutine calls
// Magnitude on every sample while sensor.Source.ObserveStationary, driven
// by the orchestrator's live-status tick, may call MaybeRecalibrate when
// stationary for long enough.
type Calibrator struct {
	cfg *config.TuningConfig

	mu       sync.RWMutex
	biasX    float64
	biasY    float64
	biasZ    float64
	gravity  float64
	warned   bool
	calibrated bool
}

// New returns a Calibrator with the configured default gravity and zero
// bias, usable immediately (spec.md §7 "Configuration error... continue
// with default g=9.81") until Calibrate is called with a real window.
func New(cfg *config.TuningConfig) *Calibrator {
	return &Calibrator{
		cfg:     cfg,
		gravity: cfg.GetCalibrationDefaultGravity(),
	}
}

// Calibrate computes bias as the per-axis mean of the stationary window and
// gravity as the magnitude of that bias vector. It requires between
// CalibrationMinSamples and CalibrationMaxSamples readings; fewer is an
// error, more is silently truncated to the most recent MaxSamples.
func (c *Calibrator) Calibrate(window []Sample3) error {
	min := c.cfg.GetCalibrationMinSamples()
	max := c.cfg.GetCalibrationMaxSamples()
	if len(window) < min {
		return errNotEnoughSamples(len(window), min)
	}
	if len(window) > max {
		window = window[len(window)-max:]
	}

	var sx, sy, sz float64
	for _, s := range window {
		sx += s.X
		sy += s.Y
		sz += s.Z
	}
	n := float64(len(window))
	bx, by, bz := sx/n, sy/n, sz/n
	g := math.Sqrt(bx*bx + by*by + bz*bz)

	c.mu.Lock()
	c.biasX, c.biasY, c.biasZ = bx, by, bz
	warn := g < c.cfg.GetCalibrationGravityMin() || g > c.cfg.GetCalibrationGravityMax()
	if warn {
		c.gravity = c.cfg.GetCalibrationDefaultGravity()
		monitoring.Opsf("calibration: gravity estimate %.3f out of range [%.2f,%.2f], falling back to default %.2f",
			g, c.cfg.GetCalibrationGravityMin(), c.cfg.GetCalibrationGravityMax(), c.gravity)
	} else {
		c.gravity = g
	}
	c.warned = warn
	c.calibrated = true
	c.mu.Unlock()

	monitoring.Diagf("calibration: bias=(%.4f,%.4f,%.4f) gravity=%.4f warn=%v", bx, by, bz, g, warn)
	return nil
}

// MaybeRecalibrate re-estimates bias and gravity from a stationary window
// observed mid-session, when the operator has opted into dynamic
// recalibration (spec.md §4.5 "Optional dynamic recalibration"). It logs
// when the gravity estimate shifts by more than the configured warn delta.
func (c *Calibrator) MaybeRecalibrate(window []Sample3, stationaryFor time.Duration) error {
	if !c.cfg.GetDynamicRecalEnabled() {
		return nil
	}
	if stationaryFor < time.Duration(c.cfg.GetDynamicRecalStationarySeconds()*float64(time.Second)) {
		return nil
	}
	prevGravity := c.Gravity()
	if err := c.Calibrate(window); err != nil {
		return err
	}
	delta := math.Abs(c.Gravity() - prevGravity)
	if delta > c.cfg.GetDynamicRecalGravityDeltaWarn() {
		monitoring.Opsf("calibration: dynamic recalibration shifted gravity by %.3f m/s^2 (prev=%.3f new=%.3f)",
			delta, prevGravity, c.Gravity())
	}
	return nil
}

// Magnitude converts a raw tri-axis reading into the gravity-subtracted
// scalar motion magnitude (spec.md §4.5): m = max(0, |a| - g). Only the
// gravity estimate is subtracted; the per-axis bias is not applied.
func (c *Calibrator) Magnitude(x, y, z float64) float32 {
	c.mu.RLock()
	g := c.gravity
	c.mu.RUnlock()

	norm := math.Sqrt(x*x + y*y + z*z)
	m := norm - g
	if m < 0 {
		m = 0
	}
	return float32(m)
}

// Gravity returns the current gravity estimate.
func (c *Calibrator) Gravity() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gravity
}

// Calibrated reports whether Calibrate has ever succeeded.
func (c *Calibrator) Calibrated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.calibrated
}

// Warned reports whether the most recent calibration fell outside the
// expected gravity range.
func (c *Calibrator) Warned() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.warned
}

func errNotEnoughSamples(got, want int) error {
	return fmt.Errorf("calibration: not enough stationary samples: got %d, want at least %d", got, want)
}
