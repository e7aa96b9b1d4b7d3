// Package complementary implements the weighted-fusion complementary
// filter: the cheapest of the three pipelines, trusting GPS speed/position
// directly and using accelerometer integration only to fill the gaps
// between fixes. Grounded on the teacher's own small, single-purpose
// numeric-state-struct style (a plain struct with a mutex, no framework),
// applied to the scalar fusion law rather than anything in the pack's
// quaternion-based AHRS example, which solves a materially different
// (full-attitude) problem.
package complementary

import (
	"math"
	"sync"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/filters"
	"github.com/banshee-data/motiontrack/internal/geo"
)

// Filter is the complementary fusion pipeline described in the fusion
// filter trait: weighted combination of GPS-derived speed and
// accelerometer-integrated speed, with a stationary classifier that
// suppresses both velocity and distance accumulation.
type Filter struct {
	cfg *config.TuningConfig

	mu sync.RWMutex

	anchor    *geo.Anchor
	haveFix   bool
	lastLat   float64
	lastLon   float64
	lastGPSat float64

	v       float64
	d       float64
	accelV  float64
	lastAcc float64
	accelAt float64
	haveAcc bool
}

// New creates a complementary Filter using the thresholds in cfg.
func New(cfg *config.TuningConfig) *Filter {
	return &Filter{cfg: cfg}
}

// UpdateGPS implements filters.Filter. The first call anchors the local
// ENU origin; subsequent calls compute the haversine step from the
// previous fix.
func (f *Filter) UpdateGPS(latDeg, lonDeg, speedMS float64, accuracyM float32, t float64) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.anchor == nil {
		anchor := geo.NewAnchor(latDeg, lonDeg)
		f.anchor = &anchor
	}

	if !f.haveFix {
		f.haveFix = true
		f.lastLat, f.lastLon = latDeg, lonDeg
		f.lastGPSat = t
		return f.v, f.d
	}

	dStep := geo.HaversineMeters(f.lastLat, f.lastLon, latDeg, lonDeg)
	dt := t - f.lastGPSat
	// The reported speed is used as given, including 0; only a negative
	// value falls back to step/dt.
	gpsV := speedMS
	if speedMS < 0 && dt > 0 {
		gpsV = dStep / dt
	}

	stationaryDistance := math.Max(filters.StationaryStepFloorM, filters.StationaryAccuracyMul*float64(accuracyM))
	stationary := dStep < stationaryDistance && gpsV < filters.StationarySpeedMS

	if stationary {
		f.v = 0
		f.accelV = 0
	} else {
		floor := float64(accuracyM)
		if floor <= 0 {
			floor = filters.DefaultNoiseFloorM
		}
		advance := dStep - floor
		if advance > 0 {
			f.d += advance
		}
		wGPS := f.cfg.GetComplementaryWeightGPS()
		wAccel := f.cfg.GetComplementaryWeightAccel()
		f.v = wGPS*gpsV + wAccel*f.accelV
		f.accelV = f.v
	}

	f.lastLat, f.lastLon = latDeg, lonDeg
	f.lastGPSat = t
	return f.v, f.d
}

// UpdateAccel implements filters.Filter. A magnitude below
// stationary_accel_threshold is treated as exactly zero; the running
// accel-derived velocity only replaces v once GPS has gone stale.
func (f *Filter) UpdateAccel(magnitudeMS2 float32, t float64) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	a := float64(magnitudeMS2)
	if a < f.cfg.GetStationaryAccelThreshold() {
		a = 0
	}

	if f.haveAcc {
		dt := t - f.accelAt
		if dt > 0 {
			f.accelV += a * dt
			if f.accelV < 0 {
				f.accelV = 0
			}
		}
	}
	f.haveAcc = true
	f.accelAt = t
	f.lastAcc = a

	if f.haveFix && t-f.lastGPSat > f.cfg.GetComplementaryGPSStaleAfter().Seconds() {
		f.v = f.accelV
	}
	return f.v, f.d
}

// UpdateGyro is a no-op for the complementary filter, which does not use
// angular-rate data.
func (f *Filter) UpdateGyro(wx, wy, wz float32, t float64) (float64, float64) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.v, f.d
}

// GetState returns a read-only snapshot of the filter's belief.
func (f *Filter) GetState() filters.State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return filters.State{
		VelocityMS:  f.v,
		DistanceM:   f.d,
		AccelMagMS2: f.lastAcc,
		Stationary:  f.v == 0 && f.accelV == 0,
		LastGPSTime: f.lastGPSat,
	}
}

// GetPosition returns the last GPS fix directly; the complementary filter
// does not maintain its own position estimate between fixes.
func (f *Filter) GetPosition() filters.Position {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return filters.Position{LatDeg: f.lastLat, LonDeg: f.lastLon}
}

// Reset zeroes velocity/distance/accel-velocity and clears GPS/accel
// timestamps, preserving the last known position.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.v = 0
	f.d = 0
	f.accelV = 0
	f.lastGPSat = 0
	f.accelAt = 0
	f.haveAcc = false
}

var _ filters.Filter = (*Filter)(nil)
