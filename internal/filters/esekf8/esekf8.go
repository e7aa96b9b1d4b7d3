// Package esekf8 implements the 8-state error-state EKF specialized for
// dead-reckoning through GPS gaps: state (x, y, vx, vy, ax, ay, heading,
// heading_rate) in local ENU, predicted with heading-decomposed velocity
// so position keeps advancing along the current heading even when GPS has
// gone silent. Grounded on the same gonum/mat EKF skeleton as
// filters/ekf13 (other_examples/9d5f5ad7_..._fusion-ekf.go.go), specialized
// to this system's smaller state, plus a gonum/stat rolling-median motion
// profile switch modeled on internal/db/db.go's own gonum/stat usage.
package esekf8

import (
	"math"
	"sync"
	"time"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/filters"
	"github.com/banshee-data/motiontrack/internal/geo"
)

const (
	idxX = iota
	idxY
	idxVX
	idxVY
	idxAX
	idxAY
	idxHeading
	idxHeadingRate
	stateDim
)

// Profile is the motion profile selected by the rolling-median GPS speed
// switch.
type Profile int

const (
	ProfileVehicle Profile = iota
	ProfilePedestrian
)

func (p Profile) String() string {
	if p == ProfilePedestrian {
		return "pedestrian"
	}
	return "vehicle"
}

// TrajectoryPoint is a synthetic or GPS-anchored emission from this
// filter, tagged by source so downstream telemetry can distinguish a
// primary fix from a dead-reckoned interpolation.
type TrajectoryPoint struct {
	T         float64
	LatDeg    float64
	LonDeg    float64
	VelocityMS float64
	Tag       string
}

// Filter is the 8-state ES-EKF fusion pipeline.
type Filter struct {
	cfg *config.TuningConfig

	mu sync.RWMutex

	x *mat.VecDense
	p *mat.SymDense

	anchor    *geo.Anchor
	haveFix   bool
	lastLat   float64
	lastLon   float64
	lastGPSat float64
	lastPredT float64
	distance  float64

	headingInitialized bool

	speedWindow []float64
	profile     Profile

	lastGPSEmit    float64
	emittedPoints  []TrajectoryPoint
}

// New creates an ES-EKF-8D filter defaulting to the vehicle motion
// profile.
func New(cfg *config.TuningConfig) *Filter {
	x := mat.NewVecDense(stateDim, nil)
	p := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		p.SetSym(i, i, 1000.0)
	}
	return &Filter{cfg: cfg, x: x, p: p, profile: ProfileVehicle}
}

// UpdateGPS implements filters.Filter.
func (f *Filter) UpdateGPS(latDeg, lonDeg, speedMS float64, accuracyM float32, t float64) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.predictTo(t)
	f.recordSpeedSample(speedMS)

	if f.anchor == nil {
		anchor := geo.NewAnchor(latDeg, lonDeg)
		f.anchor = &anchor
		f.haveFix = true
		f.lastLat, f.lastLon = latDeg, lonDeg
		f.lastGPSat = t
		f.lastGPSEmit = t
		return f.velocity(), f.distance
	}

	east, north := f.anchor.ToENU(latDeg, lonDeg)

	if !f.headingInitialized && speedMS > 0.5 {
		bearing := geo.BearingRadians(f.lastLat, f.lastLon, latDeg, lonDeg)
		f.x.SetVec(idxHeading, bearing)
		f.headingInitialized = true
	}

	H := mat.NewDense(2, stateDim, nil)
	H.Set(0, idxX, 1.0)
	H.Set(1, idxY, 1.0)
	z := mat.NewVecDense(2, []float64{east, north})
	noise := f.measurementNoiseGPS()
	R := mat.NewSymDense(2, []float64{noise, 0, 0, noise})

	f.applyLinearUpdate(H, z, R)

	dStep := geo.HaversineMeters(f.lastLat, f.lastLon, latDeg, lonDeg)
	gpsV := speedMS
	dt := t - f.lastGPSat
	if speedMS <= 0 && dt > 0 {
		gpsV = dStep / dt
	}
	stationaryDist := math.Max(filters.StationaryStepFloorM, filters.StationaryAccuracyMul*float64(accuracyM))
	if dStep < stationaryDist && gpsV < filters.StationarySpeedMS {
		f.x.SetVec(idxVX, 0)
		f.x.SetVec(idxVY, 0)
	} else {
		floor := float64(accuracyM)
		if floor <= 0 {
			floor = filters.DefaultNoiseFloorM
		}
		if advance := dStep - floor; advance > 0 {
			f.distance += advance
		}
	}

	f.lastLat, f.lastLon = latDeg, lonDeg
	f.lastGPSat = t
	f.lastGPSEmit = t
	f.updateProfile()

	lat, lon := f.projectedPosition()
	f.emittedPoints = append(f.emittedPoints, TrajectoryPoint{T: t, LatDeg: lat, LonDeg: lon, VelocityMS: f.velocity(), Tag: "es_ekf"})

	return f.velocity(), f.distance
}

// UpdateAccel implements filters.Filter: a 1D nonlinear update against
// the planar acceleration magnitude, re-decomposing (vx, vy) to stay
// consistent with heading afterward.
func (f *Filter) UpdateAccel(magnitudeMS2 float32, t float64) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.predictTo(t)

	ax, ay := f.x.AtVec(idxAX), f.x.AtVec(idxAY)
	predicted := math.Sqrt(ax*ax + ay*ay)
	innovation := float64(magnitudeMS2) - predicted

	// Finite-difference Jacobian of the magnitude w.r.t. (ax, ay).
	var h00, h01 float64
	if predicted > 1e-6 {
		h00, h01 = ax/predicted, ay/predicted
	}
	H := mat.NewDense(1, stateDim, nil)
	H.Set(0, idxAX, h00)
	H.Set(0, idxAY, h01)

	noise := f.cfg.GetESEKF8MeasurementNoiseAccelMag()
	R := mat.NewSymDense(1, []float64{noise})
	f.applyLinearUpdateFromInnovation(H, mat.NewVecDense(1, []float64{innovation}), R)

	f.redecomposeVelocity()
	return f.velocity(), f.distance
}

// UpdateGyro implements filters.Filter: a linear update on heading_rate
// from the z-axis gyro component.
func (f *Filter) UpdateGyro(wx, wy, wz float32, t float64) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.predictTo(t)

	H := mat.NewDense(1, stateDim, nil)
	H.Set(0, idxHeadingRate, 1.0)
	z := mat.NewVecDense(1, []float64{float64(wz)})
	noise := f.cfg.GetESEKF8MeasurementNoiseGyro()
	R := mat.NewSymDense(1, []float64{noise})

	f.applyLinearUpdate(H, z, R)
	return f.velocity(), f.distance
}

// Predict advances the filter without a sensor update, the dead-reckoning
// emission cadence the orchestrator drives at ~20ms even when GPS is
// silent. It returns a synthetic trajectory point tagged
// es_ekf_dead_reckoning when emission is due.
func (f *Filter) Predict(t float64) (point *TrajectoryPoint) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.predictTo(t)

	emitInterval := f.emitInterval()
	if t-f.lastGPSEmit < emitInterval.Seconds() {
		return nil
	}
	if f.velocity() < f.cfg.GetDeadReckoningMinSpeed() {
		return nil
	}

	f.lastGPSEmit = t
	lat, lon := f.projectedPosition()
	p := TrajectoryPoint{T: t, LatDeg: lat, LonDeg: lon, VelocityMS: f.velocity(), Tag: "es_ekf_dead_reckoning"}
	f.emittedPoints = append(f.emittedPoints, p)
	return &p
}

// EmittedPoints returns all trajectory points emitted so far (primary
// es_ekf fixes and es_ekf_dead_reckoning synthetics).
func (f *Filter) EmittedPoints() []TrajectoryPoint {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]TrajectoryPoint, len(f.emittedPoints))
	copy(out, f.emittedPoints)
	return out
}

// Profile returns the currently selected motion profile.
func (f *Filter) Profile() Profile {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.profile
}

// GetState implements filters.Filter.
func (f *Filter) GetState() filters.State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return filters.State{
		VelocityMS:      f.velocity(),
		DistanceM:       f.distance,
		AccelMagMS2:     math.Hypot(f.x.AtVec(idxAX), f.x.AtVec(idxAY)),
		Stationary:      f.velocity() < filters.StationarySpeedMS,
		LastGPSTime:     f.lastGPSat,
		HeadingRad:      f.x.AtVec(idxHeading),
		HeadingRateRadS: f.x.AtVec(idxHeadingRate),
	}
}

// GetPosition implements filters.Filter.
func (f *Filter) GetPosition() filters.Position {
	f.mu.RLock()
	defer f.mu.RUnlock()
	lat, lon := f.projectedPosition()
	uncertainty := math.Sqrt(f.p.At(idxX, idxX) + f.p.At(idxY, idxY))
	return filters.Position{LatDeg: lat, LonDeg: lon, UncertainM: uncertainty}
}

// Reset implements filters.Filter.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.x.SetVec(idxVX, 0)
	f.x.SetVec(idxVY, 0)
}

func (f *Filter) velocity() float64 {
	vx, vy := f.x.AtVec(idxVX), f.x.AtVec(idxVY)
	return math.Sqrt(vx*vx + vy*vy)
}

func (f *Filter) projectedPosition() (lat, lon float64) {
	if f.anchor == nil {
		return f.lastLat, f.lastLon
	}
	return f.anchor.FromENU(f.x.AtVec(idxX), f.x.AtVec(idxY))
}

func (f *Filter) measurementNoiseGPS() float64 {
	return f.cfg.GetESEKF8MeasurementNoiseGPS()
}

func (f *Filter) emitInterval() time.Duration {
	if f.profile == ProfilePedestrian {
		return f.cfg.GetEmitIntervalPedestrian()
	}
	return f.cfg.GetEmitIntervalDriving()
}

// predictTo implements the heading-decomposed velocity prediction: the
// velocity components are re-derived from the current speed and heading
// before the rest of the constant-acceleration/constant-yaw-rate model
// integrates position, so position keeps advancing along heading even
// without a fresh GPS correction.
func (f *Filter) predictTo(t float64) {
	if f.lastPredT == 0 {
		f.lastPredT = t
		return
	}
	dt := t - f.lastPredT
	if dt <= 0 {
		return
	}
	f.lastPredT = t

	speed := f.velocity()
	heading := f.x.AtVec(idxHeading)
	vx := speed * math.Cos(heading)
	vy := speed * math.Sin(heading)
	f.x.SetVec(idxVX, vx)
	f.x.SetVec(idxVY, vy)

	x, y := f.x.AtVec(idxX), f.x.AtVec(idxY)
	ax, ay := f.x.AtVec(idxAX), f.x.AtVec(idxAY)
	f.x.SetVec(idxX, x+vx*dt+0.5*ax*dt*dt)
	f.x.SetVec(idxY, y+vy*dt+0.5*ay*dt*dt)
	f.x.SetVec(idxVX, vx+ax*dt)
	f.x.SetVec(idxVY, vy+ay*dt)

	headingRate := f.x.AtVec(idxHeadingRate)
	f.x.SetVec(idxHeading, heading+headingRate*dt)

	F := f.buildStateTransition(dt)
	Q := f.buildProcessNoise(dt)

	var fp mat.Dense
	fp.Mul(F, f.p)
	var fpft mat.Dense
	fpft.Mul(&fp, F.T())

	next := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			v := fpft.At(i, j)
			if i == j {
				v += Q.At(i, i)
			}
			next.SetSym(i, j, v)
		}
	}
	f.p = next
}

func (f *Filter) buildStateTransition(dt float64) *mat.Dense {
	F := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		F.Set(i, i, 1.0)
	}
	F.Set(idxX, idxVX, dt)
	F.Set(idxY, idxVY, dt)
	F.Set(idxVX, idxAX, dt)
	F.Set(idxVY, idxAY, dt)
	F.Set(idxHeading, idxHeadingRate, dt)
	return F
}

func (f *Filter) buildProcessNoise(dt float64) *mat.SymDense {
	qa := f.cfg.GetESEKF8ProcessNoiseAccel()
	qh := f.cfg.GetESEKF8ProcessNoiseHeadingRate()

	Q := mat.NewSymDense(stateDim, nil)
	posNoise := 0.25 * dt * dt * dt * dt * qa * qa
	velNoise := dt * dt * qa * qa
	Q.SetSym(idxX, idxX, posNoise)
	Q.SetSym(idxY, idxY, posNoise)
	Q.SetSym(idxVX, idxVX, velNoise)
	Q.SetSym(idxVY, idxVY, velNoise)
	Q.SetSym(idxAX, idxAX, qa*qa)
	Q.SetSym(idxAY, idxAY, qa*qa)
	Q.SetSym(idxHeading, idxHeading, qh*qh*dt)
	Q.SetSym(idxHeadingRate, idxHeadingRate, qh*qh)
	return Q
}

// applyLinearUpdate computes the innovation z-Hx internally, then
// delegates to applyLinearUpdateFromInnovation.
func (f *Filter) applyLinearUpdate(H *mat.Dense, z *mat.VecDense, R *mat.SymDense) {
	rows, _ := H.Dims()
	var hx mat.VecDense
	hx.MulVec(H, f.x)
	innovation := mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		innovation.SetVec(i, z.AtVec(i)-hx.AtVec(i))
	}
	f.applyLinearUpdateFromInnovation(H, innovation, R)
}

// applyLinearUpdateFromInnovation performs the Kalman gain computation
// and Joseph-form covariance update given a precomputed innovation.
func (f *Filter) applyLinearUpdateFromInnovation(H *mat.Dense, innovation *mat.VecDense, R *mat.SymDense) {
	rows, _ := H.Dims()

	var hp mat.Dense
	hp.Mul(H, f.p)
	var hpht mat.Dense
	hpht.Mul(&hp, H.T())

	s := mat.NewDense(rows, rows, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < rows; j++ {
			v := hpht.At(i, j)
			if i == j {
				v += R.At(i, i)
			}
			s.Set(i, j, v)
		}
	}

	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		var svd mat.SVD
		if svd.Factorize(s, mat.SVDFull) {
			var pinv mat.Dense
			svd.SolveTo(&pinv, mat.NewDense(rows, rows, identity(rows)), 1e-15)
			sInv = pinv
		}
	}

	var ph mat.Dense
	ph.Mul(f.p, H.T())
	var k mat.Dense
	k.Mul(&ph, &sInv)

	var correction mat.VecDense
	correction.MulVec(&k, innovation)
	f.x.AddVec(f.x, &correction)

	var kh mat.Dense
	kh.Mul(&k, H)
	ikh := mat.NewDense(stateDim, stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := 0; j < stateDim; j++ {
			v := -kh.At(i, j)
			if i == j {
				v += 1.0
			}
			ikh.Set(i, j, v)
		}
	}

	var term1 mat.Dense
	term1.Mul(ikh, f.p)
	var ikhT mat.Dense
	ikhT.Mul(&term1, ikh.T())

	var kr mat.Dense
	kr.Mul(&k, R)
	var krkt mat.Dense
	krkt.Mul(&kr, k.T())

	next := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		for j := i; j < stateDim; j++ {
			next.SetSym(i, j, ikhT.At(i, j)+krkt.At(i, j))
		}
	}
	f.p = next
}

func (f *Filter) redecomposeVelocity() {
	speed := f.velocity()
	heading := f.x.AtVec(idxHeading)
	f.x.SetVec(idxVX, speed*math.Cos(heading))
	f.x.SetVec(idxVY, speed*math.Sin(heading))
}

// recordSpeedSample appends to the rolling GPS-speed window used for
// motion-profile autoswitching, keeping at most
// cfg.GetMotionProfileWindowSize() samples.
func (f *Filter) recordSpeedSample(speedMS float64) {
	window := f.cfg.GetMotionProfileWindowSize()
	f.speedWindow = append(f.speedWindow, speedMS)
	if len(f.speedWindow) > window {
		f.speedWindow = f.speedWindow[len(f.speedWindow)-window:]
	}
}

// updateProfile recomputes the rolling median of GPS speed and switches
// the motion profile when it crosses the configured threshold. The profile
// selects the dead-reckoning emit interval only; measurement noise is the
// same in both profiles. Heading and position are unaffected.
func (f *Filter) updateProfile() {
	if len(f.speedWindow) == 0 {
		return
	}
	sorted := make([]float64, len(f.speedWindow))
	copy(sorted, f.speedWindow)
	sortFloats(sorted)
	median := stat.Quantile(0.5, stat.Empirical, sorted, nil)

	if median < f.cfg.GetMotionProfileSpeedThreshold() {
		f.profile = ProfilePedestrian
	} else {
		f.profile = ProfileVehicle
	}
}

func sortFloats(v []float64) {
	for i := 1; i < len(v); i++ {
		for j := i; j > 0 && v[j-1] > v[j]; j-- {
			v[j-1], v[j] = v[j], v[j-1]
		}
	}
}

func identity(n int) []float64 {
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		out[i*n+i] = 1.0
	}
	return out
}

var _ filters.Filter = (*Filter)(nil)
