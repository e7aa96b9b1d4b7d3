// Package ekf13 implements the primary 13-state error-state Extended
// Kalman Filter: position and velocity in a local ENU tangent frame,
// accelerometer bias, and an orientation quaternion driven by gyro
// kinematics. Grounded on the gonum/mat EKF skeleton in
// other_examples/9d5f5ad7_..._fusion-ekf.go.go (VecDense state, SymDense
// covariance, buildStateTransition/buildMeasurementMatrix, Predict/Update
// split), generalized from that file's generic multi-sensor 15-state
// layout to this system's 13-state GPS+accel+gyro layout, and hardened to
// Joseph-form covariance update and NIS-gated GPS rejection per the
// fusion filter's own invariants.
package ekf13

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/mat"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/filters"
	"github.com/banshee-data/motiontrack/internal/geo"
	"github.com/banshee-data/motiontrack/internal/monitoring"
)

// State vector layout. Left as named constants (not a fixed-size array)
// so a future accel-bias-drift extension to 15 states is a constant-table
// change rather than a rewrite.
const (
	idxPX = iota
	idxPY
	idxPZ
	idxVX
	idxVY
	idxVZ
	idxBAX
	idxBAY
	idxBAZ
	idxQW
	idxQX
	idxQY
	idxQZ
	stateDim
)

// Diagnostics captures the per-GPS-update record consumed by downstream
// analysis (innovation, rejection/snap flags, NIS, ZUPT, selected
// covariance diagonals).
type Diagnostics struct {
	InnovationMag float64
	PredictionErr float64
	NIS           float64
	Rejected      bool
	Snapped       bool
	ZUPTActive    bool
	CovDiag       [6]float64
	AccelMagMS2   float64
	TurnRateRadS  float64
}

// Filter is the 13-state EKF fusion pipeline.
type Filter struct {
	cfg *config.TuningConfig

	mu sync.RWMutex

	x *mat.VecDense // state, length stateDim
	p *mat.SymDense // covariance, stateDim x stateDim

	anchor    *geo.Anchor
	haveFix   bool
	lastLat   float64
	lastLon   float64
	lastGPSat float64
	lastPredT float64

	lastTurnRate float64
	lastAccelMag float64
	distance     float64
	rejections   int64
	lastDiag     Diagnostics
}

// New creates an EKF-13D filter with identity quaternion and a large
// initial position/velocity uncertainty.
func New(cfg *config.TuningConfig) *Filter {
	x := mat.NewVecDense(stateDim, nil)
	x.SetVec(idxQW, 1.0)

	p := mat.NewSymDense(stateDim, nil)
	for i := 0; i < stateDim; i++ {
		p.SetSym(i, i, 1000.0)
	}

	return &Filter{cfg: cfg, x: x, p: p}
}

// UpdateGPS implements filters.Filter. The first call anchors the local
// ENU frame origin. Outlier fixes are NIS-gated; a sustained divergence
// triggers a position snap.
func (f *Filter) UpdateGPS(latDeg, lonDeg, speedMS float64, accuracyM float32, t float64) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.predictTo(t)

	if f.anchor == nil {
		anchor := geo.NewAnchor(latDeg, lonDeg)
		f.anchor = &anchor
		f.haveFix = true
		f.lastLat, f.lastLon = latDeg, lonDeg
		f.lastGPSat = t
		return f.velocity(), f.distance
	}

	east, north := f.anchor.ToENU(latDeg, lonDeg)

	H := mat.NewDense(2, stateDim, nil)
	H.Set(0, idxPX, 1.0)
	H.Set(1, idxPY, 1.0)

	z := mat.NewVecDense(2, []float64{east, north})
	R := measurementNoiseDiag(f.cfg.GetEKF13MeasurementNoiseGPS(), f.cfg.GetEKF13MeasurementNoiseGPS())

	innovation, nis, s, rejected := f.computeInnovation(H, z, R)

	diag := Diagnostics{
		InnovationMag: vecNorm(innovation),
		PredictionErr: vecNorm(innovation),
		NIS:           nis,
		AccelMagMS2:   f.lastAccelMag,
		TurnRateRadS:  f.lastTurnRate,
	}
	for i := 0; i < 6; i++ {
		diag.CovDiag[i] = f.p.At(i, i)
	}

	dStep := geo.HaversineMeters(f.lastLat, f.lastLon, latDeg, lonDeg)
	// The reported speed is used as given, including 0; only a negative
	// value falls back to step/dt.
	gpsV := speedMS
	dt := t - f.lastGPSat
	if speedMS < 0 && dt > 0 {
		gpsV = dStep / dt
	}
	stationaryDist := math.Max(filters.StationaryStepFloorM, filters.StationaryAccuracyMul*float64(accuracyM))
	stationary := dStep < stationaryDist && gpsV < filters.StationarySpeedMS
	diag.ZUPTActive = stationary

	if stationary {
		f.x.SetVec(idxVX, 0)
		f.x.SetVec(idxVY, 0)
		f.p.SetSym(idxVX, idxVX, 1e-6)
		f.p.SetSym(idxVY, idxVY, 1e-6)
	}

	if rejected {
		f.rejections++
		diag.Rejected = true
		predLat, predLon := f.projectedPosition()
		predDistErr := geo.HaversineMeters(predLat, predLon, latDeg, lonDeg)
		if predDistErr > f.cfg.GetSnapDivergenceMeters() {
			f.x.SetVec(idxPX, east)
			f.x.SetVec(idxPY, north)
			f.p.SetSym(idxPX, idxPX, f.p.At(idxPX, idxPX)*4)
			f.p.SetSym(idxPY, idxPY, f.p.At(idxPY, idxPY)*4)
			diag.Snapped = true
			monitoring.Opsf("ekf13: snapped position after %.1fm divergence", predDistErr)
		}
	} else {
		f.applyUpdate(H, innovation, s, R)
		f.renormalizeQuaternion()
		if !stationary {
			f.distance += dStep
		}
	}

	f.lastLat, f.lastLon = latDeg, lonDeg
	f.lastGPSat = t
	f.lastDiag = diag
	return f.velocity(), f.distance
}

// UpdateAccel implements filters.Filter: a 1D measurement update against
// the gravity-subtracted accel magnitude, treated as the forward
// body-frame acceleration (the wire contract provides a scalar, not a
// 3-axis vector).
func (f *Filter) UpdateAccel(magnitudeMS2 float32, t float64) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastAccelMag = float64(magnitudeMS2)
	f.predictTo(t)

	H := mat.NewDense(1, stateDim, nil)
	// Finite-difference-free linearization: treat the accel-bias x
	// component as the dominant sensitivity, matching the
	// single-axis-forward simplification above.
	H.Set(0, idxBAX, 1.0)

	z := mat.NewVecDense(1, []float64{float64(magnitudeMS2)})
	R := mat.NewSymDense(1, []float64{f.cfg.GetEKF13MeasurementNoiseAccelMag()})

	innovation, _, s, rejected := f.computeInnovation(H, z, R)
	if !rejected {
		f.applyUpdate(H, innovation, s, R)
	}

	return f.velocity(), f.distance
}

// UpdateGyro implements filters.Filter: angular-rate kinematics feed the
// quaternion predict step; this realization carries only an accel-bias
// block (not a separate gyro-bias state), so gyro contributes to F via
// predictTo rather than through its own H/update.
func (f *Filter) UpdateGyro(wx, wy, wz float32, t float64) (float64, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastTurnRate = math.Sqrt(float64(wx)*float64(wx) + float64(wy)*float64(wy) + float64(wz)*float64(wz))
	f.predictTo(t)
	return f.velocity(), f.distance
}

// GetState returns a read-only snapshot of the filter's belief.
func (f *Filter) GetState() filters.State {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return filters.State{
		VelocityMS:  f.velocity(),
		DistanceM:   f.distance,
		AccelMagMS2: f.lastDiag.AccelMagMS2,
		Stationary:  f.lastDiag.ZUPTActive,
		LastGPSTime: f.lastGPSat,
		HeadingRad:  quaternionYaw(f.quaternion()),
	}
}

// GetPosition projects the ENU position state back to lat/lon via the
// anchor, returning the position uncertainty from the covariance
// diagonal.
func (f *Filter) GetPosition() filters.Position {
	f.mu.RLock()
	defer f.mu.RUnlock()
	lat, lon := f.projectedPosition()
	uncertainty := math.Sqrt(f.p.At(idxPX, idxPX) + f.p.At(idxPY, idxPY))
	return filters.Position{LatDeg: lat, LonDeg: lon, UncertainM: uncertainty}
}

// Reset zeroes velocity while preserving position and orientation.
func (f *Filter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.x.SetVec(idxVX, 0)
	f.x.SetVec(idxVY, 0)
	f.x.SetVec(idxVZ, 0)
}

// Diagnostics returns the most recent per-GPS-update diagnostics record.
func (f *Filter) Diagnostics() Diagnostics {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.lastDiag
}

// RejectionCount returns the cumulative count of NIS-rejected GPS fixes.
func (f *Filter) RejectionCount() int64 {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.rejections
}

func (f *Filter) velocity() float64 {
	vx, vy := f.x.AtVec(idxVX), f.x.AtVec(idxVY)
	return math.Sqrt(vx*vx + vy*vy)
}

func (f *Filter) quaternion() [4]float64 {
	return [4]float64{f.x.AtVec(idxQW), f.x.AtVec(idxQX), f.x.AtVec(idxQY), f.x.AtVec(idxQZ)}
}

func (f *Filter) projectedPosition() (lat, lon float64) {
	if f.anchor == nil {
		return f.lastLat, f.lastLon
	}
	return f.anchor.FromENU(f.x.AtVec(idxPX), f.x.AtVec(idxPY))
}

// predictTo advances the constant-velocity-plus-bias model to time t.
// Called lazily at the top of every update so Δt is always derived from
// the previous predict, never a fixed tick.
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

	q := f.quaternion()
	bodyAccel := [3]float64{f.lastAccelMag, 0, 0}
	worldAccel := rotateByQuaternion(q, bodyAccel)

	vx, vy := f.x.AtVec(idxVX), f.x.AtVec(idxVY)
	px, py := f.x.AtVec(idxPX), f.x.AtVec(idxPY)

	f.x.SetVec(idxPX, px+vx*dt+0.5*worldAccel[0]*dt*dt)
	f.x.SetVec(idxPY, py+vy*dt+0.5*worldAccel[1]*dt*dt)
	f.x.SetVec(idxVX, vx+worldAccel[0]*dt)
	f.x.SetVec(idxVY, vy+worldAccel[1]*dt)

	newQ := integrateQuaternion(q, f.lastTurnRate, dt)
	f.x.SetVec(idxQW, newQ[0])
	f.x.SetVec(idxQX, newQ[1])
	f.x.SetVec(idxQY, newQ[2])
	f.x.SetVec(idxQZ, newQ[3])

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
	F.Set(idxPX, idxVX, dt)
	F.Set(idxPY, idxVY, dt)
	F.Set(idxPZ, idxVZ, dt)
	return F
}

func (f *Filter) buildProcessNoise(dt float64) *mat.SymDense {
	qa := f.cfg.GetEKF13ProcessNoiseAccel()
	qb := f.cfg.GetEKF13ProcessNoiseBias()
	qw := f.cfg.GetEKF13ProcessNoiseGyro()

	Q := mat.NewSymDense(stateDim, nil)
	posNoise := 0.25 * dt * dt * dt * dt * qa * qa
	velNoise := dt * dt * qa * qa
	for _, i := range []int{idxPX, idxPY, idxPZ} {
		Q.SetSym(i, i, posNoise)
	}
	for _, i := range []int{idxVX, idxVY, idxVZ} {
		Q.SetSym(i, i, velNoise)
	}
	for _, i := range []int{idxBAX, idxBAY, idxBAZ} {
		Q.SetSym(i, i, qb*qb)
	}
	for _, i := range []int{idxQW, idxQX, idxQY, idxQZ} {
		Q.SetSym(i, i, qw*qw*dt)
	}
	return Q
}

// computeInnovation returns y = z - Hx, NIS = yᵀS⁻¹y, S = HPHᵀ+R, and
// whether the fix should be rejected as an outlier (NIS above the
// configured chi-squared threshold). Falls back to a pseudoinverse when S
// is near-singular.
func (f *Filter) computeInnovation(H *mat.Dense, z *mat.VecDense, R *mat.SymDense) (innovation *mat.VecDense, nis float64, s *mat.Dense, rejected bool) {
	rows, _ := H.Dims()

	var hx mat.VecDense
	hx.MulVec(H, f.x)

	innovation = mat.NewVecDense(rows, nil)
	for i := 0; i < rows; i++ {
		innovation.SetVec(i, z.AtVec(i)-hx.AtVec(i))
	}

	var hp mat.Dense
	hp.Mul(H, f.p)
	var hpht mat.Dense
	hpht.Mul(&hp, H.T())

	s = mat.NewDense(rows, rows, nil)
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

	var syInv mat.VecDense
	syInv.MulVec(&sInv, innovation)
	nis = mat.Dot(innovation, &syInv)

	if rows == 2 {
		rejected = nis > f.cfg.GetNISRejectionThreshold()
	}

	return innovation, nis, s, rejected
}

// applyUpdate performs the Kalman gain computation and Joseph-form
// covariance update, given a precomputed innovation, S, and the
// measurement noise R used to produce S (needed again here for the
// K·R·Kᵀ term).
func (f *Filter) applyUpdate(H *mat.Dense, innovation *mat.VecDense, s *mat.Dense, r *mat.SymDense) {
	var sInv mat.Dense
	if err := sInv.Inverse(s); err != nil {
		rows, _ := s.Dims()
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
	kr.Mul(&k, r)
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

func (f *Filter) renormalizeQuaternion() {
	q := f.quaternion()
	n := math.Sqrt(q[0]*q[0] + q[1]*q[1] + q[2]*q[2] + q[3]*q[3])
	if n == 0 || math.Abs(n-1.0) < 1e-3 {
		return
	}
	f.x.SetVec(idxQW, q[0]/n)
	f.x.SetVec(idxQX, q[1]/n)
	f.x.SetVec(idxQY, q[2]/n)
	f.x.SetVec(idxQZ, q[3]/n)
}

func measurementNoiseDiag(a, b float64) *mat.SymDense {
	return mat.NewSymDense(2, []float64{a, 0, 0, b})
}

func identity(n int) []float64 {
	out := make([]float64, n*n)
	for i := 0; i < n; i++ {
		out[i*n+i] = 1.0
	}
	return out
}


func vecNorm(v mat.Vector) float64 {
	sum := 0.0
	for i := 0; i < v.Len(); i++ {
		sum += v.AtVec(i) * v.AtVec(i)
	}
	return math.Sqrt(sum)
}

// rotateByQuaternion rotates a body-frame vector into the world (ENU)
// frame using q = (w, x, y, z).
func rotateByQuaternion(q [4]float64, v [3]float64) [3]float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	// v' = q * v * q_conj, expanded.
	r11 := 1 - 2*(y*y+z*z)
	r12 := 2 * (x*y - z*w)
	r13 := 2 * (x*z + y*w)
	r21 := 2 * (x*y + z*w)
	r22 := 1 - 2*(x*x+z*z)
	r23 := 2 * (y*z - x*w)
	r31 := 2 * (x*z - y*w)
	r32 := 2 * (y*z + x*w)
	r33 := 1 - 2*(x*x+y*y)

	return [3]float64{
		r11*v[0] + r12*v[1] + r13*v[2],
		r21*v[0] + r22*v[1] + r23*v[2],
		r31*v[0] + r32*v[1] + r33*v[2],
	}
}

// integrateQuaternion applies q ⊗ exp(0.5·ω·dt) for a z-axis-only
// angular rate (the only axis this system's gyro sample retains a
// dedicated scalar for at the fusion boundary).
func integrateQuaternion(q [4]float64, omegaZ, dt float64) [4]float64 {
	halfAngle := 0.5 * omegaZ * dt
	dw := math.Cos(halfAngle)
	dz := math.Sin(halfAngle)

	return [4]float64{
		q[0]*dw - q[3]*dz,
		q[1]*dw + q[2]*dz,
		q[2]*dw - q[1]*dz,
		q[3]*dw + q[0]*dz,
	}
}

func quaternionYaw(q [4]float64) float64 {
	w, x, y, z := q[0], q[1], q[2], q[3]
	siny := 2 * (w*z + x*y)
	cosy := 1 - 2*(y*y+z*z)
	return math.Atan2(siny, cosy)
}

var _ filters.Filter = (*Filter)(nil)
