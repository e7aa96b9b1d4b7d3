package complementary

import (
	"testing"

	"github.com/banshee-data/motiontrack/internal/config"
)

func TestUpdateGPSFirstFixAnchorsWithoutVelocity(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	v, d := f.UpdateGPS(37.0, -122.0, 3.0, 5.0, 0.0)
	if v != 0 || d != 0 {
		t.Errorf("first fix: v=%f d=%f, want 0,0", v, d)
	}
}

func TestUpdateGPSStationaryDoesNotAccumulate(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 0.0, 5.0, 0.0)
	// Next fix a few centimeters away, reported speed 0: stationary.
	v, d := f.UpdateGPS(37.000001, -122.0, 0.0, 5.0, 1.0)
	if v != 0 {
		t.Errorf("stationary fix: v = %f, want 0", v)
	}
	if d != 0 {
		t.Errorf("stationary fix: d = %f, want 0", d)
	}
}

func TestUpdateGPSMovingAccumulatesDistanceAboveFloor(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 5.0, 5.0, 0.0)
	// ~111m north of the anchor at 1 degree latitude per ~111km.
	_, d := f.UpdateGPS(37.001, -122.0, 5.0, 5.0, 10.0)
	if d <= 0 {
		t.Errorf("expected positive accumulated distance, got %f", d)
	}
}

func TestUpdateGPSUsesReportedSpeedWhenPresent(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 10.0, 5.0, 0.0)
	v, _ := f.UpdateGPS(37.001, -122.0, 10.0, 5.0, 10.0)
	wGPS := f.cfg.GetComplementaryWeightGPS()
	want := wGPS * 10.0
	if diff := v - want; diff > 0.5 || diff < -0.5 {
		t.Errorf("v = %f, want close to %f (gps weight applied)", v, want)
	}
}

func TestUpdateAccelBelowThresholdTreatedAsZero(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateAccel(0.05, 0.0) // first call just seeds accelAt
	v, _ := f.UpdateAccel(0.05, 1.0)
	if v != 0 {
		t.Errorf("v = %f, want 0 (sub-threshold accel never integrated)", v)
	}
}

func TestUpdateAccelIntegratesAboveThresholdAfterGPSStale(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 1.0, 5.0, 0.0)
	f.UpdateAccel(1.0, 0.0)
	v, _ := f.UpdateAccel(1.0, 10.0) // gps stale (default 5s), dt=10s, a=1 -> accelV=10
	if v <= 0 {
		t.Errorf("v = %f, want positive once accel has integrated past gps staleness", v)
	}
}

func TestResetZeroesVelocityAndDistancePreservesPosition(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 5.0, 5.0, 0.0)
	f.UpdateGPS(37.001, -122.0, 5.0, 5.0, 10.0)

	f.Reset()
	state := f.GetState()
	if state.VelocityMS != 0 || state.DistanceM != 0 {
		t.Errorf("after Reset: v=%f d=%f, want 0,0", state.VelocityMS, state.DistanceM)
	}
	pos := f.GetPosition()
	if pos.LatDeg != 37.001 {
		t.Errorf("Reset must preserve position, got lat=%f", pos.LatDeg)
	}
}

func TestUpdateGyroIsNoOp(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 5.0, 5.0, 0.0)
	before := f.GetState()
	v, d := f.UpdateGyro(0.1, 0.2, 0.3, 1.0)
	if v != before.VelocityMS || d != before.DistanceM {
		t.Errorf("UpdateGyro changed state: v=%f d=%f, want unchanged %f,%f", v, d, before.VelocityMS, before.DistanceM)
	}
}
