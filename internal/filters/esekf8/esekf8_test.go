package esekf8

import (
	"testing"

	"github.com/banshee-data/motiontrack/internal/config"
)

func TestUpdateGPSFirstFixAnchors(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	v, d := f.UpdateGPS(37.0, -122.0, 0.0, 5.0, 0.0)
	if v != 0 || d != 0 {
		t.Errorf("first fix: v=%f d=%f, want 0,0", v, d)
	}
}

func TestUpdateGPSInitializesHeadingAboveSpeedThreshold(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 1.0, 5.0, 0.0)
	f.UpdateGPS(37.001, -122.0, 1.0, 5.0, 5.0)
	state := f.GetState()
	if state.HeadingRad == 0 {
		t.Error("expected heading to be initialized from bearing on second fix above 0.5 m/s")
	}
}

func TestUpdateGPSAccumulatesDistance(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 5.0, 3.0, 0.0)
	_, d := f.UpdateGPS(37.001, -122.0, 5.0, 3.0, 10.0)
	if d <= 0 {
		t.Errorf("expected positive accumulated distance, got %f", d)
	}
}

func TestUpdateAccelRedecomposesVelocityConsistentWithHeading(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 2.0, 3.0, 0.0)
	f.UpdateGPS(37.001, -122.0, 2.0, 3.0, 5.0)
	f.UpdateAccel(0.5, 5.1)
	// Should not panic and should keep vx,vy consistent with heading;
	// exercised indirectly via GetState not erroring.
	_ = f.GetState()
}

func TestPredictEmitsDeadReckoningPointWhenMovingAndGPSStale(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 3.0, 3.0, 0.0)
	f.UpdateGPS(37.001, -122.0, 3.0, 3.0, 1.0)

	var got *TrajectoryPoint
	for tcur := 1.1; tcur < 3.0; tcur += 0.02 {
		if p := f.Predict(tcur); p != nil {
			got = p
			break
		}
	}
	if got == nil {
		t.Error("expected a dead-reckoning trajectory point once emit_interval elapsed while moving")
	} else if got.Tag != "es_ekf_dead_reckoning" {
		t.Errorf("Tag = %q, want es_ekf_dead_reckoning", got.Tag)
	}
}

func TestPredictDoesNotEmitWhenStationary(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 0.0, 3.0, 0.0)
	f.UpdateGPS(37.0, -122.0, 0.0, 3.0, 1.0)

	for tcur := 1.1; tcur < 5.0; tcur += 0.02 {
		if p := f.Predict(tcur); p != nil {
			t.Fatalf("unexpected dead-reckoning emission while stationary: %+v", p)
		}
	}
}

func TestMotionProfileSwitchesToPedestrianBelowThreshold(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	tm := 0.0
	for i := 0; i < 35; i++ {
		f.UpdateGPS(37.0+float64(i)*0.0000001, -122.0, 0.5, 3.0, tm)
		tm += 1.0
	}
	if f.Profile() != ProfilePedestrian {
		t.Errorf("Profile() = %v, want pedestrian after sustained low-speed window", f.Profile())
	}
}

func TestMotionProfileStaysVehicleAboveThreshold(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	tm := 0.0
	for i := 0; i < 35; i++ {
		f.UpdateGPS(37.0+float64(i)*0.0001, -122.0, 10.0, 3.0, tm)
		tm += 1.0
	}
	if f.Profile() != ProfileVehicle {
		t.Errorf("Profile() = %v, want vehicle", f.Profile())
	}
}

func TestResetZeroesVelocityPreservesPosition(t *testing.T) {
	f := New(config.EmptyTuningConfig())
	f.UpdateGPS(37.0, -122.0, 5.0, 3.0, 0.0)
	f.UpdateGPS(37.001, -122.0, 5.0, 3.0, 5.0)

	before := f.GetPosition()
	f.Reset()
	state := f.GetState()
	if state.VelocityMS != 0 {
		t.Errorf("VelocityMS = %f, want 0 after Reset", state.VelocityMS)
	}
	after := f.GetPosition()
	if after.LatDeg != before.LatDeg {
		t.Errorf("Reset must preserve position lat: before=%f after=%f", before.LatDeg, after.LatDeg)
	}
}
