package incident

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/banshee-data/motiontrack/internal/config"
)

func newTestDetector(t *testing.T) (*Detector, string) {
	t.Helper()
	dir := t.TempDir()
	return New(config.EmptyTuningConfig(), filepath.Join(dir, "incidents")), dir
}

func TestObserveAccelRaisesHardBrakingAboveThresholdAndSpeed(t *testing.T) {
	d, _ := newTestDetector(t)
	d.ObserveGPS(0.0, 37.0, -122.0, 5.0)

	ev := d.ObserveAccel(0.1, 0.9*gravityMS2)
	if ev == nil {
		t.Fatal("expected hard braking event")
	}
	if ev.Kind != KindHardBraking {
		t.Errorf("Kind = %v, want hard_braking", ev.Kind)
	}
}

func TestObserveAccelDoesNotRaiseHardBrakingBelowSpeed(t *testing.T) {
	d, _ := newTestDetector(t)
	d.ObserveGPS(0.0, 37.0, -122.0, 1.0)

	if ev := d.ObserveAccel(0.1, 0.9*gravityMS2); ev != nil {
		t.Error("expected no hard braking event below the minimum speed gate")
	}
}

func TestObserveAccelRaisesImpactRegardlessOfSpeed(t *testing.T) {
	d, _ := newTestDetector(t)
	ev := d.ObserveAccel(0.1, 1.6*gravityMS2)
	if ev == nil || ev.Kind != KindImpact {
		t.Fatalf("expected impact event, got %v", ev)
	}
}

func TestCooldownSuppressesRepeatedEventWithinWindow(t *testing.T) {
	d, _ := newTestDetector(t)
	d.ObserveGPS(0.0, 37.0, -122.0, 5.0)

	first := d.ObserveAccel(0.1, 0.9*gravityMS2)
	if first == nil {
		t.Fatal("expected first hard braking event")
	}
	second := d.ObserveAccel(1.0, 0.9*gravityMS2)
	if second != nil {
		t.Error("expected cooldown to suppress a second event within 5s")
	}
}

func TestObserveGyroRaisesSwervingAboveThresholdAndSpeed(t *testing.T) {
	d, _ := newTestDetector(t)
	d.ObserveGPS(0.0, 37.0, -122.0, 5.0)

	ev := d.ObserveGyro(0.1, 1.5)
	if ev == nil || ev.Kind != KindSwerving {
		t.Fatalf("expected swerving event, got %v", ev)
	}
}

func TestEventPersistedAfterPostContextWindowCloses(t *testing.T) {
	d, _ := newTestDetector(t)
	d.ObserveGPS(0.0, 37.0, -122.0, 5.0)

	ev := d.ObserveAccel(0.1, 0.9*gravityMS2)
	if ev == nil {
		t.Fatal("expected a triggered event")
	}

	cooldown := config.EmptyTuningConfig().GetIncidentCooldown().Seconds()
	d.Flush(0.1 + cooldown + 0.01)

	entries, err := os.ReadDir(d.dir)
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected exactly one persisted incident file, got %d", len(entries))
	}

	data, err := os.ReadFile(filepath.Join(d.dir, entries[0].Name()))
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	var persisted Event
	if err := json.Unmarshal(data, &persisted); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if persisted.Kind != KindHardBraking {
		t.Errorf("persisted Kind = %v, want hard_braking", persisted.Kind)
	}
	if len(persisted.PreCtx.GPS) == 0 {
		t.Error("expected pre-context GPS samples to be recorded")
	}
}

func TestGyroWindowTrimsToConfiguredSize(t *testing.T) {
	d, _ := newTestDetector(t)
	max := d.cfg.GetIncidentGyroWindowSize()
	for i := 0; i < max+50; i++ {
		d.ObserveGyro(float64(i)*0.05, 0.01)
	}
	if len(d.gyro) != max {
		t.Errorf("gyro window length = %d, want capped at %d", len(d.gyro), max)
	}
}
