package gpx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/motiontrack/internal/telemetry"
)

func TestWriteEmitsOneTrackPerNonEmptyFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.gpx")
	trajectories := map[telemetry.FilterKey][]telemetry.TrajectoryPoint{
		telemetry.FilterGPSRaw: {{T: 0, LatDeg: 37.0, LonDeg: -122.0}},
		telemetry.FilterEKF13:  {{T: 0, LatDeg: 37.0, LonDeg: -122.0}, {T: 1, LatDeg: 37.001, LonDeg: -122.0}},
		telemetry.FilterESEKF8: nil,
	}

	if err := Write(path, time.Unix(0, 0), trajectories); err != nil {
		t.Fatalf("Write: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	content := string(data)

	if !strings.Contains(content, "<trk>") {
		t.Fatal("expected at least one <trk> element")
	}
	if strings.Count(content, "<trk>") != 2 {
		t.Errorf("expected exactly 2 tracks (empty ES-EKF-8 series skipped), got %d", strings.Count(content, "<trk>"))
	}
	if !strings.Contains(content, "GPS Raw") {
		t.Error("expected GPS Raw track name")
	}
	if !strings.Contains(content, "<?xml") {
		t.Error("expected XML header")
	}
}

func TestWriteOmitsEmptyTrajectoriesEntirely(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.gpx")
	if err := Write(path, time.Unix(0, 0), map[telemetry.FilterKey][]telemetry.TrajectoryPoint{}); err != nil {
		t.Fatalf("Write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if strings.Contains(string(data), "<trk>") {
		t.Error("expected no tracks when every trajectory is empty")
	}
}
