// Package session writes the end-of-run session summary: configuration,
// computed metrics, final filter states, and — on the final save only —
// the fully reconstructed sample lists and trajectory history. The file is
// gzip-compressed JSON written to a temp path and atomically renamed into
// place so a reader never observes a partially written summary.
package session

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/motiontrack/internal/sensor"
	"github.com/banshee-data/motiontrack/internal/telemetry"
)

// FilterSummary is the terminal state of one fusion pipeline.
type FilterSummary struct {
	Name       string  `json:"name"`
	VelocityMS float64 `json:"velocity_ms"`
	DistanceM  float64 `json:"distance_m"`
	LatDeg     float64 `json:"lat_deg"`
	LonDeg     float64 `json:"lon_deg"`
	UncertainM float64 `json:"uncertain_m"`
}

// Metrics holds run-level counters unrelated to any single filter.
type Metrics struct {
	DurationSeconds float64 `json:"duration_seconds"`
	GPSCount        int     `json:"gps_count"`
	AccelCount      int     `json:"accel_count"`
	GyroCount       int     `json:"gyro_count"`
	IncidentCount   int     `json:"incident_count"`
	RestartCount    int     `json:"restart_count"`
}

// Summary is the full on-disk document written at session end.
type Summary struct {
	SessionID string          `json:"session_id"`
	StartedAt string          `json:"started_at"`
	EndedAt   string          `json:"ended_at"`
	Config    json.RawMessage `json:"config"`
	Metrics   Metrics         `json:"metrics"`
	Filters   []FilterSummary `json:"filters"`

	// Final-save-only payload.
	GPSSamples   []sensor.GpsSample   `json:"gps_samples,omitempty"`
	AccelSamples []sensor.AccelSample `json:"accel_samples,omitempty"`
	GyroSamples  []sensor.GyroSample  `json:"gyro_samples,omitempty"`
	Trajectories map[telemetry.FilterKey][]telemetry.TrajectoryPoint `json:"trajectories,omitempty"`
}

// WriteFinal gzip-compresses summary as JSON and atomically publishes it at
// path (path.tmp is written first, then renamed over path).
func WriteFinal(path string, summary *Summary) error {
	data, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		return fmt.Errorf("session: marshal summary: %w", err)
	}

	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	if _, err := gw.Write(data); err != nil {
		gw.Close()
		return fmt.Errorf("session: gzip summary: %w", err)
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("session: close gzip writer: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("session: create dir %s: %w", dir, err)
	}

	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("session: write temp summary: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("session: rename temp summary into place: %w", err)
	}
	return nil
}

// ReadFinal reads back and decompresses a summary previously written by
// WriteFinal, for tests and offline inspection.
func ReadFinal(path string) (*Summary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("session: read %s: %w", path, err)
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("session: gzip reader: %w", err)
	}
	defer gr.Close()

	var buf bytes.Buffer
	if _, err := buf.ReadFrom(gr); err != nil {
		return nil, fmt.Errorf("session: decompress: %w", err)
	}

	var s Summary
	if err := json.Unmarshal(buf.Bytes(), &s); err != nil {
		return nil, fmt.Errorf("session: unmarshal: %w", err)
	}
	return &s, nil
}

// NewSessionID returns a time-sortable identifier for a fresh session
// directory name.
func NewSessionID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z")
}
