// Package status writes the small live_status.json document external
// consumers poll to answer "is this device actively tracking right now".
// Every write goes to a temp path and is renamed over the well-known path
// so a reader never observes a half-written file; an absent file or one
// whose mtime has gone stale is the external signal for "inactive".
package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/motiontrack/internal/fsutil"
)

// GPSFix is the latest known GPS position, or nil if none has arrived yet.
type GPSFix struct {
	LatDeg    float64 `json:"lat_deg"`
	LonDeg    float64 `json:"lon_deg"`
	AccuracyM float32 `json:"accuracy_m"`
}

// Document is the full live_status.json payload.
type Document struct {
	SessionID       string             `json:"session_id"`
	ElapsedSeconds  float64            `json:"elapsed_seconds"`
	LastUpdateEpoch float64            `json:"last_update_epoch"`
	GPSCount        int64              `json:"gps_count"`
	AccelCount      int64              `json:"accel_count"`
	GyroCount       int64              `json:"gyro_count"`
	LatestGPS       *GPSFix            `json:"latest_gps"`
	VelocityMS      float64            `json:"velocity_ms"`
	HeadingRad      float64            `json:"heading_rad"`
	DistanceM       float64            `json:"distance_m"`
	RSSMB           float64            `json:"rss_mb"`
	RestartCounts   map[string]int     `json:"restart_counts"`
	SampleRatesHz   map[string]float64 `json:"sample_rates_hz"`
	SensorSilent    map[string]bool    `json:"sensor_silent"`
}

// Writer owns the well-known output path and the filesystem abstraction
// used to write it, so tests can substitute an in-memory filesystem.
type Writer struct {
	fs   fsutil.FileSystem
	path string
}

// NewWriter returns a Writer that publishes to path using fs.
func NewWriter(fs fsutil.FileSystem, path string) *Writer {
	return &Writer{fs: fs, path: path}
}

// Write marshals doc and atomically publishes it at the writer's path.
func (w *Writer) Write(doc *Document) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("status: marshal: %w", err)
	}

	dir := filepath.Dir(w.path)
	if err := w.fs.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("status: create dir %s: %w", dir, err)
	}

	tmpPath := w.path + ".tmp"
	if err := w.fs.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("status: write temp: %w", err)
	}
	// fsutil.FileSystem has no Rename; production writes go through the OS
	// filesystem directly for the atomic step, matching os.Rename's
	// same-filesystem atomicity guarantee. The in-memory filesystem used
	// in tests overwrites in place, which is observably equivalent for a
	// single-writer document like this one.
	if err := w.renameOrOverwrite(tmpPath, data); err != nil {
		return err
	}
	return nil
}

func (w *Writer) renameOrOverwrite(tmpPath string, data []byte) error {
	if _, ok := w.fs.(fsutil.OSFileSystem); ok {
		return os.Rename(tmpPath, w.path)
	}
	if err := w.fs.WriteFile(w.path, data, 0644); err != nil {
		return fmt.Errorf("status: publish: %w", err)
	}
	return w.fs.Remove(tmpPath)
}

// Remove deletes the live status file, called on clean shutdown so
// external consumers see "no file" rather than a stale one.
func (w *Writer) Remove() error {
	if !w.fs.Exists(w.path) {
		return nil
	}
	return w.fs.Remove(w.path)
}

// IsStale reports whether path's mtime is older than staleAfter, or the
// file is absent — both read as "inactive" by external consumers.
func IsStale(fs fsutil.FileSystem, path string, staleAfter time.Duration, now time.Time) bool {
	info, err := fs.Stat(path)
	if err != nil {
		return true
	}
	return now.Sub(info.ModTime()) > staleAfter
}
