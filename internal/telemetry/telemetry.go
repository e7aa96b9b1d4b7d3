// Package telemetry buffers the per-filter trajectory stream and the
// primary EKF's covariance snapshots in bounded memory, spilling filled
// chunks to gzip-compressed JSON files so a long session never grows the
// in-memory footprint past a fixed ceiling.
package telemetry

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/motiontrack/internal/monitoring"
)

// TrajectoryPoint is one emitted fix from a filter pipeline.
type TrajectoryPoint struct {
	T          float64 `json:"t"`
	LatDeg     float64 `json:"lat_deg"`
	LonDeg     float64 `json:"lon_deg"`
	VelocityMS float64 `json:"velocity_ms"`
	Tag        string  `json:"tag"`
}

// CovarianceSnapshot is one selected-diagonal covariance record from the
// primary EKF, taken alongside a GPS update.
type CovarianceSnapshot struct {
	T       float64    `json:"t"`
	Diag    [6]float64 `json:"diag"`
	NIS     float64    `json:"nis"`
	Snapped bool       `json:"snapped"`
}

// Buffer is a fixed-capacity ring of JSON-serializable records. When full,
// the filled prefix is gzip-compressed and written to chunkDir under a
// deterministic name, the chunk path is recorded, and the in-memory index
// resets to zero without freeing the backing array (it is overwritten in
// place).
type Buffer[T any] struct {
	mu       sync.Mutex
	label    string
	chunkDir string
	capacity int
	items    []T
	index    int
	chunks   []string
}

// NewBuffer creates a Buffer that spills to chunkDir, named with label for
// diagnostics and chunk filenames. chunkDir is created lazily on first
// spill so sessions that never fill the in-memory capacity touch no disk.
func NewBuffer[T any](label, chunkDir string, capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{
		label:    label,
		chunkDir: chunkDir,
		capacity: capacity,
		items:    make([]T, capacity),
	}
}

// Append adds a record, spilling the buffer to a compressed chunk first if
// it is already at capacity.
func (b *Buffer[T]) Append(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.index >= b.capacity {
		if err := b.spillLocked(); err != nil {
			return err
		}
	}
	b.items[b.index] = item
	b.index++
	return nil
}

// Len reports the number of in-memory records not yet spilled.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.index
}

// SetCapacity lowers (or raises) the ring's capacity, for the out-of-memory
// backoff policy (spec.md §7 "shrink trajectory chunk size"). If the
// current in-memory prefix already exceeds newCapacity, it is spilled
// immediately rather than silently truncated.
func (b *Buffer[T]) SetCapacity(newCapacity int) error {
	if newCapacity <= 0 {
		newCapacity = 1
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if newCapacity == b.capacity {
		return nil
	}
	if b.index > newCapacity {
		if err := b.spillLocked(); err != nil {
			return err
		}
	}
	fresh := make([]T, newCapacity)
	copy(fresh, b.items[:b.index])
	b.capacity = newCapacity
	b.items = fresh
	return nil
}

// ChunkCount reports how many chunks have been spilled to disk.
func (b *Buffer[T]) ChunkCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.chunks)
}

// spillLocked gzip-compresses the filled prefix to a new chunk file and
// resets the in-memory index. Caller must hold b.mu.
func (b *Buffer[T]) spillLocked() error {
	if b.index == 0 {
		return nil
	}
	if err := os.MkdirAll(b.chunkDir, 0755); err != nil {
		return fmt.Errorf("telemetry: create chunk dir %s: %w", b.chunkDir, err)
	}

	chunkPath := filepath.Join(b.chunkDir, fmt.Sprintf("%s_chunk_%04d.json.gz", b.label, len(b.chunks)))
	f, err := os.Create(chunkPath)
	if err != nil {
		return fmt.Errorf("telemetry: create chunk %s: %w", chunkPath, err)
	}
	defer f.Close()

	gw := gzip.NewWriter(f)
	enc := json.NewEncoder(gw)
	for i := 0; i < b.index; i++ {
		if err := enc.Encode(b.items[i]); err != nil {
			gw.Close()
			return fmt.Errorf("telemetry: encode chunk record: %w", err)
		}
	}
	if err := gw.Close(); err != nil {
		return fmt.Errorf("telemetry: close chunk writer: %w", err)
	}

	b.chunks = append(b.chunks, chunkPath)
	b.index = 0
	monitoring.Diagf("telemetry: spilled %s chunk %s", b.label, chunkPath)
	return nil
}

// ReadAll concatenates every on-disk chunk with the current in-memory
// prefix, in write order, for a full-session export.
func (b *Buffer[T]) ReadAll() ([]T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []T
	for _, chunkPath := range b.chunks {
		records, err := readChunk[T](chunkPath)
		if err != nil {
			return nil, fmt.Errorf("telemetry: read chunk %s: %w", chunkPath, err)
		}
		out = append(out, records...)
	}
	out = append(out, b.items[:b.index]...)
	return out, nil
}

func readChunk[T any](path string) ([]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	gr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer gr.Close()

	var out []T
	dec := json.NewDecoder(gr)
	for dec.More() {
		var item T
		if err := dec.Decode(&item); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, nil
}

// FilterKey names the five trajectory series a full session export
// carries: one per fusion pipeline plus the ES-EKF's dead-reckoned track.
type FilterKey string

const (
	FilterGPSRaw         FilterKey = "gps_raw"
	FilterComplementary  FilterKey = "complementary"
	FilterEKF13          FilterKey = "ekf13"
	FilterESEKF8         FilterKey = "es_ekf"
	FilterESEKF8DeadReck FilterKey = "es_ekf_dead_reckoning"
)

// Store owns one trajectory Buffer per filter series plus the shared
// covariance-snapshot Buffer for the primary EKF, all spilling into the
// same per-session chunk directory.
type Store struct {
	chunkDir     string
	trajectories map[FilterKey]*Buffer[TrajectoryPoint]
	covariance   *Buffer[CovarianceSnapshot]
}

// NewStore creates a Store rooted at sessionDir/chunks, with the given
// trajectory and covariance capacities (spec default: 5000 and 2000).
func NewStore(sessionDir string, trajectoryCapacity, covarianceCapacity int) *Store {
	chunkDir := filepath.Join(sessionDir, "chunks")
	s := &Store{
		chunkDir:     chunkDir,
		trajectories: make(map[FilterKey]*Buffer[TrajectoryPoint]),
	}
	for _, key := range []FilterKey{FilterGPSRaw, FilterComplementary, FilterEKF13, FilterESEKF8, FilterESEKF8DeadReck} {
		s.trajectories[key] = NewBuffer[TrajectoryPoint](string(key), chunkDir, trajectoryCapacity)
	}
	s.covariance = NewBuffer[CovarianceSnapshot]("covariance", chunkDir, covarianceCapacity)
	return s
}

// AppendTrajectory records a point for the named filter series.
func (s *Store) AppendTrajectory(key FilterKey, p TrajectoryPoint) error {
	buf, ok := s.trajectories[key]
	if !ok {
		return fmt.Errorf("telemetry: unknown filter key %q", key)
	}
	return buf.Append(p)
}

// AppendCovariance records a covariance snapshot from the primary EKF.
func (s *Store) AppendCovariance(snap CovarianceSnapshot) error {
	return s.covariance.Append(snap)
}

// Trajectory returns the full reconstructed trajectory for one filter
// series (on-disk chunks plus the current in-memory prefix).
func (s *Store) Trajectory(key FilterKey) ([]TrajectoryPoint, error) {
	buf, ok := s.trajectories[key]
	if !ok {
		return nil, fmt.Errorf("telemetry: unknown filter key %q", key)
	}
	return buf.ReadAll()
}

// Covariance returns the full reconstructed covariance history.
func (s *Store) Covariance() ([]CovarianceSnapshot, error) {
	return s.covariance.ReadAll()
}

// SetTrajectoryCapacity applies newCapacity to every trajectory series
// buffer (not the covariance buffer), for the out-of-memory backoff policy.
func (s *Store) SetTrajectoryCapacity(newCapacity int) error {
	for key, buf := range s.trajectories {
		if err := buf.SetCapacity(newCapacity); err != nil {
			return fmt.Errorf("telemetry: shrink %s buffer: %w", key, err)
		}
	}
	return nil
}

// TrajectoryCounts reports the in-memory (not yet spilled) point count per
// filter series.
func (s *Store) TrajectoryCounts() map[FilterKey]int {
	out := make(map[FilterKey]int, len(s.trajectories))
	for key, buf := range s.trajectories {
		out[key] = buf.Len()
	}
	return out
}
