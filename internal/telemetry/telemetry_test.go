package telemetry

import (
	"testing"
)

func TestBufferSpillsAtCapacityAndReadsAllBack(t *testing.T) {
	dir := t.TempDir()
	buf := NewBuffer[TrajectoryPoint]("test", dir, 3)

	for i := 0; i < 7; i++ {
		if err := buf.Append(TrajectoryPoint{T: float64(i), LatDeg: 37.0, LonDeg: -122.0}); err != nil {
			t.Fatalf("Append(%d): %v", i, err)
		}
	}

	if buf.ChunkCount() != 2 {
		t.Errorf("ChunkCount() = %d, want 2 (two full 3-capacity spills before the 7th item)", buf.ChunkCount())
	}
	if buf.Len() != 1 {
		t.Errorf("Len() = %d, want 1 in-memory record remaining", buf.Len())
	}

	all, err := buf.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 7 {
		t.Fatalf("ReadAll returned %d records, want 7", len(all))
	}
	for i, p := range all {
		if p.T != float64(i) {
			t.Errorf("record %d: T = %f, want %f (chunk/in-memory order must be preserved)", i, p.T, float64(i))
		}
	}
}

func TestBufferNeverTouchesDiskBelowCapacity(t *testing.T) {
	dir := t.TempDir()
	buf := NewBuffer[TrajectoryPoint]("untouched", dir, 10)
	for i := 0; i < 5; i++ {
		buf.Append(TrajectoryPoint{T: float64(i)})
	}
	if buf.ChunkCount() != 0 {
		t.Errorf("ChunkCount() = %d, want 0 below capacity", buf.ChunkCount())
	}
}

func TestStoreRoutesByFilterKey(t *testing.T) {
	s := NewStore(t.TempDir(), 5, 5)

	if err := s.AppendTrajectory(FilterEKF13, TrajectoryPoint{T: 1.0}); err != nil {
		t.Fatalf("AppendTrajectory: %v", err)
	}
	if err := s.AppendTrajectory(FilterESEKF8DeadReck, TrajectoryPoint{T: 2.0}); err != nil {
		t.Fatalf("AppendTrajectory: %v", err)
	}
	if err := s.AppendTrajectory(FilterKey("bogus"), TrajectoryPoint{}); err == nil {
		t.Error("expected error for unknown filter key")
	}

	ekf, err := s.Trajectory(FilterEKF13)
	if err != nil {
		t.Fatalf("Trajectory(EKF13): %v", err)
	}
	if len(ekf) != 1 {
		t.Fatalf("EKF13 trajectory has %d points, want 1", len(ekf))
	}

	deadReck, err := s.Trajectory(FilterESEKF8DeadReck)
	if err != nil {
		t.Fatalf("Trajectory(DeadReck): %v", err)
	}
	if len(deadReck) != 1 || deadReck[0].T != 2.0 {
		t.Errorf("dead-reckoning trajectory = %v, want one point at T=2.0", deadReck)
	}

	counts := s.TrajectoryCounts()
	if counts[FilterEKF13] != 1 {
		t.Errorf("TrajectoryCounts()[EKF13] = %d, want 1", counts[FilterEKF13])
	}
}

func TestBufferSetCapacitySpillsOverflowThenShrinks(t *testing.T) {
	dir := t.TempDir()
	buf := NewBuffer[TrajectoryPoint]("shrink", dir, 5)
	for i := 0; i < 4; i++ {
		buf.Append(TrajectoryPoint{T: float64(i)})
	}

	if err := buf.SetCapacity(2); err != nil {
		t.Fatalf("SetCapacity(2): %v", err)
	}
	if buf.ChunkCount() != 1 {
		t.Errorf("ChunkCount() = %d, want 1 (4 in-memory records no longer fit in capacity 2)", buf.ChunkCount())
	}
	if buf.Len() != 0 {
		t.Errorf("Len() = %d, want 0 after the forced spill", buf.Len())
	}

	if err := buf.Append(TrajectoryPoint{T: 10}); err != nil {
		t.Fatalf("Append after shrink: %v", err)
	}
	if buf.Len() != 1 {
		t.Errorf("Len() = %d, want 1", buf.Len())
	}

	all, err := buf.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 5 {
		t.Fatalf("ReadAll returned %d records, want 5", len(all))
	}
}

func TestBufferSetCapacityPreservesUnspilledRecords(t *testing.T) {
	dir := t.TempDir()
	buf := NewBuffer[TrajectoryPoint]("preserve", dir, 10)
	buf.Append(TrajectoryPoint{T: 1})
	buf.Append(TrajectoryPoint{T: 2})

	if err := buf.SetCapacity(5); err != nil {
		t.Fatalf("SetCapacity(5): %v", err)
	}
	if buf.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (existing records must survive a capacity change)", buf.Len())
	}

	all, err := buf.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if len(all) != 2 || all[0].T != 1 || all[1].T != 2 {
		t.Errorf("ReadAll() = %v, want [{T:1} {T:2}]", all)
	}
}

func TestStoreSetTrajectoryCapacityAppliesToAllSeries(t *testing.T) {
	s := NewStore(t.TempDir(), 10, 10)
	for _, key := range []FilterKey{FilterGPSRaw, FilterEKF13} {
		for i := 0; i < 3; i++ {
			if err := s.AppendTrajectory(key, TrajectoryPoint{T: float64(i)}); err != nil {
				t.Fatalf("AppendTrajectory(%s): %v", key, err)
			}
		}
	}

	if err := s.SetTrajectoryCapacity(2); err != nil {
		t.Fatalf("SetTrajectoryCapacity(2): %v", err)
	}

	for _, key := range []FilterKey{FilterGPSRaw, FilterEKF13} {
		buf := s.trajectories[key]
		if buf.ChunkCount() != 1 {
			t.Errorf("%s: ChunkCount() = %d, want 1 after shrinking below its 3 buffered records", key, buf.ChunkCount())
		}
	}
}

func TestStoreAppendCovariance(t *testing.T) {
	s := NewStore(t.TempDir(), 5, 2)
	if err := s.AppendCovariance(CovarianceSnapshot{T: 1.0, NIS: 2.5}); err != nil {
		t.Fatalf("AppendCovariance: %v", err)
	}
	snaps, err := s.Covariance()
	if err != nil {
		t.Fatalf("Covariance: %v", err)
	}
	if len(snaps) != 1 || snaps[0].NIS != 2.5 {
		t.Errorf("Covariance() = %v, want one snapshot with NIS=2.5", snaps)
	}
}
