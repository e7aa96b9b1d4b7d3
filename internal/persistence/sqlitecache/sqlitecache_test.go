package sqlitecache

import (
	"path/filepath"
	"testing"

	"github.com/banshee-data/motiontrack/internal/sensor"
)

func TestOpenRunsMigrationsAndCreatesTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	if err := c.AppendGPS(nil); err != nil {
		t.Errorf("AppendGPS(nil) should be a no-op, got %v", err)
	}
}

func TestAppendAndReadBackGPS(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	samples := []sensor.GpsSample{
		{T: 0.0, Lat: 37.0, Lon: -122.0, AccuracyM: 3.0, SpeedMS: 1.0, Provider: "gps"},
		{T: 1.0, Lat: 37.001, Lon: -122.0, AccuracyM: 3.0, SpeedMS: 1.2, Provider: "gps"},
	}
	if err := c.AppendGPS(samples); err != nil {
		t.Fatalf("AppendGPS: %v", err)
	}

	got, err := c.AllGPS()
	if err != nil {
		t.Fatalf("AllGPS: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("AllGPS returned %d rows, want 2", len(got))
	}
	if got[0].Lat != samples[0].Lat || got[1].T != samples[1].T {
		t.Errorf("AllGPS rows = %+v, want %+v", got, samples)
	}
}

func TestAppendAndReadBackAccelAndGyro(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	accel := []sensor.AccelSample{{T: 0.0, MagnitudeMS2: 0.5}, {T: 0.05, MagnitudeMS2: 0.6}}
	if err := c.AppendAccel(accel); err != nil {
		t.Fatalf("AppendAccel: %v", err)
	}
	gotAccel, err := c.AllAccel()
	if err != nil {
		t.Fatalf("AllAccel: %v", err)
	}
	if len(gotAccel) != 2 {
		t.Fatalf("AllAccel returned %d rows, want 2", len(gotAccel))
	}

	gyro := []sensor.GyroSample{{T: 0.0, Wx: 0.1, Wy: 0.2, Wz: 0.3, Magnitude: 0.37}}
	if err := c.AppendGyro(gyro); err != nil {
		t.Fatalf("AppendGyro: %v", err)
	}
	gotGyro, err := c.AllGyro()
	if err != nil {
		t.Fatalf("AllGyro: %v", err)
	}
	if len(gotGyro) != 1 || gotGyro[0].Wz != 0.3 {
		t.Errorf("AllGyro = %+v, want one row with Wz=0.3", gotGyro)
	}
}

func TestAppendSinceLastSaveThenClearPattern(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.db")
	c, err := Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer c.Close()

	first := []sensor.GpsSample{{T: 0.0, Lat: 1, Lon: 1, Provider: "gps"}}
	second := []sensor.GpsSample{{T: 1.0, Lat: 2, Lon: 2, Provider: "gps"}}

	if err := c.AppendGPS(first); err != nil {
		t.Fatalf("AppendGPS(first): %v", err)
	}
	if err := c.AppendGPS(second); err != nil {
		t.Fatalf("AppendGPS(second): %v", err)
	}

	got, err := c.AllGPS()
	if err != nil {
		t.Fatalf("AllGPS: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected both since-last-save slices to accumulate, got %d rows", len(got))
	}
}
