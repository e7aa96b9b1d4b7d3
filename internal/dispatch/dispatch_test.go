package dispatch

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/sensor"
)

// fakeSource feeds a fixed slice of samples, then blocks (returns ok=false)
// for the remainder of the test, standing in for sensor.Source.
type fakeSource struct {
	mu      sync.Mutex
	samples []sensor.Sample
}

func (f *fakeSource) Poll(timeout time.Duration) (sensor.Sample, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.samples) == 0 {
		time.Sleep(timeout)
		return sensor.Sample{}, false
	}
	s := f.samples[0]
	f.samples = f.samples[1:]
	return s, true
}

func accelSample(t float64) sensor.Sample {
	return sensor.Sample{Kind: sensor.KindAccel, Accel: &sensor.AccelSample{T: t, MagnitudeMS2: 1.0}}
}

func TestDispatcherBroadcastsToAllInlets(t *testing.T) {
	src := &fakeSource{samples: []sensor.Sample{accelSample(1), accelSample(2), accelSample(3)}}
	d := New(src, config.EmptyTuningConfig())
	a := d.AddInlet("filter-a", 10)
	b := d.AddInlet("filter-b", 10)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	go d.Run(ctx)

	for i := 0; i < 3; i++ {
		select {
		case <-a.Receive():
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for inlet a")
		}
		select {
		case <-b.Receive():
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for inlet b")
		}
	}

	if a.Total() != 3 || b.Total() != 3 {
		t.Errorf("Total() a=%d b=%d, want 3 each", a.Total(), b.Total())
	}
}

func TestDispatcherFullInletDropsWithoutStallingSiblings(t *testing.T) {
	samples := make([]sensor.Sample, 0, 20)
	for i := 0; i < 20; i++ {
		samples = append(samples, accelSample(float64(i)))
	}
	src := &fakeSource{samples: samples}
	d := New(src, config.EmptyTuningConfig())
	tiny := d.AddInlet("slow-consumer", 2) // never drained
	roomy := d.AddInlet("fast-consumer", 32)

	ctx, cancel := context.WithTimeout(context.Background(), 300*time.Millisecond)
	defer cancel()
	d.Run(ctx)

	if tiny.Dropped() == 0 {
		t.Error("expected the undrained, tiny-capacity inlet to have dropped samples")
	}
	if roomy.Total() != 20 {
		t.Errorf("roomy inlet Total() = %d, want 20 (it must not be stalled by the full sibling)", roomy.Total())
	}
}

func TestInletDropRate(t *testing.T) {
	i := newInlet("test", 1)
	i.push(accelSample(1))
	i.push(accelSample(2)) // capacity 1, second push drops

	if i.Total() != 1 || i.Dropped() != 1 {
		t.Fatalf("Total()=%d Dropped()=%d, want 1,1", i.Total(), i.Dropped())
	}
	if rate := i.dropRate(); rate != 0.5 {
		t.Errorf("dropRate() = %f, want 0.5", rate)
	}
}
