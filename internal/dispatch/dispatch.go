// Package dispatch implements the fan-out from sensor sources to filter
// inlets: one producer (the source reader), N independent bounded
// consumers (the filter workers), non-blocking per-inlet pushes, and a
// per-inlet drop counter (spec.md §4.8). It generalizes the teacher's
// internal/serialmux reader-goroutine-to-subscriber-channels pattern from a
// string-line broadcast into a typed, capacity-tiered one.
package dispatch

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/monitoring"
	"github.com/banshee-data/motiontrack/internal/sensor"
)

// SourcePoller is the subset of sensor.Source the dispatcher needs: a
// blocking-with-timeout read of the next raw sample.
type SourcePoller interface {
	Poll(timeout time.Duration) (sensor.Sample, bool)
}

// Inlet is one consumer's bounded, single-producer/single-consumer queue.
type Inlet struct {
	name    string
	ch      chan sensor.Sample
	dropped atomic.Int64
	total   atomic.Int64

	// Counter values at the previous drop-rate check; only the Run
	// goroutine reads or writes them.
	checkedDropped int64
	checkedTotal   int64
}

func newInlet(name string, capacity int) *Inlet {
	return &Inlet{name: name, ch: make(chan sensor.Sample, capacity)}
}

// Receive returns the inlet's channel for the consumer to range/select on.
func (i *Inlet) Receive() <-chan sensor.Sample { return i.ch }

// Dropped returns the count of samples dropped because this inlet was full.
func (i *Inlet) Dropped() int64 { return i.dropped.Load() }

// Total returns the count of samples successfully delivered to this inlet.
func (i *Inlet) Total() int64 { return i.total.Load() }

// push performs the inlet's single non-blocking send. A full inlet drops
// the sample for that consumer only; siblings are unaffected (spec.md §4.8
// "A failed push... does not stall the others").
func (i *Inlet) push(s sensor.Sample) {
	select {
	case i.ch <- s:
		i.total.Add(1)
	default:
		i.dropped.Add(1)
	}
}

// dropRate returns dropped/(dropped+total), 0 when nothing has flowed yet.
func (i *Inlet) dropRate() float64 {
	d := i.dropped.Load()
	t := i.total.Load()
	if d+t == 0 {
		return 0
	}
	return float64(d) / float64(d+t)
}

// Dispatcher reads from one sensor source and broadcasts each sample into
// every registered inlet.
type Dispatcher struct {
	source  SourcePoller
	cfg     *config.TuningConfig
	inlets  []*Inlet
	mu      sync.Mutex
	seq     int64
}

// New creates a Dispatcher reading from source. Call AddInlet for each
// filter consumer before Run.
func New(source SourcePoller, cfg *config.TuningConfig) *Dispatcher {
	return &Dispatcher{source: source, cfg: cfg}
}

// AddInlet registers a new bounded consumer inlet and returns it so the
// caller can range over Receive(). capacity is the inlet's queue depth,
// chosen by the caller (typically from the tuning config's per-kind inlet
// capacity).
func (d *Dispatcher) AddInlet(name string, capacity int) *Inlet {
	d.mu.Lock()
	defer d.mu.Unlock()
	inlet := newInlet(name, capacity)
	d.inlets = append(d.inlets, inlet)
	return inlet
}

// Seq returns the number of samples broadcast so far, across all inlets.
func (d *Dispatcher) Seq() int64 { return atomic.LoadInt64(&d.seq) }

// Inlets returns a snapshot of the currently registered inlets.
func (d *Dispatcher) Inlets() []*Inlet {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]*Inlet, len(d.inlets))
	copy(out, d.inlets)
	return out
}

// Run drains the source and broadcasts into every inlet until ctx is
// cancelled. It polls with a short timeout so the stop signal is observed
// promptly (spec.md §5 "every loop checks the stop flag at least once per
// iteration").
func (d *Dispatcher) Run(ctx context.Context) {
	const pollTimeout = 100 * time.Millisecond
	warnTicker := time.NewTicker(d.cfg.GetDropRateWarnWindow())
	defer warnTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-warnTicker.C:
			d.warnOnSustainedDrops()
		default:
		}

		sample, ok := d.source.Poll(pollTimeout)
		if !ok {
			continue
		}
		d.broadcast(sample)
	}
}

func (d *Dispatcher) broadcast(sample sensor.Sample) {
	d.mu.Lock()
	inlets := d.inlets
	d.mu.Unlock()

	atomic.AddInt64(&d.seq, 1)
	for _, inlet := range inlets {
		inlet.push(sample)
	}
}

// warnOnSustainedDrops logs a diagnostic when any inlet's drop rate over the
// configured window exceeds the configured threshold (spec.md §5 "a
// sustained drop rate > 10% over 10s triggers a diagnostic warning").
func (d *Dispatcher) warnOnSustainedDrops() {
	threshold := d.cfg.GetDropRateWarnThreshold()
	for _, inlet := range d.Inlets() {
		dropped, total := inlet.dropped.Load(), inlet.total.Load()
		windowDropped := dropped - inlet.checkedDropped
		windowTotal := total - inlet.checkedTotal
		inlet.checkedDropped, inlet.checkedTotal = dropped, total
		if windowDropped+windowTotal == 0 {
			continue
		}
		if rate := float64(windowDropped) / float64(windowDropped+windowTotal); rate > threshold {
			monitoring.Opsf("dispatcher: inlet %q sustained drop rate %.1f%% exceeds %.1f%% threshold",
				inlet.name, rate*100, threshold*100)
		}
	}
}
