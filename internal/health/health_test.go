package health

import (
	"testing"
	"time"
)

func TestSampleRateTrackerComputesRateBetweenObservations(t *testing.T) {
	tr := NewSampleRateTracker()
	t0 := time.Unix(0, 0)

	if rate := tr.Observe(0, t0); rate != 0 {
		t.Errorf("first Observe rate = %f, want 0 (no baseline yet)", rate)
	}

	rate := tr.Observe(100, t0.Add(1*time.Second))
	if rate != 100 {
		t.Errorf("rate = %f, want 100 Hz for 100 samples in 1s", rate)
	}
	if tr.RateHz() != 100 {
		t.Errorf("RateHz() = %f, want 100", tr.RateHz())
	}
}

func TestRSSMonitorTracksHighWaterMark(t *testing.T) {
	r := NewRSSMonitor(100.0)
	first := r.Sample()
	if first <= 0 {
		t.Error("expected a positive heap allocation reading")
	}
	if r.HighWaterMB() < first {
		t.Errorf("HighWaterMB() = %f, want >= first sample %f", r.HighWaterMB(), first)
	}
}

func TestRSSMonitorBudgetFraction(t *testing.T) {
	r := NewRSSMonitor(50.0)
	if f := r.BudgetFraction(25.0); f != 0.5 {
		t.Errorf("BudgetFraction(25) = %f, want 0.5", f)
	}
	if f := r.BudgetFraction(60.0); f <= 1.0 {
		t.Errorf("BudgetFraction(60) = %f, want > 1.0 (over budget)", f)
	}
}

func TestConvergenceTrackerMeanNISAndRejectionRate(t *testing.T) {
	c := NewConvergenceTracker(3)
	c.Observe(2.0, false)
	c.Observe(4.0, false)
	c.Observe(12.0, true)
	c.Observe(6.0, false)

	if mean := c.MeanNIS(); mean != (4.0+12.0+6.0)/3 {
		t.Errorf("MeanNIS() = %f, want windowed mean over last 3 observations", mean)
	}
	if rate := c.RejectionRate(); rate != 0.25 {
		t.Errorf("RejectionRate() = %f, want 0.25 (1 of 4)", rate)
	}
}

func TestSilenceStateDetectsStaleSample(t *testing.T) {
	now := time.Unix(100, 0)
	if SilenceState(99.5, now, 1*time.Second) {
		t.Error("0.5s-old sample should not read as silent with a 1s threshold")
	}
	if !SilenceState(90.0, now, 1*time.Second) {
		t.Error("10s-old sample should read as silent with a 1s threshold")
	}
}
