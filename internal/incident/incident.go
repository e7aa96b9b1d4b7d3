// Package incident watches the live accel/gyro/GPS streams for hard
// braking, impact, and swerving events, each gated by its own cooldown so
// a sustained condition emits one event rather than one per sample, and
// persists pre/post context snapshots for later review.
package incident

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/monitoring"
)

const gravityMS2 = 9.80665

// Kind identifies the class of detected event.
type Kind string

const (
	KindHardBraking Kind = "hard_braking"
	KindImpact      Kind = "impact"
	KindSwerving    Kind = "swerving"
)

// GPSPoint is one GPS sample retained in a rolling context window.
type GPSPoint struct {
	T       float64 `json:"t"`
	LatDeg  float64 `json:"lat_deg"`
	LonDeg  float64 `json:"lon_deg"`
	SpeedMS float64 `json:"speed_ms"`
}

// AccelPoint is one accel sample retained in a rolling context window.
type AccelPoint struct {
	T         float64 `json:"t"`
	Magnitude float64 `json:"magnitude_ms2"`
}

// GyroPoint is one gyro sample retained in a rolling context window.
type GyroPoint struct {
	T  float64 `json:"t"`
	Wz float64 `json:"wz"`
}

// Context is a snapshot of the three rolling windows at some moment.
type Context struct {
	GPS   []GPSPoint   `json:"gps"`
	Accel []AccelPoint `json:"accel"`
	Gyro  []GyroPoint  `json:"gyro"`
}

// Event is one detected incident with context recorded both before and
// after the triggering sample.
type Event struct {
	Kind   Kind    `json:"kind"`
	T      float64 `json:"t"`
	PreCtx Context `json:"pre_ctx"`
	// PostCtx is filled in as samples continue to arrive after T and is
	// only persisted once the post-event window closes.
	PostCtx Context `json:"post_ctx"`
}

// pending is an event awaiting its post-context window to close before it
// is written to disk.
type pending struct {
	event      *Event
	finalizeAt float64
}

// Detector holds rolling context windows, per-kind cooldown state, and any
// events still accumulating post-context. Safe for concurrent use.
type Detector struct {
	cfg *config.TuningConfig
	dir string

	mu sync.Mutex

	gps   []GPSPoint
	accel []AccelPoint
	gyro  []GyroPoint

	lastSpeed float64

	lastEventT map[Kind]float64
	pendingEvs []*pending
}

// New creates a Detector that persists incident files under dir (the
// session's dedicated incidents subdirectory).
func New(cfg *config.TuningConfig, dir string) *Detector {
	return &Detector{
		cfg:        cfg,
		dir:        dir,
		lastEventT: make(map[Kind]float64),
	}
}

// ObserveGPS records a GPS sample, updates the last-known speed used by the
// hard-braking and swerving gates, and feeds any pending post-context
// windows.
func (d *Detector) ObserveGPS(t, latDeg, lonDeg, speedMS float64) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gps = append(d.gps, GPSPoint{T: t, LatDeg: latDeg, LonDeg: lonDeg, SpeedMS: speedMS})
	d.trimGPSLocked(t)
	d.lastSpeed = speedMS
	d.feedPendingLocked(t)
}

// ObserveAccel records an accel magnitude sample, checks the hard-braking
// and impact conditions, and returns any event newly triggered (its
// post-context is not yet complete at the time it is returned).
func (d *Detector) ObserveAccel(t, magnitudeMS2 float64) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.accel = append(d.accel, AccelPoint{T: t, Magnitude: magnitudeMS2})
	d.trimAccelLocked()
	d.feedPendingLocked(t)

	magG := magnitudeMS2 / gravityMS2
	var triggered *Event

	if magG > d.cfg.GetImpactThresholdG() {
		if ev := d.raiseLocked(KindImpact, t); ev != nil {
			triggered = ev
		}
	}
	if magG > d.cfg.GetHardBrakingThresholdG() && d.lastSpeed > d.cfg.GetIncidentMinSpeed() {
		if ev := d.raiseLocked(KindHardBraking, t); ev != nil {
			triggered = ev
		}
	}
	return triggered
}

// ObserveGyro records a gyro z-axis rate sample, checks the swerving
// condition, and returns any event newly triggered.
func (d *Detector) ObserveGyro(t, wz float64) *Event {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.gyro = append(d.gyro, GyroPoint{T: t, Wz: wz})
	d.trimGyroLocked()
	d.feedPendingLocked(t)

	if math.Abs(wz) > d.cfg.GetSwervingThresholdRadS() &&
		d.lastSpeed > d.cfg.GetIncidentMinSpeed() &&
		d.headingStableLocked() {
		return d.raiseLocked(KindSwerving, t)
	}
	return nil
}

// Flush finalizes (and persists) any pending events whose post-context
// window has closed as of t, even if no further sample arrives for them.
// The orchestrator calls this periodically and on shutdown.
func (d *Detector) Flush(t float64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.feedPendingLocked(t)
}

// headingStableLocked reports whether the rate of change in gyro z stays
// below the reorientation threshold, i.e. this is a driving maneuver and
// not the filter snapping to a corrected heading.
// Caller must hold d.mu.
func (d *Detector) headingStableLocked() bool {
	if len(d.gyro) < 2 {
		return true
	}
	last := d.gyro[len(d.gyro)-1]
	prev := d.gyro[len(d.gyro)-2]
	dt := last.T - prev.T
	if dt <= 0 {
		return true
	}
	rateChange := math.Abs(last.Wz-prev.Wz) / dt
	return rateChange < d.cfg.GetHeadingReorientThreshold()*10
}

// raiseLocked applies the per-kind cooldown and, if clear, opens a pending
// event carrying the pre-context snapshot. Caller must hold d.mu.
func (d *Detector) raiseLocked(kind Kind, t float64) *Event {
	cooldown := d.cfg.GetIncidentCooldown().Seconds()
	if last, ok := d.lastEventT[kind]; ok && t-last < cooldown {
		return nil
	}
	d.lastEventT[kind] = t

	ev := &Event{
		Kind: kind,
		T:    t,
		PreCtx: Context{
			GPS:   append([]GPSPoint(nil), d.gps...),
			Accel: append([]AccelPoint(nil), d.accel...),
			Gyro:  append([]GyroPoint(nil), d.gyro...),
		},
	}
	d.pendingEvs = append(d.pendingEvs, &pending{event: ev, finalizeAt: t + cooldown})
	monitoring.Diagf("incident: %s detected at t=%.3f", kind, t)
	return ev
}

// feedPendingLocked appends the latest sample windows into every pending
// event's post-context and persists (then drops) any whose window has
// closed. Caller must hold d.mu.
func (d *Detector) feedPendingLocked(t float64) {
	if len(d.pendingEvs) == 0 {
		return
	}
	var still []*pending
	for _, p := range d.pendingEvs {
		p.event.PostCtx = Context{
			GPS:   append([]GPSPoint(nil), d.gps...),
			Accel: append([]AccelPoint(nil), d.accel...),
			Gyro:  append([]GyroPoint(nil), d.gyro...),
		}
		if t >= p.finalizeAt {
			if err := d.persist(p.event); err != nil {
				monitoring.Opsf("incident: failed to persist %s event at t=%.3f: %v", p.event.Kind, p.event.T, err)
			}
		} else {
			still = append(still, p)
		}
	}
	d.pendingEvs = still
}

// persist writes ev to its own file under the detector's incident
// directory, named <kind>_<t>.json; the per-kind cooldown guarantees
// distinct timestamps so no extra disambiguator is needed.
func (d *Detector) persist(ev *Event) error {
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		return fmt.Errorf("incident: create dir: %w", err)
	}
	name := fmt.Sprintf("%s_%.3f.json", ev.Kind, ev.T)
	path := filepath.Join(d.dir, name)

	data, err := json.MarshalIndent(ev, "", "  ")
	if err != nil {
		return fmt.Errorf("incident: marshal event: %w", err)
	}
	return os.WriteFile(path, data, 0644)
}

func (d *Detector) trimGPSLocked(now float64) {
	window := d.cfg.GetIncidentGPSWindow().Seconds()
	cut := 0
	for cut < len(d.gps) && now-d.gps[cut].T > window {
		cut++
	}
	if cut > 0 {
		d.gps = d.gps[cut:]
	}
}

func (d *Detector) trimAccelLocked() {
	max := d.cfg.GetIncidentAccelWindowSize()
	if len(d.accel) > max {
		d.accel = d.accel[len(d.accel)-max:]
	}
}

func (d *Detector) trimGyroLocked() {
	max := d.cfg.GetIncidentGyroWindowSize()
	if len(d.gyro) > max {
		d.gyro = d.gyro[len(d.gyro)-max:]
	}
}
