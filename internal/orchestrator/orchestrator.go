// Package orchestrator owns the session lifecycle: it wires the sensor
// sources, the liveness supervisor, the per-sensor dispatchers, the three
// fusion filters, and every persistence/telemetry/health consumer into one
// running session, then drives an ordered shutdown when the context is
// cancelled. It generalizes the teacher's cmd/radar/radar.go main()
// (signal-driven context, one WaitGroup, ordered stop) from a single
// capture loop into a multi-source, multi-filter pipeline.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/banshee-data/motiontrack/internal/calibration"
	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/dispatch"
	"github.com/banshee-data/motiontrack/internal/filters"
	"github.com/banshee-data/motiontrack/internal/filters/complementary"
	"github.com/banshee-data/motiontrack/internal/filters/ekf13"
	"github.com/banshee-data/motiontrack/internal/filters/esekf8"
	"github.com/banshee-data/motiontrack/internal/fsutil"
	"github.com/banshee-data/motiontrack/internal/health"
	"github.com/banshee-data/motiontrack/internal/incident"
	"github.com/banshee-data/motiontrack/internal/monitoring"
	"github.com/banshee-data/motiontrack/internal/persistence/gpx"
	"github.com/banshee-data/motiontrack/internal/persistence/session"
	"github.com/banshee-data/motiontrack/internal/persistence/sqlitecache"
	"github.com/banshee-data/motiontrack/internal/sensor"
	"github.com/banshee-data/motiontrack/internal/status"
	"github.com/banshee-data/motiontrack/internal/supervisor"
	"github.com/banshee-data/motiontrack/internal/telemetry"
)

// SourceCommand is one sensor child process's argv. This is deployment
// wiring (where the binaries live on this device), not a tuning threshold,
// so it lives outside config.TuningConfig rather than forcing every tuning
// file to also carry install paths.
type SourceCommand struct {
	Path string
	Args []string
}

func (c SourceCommand) factory() sensor.ChildFactory {
	return func() sensor.ChildProcess {
		return sensor.NewExecChild(c.Path, c.Args...)
	}
}

// SourceCommands holds the three sensor child process commands.
type SourceCommands struct {
	GPS   SourceCommand
	Accel SourceCommand
	Gyro  SourceCommand
}

// Options configures one orchestrator run.
type Options struct {
	Cfg         *config.TuningConfig
	Commands    SourceCommands
	SessionDir  string
	StatusPath  string
	MaxDuration time.Duration // 0 means run until ctx is cancelled
}

// Orchestrator owns one session's full set of running components.
type Orchestrator struct {
	cfg        *config.TuningConfig
	sessionDir string
	sessionID  string
	maxDur     time.Duration
	startedAt  time.Time

	calibrator *calibration.Calibrator
	cache      *sqlitecache.Cache
	store      *telemetry.Store
	incidents  *incident.Detector
	statusW    *status.Writer

	rss         *health.RSSMonitor
	convergence *health.ConvergenceTracker
	pressure    *MemoryPressurePolicy
	gpsRate     *health.SampleRateTracker
	accelRate   *health.SampleRateTracker
	gyroRate    *health.SampleRateTracker

	sup          *supervisor.Supervisor
	gpsWatched   *supervisor.Watched
	accelWatched *supervisor.Watched
	gyroWatched  *supervisor.Watched

	gpsDisp   *dispatch.Dispatcher
	accelDisp *dispatch.Dispatcher
	gyroDisp  *dispatch.Dispatcher

	comp  *complementary.Filter
	ekf   *ekf13.Filter
	esekf *esekf8.Filter

	gpsCount, accelCount, gyroCount, incidentCount atomic.Int64

	bufMu    sync.Mutex
	gpsBuf   []sensor.GpsSample
	accelBuf []sensor.AccelSample
	gyroBuf  []sensor.GyroSample

	fixMu   sync.Mutex
	lastFix *status.GPSFix
}

// watchedPoller adapts a supervisor.Watched into a dispatch.SourcePoller
// that always polls whichever source instance is currently active, so a
// dispatcher keeps working across a supervisor-driven restart instead of
// being pinned to the source object that existed at construction time.
type watchedPoller struct{ w *supervisor.Watched }

func (p watchedPoller) Poll(timeout time.Duration) (sensor.Sample, bool) {
	src, ok := p.w.Current().(*sensor.Source)
	if !ok || src == nil {
		return sensor.Sample{}, false
	}
	return src.Poll(timeout)
}

func newSensorSource(kind sensor.Kind, factory sensor.ChildFactory, cfg *config.TuningConfig, calibrator *calibration.Calibrator) *sensor.Source {
	return sensor.NewSource(kind, factory, cfg, calibrator)
}

// New builds an Orchestrator for one session, opening its SQLite cache and
// creating sessionDir if needed. Accel must produce at least one frame
// within the warm-up window or New fails outright; GPS and gyro may start
// silent and are left to the supervisor's restart loop.
func New(opts Options) (*Orchestrator, error) {
	o, err := newWithFactories(opts.Cfg, opts.SessionDir, opts.StatusPath, opts.MaxDuration,
		opts.Commands.Accel.factory(), opts.Commands.GPS.factory(), opts.Commands.Gyro.factory())
	if err != nil {
		return nil, err
	}
	// Residual-process reaping (spec.md §4.2.1d) matches against the child
	// binary's own name; SourceCommand is deployment wiring the in-process
	// test seam has no equivalent for, so it is applied here rather than
	// inside newWithFactories. An empty path (no pattern) leaves reaping
	// disabled rather than matching filepath.Base("") == ".", which would
	// otherwise match every process on the host.
	o.accelWatched.ProcessPattern = processPattern(opts.Commands.Accel.Path)
	o.gpsWatched.ProcessPattern = processPattern(opts.Commands.GPS.Path)
	o.gyroWatched.ProcessPattern = processPattern(opts.Commands.Gyro.Path)
	return o, nil
}

func processPattern(path string) string {
	if path == "" {
		return ""
	}
	return filepath.Base(path)
}

// newWithFactories is the shared constructor body. New wires it to the exec-
// backed factories built from SourceCommand; tests wire it to in-process
// fakes (the same seam internal/sensor's own tests use) so the full
// orchestrator wiring and shutdown sequence can be exercised without
// spawning a real subprocess.
func newWithFactories(cfg *config.TuningConfig, sessionDir, statusPath string, maxDur time.Duration,
	accelFactory, gpsFactory, gyroFactory sensor.ChildFactory) (*Orchestrator, error) {
	if err := os.MkdirAll(sessionDir, 0755); err != nil {
		return nil, fmt.Errorf("orchestrator: create session dir: %w", err)
	}

	cache, err := sqlitecache.Open(filepath.Join(sessionDir, "cache.sqlite3"))
	if err != nil {
		return nil, fmt.Errorf("orchestrator: open cache: %w", err)
	}

	now := time.Now()
	o := &Orchestrator{
		cfg:         cfg,
		sessionDir:  sessionDir,
		sessionID:   session.NewSessionID(now),
		maxDur:      maxDur,
		startedAt:   now,
		calibrator:  calibration.New(cfg),
		cache:       cache,
		store:       telemetry.NewStore(sessionDir, cfg.GetTrajectoryBufferCapacity(), cfg.GetCovarianceBufferCapacity()),
		incidents:   incident.New(cfg, filepath.Join(sessionDir, "incidents")),
		statusW:     status.NewWriter(fsutil.OSFileSystem{}, statusPath),
		rss:         health.NewRSSMonitor(cfg.GetMaxRSSMB()),
		convergence: health.NewConvergenceTracker(0),
		pressure:    NewMemoryPressurePolicy(cfg.GetAutosaveInterval(), cfg.GetTrajectoryBufferCapacity()),
		gpsRate:     health.NewSampleRateTracker(),
		accelRate:   health.NewSampleRateTracker(),
		gyroRate:    health.NewSampleRateTracker(),
		comp:        complementary.New(cfg),
		ekf:         ekf13.New(cfg),
		esekf:       esekf8.New(cfg),
	}

	o.sup = supervisor.New(cfg)

	accelSrc := newSensorSource(sensor.KindAccel, accelFactory, cfg, o.calibrator)
	gpsSrc := newSensorSource(sensor.KindGPS, gpsFactory, cfg, nil)
	gyroSrc := newSensorSource(sensor.KindGyro, gyroFactory, cfg, nil)

	startCtx, cancel := context.WithTimeout(context.Background(), cfg.GetChildWarmupTimeout()+cfg.GetRestartValidateTimeout())
	defer cancel()
	if err := accelSrc.Start(startCtx); err != nil {
		accelSrc.Stop()
		cache.Close()
		return nil, fmt.Errorf("orchestrator: start accel source: %w", err)
	}
	if err := gpsSrc.Start(startCtx); err != nil {
		monitoring.Opsf("orchestrator: gps source failed initial start, leaving to supervisor: %v", err)
	}
	if err := gyroSrc.Start(startCtx); err != nil {
		monitoring.Opsf("orchestrator: gyro source failed initial start, leaving to supervisor: %v", err)
	}

	o.accelWatched = o.sup.Watch("accel", accelSrc, func() supervisor.Source {
		return newSensorSource(sensor.KindAccel, accelFactory, cfg, o.calibrator)
	}, cfg.GetSilenceThresholdAccel(), true)
	o.gpsWatched = o.sup.Watch("gps", gpsSrc, func() supervisor.Source {
		return newSensorSource(sensor.KindGPS, gpsFactory, cfg, nil)
	}, cfg.GetSilenceThresholdGPS(), false)
	o.gyroWatched = o.sup.Watch("gyro", gyroSrc, func() supervisor.Source {
		return newSensorSource(sensor.KindGyro, gyroFactory, cfg, nil)
	}, cfg.GetSilenceThresholdGyro(), false)

	o.accelDisp = dispatch.New(watchedPoller{o.accelWatched}, cfg)
	o.gpsDisp = dispatch.New(watchedPoller{o.gpsWatched}, cfg)
	o.gyroDisp = dispatch.New(watchedPoller{o.gyroWatched}, cfg)

	return o, nil
}

// filterInlets is the set of three per-sensor inlets one filter worker
// selects across.
type filterInlets struct {
	gps   *dispatch.Inlet
	accel *dispatch.Inlet
	gyro  *dispatch.Inlet
}

// Run wires every inlet, launches every long-running component, and blocks
// until ctx is cancelled (or, if MaxDuration was set, until it elapses or a
// fatal source loss is signalled), then drives shutdown in order: stop the
// sensor sources first so no more data arrives, wait for every consumer
// goroutine to drain its inlets, flush buffered samples and pending
// incidents, write the final session summary and GPX export, close the
// cache, and remove the live status file.
func (o *Orchestrator) Run(parent context.Context) error {
	ctx := parent
	var cancel context.CancelFunc
	if o.maxDur > 0 {
		ctx, cancel = context.WithTimeout(parent, o.maxDur)
	} else {
		ctx, cancel = context.WithCancel(parent)
	}
	defer cancel()

	compGPS := o.gpsDisp.AddInlet("complementary", o.cfg.GetInletCapacityGPS())
	ekfGPS := o.gpsDisp.AddInlet("ekf13", o.cfg.GetInletCapacityGPS())
	esekfGPS := o.gpsDisp.AddInlet("es_ekf", o.cfg.GetInletCapacityGPS())
	auxGPS := o.gpsDisp.AddInlet("aux", o.cfg.GetInletCapacityGPS())

	compAccel := o.accelDisp.AddInlet("complementary", o.cfg.GetInletCapacityAccel())
	ekfAccel := o.accelDisp.AddInlet("ekf13", o.cfg.GetInletCapacityAccel())
	esekfAccel := o.accelDisp.AddInlet("es_ekf", o.cfg.GetInletCapacityAccel())
	auxAccel := o.accelDisp.AddInlet("aux", o.cfg.GetInletCapacityAccel())

	compGyro := o.gyroDisp.AddInlet("complementary", o.cfg.GetInletCapacityGyro())
	ekfGyro := o.gyroDisp.AddInlet("ekf13", o.cfg.GetInletCapacityGyro())
	esekfGyro := o.gyroDisp.AddInlet("es_ekf", o.cfg.GetInletCapacityGyro())
	auxGyro := o.gyroDisp.AddInlet("aux", o.cfg.GetInletCapacityGyro())

	var wg sync.WaitGroup

	wg.Add(1)
	go func() { defer wg.Done(); o.sup.Run(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); o.gpsDisp.Run(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); o.accelDisp.Run(ctx) }()
	wg.Add(1)
	go func() { defer wg.Done(); o.gyroDisp.Run(ctx) }()

	wg.Add(1)
	go o.runComplementaryWorker(ctx, &wg, filterInlets{compGPS, compAccel, compGyro})
	wg.Add(1)
	go o.runEKF13Worker(ctx, &wg, filterInlets{ekfGPS, ekfAccel, ekfGyro})
	wg.Add(1)
	go o.runESEKF8Worker(ctx, &wg, filterInlets{esekfGPS, esekfAccel, esekfGyro})
	wg.Add(1)
	go o.runAuxWorker(ctx, &wg, filterInlets{auxGPS, auxAccel, auxGyro})

	wg.Add(1)
	go o.runTicker(ctx, &wg, cancel)

	<-ctx.Done()
	monitoring.Diagf("orchestrator: stop signalled, beginning ordered shutdown")

	stopSource(o.gpsWatched.Current())
	stopSource(o.accelWatched.Current())
	stopSource(o.gyroWatched.Current())

	wg.Wait()

	o.flushBuffers()
	o.incidents.Flush(nowEpoch())

	summary := o.buildFinalSummary()
	if err := session.WriteFinal(filepath.Join(o.sessionDir, "summary.json.gz"), summary); err != nil {
		monitoring.Opsf("orchestrator: write final summary: %v", err)
	}
	// Trajectory timestamps are already Unix seconds, so the GPX epoch is
	// the Unix epoch itself.
	if err := gpx.Write(filepath.Join(o.sessionDir, "session.gpx"), time.Unix(0, 0), summary.Trajectories); err != nil {
		monitoring.Opsf("orchestrator: write gpx export: %v", err)
	}
	if err := o.cache.Close(); err != nil {
		monitoring.Opsf("orchestrator: close cache: %v", err)
	}
	if err := o.statusW.Remove(); err != nil {
		monitoring.Opsf("orchestrator: remove live status: %v", err)
	}

	monitoring.Diagf("orchestrator: graceful shutdown complete")
	return nil
}

func stopSource(s supervisor.Source) {
	if s == nil {
		return
	}
	if err := s.Stop(); err != nil {
		monitoring.Opsf("orchestrator: stop source: %v", err)
	}
}

func nowEpoch() float64 { return float64(time.Now().UnixNano()) / 1e9 }

func (o *Orchestrator) recordTrajectory(f filters.Filter, key telemetry.FilterKey, t float64) {
	pos := f.GetPosition()
	st := f.GetState()
	p := telemetry.TrajectoryPoint{T: t, LatDeg: pos.LatDeg, LonDeg: pos.LonDeg, VelocityMS: st.VelocityMS, Tag: string(key)}
	if err := o.store.AppendTrajectory(key, p); err != nil {
		monitoring.Opsf("orchestrator: telemetry append %s: %v", key, err)
	}
}

func (o *Orchestrator) runComplementaryWorker(ctx context.Context, wg *sync.WaitGroup, in filterInlets) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in.gps.Receive():
			if !ok {
				continue
			}
			o.comp.UpdateGPS(s.GPS.Lat, s.GPS.Lon, float64(s.GPS.SpeedMS), s.GPS.AccuracyM, s.GPS.T)
			o.recordTrajectory(o.comp, telemetry.FilterComplementary, s.GPS.T)
		case s, ok := <-in.accel.Receive():
			if !ok {
				continue
			}
			o.comp.UpdateAccel(s.Accel.MagnitudeMS2, s.Accel.T)
			o.recordTrajectory(o.comp, telemetry.FilterComplementary, s.Accel.T)
		case s, ok := <-in.gyro.Receive():
			if !ok {
				continue
			}
			o.comp.UpdateGyro(s.Gyro.Wx, s.Gyro.Wy, s.Gyro.Wz, s.Gyro.T)
			o.recordTrajectory(o.comp, telemetry.FilterComplementary, s.Gyro.T)
		}
	}
}

func (o *Orchestrator) runEKF13Worker(ctx context.Context, wg *sync.WaitGroup, in filterInlets) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in.gps.Receive():
			if !ok {
				continue
			}
			o.ekf.UpdateGPS(s.GPS.Lat, s.GPS.Lon, float64(s.GPS.SpeedMS), s.GPS.AccuracyM, s.GPS.T)
			o.recordTrajectory(o.ekf, telemetry.FilterEKF13, s.GPS.T)
			diag := o.ekf.Diagnostics()
			o.convergence.Observe(diag.NIS, diag.Rejected)
			if !o.pressure.DropDiagnostics() {
				snap := telemetry.CovarianceSnapshot{T: s.GPS.T, Diag: diag.CovDiag, NIS: diag.NIS, Snapped: diag.Snapped}
				if err := o.store.AppendCovariance(snap); err != nil {
					monitoring.Opsf("orchestrator: covariance append: %v", err)
				}
			}
		case s, ok := <-in.accel.Receive():
			if !ok {
				continue
			}
			o.ekf.UpdateAccel(s.Accel.MagnitudeMS2, s.Accel.T)
			o.recordTrajectory(o.ekf, telemetry.FilterEKF13, s.Accel.T)
		case s, ok := <-in.gyro.Receive():
			if !ok {
				continue
			}
			o.ekf.UpdateGyro(s.Gyro.Wx, s.Gyro.Wy, s.Gyro.Wz, s.Gyro.T)
			o.recordTrajectory(o.ekf, telemetry.FilterEKF13, s.Gyro.T)
		}
	}
}

func (o *Orchestrator) runESEKF8Worker(ctx context.Context, wg *sync.WaitGroup, in filterInlets) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in.gps.Receive():
			if !ok {
				continue
			}
			o.esekf.UpdateGPS(s.GPS.Lat, s.GPS.Lon, float64(s.GPS.SpeedMS), s.GPS.AccuracyM, s.GPS.T)
			o.recordTrajectory(o.esekf, telemetry.FilterESEKF8, s.GPS.T)
		case s, ok := <-in.accel.Receive():
			if !ok {
				continue
			}
			o.esekf.UpdateAccel(s.Accel.MagnitudeMS2, s.Accel.T)
			o.recordTrajectory(o.esekf, telemetry.FilterESEKF8, s.Accel.T)
			if pt := o.esekf.Predict(s.Accel.T); pt != nil {
				dr := telemetry.TrajectoryPoint{T: pt.T, LatDeg: pt.LatDeg, LonDeg: pt.LonDeg, VelocityMS: pt.VelocityMS, Tag: pt.Tag}
				if err := o.store.AppendTrajectory(telemetry.FilterESEKF8DeadReck, dr); err != nil {
					monitoring.Opsf("orchestrator: dead-reckoning append: %v", err)
				}
			}
		case s, ok := <-in.gyro.Receive():
			if !ok {
				continue
			}
			o.esekf.UpdateGyro(s.Gyro.Wx, s.Gyro.Wy, s.Gyro.Wz, s.Gyro.T)
			o.recordTrajectory(o.esekf, telemetry.FilterESEKF8, s.Gyro.T)
		}
	}
}

// runAuxWorker is the fourth consumer on every dispatcher: it records raw
// (unfiltered) GPS fixes, feeds the incident detector, and buffers samples
// for the SQLite cache and the final session summary. It exists
// specifically so incident detection and persistence see every raw sample
// exactly once, independent of which (or how many) fusion filters are
// running.
func (o *Orchestrator) runAuxWorker(ctx context.Context, wg *sync.WaitGroup, in filterInlets) {
	defer wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case s, ok := <-in.gps.Receive():
			if !ok {
				continue
			}
			g := s.GPS
			o.gpsCount.Add(1)
			o.incidents.ObserveGPS(g.T, g.Lat, g.Lon, float64(g.SpeedMS))
			raw := telemetry.TrajectoryPoint{T: g.T, LatDeg: g.Lat, LonDeg: g.Lon, VelocityMS: float64(g.SpeedMS), Tag: "gps_raw"}
			if err := o.store.AppendTrajectory(telemetry.FilterGPSRaw, raw); err != nil {
				monitoring.Opsf("orchestrator: raw gps telemetry append: %v", err)
			}
			o.fixMu.Lock()
			o.lastFix = &status.GPSFix{LatDeg: g.Lat, LonDeg: g.Lon, AccuracyM: g.AccuracyM}
			o.fixMu.Unlock()
			o.bufMu.Lock()
			o.gpsBuf = append(o.gpsBuf, *g)
			o.bufMu.Unlock()
		case s, ok := <-in.accel.Receive():
			if !ok {
				continue
			}
			a := s.Accel
			o.accelCount.Add(1)
			if ev := o.incidents.ObserveAccel(a.T, float64(a.MagnitudeMS2)); ev != nil {
				o.incidentCount.Add(1)
			}
			o.bufMu.Lock()
			o.accelBuf = append(o.accelBuf, *a)
			o.bufMu.Unlock()
		case s, ok := <-in.gyro.Receive():
			if !ok {
				continue
			}
			gy := s.Gyro
			o.gyroCount.Add(1)
			if ev := o.incidents.ObserveGyro(gy.T, float64(gy.Wz)); ev != nil {
				o.incidentCount.Add(1)
			}
			o.bufMu.Lock()
			o.gyroBuf = append(o.gyroBuf, *gy)
			o.bufMu.Unlock()
		}
	}
}

// runTicker drives the periodic, non-data-driven work: live status
// publication, autosave flushes to SQLite, and the supervisor's
// fatal-source check (an accel loss that exhausted its restart budget ends
// the session rather than running headless forever).
func (o *Orchestrator) runTicker(ctx context.Context, wg *sync.WaitGroup, cancel context.CancelFunc) {
	defer wg.Done()

	statusTicker := time.NewTicker(o.cfg.GetLiveStatusInterval())
	defer statusTicker.Stop()
	autosaveTicker := time.NewTicker(o.cfg.GetAutosaveInterval())
	defer autosaveTicker.Stop()
	fatalTicker := time.NewTicker(o.cfg.GetSupervisorTickInterval())
	defer fatalTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-statusTicker.C:
			o.writeStatus()
			o.evaluateMemoryPressure(autosaveTicker)
		case <-autosaveTicker.C:
			o.flushBuffers()
		case <-fatalTicker.C:
			if o.sup.FatalTriggered() {
				monitoring.Opsf("orchestrator: accel source exhausted restart attempts, ending session")
				cancel()
			}
		}
	}
}

func (o *Orchestrator) writeStatus() {
	now := time.Now()
	st := o.ekf.GetState()

	o.fixMu.Lock()
	fix := o.lastFix
	o.fixMu.Unlock()

	doc := &status.Document{
		SessionID:       o.sessionID,
		ElapsedSeconds:  now.Sub(o.startedAt).Seconds(),
		LastUpdateEpoch: float64(now.UnixNano()) / 1e9,
		GPSCount:        o.gpsCount.Load(),
		AccelCount:      o.accelCount.Load(),
		GyroCount:       o.gyroCount.Load(),
		LatestGPS:       fix,
		VelocityMS:      st.VelocityMS,
		HeadingRad:      st.HeadingRad,
		DistanceM:       st.DistanceM,
		RSSMB:           o.rss.Sample(),
		RestartCounts: map[string]int{
			"gps":   o.gpsWatched.RestartCount(),
			"accel": o.accelWatched.RestartCount(),
			"gyro":  o.gyroWatched.RestartCount(),
		},
		SampleRatesHz: map[string]float64{
			"gps":   o.gpsRate.Observe(o.gpsCount.Load(), now),
			"accel": o.accelRate.Observe(o.accelCount.Load(), now),
			"gyro":  o.gyroRate.Observe(o.gyroCount.Load(), now),
		},
		SensorSilent: map[string]bool{
			"gps":   health.SilenceState(o.gpsWatched.Current().LastSampleTime(), now, o.cfg.GetSilenceThresholdGPS()),
			"accel": health.SilenceState(o.accelWatched.Current().LastSampleTime(), now, o.cfg.GetSilenceThresholdAccel()),
			"gyro":  health.SilenceState(o.gyroWatched.Current().LastSampleTime(), now, o.cfg.GetSilenceThresholdGyro()),
		},
	}
	if err := o.statusW.Write(doc); err != nil {
		monitoring.Opsf("orchestrator: write live status: %v", err)
	}
	o.incidents.Flush(doc.LastUpdateEpoch)

	if accel, ok := o.accelWatched.Current().(*sensor.Source); ok {
		accel.ObserveStationary(st.Stationary, o.cfg.GetLiveStatusInterval().Seconds())
	}
}

// evaluateMemoryPressure re-checks the RSS budget fraction and, on a
// crossing, applies or relieves the out-of-memory backoff (spec.md §7):
// a shorter autosave interval so buffers flush to disk sooner, and a
// smaller trajectory ring capacity so each in-memory buffer spills more
// often.
func (o *Orchestrator) evaluateMemoryPressure(autosaveTicker *time.Ticker) {
	fraction := o.rss.BudgetFraction(o.rss.Sample())
	entered, left := o.pressure.Evaluate(fraction, o.cfg.GetOOMBackoffRSSFraction())
	if !entered && !left {
		return
	}

	autosaveTicker.Reset(o.pressure.AutosaveInterval())
	if err := o.store.SetTrajectoryCapacity(o.pressure.TrajectoryCapacity()); err != nil {
		monitoring.Opsf("orchestrator: memory pressure: resize trajectory capacity: %v", err)
	}
	if entered {
		monitoring.Opsf("orchestrator: memory pressure: RSS at %.0f%% of budget, backing off autosave interval and trajectory capacity", fraction*100)
	} else {
		monitoring.Diagf("orchestrator: memory pressure relieved, restoring autosave interval and trajectory capacity")
	}
}

// flushBuffers appends every sample accumulated since the previous flush to
// the SQLite cache, then writes a partial (metrics-only) session summary as
// a crash-recovery aid; the full reconstruction with trajectories and
// sample slices only happens once, at final shutdown.
func (o *Orchestrator) flushBuffers() {
	o.bufMu.Lock()
	gpsBatch, accelBatch, gyroBatch := o.gpsBuf, o.accelBuf, o.gyroBuf
	o.gpsBuf, o.accelBuf, o.gyroBuf = nil, nil, nil
	o.bufMu.Unlock()

	if len(gpsBatch) > 0 {
		if err := o.cache.AppendGPS(gpsBatch); err != nil {
			monitoring.Opsf("orchestrator: autosave gps: %v", err)
		}
	}
	if len(accelBatch) > 0 {
		if err := o.cache.AppendAccel(accelBatch); err != nil {
			monitoring.Opsf("orchestrator: autosave accel: %v", err)
		}
	}
	if len(gyroBatch) > 0 {
		if err := o.cache.AppendGyro(gyroBatch); err != nil {
			monitoring.Opsf("orchestrator: autosave gyro: %v", err)
		}
	}

	partial := &session.Summary{
		SessionID: o.sessionID,
		StartedAt: o.startedAt.UTC().Format(time.RFC3339),
		Metrics:   o.buildMetrics(),
	}
	partialPath := filepath.Join(o.sessionDir, "partial_summary.json.gz")
	if err := session.WriteFinal(partialPath, partial); err != nil {
		monitoring.Opsf("orchestrator: write partial summary: %v", err)
	}
}

func (o *Orchestrator) buildMetrics() session.Metrics {
	return session.Metrics{
		DurationSeconds: time.Since(o.startedAt).Seconds(),
		GPSCount:        int(o.gpsCount.Load()),
		AccelCount:      int(o.accelCount.Load()),
		GyroCount:       int(o.gyroCount.Load()),
		IncidentCount:   int(o.incidentCount.Load()),
		RestartCount:    o.gpsWatched.RestartCount() + o.accelWatched.RestartCount() + o.gyroWatched.RestartCount(),
	}
}

func buildFilterSummary(name string, f filters.Filter) session.FilterSummary {
	st := f.GetState()
	pos := f.GetPosition()
	return session.FilterSummary{
		Name:       name,
		VelocityMS: st.VelocityMS,
		DistanceM:  st.DistanceM,
		LatDeg:     pos.LatDeg,
		LonDeg:     pos.LonDeg,
		UncertainM: pos.UncertainM,
	}
}

func (o *Orchestrator) buildFinalSummary() *session.Summary {
	trajectories := make(map[telemetry.FilterKey][]telemetry.TrajectoryPoint)
	for _, key := range []telemetry.FilterKey{
		telemetry.FilterGPSRaw, telemetry.FilterComplementary, telemetry.FilterEKF13,
		telemetry.FilterESEKF8, telemetry.FilterESEKF8DeadReck,
	} {
		pts, err := o.store.Trajectory(key)
		if err != nil {
			monitoring.Opsf("orchestrator: read trajectory %s for final summary: %v", key, err)
			continue
		}
		trajectories[key] = pts
	}

	gpsAll, err := o.cache.AllGPS()
	if err != nil {
		monitoring.Opsf("orchestrator: read gps samples for final summary: %v", err)
	}
	accelAll, err := o.cache.AllAccel()
	if err != nil {
		monitoring.Opsf("orchestrator: read accel samples for final summary: %v", err)
	}
	gyroAll, err := o.cache.AllGyro()
	if err != nil {
		monitoring.Opsf("orchestrator: read gyro samples for final summary: %v", err)
	}
	cfgJSON, err := json.Marshal(o.cfg)
	if err != nil {
		monitoring.Opsf("orchestrator: encode config for final summary: %v", err)
	}

	return &session.Summary{
		SessionID:    o.sessionID,
		StartedAt:    o.startedAt.UTC().Format(time.RFC3339),
		EndedAt:      time.Now().UTC().Format(time.RFC3339),
		Config:       cfgJSON,
		Metrics:      o.buildMetrics(),
		Filters: []session.FilterSummary{
			buildFilterSummary("complementary", o.comp),
			buildFilterSummary("ekf13", o.ekf),
			buildFilterSummary("es_ekf", o.esekf),
		},
		GPSSamples:   gpsAll,
		AccelSamples: accelAll,
		GyroSamples:  gyroAll,
		Trajectories: trajectories,
	}
}
