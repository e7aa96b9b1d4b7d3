package main

import (
	"context"
	"flag"
	"log"
	"os/signal"
	"strings"
	"syscall"

	"github.com/banshee-data/motiontrack/internal/config"
	"github.com/banshee-data/motiontrack/internal/monitoring"
	"github.com/banshee-data/motiontrack/internal/orchestrator"
)

var (
	configFile  = flag.String("config", config.DefaultConfigPath, "Path to JSON tuning configuration file")
	sessionDir  = flag.String("session-dir", "sessions/current", "Directory for this session's cache, chunks, incidents, and final summary")
	statusPath  = flag.String("status-path", "sessions/current/live_status.json", "Path to the published live status document")
	maxDuration = flag.Duration("max-duration", 0, "Stop the session automatically after this long (0 disables the limit)")
	gpsCmd      = flag.String("gps-source", "", "GPS source child process command (space-separated argv)")
	accelCmd    = flag.String("accel-source", "", "Accelerometer source child process command (space-separated argv)")
	gyroCmd     = flag.String("gyro-source", "", "Gyroscope source child process command (space-separated argv)")
	verbose     = flag.Bool("verbose", false, "Enable diagnostic-level logging")
)

func main() {
	flag.Parse()

	monitoring.SetLogger(log.Printf)
	monitoring.SetTraceEnabled(*verbose)

	if *gpsCmd == "" || *accelCmd == "" || *gyroCmd == "" {
		log.Fatal("gps-source, accel-source, and gyro-source are all required")
	}

	cfg, err := config.LoadTuningConfig(*configFile)
	if err != nil {
		log.Fatalf("failed to load tuning config from %s: %v", *configFile, err)
	}

	opts := orchestrator.Options{
		Cfg: cfg,
		Commands: orchestrator.SourceCommands{
			GPS:   parseCommand(*gpsCmd),
			Accel: parseCommand(*accelCmd),
			Gyro:  parseCommand(*gyroCmd),
		},
		SessionDir:  *sessionDir,
		StatusPath:  *statusPath,
		MaxDuration: *maxDuration,
	}

	orch, err := orchestrator.New(opts)
	if err != nil {
		log.Fatalf("failed to start session: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := orch.Run(ctx); err != nil {
		log.Fatalf("session ended with error: %v", err)
	}
}

// parseCommand splits a space-separated command string into a
// SourceCommand. Sensor source binaries take no quoted arguments, so a
// plain field split is sufficient (no shell parsing is invoked).
func parseCommand(s string) orchestrator.SourceCommand {
	fields := strings.Fields(s)
	if len(fields) == 0 {
		return orchestrator.SourceCommand{}
	}
	return orchestrator.SourceCommand{Path: fields[0], Args: fields[1:]}
}
