package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// TestLoadDefaultsFile verifies that the canonical defaults file loads and
// every field comes back populated and structurally valid.
func TestLoadDefaultsFile(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	if cfg.ComplementaryWeightGPS == nil {
		t.Fatal("ComplementaryWeightGPS must be set")
	}
	if cfg.NISRejectionThreshold == nil {
		t.Fatal("NISRejectionThreshold must be set")
	}
	if cfg.SilenceThresholdAccel == nil {
		t.Fatal("SilenceThresholdAccel must be set")
	}

	if *cfg.ComplementaryWeightGPS < 0 || *cfg.ComplementaryWeightGPS > 1 {
		t.Errorf("ComplementaryWeightGPS must be in [0,1], got %f", *cfg.ComplementaryWeightGPS)
	}
	if _, err := time.ParseDuration(*cfg.SilenceThresholdAccel); err != nil {
		t.Errorf("SilenceThresholdAccel must be a valid duration, got %q: %v", *cfg.SilenceThresholdAccel, err)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must pass Validate(): %v", err)
	}
	if err := cfg.ValidateComplete(); err != nil {
		t.Errorf("defaults must pass ValidateComplete(): %v", err)
	}
}

func TestEmptyTuningConfig(t *testing.T) {
	cfg := EmptyTuningConfig()

	if cfg.ComplementaryWeightGPS != nil {
		t.Error("expected ComplementaryWeightGPS to be nil")
	}
	if cfg.NISRejectionThreshold != nil {
		t.Error("expected NISRejectionThreshold to be nil")
	}

	if err := cfg.ValidateComplete(); err == nil {
		t.Error("expected ValidateComplete to fail on empty config")
	}
	// An empty config is still structurally valid — there is just nothing
	// to range-check.
	if err := cfg.Validate(); err != nil {
		t.Errorf("empty config should pass Validate(): %v", err)
	}
}

// TestDefaultsFileComplete spot-checks representative fields from each
// component group rather than all 71, so the test is not a mechanical
// transcription of the defaults file.
func TestDefaultsFileComplete(t *testing.T) {
	cfg := MustLoadDefaultConfig()

	for _, f := range []struct {
		name string
		set  bool
	}{
		{"CalibrationMinSamples", cfg.CalibrationMinSamples != nil},
		{"ComplementaryWeightAccel", cfg.ComplementaryWeightAccel != nil},
		{"EKF13ProcessNoiseAccel", cfg.EKF13ProcessNoiseAccel != nil},
		{"ESEKF8MeasurementNoiseGPS", cfg.ESEKF8MeasurementNoiseGPS != nil},
		{"RawQueueCapacity", cfg.RawQueueCapacity != nil},
		{"InletCapacityAccel", cfg.InletCapacityAccel != nil},
		{"TrajectoryBufferCapacity", cfg.TrajectoryBufferCapacity != nil},
		{"HardBrakingThresholdG", cfg.HardBrakingThresholdG != nil},
		{"AutosaveInterval", cfg.AutosaveInterval != nil},
		{"MaxRSSMB", cfg.MaxRSSMB != nil},
	} {
		if !f.set {
			t.Errorf("%s should have a default value", f.name)
		}
	}

	if *cfg.MotionProfileWindowSize != 30 {
		t.Errorf("MotionProfileWindowSize = %v, want 30 (spec.md §4.7)", *cfg.MotionProfileWindowSize)
	}
	if *cfg.NISRejectionThreshold < 9.0 || *cfg.NISRejectionThreshold > 9.5 {
		t.Errorf("NISRejectionThreshold = %v, want ~9.21 (chi-sq df=2 99th pct)", *cfg.NISRejectionThreshold)
	}
	if *cfg.SnapDivergenceMeters != 30.0 {
		t.Errorf("SnapDivergenceMeters = %v, want 30.0 (spec.md §4.6)", *cfg.SnapDivergenceMeters)
	}
	if *cfg.MaxRestartAttempts != 60 {
		t.Errorf("MaxRestartAttempts = %v, want 60 (spec.md §4.2)", *cfg.MaxRestartAttempts)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must pass Validate(): %v", err)
	}
	if err := cfg.ValidateComplete(); err != nil {
		t.Errorf("defaults must pass ValidateComplete(): %v", err)
	}
}

func TestLoadTuningConfigMissing(t *testing.T) {
	_, err := LoadTuningConfig("/nonexistent/path/to/config.json")
	if err == nil {
		t.Error("expected error when loading missing file, got nil")
	}
}

func TestLoadTuningConfigInvalid(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "invalid_config.json")

	invalidJSON := `{
  "complementary_weight_gps": "not-a-number"
`
	if err := os.WriteFile(configPath, []byte(invalidJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("expected error when loading invalid JSON, got nil")
	}
}

func TestLoadTuningConfigPartial(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "partial.json")

	partialJSON := `{
  "complementary_weight_gps": 0.8
}`
	if err := os.WriteFile(configPath, []byte(partialJSON), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Fatal("expected error for partial config (missing required keys), got nil")
	}
	if !strings.Contains(err.Error(), "missing required") {
		t.Errorf("expected 'missing required' in error, got: %v", err)
	}
}

func TestLoadTuningConfigRejectsNonJSON(t *testing.T) {
	_, err := LoadTuningConfig("/some/path/config.yaml")
	if err == nil {
		t.Error("expected error for non-.json extension, got nil")
	}
}

func TestLoadTuningConfigRejectsLargeFile(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "large.json")

	largeData := make([]byte, 2*1024*1024)
	if err := os.WriteFile(configPath, largeData, 0644); err != nil {
		t.Fatalf("failed to write large file: %v", err)
	}

	_, err := LoadTuningConfig(configPath)
	if err == nil {
		t.Error("expected error for file size > 1MB, got nil")
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *TuningConfig
		wantErr bool
	}{
		{
			name:    "valid config from defaults file",
			cfg:     MustLoadDefaultConfig(),
			wantErr: false,
		},
		{
			name:    "empty config is valid",
			cfg:     &TuningConfig{},
			wantErr: false,
		},
		{
			name: "weight out of range (too high)",
			cfg: &TuningConfig{
				ComplementaryWeightGPS: ptrFloat64(1.5),
			},
			wantErr: true,
		},
		{
			name: "weight out of range (negative)",
			cfg: &TuningConfig{
				ComplementaryWeightAccel: ptrFloat64(-0.2),
			},
			wantErr: true,
		},
		{
			name: "invalid duration",
			cfg: &TuningConfig{
				RestartCooldown: ptrString("not-a-duration"),
			},
			wantErr: true,
		},
		{
			name: "negative max restart attempts",
			cfg: &TuningConfig{
				MaxRestartAttempts: ptrInt(-1),
			},
			wantErr: true,
		},
		{
			name: "gravity min above max",
			cfg: &TuningConfig{
				CalibrationGravityMin: ptrFloat64(11.0),
				CalibrationGravityMax: ptrFloat64(9.0),
			},
			wantErr: true,
		},
		{
			name: "oom fraction out of range",
			cfg: &TuningConfig{
				OOMBackoffRSSFraction: ptrFloat64(1.5),
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestGetterDefaults(t *testing.T) {
	cfg := &TuningConfig{}

	if got := cfg.GetComplementaryWeightGPS(); got != 0.7 {
		t.Errorf("GetComplementaryWeightGPS() = %v, want 0.7", got)
	}
	if got := cfg.GetComplementaryWeightAccel(); got != 0.3 {
		t.Errorf("GetComplementaryWeightAccel() = %v, want 0.3", got)
	}
	if got := cfg.GetStationaryAccelThreshold(); got != 0.2 {
		t.Errorf("GetStationaryAccelThreshold() = %v, want 0.2", got)
	}
	if got := cfg.GetSilenceThresholdAccel(); got != 5*time.Second {
		t.Errorf("GetSilenceThresholdAccel() = %v, want 5s", got)
	}
	if got := cfg.GetSilenceThresholdGPS(); got != 30*time.Second {
		t.Errorf("GetSilenceThresholdGPS() = %v, want 30s", got)
	}
	if got := cfg.GetRestartCooldown(); got != 10*time.Second {
		t.Errorf("GetRestartCooldown() = %v, want 10s", got)
	}
	if got := cfg.GetMaxRestartAttempts(); got != 60 {
		t.Errorf("GetMaxRestartAttempts() = %v, want 60", got)
	}
	if got := cfg.GetNISRejectionThreshold(); got != 9.21 {
		t.Errorf("GetNISRejectionThreshold() = %v, want 9.21", got)
	}
	if got := cfg.GetSnapDivergenceMeters(); got != 30.0 {
		t.Errorf("GetSnapDivergenceMeters() = %v, want 30.0", got)
	}
	if got := cfg.GetMotionProfileSpeedThreshold(); got != 2.0 {
		t.Errorf("GetMotionProfileSpeedThreshold() = %v, want 2.0", got)
	}
	if got := cfg.GetEmitIntervalDriving(); got != time.Second {
		t.Errorf("GetEmitIntervalDriving() = %v, want 1s", got)
	}
	if got := cfg.GetEmitIntervalPedestrian(); got != 300*time.Millisecond {
		t.Errorf("GetEmitIntervalPedestrian() = %v, want 300ms", got)
	}
	if got := cfg.GetDeadReckoningMinSpeed(); got != 0.5 {
		t.Errorf("GetDeadReckoningMinSpeed() = %v, want 0.5", got)
	}
	if got := cfg.GetTrajectoryBufferCapacity(); got != 5000 {
		t.Errorf("GetTrajectoryBufferCapacity() = %v, want 5000", got)
	}
	if got := cfg.GetCovarianceBufferCapacity(); got != 2000 {
		t.Errorf("GetCovarianceBufferCapacity() = %v, want 2000", got)
	}
	if got := cfg.GetHardBrakingThresholdG(); got != 0.8 {
		t.Errorf("GetHardBrakingThresholdG() = %v, want 0.8", got)
	}
	if got := cfg.GetImpactThresholdG(); got != 1.5 {
		t.Errorf("GetImpactThresholdG() = %v, want 1.5", got)
	}
	if got := cfg.GetIncidentCooldown(); got != 5*time.Second {
		t.Errorf("GetIncidentCooldown() = %v, want 5s", got)
	}
	if got := cfg.GetLiveStatusInterval(); got != 2*time.Second {
		t.Errorf("GetLiveStatusInterval() = %v, want 2s", got)
	}
	if got := cfg.GetLiveStatusStaleAfter(); got != 10*time.Second {
		t.Errorf("GetLiveStatusStaleAfter() = %v, want 10s", got)
	}
	if got := cfg.GetDynamicRecalEnabled(); got != false {
		t.Errorf("GetDynamicRecalEnabled() = %v, want false (opt-in)", got)
	}
}

func TestLoadDefaultConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.defaults.json")
	if err != nil {
		t.Fatalf("failed to load defaults: %v", err)
	}
	if cfg.GetComplementaryWeightGPS() < 0 || cfg.GetComplementaryWeightGPS() > 1 {
		t.Errorf("ComplementaryWeightGPS out of range [0,1]: %f", cfg.GetComplementaryWeightGPS())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults must pass Validate(): %v", err)
	}
	if err := cfg.ValidateComplete(); err != nil {
		t.Errorf("defaults must pass ValidateComplete(): %v", err)
	}
}

func TestLoadExampleConfigFile(t *testing.T) {
	cfg, err := LoadTuningConfig("../../config/tuning.example.json")
	if err != nil {
		t.Fatalf("failed to load example: %v", err)
	}
	if cfg.GetMotionProfileSpeedThreshold() != 1.0 {
		t.Errorf("expected pedestrian-tuned 1.0, got %f", cfg.GetMotionProfileSpeedThreshold())
	}
	if !cfg.GetDynamicRecalEnabled() {
		t.Error("expected example file to opt into dynamic recalibration")
	}
}
