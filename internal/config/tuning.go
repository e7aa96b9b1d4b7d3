package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig holds every numeric threshold the sensor pipeline, the three
// filters, the supervisor, and persistence consult at runtime. Fields are
// optional pointers so an unset field can be told apart from a zero value;
// Get* accessors supply the default when a field is nil, and
// ValidateComplete reports every nil field. Unlike the lidar tuning file this one is loaded once at
// startup and is not exposed over HTTP.
type TuningConfig struct {
	// Calibration (§4.5)
	CalibrationMinSamples     *int     `json:"calibration_min_samples,omitempty"`
	CalibrationMaxSamples     *int     `json:"calibration_max_samples,omitempty"`
	CalibrationGravityMin     *float64 `json:"calibration_gravity_min,omitempty"`
	CalibrationGravityMax     *float64 `json:"calibration_gravity_max,omitempty"`
	CalibrationDefaultGravity *float64 `json:"calibration_default_gravity,omitempty"`
	DynamicRecalEnabled       *bool    `json:"dynamic_recalibration_enabled,omitempty"`
	DynamicRecalStationarySec *float64 `json:"dynamic_recalibration_stationary_seconds,omitempty"`
	DynamicRecalGravityDeltaWarn *float64 `json:"dynamic_recalibration_gravity_delta_warn,omitempty"`

	// Complementary filter (§4.4)
	ComplementaryWeightGPS      *float64 `json:"complementary_weight_gps,omitempty"`
	ComplementaryWeightAccel    *float64 `json:"complementary_weight_accel,omitempty"`
	StationaryAccelThreshold    *float64 `json:"stationary_accel_threshold,omitempty"`
	StationaryDistanceFloorM    *float64 `json:"stationary_distance_floor_m,omitempty"`
	StationaryAccuracyMultiple  *float64 `json:"stationary_accuracy_multiple,omitempty"`
	StationarySpeedThreshold    *float64 `json:"stationary_speed_threshold,omitempty"`
	DefaultAccuracyNoiseFloorM  *float64 `json:"default_accuracy_noise_floor_m,omitempty"`
	ComplementaryGPSStaleAfter  *string  `json:"complementary_gps_stale_after,omitempty"`

	// EKF-13D process/measurement noise (§4.6)
	EKF13ProcessNoiseAccel *float64 `json:"ekf13_process_noise_accel,omitempty"`
	EKF13ProcessNoiseBias  *float64 `json:"ekf13_process_noise_bias,omitempty"`
	EKF13ProcessNoiseGyro  *float64 `json:"ekf13_process_noise_gyro,omitempty"`
	EKF13MeasurementNoiseGPS      *float64 `json:"ekf13_measurement_noise_gps,omitempty"`
	EKF13MeasurementNoiseAccelMag *float64 `json:"ekf13_measurement_noise_accel_mag,omitempty"`
	EKF13MeasurementNoiseGyro     *float64 `json:"ekf13_measurement_noise_gyro,omitempty"`
	NISRejectionThreshold  *float64 `json:"nis_rejection_threshold,omitempty"`
	SnapDivergenceMeters   *float64 `json:"snap_divergence_meters,omitempty"`
	InnovationConditionMax *float64 `json:"innovation_condition_max,omitempty"`

	// ES-EKF-8D (§4.7)
	ESEKF8ProcessNoiseAccel       *float64 `json:"esekf8_process_noise_accel,omitempty"`
	ESEKF8ProcessNoiseHeadingRate *float64 `json:"esekf8_process_noise_heading_rate,omitempty"`
	ESEKF8MeasurementNoiseGPS      *float64 `json:"esekf8_measurement_noise_gps,omitempty"`
	ESEKF8MeasurementNoiseAccelMag *float64 `json:"esekf8_measurement_noise_accel_mag,omitempty"`
	ESEKF8MeasurementNoiseGyro     *float64 `json:"esekf8_measurement_noise_gyro,omitempty"`
	MotionProfileSpeedThreshold *float64 `json:"motion_profile_speed_threshold,omitempty"`
	MotionProfileWindowSize     *int     `json:"motion_profile_window_size,omitempty"`
	EmitIntervalDriving    *string  `json:"emit_interval_driving,omitempty"`
	EmitIntervalPedestrian *string  `json:"emit_interval_pedestrian,omitempty"`
	DeadReckoningMinSpeed  *float64 `json:"dead_reckoning_min_speed,omitempty"`
	DeadReckoningPredictInterval *string `json:"dead_reckoning_predict_interval,omitempty"`

	// Sensor source & liveness supervisor (§4.1, §4.2)
	RawQueueCapacity       *int    `json:"raw_queue_capacity,omitempty"`
	ChildWarmupTimeout     *string `json:"child_warmup_timeout,omitempty"`
	ChildStopGrace         *string `json:"child_stop_grace,omitempty"`
	SilenceThresholdAccel  *string `json:"silence_threshold_accel,omitempty"`
	SilenceThresholdGPS    *string `json:"silence_threshold_gps,omitempty"`
	SilenceThresholdGyro   *string `json:"silence_threshold_gyro,omitempty"`
	SupervisorTickInterval *string `json:"supervisor_tick_interval,omitempty"`
	RestartCooldown        *string `json:"restart_cooldown,omitempty"`
	RestartValidateTimeout *string `json:"restart_validate_timeout,omitempty"`
	RestartRetryExtraTimeout *string `json:"restart_retry_extra_timeout,omitempty"`
	ResidualProcessPollInterval *string `json:"residual_process_poll_interval,omitempty"`
	ResidualProcessPollTimeout  *string `json:"residual_process_poll_timeout,omitempty"`
	MaxRestartAttempts     *int    `json:"max_restart_attempts,omitempty"`

	// Fan-out dispatcher (§4.8)
	InletCapacityGPS   *int `json:"inlet_capacity_gps,omitempty"`
	InletCapacityAccel *int `json:"inlet_capacity_accel,omitempty"`
	InletCapacityGyro  *int `json:"inlet_capacity_gyro,omitempty"`
	DropRateWarnThreshold *float64 `json:"drop_rate_warn_threshold,omitempty"`
	DropRateWarnWindow    *string  `json:"drop_rate_warn_window,omitempty"`

	// Trajectory / covariance ring buffers (§4.9)
	TrajectoryBufferCapacity *int `json:"trajectory_buffer_capacity,omitempty"`
	CovarianceBufferCapacity *int `json:"covariance_buffer_capacity,omitempty"`

	// Incident detector (§4.10)
	IncidentGPSWindow        *string  `json:"incident_gps_window,omitempty"`
	IncidentAccelWindowSize  *int     `json:"incident_accel_window_size,omitempty"`
	IncidentGyroWindowSize   *int     `json:"incident_gyro_window_size,omitempty"`
	HardBrakingThresholdG    *float64 `json:"hard_braking_threshold_g,omitempty"`
	ImpactThresholdG         *float64 `json:"impact_threshold_g,omitempty"`
	SwervingThresholdRadS    *float64 `json:"swerving_threshold_rad_s,omitempty"`
	IncidentMinSpeed         *float64 `json:"incident_min_speed,omitempty"`
	IncidentCooldown        *string  `json:"incident_cooldown,omitempty"`
	HeadingReorientThreshold *float64 `json:"heading_reorient_threshold,omitempty"`

	// Persistence / autosave / live status (§4.11, §4.12)
	AutosaveInterval   *string `json:"autosave_interval,omitempty"`
	LiveStatusInterval *string `json:"live_status_interval,omitempty"`
	LiveStatusStaleAfter *string `json:"live_status_stale_after,omitempty"`

	// Resource pressure (§5, §7)
	MaxRSSMB                  *float64 `json:"max_rss_mb,omitempty"`
	OOMBackoffRSSFraction     *float64 `json:"oom_backoff_rss_fraction,omitempty"`
	VelocityResetAfterSave    *bool    `json:"velocity_reset_after_save,omitempty"`
}

func ptrFloat64(v float64) *float64 { return &v }
func ptrBool(v bool) *bool          { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields nil. Use
// LoadTuningConfig to populate one from a defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// LoadTuningConfig loads a TuningConfig from a JSON file. The file must have
// a .json extension and be under 1MB. Every key named in
// config/tuning.defaults.json must be present; partial overlays are
// rejected so a typo in a field name cannot silently fall back to a
// built-in default at runtime.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}
	if missing := missingRequiredKeys(raw); len(missing) > 0 {
		return nil, fmt.Errorf("missing required tuning keys: %v", missing)
	}

	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// requiredTuningKeys lists every JSON key a complete tuning file must carry.
// tuning.defaults.json is the canonical example; this list is kept in sync
// with the struct tags above.
var requiredTuningKeys = []string{
	"calibration_min_samples", "calibration_max_samples", "calibration_gravity_min",
	"calibration_gravity_max", "calibration_default_gravity", "dynamic_recalibration_enabled",
	"dynamic_recalibration_stationary_seconds", "dynamic_recalibration_gravity_delta_warn",
	"complementary_weight_gps", "complementary_weight_accel", "stationary_accel_threshold",
	"stationary_distance_floor_m", "stationary_accuracy_multiple", "stationary_speed_threshold",
	"default_accuracy_noise_floor_m", "complementary_gps_stale_after",
	"ekf13_process_noise_accel", "ekf13_process_noise_bias", "ekf13_process_noise_gyro",
	"ekf13_measurement_noise_gps", "ekf13_measurement_noise_accel_mag", "ekf13_measurement_noise_gyro",
	"nis_rejection_threshold", "snap_divergence_meters", "innovation_condition_max",
	"esekf8_process_noise_accel", "esekf8_process_noise_heading_rate",
	"esekf8_measurement_noise_gps", "esekf8_measurement_noise_accel_mag", "esekf8_measurement_noise_gyro",
	"motion_profile_speed_threshold", "motion_profile_window_size",
	"emit_interval_driving", "emit_interval_pedestrian", "dead_reckoning_min_speed",
	"dead_reckoning_predict_interval",
	"raw_queue_capacity", "child_warmup_timeout", "child_stop_grace",
	"silence_threshold_accel", "silence_threshold_gps", "silence_threshold_gyro",
	"supervisor_tick_interval", "restart_cooldown", "restart_validate_timeout",
	"restart_retry_extra_timeout", "residual_process_poll_interval", "residual_process_poll_timeout",
	"max_restart_attempts",
	"inlet_capacity_gps", "inlet_capacity_accel", "inlet_capacity_gyro",
	"drop_rate_warn_threshold", "drop_rate_warn_window",
	"trajectory_buffer_capacity", "covariance_buffer_capacity",
	"incident_gps_window", "incident_accel_window_size", "incident_gyro_window_size",
	"hard_braking_threshold_g", "impact_threshold_g", "swerving_threshold_rad_s",
	"incident_min_speed", "incident_cooldown", "heading_reorient_threshold",
	"autosave_interval", "live_status_interval", "live_status_stale_after",
	"max_rss_mb", "oom_backoff_rss_fraction", "velocity_reset_after_save",
}

func missingRequiredKeys(raw map[string]json.RawMessage) []string {
	var missing []string
	for _, key := range requiredTuningKeys {
		if _, ok := raw[key]; !ok {
			missing = append(missing, key)
		}
	}
	return missing
}

// MustLoadDefaultConfig loads the canonical tuning defaults from
// DefaultConfigPath, searching from the current directory up through common
// parent directories so it works from any package's test directory. Panics
// if the file cannot be found; intended for test setup only.
func MustLoadDefaultConfig() *TuningConfig {
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,
		"../../../" + DefaultConfigPath,
		"../../../../" + DefaultConfigPath,
		"../../../../../" + DefaultConfigPath,
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that whatever fields are set hold structurally sane
// values. It does not require completeness; see ValidateComplete.
func (c *TuningConfig) Validate() error {
	if c.ComplementaryWeightGPS != nil && (*c.ComplementaryWeightGPS < 0 || *c.ComplementaryWeightGPS > 1) {
		return fmt.Errorf("complementary_weight_gps must be in [0,1], got %f", *c.ComplementaryWeightGPS)
	}
	if c.ComplementaryWeightAccel != nil && (*c.ComplementaryWeightAccel < 0 || *c.ComplementaryWeightAccel > 1) {
		return fmt.Errorf("complementary_weight_accel must be in [0,1], got %f", *c.ComplementaryWeightAccel)
	}
	for _, d := range []struct {
		name string
		val  *string
	}{
		{"complementary_gps_stale_after", c.ComplementaryGPSStaleAfter},
		{"emit_interval_driving", c.EmitIntervalDriving},
		{"emit_interval_pedestrian", c.EmitIntervalPedestrian},
		{"dead_reckoning_predict_interval", c.DeadReckoningPredictInterval},
		{"child_warmup_timeout", c.ChildWarmupTimeout},
		{"child_stop_grace", c.ChildStopGrace},
		{"silence_threshold_accel", c.SilenceThresholdAccel},
		{"silence_threshold_gps", c.SilenceThresholdGPS},
		{"silence_threshold_gyro", c.SilenceThresholdGyro},
		{"supervisor_tick_interval", c.SupervisorTickInterval},
		{"restart_cooldown", c.RestartCooldown},
		{"restart_validate_timeout", c.RestartValidateTimeout},
		{"restart_retry_extra_timeout", c.RestartRetryExtraTimeout},
		{"residual_process_poll_interval", c.ResidualProcessPollInterval},
		{"residual_process_poll_timeout", c.ResidualProcessPollTimeout},
		{"drop_rate_warn_window", c.DropRateWarnWindow},
		{"incident_gps_window", c.IncidentGPSWindow},
		{"incident_cooldown", c.IncidentCooldown},
		{"autosave_interval", c.AutosaveInterval},
		{"live_status_interval", c.LiveStatusInterval},
		{"live_status_stale_after", c.LiveStatusStaleAfter},
	} {
		if d.val != nil && *d.val != "" {
			if _, err := time.ParseDuration(*d.val); err != nil {
				return fmt.Errorf("invalid %s %q: %w", d.name, *d.val, err)
			}
		}
	}
	if c.MaxRestartAttempts != nil && *c.MaxRestartAttempts < 0 {
		return fmt.Errorf("max_restart_attempts must be non-negative, got %d", *c.MaxRestartAttempts)
	}
	if c.RawQueueCapacity != nil && *c.RawQueueCapacity <= 0 {
		return fmt.Errorf("raw_queue_capacity must be positive, got %d", *c.RawQueueCapacity)
	}
	if c.NISRejectionThreshold != nil && *c.NISRejectionThreshold <= 0 {
		return fmt.Errorf("nis_rejection_threshold must be positive, got %f", *c.NISRejectionThreshold)
	}
	if c.CalibrationGravityMin != nil && c.CalibrationGravityMax != nil && *c.CalibrationGravityMin > *c.CalibrationGravityMax {
		return fmt.Errorf("calibration_gravity_min (%f) must be <= calibration_gravity_max (%f)", *c.CalibrationGravityMin, *c.CalibrationGravityMax)
	}
	if c.OOMBackoffRSSFraction != nil && (*c.OOMBackoffRSSFraction <= 0 || *c.OOMBackoffRSSFraction > 1) {
		return fmt.Errorf("oom_backoff_rss_fraction must be in (0,1], got %f", *c.OOMBackoffRSSFraction)
	}
	return nil
}

// ValidateComplete additionally requires every field to be set (§2.2): a
// device overriding one threshold should not silently inherit a stale
// built-in default for the rest. LoadTuningConfig applies the same
// completeness rule to the raw JSON keys before decoding.
func (c *TuningConfig) ValidateComplete() error {
	if err := c.Validate(); err != nil {
		return err
	}
	v := *c
	missing := []string{}
	check := func(name string, set bool) {
		if !set {
			missing = append(missing, name)
		}
	}
	check("calibration_min_samples", v.CalibrationMinSamples != nil)
	check("calibration_max_samples", v.CalibrationMaxSamples != nil)
	check("calibration_gravity_min", v.CalibrationGravityMin != nil)
	check("calibration_gravity_max", v.CalibrationGravityMax != nil)
	check("calibration_default_gravity", v.CalibrationDefaultGravity != nil)
	check("dynamic_recalibration_enabled", v.DynamicRecalEnabled != nil)
	check("dynamic_recalibration_stationary_seconds", v.DynamicRecalStationarySec != nil)
	check("dynamic_recalibration_gravity_delta_warn", v.DynamicRecalGravityDeltaWarn != nil)
	check("complementary_weight_gps", v.ComplementaryWeightGPS != nil)
	check("complementary_weight_accel", v.ComplementaryWeightAccel != nil)
	check("stationary_accel_threshold", v.StationaryAccelThreshold != nil)
	check("stationary_distance_floor_m", v.StationaryDistanceFloorM != nil)
	check("stationary_accuracy_multiple", v.StationaryAccuracyMultiple != nil)
	check("stationary_speed_threshold", v.StationarySpeedThreshold != nil)
	check("default_accuracy_noise_floor_m", v.DefaultAccuracyNoiseFloorM != nil)
	check("complementary_gps_stale_after", v.ComplementaryGPSStaleAfter != nil)
	check("ekf13_process_noise_accel", v.EKF13ProcessNoiseAccel != nil)
	check("ekf13_process_noise_bias", v.EKF13ProcessNoiseBias != nil)
	check("ekf13_process_noise_gyro", v.EKF13ProcessNoiseGyro != nil)
	check("ekf13_measurement_noise_gps", v.EKF13MeasurementNoiseGPS != nil)
	check("ekf13_measurement_noise_accel_mag", v.EKF13MeasurementNoiseAccelMag != nil)
	check("ekf13_measurement_noise_gyro", v.EKF13MeasurementNoiseGyro != nil)
	check("nis_rejection_threshold", v.NISRejectionThreshold != nil)
	check("snap_divergence_meters", v.SnapDivergenceMeters != nil)
	check("innovation_condition_max", v.InnovationConditionMax != nil)
	check("esekf8_process_noise_accel", v.ESEKF8ProcessNoiseAccel != nil)
	check("esekf8_process_noise_heading_rate", v.ESEKF8ProcessNoiseHeadingRate != nil)
	check("esekf8_measurement_noise_gps", v.ESEKF8MeasurementNoiseGPS != nil)
	check("esekf8_measurement_noise_accel_mag", v.ESEKF8MeasurementNoiseAccelMag != nil)
	check("esekf8_measurement_noise_gyro", v.ESEKF8MeasurementNoiseGyro != nil)
	check("motion_profile_speed_threshold", v.MotionProfileSpeedThreshold != nil)
	check("motion_profile_window_size", v.MotionProfileWindowSize != nil)
	check("emit_interval_driving", v.EmitIntervalDriving != nil)
	check("emit_interval_pedestrian", v.EmitIntervalPedestrian != nil)
	check("dead_reckoning_min_speed", v.DeadReckoningMinSpeed != nil)
	check("dead_reckoning_predict_interval", v.DeadReckoningPredictInterval != nil)
	check("raw_queue_capacity", v.RawQueueCapacity != nil)
	check("child_warmup_timeout", v.ChildWarmupTimeout != nil)
	check("child_stop_grace", v.ChildStopGrace != nil)
	check("silence_threshold_accel", v.SilenceThresholdAccel != nil)
	check("silence_threshold_gps", v.SilenceThresholdGPS != nil)
	check("silence_threshold_gyro", v.SilenceThresholdGyro != nil)
	check("supervisor_tick_interval", v.SupervisorTickInterval != nil)
	check("restart_cooldown", v.RestartCooldown != nil)
	check("restart_validate_timeout", v.RestartValidateTimeout != nil)
	check("restart_retry_extra_timeout", v.RestartRetryExtraTimeout != nil)
	check("residual_process_poll_interval", v.ResidualProcessPollInterval != nil)
	check("residual_process_poll_timeout", v.ResidualProcessPollTimeout != nil)
	check("max_restart_attempts", v.MaxRestartAttempts != nil)
	check("inlet_capacity_gps", v.InletCapacityGPS != nil)
	check("inlet_capacity_accel", v.InletCapacityAccel != nil)
	check("inlet_capacity_gyro", v.InletCapacityGyro != nil)
	check("drop_rate_warn_threshold", v.DropRateWarnThreshold != nil)
	check("drop_rate_warn_window", v.DropRateWarnWindow != nil)
	check("trajectory_buffer_capacity", v.TrajectoryBufferCapacity != nil)
	check("covariance_buffer_capacity", v.CovarianceBufferCapacity != nil)
	check("incident_gps_window", v.IncidentGPSWindow != nil)
	check("incident_accel_window_size", v.IncidentAccelWindowSize != nil)
	check("incident_gyro_window_size", v.IncidentGyroWindowSize != nil)
	check("hard_braking_threshold_g", v.HardBrakingThresholdG != nil)
	check("impact_threshold_g", v.ImpactThresholdG != nil)
	check("swerving_threshold_rad_s", v.SwervingThresholdRadS != nil)
	check("incident_min_speed", v.IncidentMinSpeed != nil)
	check("incident_cooldown", v.IncidentCooldown != nil)
	check("heading_reorient_threshold", v.HeadingReorientThreshold != nil)
	check("autosave_interval", v.AutosaveInterval != nil)
	check("live_status_interval", v.LiveStatusInterval != nil)
	check("live_status_stale_after", v.LiveStatusStaleAfter != nil)
	check("max_rss_mb", v.MaxRSSMB != nil)
	check("oom_backoff_rss_fraction", v.OOMBackoffRSSFraction != nil)
	check("velocity_reset_after_save", v.VelocityResetAfterSave != nil)
	if len(missing) > 0 {
		return fmt.Errorf("incomplete tuning config, missing: %v", missing)
	}
	return nil
}

func durationOrDefault(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return def
	}
	return d
}

func floatOrDefault(f *float64, def float64) float64 {
	if f == nil {
		return def
	}
	return *f
}

func intOrDefault(i *int, def int) int {
	if i == nil {
		return def
	}
	return *i
}

func boolOrDefault(b *bool, def bool) bool {
	if b == nil {
		return def
	}
	return *b
}

// Calibration getters.
func (c *TuningConfig) GetCalibrationMinSamples() int   { return intOrDefault(c.CalibrationMinSamples, 10) }
func (c *TuningConfig) GetCalibrationMaxSamples() int   { return intOrDefault(c.CalibrationMaxSamples, 20) }
func (c *TuningConfig) GetCalibrationGravityMin() float64 { return floatOrDefault(c.CalibrationGravityMin, 9.5) }
func (c *TuningConfig) GetCalibrationGravityMax() float64 { return floatOrDefault(c.CalibrationGravityMax, 10.1) }
func (c *TuningConfig) GetCalibrationDefaultGravity() float64 {
	return floatOrDefault(c.CalibrationDefaultGravity, 9.81)
}
func (c *TuningConfig) GetDynamicRecalEnabled() bool { return boolOrDefault(c.DynamicRecalEnabled, false) }
func (c *TuningConfig) GetDynamicRecalStationarySeconds() float64 {
	return floatOrDefault(c.DynamicRecalStationarySec, 30.0)
}
func (c *TuningConfig) GetDynamicRecalGravityDeltaWarn() float64 {
	return floatOrDefault(c.DynamicRecalGravityDeltaWarn, 0.5)
}

// Complementary filter getters.
func (c *TuningConfig) GetComplementaryWeightGPS() float64 { return floatOrDefault(c.ComplementaryWeightGPS, 0.7) }
func (c *TuningConfig) GetComplementaryWeightAccel() float64 {
	return floatOrDefault(c.ComplementaryWeightAccel, 0.3)
}
func (c *TuningConfig) GetStationaryAccelThreshold() float64 {
	return floatOrDefault(c.StationaryAccelThreshold, 0.2)
}
func (c *TuningConfig) GetStationaryDistanceFloorM() float64 {
	return floatOrDefault(c.StationaryDistanceFloorM, 5.0)
}
func (c *TuningConfig) GetStationaryAccuracyMultiple() float64 {
	return floatOrDefault(c.StationaryAccuracyMultiple, 1.5)
}
func (c *TuningConfig) GetStationarySpeedThreshold() float64 {
	return floatOrDefault(c.StationarySpeedThreshold, 0.1)
}
func (c *TuningConfig) GetDefaultAccuracyNoiseFloorM() float64 {
	return floatOrDefault(c.DefaultAccuracyNoiseFloorM, 2.5)
}
func (c *TuningConfig) GetComplementaryGPSStaleAfter() time.Duration {
	return durationOrDefault(c.ComplementaryGPSStaleAfter, 5*time.Second)
}

// EKF-13D getters.
func (c *TuningConfig) GetEKF13ProcessNoiseAccel() float64 { return floatOrDefault(c.EKF13ProcessNoiseAccel, 0.5) }
func (c *TuningConfig) GetEKF13ProcessNoiseBias() float64  { return floatOrDefault(c.EKF13ProcessNoiseBias, 0.01) }
func (c *TuningConfig) GetEKF13ProcessNoiseGyro() float64  { return floatOrDefault(c.EKF13ProcessNoiseGyro, 0.05) }
func (c *TuningConfig) GetEKF13MeasurementNoiseGPS() float64 {
	return floatOrDefault(c.EKF13MeasurementNoiseGPS, 5.0)
}
func (c *TuningConfig) GetEKF13MeasurementNoiseAccelMag() float64 {
	return floatOrDefault(c.EKF13MeasurementNoiseAccelMag, 0.3)
}
func (c *TuningConfig) GetEKF13MeasurementNoiseGyro() float64 {
	return floatOrDefault(c.EKF13MeasurementNoiseGyro, 0.05)
}
func (c *TuningConfig) GetNISRejectionThreshold() float64 { return floatOrDefault(c.NISRejectionThreshold, 9.21) }
func (c *TuningConfig) GetSnapDivergenceMeters() float64  { return floatOrDefault(c.SnapDivergenceMeters, 30.0) }
func (c *TuningConfig) GetInnovationConditionMax() float64 {
	return floatOrDefault(c.InnovationConditionMax, 1e10)
}

// ES-EKF-8D getters.
func (c *TuningConfig) GetESEKF8ProcessNoiseAccel() float64 {
	return floatOrDefault(c.ESEKF8ProcessNoiseAccel, 0.5)
}
func (c *TuningConfig) GetESEKF8ProcessNoiseHeadingRate() float64 {
	return floatOrDefault(c.ESEKF8ProcessNoiseHeadingRate, 0.1)
}
func (c *TuningConfig) GetESEKF8MeasurementNoiseGPS() float64 {
	return floatOrDefault(c.ESEKF8MeasurementNoiseGPS, 5.0)
}
func (c *TuningConfig) GetESEKF8MeasurementNoiseAccelMag() float64 {
	return floatOrDefault(c.ESEKF8MeasurementNoiseAccelMag, 0.3)
}
func (c *TuningConfig) GetESEKF8MeasurementNoiseGyro() float64 {
	return floatOrDefault(c.ESEKF8MeasurementNoiseGyro, 0.05)
}
func (c *TuningConfig) GetMotionProfileSpeedThreshold() float64 {
	return floatOrDefault(c.MotionProfileSpeedThreshold, 2.0)
}
func (c *TuningConfig) GetMotionProfileWindowSize() int { return intOrDefault(c.MotionProfileWindowSize, 30) }
func (c *TuningConfig) GetEmitIntervalDriving() time.Duration {
	return durationOrDefault(c.EmitIntervalDriving, 1*time.Second)
}
func (c *TuningConfig) GetEmitIntervalPedestrian() time.Duration {
	return durationOrDefault(c.EmitIntervalPedestrian, 300*time.Millisecond)
}
func (c *TuningConfig) GetDeadReckoningMinSpeed() float64 { return floatOrDefault(c.DeadReckoningMinSpeed, 0.5) }
func (c *TuningConfig) GetDeadReckoningPredictInterval() time.Duration {
	return durationOrDefault(c.DeadReckoningPredictInterval, 20*time.Millisecond)
}

// Sensor source & supervisor getters.
func (c *TuningConfig) GetRawQueueCapacity() int { return intOrDefault(c.RawQueueCapacity, 100) }
func (c *TuningConfig) GetChildWarmupTimeout() time.Duration {
	return durationOrDefault(c.ChildWarmupTimeout, 5*time.Second)
}
func (c *TuningConfig) GetChildStopGrace() time.Duration {
	return durationOrDefault(c.ChildStopGrace, 2*time.Second)
}
func (c *TuningConfig) GetSilenceThresholdAccel() time.Duration {
	return durationOrDefault(c.SilenceThresholdAccel, 5*time.Second)
}
func (c *TuningConfig) GetSilenceThresholdGPS() time.Duration {
	return durationOrDefault(c.SilenceThresholdGPS, 30*time.Second)
}
func (c *TuningConfig) GetSilenceThresholdGyro() time.Duration {
	return durationOrDefault(c.SilenceThresholdGyro, 30*time.Second)
}
func (c *TuningConfig) GetSupervisorTickInterval() time.Duration {
	return durationOrDefault(c.SupervisorTickInterval, 2*time.Second)
}
func (c *TuningConfig) GetRestartCooldown() time.Duration {
	return durationOrDefault(c.RestartCooldown, 10*time.Second)
}
func (c *TuningConfig) GetRestartValidateTimeout() time.Duration {
	return durationOrDefault(c.RestartValidateTimeout, 30*time.Second)
}
func (c *TuningConfig) GetRestartRetryExtraTimeout() time.Duration {
	return durationOrDefault(c.RestartRetryExtraTimeout, 10*time.Second)
}
func (c *TuningConfig) GetResidualProcessPollInterval() time.Duration {
	return durationOrDefault(c.ResidualProcessPollInterval, 200*time.Millisecond)
}
func (c *TuningConfig) GetResidualProcessPollTimeout() time.Duration {
	return durationOrDefault(c.ResidualProcessPollTimeout, 5*time.Second)
}
func (c *TuningConfig) GetMaxRestartAttempts() int { return intOrDefault(c.MaxRestartAttempts, 60) }

// Dispatcher getters.
func (c *TuningConfig) GetInletCapacityGPS() int   { return intOrDefault(c.InletCapacityGPS, 50) }
func (c *TuningConfig) GetInletCapacityAccel() int { return intOrDefault(c.InletCapacityAccel, 100) }
func (c *TuningConfig) GetInletCapacityGyro() int  { return intOrDefault(c.InletCapacityGyro, 100) }
func (c *TuningConfig) GetDropRateWarnThreshold() float64 {
	return floatOrDefault(c.DropRateWarnThreshold, 0.10)
}
func (c *TuningConfig) GetDropRateWarnWindow() time.Duration {
	return durationOrDefault(c.DropRateWarnWindow, 10*time.Second)
}

// Ring buffer getters.
func (c *TuningConfig) GetTrajectoryBufferCapacity() int {
	return intOrDefault(c.TrajectoryBufferCapacity, 5000)
}
func (c *TuningConfig) GetCovarianceBufferCapacity() int {
	return intOrDefault(c.CovarianceBufferCapacity, 2000)
}

// Incident detector getters.
func (c *TuningConfig) GetIncidentGPSWindow() time.Duration {
	return durationOrDefault(c.IncidentGPSWindow, 30*time.Second)
}
func (c *TuningConfig) GetIncidentAccelWindowSize() int {
	return intOrDefault(c.IncidentAccelWindowSize, 1200)
}
func (c *TuningConfig) GetIncidentGyroWindowSize() int {
	return intOrDefault(c.IncidentGyroWindowSize, 1200)
}
func (c *TuningConfig) GetHardBrakingThresholdG() float64 { return floatOrDefault(c.HardBrakingThresholdG, 0.8) }
func (c *TuningConfig) GetImpactThresholdG() float64      { return floatOrDefault(c.ImpactThresholdG, 1.5) }
func (c *TuningConfig) GetSwervingThresholdRadS() float64 {
	return floatOrDefault(c.SwervingThresholdRadS, 1.047)
}
func (c *TuningConfig) GetIncidentMinSpeed() float64 { return floatOrDefault(c.IncidentMinSpeed, 2.0) }
func (c *TuningConfig) GetIncidentCooldown() time.Duration {
	return durationOrDefault(c.IncidentCooldown, 5*time.Second)
}
func (c *TuningConfig) GetHeadingReorientThreshold() float64 {
	return floatOrDefault(c.HeadingReorientThreshold, 1.0)
}

// Persistence / status getters.
func (c *TuningConfig) GetAutosaveInterval() time.Duration {
	return durationOrDefault(c.AutosaveInterval, 60*time.Second)
}
func (c *TuningConfig) GetLiveStatusInterval() time.Duration {
	return durationOrDefault(c.LiveStatusInterval, 2*time.Second)
}
func (c *TuningConfig) GetLiveStatusStaleAfter() time.Duration {
	return durationOrDefault(c.LiveStatusStaleAfter, 10*time.Second)
}

// Resource pressure getters.
func (c *TuningConfig) GetMaxRSSMB() float64 { return floatOrDefault(c.MaxRSSMB, 100.0) }
func (c *TuningConfig) GetOOMBackoffRSSFraction() float64 {
	return floatOrDefault(c.OOMBackoffRSSFraction, 0.85)
}
func (c *TuningConfig) GetVelocityResetAfterSave() bool {
	return boolOrDefault(c.VelocityResetAfterSave, false)
}
