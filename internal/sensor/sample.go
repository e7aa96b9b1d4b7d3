// Package sensor owns the long-lived child-process sources for inertial and
// positioning data: typed sample records, the brace-balanced frame parser
// for the sensor wire contract, and the bounded single-producer queue each
// Source exposes to the dispatcher.
package sensor

import "fmt"

// Kind tags which variant a Sample carries, replacing the dynamically typed
// dict frames the original source emits with a closed set of Go types
// (spec.md §9 "Global dynamic-typed sensor dict").
type Kind int

const (
	KindGPS Kind = iota
	KindAccel
	KindGyro
)

func (k Kind) String() string {
	switch k {
	case KindGPS:
		return "gps"
	case KindAccel:
		return "accel"
	case KindGyro:
		return "gyro"
	default:
		return "unknown"
	}
}

// GpsSample is one absolute-position fix (spec.md §3).
type GpsSample struct {
	T         float64
	Lat       float64
	Lon       float64
	AccuracyM float32
	SpeedMS   float32
	Provider  string
}

// AccelSample is one gravity-subtracted motion-magnitude reading
// (spec.md §4.5). Magnitude is computed by Calibrator before it reaches the
// filters.
type AccelSample struct {
	T             float64
	MagnitudeMS2  float32
}

// GyroSample is one angular-rate reading (spec.md §3). Only Magnitude is
// retained when the storage budget calls for it; Wx/Wy/Wz remain available
// for the swerving detector and the optional EKF gyro update.
type GyroSample struct {
	T         float64
	Wx        float32
	Wy        float32
	Wz        float32
	Magnitude float32
}

// Sample is a tagged union over the three wire sample types. Exactly one of
// GPS/Accel/Gyro is non-nil, selected by Kind. This replaces the source's
// dynamically keyed dict frame (spec.md §9).
type Sample struct {
	Kind  Kind
	GPS   *GpsSample
	Accel *AccelSample
	Gyro  *GyroSample
}

// Timestamp returns the sample's own clock reading regardless of kind.
func (s Sample) Timestamp() float64 {
	switch s.Kind {
	case KindGPS:
		return s.GPS.T
	case KindAccel:
		return s.Accel.T
	case KindGyro:
		return s.Gyro.T
	default:
		return 0
	}
}

func (s Sample) String() string {
	switch s.Kind {
	case KindGPS:
		return fmt.Sprintf("gps{t=%.3f lat=%.6f lon=%.6f acc=%.1f speed=%.2f provider=%s}",
			s.GPS.T, s.GPS.Lat, s.GPS.Lon, s.GPS.AccuracyM, s.GPS.SpeedMS, s.GPS.Provider)
	case KindAccel:
		return fmt.Sprintf("accel{t=%.3f mag=%.3f}", s.Accel.T, s.Accel.MagnitudeMS2)
	case KindGyro:
		return fmt.Sprintf("gyro{t=%.3f mag=%.3f}", s.Gyro.T, s.Gyro.Magnitude)
	default:
		return "sample{unknown}"
	}
}
