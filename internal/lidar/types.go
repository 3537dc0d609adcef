// Package lidar drives the rotating laser rangefinder: it owns the
// serial transport, assembles angular scans from the binary wire
// stream, runs the optional quality pipeline, and derives the safety
// verdict consumed by the motion controller.
package lidar

import "fmt"

const (
	// MaxDistanceMM is the sensor's maximum reportable distance.
	MaxDistanceMM = 12000

	// PointsPerScan is the nominal number of points in one revolution.
	PointsPerScan = 500

	// MinCompletePoints is the minimum point count for scan_complete.
	MinCompletePoints = 360

	// DefaultEmergencyStopMM, DefaultWarningMM and DefaultSafeMM are the
	// three strictly ordered safety thresholds from the wire protocol.
	DefaultEmergencyStopMM = 500
	DefaultWarningMM       = 1000
	DefaultSafeMM          = 2000
)

// Point is a single (angle, distance, quality, timestamp) sample.
// A DistanceMM of 0 or Quality of 0 marks the point invalid.
type Point struct {
	DistanceMM  uint16
	AngleDeg    uint16
	Quality     uint8
	TimestampUS uint64
}

// Valid reports whether the point carries a usable measurement.
func (p Point) Valid() bool {
	return p.DistanceMM > 0 && p.Quality > 0
}

// Scan is one (possibly partial) 360-degree revolution.
type Scan struct {
	Points          []Point
	ScanComplete    bool
	ScanTimestampUS uint64
	ScanQuality     uint8

	// DriftDetected is set by CalibrationStage when a periodic
	// re-derivation of (factor, offset) from the last calibration
	// checks differs from the stored values by more than
	// Calibration.DriftThresholdPct (spec.md §4.C).
	DriftDetected bool
}

// PointCount returns the number of points currently buffered.
func (s *Scan) PointCount() int {
	return len(s.Points)
}

// Clone returns a deep copy so callers never alias the facade's state.
func (s *Scan) Clone() Scan {
	out := Scan{
		ScanComplete:    s.ScanComplete,
		ScanTimestampUS: s.ScanTimestampUS,
		ScanQuality:     s.ScanQuality,
		DriftDetected:   s.DriftDetected,
	}
	out.Points = make([]Point, len(s.Points))
	copy(out.Points, s.Points)
	return out
}

// SafetyVerdict is the derived pass/warn/stop decision for the motion
// controller. Invariant: EmergencyStopTriggered implies
// WarningTriggered implies ObstacleDetected.
type SafetyVerdict struct {
	MinDistanceMM          uint16
	MinDistanceAngle       uint16
	MaxDistanceMM          uint16
	MaxDistanceAngle       uint16
	ObstacleDetected       bool
	WarningTriggered       bool
	EmergencyStopTriggered bool
	TimestampUS            uint64
}

// Config validates and describes the LiDAR device and its safety
// thresholds. EmergencyStopMM < WarningMM < SafeMM is enforced by
// Validate, never silently reordered.
type Config struct {
	DevicePath       string
	BaudRate         int
	ScanRateHz       int
	AngularResDeg    float64
	SampleRate       int
	EmergencyStopMM  uint16
	WarningMM        uint16
	SafeMM           uint16
}

// DefaultConfig returns a Config with the protocol's default
// thresholds and a 460800-baud device path placeholder.
func DefaultConfig(devicePath string) Config {
	return Config{
		DevicePath:      devicePath,
		BaudRate:        460800,
		ScanRateHz:      10,
		AngularResDeg:   1.0,
		SampleRate:      1,
		EmergencyStopMM: DefaultEmergencyStopMM,
		WarningMM:       DefaultWarningMM,
		SafeMM:          DefaultSafeMM,
	}
}

// Validate checks domain ranges and the strict threshold ordering.
func (c Config) Validate() error {
	if c.DevicePath == "" {
		return fmt.Errorf("%w: device path is empty", ErrInvalidParameter)
	}
	if c.BaudRate != 460800 {
		return fmt.Errorf("%w: baud rate must be 460800, got %d", ErrInvalidParameter, c.BaudRate)
	}
	if c.ScanRateHz < 8 || c.ScanRateHz > 12 {
		return fmt.Errorf("%w: scan rate %d Hz out of [8,12]", ErrInvalidParameter, c.ScanRateHz)
	}
	if !(c.EmergencyStopMM < c.WarningMM && c.WarningMM < c.SafeMM) {
		return fmt.Errorf("%w: thresholds must satisfy emergency(%d) < warning(%d) < safe(%d)",
			ErrInvalidParameter, c.EmergencyStopMM, c.WarningMM, c.SafeMM)
	}
	return nil
}

// AdaptiveResolutionConfig tunes angular resolution inside a focus
// window. FocusResDeg must not exceed BaseResDeg; the focus window
// wraps modulo 360.
type AdaptiveResolutionConfig struct {
	Enabled      bool
	BaseResDeg   float64
	FocusStart   uint16
	FocusEnd     uint16
	FocusResDeg  float64
	Priority     int
}

// Validate enforces the focus-resolution-not-coarser-than-base contract.
func (c AdaptiveResolutionConfig) Validate() error {
	if !c.Enabled {
		return nil
	}
	if c.FocusResDeg > c.BaseResDeg {
		return fmt.Errorf("%w: focus resolution %.3f must be <= base resolution %.3f",
			ErrInvalidParameter, c.FocusResDeg, c.BaseResDeg)
	}
	if c.Priority < 1 || c.Priority > 5 {
		return fmt.Errorf("%w: priority %d out of [1,5]", ErrInvalidParameter, c.Priority)
	}
	if c.FocusStart >= 360 || c.FocusEnd >= 360 {
		return fmt.Errorf("%w: focus window angles must be in [0,359]", ErrInvalidParameter)
	}
	return nil
}

// MultiSampleConfig controls the multi-sample averaging, outlier,
// temporal, and quality-gate pipeline stages.
type MultiSampleConfig struct {
	SampleCount           int
	SampleIntervalMS       int
	OutlierFilterEnabled   bool
	OutlierThresholdPct    float64
	SmoothingWindow        int
	StatisticalAvgEnabled  bool
	ConfidenceLevelPct     float64
	WeightedAvgEnabled     bool
	TemporalFilterEnabled  bool
	TemporalWindow         int
	QualityThreshold       uint16
}

// DefaultMultiSampleConfig mirrors the source's documented defaults.
func DefaultMultiSampleConfig() MultiSampleConfig {
	return MultiSampleConfig{
		SampleCount:          3,
		SampleIntervalMS:     50,
		OutlierFilterEnabled: true,
		OutlierThresholdPct:  15,
		SmoothingWindow:      3,
		ConfidenceLevelPct:   95,
		TemporalWindow:       3,
		QualityThreshold:     0,
	}
}

// Validate checks the documented domain ranges from spec.md §3.1.
func (c MultiSampleConfig) Validate() error {
	if c.SampleCount < 1 || c.SampleCount > 10 {
		return fmt.Errorf("%w: sample count %d out of [1,10]", ErrInvalidParameter, c.SampleCount)
	}
	if c.StatisticalAvgEnabled && (c.ConfidenceLevelPct < 80 || c.ConfidenceLevelPct > 99.9) {
		return fmt.Errorf("%w: confidence level %.1f%% out of [80,99.9]", ErrInvalidParameter, c.ConfidenceLevelPct)
	}
	if c.TemporalFilterEnabled && (c.TemporalWindow < 1 || c.TemporalWindow > 10) {
		return fmt.Errorf("%w: temporal window %d out of [1,10]", ErrInvalidParameter, c.TemporalWindow)
	}
	if c.QualityThreshold > 256 {
		return fmt.Errorf("%w: quality threshold %d out of [0,256]", ErrInvalidParameter, c.QualityThreshold)
	}
	return nil
}

// CalibrationPoint is one (reference, measured) pair used to fit the
// multi-point calibration.
type CalibrationPoint struct {
	ReferenceMM float64
	MeasuredMM  float64
}

// Calibration holds the global scale/offset and, optionally, the
// points used to least-squares fit them.
type Calibration struct {
	Factor                   float64
	OffsetMM                 float64
	ReferenceDistanceMM      float64
	DynamicEnabled           bool
	Points                   []CalibrationPoint
	Confidence               float64
	DriftThresholdPct        float64
}

// DefaultCalibration is the identity calibration: factor=1, offset=0.
func DefaultCalibration() Calibration {
	return Calibration{
		Factor:            1.0,
		OffsetMM:          0,
		DriftThresholdPct: 2.0,
		Confidence:        100,
	}
}

// Apply returns the corrected distance, clamped to [0, MaxDistanceMM].
func (c Calibration) Apply(raw float64) uint16 {
	corrected := raw*c.Factor + c.OffsetMM
	if corrected < 0 {
		corrected = 0
	}
	if corrected > MaxDistanceMM {
		corrected = MaxDistanceMM
	}
	return uint16(corrected)
}
