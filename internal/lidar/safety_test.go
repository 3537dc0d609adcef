package lidar

import "testing"

func syntheticScan(angleDistances map[uint16]uint16) Scan {
	s := Scan{ScanComplete: true, ScanTimestampUS: 1000}
	for angle := uint16(0); angle < 360; angle++ {
		d, ok := angleDistances[angle]
		if !ok {
			d = 1500
		}
		s.Points = append(s.Points, Point{DistanceMM: d, AngleDeg: angle, Quality: 200, TimestampUS: 1000})
	}
	return s
}

func TestEvaluateSafety_EmergencyStopTrip(t *testing.T) {
	scan := syntheticScan(map[uint16]uint16{90: 400})
	cfg := DefaultConfig("/dev/ttyUSB0")

	v := EvaluateSafety(scan, cfg)

	if v.MinDistanceMM != 400 {
		t.Errorf("min distance = %d, want 400", v.MinDistanceMM)
	}
	if v.MinDistanceAngle != 90 {
		t.Errorf("min angle = %d, want 90", v.MinDistanceAngle)
	}
	if !v.EmergencyStopTriggered || !v.WarningTriggered || !v.ObstacleDetected {
		t.Errorf("expected all safety flags true, got %+v", v)
	}
}

func TestEvaluateSafety_WarningOnlyTrip(t *testing.T) {
	scan := syntheticScan(map[uint16]uint16{90: 800})
	cfg := DefaultConfig("/dev/ttyUSB0")

	v := EvaluateSafety(scan, cfg)

	if v.EmergencyStopTriggered {
		t.Error("emergency stop should not trigger at 800mm")
	}
	if !v.WarningTriggered || !v.ObstacleDetected {
		t.Error("warning and obstacle should trigger at 800mm")
	}
}

func TestEvaluateSafety_IncompleteScanYieldsNoData(t *testing.T) {
	scan := Scan{ScanComplete: false}
	cfg := DefaultConfig("/dev/ttyUSB0")

	v := EvaluateSafety(scan, cfg)

	if v.MinDistanceMM != MaxDistanceMM || v.MaxDistanceMM != 0 {
		t.Errorf("expected no-data sentinel values, got min=%d max=%d", v.MinDistanceMM, v.MaxDistanceMM)
	}
	if v.EmergencyStopTriggered || v.WarningTriggered || v.ObstacleDetected {
		t.Error("incomplete scan must not trigger any safety flag")
	}
}

func TestEvaluateSafety_InvariantOrdering(t *testing.T) {
	tests := []struct {
		name     string
		distance uint16
	}{
		{"far", 3000},
		{"safe-boundary", 2000},
		{"warning-boundary", 1000},
		{"emergency-boundary", 500},
		{"very-close", 100},
	}

	cfg := DefaultConfig("/dev/ttyUSB0")
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scan := syntheticScan(map[uint16]uint16{45: tt.distance})
			v := EvaluateSafety(scan, cfg)
			if v.EmergencyStopTriggered && !v.WarningTriggered {
				t.Error("emergency_stop_triggered must imply warning_triggered")
			}
			if v.WarningTriggered && !v.ObstacleDetected {
				t.Error("warning_triggered must imply obstacle_detected")
			}
		})
	}
}

func TestConfig_Validate_ThresholdOrdering(t *testing.T) {
	cfg := DefaultConfig("/dev/ttyUSB0")
	cfg.WarningMM = 400 // now warning < emergency, invalid

	if err := cfg.Validate(); err == nil {
		t.Error("expected validation error for out-of-order thresholds")
	}
}
