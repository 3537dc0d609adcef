package lidar

// EvaluateSafety derives the SafetyVerdict from the latest complete
// Scan and the configured thresholds (spec.md §4.D). A missing or
// incomplete scan yields min=MaxDistanceMM, max=0, all booleans
// false — the caller distinguishes "no data" from "safe" via
// scan.ScanComplete, never from the verdict's booleans alone.
func EvaluateSafety(scan Scan, cfg Config) SafetyVerdict {
	v := SafetyVerdict{
		MinDistanceMM: MaxDistanceMM,
		MaxDistanceMM: 0,
		TimestampUS:   scan.ScanTimestampUS,
	}

	if !scan.ScanComplete {
		return v
	}

	haveReading := false
	for _, p := range scan.Points {
		if !p.Valid() {
			continue
		}
		haveReading = true
		if p.DistanceMM < v.MinDistanceMM {
			v.MinDistanceMM = p.DistanceMM
			v.MinDistanceAngle = p.AngleDeg
		}
		if p.DistanceMM > v.MaxDistanceMM {
			v.MaxDistanceMM = p.DistanceMM
			v.MaxDistanceAngle = p.AngleDeg
		}
	}

	if !haveReading {
		v.MinDistanceMM = MaxDistanceMM
		v.MaxDistanceMM = 0
		return v
	}

	v.WarningTriggered = v.MinDistanceMM < cfg.WarningMM
	v.ObstacleDetected = v.WarningTriggered
	v.EmergencyStopTriggered = v.MinDistanceMM < cfg.EmergencyStopMM

	return v
}
