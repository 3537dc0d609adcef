package lidar

// QualityGateStage drops points with Quality < Threshold (spec.md
// §4.C.6). Threshold 0 passes all valid points; 256 drops everything
// (spec.md §8 boundary behaviors).
type QualityGateStage struct {
	Threshold uint16
}

func (s QualityGateStage) Apply(in Scan) Scan {
	out := Scan{
		ScanComplete:    in.ScanComplete,
		ScanTimestampUS: in.ScanTimestampUS,
		ScanQuality:     in.ScanQuality,
		Points:          make([]Point, 0, len(in.Points)),
		DriftDetected:   in.DriftDetected,
	}
	for _, p := range in.Points {
		if uint16(p.Quality) < s.Threshold {
			continue
		}
		out.Points = append(out.Points, p)
	}
	return out
}
