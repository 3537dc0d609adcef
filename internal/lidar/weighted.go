package lidar

// WeightedAverageStage replaces each angle's distance with the
// quality-weighted average across any points sharing that angle in
// the current scan: Σ(distᵢ·qualityᵢ) / Σqualityᵢ (spec.md §4.C.5).
// Points whose combined quality is zero are dropped rather than
// divided by zero.
type WeightedAverageStage struct{}

func (WeightedAverageStage) Apply(in Scan) Scan {
	type acc struct {
		weightedSum float64
		weightTotal float64
	}
	byAngle := make(map[uint16]*acc)
	order := make([]uint16, 0, len(in.Points))

	for _, p := range in.Points {
		if !p.Valid() {
			continue
		}
		a, ok := byAngle[p.AngleDeg]
		if !ok {
			a = &acc{}
			byAngle[p.AngleDeg] = a
			order = append(order, p.AngleDeg)
		}
		a.weightedSum += float64(p.DistanceMM) * float64(p.Quality)
		a.weightTotal += float64(p.Quality)
	}

	out := Scan{
		ScanComplete:    in.ScanComplete,
		ScanTimestampUS: in.ScanTimestampUS,
		ScanQuality:     in.ScanQuality,
		Points:          make([]Point, 0, len(order)),
		DriftDetected:   in.DriftDetected,
	}
	for _, angle := range order {
		a := byAngle[angle]
		if a.weightTotal == 0 {
			continue
		}
		out.Points = append(out.Points, Point{
			DistanceMM:  clampDistance(a.weightedSum / a.weightTotal),
			AngleDeg:    angle,
			Quality:     255,
			TimestampUS: in.ScanTimestampUS,
		})
	}
	return out
}
