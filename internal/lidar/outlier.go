package lidar

import (
	"math"
	"sort"
)

// OutlierFilterStage rejects points whose distance deviates from the
// per-angle median by more than ThresholdPct percent (spec.md
// §4.C.3). With no other samples at the same angle in this scan, the
// single reading is its own median and always passes.
type OutlierFilterStage struct {
	ThresholdPct float64
}

func (s OutlierFilterStage) Apply(in Scan) Scan {
	// threshold_pct >= 100 is defined as a no-op (spec.md §8 invariant
	// 6): the scan is returned unfiltered, so nothing is rejected at or
	// above 100, even a point that deviates from the median by more
	// than 100%.
	if s.ThresholdPct >= 100 {
		return in.Clone()
	}

	byAngle := make(map[uint16][]int) // angle -> indices into in.Points
	for i, p := range in.Points {
		if !p.Valid() {
			continue
		}
		byAngle[p.AngleDeg] = append(byAngle[p.AngleDeg], i)
	}

	keep := make([]bool, len(in.Points))
	for _, idxs := range byAngle {
		if len(idxs) == 1 {
			keep[idxs[0]] = true
			continue
		}
		distances := make([]float64, len(idxs))
		for i, idx := range idxs {
			distances[i] = float64(in.Points[idx].DistanceMM)
		}
		median := medianLowerTie(distances)

		for _, idx := range idxs {
			d := float64(in.Points[idx].DistanceMM)
			var deviationPct float64
			if median > 0 {
				deviationPct = math.Abs(d-median) / median * 100
			}
			if deviationPct <= s.ThresholdPct {
				keep[idx] = true
			}
		}
	}

	out := Scan{
		ScanComplete:    in.ScanComplete,
		ScanTimestampUS: in.ScanTimestampUS,
		ScanQuality:     in.ScanQuality,
		DriftDetected:   in.DriftDetected,
		Points:          make([]Point, 0, len(in.Points)),
	}
	for i, p := range in.Points {
		if keep[i] {
			out.Points = append(out.Points, p)
		}
	}
	return out
}

// medianLowerTie computes the median, choosing the lower of the two
// central values on an even count (spec.md §4.C numeric semantics).
// gonum's stat.Quantile(0.5, stat.Empirical, ...) interpolates between
// the two middle values rather than picking the lower one, so the
// tie-break is applied explicitly on top of a sorted copy instead.
func medianLowerTie(values []float64) float64 {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return sorted[n/2-1]
}
