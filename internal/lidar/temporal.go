package lidar

// TemporalFilterStage keeps a boxcar window of the last Window
// completed scans and emits, per angle, the mean distance over
// whichever of those scans actually reported that angle — missing
// angles in older scans are skipped, not zero-filled (spec.md
// §4.C.4).
type TemporalFilterStage struct {
	window int
	history []Scan
}

// NewTemporalFilterStage returns a stage holding the last window
// scans (window clamped to [1,10] per spec.md §3.1).
func NewTemporalFilterStage(window int) *TemporalFilterStage {
	if window < 1 {
		window = 1
	}
	if window > 10 {
		window = 10
	}
	return &TemporalFilterStage{window: window}
}

func (s *TemporalFilterStage) Apply(in Scan) Scan {
	s.history = append(s.history, in)
	if len(s.history) > s.window {
		s.history = s.history[len(s.history)-s.window:]
	}

	sums := make(map[uint16]float64)
	counts := make(map[uint16]int)
	var maxQuality map[uint16]uint8 = make(map[uint16]uint8)

	for _, scan := range s.history {
		for _, p := range scan.Points {
			if !p.Valid() {
				continue
			}
			sums[p.AngleDeg] += float64(p.DistanceMM)
			counts[p.AngleDeg]++
			if p.Quality > maxQuality[p.AngleDeg] {
				maxQuality[p.AngleDeg] = p.Quality
			}
		}
	}

	out := Scan{
		ScanComplete:    in.ScanComplete,
		ScanTimestampUS: in.ScanTimestampUS,
		ScanQuality:     in.ScanQuality,
		Points:          make([]Point, 0, len(counts)),
		DriftDetected:   in.DriftDetected,
	}
	for angle, sum := range sums {
		out.Points = append(out.Points, Point{
			DistanceMM:  clampDistance(sum / float64(counts[angle])),
			AngleDeg:    angle,
			Quality:     maxQuality[angle],
			TimestampUS: in.ScanTimestampUS,
		})
	}
	return out
}
