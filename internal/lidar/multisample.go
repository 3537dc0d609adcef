package lidar

import (
	"math"

	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"
)

// MultiSampleStage buffers the last N scans keyed by rounded angle
// and emits, per angle, the mean (or Student-t confidence-interval
// point estimate, when statistical averaging is enabled) distance and
// the max quality across buffered samples (spec.md §4.C.2).
//
// Open Question resolution (see DESIGN.md): the point estimate
// returned is always the sample mean; when StatisticalAvgEnabled the
// Student-t confidence half-width is additionally computed and stored
// on LastHalfWidth so callers that want the interval have it, instead
// of silently conflating "Student-t" with "mean" the way the source
// does.
type MultiSampleStage struct {
	cfg MultiSampleConfig

	buffers map[uint16][]sample

	// LastHalfWidth holds the most recently computed Student-t
	// confidence half-width per angle, populated only when
	// StatisticalAvgEnabled is set.
	LastHalfWidth map[uint16]float64
}

type sample struct {
	distance float64
	quality  uint8
}

// NewMultiSampleStage returns a stage that keeps cfg.SampleCount
// scans of history per angle.
func NewMultiSampleStage(cfg MultiSampleConfig) *MultiSampleStage {
	return &MultiSampleStage{
		cfg:           cfg,
		buffers:       make(map[uint16][]sample),
		LastHalfWidth: make(map[uint16]float64),
	}
}

func (s *MultiSampleStage) Apply(in Scan) Scan {
	for _, p := range in.Points {
		if !p.Valid() {
			continue
		}
		buf := s.buffers[p.AngleDeg]
		buf = append(buf, sample{distance: float64(p.DistanceMM), quality: p.Quality})
		if len(buf) > s.cfg.SampleCount {
			buf = buf[len(buf)-s.cfg.SampleCount:]
		}
		s.buffers[p.AngleDeg] = buf
	}

	out := Scan{
		ScanComplete:    in.ScanComplete,
		ScanTimestampUS: in.ScanTimestampUS,
		ScanQuality:     in.ScanQuality,
		Points:          make([]Point, 0, len(in.Points)),
		DriftDetected:   in.DriftDetected,
	}

	for angle, buf := range s.buffers {
		if len(buf) == 0 {
			continue
		}
		distances := make([]float64, len(buf))
		var maxQuality uint8
		for i, smp := range buf {
			distances[i] = smp.distance
			if smp.quality > maxQuality {
				maxQuality = smp.quality
			}
		}

		mean := stat.Mean(distances, nil)
		if s.cfg.StatisticalAvgEnabled && len(distances) > 1 {
			_, variance := stat.MeanVariance(distances, nil)
			stddev := math.Sqrt(variance)
			alpha := 1 - s.cfg.ConfidenceLevelPct/100
			t := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: float64(len(distances) - 1)}
			critical := t.Quantile(1 - alpha/2)
			halfWidth := critical * stddev / math.Sqrt(float64(len(distances)))
			s.LastHalfWidth[angle] = halfWidth
		}

		out.Points = append(out.Points, Point{
			DistanceMM:  clampDistance(mean),
			AngleDeg:    angle,
			Quality:     maxQuality,
			TimestampUS: in.ScanTimestampUS,
		})
	}

	return out
}

func clampDistance(v float64) uint16 {
	if v < 0 {
		return 0
	}
	if v > MaxDistanceMM {
		return MaxDistanceMM
	}
	return uint16(v)
}

