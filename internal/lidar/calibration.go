package lidar

import (
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"
)

// maxCalibrationChecks bounds the drift tracker's rolling window to
// the "last N calibration checks" spec.md §4.C re-derives from —
// matching the up-to-5-point calibration table in spec.md §3.1.
const maxCalibrationChecks = 5

// calibrationDriftTracker accumulates calibration checks and derives
// drift_detected / adjusted confidence / auto-recalibration (spec.md
// §4.C's drift-detection paragraph). It is held by pointer so the
// facade can keep recording checks across Configure calls that
// rebuild the Pipeline slice around a fresh CalibrationStage value.
type calibrationDriftTracker struct {
	mu            sync.Mutex
	checks        []CalibrationPoint
	active        Calibration
	driftDetected bool
}

func newCalibrationDriftTracker(c Calibration) *calibrationDriftTracker {
	return &calibrationDriftTracker{active: c}
}

// status returns the calibration currently in effect and whether the
// last recorded check found drift.
func (t *calibrationDriftTracker) status() (Calibration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active, t.driftDetected
}

// recordCheck appends a (reference, measured) pair observed during an
// operator calibration check. Once at least two checks have
// accumulated it refits via FitCalibration and compares the result to
// the active calibration with DriftCheck. Drift beyond
// DriftThresholdPct sets drift_detected and reduces confidence
// proportionally to how far the fit moved; only when
// Calibration.DynamicEnabled is set does the fresh fit replace the
// active calibration.
func (t *calibrationDriftTracker) recordCheck(p CalibrationPoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.checks = append(t.checks, p)
	if len(t.checks) > maxCalibrationChecks {
		t.checks = t.checks[len(t.checks)-maxCalibrationChecks:]
	}
	if len(t.checks) < 2 {
		return
	}

	fresh := FitCalibration(t.checks)
	threshold := t.active.DriftThresholdPct
	if threshold == 0 {
		threshold = 2.0
	}

	factorDeltaPct := relativeDeltaPct(t.active.Factor, fresh.Factor)
	offsetDeltaPct := relativeDeltaPct(t.active.OffsetMM, fresh.OffsetMM)
	maxDeltaPct := math.Max(factorDeltaPct, offsetDeltaPct)

	t.driftDetected = maxDeltaPct > threshold
	if !t.driftDetected {
		return
	}

	reduced := t.active.Confidence * (1 - math.Min(maxDeltaPct, 100)/100)
	if reduced < 0 {
		reduced = 0
	}

	if t.active.DynamicEnabled {
		fresh.DynamicEnabled = t.active.DynamicEnabled
		fresh.DriftThresholdPct = t.active.DriftThresholdPct
		fresh.Confidence = reduced
		t.active = fresh
		t.checks = nil
	} else {
		t.active.Confidence = reduced
	}
}

// CalibrationStage applies Calibration.Apply to every valid point's
// distance. Identity calibration (factor=1, offset=0) is a no-op
// modulo point ordering, satisfying spec.md §8 invariant 5. When
// tracker is non-nil (wired by BuildPipeline), the stage reads the
// tracker's current calibration and drift flag instead of its own
// static Calibration field, so drift checks and auto-recalibration
// recorded via the tracker take effect on the very next scan.
type CalibrationStage struct {
	Calibration Calibration
	tracker     *calibrationDriftTracker
}

func (s CalibrationStage) Apply(in Scan) Scan {
	calib := s.Calibration
	drifted := false
	if s.tracker != nil {
		calib, drifted = s.tracker.status()
	}

	out := in.Clone()
	for i, p := range out.Points {
		if !p.Valid() {
			continue
		}
		out.Points[i].DistanceMM = calib.Apply(float64(p.DistanceMM))
	}
	out.DriftDetected = drifted
	return out
}

// FitCalibration least-squares fits factor/offset over the stored
// (reference, measured) pairs using gonum's ordinary-least-squares
// regression, then derives a confidence score from the mean relative
// error of the fit. It requires at least two points.
func FitCalibration(points []CalibrationPoint) Calibration {
	if len(points) < 2 {
		if len(points) == 1 {
			return Calibration{Factor: 1, OffsetMM: points[0].MeasuredMM - points[0].ReferenceMM, Points: points}
		}
		return DefaultCalibration()
	}

	xs := make([]float64, len(points))
	ys := make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.ReferenceMM
		ys[i] = p.MeasuredMM
	}

	// stat.LinearRegression fits measured = alpha + beta*reference;
	// spec.md's "measured ≈ factor·reference + offset" maps factor=beta,
	// offset=alpha.
	alpha, beta := stat.LinearRegression(xs, ys, nil, false)

	var sumRelErr float64
	for i := range xs {
		predicted := beta*xs[i] + alpha
		if ys[i] != 0 {
			sumRelErr += math.Abs(predicted-ys[i]) / math.Abs(ys[i])
		}
	}
	meanRelErr := sumRelErr / float64(len(xs))

	confidence := 100 * (1 - meanRelErr)
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 100 {
		confidence = 100
	}

	return Calibration{
		Factor:     beta,
		OffsetMM:   alpha,
		Points:     points,
		Confidence: confidence,
	}
}

// DriftCheck compares a freshly fit calibration against the stored
// one and reports whether either parameter moved beyond
// thresholdPct percent, per spec.md §4.C's drift-detection note.
func DriftCheck(stored, fresh Calibration, thresholdPct float64) (drifted bool) {
	factorDeltaPct := relativeDeltaPct(stored.Factor, fresh.Factor)
	offsetDeltaPct := relativeDeltaPct(stored.OffsetMM, fresh.OffsetMM)
	return factorDeltaPct > thresholdPct || offsetDeltaPct > thresholdPct
}

func relativeDeltaPct(a, b float64) float64 {
	if a == 0 {
		if b == 0 {
			return 0
		}
		return 100
	}
	return math.Abs(b-a) / math.Abs(a) * 100
}
