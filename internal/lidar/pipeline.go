package lidar

// Stage is one step of the Quality Pipeline (spec.md §4.C). Each
// stage is a value carrying its own configuration; enabling or
// disabling a stage means adding or removing it from the ordered
// Pipeline slice, not flipping an internal flag buried in a monolith.
type Stage interface {
	Apply(in Scan) Scan
}

// Pipeline runs its stages in order. The §4.C order is the contract:
// calibration, multi-sample averaging, outlier filtering, temporal
// filtering, weighted averaging, quality gate.
type Pipeline []Stage

// Apply runs every stage in order, feeding each stage's output to the
// next.
func (p Pipeline) Apply(in Scan) Scan {
	out := in
	for _, stage := range p {
		out = stage.Apply(out)
	}
	return out
}

// BuildPipeline assembles the ordered stage list per spec.md §4.C from
// the given configs; the calibration fit and multi-sample averaging
// are gonum/stat-backed, the outlier filter's median is not. The
// returned tracker
// drives the calibration stage's periodic drift re-derivation; callers
// that want drift detection feed it calibration checks via
// RecordCalibrationCheck (see Facade).
func BuildPipeline(cal Calibration, ms MultiSampleConfig) (Pipeline, *calibrationDriftTracker) {
	var stages Pipeline

	tracker := newCalibrationDriftTracker(cal)
	stages = append(stages, CalibrationStage{Calibration: cal, tracker: tracker})

	if ms.SampleCount > 1 {
		stages = append(stages, NewMultiSampleStage(ms))
	}
	if ms.OutlierFilterEnabled {
		stages = append(stages, OutlierFilterStage{ThresholdPct: ms.OutlierThresholdPct})
	}
	if ms.TemporalFilterEnabled {
		stages = append(stages, NewTemporalFilterStage(ms.TemporalWindow))
	}
	if ms.WeightedAvgEnabled {
		stages = append(stages, WeightedAverageStage{})
	}
	stages = append(stages, QualityGateStage{Threshold: ms.QualityThreshold})

	return stages, tracker
}
