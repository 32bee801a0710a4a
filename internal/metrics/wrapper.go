package metrics

import "math"

// MetricsWrapper adapts Metrics to the small interfaces the pipeline and
// importance packages depend on.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) StageObserve(stage string, seconds float64) {
	w.m.StageDuration.WithLabelValues(stage).Observe(seconds)
}

func (w *MetricsWrapper) StageFailed(stage string) {
	w.m.StageFailures.WithLabelValues(stage).Inc()
}

func (w *MetricsWrapper) RunCompleted() {
	w.m.RunsTotal.Inc()
}

func (w *MetricsWrapper) TableLoaded(rows, features int) {
	w.m.RowsLoaded.Set(float64(rows))
	w.m.FeaturesLoaded.Set(float64(features))
}

func (w *MetricsWrapper) TreesAdd(n int) {
	w.m.TreesTrained.Add(float64(n))
}

// EvaluationSet records the forest scores. An undefined OOB accuracy leaves
// the gauge unchanged.
func (w *MetricsWrapper) EvaluationSet(oob, auc float64) {
	if !math.IsNaN(oob) {
		w.m.OOBAccuracy.Set(oob)
	}
	w.m.TestAUC.Set(auc)
}

func (w *MetricsWrapper) ThresholdsSet(cumulative, firstBelowNull int) {
	w.m.CumulativeComponents.Set(float64(cumulative))
	w.m.FirstBelowNull.Set(float64(firstBelowNull))
}

func (w *MetricsWrapper) PredictionsAdd(n float64) {
	w.m.Predictions.Add(n)
}

func (w *MetricsWrapper) AUCObserve(v float64) {
	w.m.AUCScores.Observe(v)
}

func (w *MetricsWrapper) PermutationRoundsInc() {
	w.m.PermutationRounds.Inc()
}

func (w *MetricsWrapper) PermutationLatencyObserve(v float64) {
	w.m.PermutationLatency.Observe(v)
}
