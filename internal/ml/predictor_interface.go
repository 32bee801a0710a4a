// Package ml scores a fitted contrastive forest and ranks the features it
// relies on to tell real rows from noise.
//
// Two ranking strategies are provided: permutation importance, which
// measures how much the held-out AUC drops when a single column is
// shuffled, and impurity importance, which reads the forest's own mean
// decrease in gini impurity.
package ml

// Predictor is the scoring surface used by Evaluate and permutation
// importance. *forest.Forest satisfies it.
type Predictor interface {
	// PredictProba returns the real-class probability for each row.
	PredictProba(X [][]float64) ([]float64, error)
}

// MetricsInterface defines the metrics methods needed by the evaluators.
type MetricsInterface interface {
	PredictionsAdd(float64)
	AUCObserve(float64)
	PermutationRoundsInc()
	PermutationLatencyObserve(float64)
}
