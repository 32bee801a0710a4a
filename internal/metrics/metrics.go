// Package metrics provides Prometheus metrics for pipeline runs. Batch runs
// have no scrape endpoint, so the registry can be written to a textfile for
// the node exporter's textfile collector.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the pipeline.
type Metrics struct {
	// Stage metrics
	StageDuration *prometheus.HistogramVec // Wall time per pipeline stage
	StageFailures *prometheus.CounterVec   // Failed stages by name
	RunsTotal     prometheus.Counter       // Completed pipeline runs

	// Data metrics
	RowsLoaded     prometheus.Gauge // Rows in the input feature table
	FeaturesLoaded prometheus.Gauge // Feature columns in the input table

	// Forest metrics
	TreesTrained prometheus.Counter // Trees fitted across all runs
	OOBAccuracy  prometheus.Gauge   // Out-of-bag accuracy of the last forest
	TestAUC      prometheus.Gauge   // Held-out AUC of the last forest

	// Importance metrics
	Predictions        prometheus.Counter   // Rows scored by the forest
	AUCScores          prometheus.Histogram // AUC of every scoring pass
	PermutationRounds  prometheus.Counter   // Column shuffles evaluated
	PermutationLatency prometheus.Histogram // Duration of one shuffle and rescore

	// Spectral metrics
	CumulativeComponents prometheus.Gauge // Components needed for the variance target
	FirstBelowNull       prometheus.Gauge // First rank below the broken-stick null, 0 if none

	gatherer prometheus.Gatherer
}

// New creates and registers all metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
// When the registerer is also a Gatherer it is used by WriteTextfile.
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	gatherer, ok := registerer.(prometheus.Gatherer)
	if !ok {
		gatherer = prometheus.DefaultGatherer
	}

	return &Metrics{
		StageDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rfpca_stage_duration_seconds",
			Help:    "Wall time of each pipeline stage in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 16),
		}, []string{"stage"}),
		StageFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rfpca_stage_failures_total",
			Help: "Total number of failed pipeline stages",
		}, []string{"stage"}),
		RunsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfpca_runs_total",
			Help: "Total number of completed pipeline runs",
		}),
		RowsLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rfpca_rows_loaded",
			Help: "Rows in the input feature table",
		}),
		FeaturesLoaded: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rfpca_features_loaded",
			Help: "Feature columns in the input feature table",
		}),
		TreesTrained: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfpca_trees_trained_total",
			Help: "Total number of trees fitted",
		}),
		OOBAccuracy: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rfpca_oob_accuracy",
			Help: "Out-of-bag accuracy of the last fitted forest",
		}),
		TestAUC: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rfpca_test_auc",
			Help: "Area under the ROC curve on the held-out contrastive test set",
		}),
		Predictions: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfpca_predictions_total",
			Help: "Total number of rows scored by the forest",
		}),
		AUCScores: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfpca_auc_scores",
			Help:    "Distribution of AUC values across scoring passes",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}),
		PermutationRounds: factory.NewCounter(prometheus.CounterOpts{
			Name: "rfpca_permutation_rounds_total",
			Help: "Total number of column shuffles evaluated",
		}),
		PermutationLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "rfpca_permutation_latency_seconds",
			Help:    "Duration of one column shuffle and rescore in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 15),
		}),
		CumulativeComponents: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rfpca_cumulative_components",
			Help: "Components needed to reach the cumulative variance target",
		}),
		FirstBelowNull: factory.NewGauge(prometheus.GaugeOpts{
			Name: "rfpca_first_below_null_rank",
			Help: "First component rank below the broken-stick null, 0 if none",
		}),
		gatherer: gatherer,
	}
}

// WriteTextfile writes every metric in the registry to path in the text
// exposition format. The file is replaced atomically.
func (m *Metrics) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, m.gatherer)
}
