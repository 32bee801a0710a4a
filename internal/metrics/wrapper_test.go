package metrics

import (
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNewWrapper(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestMetricsWrapper_StageOperations(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := NewWithRegistry(registry)
	wrapper := NewWrapper(metrics)

	wrapper.StageObserve("split", 0.5)
	wrapper.StageObserve("train", 2)
	wrapper.StageFailed("reduce")
	wrapper.StageFailed("reduce")
	wrapper.RunCompleted()

	if got := testutil.CollectAndCount(metrics.StageDuration); got != 2 {
		t.Errorf("Expected 2 stage duration series, got %d", got)
	}
	if got := testutil.ToFloat64(metrics.StageFailures.WithLabelValues("reduce")); got != 2 {
		t.Errorf("Expected 2 reduce failures, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.RunsTotal); got != 1 {
		t.Errorf("Expected 1 completed run, got %f", got)
	}
}

func TestMetricsWrapper_GaugeOperations(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.TableLoaded(1000, 10)
	if got := testutil.ToFloat64(metrics.RowsLoaded); got != 1000 {
		t.Errorf("Expected 1000 rows, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.FeaturesLoaded); got != 10 {
		t.Errorf("Expected 10 features, got %f", got)
	}

	wrapper.EvaluationSet(0.9, 0.95)
	wrapper.EvaluationSet(math.NaN(), 0.8)
	if got := testutil.ToFloat64(metrics.OOBAccuracy); got != 0.9 {
		t.Errorf("Expected OOB accuracy to keep 0.9, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.TestAUC); got != 0.8 {
		t.Errorf("Expected test AUC 0.8, got %f", got)
	}

	wrapper.ThresholdsSet(3, 2)
	if got := testutil.ToFloat64(metrics.CumulativeComponents); got != 3 {
		t.Errorf("Expected 3 components, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.FirstBelowNull); got != 2 {
		t.Errorf("Expected first below null 2, got %f", got)
	}
}

func TestMetricsWrapper_CounterOperations(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	wrapper := NewWrapper(metrics)

	wrapper.TreesAdd(100)
	wrapper.PredictionsAdd(250)
	wrapper.PermutationRoundsInc()
	wrapper.PermutationRoundsInc()
	wrapper.PermutationLatencyObserve(0.01)
	wrapper.AUCObserve(0.7)

	if got := testutil.ToFloat64(metrics.TreesTrained); got != 100 {
		t.Errorf("Expected 100 trees, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.Predictions); got != 250 {
		t.Errorf("Expected 250 predictions, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.PermutationRounds); got != 2 {
		t.Errorf("Expected 2 permutation rounds, got %f", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	metrics := NewWithRegistry(prometheus.NewRegistry())
	NewWrapper(metrics).TreesAdd(7)

	path := filepath.Join(t.TempDir(), "rfpca.prom")
	if err := metrics.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read textfile: %v", err)
	}
	if !strings.Contains(string(data), "rfpca_trees_trained_total 7") {
		t.Errorf("Expected trees counter in textfile, got:\n%s", data)
	}
}
