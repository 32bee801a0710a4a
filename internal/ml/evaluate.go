package ml

import (
	"encoding/json"
	"fmt"
	"math"

	"rfpca/internal/common"
	"rfpca/internal/contrast"
	"rfpca/internal/forest"

	"github.com/rs/zerolog/log"
)

// Evaluation holds the two quality measures of a fitted forest.
type Evaluation struct {
	// OOBAccuracy is NaN when no row was ever out of bag.
	OOBAccuracy float64
	// TestAUC is measured on the held-out contrastive test set, real and
	// noise rows alike.
	TestAUC float64
}

// OOBDefined reports whether an out-of-bag estimate exists.
func (e Evaluation) OOBDefined() bool {
	return !math.IsNaN(e.OOBAccuracy)
}

// MarshalJSON writes an undefined OOB accuracy as null.
func (e Evaluation) MarshalJSON() ([]byte, error) {
	var oob *float64
	if e.OOBDefined() {
		oob = &e.OOBAccuracy
	}
	return json.Marshal(struct {
		OOBAccuracy *float64 `json:"oob_accuracy"`
		TestAUC     float64  `json:"test_auc"`
	}{oob, e.TestAUC})
}

// Evaluate reads the OOB accuracy recorded at fit time and scores the forest
// on test. It has no side effects, so repeated calls return identical
// results.
func Evaluate(f *forest.Forest, test *contrast.Dataset) (Evaluation, error) {
	if !f.Trained() {
		return Evaluation{}, fmt.Errorf("evaluate: %w", common.ErrNotTrained)
	}
	if test == nil || test.Len() == 0 {
		return Evaluation{}, fmt.Errorf("evaluate: empty test set: %w", common.ErrDataFormat)
	}

	auc, err := scoreAUC(f, test, nil)
	if err != nil {
		return Evaluation{}, fmt.Errorf("evaluate: %w", err)
	}

	ev := Evaluation{OOBAccuracy: f.OOBScore, TestAUC: auc}
	event := log.Info().Float64("test_auc", auc).Int("test_rows", test.Len())
	if ev.OOBDefined() {
		event = event.Float64("oob_accuracy", ev.OOBAccuracy)
	}
	event.Msg("Forest evaluated")
	return ev, nil
}

// scoreAUC scores d with pred and measures the AUC of the real-class
// probabilities. metrics may be nil.
func scoreAUC(pred Predictor, d *contrast.Dataset, metrics MetricsInterface) (float64, error) {
	probs, err := pred.PredictProba(d.X)
	if err != nil {
		return 0, err
	}
	if metrics != nil {
		metrics.PredictionsAdd(float64(len(probs)))
	}
	auc, err := AUC(d.Y, probs)
	if err != nil {
		return 0, err
	}
	if metrics != nil {
		metrics.AUCObserve(auc)
	}
	return auc, nil
}
