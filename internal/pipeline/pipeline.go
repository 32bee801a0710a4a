// Package pipeline runs the noise-contrastive significance analysis end to
// end: split, impute and augment the real rows, fit and score the forest,
// rank the features, then decompose the top-ranked real columns and test
// each component against the broken-stick null.
//
// Every stage hands an immutable value to the next one. A failed stage
// aborts the run and nothing computed before it is returned.
package pipeline

import (
	"context"
	"time"

	"rfpca/internal/cfg"
	"rfpca/internal/contrast"
	"rfpca/internal/forest"
	"rfpca/internal/ml"
	"rfpca/internal/pca"
	"rfpca/internal/rng"
	"rfpca/internal/table"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MetricsInterface defines the metrics methods needed by the pipeline.
type MetricsInterface interface {
	ml.MetricsInterface
	StageObserve(stage string, seconds float64)
	StageFailed(stage string)
	RunCompleted()
	TableLoaded(rows, features int)
	TreesAdd(n int)
	EvaluationSet(oob, auc float64)
	ThresholdsSet(cumulative, firstBelowNull int)
}

// StageTiming records how long a stage took.
type StageTiming struct {
	Stage    string        `json:"stage"`
	Duration time.Duration `json:"duration_ns"`
}

// Result is everything a successful run produces.
type Result struct {
	RunID      string               `json:"run_id"`
	StartedAt  time.Time            `json:"started_at"`
	Seed       uint64               `json:"seed"`
	Strategy   string               `json:"strategy"`
	Rows       int                  `json:"rows"`
	Features   int                  `json:"features"`
	TrainRows  int                  `json:"train_rows"`
	TestRows   int                  `json:"test_rows"`
	Dropped    []string             `json:"dropped_columns"`
	Evaluation ml.Evaluation        `json:"evaluation"`
	Ranking    []ml.RankedFeature   `json:"ranking"`
	Selected   []string             `json:"selected_features"`
	Profile    *pca.SpectralProfile `json:"spectral_profile"`
	Thresholds pca.Thresholds       `json:"thresholds"`
	Embedding  [][]float64          `json:"embedding,omitempty"`
	Stages     []StageTiming        `json:"stages"`

	Partition contrast.Partition `json:"-"`
	Forest    *forest.Forest     `json:"-"`
}

// Pipeline runs the analysis with fixed settings. It holds no state between
// runs.
type Pipeline struct {
	settings cfg.Settings
	metrics  MetricsInterface
}

// New creates a pipeline. metrics may be nil.
func New(settings cfg.Settings, metrics MetricsInterface) *Pipeline {
	return &Pipeline{settings: settings, metrics: metrics}
}

// Run analyses t. All randomness derives from the configured seed: the
// contrast, forest, importance and pca sub-streams are split off the root
// so each can be reproduced on its own.
func (p *Pipeline) Run(ctx context.Context, t *table.Table) (*Result, error) {
	s := p.settings
	root := rng.New(s.Seed)
	res := &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
		Seed:      s.Seed,
		Strategy:  s.Strategy,
		Rows:      t.NumRows(),
		Features:  t.NumCols(),
	}
	if p.metrics != nil {
		p.metrics.TableLoaded(res.Rows, res.Features)
	}

	logger := log.With().Str("run_id", res.RunID).Logger()
	logger.Info().
		Int("rows", res.Rows).
		Int("features", res.Features).
		Uint64("seed", s.Seed).
		Str("strategy", s.Strategy).
		Msg("Pipeline started")

	stage := func(name string, fn func() error) error {
		if err := ctx.Err(); err != nil {
			return p.fail(name, err)
		}
		start := time.Now()
		err := fn()
		elapsed := time.Since(start)
		if err != nil {
			return p.fail(name, err)
		}
		res.Stages = append(res.Stages, StageTiming{Stage: name, Duration: elapsed})
		if p.metrics != nil {
			p.metrics.StageObserve(name, elapsed.Seconds())
		}
		logger.Info().Str("stage", name).Dur("duration", elapsed).Msg("Stage finished")
		return nil
	}

	contrastStream := root.Derive("contrast")
	var (
		part        contrast.Partition
		train, test *contrast.Dataset
		imputation  contrast.Imputation
		strategy    ml.Strategy
	)

	if err := stage(StageSplit, func() (err error) {
		part, err = contrast.SplitPartition(t, s.TestFraction, contrastStream)
		return err
	}); err != nil {
		return nil, err
	}
	res.TrainRows, res.TestRows = part.Train.NumRows(), part.Test.NumRows()

	if err := stage(StageImpute, func() (err error) {
		part, imputation, res.Dropped, err = contrast.ImputePartition(part, s.DropUndefinedColumns)
		return err
	}); err != nil {
		return nil, err
	}
	logger.Debug().Int("imputed_columns", len(imputation.Columns)).Msg("Training medians applied")

	if err := stage(StageAugment, func() (err error) {
		train, test, err = contrast.AugmentPartition(part, s.NoiseRatio, contrastStream)
		return err
	}); err != nil {
		return nil, err
	}
	res.Partition = part

	if err := stage(StageTrain, func() (err error) {
		res.Forest, err = forest.Fit(train.X, train.Y, forest.Options{
			NEstimators: s.NEstimators,
			MaxDepth:    s.MaxDepth,
			MinLeaf:     s.MinLeafSize,
			MaxFeatures: s.MaxFeatures,
			Workers:     s.Workers,
		}, root.Derive("forest"))
		if err == nil && p.metrics != nil {
			p.metrics.TreesAdd(len(res.Forest.Trees))
		}
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(StageEvaluate, func() (err error) {
		res.Evaluation, err = ml.Evaluate(res.Forest, test)
		if err == nil && p.metrics != nil {
			p.metrics.EvaluationSet(res.Evaluation.OOBAccuracy, res.Evaluation.TestAUC)
		}
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(StageRank, func() (err error) {
		if strategy, err = ml.NewStrategy(s.Strategy, s.NRepeats, s.Workers, p.metrics); err != nil {
			return err
		}
		res.Ranking, err = ml.RankFeatures(ctx, res.Forest, test, strategy, root.Derive("importance"))
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(StageReduce, func() (err error) {
		res.Selected = pca.SelectTopFeatures(res.Ranking, s.TopFeatures)
		res.Profile, err = pca.Reduce(part.Train, res.Selected, s.MaxComponents, s.Solver, root.Derive("pca"))
		return err
	}); err != nil {
		return nil, err
	}

	if err := stage(StageThreshold, func() (err error) {
		res.Thresholds, err = pca.SignificantComponentCount(res.Profile, s.VarianceTarget)
		if err == nil && p.metrics != nil {
			p.metrics.ThresholdsSet(res.Thresholds.CumulativeCount, res.Thresholds.FirstBelowNull)
		}
		return err
	}); err != nil {
		return nil, err
	}

	if s.Embed {
		if err := stage(StageEmbed, func() (err error) {
			res.Embedding, err = pca.Embed(part.Train, res.Profile, res.Thresholds.CumulativeCount)
			return err
		}); err != nil {
			return nil, err
		}
	}

	if p.metrics != nil {
		p.metrics.RunCompleted()
	}
	event := logger.Info().
		Float64("test_auc", res.Evaluation.TestAUC).
		Str("top_feature", res.Ranking[0].Name).
		Int("cumulative_count", res.Thresholds.CumulativeCount).
		Ints("below_null_ranks", res.Thresholds.BelowNull)
	if res.Evaluation.OOBDefined() {
		event = event.Float64("oob_accuracy", res.Evaluation.OOBAccuracy)
	}
	event.Msg("Pipeline finished")
	return res, nil
}

func (p *Pipeline) fail(stage string, err error) error {
	if p.metrics != nil {
		p.metrics.StageFailed(stage)
	}
	return &StageError{Stage: stage, Err: err}
}
