package ml

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"time"

	"rfpca/internal/common"
	"rfpca/internal/contrast"
	"rfpca/internal/forest"
	"rfpca/internal/rng"

	"github.com/montanaflynn/stats"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// RankedFeature is one entry of a feature ranking.
type RankedFeature struct {
	Name string  `json:"name"`
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Strategy scores every column of the test set by how much the forest
// relies on it. Importances returns one mean and one spread per column, in
// column order.
type Strategy interface {
	Name() string
	Importances(ctx context.Context, f *forest.Forest, test *contrast.Dataset, stream rng.Stream) (mean, std []float64, err error)
}

// NewStrategy returns the strategy registered under name.
func NewStrategy(name string, nRepeats, workers int, metrics MetricsInterface) (Strategy, error) {
	switch name {
	case common.StrategyPermutation:
		return &Permutation{NRepeats: nRepeats, Workers: workers, Metrics: metrics}, nil
	case common.StrategyImpurity:
		return Impurity{}, nil
	default:
		return nil, fmt.Errorf("unknown importance strategy %q", name)
	}
}

// Permutation measures the drop in test AUC when one column is shuffled,
// repeated NRepeats times per column.
type Permutation struct {
	NRepeats int // default 5
	Workers  int // <= 0: GOMAXPROCS
	Metrics  MetricsInterface
}

func (p *Permutation) Name() string { return common.StrategyPermutation }

// Importances shuffles column j for repeat r with stream.Derive("permutation",
// j, r). Columns are scored concurrently; the result does not depend on the
// worker count.
func (p *Permutation) Importances(ctx context.Context, f *forest.Forest, test *contrast.Dataset, stream rng.Stream) ([]float64, []float64, error) {
	if !f.Trained() {
		return nil, nil, fmt.Errorf("permutation importance: %w", common.ErrNotTrained)
	}
	return p.ImportancesOf(ctx, f, test, stream)
}

// ImportancesOf runs the permutation scheme against any predictor.
func (p *Permutation) ImportancesOf(ctx context.Context, pred Predictor, test *contrast.Dataset, stream rng.Stream) ([]float64, []float64, error) {
	if test == nil || test.Len() == 0 {
		return nil, nil, fmt.Errorf("permutation importance: empty test set: %w", common.ErrDataFormat)
	}

	repeats := p.NRepeats
	if repeats <= 0 {
		repeats = 5
	}
	workers := p.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	baseline, err := p.score(pred, test)
	if err != nil {
		return nil, nil, fmt.Errorf("permutation baseline: %w", err)
	}

	nFeat := test.NumFeatures()
	mean := make([]float64, nFeat)
	std := make([]float64, nFeat)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for j := 0; j < nFeat; j++ {
		g.Go(func() error {
			col := test.Column(j)
			drops := make([]float64, repeats)
			shuffled := make([]float64, len(col))
			for r := range drops {
				if err := ctx.Err(); err != nil {
					return err
				}
				start := time.Now()
				for i, k := range stream.Derive("permutation", j, r).Perm(len(col)) {
					shuffled[i] = col[k]
				}
				auc, err := p.score(pred, test.WithColumn(j, shuffled))
				if err != nil {
					return fmt.Errorf("column %q repeat %d: %w", test.Columns[j], r, err)
				}
				drops[r] = baseline - auc
				if p.Metrics != nil {
					p.Metrics.PermutationRoundsInc()
					p.Metrics.PermutationLatencyObserve(time.Since(start).Seconds())
				}
			}

			m, err := stats.Mean(drops)
			if err != nil {
				return fmt.Errorf("column %q: %w: %v", test.Columns[j], common.ErrNumeric, err)
			}
			s, err := stats.StandardDeviationPopulation(drops)
			if err != nil {
				return fmt.Errorf("column %q: %w: %v", test.Columns[j], common.ErrNumeric, err)
			}
			mean[j], std[j] = m, s
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	log.Debug().
		Int("features", nFeat).
		Int("repeats", repeats).
		Float64("baseline_auc", baseline).
		Msg("Permutation importance computed")
	return mean, std, nil
}

func (p *Permutation) score(pred Predictor, d *contrast.Dataset) (float64, error) {
	return scoreAUC(pred, d, p.Metrics)
}

// Impurity reads the forest's mean decrease in impurity. The test set only
// supplies column names.
type Impurity struct{}

func (Impurity) Name() string { return common.StrategyImpurity }

func (Impurity) Importances(_ context.Context, f *forest.Forest, test *contrast.Dataset, _ rng.Stream) ([]float64, []float64, error) {
	mean, std, err := f.FeatureImportances()
	if err != nil {
		return nil, nil, err
	}
	if test != nil && test.NumFeatures() != len(mean) {
		return nil, nil, fmt.Errorf("impurity importance: %d columns vs %d forest features: %w",
			test.NumFeatures(), len(mean), common.ErrDataFormat)
	}
	return mean, std, nil
}

// RankFeatures scores every column with s and sorts descending by mean.
// Ties keep column order.
func RankFeatures(ctx context.Context, f *forest.Forest, test *contrast.Dataset, s Strategy, stream rng.Stream) ([]RankedFeature, error) {
	if !f.Trained() {
		return nil, fmt.Errorf("rank features: %w", common.ErrNotTrained)
	}
	if test == nil {
		return nil, fmt.Errorf("rank features: no test set: %w", common.ErrDataFormat)
	}

	mean, std, err := s.Importances(ctx, f, test, stream)
	if err != nil {
		return nil, err
	}

	ranked := make([]RankedFeature, len(mean))
	for j := range mean {
		ranked[j] = RankedFeature{Name: test.Columns[j], Mean: mean[j], Std: std[j]}
	}
	SortRanked(ranked)

	if len(ranked) > 0 {
		log.Info().
			Str("strategy", s.Name()).
			Int("features", len(ranked)).
			Str("top_feature", ranked[0].Name).
			Float64("top_importance", ranked[0].Mean).
			Msg("Features ranked")
	}
	return ranked, nil
}

// SortRanked sorts descending by mean, stable on ties.
func SortRanked(ranked []RankedFeature) {
	slices.SortStableFunc(ranked, func(a, b RankedFeature) int {
		switch {
		case a.Mean > b.Mean:
			return -1
		case a.Mean < b.Mean:
			return 1
		}
		return 0
	})
}

// TopN returns the first n entries of an already sorted ranking.
func TopN(ranked []RankedFeature, n int) []RankedFeature {
	if n < 0 || n > len(ranked) {
		n = len(ranked)
	}
	return ranked[:n]
}

// SaveRanking writes the ranking as indented JSON, creating parent
// directories as needed.
func SaveRanking(path string, ranked []RankedFeature) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(ranked, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}

// LoadRanking reads a ranking written by SaveRanking.
func LoadRanking(path string) ([]RankedFeature, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var ranked []RankedFeature
	if err := json.Unmarshal(data, &ranked); err != nil {
		return nil, fmt.Errorf("ranking %s: %w: %v", path, common.ErrDataFormat, err)
	}
	return ranked, nil
}
