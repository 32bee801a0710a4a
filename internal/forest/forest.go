// Package forest implements a bootstrap-aggregated ensemble of binary
// classification trees, following Louppe (2014), "Understanding Random
// Forests", chapters 3 and 4.
//
// Each tree is grown on its own bootstrap sample with class weights
// inversely proportional to the class frequencies of that sample, so a
// skewed real/noise ratio does not bias individual trees. Rows left out of
// a tree's bootstrap provide the out-of-bag accuracy estimate.
package forest

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"rfpca/internal/common"
	"rfpca/internal/rng"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options configures Fit. Zero or negative values select the defaults noted
// on each field.
type Options struct {
	NEstimators int // default 100
	MaxDepth    int // <= 0: unlimited
	MinLeaf     int // default 1
	MaxFeatures int // <= 0: sqrt(features)
	Workers     int // <= 0: GOMAXPROCS
}

// Forest is a fitted ensemble. It is immutable after Fit returns and safe
// for concurrent use.
type Forest struct {
	Trees       []*Tree
	NFeatures   int
	MaxFeatures int
	// OOBScore is the out-of-bag accuracy, NaN when no row was ever left
	// out of a bootstrap sample.
	OOBScore float64
	// OOBCoverage is the fraction of rows with at least one out-of-bag vote.
	OOBCoverage float64

	workers int
}

// Trained reports whether the forest holds at least one tree.
func (f *Forest) Trained() bool {
	return f != nil && len(f.Trees) > 0
}

type fitted struct {
	tree  *Tree
	inBag []uint64
}

// Fit grows the ensemble on X with binary labels Y in {0, 1}. Tree i draws
// all of its randomness from stream.Derive("tree", i), so the result does
// not depend on the number of workers or their scheduling.
func Fit(X [][]float64, Y []int, opts Options, stream rng.Stream) (*Forest, error) {
	if len(X) == 0 || len(X) != len(Y) {
		return nil, fmt.Errorf("need matching non-empty rows and labels, got %d rows and %d labels: %w",
			len(X), len(Y), common.ErrTraining)
	}
	nFeat := len(X[0])
	if nFeat == 0 {
		return nil, fmt.Errorf("rows have no features: %w", common.ErrTraining)
	}

	var counts [2]int
	for i, y := range Y {
		if y != 0 && y != 1 {
			return nil, fmt.Errorf("label %d at row %d is not binary: %w", y, i, common.ErrTraining)
		}
		if len(X[i]) != nFeat {
			return nil, fmt.Errorf("row %d has %d features, want %d: %w", i, len(X[i]), nFeat, common.ErrTraining)
		}
		counts[y]++
	}
	if counts[0] == 0 || counts[1] == 0 {
		return nil, fmt.Errorf("labels have fewer than 2 distinct values (noise=%d, real=%d): %w",
			counts[0], counts[1], common.ErrTraining)
	}

	opts = opts.withDefaults(nFeat)
	params := treeParams{maxDepth: opts.MaxDepth, minLeaf: opts.MinLeaf, maxFeatures: opts.MaxFeatures}

	n := len(X)
	results := make([]fitted, opts.NEstimators)

	var g errgroup.Group
	g.SetLimit(opts.Workers)
	for t := range results {
		g.Go(func() error {
			ts := stream.Derive("tree", t)
			inx := bootstrap(n, ts.Derive("bootstrap"))
			weight := balancedWeights(Y, inx)

			inBag := make([]uint64, (n+63)/64)
			for _, i := range inx {
				inBag[i/64] |= 1 << (uint(i) % 64)
			}

			results[t] = fitted{
				tree:  growTree(X, Y, inx, weight, params, ts.Derive("split").Rand()),
				inBag: inBag,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	f := &Forest{
		Trees:       make([]*Tree, len(results)),
		NFeatures:   nFeat,
		MaxFeatures: opts.MaxFeatures,
		workers:     opts.Workers,
	}
	for i, r := range results {
		f.Trees[i] = r.tree
	}
	f.OOBScore, f.OOBCoverage = f.outOfBag(X, Y, results)

	log.Debug().
		Int("trees", len(f.Trees)).
		Int("rows", n).
		Int("features", nFeat).
		Int("max_features", opts.MaxFeatures).
		Float64("oob_score", f.OOBScore).
		Msg("Forest fitted")

	return f, nil
}

func (o Options) withDefaults(nFeat int) Options {
	if o.NEstimators <= 0 {
		o.NEstimators = 100
	}
	if o.MinLeaf <= 0 {
		o.MinLeaf = 1
	}
	if o.MaxFeatures <= 0 {
		o.MaxFeatures = int(math.Sqrt(float64(nFeat)))
	}
	o.MaxFeatures = max(1, min(o.MaxFeatures, nFeat))
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	return o
}

// bootstrap draws n row indices with replacement.
func bootstrap(n int, stream rng.Stream) []int {
	r := stream.Rand()
	inx := make([]int, n)
	for i := range inx {
		inx[i] = r.IntN(n)
	}
	return inx
}

// balancedWeights returns per-class weights n / (2 * count_c) computed on the
// bootstrap sample, so both classes carry equal total weight in the tree.
func balancedWeights(Y []int, inx []int) [2]float64 {
	var counts [2]float64
	for _, i := range inx {
		counts[Y[i]]++
	}
	var w [2]float64
	for c := range w {
		if counts[c] > 0 {
			w[c] = float64(len(inx)) / (2 * counts[c])
		}
	}
	return w
}

// outOfBag sums the class probabilities of every tree that did not see a
// row, then scores the argmax against the label. Rows are split into
// chunks, and each chunk walks the trees in order, so the sums are
// reproducible.
func (f *Forest) outOfBag(X [][]float64, Y []int, results []fitted) (float64, float64) {
	n := len(X)
	correct := make([]int8, n) // -1 no vote, 0 wrong, 1 right

	f.forChunks(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			var pReal, pNoise float64
			votes := 0
			word, bit := i/64, uint64(1)<<(uint(i)%64)
			for _, r := range results {
				if r.inBag[word]&bit != 0 {
					continue
				}
				p := r.tree.Predict(X[i])
				pReal += p
				pNoise += 1 - p
				votes++
			}
			switch {
			case votes == 0:
				correct[i] = -1
			case (pReal > pNoise) == (Y[i] == 1):
				correct[i] = 1
			}
		}
	})

	scored, hits := 0, 0
	for _, c := range correct {
		if c >= 0 {
			scored++
			hits += int(c)
		}
	}
	if scored == 0 {
		log.Warn().Int("rows", n).Msg("No out-of-bag rows; OOB score unavailable")
		return math.NaN(), 0
	}
	if scored < n {
		log.Debug().Int("rows_without_oob", n-scored).Msg("Some rows never left out of bag")
	}
	return float64(hits) / float64(scored), float64(scored) / float64(n)
}

// PredictProba returns the mean real-class probability over all trees for
// each row.
func (f *Forest) PredictProba(X [][]float64) ([]float64, error) {
	if !f.Trained() {
		return nil, fmt.Errorf("predict: %w", common.ErrNotTrained)
	}
	for i, x := range X {
		if len(x) != f.NFeatures {
			return nil, fmt.Errorf("row %d has %d features, forest expects %d: %w",
				i, len(x), f.NFeatures, common.ErrDataFormat)
		}
	}

	out := make([]float64, len(X))
	nTrees := float64(len(f.Trees))
	f.forChunks(len(X), func(lo, hi int) {
		for i := lo; i < hi; i++ {
			s := 0.0
			for _, t := range f.Trees {
				s += t.Predict(X[i])
			}
			out[i] = s / nTrees
		}
	})
	return out, nil
}

// FeatureImportances returns the mean decrease in impurity per feature,
// averaged over the trees that split at least once and renormalised to sum
// to 1, together with the standard deviation across those trees.
func (f *Forest) FeatureImportances() (mean, std []float64, err error) {
	if !f.Trained() {
		return nil, nil, fmt.Errorf("impurity importance: %w", common.ErrNotTrained)
	}

	mean = make([]float64, f.NFeatures)
	std = make([]float64, f.NFeatures)

	var split []*Tree
	for _, t := range f.Trees {
		if t.Split() {
			split = append(split, t)
		}
	}
	if len(split) == 0 {
		return mean, std, nil
	}

	k := float64(len(split))
	for _, t := range split {
		for j, v := range t.importance {
			mean[j] += v / k
		}
	}
	for _, t := range split {
		for j, v := range t.importance {
			d := v - mean[j]
			std[j] += d * d / k
		}
	}
	for j := range std {
		std[j] = math.Sqrt(std[j])
	}

	total := 0.0
	for _, v := range mean {
		total += v
	}
	if total > 0 {
		for j := range mean {
			mean[j] /= total
			std[j] /= total
		}
	}
	return mean, std, nil
}

// forChunks runs fn over [0, n) split into contiguous chunks on the forest's
// workers and waits for all of them.
func (f *Forest) forChunks(n int, fn func(lo, hi int)) {
	workers := f.workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	chunk := (n + workers - 1) / workers
	if chunk < 64 {
		chunk = 64
	}

	var wg sync.WaitGroup
	for lo := 0; lo < n; lo += chunk {
		hi := min(lo+chunk, n)
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(lo, hi)
		}()
	}
	wg.Wait()
}
