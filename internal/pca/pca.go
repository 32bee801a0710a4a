// Package pca measures how many orthogonal directions the top-ranked real
// features span, and checks each direction against the broken-stick null
// model of a randomly partitioned variance.
package pca

import (
	"fmt"
	"math"
	"sort"

	"rfpca/internal/common"
	"rfpca/internal/ml"
	"rfpca/internal/rng"
	"rfpca/internal/table"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// SpectralProfile is the decomposition of the standardized real rows over
// a feature subset. Series are indexed by rank, largest eigenvalue first.
type SpectralProfile struct {
	Features    []string    `json:"features"`
	Rows        int         `json:"rows"`
	Solver      string      `json:"solver"`
	Eigenvalues []float64   `json:"eigenvalues"`
	Ratios      []float64   `json:"explained_variance_ratio"`
	Cumulative  []float64   `json:"cumulative_variance_ratio"`
	BrokenStick []float64   `json:"broken_stick"`
	Means       []float64   `json:"means"`
	Stds        []float64   `json:"stds"`
	Components  [][]float64 `json:"components"` // one loading vector per rank
}

// NumComponents returns the number of retained components.
func (p *SpectralProfile) NumComponents() int {
	if p == nil {
		return 0
	}
	return len(p.Eigenvalues)
}

// SelectTopFeatures returns the names of the first min(kMax, len(ranked))
// entries of an already sorted ranking.
func SelectTopFeatures(ranked []ml.RankedFeature, kMax int) []string {
	k := min(max(kMax, 0), len(ranked))
	names := make([]string, k)
	for i := range names {
		names[i] = ranked[i].Name
	}
	return names
}

// Reduce standardizes the selected columns of realRows with their own mean
// and sample standard deviation, then decomposes the correlation structure.
// Up to nComponents directions are kept. The randomized solver draws its
// test matrix from stream; the eigen solver is exact and ignores it.
func Reduce(realRows *table.Table, features []string, nComponents int, solver string, stream rng.Stream) (*SpectralProfile, error) {
	if len(features) == 0 {
		return nil, fmt.Errorf("reduce: no features selected: %w", common.ErrDataFormat)
	}
	if nComponents <= 0 {
		return nil, fmt.Errorf("reduce: n_components must be positive, got %d: %w", nComponents, common.ErrDataFormat)
	}
	sub, err := realRows.Select(features)
	if err != nil {
		return nil, fmt.Errorf("reduce: %w", err)
	}

	z, means, stds, err := standardize(sub)
	if err != nil {
		return nil, err
	}
	n, p := z.Dims()

	var eig []float64
	var vecs *mat.Dense
	switch solver {
	case common.SolverEigen, "":
		solver = common.SolverEigen
		eig, vecs, err = eigenSolve(z)
	case common.SolverRandomized:
		eig, vecs, err = randomizedSolve(z, min(nComponents, p, n), stream)
	default:
		return nil, fmt.Errorf("reduce: unknown solver %q: %w", solver, common.ErrDataFormat)
	}
	if err != nil {
		return nil, err
	}

	k := min(nComponents, len(eig))
	null := BrokenStickNull(p)
	prof := &SpectralProfile{
		Features:    append([]string(nil), features...),
		Rows:        n,
		Solver:      solver,
		Eigenvalues: make([]float64, k),
		Ratios:      make([]float64, k),
		Cumulative:  make([]float64, k),
		BrokenStick: null[:k],
		Means:       means,
		Stds:        stds,
		Components:  make([][]float64, k),
	}

	cum := 0.0
	for i := 0; i < k; i++ {
		v := math.Max(eig[i], 0)
		prof.Eigenvalues[i] = v
		prof.Ratios[i] = v / float64(p)
		cum += prof.Ratios[i]
		prof.Cumulative[i] = math.Min(cum, 1)
		prof.Components[i] = loading(vecs, i)
	}

	log.Debug().
		Str("solver", solver).
		Int("rows", n).
		Int("features", p).
		Int("components", k).
		Msg("Spectral profile computed")
	return prof, nil
}

// standardize returns the z-scored matrix with the column means and sample
// standard deviations used.
func standardize(t *table.Table) (*mat.Dense, []float64, []float64, error) {
	n, p := t.NumRows(), t.NumCols()
	if n < 2 {
		return nil, nil, nil, fmt.Errorf("reduce: need at least 2 rows, got %d: %w", n, common.ErrNumeric)
	}

	z := mat.NewDense(n, p, nil)
	means := make([]float64, p)
	stds := make([]float64, p)
	for j := 0; j < p; j++ {
		col := t.Column(j)
		for i, v := range col {
			if math.IsNaN(v) {
				return nil, nil, nil, fmt.Errorf("reduce: column %q row %d is missing: %w", t.Columns[j], i, common.ErrNumeric)
			}
		}
		m, s := stat.MeanStdDev(col, nil)
		if !(s > 0) || math.IsInf(s, 0) {
			return nil, nil, nil, fmt.Errorf("reduce: column %q has zero variance: %w", t.Columns[j], common.ErrNumeric)
		}
		means[j], stds[j] = m, s
		for i, v := range col {
			z.Set(i, j, (v-m)/s)
		}
	}
	return z, means, stds, nil
}

// eigenSolve decomposes the p x p correlation matrix exactly.
func eigenSolve(z *mat.Dense) ([]float64, *mat.Dense, error) {
	n, p := z.Dims()
	corr := mat.NewSymDense(p, nil)
	corr.SymOuterK(1/float64(n-1), z.T())

	var es mat.EigenSym
	if ok := es.Factorize(corr, true); !ok {
		return nil, nil, fmt.Errorf("reduce: eigendecomposition did not converge: %w", common.ErrNumeric)
	}
	values := es.Values(nil)
	var vecs mat.Dense
	es.VectorsTo(&vecs)

	// EigenSym returns ascending values
	order := make([]int, p)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool { return values[order[a]] > values[order[b]] })

	sorted := make([]float64, p)
	out := mat.NewDense(p, p, nil)
	for r, i := range order {
		sorted[r] = values[i]
		out.SetCol(r, mat.Col(nil, i, &vecs))
	}
	return sorted, out, nil
}

// loading returns column i of vecs with its sign fixed so that the entry of
// largest magnitude is positive.
func loading(vecs *mat.Dense, i int) []float64 {
	v := mat.Col(nil, i, vecs)
	big := 0
	for j := range v {
		if math.Abs(v[j]) > math.Abs(v[big]) {
			big = j
		}
	}
	if v[big] < 0 {
		for j := range v {
			v[j] = -v[j]
		}
	}
	return v
}
