package contrast

import (
	"fmt"

	"rfpca/internal/common"
	"rfpca/internal/rng"
	"rfpca/internal/table"
)

// Labels of the contrastive classes.
const (
	LabelNoise = 0
	LabelReal  = 1
)

// Dataset is a labelled contrastive dataset. X is row-major and shares the
// column order of the real table it was derived from.
type Dataset struct {
	Columns  []string
	X        [][]float64
	Y        []int
	NumReal  int
	NumNoise int
}

// Len returns the number of rows.
func (d *Dataset) Len() int {
	if d == nil {
		return 0
	}
	return len(d.X)
}

// NumFeatures returns the number of columns.
func (d *Dataset) NumFeatures() int {
	if d == nil {
		return 0
	}
	return len(d.Columns)
}

// Column returns a copy of column j.
func (d *Dataset) Column(j int) []float64 {
	out := make([]float64, len(d.X))
	for i, row := range d.X {
		out[i] = row[j]
	}
	return out
}

// WithColumn returns a copy of d in which column j takes the given values.
// d itself is left untouched.
func (d *Dataset) WithColumn(j int, values []float64) *Dataset {
	x := make([][]float64, len(d.X))
	for i, row := range d.X {
		r := make([]float64, len(row))
		copy(r, row)
		r[j] = values[i]
		x[i] = r
	}
	return &Dataset{Columns: d.Columns, X: x, Y: d.Y, NumReal: d.NumReal, NumNoise: d.NumNoise}
}

// Augment pairs the real rows with int(noiseRatio*n) noise rows, failing
// with ErrTraining when that count is zero. Each column
// is permuted independently, which keeps its exact multiset of values while
// breaking every dependency between columns. The permuted pool is sampled
// without replacement, or with replacement when more rows are requested
// than it holds. Real and noise rows are then shuffled together.
//
// The output is a pure function of (realRows, noiseRatio, stream).
func Augment(realRows *table.Table, noiseRatio float64, stream rng.Stream) (*Dataset, error) {
	if realRows.Empty() {
		return nil, fmt.Errorf("cannot augment an empty table: %w", common.ErrDataFormat)
	}
	if noiseRatio <= 0 {
		return nil, fmt.Errorf("noise ratio must be positive, got %v: %w", noiseRatio, common.ErrDataFormat)
	}

	n, p := realRows.NumRows(), realRows.NumCols()

	pool := make([][]float64, n)
	for i := range pool {
		pool[i] = make([]float64, p)
	}
	for j := 0; j < p; j++ {
		perm := stream.Derive("column", j).Perm(n)
		for i, src := range perm {
			pool[i][j] = realRows.Rows[src][j]
		}
	}

	nNoise := int(noiseRatio * float64(n))
	if nNoise == 0 {
		return nil, fmt.Errorf("noise ratio %v yields no noise rows for %d real rows: %w",
			noiseRatio, n, common.ErrTraining)
	}
	noise := make([][]float64, nNoise)
	if nNoise > n {
		r := stream.Derive("sample").Rand()
		for i := range noise {
			noise[i] = pool[r.IntN(n)]
		}
	} else {
		perm := stream.Derive("sample").Perm(n)
		for i := range noise {
			noise[i] = pool[perm[i]]
		}
	}

	total := n + nNoise
	x := make([][]float64, 0, total)
	y := make([]int, 0, total)
	for _, row := range realRows.Rows {
		x = append(x, append([]float64(nil), row...))
		y = append(y, LabelReal)
	}
	for _, row := range noise {
		x = append(x, append([]float64(nil), row...))
		y = append(y, LabelNoise)
	}

	order := stream.Derive("shuffle").Perm(total)
	d := &Dataset{
		Columns:  append([]string(nil), realRows.Columns...),
		X:        make([][]float64, total),
		Y:        make([]int, total),
		NumReal:  n,
		NumNoise: nNoise,
	}
	for i, src := range order {
		d.X[i] = x[src]
		d.Y[i] = y[src]
	}

	return d, nil
}
