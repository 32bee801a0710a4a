package pca

import (
	"fmt"
	"math"

	"rfpca/internal/common"
	"rfpca/internal/table"

	"gonum.org/v1/gonum/mat"
)

// Embed projects realRows onto the first k components of prof, using the
// means and standard deviations recorded in prof. The result has one row
// per input row and k columns.
func Embed(realRows *table.Table, prof *SpectralProfile, k int) ([][]float64, error) {
	if k <= 0 || k > prof.NumComponents() {
		return nil, fmt.Errorf("embed: %d components requested, profile holds %d: %w",
			k, prof.NumComponents(), common.ErrDataFormat)
	}
	sub, err := realRows.Select(prof.Features)
	if err != nil {
		return nil, fmt.Errorf("embed: %w", err)
	}

	n, p := sub.NumRows(), sub.NumCols()
	z := mat.NewDense(n, p, nil)
	for i, row := range sub.Rows {
		for j, v := range row {
			if math.IsNaN(v) {
				return nil, fmt.Errorf("embed: column %q row %d is missing: %w", sub.Columns[j], i, common.ErrNumeric)
			}
			z.Set(i, j, (v-prof.Means[j])/prof.Stds[j])
		}
	}

	w := mat.NewDense(p, k, nil)
	for c := 0; c < k; c++ {
		w.SetCol(c, prof.Components[c])
	}

	var scores mat.Dense
	scores.Mul(z, w)
	out := make([][]float64, n)
	for i := range out {
		out[i] = mat.Row(nil, i, &scores)
	}
	return out, nil
}
