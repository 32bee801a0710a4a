package contrast

import (
	"fmt"
	"math"
	"slices"

	"rfpca/internal/common"
	"rfpca/internal/table"

	"github.com/montanaflynn/stats"
)

// Imputation holds the per-column medians computed from the training rows.
// Undefined lists the columns with no observed training value; their median
// is NaN and their missing cells are left untouched.
type Imputation struct {
	Columns   []string  `json:"columns"`
	Medians   []float64 `json:"-"`
	Undefined []string  `json:"undefined,omitempty"`
}

// Median returns the imputation value for the named column.
func (im Imputation) Median(column string) (float64, bool) {
	i := slices.Index(im.Columns, column)
	if i < 0 {
		return math.NaN(), false
	}
	return im.Medians[i], true
}

// Impute fills missing values in both partitions with the medians of the
// training partition. The test partition never contributes to the statistic.
func Impute(train, test *table.Table) (*table.Table, *table.Table, Imputation, error) {
	if !slices.Equal(train.Columns, test.Columns) {
		return nil, nil, Imputation{}, fmt.Errorf("train and test schemas differ: %w", common.ErrDataFormat)
	}

	im := Imputation{
		Columns: append([]string(nil), train.Columns...),
		Medians: make([]float64, train.NumCols()),
	}

	observed := make([]float64, 0, train.NumRows())
	for j, name := range train.Columns {
		observed = observed[:0]
		for _, row := range train.Rows {
			if !math.IsNaN(row[j]) {
				observed = append(observed, row[j])
			}
		}

		median, err := stats.Median(observed)
		if err != nil {
			im.Medians[j] = math.NaN()
			im.Undefined = append(im.Undefined, name)
			continue
		}
		im.Medians[j] = median
	}

	return im.Apply(train), im.Apply(test), im, nil
}

// Apply returns a copy of t with missing cells replaced by the medians.
func (im Imputation) Apply(t *table.Table) *table.Table {
	out := t.Clone()
	for _, row := range out.Rows {
		for j, v := range row {
			if math.IsNaN(v) {
				row[j] = im.Medians[j]
			}
		}
	}
	return out
}
