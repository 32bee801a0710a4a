// Package contrast builds the contrastive dataset: real feature rows paired
// with column-shuffled noise rows that keep every marginal distribution but
// destroy all cross-column structure.
//
// The real table is split into train and test partitions before any noise is
// generated, imputation statistics come from the training rows only, and each
// partition is augmented independently, so nothing derived from a training
// row can reach the test set.
package contrast

import (
	"fmt"
	"math"

	"rfpca/internal/common"
	"rfpca/internal/rng"
	"rfpca/internal/table"
)

// Partition is a disjoint train/test split of the real rows.
type Partition struct {
	Train *table.Table
	Test  *table.Table
}

// Split shuffles the rows with the given stream and puts ceil(testFraction*n)
// of them in the test partition. Both partitions must end up non-empty.
func Split(t *table.Table, testFraction float64, stream rng.Stream) (Partition, error) {
	if t.Empty() {
		return Partition{}, fmt.Errorf("cannot split an empty table (%d rows, %d columns): %w",
			t.NumRows(), t.NumCols(), common.ErrDataFormat)
	}
	if testFraction <= 0 || testFraction >= 1 {
		return Partition{}, fmt.Errorf("test fraction must be in (0, 1), got %v: %w", testFraction, common.ErrDataFormat)
	}

	n := t.NumRows()
	nTest := int(math.Ceil(testFraction * float64(n)))
	nTrain := n - nTest
	if nTest == 0 || nTrain == 0 {
		return Partition{}, fmt.Errorf("split of %d rows at %.2f leaves an empty partition (train=%d, test=%d): %w",
			n, testFraction, nTrain, nTest, common.ErrDataFormat)
	}

	perm := stream.Perm(n)
	return Partition{
		Train: t.Take(perm[nTest:]),
		Test:  t.Take(perm[:nTest]),
	}, nil
}
