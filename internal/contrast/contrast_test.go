package contrast

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"testing"

	"rfpca/internal/common"
	"rfpca/internal/rng"
	"rfpca/internal/table"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeTable(t *testing.T, n, p int, fill func(i, j int) float64) *table.Table {
	t.Helper()
	ids := make([]string, n)
	cols := make([]string, p)
	rows := make([][]float64, n)
	for j := range cols {
		cols[j] = fmt.Sprintf("f%d", j)
	}
	for i := range rows {
		ids[i] = fmt.Sprintf("id%04d", i)
		rows[i] = make([]float64, p)
		for j := range rows[i] {
			rows[i][j] = fill(i, j)
		}
	}
	tbl, err := table.New(ids, cols, rows)
	require.NoError(t, err)
	return tbl
}

func TestSplit(t *testing.T) {
	tbl := makeTable(t, 101, 3, func(i, j int) float64 { return float64(i*10 + j) })

	part, err := Split(tbl, 0.2, rng.New(1))
	require.NoError(t, err)

	assert.Equal(t, 21, part.Test.NumRows(), "test size is ceil(0.2*101)")
	assert.Equal(t, 80, part.Train.NumRows())

	seen := make(map[string]bool)
	for _, id := range part.Train.IDs {
		seen[id] = true
	}
	for _, id := range part.Test.IDs {
		assert.False(t, seen[id], "id %s in both partitions", id)
		seen[id] = true
	}
	assert.Len(t, seen, 101)

	again, err := Split(tbl, 0.2, rng.New(1))
	require.NoError(t, err)
	assert.Equal(t, part.Test.IDs, again.Test.IDs)

	other, err := Split(tbl, 0.2, rng.New(2))
	require.NoError(t, err)
	assert.NotEqual(t, part.Test.IDs, other.Test.IDs)
}

func TestSplit_Errors(t *testing.T) {
	empty, err := table.New(nil, []string{"a"}, nil)
	require.NoError(t, err)
	noCols, err := table.New([]string{"x"}, nil, [][]float64{{}})
	require.NoError(t, err)

	tests := []struct {
		name     string
		tbl      *table.Table
		fraction float64
	}{
		{"empty table", empty, 0.2},
		{"nil table", nil, 0.2},
		{"no columns", noCols, 0.2},
		{"single row", makeTable(t, 1, 2, func(i, j int) float64 { return 1 }), 0.2},
		{"fraction zero", makeTable(t, 10, 2, func(i, j int) float64 { return 1 }), 0},
		{"fraction one", makeTable(t, 10, 2, func(i, j int) float64 { return 1 }), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Split(tt.tbl, tt.fraction, rng.New(0))
			require.Error(t, err)
			assert.True(t, errors.Is(err, common.ErrDataFormat), "got %v", err)
		})
	}
}

func TestImpute(t *testing.T) {
	nan := math.NaN()
	train, err := table.New(
		[]string{"a", "b", "c", "d"},
		[]string{"x", "y", "empty"},
		[][]float64{{1, 10, nan}, {2, nan, nan}, {3, 30, nan}, {nan, 40, nan}},
	)
	require.NoError(t, err)
	test, err := table.New(
		[]string{"e", "f"},
		[]string{"x", "y", "empty"},
		[][]float64{{nan, nan, nan}, {1000, 1000, 1000}},
	)
	require.NoError(t, err)

	trainOut, testOut, im, err := Impute(train, test)
	require.NoError(t, err)

	mx, _ := im.Median("x")
	my, _ := im.Median("y")
	assert.Equal(t, 2.0, mx)
	assert.Equal(t, 30.0, my, "test rows must not contribute to the median")
	assert.Equal(t, []string{"empty"}, im.Undefined)

	assert.Equal(t, 2.0, trainOut.Rows[3][0])
	assert.Equal(t, 30.0, trainOut.Rows[1][1])
	assert.Equal(t, []float64{2, 30}, testOut.Rows[0][:2])

	// Only the flagged column may still hold missing values.
	for _, tbl := range []*table.Table{trainOut, testOut} {
		for _, row := range tbl.Rows {
			assert.False(t, math.IsNaN(row[0]))
			assert.False(t, math.IsNaN(row[1]))
		}
	}
	assert.True(t, math.IsNaN(trainOut.Rows[0][2]), "undefined column is flagged, not zero-filled")

	assert.True(t, math.IsNaN(train.Rows[3][0]), "input is not mutated")
}

func TestImpute_SchemaMismatch(t *testing.T) {
	a := makeTable(t, 3, 2, func(i, j int) float64 { return 1 })
	b := makeTable(t, 3, 3, func(i, j int) float64 { return 1 })

	_, _, _, err := Impute(a, b)
	assert.True(t, errors.Is(err, common.ErrDataFormat))
}

func TestSplitThenImpute_NoMissingLeft(t *testing.T) {
	tbl := makeTable(t, 200, 5, func(i, j int) float64 {
		if (i+j)%7 == 0 {
			return math.NaN()
		}
		return float64(i) * float64(j+1)
	})

	part, err := Split(tbl, 0.2, rng.New(11))
	require.NoError(t, err)
	train, test, im, err := Impute(part.Train, part.Test)
	require.NoError(t, err)

	assert.Empty(t, im.Undefined)
	assert.Zero(t, train.MissingCount())
	assert.Zero(t, test.MissingCount())
}

func TestAugment_Deterministic(t *testing.T) {
	tbl := makeTable(t, 50, 4, func(i, j int) float64 { return float64(i*j) + 0.5*float64(j) })

	a, err := Augment(tbl, 1.0, rng.New(5).Derive("augment"))
	require.NoError(t, err)
	b, err := Augment(tbl, 1.0, rng.New(5).Derive("augment"))
	require.NoError(t, err)

	assert.Equal(t, a.X, b.X)
	assert.Equal(t, a.Y, b.Y)

	c, err := Augment(tbl, 1.0, rng.New(6).Derive("augment"))
	require.NoError(t, err)
	assert.NotEqual(t, a.Y, c.Y)
}

func TestAugment_PreservesMarginals(t *testing.T) {
	tbl := makeTable(t, 64, 3, func(i, j int) float64 { return float64((i*(j+3))%17) + float64(j)/10 })

	d, err := Augment(tbl, 1.0, rng.New(9))
	require.NoError(t, err)

	require.Equal(t, 64, d.NumReal)
	require.Equal(t, 64, d.NumNoise)
	require.Equal(t, 128, d.Len())

	for j := 0; j < tbl.NumCols(); j++ {
		var realVals, noiseVals []float64
		for i, row := range d.X {
			if d.Y[i] == LabelReal {
				realVals = append(realVals, row[j])
			} else {
				noiseVals = append(noiseVals, row[j])
			}
		}
		want := tbl.Column(j)
		slices.Sort(want)
		slices.Sort(realVals)
		slices.Sort(noiseVals)
		assert.Equal(t, want, realVals, "column %d real values", j)
		assert.Equal(t, want, noiseVals, "column %d noise marginal", j)
	}
}

func TestAugment_BreaksCrossColumnStructure(t *testing.T) {
	// y == x on every real row; after per-column permutation almost no noise row keeps it.
	tbl := makeTable(t, 500, 2, func(i, j int) float64 { return float64(i) })

	d, err := Augment(tbl, 1.0, rng.New(3))
	require.NoError(t, err)

	matches := 0
	for i, row := range d.X {
		if d.Y[i] == LabelNoise && row[0] == row[1] {
			matches++
		}
	}
	assert.Less(t, matches, 10)
}

func TestAugment_Ratios(t *testing.T) {
	tbl := makeTable(t, 40, 2, func(i, j int) float64 { return float64(i + j) })

	tests := []struct {
		ratio     float64
		wantNoise int
	}{
		{0.5, 20},
		{1.0, 40},
		{2.5, 100},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.ratio), func(t *testing.T) {
			d, err := Augment(tbl, tt.ratio, rng.New(1))
			require.NoError(t, err)
			assert.Equal(t, tt.wantNoise, d.NumNoise)

			noise := 0
			for _, y := range d.Y {
				if y == LabelNoise {
					noise++
				}
			}
			assert.Equal(t, tt.wantNoise, noise)
		})
	}

	_, err := Augment(tbl, 0, rng.New(1))
	assert.True(t, errors.Is(err, common.ErrDataFormat))
}

func TestAugment_NoNoiseRows(t *testing.T) {
	tbl := makeTable(t, 40, 2, func(i, j int) float64 { return float64(i * j) })

	_, err := Augment(tbl, 0.01, rng.New(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrTraining))

	d, err := Augment(tbl, 0.1, rng.New(1))
	require.NoError(t, err)
	assert.Equal(t, 4, d.NumNoise)
}

func TestDataset_WithColumn(t *testing.T) {
	d := &Dataset{Columns: []string{"a", "b"}, X: [][]float64{{1, 2}, {3, 4}}, Y: []int{1, 0}}

	out := d.WithColumn(1, []float64{9, 8})
	assert.Equal(t, []float64{9, 8}, out.Column(1))
	assert.Equal(t, []float64{2, 4}, d.Column(1), "original untouched")
	assert.Equal(t, d.Y, out.Y)
}

func TestBuild(t *testing.T) {
	tbl := makeTable(t, 100, 3, func(i, j int) float64 {
		if j == 2 && i%5 == 0 {
			return math.NaN()
		}
		return float64(i * (j + 1))
	})

	res, err := Build(tbl, Options{TestFraction: 0.2, NoiseRatio: 1.0}, rng.New(42))
	require.NoError(t, err)

	assert.Equal(t, 80, res.Partition.Train.NumRows())
	assert.Equal(t, 20, res.Partition.Test.NumRows())
	assert.Equal(t, 160, res.Train.Len())
	assert.Equal(t, 40, res.Test.Len())
	assert.Zero(t, res.Partition.Train.MissingCount())

	again, err := Build(tbl, Options{TestFraction: 0.2, NoiseRatio: 1.0}, rng.New(42))
	require.NoError(t, err)
	assert.Equal(t, res.Train.X, again.Train.X)
	assert.Equal(t, res.Test.Y, again.Test.Y)
}

func TestBuild_MatchesSteps(t *testing.T) {
	tbl := makeTable(t, 60, 3, func(i, j int) float64 { return float64((i*7 + j*3) % 11) })
	stream := rng.New(8).Derive("contrast")

	res, err := Build(tbl, Options{TestFraction: 0.25, NoiseRatio: 1.5}, stream)
	require.NoError(t, err)

	part, err := SplitPartition(tbl, 0.25, stream)
	require.NoError(t, err)
	part, _, _, err = ImputePartition(part, false)
	require.NoError(t, err)
	train, test, err := AugmentPartition(part, 1.5, stream)
	require.NoError(t, err)

	assert.Equal(t, res.Partition.Test.IDs, part.Test.IDs)
	assert.Equal(t, res.Train.X, train.X)
	assert.Equal(t, res.Train.Y, train.Y)
	assert.Equal(t, res.Test.X, test.X)
}

func TestBuild_UndefinedColumn(t *testing.T) {
	tbl := makeTable(t, 30, 3, func(i, j int) float64 {
		if j == 1 {
			return math.NaN()
		}
		return float64(i)
	})

	_, err := Build(tbl, Options{TestFraction: 0.2, NoiseRatio: 1.0}, rng.New(1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, common.ErrNumeric))
	assert.Contains(t, err.Error(), "f1")

	res, err := Build(tbl, Options{TestFraction: 0.2, NoiseRatio: 1.0, DropUndefined: true}, rng.New(1))
	require.NoError(t, err)
	assert.Equal(t, []string{"f1"}, res.Dropped)
	assert.Equal(t, []string{"f0", "f2"}, res.Train.Columns)
}
