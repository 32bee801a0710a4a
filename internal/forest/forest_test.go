package forest

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"rfpca/internal/common"
	"rfpca/internal/rng"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// thresholdData labels a row real when feature 0 exceeds 0.5; the remaining
// features are uniform noise.
func thresholdData(n, p int, seed uint64) ([][]float64, []int) {
	r := rand.New(rand.NewPCG(seed, seed+1))
	X := make([][]float64, n)
	Y := make([]int, n)
	for i := range X {
		X[i] = make([]float64, p)
		for j := range X[i] {
			X[i][j] = r.Float64()
		}
		if X[i][0] > 0.5 {
			Y[i] = 1
		}
	}
	return X, Y
}

func TestFit_Errors(t *testing.T) {
	tests := []struct {
		name string
		X    [][]float64
		Y    []int
		want error
	}{
		{"no rows", nil, nil, common.ErrTraining},
		{"label mismatch", [][]float64{{1}, {2}}, []int{1}, common.ErrTraining},
		{"single class", [][]float64{{1}, {2}, {3}}, []int{1, 1, 1}, common.ErrTraining},
		{"non binary label", [][]float64{{1}, {2}}, []int{0, 2}, common.ErrTraining},
		{"no features", [][]float64{{}, {}}, []int{0, 1}, common.ErrTraining},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Fit(tt.X, tt.Y, Options{NEstimators: 3}, rng.New(1))
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestFit_LearnsThreshold(t *testing.T) {
	X, Y := thresholdData(400, 4, 1)

	f, err := Fit(X, Y, Options{NEstimators: 30, MinLeaf: 2}, rng.New(7))
	require.NoError(t, err)
	require.True(t, f.Trained())
	assert.Len(t, f.Trees, 30)
	assert.Equal(t, 2, f.MaxFeatures, "sqrt of 4 features")

	assert.Greater(t, f.OOBScore, 0.9)
	assert.Greater(t, f.OOBCoverage, 0.99)

	testX, testY := thresholdData(200, 4, 99)
	probs, err := f.PredictProba(testX)
	require.NoError(t, err)

	correct := 0
	for i, p := range probs {
		assert.GreaterOrEqual(t, p, 0.0)
		assert.LessOrEqual(t, p, 1.0)
		if (p > 0.5) == (testY[i] == 1) {
			correct++
		}
	}
	assert.Greater(t, float64(correct)/float64(len(testY)), 0.9)
}

func TestFit_DeterministicAcrossWorkers(t *testing.T) {
	X, Y := thresholdData(300, 5, 3)

	one, err := Fit(X, Y, Options{NEstimators: 20, Workers: 1}, rng.New(11))
	require.NoError(t, err)
	many, err := Fit(X, Y, Options{NEstimators: 20, Workers: 8}, rng.New(11))
	require.NoError(t, err)

	p1, err := one.PredictProba(X)
	require.NoError(t, err)
	p2, err := many.PredictProba(X)
	require.NoError(t, err)

	assert.Equal(t, p1, p2)
	assert.Equal(t, one.OOBScore, many.OOBScore)

	other, err := Fit(X, Y, Options{NEstimators: 20, Workers: 1}, rng.New(12))
	require.NoError(t, err)
	p3, err := other.PredictProba(X)
	require.NoError(t, err)
	assert.NotEqual(t, p1, p3)
}

func TestFeatureImportances(t *testing.T) {
	X, Y := thresholdData(400, 5, 5)

	f, err := Fit(X, Y, Options{NEstimators: 40, MinLeaf: 5}, rng.New(2))
	require.NoError(t, err)

	mean, std, err := f.FeatureImportances()
	require.NoError(t, err)
	require.Len(t, mean, 5)
	require.Len(t, std, 5)

	sum := 0.0
	for j, v := range mean {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.GreaterOrEqual(t, std[j], 0.0)
		sum += v
	}
	assert.InDelta(t, 1.0, sum, 1e-9, "importances should sum to 1")

	for j := 1; j < 5; j++ {
		assert.Greater(t, mean[0], mean[j], "feature 0 drives the label")
	}
}

func TestFit_ConstantFeaturesGiveBalancedLeaf(t *testing.T) {
	X := make([][]float64, 90)
	Y := make([]int, 90)
	for i := range X {
		X[i] = []float64{1, 1}
		if i%3 == 0 {
			Y[i] = 1
		}
	}

	f, err := Fit(X, Y, Options{NEstimators: 10}, rng.New(4))
	require.NoError(t, err)

	for _, tree := range f.Trees {
		assert.False(t, tree.Split())
	}

	probs, err := f.PredictProba(X[:3])
	require.NoError(t, err)
	for _, p := range probs {
		assert.InDelta(t, 0.5, p, 1e-12, "class weights balance each bootstrap sample")
	}

	mean, _, err := f.FeatureImportances()
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 0}, mean)
}

func TestFit_MaxDepthAndMinLeaf(t *testing.T) {
	X, Y := thresholdData(200, 3, 8)

	f, err := Fit(X, Y, Options{NEstimators: 5, MaxDepth: 1, MinLeaf: 10}, rng.New(1))
	require.NoError(t, err)

	for _, tree := range f.Trees {
		assert.LessOrEqual(t, len(tree.Nodes), 3, "depth 1 allows one split")
		for _, n := range tree.Nodes {
			if n.Leaf() {
				assert.GreaterOrEqual(t, n.Samples, 10)
			}
		}
	}
}

func TestPredictProba_Errors(t *testing.T) {
	var f *Forest
	_, err := f.PredictProba([][]float64{{1}})
	assert.True(t, errors.Is(err, common.ErrNotTrained))

	_, _, err = (&Forest{}).FeatureImportances()
	assert.True(t, errors.Is(err, common.ErrNotTrained))

	X, Y := thresholdData(50, 2, 1)
	trained, err := Fit(X, Y, Options{NEstimators: 2}, rng.New(1))
	require.NoError(t, err)
	_, err = trained.PredictProba([][]float64{{1, 2, 3}})
	assert.True(t, errors.Is(err, common.ErrDataFormat))
}

func TestBalancedWeights(t *testing.T) {
	Y := []int{0, 0, 0, 1}
	w := balancedWeights(Y, []int{0, 1, 2, 3})
	assert.InDelta(t, 4.0/6.0, w[0], 1e-12)
	assert.InDelta(t, 2.0, w[1], 1e-12)

	w = balancedWeights(Y, []int{0, 0, 1})
	assert.Equal(t, 0.0, w[1], "absent class has no weight")
}

func TestGini(t *testing.T) {
	assert.Equal(t, 0.0, gini([2]float64{0, 0}))
	assert.Equal(t, 0.0, gini([2]float64{5, 0}))
	assert.InDelta(t, 0.5, gini([2]float64{3, 3}), 1e-12)
	assert.False(t, math.IsNaN(gini([2]float64{1, 2})))
}

func TestForChunks_CoversEveryIndexOnce(t *testing.T) {
	for _, tc := range []struct{ n, workers int }{{0, 4}, {10, 4}, {1000, 3}, {1000, 64}} {
		f := &Forest{workers: tc.workers}
		seen := make([]int, tc.n)
		f.forChunks(tc.n, func(lo, hi int) {
			for i := lo; i < hi; i++ {
				seen[i]++
			}
		})
		for i, c := range seen {
			assert.Equal(t, 1, c, "n=%d workers=%d index %d", tc.n, tc.workers, i)
		}
	}
}
