package pca

import (
	"fmt"

	"rfpca/internal/common"
	"rfpca/internal/rng"

	"gonum.org/v1/gonum/mat"
)

const (
	oversample = 10
	powerIters = 4
)

// randomizedSolve approximates the top k eigenpairs of the correlation
// matrix of z with a randomized range finder (Halko, Martinsson and Tropp,
// 2011) followed by an exact SVD of the small projected matrix.
func randomizedSolve(z *mat.Dense, k int, stream rng.Stream) ([]float64, *mat.Dense, error) {
	n, p := z.Dims()
	l := min(k+oversample, p, n)

	r := stream.Derive("svd").Rand()
	omega := mat.NewDense(p, l, nil)
	for i := 0; i < p; i++ {
		for j := 0; j < l; j++ {
			omega.Set(i, j, r.NormFloat64())
		}
	}

	var y mat.Dense
	y.Mul(z, omega)
	q, err := orthonormal(&y)
	if err != nil {
		return nil, nil, err
	}
	for it := 0; it < powerIters; it++ {
		var zt mat.Dense
		zt.Mul(z.T(), q)
		w, err := orthonormal(&zt)
		if err != nil {
			return nil, nil, err
		}
		y.Reset()
		y.Mul(z, w)
		if q, err = orthonormal(&y); err != nil {
			return nil, nil, err
		}
	}

	var b mat.Dense
	b.Mul(q.T(), z)

	var svd mat.SVD
	if ok := svd.Factorize(&b, mat.SVDThin); !ok {
		return nil, nil, fmt.Errorf("reduce: randomized svd did not converge: %w", common.ErrNumeric)
	}
	sv := svd.Values(nil)
	var v mat.Dense
	svd.VTo(&v)

	k = min(k, len(sv))
	eig := make([]float64, k)
	for i := range eig {
		eig[i] = sv[i] * sv[i] / float64(n-1)
	}
	vecs := mat.DenseCopyOf(v.Slice(0, p, 0, k))
	return eig, vecs, nil
}

// orthonormal returns an orthonormal basis for the column space of a.
func orthonormal(a *mat.Dense) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("reduce: range finder did not converge: %w", common.ErrNumeric)
	}
	var u mat.Dense
	svd.UTo(&u)
	return &u, nil
}
