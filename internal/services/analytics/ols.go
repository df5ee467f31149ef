package analytics

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// designMatrix builds an n x (1+len(cols)) matrix with an intercept in
// the first column.
func designMatrix(n int, cols [][]float64) *mat.Dense {
	X := mat.NewDense(n, 1+len(cols), nil)
	for i := 0; i < n; i++ {
		X.Set(i, 0, 1)
		for j, c := range cols {
			X.Set(i, j+1, c[i])
		}
	}
	return X
}

// olsFit solves y = X*beta by least squares and returns the
// coefficients and residual sum of squares. Rank-deficient designs are
// rejected.
func olsFit(y []float64, X *mat.Dense) ([]float64, float64, error) {
	n, k := X.Dims()
	if len(y) != n {
		return nil, 0, ErrBadConfig
	}
	if n <= k {
		return nil, 0, ErrInsufficientData
	}

	var svd mat.SVD
	if !svd.Factorize(X, mat.SVDThin) {
		return nil, 0, fmt.Errorf("analytics: svd factorization failed")
	}
	sv := svd.Values(nil)
	if sv[0] == 0 || sv[len(sv)-1]/sv[0] < 1e-10 {
		return nil, 0, ErrSingularControls
	}

	var qr mat.QR
	qr.Factorize(X)
	var betaV mat.VecDense
	if err := qr.SolveVecTo(&betaV, false, mat.NewVecDense(n, y)); err != nil {
		return nil, 0, fmt.Errorf("analytics: least squares solve: %w", err)
	}

	var fitted mat.VecDense
	fitted.MulVec(X, &betaV)
	var rss float64
	for i := 0; i < n; i++ {
		d := y[i] - fitted.AtVec(i)
		rss += d * d
	}
	beta := make([]float64, k)
	for i := range beta {
		beta[i] = betaV.AtVec(i)
	}
	return beta, rss, nil
}

// olsResiduals returns y minus its least-squares projection onto X.
func olsResiduals(y []float64, X *mat.Dense) ([]float64, error) {
	beta, _, err := olsFit(y, X)
	if err != nil {
		return nil, err
	}
	n, k := X.Dims()
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		fit := 0.0
		for j := 0; j < k; j++ {
			fit += X.At(i, j) * beta[j]
		}
		out[i] = y[i] - fit
	}
	return out, nil
}

// olsStdErr returns the coefficient standard errors for a fitted model.
func olsStdErr(y []float64, X *mat.Dense, rss float64) ([]float64, error) {
	n, k := X.Dims()
	sigma2 := rss / float64(n-k)

	var xtx mat.Dense
	xtx.Mul(X.T(), X)
	var inv mat.Dense
	if err := inv.Inverse(&xtx); err != nil {
		return nil, ErrSingularControls
	}
	out := make([]float64, k)
	for j := 0; j < k; j++ {
		out[j] = sqrtNonNeg(sigma2 * inv.At(j, j))
	}
	return out, nil
}

func sqrtNonNeg(v float64) float64 {
	if v <= 0 {
		return 0
	}
	return math.Sqrt(v)
}
