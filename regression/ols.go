package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// rankTol is the relative singular value cutoff of the least-squares
// fallback.
const rankTol = 1e-12

// Results holds an OLS fit.
type Results struct {
	Model *Model

	Params  *mat.VecDense // k coefficients, ordered like Model.ExogNames
	Bse     []float64     // standard errors
	Resid   *mat.VecDense
	Scale   float64 // residual variance SSR / DFResid
	SSR     float64
	R2      float64
	DFResid float64
	// NormCov is (X'X)^-1, or its pseudo-inverse when X'X is singular.
	NormCov *mat.Dense
	Rank    int
}

// Cov returns the parameter covariance Scale * (X'X)^-1.
func (r *Results) Cov() *mat.Dense {
	var c mat.Dense
	c.Scale(r.Scale, r.NormCov)
	return &c
}

// --- OLS IMPLEMENTATION ---

// Fit estimates the model by ordinary least squares.
func (m *Model) Fit() (*Results, error) {
	n, k := m.Exog.Dims()
	if n == 0 || k == 0 {
		return nil, fmt.Errorf("empty design matrix: %d x %d", n, k)
	}
	X := m.Exog.Dense
	y := mat.NewVecDense(n, mat.Col(nil, 0, m.Endog.Dense))

	var params mat.VecDense
	var normCov *mat.Dense
	rank := k

	// First try: normal equations b = (X'X)^(-1) X'y
	var xtx mat.Dense
	xtx.Mul(X.T(), X)

	var xtxInv mat.Dense
	if err := xtxInv.Inverse(&xtx); err == nil {
		var xty mat.VecDense
		xty.MulVec(X.T(), y)
		params.MulVec(&xtxInv, &xty)
		normCov = &xtxInv
	} else {
		// X'X is singular or badly conditioned: minimum-norm least squares
		// through the SVD of X.
		var svd mat.SVD
		if ok := svd.Factorize(X, mat.SVDThin); !ok {
			return nil, fmt.Errorf("OLS failed: X'X singular and SVD factorization failed: %v", err)
		}
		rank = svd.Rank(rankTol)
		if rank == 0 {
			return nil, fmt.Errorf("OLS failed: design matrix has rank 0")
		}
		var B mat.Dense
		svd.SolveTo(&B, y, rank)
		params.CloneFromVec(B.ColView(0))

		normCov, err = pinv(&xtx)
		if err != nil {
			return nil, err
		}
		m.logger.Debug("normal equations singular, used pseudo-inverse", "rank", rank, "regressors", k)
	}

	// Residuals and their variance
	var yhat mat.VecDense
	yhat.MulVec(X, &params)
	var resid mat.VecDense
	resid.SubVec(y, &yhat)
	ssr := mat.Dot(&resid, &resid)

	df := float64(n - rank)
	scale := math.NaN()
	if df > 0 {
		scale = ssr / df
	}

	bse := make([]float64, k)
	for i := range bse {
		bse[i] = math.Sqrt(scale * normCov.At(i, i))
	}

	return &Results{
		Model:   m,
		Params:  &params,
		Bse:     bse,
		Resid:   &resid,
		Scale:   scale,
		SSR:     ssr,
		R2:      stat.RSquaredFrom(yhat.RawVector().Data, y.RawVector().Data, nil),
		DFResid: df,
		NormCov: normCov,
		Rank:    rank,
	}, nil
}

// pinv returns the Moore-Penrose pseudo-inverse of a.
func pinv(a mat.Matrix) (*mat.Dense, error) {
	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDThin); !ok {
		return nil, fmt.Errorf("SVD factorization failed")
	}
	s := svd.Values(nil)
	var u, v mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)

	cutoff := 0.0
	if len(s) > 0 {
		cutoff = rankTol * s[0]
	}
	// V diag(1/s) U'
	for j, sv := range s {
		inv := 0.0
		if sv > cutoff {
			inv = 1 / sv
		}
		col := v.ColView(j).(*mat.VecDense)
		col.ScaleVec(inv, col)
	}
	var out mat.Dense
	out.Mul(&v, u.T())
	return &out, nil
}

// ParamsByName returns the coefficients keyed by regressor name.
func (r *Results) ParamsByName() map[string]float64 {
	out := make(map[string]float64, r.Params.Len())
	for i, n := range r.Model.Exog.Columns {
		out[n] = r.Params.AtVec(i)
	}
	return out
}

// Predict evaluates the fitted model on new data.
func (r *Results) Predict(data any) (*Prediction, error) {
	return r.Model.Predict(r.Params, data)
}
