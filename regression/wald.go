package regression

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/adgarrio/statformula/formula"
)

// WaldResult is the F test of a set of linear restrictions R b = q.
type WaldResult struct {
	Statistic   float64
	PValue      float64
	DFNum       float64
	DFDenom     float64
	Constraints *formula.LinearConstraints
}

func (w *WaldResult) String() string {
	return fmt.Sprintf("F=%.4f, p=%.4g, df_denom=%g, df_num=%g", w.Statistic, w.PValue, w.DFDenom, w.DFNum)
}

// WaldTest tests linear restrictions on the parameters. constraints takes
// every form accepted by formula.Manager.GetLinearConstraints, such as
// "x1 = x2" or []string{"x1 = 0", "x2 = 0"}.
func (r *Results) WaldTest(constraints any) (*WaldResult, error) {
	lc, err := r.Model.manager.GetLinearConstraints(constraints, r.Model.ExogNames())
	if err != nil {
		return nil, err
	}
	return r.wald(lc)
}

func (r *Results) wald(lc *formula.LinearConstraints) (*WaldResult, error) {
	R := lc.ConstraintMatrix
	q, k := R.Dims()
	if k != r.Params.Len() {
		return nil, fmt.Errorf("constraint matrix has %d columns for %d parameters", k, r.Params.Len())
	}
	if r.DFResid <= 0 || math.IsNaN(r.Scale) {
		return nil, fmt.Errorf("insufficient degrees of freedom: %g", r.DFResid)
	}

	// diff = R b - q
	var rb mat.VecDense
	rb.MulVec(R, r.Params)
	diff := mat.NewVecDense(q, nil)
	for i := 0; i < q; i++ {
		diff.SetVec(i, rb.AtVec(i)-lc.ConstraintValues.At(i, 0))
	}

	// middle = R Cov R'
	var tmp, middle mat.Dense
	tmp.Mul(R, r.Cov())
	middle.Mul(&tmp, R.T())

	var inv mat.Dense
	if err := inv.Inverse(&middle); err != nil {
		p, perr := pinv(&middle)
		if perr != nil {
			return nil, fmt.Errorf("restriction covariance is singular: %w", perr)
		}
		inv.CloneFrom(p)
	}

	var w mat.VecDense
	w.MulVec(&inv, diff)
	fStatistic := mat.Dot(diff, &w) / float64(q)

	pValue := 1.0
	if fStatistic > 0 && !math.IsNaN(fStatistic) && !math.IsInf(fStatistic, 0) {
		fDist := distuv.F{D1: float64(q), D2: r.DFResid}
		pValue = 1.0 - fDist.CDF(fStatistic)
	}
	if pValue < 0 {
		pValue = 0
	}

	return &WaldResult{
		Statistic:   fStatistic,
		PValue:      pValue,
		DFNum:       float64(q),
		DFDenom:     r.DFResid,
		Constraints: lc,
	}, nil
}

// TermTest is the joint test that all coefficients of one term are zero.
type TermTest struct {
	Term   string
	Result *WaldResult
}

// WaldTestTerms tests each term of the design separately, using the
// columns the formula engine reports for it. With skipIntercept set the
// intercept term is not tested.
func (r *Results) WaldTestTerms(skipIntercept bool) ([]TermTest, error) {
	mgr := r.Model.manager
	slices, err := mgr.GetTermNameSlices(r.Model.Exog)
	if err != nil {
		return nil, err
	}
	icept := mgr.InterceptTerm()
	names := r.Model.ExogNames()
	k := len(names)

	var out []TermTest
	for _, s := range slices {
		if skipIntercept && icept.Equal(s.Term) {
			continue
		}
		if s.Len() == 0 {
			continue
		}
		R := mat.NewDense(s.Len(), k, nil)
		for i := 0; i < s.Len(); i++ {
			R.Set(i, s.Start+i, 1)
		}
		lc, err := mgr.GetLinearConstraints(formula.ConstraintPair{Coefs: R, Values: make([]float64, s.Len())}, names)
		if err != nil {
			return nil, fmt.Errorf("term %s: %w", s.Name, err)
		}
		res, err := r.wald(lc)
		if err != nil {
			return nil, fmt.Errorf("term %s: %w", s.Name, err)
		}
		out = append(out, TermTest{Term: s.Name, Result: res})
	}
	return out, nil
}
