package regression

import (
	"fmt"
	"io"
	"math"
	"text/tabwriter"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat/distuv"
)

// TValues returns the coefficient t statistics.
func (r *Results) TValues() []float64 {
	out := make([]float64, len(r.Bse))
	for i, se := range r.Bse {
		out[i] = r.Params.AtVec(i) / se
	}
	return out
}

// PValues returns two-sided p-values of the t statistics.
func (r *Results) PValues() []float64 {
	out := make([]float64, len(r.Bse))
	if r.DFResid <= 0 {
		for i := range out {
			out[i] = math.NaN()
		}
		return out
	}
	tdist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: r.DFResid}
	for i, t := range r.TValues() {
		out[i] = 2 * tdist.Survival(math.Abs(t))
	}
	return out
}

// Summary writes a coefficient table followed by the parameter covariance.
func (r *Results) Summary(w io.Writer) error {
	desc, err := r.Model.manager.GetDescription(r.Model.Exog)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "=== OLS: %s ===\n", r.Model.Formula)
	fmt.Fprintf(w, "engine: %s   design: %s\n", r.Model.manager.Engine(), desc)
	fmt.Fprintf(w, "nobs: %d   df_resid: %g   R-squared: %.4f   scale: %.6g\n\n", r.Model.NObs(), r.DFResid, r.R2, r.Scale)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tcoef\tstd err\tt\tP>|t|\t")
	tvals, pvals := r.TValues(), r.PValues()
	for i, name := range r.Model.ExogNames() {
		fmt.Fprintf(tw, "%s\t%.4f\t%.4f\t%.3f\t%.3f\t\n", name, r.Params.AtVec(i), r.Bse[i], tvals[i], pvals[i])
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintln(w, "\n=== Parameter covariance ===")
	_, err = fmt.Fprintf(w, "%v\n", mat.Formatted(r.Cov(), mat.Prefix(" ")))
	return err
}
