package design

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/frame"
	"github.com/adgarrio/statformula/internal/terms"
)

// FilterFunc drops rows holding missing values. It receives the evaluated
// factors keyed by code, with codes in order of first appearance, replaces
// each value with its filtered rows and returns the mask of kept rows.
type FilterFunc func(codes []string, values map[string]*Value) ([]bool, error)

// Request describes one evaluation of a formula's terms against data.
type Request struct {
	LHS  []terms.Term
	RHS  []terms.Term
	Data *frame.Frame
	Env  Env

	// Known is the factor state of an earlier fit, nil on the first fit.
	Known map[string]*FactorInfo
	// Filter handles missing values; nil keeps every row.
	Filter FilterFunc
	// DDoF is subtracted from the row count when standardize and scale
	// learn their standard deviation.
	DDoF int
}

// Result holds the materialized matrices and the plans that produced them.
type Result struct {
	LHS     *mat.Dense // nil when the request has no left-hand side
	RHS     *mat.Dense
	LHSPlan *Plan
	RHSPlan *Plan
	Index   []int // labels of the kept rows
}

// Factors merges the factor state of both plans, for reuse on new data.
func (r *Result) Factors() map[string]*FactorInfo {
	out := make(map[string]*FactorInfo)
	for _, p := range []*Plan{r.LHSPlan, r.RHSPlan} {
		if p == nil {
			continue
		}
		for k, v := range p.Factors {
			out[k] = v
		}
	}
	return out
}

// Run evaluates every factor, drops missing rows and builds the matrices.
// Categorical levels are taken from the rows that survive filtering.
func Run(req *Request) (*Result, error) {
	if req.Data == nil {
		return nil, fmt.Errorf("no data to evaluate the formula on")
	}
	ev := &Evaluator{Data: req.Data, Env: req.Env, Known: req.Known, DDoF: req.DDoF}
	codes, values, infos, err := Evaluate(ev, req.LHS, req.RHS)
	if err != nil {
		return nil, err
	}

	n := req.Data.Len()
	keep := make([]bool, n)
	for i := range keep {
		keep[i] = true
	}
	if req.Filter != nil && len(codes) > 0 {
		keep, err = req.Filter(codes, values)
		if err != nil {
			return nil, err
		}
		if len(keep) != n {
			return nil, fmt.Errorf("missing-value filter returned %d rows, want %d", len(keep), n)
		}
	}
	rows := countTrue(keep)

	res := &Result{Index: KeptIndex(req.Data.Index, keep)}
	res.RHSPlan, err = NewPlan(req.RHS, values, infos, req.Known)
	if err != nil {
		return nil, err
	}
	res.RHS, err = res.RHSPlan.Build(values, rows)
	if err != nil {
		return nil, err
	}
	if len(req.LHS) == 0 {
		return res, nil
	}
	res.LHSPlan, err = NewPlan(req.LHS, values, infos, req.Known)
	if err != nil {
		return nil, err
	}
	res.LHS, err = res.LHSPlan.Build(values, rows)
	if err != nil {
		return nil, err
	}
	return res, nil
}

// SubsetAll filters every value in place.
func SubsetAll(values map[string]*Value, keep []bool) {
	for k, v := range values {
		values[k] = v.Subset(keep)
	}
}

// MissingMasks returns each factor's missing mask under the type tags, in
// the order of codes.
func MissingMasks(codes []string, values map[string]*Value, types []string) [][]bool {
	masks := make([][]bool, len(codes))
	for i, c := range codes {
		masks[i] = values[c].Mask(types)
	}
	return masks
}

// AnyMissing returns the union of masks and whether any row is set.
func AnyMissing(masks [][]bool, n int) ([]bool, bool) {
	total := make([]bool, n)
	found := false
	for _, m := range masks {
		for r, missing := range m {
			if missing {
				total[r] = true
				found = true
			}
		}
	}
	return total, found
}
