package formulaic

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/frame"
	"github.com/adgarrio/statformula/internal/design"
)

// NA actions understood by the dialect.
const (
	NADrop   = "drop"
	NARaise  = "raise"
	NAIgnore = "ignore"
)

// ModelSpec records how a model matrix was built so it can be rebuilt on
// new data.
type ModelSpec struct {
	Formula  *Formula // the side of the formula this spec materializes
	NAAction string

	columnNames []string
	terms       []Term
	slices      []formula.TermSlice
	factors     map[string]*design.FactorInfo
}

func newModelSpec(ts []Term, ordering formula.Ordering, na string, plan *design.Plan, factors map[string]*design.FactorInfo) *ModelSpec {
	s := &ModelSpec{
		Formula:     &Formula{RHS: ts, Ordering: ordering},
		NAAction:    na,
		columnNames: append([]string(nil), plan.Columns...),
		terms:       ts,
		factors:     factors,
	}
	for i, t := range ts {
		span := plan.Spans[i]
		s.slices = append(s.slices, formula.TermSlice{Term: t, Name: t.String(), Start: span.Start, Stop: span.Stop})
	}
	return s
}

// Engine identifies the dialect.
func (s *ModelSpec) Engine() formula.Engine { return formula.EngineFormulaic }

// ColumnNames returns the column names in order.
func (s *ModelSpec) ColumnNames() []string { return append([]string(nil), s.columnNames...) }

// Terms returns the terms in column order.
func (s *ModelSpec) Terms() []Term { return append([]Term(nil), s.terms...) }

// TermSlices returns the columns occupied by each term.
func (s *ModelSpec) TermSlices() []formula.TermSlice {
	return append([]formula.TermSlice(nil), s.slices...)
}

// GetSlice returns the columns of a term, given as a Term or its string
// form, or of a single column given by name.
func (s *ModelSpec) GetSlice(term any) (start, stop int, err error) {
	switch t := term.(type) {
	case Term:
		for _, sl := range s.slices {
			if t.Equal(sl.Term) {
				return sl.Start, sl.Stop, nil
			}
		}
		return 0, 0, fmt.Errorf("term %s is not part of the model spec", t)
	case string:
		for _, sl := range s.slices {
			if sl.Name == t {
				return sl.Start, sl.Stop, nil
			}
		}
		for j, c := range s.columnNames {
			if c == t {
				return j, j + 1, nil
			}
		}
		return 0, 0, fmt.Errorf("no term or column named %q", t)
	}
	return 0, 0, fmt.Errorf("cannot take a slice for %T", term)
}

// Describe renders the spec's terms as a formula right-hand side.
func (s *ModelSpec) Describe() string { return s.Formula.String() }

// ModelMatrix is a materialized matrix with the spec that produced it.
type ModelMatrix struct {
	*mat.Dense

	Spec  *ModelSpec
	Index []int // labels of the rows kept after missing-value handling
}

// ModelMatrices holds the matrices of both sides of a formula. LHS is nil
// for a one-sided formula.
type ModelMatrices struct {
	LHS *ModelMatrix
	RHS *ModelMatrix
}

// Materialize builds model matrices. spec is a formula string, a *Formula,
// a *ModelSpec or a *ModelMatrix; context is an integer scope depth or a
// map of variables; naAction is drop, raise or ignore, or empty for the
// spec's own action (drop for new formulas). Strings are parsed with the
// degree ordering.
func Materialize(spec any, data *frame.Frame, context any, naAction string) (*ModelMatrices, error) {
	return materialize(spec, data, context, naAction, formula.OrderDegree)
}

func materialize(spec any, data *frame.Frame, context any, naAction string, ordering formula.Ordering) (*ModelMatrices, error) {
	env, err := contextEnv(context)
	if err != nil {
		return nil, err
	}

	var f *Formula
	var known map[string]*design.FactorInfo
	switch s := spec.(type) {
	case string:
		if f, err = NewFormula(s, ordering); err != nil {
			return nil, err
		}
	case *Formula:
		f = s
	case *ModelMatrix:
		if s == nil || s.Spec == nil {
			return nil, fmt.Errorf("model matrix has no spec")
		}
		f, known, naAction = fromSpec(s.Spec, naAction)
	case *ModelSpec:
		if s == nil {
			return nil, fmt.Errorf("model spec is nil")
		}
		f, known, naAction = fromSpec(s, naAction)
	default:
		return nil, fmt.Errorf("cannot build a model matrix from %T", spec)
	}
	if naAction == "" {
		naAction = NADrop
	}
	filter, err := naFilter(naAction)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, fmt.Errorf("no data given")
	}

	res, err := design.Run(&design.Request{
		LHS:    unwrap(f.LHS),
		RHS:    unwrap(f.RHS),
		Data:   data,
		Env:    env,
		Known:  known,
		Filter: filter,
		DDoF:   1,
	})
	if err != nil {
		return nil, err
	}

	factors := res.Factors()
	out := &ModelMatrices{
		RHS: &ModelMatrix{
			Dense: res.RHS,
			Spec:  newModelSpec(f.RHS, f.Ordering, naAction, res.RHSPlan, factors),
			Index: res.Index,
		},
	}
	if res.LHS != nil {
		out.LHS = &ModelMatrix{
			Dense: res.LHS,
			Spec:  newModelSpec(f.LHS, f.Ordering, naAction, res.LHSPlan, factors),
			Index: res.Index,
		}
	}
	return out, nil
}

func fromSpec(s *ModelSpec, naAction string) (*Formula, map[string]*design.FactorInfo, string) {
	if naAction == "" {
		naAction = s.NAAction
	}
	return &Formula{RHS: s.Terms(), Ordering: s.Formula.Ordering}, s.factors, naAction
}

func contextEnv(context any) (design.Env, error) {
	switch c := context.(type) {
	case nil, int:
		return design.MapEnv{}, nil
	case map[string]any:
		return design.MapEnv(c), nil
	}
	return nil, fmt.Errorf("context must be an int or a map, got %T", context)
}

func naFilter(action string) (design.FilterFunc, error) {
	types := []string{design.NAString, design.NANumber}
	switch action {
	case NAIgnore:
		return nil, nil
	case NARaise:
		return func(codes []string, values map[string]*design.Value) ([]bool, error) {
			for _, c := range codes {
				for r, missing := range values[c].Mask(types) {
					if missing {
						return nil, fmt.Errorf("error encountered while checking for nulls in `%s`: null values detected (row %d)", c, r)
					}
				}
			}
			keep := make([]bool, values[codes[0]].Len())
			for i := range keep {
				keep[i] = true
			}
			return keep, nil
		}, nil
	case NADrop:
		return func(codes []string, values map[string]*design.Value) ([]bool, error) {
			n := values[codes[0]].Len()
			drop, _ := design.AnyMissing(design.MissingMasks(codes, values, types), n)
			keep := design.Keep(drop)
			design.SubsetAll(values, keep)
			return keep, nil
		}, nil
	}
	return nil, fmt.Errorf("invalid NA action %q: must be %s, %s or %s", action, NADrop, NARaise, NAIgnore)
}
