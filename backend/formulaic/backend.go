package formulaic

import (
	"fmt"

	"github.com/adgarrio/statformula/formula"
)

func init() {
	formula.Register(formula.EngineFormulaic, backend{})
}

type backend struct{}

var _ formula.Backend = backend{}

func (backend) Parse(f string, ordering formula.Ordering) (formula.Parsed, error) {
	parsed, err := NewFormula(f, ordering)
	if err != nil {
		return nil, err
	}
	return parsed, nil
}

func (backend) Build(req *formula.BuildRequest) (lhs, rhs *formula.Matrix, err error) {
	var na string
	switch a := req.NAAction.(type) {
	case nil:
	case string:
		na = a
	default:
		return nil, nil, fmt.Errorf("NA action must be drop, raise or ignore, got %T", req.NAAction)
	}
	mm, err := materialize(req.Formula, req.Data, req.Env, na, req.Ordering)
	if err != nil {
		return nil, nil, err
	}
	if mm.LHS != nil {
		lhs = toMatrix(mm.LHS)
	}
	return lhs, toMatrix(mm.RHS), nil
}

func toMatrix(m *ModelMatrix) *formula.Matrix {
	return &formula.Matrix{
		Dense:    m.Dense,
		Columns:  m.Spec.ColumnNames(),
		RowIndex: m.Index,
		Spec:     m.Spec,
	}
}

func (backend) SpecOf(v any) (formula.Spec, bool) {
	switch x := v.(type) {
	case *ModelMatrix:
		if x != nil && x.Spec != nil {
			return x.Spec, true
		}
	case *ModelSpec:
		if x != nil {
			return x, true
		}
	}
	return nil, false
}

func asSpec(spec formula.Spec) *ModelSpec {
	if s, ok := spec.(*ModelSpec); ok && s != nil {
		return s
	}
	return &ModelSpec{Formula: &Formula{}}
}

func (backend) Labels(spec formula.Spec) []string { return asSpec(spec).ColumnNames() }

func (backend) ColumnNames(spec formula.Spec) []string { return asSpec(spec).ColumnNames() }

func (backend) Terms(spec formula.Spec) []formula.Term {
	ts := asSpec(spec).Terms()
	out := make([]formula.Term, len(ts))
	for i, t := range ts {
		out[i] = t
	}
	return out
}

func (backend) TermSlices(spec formula.Spec) []formula.TermSlice {
	return asSpec(spec).TermSlices()
}

func (backend) Slice(spec formula.Spec, term formula.Term) (start, stop int, err error) {
	t, ok := term.(Term)
	if !ok {
		return 0, 0, fmt.Errorf("term %s is not a formulaic term", term)
	}
	return asSpec(spec).GetSlice(t)
}

func (backend) InterceptTerm() formula.Term { return Term{} }

func (backend) TermName(t formula.Term) string { return t.String() }

func (backend) Describe(spec formula.Spec) string { return asSpec(spec).Describe() }

func (backend) LinearConstraints(constraints any, names []string) (*formula.ConstraintSystem, error) {
	lc, err := LinearConstraintsFromSpec(constraints, names)
	if err != nil {
		return nil, err
	}
	return &formula.ConstraintSystem{
		Matrix:        lc.ConstraintMatrix,
		Values:        lc.ConstraintValues,
		VariableNames: lc.VariableNames,
	}, nil
}

// NAAction validates the action. The dialect always treats None and NaN as
// missing, so types is ignored.
func (backend) NAAction(action string, _ []string) (any, error) {
	switch action {
	case NADrop, NARaise, NAIgnore:
		return action, nil
	}
	return nil, fmt.Errorf("invalid NA action %q: must be %s, %s or %s", action, NADrop, NARaise, NAIgnore)
}

func (backend) EmptyEnv() any { return map[string]any{} }
