package patsy

import (
	"fmt"

	"github.com/adgarrio/statformula/formula"
)

func init() {
	formula.Register(formula.EnginePatsy, backend{})
}

type backend struct{}

var _ formula.Backend = backend{}

// Parse ignores ordering: terms are always ordered by degree.
func (backend) Parse(f string, _ formula.Ordering) (formula.Parsed, error) {
	desc, err := ModelDescFromFormula(f)
	if err != nil {
		return nil, err
	}
	return desc, nil
}

func (backend) Build(req *formula.BuildRequest) (lhs, rhs *formula.Matrix, err error) {
	env, err := evalEnv(req.Env)
	if err != nil {
		return nil, nil, err
	}
	na, err := naHandler(req.NAAction)
	if err != nil {
		return nil, nil, err
	}
	y, X, err := build(req.Formula, req.Data, env, na)
	if err != nil {
		return nil, nil, err
	}
	if y != nil {
		lhs = toMatrix(y)
	}
	return lhs, toMatrix(X), nil
}

func toMatrix(m *DesignMatrix) *formula.Matrix {
	return &formula.Matrix{
		Dense:    m.Dense,
		Columns:  m.Info.ColumnNames(),
		RowIndex: m.Index,
		Spec:     m.Info,
	}
}

func evalEnv(env any) (*EvalEnvironment, error) {
	switch e := env.(type) {
	case nil:
		return NewEvalEnvironment(), nil
	case int:
		return Capture(e)
	case *EvalEnvironment:
		return e, nil
	case map[string]any:
		return NewEvalEnvironment(e), nil
	case formula.Namespacer:
		return NewEvalEnvironment(e.Namespaces()...), nil
	}
	return nil, fmt.Errorf("eval env must be an int, a map or an *EvalEnvironment, got %T", env)
}

func naHandler(na any) (formula.NAHandler, error) {
	switch a := na.(type) {
	case nil:
		return newNAAction(formula.NADrop)
	case string:
		return newNAAction(a)
	case formula.NAHandler:
		return a, nil
	}
	return nil, fmt.Errorf("NA action must be a string or an NA handler, got %T", na)
}

func (backend) SpecOf(v any) (formula.Spec, bool) {
	switch x := v.(type) {
	case *DesignMatrix:
		if x != nil && x.Info != nil {
			return x.Info, true
		}
	case *DesignInfo:
		if x != nil {
			return x, true
		}
	}
	return nil, false
}

func asInfo(spec formula.Spec) *DesignInfo {
	if info, ok := spec.(*DesignInfo); ok && info != nil {
		return info
	}
	return &DesignInfo{}
}

// Labels returns the term names: a patsy spec describes itself by terms.
func (backend) Labels(spec formula.Spec) []string { return asInfo(spec).TermNames() }

func (backend) ColumnNames(spec formula.Spec) []string { return asInfo(spec).ColumnNames() }

func (backend) Terms(spec formula.Spec) []formula.Term {
	ts := asInfo(spec).Terms()
	out := make([]formula.Term, len(ts))
	for i, t := range ts {
		out[i] = t
	}
	return out
}

func (backend) TermSlices(spec formula.Spec) []formula.TermSlice {
	return asInfo(spec).TermNameSlices()
}

func (backend) Slice(spec formula.Spec, term formula.Term) (start, stop int, err error) {
	t, ok := term.(Term)
	if !ok {
		return 0, 0, fmt.Errorf("term %s is not a patsy term", term)
	}
	return asInfo(spec).Slice(t)
}

func (backend) InterceptTerm() formula.Term { return Intercept }

func (backend) TermName(t formula.Term) string {
	if pt, ok := t.(Term); ok {
		return pt.Name()
	}
	return t.String()
}

func (backend) Describe(spec formula.Spec) string { return asInfo(spec).Describe() }

func (backend) LinearConstraints(constraints any, names []string) (*formula.ConstraintSystem, error) {
	lc, err := NewLinearConstraint(constraints, names)
	if err != nil {
		return nil, err
	}
	return &formula.ConstraintSystem{
		Matrix:        lc.Coefs,
		Constants:     lc.Constants,
		VariableNames: lc.VariableNames,
	}, nil
}

func (backend) NAAction(action string, types []string) (any, error) {
	a, err := formula.NewNAAction(action, types)
	if err != nil {
		return nil, err
	}
	return a, nil
}

func (backend) EmptyEnv() any { return NewEvalEnvironment() }

func newNAAction(action string) (formula.NAHandler, error) {
	a, err := formula.NewNAAction(action, nil)
	if err != nil {
		return nil, err
	}
	return a, nil
}
