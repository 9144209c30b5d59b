package formulaic

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/internal/lincon"
)

// LinearConstraints is the system ConstraintMatrix · b = ConstraintValues.
// ConstraintValues has one entry per constraint.
type LinearConstraints struct {
	ConstraintMatrix *mat.Dense
	ConstraintValues []float64
	VariableNames    []string
}

// LinearConstraintsFromSpec builds constraints from an equation string
// (several may be separated by commas), a list of equations, a map of
// variable values, a coefficient matrix with zero values or a
// formula.ConstraintPair.
func LinearConstraintsFromSpec(spec any, variableNames []string) (*LinearConstraints, error) {
	names := append([]string(nil), variableNames...)
	var sys *lincon.System
	var err error
	switch s := spec.(type) {
	case string:
		sys, err = lincon.Parse([]string{s}, names)
	case []string:
		sys, err = lincon.Parse(s, names)
	case map[string]float64:
		sys, err = lincon.FromMap(s, names)
	case *mat.Dense:
		return fromCoefs(s, nil, names)
	case formula.ConstraintPair:
		return fromPair(s, names)
	case *formula.ConstraintPair:
		return fromPair(*s, names)
	default:
		return nil, fmt.Errorf("unsupported constraint spec %T", spec)
	}
	if err != nil {
		return nil, err
	}
	m := mat.NewDense(len(sys.Coefs), len(names), nil)
	for i, row := range sys.Coefs {
		m.SetRow(i, row)
	}
	return &LinearConstraints{ConstraintMatrix: m, ConstraintValues: sys.Constants, VariableNames: names}, nil
}

func fromPair(p formula.ConstraintPair, names []string) (*LinearConstraints, error) {
	if p.Coefs == nil {
		return nil, fmt.Errorf("constraint pair has no coefficient matrix")
	}
	var vals []float64
	switch v := p.Values.(type) {
	case nil:
	case []float64:
		vals = v
	case mat.Vector:
		vals = make([]float64, v.Len())
		for i := range vals {
			vals[i] = v.AtVec(i)
		}
	default:
		return nil, fmt.Errorf("unsupported constraint values %T", p.Values)
	}
	return fromCoefs(p.Coefs, vals, names)
}

func fromCoefs(coefs mat.Matrix, vals []float64, names []string) (*LinearConstraints, error) {
	k, n := coefs.Dims()
	if n != len(names) {
		return nil, fmt.Errorf("constraint matrix has %d columns for %d variables", n, len(names))
	}
	if vals == nil {
		vals = make([]float64, k)
	}
	if len(vals) != k {
		return nil, fmt.Errorf("constraint matrix has %d rows but %d values were given", k, len(vals))
	}
	return &LinearConstraints{
		ConstraintMatrix: mat.DenseCopyOf(coefs),
		ConstraintValues: append([]float64(nil), vals...),
		VariableNames:    names,
	}, nil
}
