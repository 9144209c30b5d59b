package patsy

import (
	"fmt"
	"strings"

	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/internal/design"
	"github.com/adgarrio/statformula/internal/lincon"
)

// DesignInfo describes the columns of a design matrix and how to rebuild
// them on new data.
type DesignInfo struct {
	columnNames []string
	terms       []Term
	slices      []formula.TermSlice

	// factors is the fitted factor state; nil for infos made from names.
	factors map[string]*design.FactorInfo
}

// NewDesignInfo returns an info for plain columns: each column is its own
// term.
func NewDesignInfo(columnNames []string) *DesignInfo {
	info := &DesignInfo{columnNames: append([]string(nil), columnNames...)}
	for i, n := range columnNames {
		t := Term{Factors: []EvalFactor{{Code: n}}}
		info.terms = append(info.terms, t)
		info.slices = append(info.slices, formula.TermSlice{Term: t, Name: n, Start: i, Stop: i + 1})
	}
	return info
}

func newDesignInfo(ts []Term, plan *design.Plan, factors map[string]*design.FactorInfo) *DesignInfo {
	info := &DesignInfo{
		columnNames: append([]string(nil), plan.Columns...),
		terms:       ts,
		factors:     factors,
	}
	for i, t := range ts {
		span := plan.Spans[i]
		info.slices = append(info.slices, formula.TermSlice{Term: t, Name: t.Name(), Start: span.Start, Stop: span.Stop})
	}
	return info
}

// Engine identifies the dialect.
func (d *DesignInfo) Engine() formula.Engine { return formula.EnginePatsy }

// ColumnNames returns the column names in order.
func (d *DesignInfo) ColumnNames() []string { return append([]string(nil), d.columnNames...) }

// Terms returns the terms in column order.
func (d *DesignInfo) Terms() []Term { return append([]Term(nil), d.terms...) }

// TermNames returns the term names in column order.
func (d *DesignInfo) TermNames() []string {
	out := make([]string, len(d.terms))
	for i, t := range d.terms {
		out[i] = t.Name()
	}
	return out
}

// TermNameSlices returns the columns occupied by each term.
func (d *DesignInfo) TermNameSlices() []formula.TermSlice {
	return append([]formula.TermSlice(nil), d.slices...)
}

// Slice returns the columns of a term, given as a Term or a term name.
func (d *DesignInfo) Slice(term any) (start, stop int, err error) {
	switch t := term.(type) {
	case Term:
		for _, s := range d.slices {
			if t.Equal(s.Term) {
				return s.Start, s.Stop, nil
			}
		}
		return 0, 0, fmt.Errorf("term %s is not in the design", t.Name())
	case string:
		for _, s := range d.slices {
			if s.Name == t {
				return s.Start, s.Stop, nil
			}
		}
		for j, c := range d.columnNames {
			if c == t {
				return j, j + 1, nil
			}
		}
		return 0, 0, fmt.Errorf("no term or column named %q", t)
	}
	return 0, 0, fmt.Errorf("cannot take a slice for %T", term)
}

// Describe renders the terms as a right-hand side, with the intercept
// written as "1".
func (d *DesignInfo) Describe() string {
	names := d.TermNames()
	for i, n := range names {
		if n == "Intercept" {
			names[i] = "1"
		}
	}
	return strings.Join(names, " + ")
}

// LinearConstraint parses constraints against the info's columns.
func (d *DesignInfo) LinearConstraint(constraints any) (*LinearConstraint, error) {
	return NewLinearConstraint(constraints, d.columnNames)
}

// LinearConstraint is the system Coefs · b = Constants over VariableNames.
// Constants has one column.
type LinearConstraint struct {
	VariableNames []string
	Coefs         *mat.Dense
	Constants     *mat.Dense
}

// NewLinearConstraint builds a constraint system from an equation string, a
// list of equations, a coefficient matrix (with zero constants), a
// formula.ConstraintPair or a map of variable values.
func NewLinearConstraint(constraints any, names []string) (*LinearConstraint, error) {
	var sys *lincon.System
	var err error
	switch c := constraints.(type) {
	case string:
		sys, err = lincon.Parse([]string{c}, names)
	case []string:
		sys, err = lincon.Parse(c, names)
	case map[string]float64:
		sys, err = lincon.FromMap(c, names)
	case *mat.Dense:
		return fromMatrix(c, nil, names)
	case formula.ConstraintPair:
		return fromPair(c, names)
	case *formula.ConstraintPair:
		return fromPair(*c, names)
	default:
		return nil, fmt.Errorf("don't know how to interpret constraint of type %T", constraints)
	}
	if err != nil {
		return nil, err
	}
	k := len(sys.Coefs)
	coefs := mat.NewDense(k, len(names), nil)
	for i, row := range sys.Coefs {
		coefs.SetRow(i, row)
	}
	return &LinearConstraint{
		VariableNames: append([]string(nil), names...),
		Coefs:         coefs,
		Constants:     mat.NewDense(k, 1, append([]float64(nil), sys.Constants...)),
	}, nil
}

func fromPair(p formula.ConstraintPair, names []string) (*LinearConstraint, error) {
	if p.Coefs == nil {
		return nil, fmt.Errorf("constraint pair has no coefficients")
	}
	var vals []float64
	switch v := p.Values.(type) {
	case nil:
	case mat.Vector:
		vals = make([]float64, v.Len())
		for i := range vals {
			vals[i] = v.AtVec(i)
		}
	case []float64:
		vals = v
	default:
		return nil, fmt.Errorf("unsupported constraint values %T", p.Values)
	}
	return fromMatrix(p.Coefs, vals, names)
}

func fromMatrix(coefs mat.Matrix, vals []float64, names []string) (*LinearConstraint, error) {
	k, n := coefs.Dims()
	if n != len(names) {
		return nil, fmt.Errorf("constraint matrix has %d columns but there are %d variables", n, len(names))
	}
	if vals == nil {
		vals = make([]float64, k)
	}
	if len(vals) != k {
		return nil, fmt.Errorf("shape mismatch between coefficients (%d rows) and constants (%d)", k, len(vals))
	}
	return &LinearConstraint{
		VariableNames: append([]string(nil), names...),
		Coefs:         mat.DenseCopyOf(coefs),
		Constants:     mat.NewDense(k, 1, append([]float64(nil), vals...)),
	}, nil
}
