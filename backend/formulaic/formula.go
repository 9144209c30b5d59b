// Package formulaic implements the formulaic formula dialect: formulas with
// a configurable term ordering, model specs, model matrices and linear
// constraints with one-dimensional values.
//
// Importing the package registers the dialect with the formula package:
//
//	import _ "github.com/adgarrio/statformula/backend/formulaic"
package formulaic

import (
	"strings"

	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/internal/terms"
)

// Factor is one evaluated expression, such as "x" or "log(x)".
type Factor struct {
	Expr string
}

func (f Factor) String() string { return f.Expr }

// Term is a product of factors; the term without factors is the intercept.
type Term struct {
	Factors []Factor
}

// String returns "1" for the intercept and the factors joined by ":"
// otherwise.
func (t Term) String() string {
	if len(t.Factors) == 0 {
		return "1"
	}
	parts := make([]string, len(t.Factors))
	for i, f := range t.Factors {
		parts[i] = f.Expr
	}
	return strings.Join(parts, ":")
}

// Equal reports whether o is a formulaic term with the same factors.
func (t Term) Equal(o formula.Term) bool {
	var other Term
	switch x := o.(type) {
	case Term:
		other = x
	case *Term:
		if x == nil {
			return false
		}
		other = *x
	default:
		return false
	}
	return t.internal().Equal(other.internal())
}

func (t Term) internal() terms.Term {
	codes := make([]string, len(t.Factors))
	for i, f := range t.Factors {
		codes[i] = f.Expr
	}
	return terms.Term{Factors: codes}
}

func wrap(ts []terms.Term) []Term {
	out := make([]Term, len(ts))
	for i, t := range ts {
		fs := make([]Factor, len(t.Factors))
		for j, c := range t.Factors {
			fs[j] = Factor{Expr: c}
		}
		out[i] = Term{Factors: fs}
	}
	return out
}

func unwrap(ts []Term) []terms.Term {
	out := make([]terms.Term, len(ts))
	for i, t := range ts {
		out[i] = t.internal()
	}
	return out
}

// Formula is a parsed formula with its terms arranged by an ordering.
type Formula struct {
	LHS      []Term
	RHS      []Term
	Ordering formula.Ordering
}

// NewFormula parses src and orders its terms. An empty ordering means
// degree.
func NewFormula(src string, ordering formula.Ordering) (*Formula, error) {
	if ordering == "" {
		ordering = formula.OrderDegree
	}
	f, err := terms.Parse(src)
	if err != nil {
		return nil, err
	}
	lhs, err := terms.Order(f.LHS, string(ordering))
	if err != nil {
		return nil, err
	}
	rhs, err := terms.Order(f.RHS, string(ordering))
	if err != nil {
		return nil, err
	}
	return &Formula{LHS: wrap(lhs), RHS: wrap(rhs), Ordering: ordering}, nil
}

// Engine identifies the dialect.
func (f *Formula) Engine() formula.Engine { return formula.EngineFormulaic }

// String renders the formula with the intercept written as "1".
func (f *Formula) String() string {
	rhs := joinTerms(f.RHS)
	if len(f.LHS) == 0 {
		return rhs
	}
	return joinTerms(f.LHS) + " ~ " + rhs
}

func joinTerms(ts []Term) string {
	if len(ts) == 0 {
		return "0"
	}
	parts := make([]string, len(ts))
	for i, t := range ts {
		parts[i] = t.String()
	}
	return strings.Join(parts, " + ")
}
