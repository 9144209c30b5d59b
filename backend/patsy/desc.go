// Package patsy implements the patsy formula dialect: model descriptions
// with terms ordered by degree, design infos that name columns and term
// slices, evaluation environments and missing-value handling through
// formula.NAAction.
//
// Importing the package registers the dialect with the formula package:
//
//	import _ "github.com/adgarrio/statformula/backend/patsy"
package patsy

import (
	"strings"

	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/internal/terms"
)

// EvalFactor is a factor given by the code that evaluates it.
type EvalFactor struct {
	Code string
}

// Name returns the factor code.
func (f EvalFactor) Name() string { return f.Code }

// Term is a product of factors. The term with no factors is the intercept.
type Term struct {
	Factors []EvalFactor
}

// Intercept is the intercept term.
var Intercept = Term{}

// Name returns "Intercept" for the intercept and the factor codes joined by
// ":" otherwise.
func (t Term) Name() string {
	if len(t.Factors) == 0 {
		return "Intercept"
	}
	codes := make([]string, len(t.Factors))
	for i, f := range t.Factors {
		codes[i] = f.Code
	}
	return strings.Join(codes, ":")
}

func (t Term) String() string { return t.Name() }

// Equal reports whether o is a patsy term with the same set of factors.
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
		codes[i] = f.Code
	}
	return terms.Term{Factors: codes}
}

func fromInternal(ts []terms.Term) []Term {
	out := make([]Term, len(ts))
	for i, t := range ts {
		fs := make([]EvalFactor, len(t.Factors))
		for j, c := range t.Factors {
			fs[j] = EvalFactor{Code: c}
		}
		out[i] = Term{Factors: fs}
	}
	return out
}

func toInternal(ts []Term) []terms.Term {
	out := make([]terms.Term, len(ts))
	for i, t := range ts {
		out[i] = t.internal()
	}
	return out
}

// ModelDesc is a parsed formula: the terms of each side, ordered by degree.
type ModelDesc struct {
	LHS []Term
	RHS []Term
}

// ModelDescFromFormula parses a formula string.
func ModelDescFromFormula(src string) (*ModelDesc, error) {
	f, err := terms.Parse(src)
	if err != nil {
		return nil, err
	}
	rhs, err := terms.Order(f.RHS, terms.OrderDegree)
	if err != nil {
		return nil, err
	}
	return &ModelDesc{LHS: fromInternal(f.LHS), RHS: fromInternal(rhs)}, nil
}

// Engine identifies the dialect.
func (d *ModelDesc) Engine() formula.Engine { return formula.EnginePatsy }

// Describe renders the description as a formula. An absent intercept is
// written as a leading "0".
func (d *ModelDesc) Describe() string {
	lhs := make([]string, len(d.LHS))
	for i, t := range d.LHS {
		lhs[i] = termCode(t)
	}
	out := strings.Join(lhs, " + ")
	if out != "" {
		out += " ~ "
	} else {
		out = "~ "
	}

	if len(d.RHS) == 1 && len(d.RHS[0].Factors) == 0 {
		return out + "1"
	}
	var rhs []string
	hasIntercept := false
	for _, t := range d.RHS {
		if len(t.Factors) == 0 {
			hasIntercept = true
			continue
		}
		rhs = append(rhs, termCode(t))
	}
	if !hasIntercept {
		rhs = append([]string{"0"}, rhs...)
	}
	return out + strings.Join(rhs, " + ")
}

func (d *ModelDesc) String() string { return d.Describe() }

func termCode(t Term) string {
	if len(t.Factors) == 0 {
		return "1"
	}
	return t.Name()
}
