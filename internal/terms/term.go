package terms

import (
	"fmt"
	"sort"
	"strings"
)

// Term is a product of factors. The term with no factors is the intercept.
type Term struct {
	Factors []string // factor codes in order of first appearance
}

// Key identifies the factor set independent of order.
func (t Term) Key() string {
	codes := append([]string(nil), t.Factors...)
	sort.Strings(codes)
	return strings.Join(codes, ":")
}

// Degree is the number of factors.
func (t Term) Degree() int { return len(t.Factors) }

// IsIntercept reports whether t is the intercept term.
func (t Term) IsIntercept() bool { return len(t.Factors) == 0 }

// Equal reports whether t and o contain the same factors.
func (t Term) Equal(o Term) bool { return t.Key() == o.Key() }

// String joins the factor codes with ":" in appearance order.
func (t Term) String() string { return strings.Join(t.Factors, ":") }

// Contains reports whether code is one of the term's factors.
func (t Term) Contains(code string) bool {
	for _, f := range t.Factors {
		if f == code {
			return true
		}
	}
	return false
}

// Codes returns the distinct factor codes used by ts in order of appearance.
func Codes(ts []Term) []string {
	seen := make(map[string]bool)
	var codes []string
	for _, t := range ts {
		for _, f := range t.Factors {
			if !seen[f] {
				seen[f] = true
				codes = append(codes, f)
			}
		}
	}
	return codes
}

// Ordering names how expanded terms are arranged.
const (
	OrderDegree = "degree"
	OrderSort   = "sort"
	OrderNone   = "none"
)

// Order arranges ts according to mode. "degree" is a stable sort by the
// number of factors, "sort" additionally sorts factors within each term and
// terms of equal degree lexically, "none" keeps the written order. The
// intercept always leads.
func Order(ts []Term, mode string) ([]Term, error) {
	out := make([]Term, len(ts))
	copy(out, ts)
	switch mode {
	case OrderNone:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].IsIntercept() && !out[j].IsIntercept()
		})
	case OrderDegree:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].Degree() < out[j].Degree()
		})
	case OrderSort:
		for i := range out {
			fs := append([]string(nil), out[i].Factors...)
			sort.Strings(fs)
			out[i] = Term{Factors: fs}
		}
		sort.SliceStable(out, func(i, j int) bool {
			if out[i].Degree() != out[j].Degree() {
				return out[i].Degree() < out[j].Degree()
			}
			return out[i].Key() < out[j].Key()
		})
	default:
		return nil, fmt.Errorf("unknown term ordering %q", mode)
	}
	return out, nil
}

// --- term algebra ---

type intercept int8

const (
	interceptUnset intercept = 0
	interceptYes   intercept = 1
	interceptNo    intercept = -1
)

type termSet struct {
	terms []Term
	icept intercept
}

func (s termSet) has(t Term) bool {
	for _, x := range s.terms {
		if x.Equal(t) {
			return true
		}
	}
	return false
}

func (s termSet) add(t Term) termSet {
	if t.IsIntercept() {
		s.icept = interceptYes
		return s
	}
	if !s.has(t) {
		s.terms = append(s.terms, t)
	}
	return s
}

func (s termSet) union(o termSet) termSet {
	out := termSet{terms: append([]Term(nil), s.terms...), icept: s.icept}
	for _, t := range o.terms {
		out = out.add(t)
	}
	if o.icept != interceptUnset {
		out.icept = o.icept
	}
	return out
}

func (s termSet) minus(o termSet) termSet {
	out := termSet{icept: s.icept}
	for _, t := range s.terms {
		if !o.has(t) {
			out.terms = append(out.terms, t)
		}
	}
	switch o.icept {
	case interceptYes:
		out.icept = interceptNo
	case interceptNo:
		out.icept = interceptYes
	}
	return out
}

// expanded lists the terms with the intercept made explicit.
func (s termSet) expanded() []Term {
	if s.icept == interceptYes {
		return append([]Term{{}}, s.terms...)
	}
	return s.terms
}

// cross forms every pairwise interaction of s and o.
func (s termSet) cross(o termSet) termSet {
	var out termSet
	for _, a := range s.expanded() {
		for _, b := range o.expanded() {
			fs := append([]string(nil), a.Factors...)
			for _, f := range b.Factors {
				if !a.Contains(f) {
					fs = append(fs, f)
				}
			}
			out = out.add(Term{Factors: fs})
		}
	}
	return out
}

// collapse merges every factor of s into a single term, as the left operand
// of "/" requires.
func (s termSet) collapse() termSet {
	return termSet{terms: []Term{{Factors: Codes(s.terms)}}}
}
