package formula

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

// NA actions.
const (
	NADrop   = "drop"
	NARaise  = "raise"
	NAIgnore = "ignore"
)

// Missing-value type tags.
const (
	NATypeNone = "None"
	NATypeNaN  = "NaN"
)

// DefaultNATypes are the value types treated as missing by default.
var DefaultNATypes = []string{NATypeNone, NATypeNaN}

// NAAction drops or rejects rows holding missing values. When dropping it
// removes every row missing in any of the arrays it is given and records
// the dropped rows in MissingMask, so callers can line results up with the
// original rows.
type NAAction struct {
	OnNA    string
	NATypes []string

	// MissingMask flags the dropped rows of the last Handle call.
	MissingMask []bool
}

// NewNAAction validates the action and types. A nil types slice selects
// DefaultNATypes; an empty one treats nothing as missing.
func NewNAAction(onNA string, types []string) (*NAAction, error) {
	if onNA != NADrop && onNA != NARaise {
		return nil, configError(nil, []string{NADrop, NARaise}, "invalid NA action %q: must be %s", onNA, joinChoices([]string{NADrop, NARaise}))
	}
	if types == nil {
		types = DefaultNATypes
	}
	for _, t := range types {
		if t != NATypeNone && t != NATypeNaN {
			return nil, configError(nil, DefaultNATypes, "invalid NA type %q: must be %s", t, joinChoices(DefaultNATypes))
		}
	}
	return &NAAction{OnNA: onNA, NATypes: append([]string(nil), types...)}, nil
}

// Types returns the missing-value type tags.
func (a *NAAction) Types() []string { return a.NATypes }

func (a *NAAction) hasType(t string) bool {
	for _, x := range a.NATypes {
		if x == t {
			return true
		}
	}
	return false
}

// IsNumericalNA reports whether a numeric entry counts as missing. null
// marks an absent entry.
func (a *NAAction) IsNumericalNA(v float64, null bool) bool {
	return null && a.hasType(NATypeNone) || math.IsNaN(v) && a.hasType(NATypeNaN)
}

// IsCategoricalNA reports whether a categorical entry counts as missing.
func (a *NAAction) IsCategoricalNA(null, nan bool) bool {
	return null && a.hasType(NATypeNone) || nan && a.hasType(NATypeNaN)
}

// Handle applies the action to row-aligned arrays. For drop it filters all
// arrays in lockstep with the union of masks; for raise it fails on the
// first missing entry.
func (a *NAAction) Handle(values []any, masks [][]bool, origins []string) ([]any, error) {
	if len(values) != len(masks) {
		return nil, fmt.Errorf("got %d arrays but %d missing masks", len(values), len(masks))
	}
	if len(values) == 0 {
		a.MissingMask = nil
		return values, nil
	}

	n := len(masks[0])
	for i, m := range masks {
		if len(m) != n {
			return nil, fmt.Errorf("missing mask %d has %d rows, want %d", i, len(m), n)
		}
	}

	switch a.OnNA {
	case NARaise:
		for i, m := range masks {
			for r, missing := range m {
				if missing {
					return nil, fmt.Errorf("factor %s contains missing values (row %d)", origin(origins, i), r)
				}
			}
		}
		return values, nil
	case NADrop:
		total := make([]bool, n)
		for _, m := range masks {
			for r, missing := range m {
				total[r] = total[r] || missing
			}
		}
		keep := make([]bool, n)
		for r := range total {
			keep[r] = !total[r]
		}
		a.MissingMask = total

		out := make([]any, len(values))
		for i, v := range values {
			fv, err := SelectRows(v, keep)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", origin(origins, i), err)
			}
			out[i] = fv
		}
		return out, nil
	}
	return nil, fmt.Errorf("unsupported NA action %q", a.OnNA)
}

func origin(origins []string, i int) string {
	if i < len(origins) {
		return origins[i]
	}
	return fmt.Sprintf("#%d", i)
}

// SelectRows keeps the rows of v where keep is true. One-dimensional
// arrays stay one-dimensional and matrices keep all their columns.
func SelectRows(v any, keep []bool) (any, error) {
	switch x := v.(type) {
	case []float64:
		return selectSlice(x, keep)
	case []string:
		return selectSlice(x, keep)
	case []bool:
		return selectSlice(x, keep)
	case []int:
		return selectSlice(x, keep)
	case *mat.VecDense:
		if x.Len() != len(keep) {
			return nil, fmt.Errorf("vector has %d rows, mask has %d", x.Len(), len(keep))
		}
		var data []float64
		for i := 0; i < x.Len(); i++ {
			if keep[i] {
				data = append(data, x.AtVec(i))
			}
		}
		if len(data) == 0 {
			return &mat.VecDense{}, nil
		}
		return mat.NewVecDense(len(data), data), nil
	case mat.Matrix:
		r, c := x.Dims()
		if r != len(keep) {
			return nil, fmt.Errorf("matrix has %d rows, mask has %d", r, len(keep))
		}
		var data []float64
		rows := 0
		for i := 0; i < r; i++ {
			if !keep[i] {
				continue
			}
			for j := 0; j < c; j++ {
				data = append(data, x.At(i, j))
			}
			rows++
		}
		if rows == 0 {
			return &mat.Dense{}, nil
		}
		return mat.NewDense(rows, c, data), nil
	}
	return nil, fmt.Errorf("unsupported array type %T", v)
}

func selectSlice[T any](xs []T, keep []bool) ([]T, error) {
	if len(xs) != len(keep) {
		return nil, fmt.Errorf("array has %d rows, mask has %d", len(xs), len(keep))
	}
	out := make([]T, 0, len(xs))
	for i, x := range xs {
		if keep[i] {
			out = append(out, x)
		}
	}
	return out, nil
}
