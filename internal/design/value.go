// Package design evaluates formula factors against tabular data and lays
// the results out as design-matrix columns.
package design

import (
	"fmt"
	"math"
)

// Missing-value type tags.
const (
	NAString = "None"
	NANumber = "NaN"
)

// Value is an evaluated factor: one numeric or categorical entry per row.
type Value struct {
	Code        string
	Categorical bool
	Num         []float64
	Cat         []string
	Null        []bool // absent entries
	NaN         []bool // categorical entries derived from NaN
}

// Len returns the number of rows.
func (v *Value) Len() int {
	if v.Categorical {
		return len(v.Cat)
	}
	return len(v.Num)
}

// Mask flags the rows that are missing under the given type tags.
func (v *Value) Mask(types []string) []bool {
	var none, nan bool
	for _, t := range types {
		switch t {
		case NAString:
			none = true
		case NANumber:
			nan = true
		}
	}
	n := v.Len()
	mask := make([]bool, n)
	for i := 0; i < n; i++ {
		if none && v.Null != nil && v.Null[i] {
			mask[i] = true
		}
		if !nan {
			continue
		}
		if v.Categorical {
			mask[i] = mask[i] || v.NaN != nil && v.NaN[i]
		} else if math.IsNaN(v.Num[i]) {
			mask[i] = true
		}
	}
	return mask
}

// Array returns the underlying row array.
func (v *Value) Array() any {
	if v.Categorical {
		return v.Cat
	}
	return v.Num
}

// Subset keeps the rows where keep is true.
func (v *Value) Subset(keep []bool) *Value {
	out := &Value{Code: v.Code, Categorical: v.Categorical}
	if v.Categorical {
		out.Cat = subset(v.Cat, keep)
	} else {
		out.Num = subset(v.Num, keep)
	}
	if v.Null != nil {
		out.Null = subset(v.Null, keep)
	}
	if v.NaN != nil {
		out.NaN = subset(v.NaN, keep)
	}
	return out
}

// Replace swaps in a filtered row array produced by an NA handler, keeping
// the aligned masks in step.
func (v *Value) Replace(arr any, keep []bool) error {
	switch a := arr.(type) {
	case []float64:
		if v.Categorical {
			return fmt.Errorf("factor %s: numeric array for categorical factor", v.Code)
		}
		v.Num = a
	case []string:
		if !v.Categorical {
			return fmt.Errorf("factor %s: string array for numeric factor", v.Code)
		}
		v.Cat = a
	default:
		return fmt.Errorf("factor %s: unsupported array type %T", v.Code, arr)
	}
	if v.Null != nil {
		v.Null = subset(v.Null, keep)
	}
	if v.NaN != nil {
		v.NaN = subset(v.NaN, keep)
	}
	if v.Len() != countTrue(keep) {
		return fmt.Errorf("factor %s: filtered array has %d rows, want %d", v.Code, v.Len(), countTrue(keep))
	}
	return nil
}

func subset[T any](xs []T, keep []bool) []T {
	out := make([]T, 0, len(xs))
	for i, x := range xs {
		if keep[i] {
			out = append(out, x)
		}
	}
	return out
}

func countTrue(bs []bool) int {
	n := 0
	for _, b := range bs {
		if b {
			n++
		}
	}
	return n
}

// Keep returns the complement of a drop mask.
func Keep(drop []bool) []bool {
	keep := make([]bool, len(drop))
	for i, d := range drop {
		keep[i] = !d
	}
	return keep
}

// KeptIndex returns the entries of index whose rows are kept.
func KeptIndex(index []int, keep []bool) []int {
	return subset(index, keep)
}
