// Package frame holds the tabular data formulas are evaluated against.
//
// A Frame is an ordered set of equally long, named columns. Numeric columns
// store float64 values where NaN marks a not-a-number entry; string columns
// are treated as categorical. Either kind may carry a null mask for absent
// values.
package frame

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Kind is the storage kind of a column.
type Kind int

const (
	Numeric Kind = iota
	Categorical
)

func (k Kind) String() string {
	switch k {
	case Numeric:
		return "numeric"
	case Categorical:
		return "categorical"
	default:
		return "Kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Column is a single named column.
type Column struct {
	Name string
	Kind Kind
	Num  []float64 // numeric values, NaN where missing
	Str  []string  // categorical labels
	Null []bool    // absent values; nil means none
}

// NumericColumn builds a numeric column.
func NumericColumn(name string, values []float64) Column {
	return Column{Name: name, Kind: Numeric, Num: values}
}

// StringColumn builds a categorical column.
func StringColumn(name string, values []string) Column {
	return Column{Name: name, Kind: Categorical, Str: values}
}

// WithNulls returns a copy of c with the given null mask.
func (c Column) WithNulls(null []bool) Column {
	c.Null = null
	return c
}

// Len returns the number of rows in the column.
func (c Column) Len() int {
	if c.Kind == Categorical {
		return len(c.Str)
	}
	return len(c.Num)
}

// IsNull reports whether row i holds an absent value.
func (c Column) IsNull(i int) bool {
	return c.Null != nil && c.Null[i]
}

// IsNaN reports whether row i of a numeric column is NaN.
func (c Column) IsNaN(i int) bool {
	return c.Kind == Numeric && math.IsNaN(c.Num[i])
}

// Frame is an ordered collection of equally long columns.
type Frame struct {
	cols  []Column
	byKey map[string]int
	rows  int

	// Index holds the row labels, 0..n-1 unless set by the caller.
	Index []int
}

// New validates and assembles columns into a frame.
func New(cols ...Column) (*Frame, error) {
	f := &Frame{byKey: make(map[string]int, len(cols))}
	for i, c := range cols {
		if c.Name == "" {
			return nil, fmt.Errorf("column %d has no name", i)
		}
		if _, dup := f.byKey[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %q", c.Name)
		}
		n := c.Len()
		if i == 0 {
			f.rows = n
		} else if n != f.rows {
			return nil, fmt.Errorf("column %q has %d rows, want %d", c.Name, n, f.rows)
		}
		if c.Null != nil && len(c.Null) != n {
			return nil, fmt.Errorf("column %q null mask has %d entries, want %d", c.Name, len(c.Null), n)
		}
		f.byKey[c.Name] = i
		f.cols = append(f.cols, c)
	}
	f.Index = make([]int, f.rows)
	for i := range f.Index {
		f.Index[i] = i
	}
	return f, nil
}

// MustNew is like New but panics on error. Intended for tests and literals.
func MustNew(cols ...Column) *Frame {
	f, err := New(cols...)
	if err != nil {
		panic(err)
	}
	return f
}

// Len returns the number of rows.
func (f *Frame) Len() int { return f.rows }

// Names returns the column names in order.
func (f *Frame) Names() []string {
	names := make([]string, len(f.cols))
	for i, c := range f.cols {
		names[i] = c.Name
	}
	return names
}

// Column looks up a column by name.
func (f *Frame) Column(name string) (Column, bool) {
	i, ok := f.byKey[name]
	if !ok {
		return Column{}, false
	}
	return f.cols[i], true
}

// Columns returns the columns in order. The slice must not be modified.
func (f *Frame) Columns() []Column { return f.cols }

// FromMap converts dict-shaped data into a frame. When every value is a
// scalar the result has a single row; otherwise scalars are broadcast to the
// length of the sequence values. Columns are ordered by key.
func FromMap(m map[string]any) (*Frame, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	rows := 1
	if !AllScalar(m) {
		rows = -1
		for _, k := range keys {
			if IsScalar(m[k]) {
				continue
			}
			n, err := seqLen(m[k])
			if err != nil {
				return nil, fmt.Errorf("column %q: %w", k, err)
			}
			if rows >= 0 && n != rows {
				return nil, fmt.Errorf("column %q has %d rows, want %d", k, n, rows)
			}
			rows = n
		}
	}

	cols := make([]Column, 0, len(keys))
	for _, k := range keys {
		c, err := toColumn(k, m[k], rows)
		if err != nil {
			return nil, err
		}
		cols = append(cols, c)
	}
	return New(cols...)
}

// AllScalar reports whether every value of m is a scalar.
func AllScalar(m map[string]any) bool {
	for _, v := range m {
		if !IsScalar(v) {
			return false
		}
	}
	return true
}

// IsScalar reports whether v is a single value rather than a sequence.
func IsScalar(v any) bool {
	switch v.(type) {
	case nil, float64, float32, int, int32, int64, string, bool:
		return true
	}
	return false
}

func seqLen(v any) (int, error) {
	switch s := v.(type) {
	case []float64:
		return len(s), nil
	case []int:
		return len(s), nil
	case []string:
		return len(s), nil
	case []any:
		return len(s), nil
	case Column:
		return s.Len(), nil
	}
	return 0, fmt.Errorf("unsupported value type %T", v)
}

func scalarFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int32:
		return float64(x), true
	case int64:
		return float64(x), true
	case bool:
		if x {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func toColumn(name string, v any, rows int) (Column, error) {
	if IsScalar(v) {
		if v == nil {
			num := make([]float64, rows)
			null := make([]bool, rows)
			for i := range num {
				num[i] = math.NaN()
				null[i] = true
			}
			return NumericColumn(name, num).WithNulls(null), nil
		}
		if s, ok := v.(string); ok {
			str := make([]string, rows)
			for i := range str {
				str[i] = s
			}
			return StringColumn(name, str), nil
		}
		x, _ := scalarFloat(v)
		num := make([]float64, rows)
		for i := range num {
			num[i] = x
		}
		return NumericColumn(name, num), nil
	}

	switch s := v.(type) {
	case Column:
		s.Name = name
		return s, nil
	case []float64:
		return NumericColumn(name, s), nil
	case []int:
		num := make([]float64, len(s))
		for i, x := range s {
			num[i] = float64(x)
		}
		return NumericColumn(name, num), nil
	case []string:
		return StringColumn(name, s), nil
	case []any:
		return anyColumn(name, s)
	}
	return Column{}, fmt.Errorf("column %q: unsupported value type %T", name, v)
}

// anyColumn builds a column from loosely typed values. Any string entry makes
// the column categorical; nil entries are nulls.
func anyColumn(name string, values []any) (Column, error) {
	null := make([]bool, len(values))
	categorical := false
	hasNull := false
	for i, v := range values {
		switch v.(type) {
		case nil:
			null[i] = true
			hasNull = true
		case string:
			categorical = true
		default:
			if _, ok := scalarFloat(v); !ok {
				return Column{}, fmt.Errorf("column %q row %d: unsupported value type %T", name, i, v)
			}
		}
	}
	if !hasNull {
		null = nil
	}

	if categorical {
		str := make([]string, len(values))
		for i, v := range values {
			switch x := v.(type) {
			case nil:
			case string:
				str[i] = x
			default:
				f, _ := scalarFloat(x)
				str[i] = strconv.FormatFloat(f, 'g', -1, 64)
			}
		}
		return StringColumn(name, str).WithNulls(null), nil
	}

	num := make([]float64, len(values))
	for i, v := range values {
		if v == nil {
			num[i] = math.NaN()
			continue
		}
		num[i], _ = scalarFloat(v)
	}
	return NumericColumn(name, num).WithNulls(null), nil
}
