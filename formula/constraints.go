package formula

import (
	"strings"

	"gonum.org/v1/gonum/mat"
)

// LinearConstraints is the canonical linear constraint system
// ConstraintMatrix · b = ConstraintValues over VariableNames.
type LinearConstraints struct {
	ConstraintMatrix *mat.Dense // constraints × variables
	ConstraintValues *mat.Dense // constraints × 1
	VariableNames    []string
}

// NumConstraints returns the number of constraint rows.
func (lc *LinearConstraints) NumConstraints() int {
	r, _ := lc.ConstraintMatrix.Dims()
	return r
}

// ConstraintPair is an explicit coefficient matrix together with its
// right-hand side. Values may be a []float64, a float64, a mat.Vector or a
// row or column mat.Matrix.
type ConstraintPair struct {
	Coefs  mat.Matrix
	Values any
}

// normalizeConstraints reduces the accepted constraint forms to string,
// []string, *mat.Dense, ConstraintPair (with *mat.VecDense values) or
// map[string]float64. String lists are joined when joinStrings is set.
func normalizeConstraints(c any, joinStrings bool) (any, error) {
	switch x := c.(type) {
	case string:
		return x, nil
	case []string:
		if len(x) == 0 {
			return nil, specError("constraints must be non-empty")
		}
		if joinStrings {
			return strings.Join(x, ", "), nil
		}
		return append([]string(nil), x...), nil
	case []any:
		return normalizeList(x, joinStrings)
	case []float64:
		if len(x) == 0 {
			return nil, specError("constraints must be non-empty")
		}
		return mat.NewDense(1, len(x), append([]float64(nil), x...)), nil
	case [][]float64:
		return denseFromRows(x)
	case ConstraintPair:
		return squeezePair(x)
	case *ConstraintPair:
		return squeezePair(*x)
	case map[string]float64:
		if len(x) == 0 {
			return nil, specError("constraints must be non-empty")
		}
		return x, nil
	case mat.Matrix:
		return mat.DenseCopyOf(x), nil
	case nil:
		return nil, specError("constraints must be non-empty")
	}
	return nil, typeError("unsupported constraint type %T", c)
}

func normalizeList(xs []any, joinStrings bool) (any, error) {
	if len(xs) == 0 {
		return nil, specError("constraints must be non-empty")
	}
	_, firstIsString := xs[0].(string)
	for _, v := range xs {
		if _, isString := v.(string); isString != firstIsString {
			return nil, specError("all constraints must be strings when passed as a list, got %v", xs)
		}
	}
	if firstIsString {
		strs := make([]string, len(xs))
		for i, v := range xs {
			strs[i] = v.(string)
		}
		return normalizeConstraints(strs, joinStrings)
	}

	// numeric coefficients: a flat list is one row, a list of lists a matrix
	if _, nested := xs[0].([]float64); nested {
		rows := make([][]float64, len(xs))
		for i, v := range xs {
			row, ok := v.([]float64)
			if !ok {
				return nil, specError("constraint row %d is %T, want []float64", i, v)
			}
			rows[i] = row
		}
		return denseFromRows(rows)
	}
	row := make([]float64, len(xs))
	for i, v := range xs {
		f, ok := toFloat(v)
		if !ok {
			return nil, specError("constraint coefficient %d is %T, want a number", i, v)
		}
		row[i] = f
	}
	return mat.NewDense(1, len(row), row), nil
}

func denseFromRows(rows [][]float64) (*mat.Dense, error) {
	if len(rows) == 0 || len(rows[0]) == 0 {
		return nil, specError("constraints must be non-empty")
	}
	n := len(rows[0])
	data := make([]float64, 0, len(rows)*n)
	for i, r := range rows {
		if len(r) != n {
			return nil, specError("constraint row %d has %d coefficients, want %d", i, len(r), n)
		}
		data = append(data, r...)
	}
	return mat.NewDense(len(rows), n, data), nil
}

// squeezePair flattens the right-hand side of a pair to one dimension.
func squeezePair(p ConstraintPair) (ConstraintPair, error) {
	if p.Coefs == nil {
		return ConstraintPair{}, specError("constraint pair has no coefficient matrix")
	}
	var vals []float64
	switch v := p.Values.(type) {
	case nil:
	case float64:
		vals = []float64{v}
	case []float64:
		vals = append([]float64(nil), v...)
	case mat.Vector:
		vals = make([]float64, v.Len())
		for i := range vals {
			vals[i] = v.AtVec(i)
		}
	case mat.Matrix:
		r, c := v.Dims()
		if r != 1 && c != 1 {
			return ConstraintPair{}, specError("constraint values must be vector-like, got a %d×%d matrix", r, c)
		}
		vals = make([]float64, 0, r*c)
		for i := 0; i < r; i++ {
			for j := 0; j < c; j++ {
				vals = append(vals, v.At(i, j))
			}
		}
	default:
		return ConstraintPair{}, typeError("unsupported constraint values type %T", p.Values)
	}

	out := ConstraintPair{Coefs: mat.DenseCopyOf(p.Coefs)}
	if len(vals) > 0 {
		out.Values = mat.NewVecDense(len(vals), vals)
	}
	return out, nil
}

func toFloat(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

// canonical converts a backend constraint system to the canonical triple
// and checks its shape.
func canonical(cs *ConstraintSystem, names []string) (*LinearConstraints, error) {
	if cs == nil || cs.Matrix == nil {
		return nil, specError("backend returned no constraint matrix")
	}
	k, n := cs.Matrix.Dims()

	var values *mat.Dense
	switch {
	case cs.Constants != nil:
		values = mat.DenseCopyOf(cs.Constants)
	case cs.Values != nil:
		values = mat.NewDense(len(cs.Values), 1, append([]float64(nil), cs.Values...))
	default:
		values = mat.NewDense(k, 1, nil)
	}

	vnames := cs.VariableNames
	if vnames == nil {
		vnames = names
	}
	if vr, vc := values.Dims(); vr != k || vc != 1 || n != len(vnames) {
		return nil, specError("constraint matrix is %d×%d with %d values and %d variable names", k, n, vr*vc, len(vnames))
	}
	return &LinearConstraints{
		ConstraintMatrix: mat.DenseCopyOf(cs.Matrix),
		ConstraintValues: values,
		VariableNames:    append([]string(nil), vnames...),
	}, nil
}
