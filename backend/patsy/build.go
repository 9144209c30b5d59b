package patsy

import (
	"fmt"

	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/frame"
	"github.com/adgarrio/statformula/internal/design"
)

// DesignMatrix is a materialized design matrix with the info needed to
// rebuild it on new data.
type DesignMatrix struct {
	*mat.Dense

	Info  *DesignInfo
	Index []int // labels of the rows kept after missing-value handling
}

// DMatrix builds the design matrix of a right-hand-side formula. formulaLike
// is a formula string, a *ModelDesc, a *DesignInfo or a *DesignMatrix from
// an earlier fit. A nil env has no variables and a nil na drops rows
// holding None or NaN.
func DMatrix(formulaLike any, data *frame.Frame, env *EvalEnvironment, na formula.NAHandler) (*DesignMatrix, error) {
	y, X, err := build(formulaLike, data, env, na)
	if err != nil {
		return nil, err
	}
	if y != nil {
		return nil, fmt.Errorf("encountered outcome variables for a model that does not expect them")
	}
	return X, nil
}

// DMatrices builds the outcome and design matrices of a two-sided formula.
func DMatrices(formulaLike any, data *frame.Frame, env *EvalEnvironment, na formula.NAHandler) (y, X *DesignMatrix, err error) {
	y, X, err = build(formulaLike, data, env, na)
	if err != nil {
		return nil, nil, err
	}
	if y == nil {
		return nil, nil, fmt.Errorf("model is missing required outcome variables")
	}
	return y, X, nil
}

func build(formulaLike any, data *frame.Frame, env *EvalEnvironment, na formula.NAHandler) (y, X *DesignMatrix, err error) {
	if env == nil {
		env = NewEvalEnvironment()
	}
	if na == nil {
		if na, err = newNAAction(formula.NADrop); err != nil {
			return nil, nil, err
		}
	}

	var desc *ModelDesc
	var known map[string]*design.FactorInfo
	switch f := formulaLike.(type) {
	case string:
		desc, err = ModelDescFromFormula(f)
		if err != nil {
			return nil, nil, err
		}
	case *ModelDesc:
		desc = f
	case *DesignMatrix:
		desc, known, err = fromInfo(f.Info)
	case *DesignInfo:
		desc, known, err = fromInfo(f)
	default:
		return nil, nil, fmt.Errorf("don't know how to build a design matrix from %T", formulaLike)
	}
	if err != nil {
		return nil, nil, err
	}
	if data == nil {
		return nil, nil, fmt.Errorf("no data given")
	}

	res, err := design.Run(&design.Request{
		LHS:    toInternal(desc.LHS),
		RHS:    toInternal(desc.RHS),
		Data:   data,
		Env:    env,
		Known:  known,
		Filter: naFilter(na, data.Len()),
		DDoF:   0,
	})
	if err != nil {
		return nil, nil, err
	}

	factors := res.Factors()
	X = &DesignMatrix{Dense: res.RHS, Info: newDesignInfo(desc.RHS, res.RHSPlan, factors), Index: res.Index}
	if res.LHS != nil {
		y = &DesignMatrix{Dense: res.LHS, Info: newDesignInfo(desc.LHS, res.LHSPlan, factors), Index: res.Index}
	}
	return y, X, nil
}

func fromInfo(info *DesignInfo) (*ModelDesc, map[string]*design.FactorInfo, error) {
	if info == nil {
		return nil, nil, fmt.Errorf("design info is nil")
	}
	if info.factors == nil {
		return nil, nil, fmt.Errorf("design info has no factor information to evaluate on new data")
	}
	return &ModelDesc{RHS: info.Terms()}, info.factors, nil
}

// naFilter passes every factor through the handler together with the row
// positions, whose survivors identify the kept rows.
func naFilter(h formula.NAHandler, n int) design.FilterFunc {
	return func(codes []string, values map[string]*design.Value) ([]bool, error) {
		types := h.Types()
		positions := make([]int, n)
		for i := range positions {
			positions[i] = i
		}
		arrays := []any{positions}
		masks := [][]bool{make([]bool, n)}
		origins := []string{"row index"}
		for _, c := range codes {
			v := values[c]
			arrays = append(arrays, v.Array())
			masks = append(masks, v.Mask(types))
			origins = append(origins, c)
		}

		out, err := h.Handle(arrays, masks, origins)
		if err != nil {
			return nil, err
		}
		if len(out) != len(arrays) {
			return nil, fmt.Errorf("missing-value handler returned %d arrays, want %d", len(out), len(arrays))
		}
		kept, ok := out[0].([]int)
		if !ok {
			return nil, fmt.Errorf("missing-value handler returned %T for the row index", out[0])
		}
		keep := make([]bool, n)
		for _, p := range kept {
			if p < 0 || p >= n {
				return nil, fmt.Errorf("missing-value handler returned row %d of %d", p, n)
			}
			keep[p] = true
		}
		for i, c := range codes {
			if err := values[c].Replace(out[i+1], keep); err != nil {
				return nil, err
			}
		}
		return keep, nil
	}
}
