package patsy

import (
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/frame"
)

func sample() *frame.Frame {
	return frame.MustNew(
		frame.NumericColumn("y", []float64{1, 2, 3, 4}),
		frame.NumericColumn("x", []float64{0.5, 1.5, 2.5, 3.5}),
		frame.StringColumn("g", []string{"a", "b", "a", "b"}),
	)
}

func TestDMatrices(t *testing.T) {
	y, X, err := DMatrices("y ~ x + g", sample(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"y"}, y.Info.ColumnNames())
	require.Equal(t, []string{"Intercept", "x", "g[T.b]"}, X.Info.ColumnNames())
	require.Equal(t, []string{"Intercept", "x", "g"}, X.Info.TermNames())
	require.Equal(t, []float64{0, 1, 0, 1}, mat.Col(nil, 2, X))
	require.Equal(t, []int{0, 1, 2, 3}, X.Index)

	_, _, err = DMatrices("~ x", sample(), nil, nil)
	require.ErrorContains(t, err, "missing required outcome variables")
}

func TestDMatrix(t *testing.T) {
	X, err := DMatrix("~ 0 + g", sample(), nil, nil)
	require.NoError(t, err)
	require.Equal(t, []string{"g[a]", "g[b]"}, X.Info.ColumnNames())

	_, err = DMatrix("y ~ x", sample(), nil, nil)
	require.ErrorContains(t, err, "outcome variables")

	_, err = DMatrix(42, sample(), nil, nil)
	require.Error(t, err)
}

func TestDMatrix_FromDesignInfo(t *testing.T) {
	X, err := DMatrix("~ g + x", sample(), nil, nil)
	require.NoError(t, err)

	fresh := frame.MustNew(
		frame.NumericColumn("x", []float64{9}),
		frame.StringColumn("g", []string{"b"}),
	)
	again, err := DMatrix(X, fresh, nil, nil)
	require.NoError(t, err)
	require.Equal(t, X.Info.ColumnNames(), again.Info.ColumnNames())
	require.Equal(t, []float64{1, 1, 9}, mat.Row(nil, 0, again))

	_, err = DMatrix(NewDesignInfo([]string{"x"}), fresh, nil, nil)
	require.ErrorContains(t, err, "no factor information")
}

func TestDMatrix_StandardizeUsesPopulationScale(t *testing.T) {
	X, err := DMatrix("~ standardize(x)", sample(), nil, nil)
	require.NoError(t, err)
	// x has mean 2 and population variance 1.25
	require.InDelta(t, -1.5/math.Sqrt(1.25), X.At(0, 1), 1e-12)
}

func TestDMatrix_EvalEnvironment(t *testing.T) {
	env := NewEvalEnvironment(map[string]any{"k": 2.0}, map[string]any{"k": 5.0, "z": []float64{1, 1, 2, 2}})
	X, err := DMatrix("~ I(x * k) + z", sample(), env, nil)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 3, 5, 7}, mat.Col(nil, 1, X))
	require.Equal(t, []float64{1, 1, 2, 2}, mat.Col(nil, 2, X))
}

type countingHandler struct {
	*formula.NAAction
	calls int
}

func (h *countingHandler) Handle(values []any, masks [][]bool, origins []string) ([]any, error) {
	h.calls++
	return h.NAAction.Handle(values, masks, origins)
}

func TestDMatrix_MissingValues(t *testing.T) {
	data := frame.MustNew(
		frame.NumericColumn("y", []float64{1, 2, 3}),
		frame.NumericColumn("x", []float64{1, math.NaN(), 3}),
		frame.StringColumn("g", []string{"a", "b", "c"}).WithNulls([]bool{false, false, true}),
	)

	y, X, err := DMatrices("y ~ x + g", data, nil, nil)
	require.NoError(t, err)
	require.Equal(t, []int{0}, X.Index)
	require.Equal(t, []int{0}, y.Index)

	raise, err := formula.NewNAAction(formula.NARaise, nil)
	require.NoError(t, err)
	_, _, err = DMatrices("y ~ x + g", data, nil, raise)
	require.ErrorContains(t, err, "factor x contains missing values")

	drop, err := formula.NewNAAction(formula.NADrop, nil)
	require.NoError(t, err)
	h := &countingHandler{NAAction: drop}
	_, X, err = DMatrices("y ~ x", data, nil, h)
	require.NoError(t, err)
	require.Equal(t, 1, h.calls)
	require.Equal(t, []int{0, 2}, X.Index)
	require.Equal(t, []bool{false, true, false}, drop.MissingMask)
}

func TestModelDesc(t *testing.T) {
	desc, err := ModelDescFromFormula("y ~ a:b + c")
	require.NoError(t, err)
	require.Equal(t, formula.EnginePatsy, desc.Engine())
	require.Equal(t, "y ~ c + a:b", desc.Describe())

	desc, err = ModelDescFromFormula("y ~ x - 1")
	require.NoError(t, err)
	require.Equal(t, "y ~ 0 + x", desc.String())

	desc, err = ModelDescFromFormula("~ 1")
	require.NoError(t, err)
	require.Equal(t, "~ 1", desc.Describe())

	_, err = ModelDescFromFormula("y ~ (x")
	require.Error(t, err)
}

func TestTerm(t *testing.T) {
	ab := Term{Factors: []EvalFactor{{"a"}, {"b"}}}
	ba := Term{Factors: []EvalFactor{{"b"}, {"a"}}}
	require.Equal(t, "a:b", ab.Name())
	require.True(t, ab.Equal(ba))
	require.True(t, ab.Equal(&ba))
	require.False(t, ab.Equal(Intercept))
	require.Equal(t, "Intercept", Intercept.Name())
}

func TestDesignInfo(t *testing.T) {
	_, X, err := DMatrices("y ~ x + g", sample(), nil, nil)
	require.NoError(t, err)
	info := X.Info

	start, stop, err := info.Slice("g")
	require.NoError(t, err)
	require.Equal(t, [2]int{2, 3}, [2]int{start, stop})
	start, stop, err = info.Slice(Intercept)
	require.NoError(t, err)
	require.Equal(t, [2]int{0, 1}, [2]int{start, stop})
	start, _, err = info.Slice("g[T.b]")
	require.NoError(t, err)
	require.Equal(t, 2, start)
	_, _, err = info.Slice(Term{Factors: []EvalFactor{{"q"}}})
	require.Error(t, err)

	require.Equal(t, "1 + x + g", info.Describe())

	plain := NewDesignInfo([]string{"a", "b"})
	require.Equal(t, []string{"a", "b"}, plain.TermNames())
	start, stop, err = plain.Slice("b")
	require.NoError(t, err)
	require.Equal(t, [2]int{1, 2}, [2]int{start, stop})
}

func TestLinearConstraint(t *testing.T) {
	names := []string{"Intercept", "x", "g[T.b]"}

	lc, err := NewLinearConstraint("x = 2 * g[T.b]", names)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1, -2}, mat.Row(nil, 0, lc.Coefs))
	r, c := lc.Constants.Dims()
	require.Equal(t, [2]int{1, 1}, [2]int{r, c})

	lc, err = NewLinearConstraint([]string{"x = 0", "Intercept = 1"}, names)
	require.NoError(t, err)
	require.Equal(t, []float64{0, 1}, mat.Col(nil, 0, lc.Constants))

	lc, err = NewLinearConstraint(mat.NewDense(1, 3, []float64{0, 1, 0}), names)
	require.NoError(t, err)
	require.Equal(t, 0.0, lc.Constants.At(0, 0))

	_, err = NewLinearConstraint(mat.NewDense(1, 2, nil), names)
	require.ErrorContains(t, err, "3 variables")

	pair := formula.ConstraintPair{Coefs: mat.NewDense(2, 3, nil), Values: []float64{1}}
	_, err = NewLinearConstraint(pair, names)
	require.ErrorContains(t, err, "shape mismatch")

	_, err = NewLinearConstraint(3.0, names)
	require.Error(t, err)

	info := NewDesignInfo(names)
	lc, err = info.LinearConstraint(map[string]float64{"x": 1})
	require.NoError(t, err)
	require.Equal(t, names, lc.VariableNames)
}

func TestCapture(t *testing.T) {
	env, err := Capture(0)
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(env.Caller, "TestCapture"), env.Caller)
	require.Empty(t, env.Namespaces())

	_, err = Capture(-1)
	require.Error(t, err)
}

func TestEvalEnvironment_Lookup(t *testing.T) {
	env := NewEvalEnvironment(map[string]any{"a": 1}, nil, map[string]any{"a": 2, "b": 3})
	require.Len(t, env.Namespaces(), 2)
	v, ok := env.Lookup("a")
	require.True(t, ok)
	require.Equal(t, 1, v)
	_, ok = env.Lookup("c")
	require.False(t, ok)

	inner := env.With(map[string]any{"b": 4})
	v, _ = inner.Lookup("b")
	require.Equal(t, 4, v)
	v, _ = env.Lookup("b")
	require.Equal(t, 3, v)
}

func TestBackend_EvalEnvTypes(t *testing.T) {
	b := backend{}
	req := &formula.BuildRequest{Formula: "~ x", Data: sample(), Env: "nope"}
	_, _, err := b.Build(req)
	require.Error(t, err)

	req.Env = 1
	req.NAAction = formula.NARaise
	_, rhs, err := b.Build(req)
	require.NoError(t, err)
	require.Same(t, rhs.Spec, mustSpec(t, b, rhs.Spec))

	req.NAAction = 3
	_, _, err = b.Build(req)
	require.Error(t, err)
}

func mustSpec(t *testing.T, b backend, v any) formula.Spec {
	t.Helper()
	s, ok := b.SpecOf(v)
	require.True(t, ok)
	return s
}
