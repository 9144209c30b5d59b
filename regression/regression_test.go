package regression

import (
	"bytes"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	_ "github.com/adgarrio/statformula/backend/formulaic"
	_ "github.com/adgarrio/statformula/backend/patsy"
	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/frame"
)

var engines = []formula.Engine{formula.EnginePatsy, formula.EngineFormulaic}

func manager(t *testing.T, e formula.Engine) *formula.Manager {
	t.Helper()
	o, err := formula.NewOptions(e)
	require.NoError(t, err)
	m, err := formula.NewManager(e, formula.WithOptions(o))
	require.NoError(t, err)
	return m
}

// noisyFrame draws y = 1 + 2 x1 - x2 + e with a fixed seed, plus a
// three-level group g without effect.
func noisyFrame(n int) *frame.Frame {
	rng := rand.New(rand.NewPCG(7, 11))
	y := make([]float64, n)
	x1 := make([]float64, n)
	x2 := make([]float64, n)
	g := make([]string, n)
	for i := range y {
		x1[i] = rng.NormFloat64()
		x2[i] = rng.NormFloat64()
		g[i] = []string{"ctl", "trt", "alt"}[i%3]
		y[i] = 1 + 2*x1[i] - x2[i] + 0.5*rng.NormFloat64()
	}
	return frame.MustNew(
		frame.NumericColumn("y", y),
		frame.NumericColumn("x1", x1),
		frame.NumericColumn("x2", x2),
		frame.StringColumn("g", g),
	)
}

func TestFit_ExactLinearRelation(t *testing.T) {
	x1 := []float64{1, 2, 3, 4, 5, 6}
	x2 := []float64{2, 1, 0, 1, 3, 5}
	y := make([]float64, len(x1))
	for i := range y {
		y[i] = 1 + 2*x1[i] - 3*x2[i]
	}
	data := map[string]any{"y": y, "x1": x1, "x2": x2}

	for _, e := range engines {
		t.Run(string(e), func(t *testing.T) {
			model, err := FromFormula(manager(t, e), "y ~ x1 + x2", data)
			require.NoError(t, err)
			require.Equal(t, []string{"Intercept", "x1", "x2"}, model.ExogNames())
			require.Equal(t, 6, model.NObs())

			res, err := model.Fit()
			require.NoError(t, err)
			require.Equal(t, 3, res.Rank)
			require.Equal(t, 3.0, res.DFResid)
			params := res.ParamsByName()
			require.InDelta(t, 1, params["Intercept"], 1e-9)
			require.InDelta(t, 2, params["x1"], 1e-9)
			require.InDelta(t, -3, params["x2"], 1e-9)
			require.InDelta(t, 0, res.SSR, 1e-12)
			require.InDelta(t, 1, res.R2, 1e-12)
		})
	}
}

func TestFit_SingularDesignFallsBackToSVD(t *testing.T) {
	data := noisyFrame(40)
	zeros := map[string]any{"z": make([]float64, 40)}

	for _, e := range engines {
		t.Run(string(e), func(t *testing.T) {
			m := manager(t, e)
			full, err := FromFormula(m, "y ~ x1 + z", data, WithEvalEnv(zeros))
			require.NoError(t, err)
			res, err := full.Fit()
			require.NoError(t, err)
			require.Equal(t, 2, res.Rank)
			require.Equal(t, 38.0, res.DFResid)
			require.InDelta(t, 0, res.Params.AtVec(2), 1e-12)

			reduced, err := FromFormula(m, "y ~ x1", data)
			require.NoError(t, err)
			ref, err := reduced.Fit()
			require.NoError(t, err)
			require.InDelta(t, ref.SSR, res.SSR, 1e-8)
			require.InDelta(t, ref.Params.AtVec(0), res.Params.AtVec(0), 1e-8)
			require.InDelta(t, ref.Params.AtVec(1), res.Params.AtVec(1), 1e-8)
		})
	}
}

func TestWaldTest(t *testing.T) {
	for _, e := range engines {
		t.Run(string(e), func(t *testing.T) {
			model, err := FromFormula(manager(t, e), "y ~ x1 + x2", noisyFrame(200))
			require.NoError(t, err)
			res, err := model.Fit()
			require.NoError(t, err)

			// a single restriction is the squared t statistic
			w, err := res.WaldTest("x1 = 0")
			require.NoError(t, err)
			tv := res.TValues()[1]
			require.InEpsilon(t, tv*tv, w.Statistic, 1e-9)
			require.InDelta(t, res.PValues()[1], w.PValue, 1e-9)
			require.Equal(t, 1.0, w.DFNum)
			require.Equal(t, 197.0, w.DFDenom)

			w, err = res.WaldTest([]string{"x1 = 0", "x2 = 0"})
			require.NoError(t, err)
			require.Equal(t, 2.0, w.DFNum)
			require.Less(t, w.PValue, 1e-10)
			require.Contains(t, w.String(), "df_num=2")

			_, err = res.WaldTest("x3 = 0")
			require.Error(t, err)
		})
	}
}

func TestWaldTestTerms(t *testing.T) {
	for _, e := range engines {
		t.Run(string(e), func(t *testing.T) {
			model, err := FromFormula(manager(t, e), "y ~ x1 + g", noisyFrame(90))
			require.NoError(t, err)
			res, err := model.Fit()
			require.NoError(t, err)

			tests, err := res.WaldTestTerms(true)
			require.NoError(t, err)
			require.Len(t, tests, 2)
			require.Equal(t, "x1", tests[0].Term)
			require.Equal(t, 1.0, tests[0].Result.DFNum)
			require.Equal(t, "g", tests[1].Term)
			require.Equal(t, 2.0, tests[1].Result.DFNum)

			joint, err := res.WaldTest([]string{"g[T.ctl] = 0", "g[T.trt] = 0"})
			require.NoError(t, err)
			require.InEpsilon(t, joint.Statistic, tests[1].Result.Statistic, 1e-9)

			all, err := res.WaldTestTerms(false)
			require.NoError(t, err)
			require.Len(t, all, 3)
		})
	}
}

func TestPredict(t *testing.T) {
	train := map[string]any{
		"y": []float64{1, 3, 5, 7, 10},
		"x": []float64{0, 1, 2, 3, 4},
		"g": []string{"a", "a", "a", "a", "b"},
	}
	for _, e := range engines {
		t.Run(string(e), func(t *testing.T) {
			model, err := FromFormula(manager(t, e), "y ~ x + g", train)
			require.NoError(t, err)
			res, err := model.Fit()
			require.NoError(t, err)

			pred, err := res.Predict(map[string]any{"x": []float64{5, 5}, "g": []string{"a", "b"}})
			require.NoError(t, err)
			require.InDelta(t, 11, pred.Values.AtVec(0), 1e-9)
			require.InDelta(t, 12, pred.Values.AtVec(1), 1e-9)
			require.Equal(t, []int{0, 1}, pred.RowIndex)

			pred, err = res.Predict(map[string]any{"x": []float64{math.NaN(), 5, 6}, "g": []string{"a", "a", "b"}})
			require.NoError(t, err)
			require.Equal(t, 2, pred.Values.Len())
			require.Equal(t, []int{1, 2}, pred.RowIndex)
			require.InDelta(t, 11, pred.Values.AtVec(0), 1e-9)
			require.InDelta(t, 14, pred.Values.AtVec(1), 1e-9)

			_, err = model.Predict(mat.NewVecDense(1, []float64{1}), map[string]any{"x": []float64{1}, "g": []string{"a"}})
			require.Error(t, err)
		})
	}
}

func TestFromFormula_Errors(t *testing.T) {
	_, err := FromFormula(nil, "y ~ x1", noisyFrame(5))
	require.Error(t, err)

	m := manager(t, formula.EngineFormulaic)
	_, err = FromFormula(m, "~ x1", noisyFrame(5))
	require.ErrorContains(t, err, "no response variable")

	_, err = FromFormula(m, "y ~ nothere", noisyFrame(5))
	require.ErrorContains(t, err, "nothere")
}

func TestFromFormula_NAAction(t *testing.T) {
	data := map[string]any{
		"y": []float64{1, 2, 3, 4, 5},
		"x": []float64{1, math.NaN(), 2, 4, 3},
	}
	m := manager(t, formula.EnginePatsy)

	model, err := FromFormula(m, "y ~ x", data)
	require.NoError(t, err)
	require.Equal(t, 4, model.NObs())

	raise, err := m.GetNAAction(formula.NARaise, nil)
	require.NoError(t, err)
	_, err = FromFormula(m, "y ~ x", data, WithNAAction(raise))
	require.Error(t, err)
}

func TestSummary(t *testing.T) {
	model, err := FromFormula(manager(t, formula.EnginePatsy), "y ~ x1 + x2", noisyFrame(30))
	require.NoError(t, err)
	res, err := model.Fit()
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, res.Summary(&buf))
	out := buf.String()
	require.Contains(t, out, "=== OLS: y ~ x1 + x2 ===")
	require.Contains(t, out, "engine: patsy")
	require.Contains(t, out, "design: 1 + x1 + x2")
	require.Contains(t, out, "Intercept")
	require.Contains(t, out, "Parameter covariance")

	for _, p := range res.PValues() {
		require.GreaterOrEqual(t, p, 0.0)
		require.LessOrEqual(t, p, 1.0)
	}
	r, c := res.Cov().Dims()
	require.Equal(t, [2]int{3, 3}, [2]int{r, c})
}
