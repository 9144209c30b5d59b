package formula

import (
	"errors"
	"io"
	"log/slog"
	"math"
	"testing"

	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/frame"
)

// recordingBackend remembers the requests it receives.
type recordingBackend struct {
	Backend // unimplemented methods panic

	last        *BuildRequest
	constraints any
	system      *ConstraintSystem
}

type fakeSpec struct{ engine Engine }

func (s fakeSpec) Engine() Engine { return s.engine }

func (b *recordingBackend) Build(req *BuildRequest) (lhs, rhs *Matrix, err error) {
	b.last = req
	X := mat.NewDense(req.Data.Len(), 1, nil)
	return nil, &Matrix{Dense: X, Columns: []string{"x"}, RowIndex: req.Data.Index, Spec: fakeSpec{EnginePatsy}}, nil
}

func (b *recordingBackend) LinearConstraints(c any, names []string) (*ConstraintSystem, error) {
	b.constraints = c
	return b.system, nil
}

func newTestManager(engine Engine, b Backend) *Manager {
	return &Manager{
		engine:   engine,
		ordering: OrderNone,
		backend:  b,
		logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func oneColumn() *frame.Frame {
	return frame.MustNew(frame.NumericColumn("x", []float64{1, 2, 3}))
}

func TestGetArrays_ForwardsEvalEnvDepth(t *testing.T) {
	b := &recordingBackend{}
	m := newTestManager(EnginePatsy, b)

	_, _, err := m.GetArrays("x", oneColumn())
	require.NoError(t, err)
	require.Equal(t, 1, b.last.Env)

	_, _, err = m.GetArrays("x", oneColumn(), WithEvalEnv(2))
	require.NoError(t, err)
	require.Equal(t, 3, b.last.Env)

	vars := map[string]any{"z": 1.0}
	_, _, err = m.GetArrays("x", oneColumn(), WithEvalEnv(vars))
	require.NoError(t, err)
	require.Equal(t, vars, b.last.Env)
}

type stackedEnv []map[string]any

func (s stackedEnv) Namespaces() []map[string]any { return s }

func TestGetArrays_FlattensNamespacesForFormulaic(t *testing.T) {
	b := &recordingBackend{}
	m := newTestManager(EngineFormulaic, b)

	env := stackedEnv{{"a": 1.0}, {"b": 2.0}}
	_, _, err := m.GetArrays("x", oneColumn(), WithEvalEnv(env))
	require.NoError(t, err)
	require.Equal(t, map[string]any{"a": 1.0, "b": 2.0}, b.last.Env)

	p := newTestManager(EnginePatsy, b)
	_, _, err = p.GetArrays("x", oneColumn(), WithEvalEnv(env))
	require.NoError(t, err)
	require.Equal(t, env, b.last.Env)
}

func TestGetArrays_RejectsBadInputs(t *testing.T) {
	m := newTestManager(EnginePatsy, &recordingBackend{})

	_, _, err := m.GetArrays("x", oneColumn(), WithEvalEnv("globals"))
	require.ErrorIs(t, err, ErrType)
	require.Contains(t, err.Error(), "must be an int or a map")

	_, _, err = m.GetArrays("x", []float64{1, 2})
	require.ErrorIs(t, err, ErrType)
}

func TestGetArrays_MapDataAndLabels(t *testing.T) {
	b := &recordingBackend{}
	m := newTestManager(EnginePatsy, b)

	_, rhs, err := m.GetArrays("x", map[string]any{"x": []float64{1, 2}})
	require.NoError(t, err)
	require.Equal(t, 2, b.last.Data.Len())
	require.Equal(t, []string{"x"}, rhs.Columns)
	require.Equal(t, rhs.Spec, m.Spec())

	_, rhs, err = m.GetArrays("x", oneColumn(), WithLabels(false))
	require.NoError(t, err)
	require.Nil(t, rhs.Columns)
	require.Nil(t, rhs.RowIndex)
	require.NotNil(t, rhs.Spec)
}

func TestGetLinearConstraints_Normalization(t *testing.T) {
	system := &ConstraintSystem{Matrix: mat.NewDense(2, 2, []float64{1, 0, 0, 1}), Values: []float64{1, 2}}

	t.Run("formulaic joins string lists", func(t *testing.T) {
		b := &recordingBackend{system: system}
		m := newTestManager(EngineFormulaic, b)
		lc, err := m.GetLinearConstraints([]string{"a = 1", "b = 2"}, []string{"a", "b"})
		require.NoError(t, err)
		require.Equal(t, "a = 1, b = 2", b.constraints)
		require.Equal(t, []float64{1, 2}, mat.Col(nil, 0, lc.ConstraintValues))
		r, c := lc.ConstraintValues.Dims()
		require.Equal(t, [2]int{2, 1}, [2]int{r, c})
	})

	t.Run("patsy keeps string lists", func(t *testing.T) {
		b := &recordingBackend{system: system}
		m := newTestManager(EnginePatsy, b)
		_, err := m.GetLinearConstraints([]any{"a = 1", "b = 2"}, []string{"a", "b"})
		require.NoError(t, err)
		require.Equal(t, []string{"a = 1", "b = 2"}, b.constraints)
	})

	t.Run("pair values are squeezed", func(t *testing.T) {
		b := &recordingBackend{system: system}
		m := newTestManager(EnginePatsy, b)
		pair := ConstraintPair{Coefs: mat.NewDense(2, 2, []float64{1, 0, 0, 1}), Values: mat.NewDense(2, 1, []float64{1, 2})}
		_, err := m.GetLinearConstraints(pair, []string{"a", "b"})
		require.NoError(t, err)
		got := b.constraints.(ConstraintPair)
		require.Equal(t, 2, got.Values.(*mat.VecDense).Len())
	})

	t.Run("empty and mixed lists", func(t *testing.T) {
		m := newTestManager(EnginePatsy, &recordingBackend{system: system})
		_, err := m.GetLinearConstraints([]string{}, []string{"a"})
		require.ErrorIs(t, err, ErrSpecification)
		_, err = m.GetLinearConstraints([]any{}, []string{"a"})
		require.ErrorIs(t, err, ErrSpecification)
		_, err = m.GetLinearConstraints([]any{"a = 1", 2.0}, []string{"a"})
		require.ErrorIs(t, err, ErrSpecification)
		_, err = m.GetLinearConstraints(42, []string{"a"})
		require.ErrorIs(t, err, ErrType)
	})

	t.Run("bad shape from backend", func(t *testing.T) {
		bad := &ConstraintSystem{Matrix: mat.NewDense(1, 2, nil), Values: []float64{1, 2}}
		m := newTestManager(EnginePatsy, &recordingBackend{system: bad})
		_, err := m.GetLinearConstraints("a = 1", []string{"a", "b"})
		require.ErrorIs(t, err, ErrSpecification)
	})
}

func TestNAAction_DropUnionsMasks(t *testing.T) {
	a, err := NewNAAction(NADrop, nil)
	require.NoError(t, err)
	require.Equal(t, DefaultNATypes, a.Types())

	out, err := a.Handle(
		[]any{[]float64{1, 2, 3}, []string{"a", "b", "c"}},
		[][]bool{{false, true, false}, {false, false, true}},
		[]string{"x", "g"},
	)
	require.NoError(t, err)
	require.Equal(t, []bool{false, true, true}, a.MissingMask)
	require.Equal(t, []float64{1}, out[0])
	require.Equal(t, []string{"a"}, out[1])
}

func TestNAAction_Raise(t *testing.T) {
	a, err := NewNAAction(NARaise, []string{NATypeNaN})
	require.NoError(t, err)
	_, err = a.Handle([]any{[]float64{1, 2}}, [][]bool{{false, true}}, []string{"x"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "x")

	out, err := a.Handle([]any{[]float64{1, 2}}, [][]bool{{false, false}}, []string{"x"})
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2}, out[0])
}

func TestNAAction_Predicates(t *testing.T) {
	none, err := NewNAAction(NADrop, []string{})
	require.NoError(t, err)
	require.False(t, none.IsNumericalNA(math.NaN(), true))

	both, err := NewNAAction(NADrop, nil)
	require.NoError(t, err)
	require.True(t, both.IsNumericalNA(math.NaN(), false))
	require.True(t, both.IsNumericalNA(0, true))
	require.True(t, both.IsCategoricalNA(false, true))
	require.False(t, both.IsCategoricalNA(false, false))

	_, err = NewNAAction("ignore", nil)
	require.ErrorIs(t, err, ErrConfig)
	_, err = NewNAAction(NADrop, []string{"inf"})
	require.ErrorIs(t, err, ErrConfig)
}

func TestSelectRows(t *testing.T) {
	keep := []bool{true, false, true}

	v, err := SelectRows(mat.NewVecDense(3, []float64{1, 2, 3}), keep)
	require.NoError(t, err)
	require.Equal(t, 2, v.(*mat.VecDense).Len())

	d, err := SelectRows(mat.NewDense(3, 2, []float64{1, 2, 3, 4, 5, 6}), keep)
	require.NoError(t, err)
	require.Equal(t, []float64{1, 2, 5, 6}, d.(*mat.Dense).RawMatrix().Data)

	_, err = SelectRows([]float64{1}, keep)
	require.Error(t, err)
	_, err = SelectRows(map[string]int{}, keep)
	require.Error(t, err)
}

func TestOptions(t *testing.T) {
	o := newOptions(EnginePatsy, []Engine{EnginePatsy, EngineFormulaic})
	require.Equal(t, OrderNone, o.Ordering())

	require.NoError(t, o.SetEngine(EngineFormulaic))
	require.Equal(t, EngineFormulaic, o.Engine())

	err := o.SetEngine("statsmodels")
	require.ErrorIs(t, err, ErrConfig)
	require.ErrorIs(t, err, ErrUnknownEngine)
	require.Contains(t, err.Error(), "patsy or formulaic")

	require.NoError(t, o.SetOrdering(OrderSort))
	require.Equal(t, OrderSort, o.Ordering())
	err = o.SetOrdering("random")
	require.ErrorIs(t, err, ErrConfig)
	require.Contains(t, err.Error(), "'degree', 'sort', or 'none'")

	empty := newOptions(EngineFormulaic, nil)
	require.ErrorIs(t, empty.SetEngine(EnginePatsy), ErrNotInstalled)
}

func TestJoinChoices(t *testing.T) {
	require.Equal(t, "", joinChoices(nil))
	require.Equal(t, "a", joinChoices([]string{"a"}))
	require.Equal(t, "a or b", joinChoices([]string{"a", "b"}))
	require.Equal(t, "a, b, or c", joinChoices([]string{"a", "b", "c"}))
}

func TestError(t *testing.T) {
	err := configError(ErrNotInstalled, []string{"patsy"}, "engine %s missing", "patsy")
	require.Equal(t, "config error: engine patsy missing", err.Error())
	require.True(t, errors.Is(err, ErrConfig))
	require.True(t, errors.Is(err, ErrNotInstalled))
	require.False(t, errors.Is(err, ErrType))

	var fe *Error
	require.True(t, errors.As(err, &fe))
	require.Equal(t, []string{"patsy"}, fe.Allowed)
}

func TestResolveEngine(t *testing.T) {
	o := newOptions(EnginePatsy, Installed())

	_, err := ResolveEngine("stata", o)
	require.ErrorIs(t, err, ErrUnknownEngine)

	registry.Lock()
	saved, had := registry.backends[EnginePatsy]
	delete(registry.backends, EnginePatsy)
	registry.Unlock()
	t.Cleanup(func() {
		registry.Lock()
		defer registry.Unlock()
		if had {
			registry.backends[EnginePatsy] = saved
		}
	})

	_, err = ResolveEngine("", o)
	require.ErrorIs(t, err, ErrNotInstalled)
	require.ErrorIs(t, err, ErrConfig)
	require.False(t, HavePatsy())
}

func TestRegister_Panics(t *testing.T) {
	require.Panics(t, func() { Register("stata", &recordingBackend{}) })
	require.Panics(t, func() { Register(EnginePatsy, nil) })
}

func TestLoadEnvConfig(t *testing.T) {
	t.Setenv("SM_DEFAULT_FORMULA_ENGINE", "formulaic")
	cfg, err := LoadEnvConfig()
	require.NoError(t, err)
	require.Equal(t, "formulaic", cfg.DefaultFormulaEngine)

	t.Setenv("SM_DEFAULT_FORMULA_ENGINE", "stata")
	_, err = LoadEnvConfig()
	require.ErrorIs(t, err, ErrUnknownEngine)
	require.Contains(t, err.Error(), "SM_DEFAULT_FORMULA_ENGINE")

	resetDefaults()
	t.Cleanup(resetDefaults)
	_, err = DefaultOptions()
	require.ErrorIs(t, err, ErrConfig)
}

func TestRemoveIntercept_DoesNotModifyInput(t *testing.T) {
	ts := []Term{fakeTerm("Intercept"), fakeTerm("x")}
	m := newTestManager(EnginePatsy, &interceptBackend{})
	out := m.RemoveIntercept(ts)
	require.Len(t, out, 1)
	require.Len(t, ts, 2)
	require.Equal(t, out, m.RemoveIntercept(out))
}

type fakeTerm string

func (t fakeTerm) String() string    { return string(t) }
func (t fakeTerm) Equal(o Term) bool { return o != nil && o.String() == string(t) }

type interceptBackend struct{ Backend }

func (b *interceptBackend) InterceptTerm() Term { return fakeTerm("Intercept") }
