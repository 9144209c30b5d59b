package formula

import (
	"fmt"
	"log/slog"

	"github.com/adgarrio/statformula/frame"
	"github.com/adgarrio/statformula/internal/options"
)

// Manager gives one interface to both formula engines. The engine is chosen
// once, at construction; every operation dispatches to that engine's
// backend.
//
// A Manager remembers the spec of the most recent GetArrays call and is not
// safe for concurrent use.
type Manager struct {
	engine   Engine
	ordering Ordering
	backend  Backend
	spec     Spec
	logger   *slog.Logger
}

type managerConfig struct {
	options *Options
	logger  *slog.Logger
}

// ManagerOption configures a Manager.
type ManagerOption = options.Option[*managerConfig]

// WithOptions makes the manager read its default engine and ordering from o
// instead of the process-wide options.
func WithOptions(o *Options) ManagerOption {
	return options.New(func(c *managerConfig) error {
		if o == nil {
			return configError(nil, nil, "options must not be nil")
		}
		c.options = o
		return nil
	})
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) ManagerOption {
	return options.NoError(func(c *managerConfig) {
		c.logger = l
	})
}

// NewManager returns a manager for engine. An empty engine selects the
// engine of the configured options.
func NewManager(engine Engine, opts ...ManagerOption) (*Manager, error) {
	cfg := &managerConfig{}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.options == nil {
		o, err := DefaultOptions()
		if err != nil {
			return nil, err
		}
		cfg.options = o
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	resolved, err := ResolveEngine(engine, cfg.options)
	if err != nil {
		return nil, err
	}
	b, _ := lookupBackend(resolved)

	_, ordering := cfg.options.snapshot()
	cfg.logger.Debug("formula manager ready", "engine", resolved, "ordering", ordering)

	return &Manager{
		engine:   resolved,
		ordering: ordering,
		backend:  b,
		logger:   cfg.logger,
	}, nil
}

// ResolveEngine returns engine when it is set and the engine selected in o
// otherwise. It fails when the result is not a recognized engine or is not
// installed.
func ResolveEngine(engine Engine, o *Options) (Engine, error) {
	e := engine
	if e == "" {
		if o == nil {
			return "", configError(nil, nil, "no engine given and no options to choose one")
		}
		e = o.Engine()
	}
	if !e.Valid() {
		return "", configError(ErrUnknownEngine, engineStrings(engines),
			"unknown engine %q: only %s are supported", e, joinChoices(engineStrings(engines)))
	}
	if _, ok := lookupBackend(e); !ok {
		return "", configError(ErrNotInstalled, engineStrings(Installed()),
			"%s is not available: the %s backend is not installed (import github.com/adgarrio/statformula/backend/%s)", e, e, e)
	}
	return e, nil
}

// Engine returns the engine in use.
func (m *Manager) Engine() Engine { return m.engine }

// Ordering returns the term ordering captured at construction.
func (m *Manager) Ordering() Ordering { return m.ordering }

// Spec returns the spec of the last GetArrays call, or nil.
func (m *Manager) Spec() Spec { return m.spec }

// Backend returns the engine's backend.
func (m *Manager) Backend() Backend { return m.backend }

type arraysConfig struct {
	env      any
	labels   bool
	naAction any
}

// ArraysOption configures GetArrays.
type ArraysOption = options.Option[*arraysConfig]

// WithEvalEnv sets the evaluation environment: an integer scope depth
// relative to the caller, a map of names to values, or a Namespacer. The
// default is depth 0.
func WithEvalEnv(env any) ArraysOption {
	return options.NoError(func(c *arraysConfig) {
		c.env = env
	})
}

// WithLabels controls whether returned matrices carry column labels and
// row indices. The default is true.
func WithLabels(labels bool) ArraysOption {
	return options.NoError(func(c *arraysConfig) {
		c.labels = labels
	})
}

// WithNAAction sets the missing-value policy, as returned by GetNAAction.
func WithNAAction(na any) ArraysOption {
	return options.NoError(func(c *arraysConfig) {
		c.naAction = na
	})
}

// GetArrays builds the design matrix, and the response matrix when the
// formula has a left-hand side. formula is a string, a parsed formula, or a
// spec or matrix from an earlier call; data is a *frame.Frame or a map of column
// names to values. lhs is nil for right-hand-side-only formulas.
func (m *Manager) GetArrays(formula any, data any, opts ...ArraysOption) (lhs, rhs *Matrix, err error) {
	cfg := &arraysConfig{env: 0, labels: true}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, nil, err
	}

	env, err := m.evalEnv(cfg.env)
	if err != nil {
		return nil, nil, err
	}
	fr, err := toFrame(data)
	if err != nil {
		return nil, nil, err
	}

	m.logger.Debug("building design matrices",
		"engine", m.engine, "formula", describeFormula(formula), "rows", fr.Len(), "env", fmt.Sprintf("%T", env))

	if mx, ok := formula.(*Matrix); ok && mx != nil {
		if mx.Spec == nil {
			return nil, nil, typeError("matrix carries no model spec to rebuild from")
		}
		formula = mx.Spec
	}

	lhs, rhs, err = m.backend.Build(&BuildRequest{
		Formula:  formula,
		Data:     fr,
		Env:      env,
		NAAction: cfg.naAction,
		Ordering: m.ordering,
	})
	if err != nil {
		return nil, nil, err
	}
	m.spec = rhs.Spec

	if !cfg.labels {
		if lhs != nil {
			lhs = lhs.plain()
		}
		rhs = rhs.plain()
	}
	return lhs, rhs, nil
}

// evalEnv validates the evaluation environment and accounts for the
// manager's own frame in integer depths.
func (m *Manager) evalEnv(env any) (any, error) {
	switch e := env.(type) {
	case int:
		return e + 1, nil
	case int32:
		return int(e) + 1, nil
	case int64:
		return int(e) + 1, nil
	case map[string]any:
		return e, nil
	case Namespacer:
		if m.engine == EngineFormulaic {
			flat := make(map[string]any)
			for _, ns := range e.Namespaces() {
				for k, v := range ns {
					flat[k] = v
				}
			}
			return flat, nil
		}
		return e, nil
	}
	return nil, typeError("context (eval env) must be an int or a map, got %T", env)
}

func toFrame(data any) (*frame.Frame, error) {
	switch d := data.(type) {
	case *frame.Frame:
		if d == nil {
			return nil, typeError("data must not be nil")
		}
		return d, nil
	case map[string]any:
		return frame.FromMap(d)
	}
	return nil, typeError("data must be a *frame.Frame or a map[string]any, got %T", data)
}

func describeFormula(f any) string {
	if s, ok := f.(string); ok {
		return s
	}
	return fmt.Sprintf("%T", f)
}

// GetLinearConstraints builds the constraint system for constraints over
// variableNames. constraints may be an equation string, a list of equation
// strings, a list or matrix of coefficients, a ConstraintPair or a map from
// variable name to value. Columns of the result follow variableNames.
func (m *Manager) GetLinearConstraints(constraints any, variableNames []string) (*LinearConstraints, error) {
	norm, err := normalizeConstraints(constraints, m.engine == EngineFormulaic)
	if err != nil {
		return nil, err
	}
	names := append([]string(nil), variableNames...)
	cs, err := m.backend.LinearConstraints(norm, names)
	if err != nil {
		return nil, err
	}
	return canonical(cs, names)
}

// GetEmptyEvalEnv returns an engine-specific environment with no variables.
func (m *Manager) GetEmptyEvalEnv() any { return m.backend.EmptyEnv() }

// GetNAAction returns the engine's NA policy. action defaults to "drop" and
// a nil types slice to DefaultNATypes. The formulaic dialect ignores types.
func (m *Manager) GetNAAction(action string, types []string) (any, error) {
	if action == "" {
		action = NADrop
	}
	if types == nil {
		types = DefaultNATypes
	}
	return m.backend.NAAction(action, types)
}

// GetSpec parses formula without evaluating it.
func (m *Manager) GetSpec(formula string) (Parsed, error) {
	return m.backend.Parse(formula, m.ordering)
}

// IsSpec reports whether v is a spec of this manager's engine.
func (m *Manager) IsSpec(v any) bool {
	s, ok := v.(Spec)
	return ok && s != nil && s.Engine() == m.engine
}

// GetModelSpec returns the spec carried by a matrix. With optional set a
// value without a spec yields nil instead of an error.
func (m *Manager) GetModelSpec(v any, optional bool) (Spec, error) {
	var spec Spec
	if mx, ok := v.(*Matrix); ok && mx != nil {
		spec = mx.Spec
	} else if s, ok := m.backend.SpecOf(v); ok {
		spec = s
	}
	if spec == nil {
		if optional {
			return nil, nil
		}
		return nil, typeError("%T does not carry a model spec", v)
	}
	if spec.Engine() != m.engine {
		return nil, configError(nil, nil, "spec was built by %s but the manager uses %s", spec.Engine(), m.engine)
	}
	return spec, nil
}

func (m *Manager) resolveSpec(v any) (Spec, error) {
	if m.IsSpec(v) {
		return v.(Spec), nil
	}
	return m.GetModelSpec(v, false)
}

// GetColumnNames returns the names of a spec or of the columns of a matrix.
// For a patsy spec these are its term names.
func (m *Manager) GetColumnNames(specOrMatrix any) ([]string, error) {
	if m.IsSpec(specOrMatrix) {
		return m.backend.Labels(specOrMatrix.(Spec)), nil
	}
	spec, err := m.GetModelSpec(specOrMatrix, false)
	if err != nil {
		return nil, err
	}
	return m.backend.ColumnNames(spec), nil
}

// GetTermNameSlices returns the columns occupied by each term, in column
// order.
func (m *Manager) GetTermNameSlices(specOrMatrix any) ([]TermSlice, error) {
	spec, err := m.resolveSpec(specOrMatrix)
	if err != nil {
		return nil, err
	}
	return m.backend.TermSlices(spec), nil
}

// GetSlice returns the columns of one term. term is a Term or a term name.
func (m *Manager) GetSlice(specOrMatrix any, term any) (start, stop int, err error) {
	spec, err := m.resolveSpec(specOrMatrix)
	if err != nil {
		return 0, 0, err
	}
	switch t := term.(type) {
	case Term:
		return m.backend.Slice(spec, t)
	case string:
		for _, s := range m.backend.TermSlices(spec) {
			if s.Name == t {
				return s.Start, s.Stop, nil
			}
		}
		return 0, 0, specError("no term named %q", t)
	}
	return 0, 0, typeError("term must be a Term or a string, got %T", term)
}

// Terms returns the terms of a spec in column order.
func (m *Manager) Terms(specOrMatrix any) ([]Term, error) {
	spec, err := m.resolveSpec(specOrMatrix)
	if err != nil {
		return nil, err
	}
	return m.backend.Terms(spec), nil
}

// InterceptTerm returns the engine's intercept term.
func (m *Manager) InterceptTerm() Term { return m.backend.InterceptTerm() }

// GetTermName returns the engine's name for a term.
func (m *Manager) GetTermName(t Term) string { return m.backend.TermName(t) }

// HasIntercept reports whether the spec includes the intercept term.
func (m *Manager) HasIntercept(specOrMatrix any) (bool, error) {
	ts, err := m.Terms(specOrMatrix)
	if err != nil {
		return false, err
	}
	return indexOfTerm(ts, m.InterceptTerm()) >= 0, nil
}

// InterceptIdx marks the intercept among the spec's terms.
func (m *Manager) InterceptIdx(specOrMatrix any) ([]bool, error) {
	ts, err := m.Terms(specOrMatrix)
	if err != nil {
		return nil, err
	}
	icept := m.InterceptTerm()
	idx := make([]bool, len(ts))
	for i, t := range ts {
		idx[i] = icept.Equal(t)
	}
	return idx, nil
}

// RemoveIntercept returns ts without the intercept term. ts is not modified.
func (m *Manager) RemoveIntercept(ts []Term) []Term {
	out := append([]Term(nil), ts...)
	if i := indexOfTerm(out, m.InterceptTerm()); i >= 0 {
		out = append(out[:i], out[i+1:]...)
	}
	return out
}

// GetDescription renders the spec as a formula.
func (m *Manager) GetDescription(specOrMatrix any) (string, error) {
	spec, err := m.resolveSpec(specOrMatrix)
	if err != nil {
		return "", err
	}
	return m.backend.Describe(spec), nil
}

func indexOfTerm(ts []Term, t Term) int {
	for i, x := range ts {
		if t.Equal(x) {
			return i
		}
	}
	return -1
}
