// Package regression fits linear models specified by formulas. It is the
// consumer of the formula layer: design matrices, coefficient names, term
// slices and linear constraints all come from a formula.Manager, so a model
// works the same with either formula engine.
package regression

import (
	"fmt"
	"log/slog"

	"gonum.org/v1/gonum/mat"

	"github.com/adgarrio/statformula/formula"
	"github.com/adgarrio/statformula/internal/options"
)

// Model is a linear model y = X b + u built from a formula.
type Model struct {
	Formula string
	Endog   *formula.Matrix // n x 1 response
	Exog    *formula.Matrix // n x k design

	manager *formula.Manager
	logger  *slog.Logger
}

type config struct {
	env      any
	naAction any
	logger   *slog.Logger
}

// Option configures FromFormula.
type Option = options.Option[*config]

// WithEvalEnv sets the evaluation environment passed to the formula engine.
func WithEvalEnv(env any) Option {
	return options.NoError(func(c *config) { c.env = env })
}

// WithNAAction sets the missing-value policy, as returned by
// formula.Manager.GetNAAction.
func WithNAAction(na any) Option {
	return options.NoError(func(c *config) { c.naAction = na })
}

// WithLogger sets the logger used for debug output.
func WithLogger(l *slog.Logger) Option {
	return options.NoError(func(c *config) { c.logger = l })
}

// FromFormula builds a model from a two-sided formula such as "y ~ x1 + x2".
// data is a *frame.Frame or a map of column names to values.
func FromFormula(m *formula.Manager, f string, data any, opts ...Option) (*Model, error) {
	if m == nil {
		return nil, fmt.Errorf("formula manager not provided")
	}
	cfg := &config{env: 0}
	if err := options.Apply(cfg, opts...); err != nil {
		return nil, err
	}
	if cfg.logger == nil {
		cfg.logger = slog.Default()
	}

	arrOpts := []formula.ArraysOption{formula.WithEvalEnv(cfg.env)}
	if cfg.naAction != nil {
		arrOpts = append(arrOpts, formula.WithNAAction(cfg.naAction))
	}
	endog, exog, err := m.GetArrays(f, data, arrOpts...)
	if err != nil {
		return nil, fmt.Errorf("building design matrices for %q: %w", f, err)
	}
	if endog == nil {
		return nil, fmt.Errorf("formula %q has no response variable", f)
	}
	if _, c := endog.Dims(); c != 1 {
		return nil, fmt.Errorf("response of %q has %d columns, want 1", f, c)
	}

	n, k := exog.Dims()
	cfg.logger.Debug("model built", "formula", f, "engine", m.Engine(), "nobs", n, "regressors", k)

	return &Model{
		Formula: f,
		Endog:   endog,
		Exog:    exog,
		manager: m,
		logger:  cfg.logger,
	}, nil
}

// ExogNames returns the names of the regressors.
func (m *Model) ExogNames() []string {
	return append([]string(nil), m.Exog.Columns...)
}

// NObs returns the number of observations used.
func (m *Model) NObs() int {
	n, _ := m.Exog.Dims()
	return n
}

// Prediction holds fitted values for new data. Rows with missing values are
// dropped, so Values[i] belongs to row RowIndex[i] of the input.
type Prediction struct {
	Values   *mat.VecDense
	RowIndex []int
}

// Predict evaluates the model's design on new data and returns X b.
func (m *Model) Predict(params mat.Vector, data any) (*Prediction, error) {
	_, X, err := m.manager.GetArrays(m.Exog.Spec, data)
	if err != nil {
		return nil, fmt.Errorf("building design matrix for prediction: %w", err)
	}
	_, k := X.Dims()
	if params.Len() != k {
		return nil, fmt.Errorf("have %d parameters for %d regressors", params.Len(), k)
	}
	n, _ := X.Dims()
	out := mat.NewVecDense(n, nil)
	out.MulVec(X, params)
	return &Prediction{Values: out, RowIndex: X.RowIndex}, nil
}
