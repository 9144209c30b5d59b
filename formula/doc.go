// Package formula is an engine-neutral layer over formula backends. A
// formula such as "y ~ x1 + C(g)" is turned into response and design
// matrices by one of two dialects, patsy or formulaic, which plug in by
// registering a Backend from their package's init function:
//
//	import (
//		"github.com/adgarrio/statformula/formula"
//		_ "github.com/adgarrio/statformula/backend/formulaic"
//	)
//
//	m, err := formula.NewManager(formula.EngineFormulaic)
//	if err != nil {
//		return err
//	}
//	y, X, err := m.GetArrays("y ~ x1 + x2", data)
//
// The Manager also answers questions about the resulting specs (column
// names, term slices, intercepts), builds linear constraint systems in a
// single canonical form and returns the engine's missing-value policy.
//
// When no engine is named, the default comes from the SM_DEFAULT_FORMULA_ENGINE
// environment variable, else patsy when installed, else formulaic.
package formula
