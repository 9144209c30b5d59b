package patsy

import (
	"fmt"
	"runtime"
)

// EvalEnvironment resolves names that are not data columns. Namespaces are
// searched in order and the first match wins.
type EvalEnvironment struct {
	namespaces []map[string]any

	// Caller names the function whose scope was captured, if any.
	Caller string
}

// NewEvalEnvironment returns an environment over the given namespaces.
func NewEvalEnvironment(namespaces ...map[string]any) *EvalEnvironment {
	env := &EvalEnvironment{}
	for _, ns := range namespaces {
		if ns != nil {
			env.namespaces = append(env.namespaces, ns)
		}
	}
	return env
}

// Capture records the function depth frames above its caller. Go offers
// no access to a caller's local variables, so the returned environment has
// no namespaces; variables are supplied through maps instead.
func Capture(depth int) (*EvalEnvironment, error) {
	if depth < 0 {
		return nil, fmt.Errorf("eval env depth must be non-negative, got %d", depth)
	}
	env := &EvalEnvironment{}
	if pc, _, _, ok := runtime.Caller(depth + 1); ok {
		if fn := runtime.FuncForPC(pc); fn != nil {
			env.Caller = fn.Name()
		}
	}
	return env, nil
}

// Namespaces returns the namespaces in search order.
func (e *EvalEnvironment) Namespaces() []map[string]any { return e.namespaces }

// Lookup finds name in the first namespace that defines it.
func (e *EvalEnvironment) Lookup(name string) (any, bool) {
	for _, ns := range e.namespaces {
		if v, ok := ns[name]; ok {
			return v, true
		}
	}
	return nil, false
}

// With returns a new environment searching ns before e's namespaces.
func (e *EvalEnvironment) With(ns map[string]any) *EvalEnvironment {
	out := &EvalEnvironment{Caller: e.Caller}
	out.namespaces = append([]map[string]any{ns}, e.namespaces...)
	return out
}
