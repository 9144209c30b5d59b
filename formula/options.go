package formula

import (
	"strings"
	"sync"
)

// Ordering controls how expanded terms are arranged in the design matrix.
type Ordering string

const (
	OrderDegree Ordering = "degree"
	OrderSort   Ordering = "sort"
	OrderNone   Ordering = "none"
)

var orderings = []Ordering{OrderDegree, OrderSort, OrderNone}

// Valid reports whether o is a legal ordering.
func (o Ordering) Valid() bool {
	for _, k := range orderings {
		if o == k {
			return true
		}
	}
	return false
}

// Options holds the engine selection and term ordering used by managers
// constructed without an explicit engine. It is safe for concurrent use.
type Options struct {
	mu       sync.RWMutex
	engine   Engine
	ordering Ordering
	allowed  []Engine
}

// NewOptions returns options selecting engine. An empty engine selects the
// process default. Only installed engines may be assigned later through
// SetEngine.
func NewOptions(engine Engine) (*Options, error) {
	if engine == "" {
		d, err := defaultEngine()
		if err != nil {
			return nil, err
		}
		engine = d
	}
	return newOptions(engine, Installed()), nil
}

func newOptions(engine Engine, allowed []Engine) *Options {
	return &Options{engine: engine, ordering: OrderNone, allowed: allowed}
}

// Engine returns the selected engine.
func (o *Options) Engine() Engine {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine
}

// SetEngine selects an engine. It must be one of the installed engines.
func (o *Options) SetEngine(e Engine) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for _, a := range o.allowed {
		if a == e {
			o.engine = e
			return nil
		}
	}
	allowed := engineStrings(o.allowed)
	if len(allowed) == 0 {
		return configError(ErrNotInstalled, nil, "invalid formula engine option %q: no formula engine is installed", e)
	}
	return configError(ErrUnknownEngine, allowed, "invalid formula engine option %q: must be %s", e, joinChoices(allowed))
}

// Ordering returns the term ordering.
func (o *Options) Ordering() Ordering {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.ordering
}

// SetOrdering sets the term ordering to degree, sort or none.
func (o *Options) SetOrdering(v Ordering) error {
	if !v.Valid() {
		allowed := make([]string, len(orderings))
		for i, k := range orderings {
			allowed[i] = "'" + string(k) + "'"
		}
		return configError(nil, allowed, "invalid ordering option %q: must be %s", v, joinChoices(allowed))
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ordering = v
	return nil
}

func (o *Options) snapshot() (Engine, Ordering) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.engine, o.ordering
}

// joinChoices renders a list of alternatives as "a", "a or b" or
// "a, b, or c".
func joinChoices(items []string) string {
	switch len(items) {
	case 0:
		return ""
	case 1:
		return items[0]
	case 2:
		return items[0] + " or " + items[1]
	}
	return strings.Join(items[:len(items)-1], ", ") + ", or " + items[len(items)-1]
}
