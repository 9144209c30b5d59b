package formula

import (
	"fmt"
	"sync"

	"github.com/kelseyhightower/envconfig"
)

// Engine names a formula backend.
type Engine string

const (
	EnginePatsy     Engine = "patsy"
	EngineFormulaic Engine = "formulaic"
)

// engines lists the recognized engines in order of preference.
var engines = []Engine{EnginePatsy, EngineFormulaic}

// Valid reports whether e is a recognized engine name.
func (e Engine) Valid() bool {
	for _, k := range engines {
		if e == k {
			return true
		}
	}
	return false
}

var registry = struct {
	sync.RWMutex
	backends map[Engine]Backend
}{backends: make(map[Engine]Backend)}

// Register makes a backend available under the given engine name. It is
// called from the init function of a backend package; importing that package
// installs the engine. Register panics if the name is not recognized, the
// backend is nil, or the engine is registered twice.
func Register(e Engine, b Backend) {
	registry.Lock()
	defer registry.Unlock()
	if !e.Valid() {
		panic(fmt.Sprintf("formula: Register of unknown engine %q", e))
	}
	if b == nil {
		panic("formula: Register backend is nil")
	}
	if _, dup := registry.backends[e]; dup {
		panic(fmt.Sprintf("formula: Register called twice for engine %q", e))
	}
	registry.backends[e] = b
}

func lookupBackend(e Engine) (Backend, bool) {
	registry.RLock()
	defer registry.RUnlock()
	b, ok := registry.backends[e]
	return b, ok
}

// Installed returns the registered engines in order of preference.
func Installed() []Engine {
	registry.RLock()
	defer registry.RUnlock()
	var out []Engine
	for _, e := range engines {
		if _, ok := registry.backends[e]; ok {
			out = append(out, e)
		}
	}
	return out
}

// HavePatsy reports whether the patsy dialect is installed.
func HavePatsy() bool {
	_, ok := lookupBackend(EnginePatsy)
	return ok
}

// HaveFormulaic reports whether the formulaic dialect is installed.
func HaveFormulaic() bool {
	_, ok := lookupBackend(EngineFormulaic)
	return ok
}

// EnvPrefix is the prefix of the environment variables read by the probe.
const EnvPrefix = "SM"

// EnvConfig is the process configuration read from the environment.
type EnvConfig struct {
	// DefaultFormulaEngine is read from SM_DEFAULT_FORMULA_ENGINE.
	DefaultFormulaEngine string `envconfig:"DEFAULT_FORMULA_ENGINE"`
}

// LoadEnvConfig reads and validates the environment configuration.
func LoadEnvConfig() (*EnvConfig, error) {
	var cfg EnvConfig
	if err := envconfig.Process(EnvPrefix, &cfg); err != nil {
		return nil, configError(err, nil, "failed to load environment config: %v", err)
	}
	if cfg.DefaultFormulaEngine != "" && !Engine(cfg.DefaultFormulaEngine).Valid() {
		allowed := engineStrings(engines)
		return nil, configError(ErrUnknownEngine, allowed,
			"invalid value for %s_DEFAULT_FORMULA_ENGINE: %q (must be %s or unset)",
			EnvPrefix, cfg.DefaultFormulaEngine, joinChoices(allowed))
	}
	return &cfg, nil
}

var defaults struct {
	once sync.Once
	opts *Options
	err  error
}

// DefaultOptions returns the process-wide options. They are built on first
// use from the installed backends and the environment: an environment
// override wins, otherwise patsy is preferred when installed. Changing the
// returned options affects managers constructed afterwards only.
func DefaultOptions() (*Options, error) {
	defaults.once.Do(func() {
		engine, err := defaultEngine()
		if err != nil {
			defaults.err = err
			return
		}
		defaults.opts = newOptions(engine, Installed())
	})
	return defaults.opts, defaults.err
}

func defaultEngine() (Engine, error) {
	cfg, err := LoadEnvConfig()
	if err != nil {
		return "", err
	}
	if cfg.DefaultFormulaEngine != "" {
		return Engine(cfg.DefaultFormulaEngine), nil
	}
	if HavePatsy() {
		return EnginePatsy, nil
	}
	return EngineFormulaic, nil
}

// resetDefaults discards the process-wide options so the next call to
// DefaultOptions probes again.
func resetDefaults() {
	defaults.once = sync.Once{}
	defaults.opts = nil
	defaults.err = nil
}

func engineStrings(es []Engine) []string {
	out := make([]string, len(es))
	for i, e := range es {
		out[i] = string(e)
	}
	return out
}
