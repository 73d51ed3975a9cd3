package milp

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// Options configures a backend.
type Options struct {
	MaxNodes int
	// Tolerance is the integrality and feasibility tolerance.
	Tolerance float64
	// Timeout bounds a single solve. Zero means no bound beyond the caller's context.
	Timeout time.Duration
}

// Factory builds a Solver from options.
type Factory func(Options) (Solver, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

// Register makes a backend available under name. It panics on duplicates.
func Register(name string, f Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	if _, dup := registry[name]; dup {
		panic("milp: backend registered twice: " + name)
	}
	registry[name] = f
}

// Open returns the named backend.
func Open(name string, opts Options) (Solver, error) {
	registryMu.RLock()
	f, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q (available: %v)", ErrUnknownBackend, name, Backends())
	}
	return f(opts)
}

// Backends lists registered backend names in sorted order.
func Backends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
