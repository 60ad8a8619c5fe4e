package gpu

import (
	"runtime"
	"sort"
	"sync"

	"github.com/pkg/errors"

	"fluidsim/core"
)

// Factory creates a backend. Factories for hardware backends return
// ErrBackendUnavailable when the device or driver cannot be opened.
type Factory func() (Backend, error)

var (
	registryMu sync.RWMutex
	registry   = map[string]Factory{}
)

func init() {
	Register("cpu", func() (Backend, error) { return NewCPUBackend(runtime.NumCPU()), nil })
}

// Register makes a backend available to Open under name. Registering the
// same name twice replaces the earlier factory.
func Register(name string, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[name] = factory
}

// Open creates the named backend
func Open(name string) (Backend, error) {
	registryMu.RLock()
	factory, ok := registry[name]
	registryMu.RUnlock()
	if !ok {
		return nil, errors.Wrapf(ErrBackendUnavailable, "no backend named %q (have %v)", name, Names())
	}
	b, err := factory()
	if err != nil {
		return nil, errors.Wrapf(err, "open %s backend", name)
	}
	core.Logger().Info("compute backend opened", "backend", b.Name())
	return b, nil
}

// Names lists the registered backends in sorted order
func Names() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	names := make([]string, 0, len(registry))
	for n := range registry {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
