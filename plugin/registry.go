package plugin

import (
	"fmt"
	"slices"
	"sync"
)

// LoaderFactory creates a Loader. Factories are registered from init.
type LoaderFactory func() (Loader, error)

var (
	loaderRegistry   = make(map[string]LoaderFactory)
	loaderRegistryMu sync.RWMutex
)

// RegisterLoader registers a loader factory for a driver type such as "wasm".
// Registering the same type twice replaces the earlier factory.
func RegisterLoader(driverType string, factory LoaderFactory) {
	loaderRegistryMu.Lock()
	defer loaderRegistryMu.Unlock()
	loaderRegistry[driverType] = factory
}

// GetLoaderFactory returns the factory registered for driverType.
func GetLoaderFactory(driverType string) (LoaderFactory, error) {
	loaderRegistryMu.RLock()
	defer loaderRegistryMu.RUnlock()
	factory, ok := loaderRegistry[driverType]
	if !ok {
		return nil, fmt.Errorf("no loader registered for driver type: %s", driverType)
	}
	return factory, nil
}

// ListRegisteredDriverTypes returns the registered driver types, sorted.
func ListRegisteredDriverTypes() []string {
	loaderRegistryMu.RLock()
	defer loaderRegistryMu.RUnlock()
	types := make([]string, 0, len(loaderRegistry))
	for t := range loaderRegistry {
		types = append(types, t)
	}
	slices.Sort(types)
	return types
}
