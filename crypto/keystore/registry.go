package keystore

import (
	"fmt"
	"slices"
	"sync"
)

// DefaultBackend is the backend used when none is configured.
const DefaultBackend = "env"

// KeystoreFactory is a function that creates a new Keystore instance.
//
// Factory functions are registered with RegisterKeystore and are called when
// a keystore for that backend is needed.
type KeystoreFactory func() (Keystore, error)

var (
	// registry stores keystore factories by backend name
	registry = make(map[string]KeystoreFactory)
	// registryMu protects concurrent access to the registry
	registryMu sync.RWMutex
)

// RegisterKeystore registers a keystore factory under a backend name.
//
// This should be called from init() functions of backend implementations.
//
// Example:
//
//	func init() {
//	    RegisterKeystore("keyring", NewKeyringKeystore)
//	}
func RegisterKeystore(backend string, factory KeystoreFactory) {
	registryMu.Lock()
	defer registryMu.Unlock()
	registry[backend] = factory
}

// GetKeystoreFactory retrieves the keystore factory for the given backend.
func GetKeystoreFactory(backend string) (KeystoreFactory, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	factory, ok := registry[backend]
	if !ok {
		return nil, fmt.Errorf("no keystore factory registered for backend: %s", backend)
	}
	return factory, nil
}

// ListRegisteredBackends returns all registered backend names, sorted.
func ListRegisteredBackends() []string {
	registryMu.RLock()
	defer registryMu.RUnlock()
	backends := make([]string, 0, len(registry))
	for backend := range registry {
		backends = append(backends, backend)
	}
	slices.Sort(backends)
	return backends
}

// NewKeystore opens the keystore registered under backend.
// An empty backend selects DefaultBackend.
func NewKeystore(backend string) (Keystore, error) {
	if backend == "" {
		backend = DefaultBackend
	}
	factory, err := GetKeystoreFactory(backend)
	if err != nil {
		return nil, err
	}
	return factory()
}
