package keystore

import (
	"fmt"
	"slices"
	"sync"

	"github.com/joncooperworks/sentinel/crypto"
)

// shared backs the "memory" backend so every NewKeystore("memory") call in a
// process sees the same keys.
var shared = NewMemoryKeystore()

func init() {
	RegisterKeystore("memory", func() (Keystore, error) {
		return shared, nil
	})
}

// MemoryKeystore is an in-memory implementation of Keystore.
// This is exported so it can be used by tests in other packages.
type MemoryKeystore struct {
	mu   sync.RWMutex
	keys map[KeyID][crypto.KeySize]byte
}

// NewMemoryKeystore creates an empty in-memory keystore.
func NewMemoryKeystore() *MemoryKeystore {
	return &MemoryKeystore{keys: make(map[KeyID][crypto.KeySize]byte)}
}

func (m *MemoryKeystore) PrivateKey(id KeyID) ([crypto.KeySize]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	key, ok := m.keys[id]
	if !ok {
		return [crypto.KeySize]byte{}, fmt.Errorf("%w: %w: %s", crypto.ErrConfiguration, ErrKeyNotFound, id)
	}
	return key, nil
}

func (m *MemoryKeystore) SetPrivateKey(id KeyID, key [crypto.KeySize]byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys[id] = key
	return nil
}

func (m *MemoryKeystore) ListKeys() ([]KeyID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]KeyID, 0, len(m.keys))
	for id := range m.keys {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids, nil
}

// Delete removes a key. Deleting a missing key is a no-op.
func (m *MemoryKeystore) Delete(id KeyID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.keys, id)
}
