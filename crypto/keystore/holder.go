package keystore

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joncooperworks/sentinel/crypto"
)

// KeyHolder caches one private key from a Keystore for the life of the process.
//
// The key is parsed once and shared by every reader without locking. Reload
// re-reads the source and publishes the new key under the next version; a
// failed reload leaves the previous key in place. Readers that need to notice
// rotation compare versions.
type KeyHolder struct {
	store Keystore
	id    KeyID

	// reloadMu serializes loads so versions are handed out in order
	reloadMu sync.Mutex
	current  atomic.Pointer[heldKey]
	version  uint64
}

type heldKey struct {
	key     [crypto.KeySize]byte
	version uint64
}

// NewKeyHolder creates a holder for the key stored under id. Nothing is read
// until Load, Key or Reload is called.
func NewKeyHolder(store Keystore, id KeyID) *KeyHolder {
	if id == "" {
		id = DefaultKeyID
	}
	return &KeyHolder{store: store, id: id}
}

// ID returns the key ID this holder reads.
func (h *KeyHolder) ID() KeyID {
	return h.id
}

// Load reads the key if it has not been read yet.
func (h *KeyHolder) Load() error {
	if h.current.Load() != nil {
		return nil
	}

	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	if h.current.Load() != nil {
		return nil
	}
	_, err := h.loadLocked()
	return err
}

// Key returns the cached key and its version, loading it on first use.
func (h *KeyHolder) Key() ([crypto.KeySize]byte, uint64, error) {
	if held := h.current.Load(); held != nil {
		return held.key, held.version, nil
	}
	if err := h.Load(); err != nil {
		return [crypto.KeySize]byte{}, 0, err
	}
	held := h.current.Load()
	return held.key, held.version, nil
}

// Reload re-reads the key from the keystore and returns the new version.
func (h *KeyHolder) Reload() (uint64, error) {
	h.reloadMu.Lock()
	defer h.reloadMu.Unlock()
	return h.loadLocked()
}

func (h *KeyHolder) loadLocked() (uint64, error) {
	if h.store == nil {
		return 0, fmt.Errorf("%w: no keystore configured", crypto.ErrConfiguration)
	}

	key, err := h.store.PrivateKey(h.id)
	if err != nil {
		return 0, fmt.Errorf("failed to load private key %s: %w", h.id, err)
	}

	h.version++
	h.current.Store(&heldKey{key: key, version: h.version})
	return h.version, nil
}
