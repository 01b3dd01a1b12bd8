package keystore

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"

	"github.com/joncooperworks/sentinel/crypto"
)

// ServiceName is the keyring service under which keys are stored.
const ServiceName = "sentinel"

func init() {
	RegisterKeystore("keyring", NewKeyringKeystore)
}

// KeyringKeystore implements Keystore on top of the OS credential store
// (Keychain, Secret Service, KWallet, Windows Credential Manager) or any other
// backend supported by github.com/99designs/keyring.
//
// Keys are stored hex-encoded, the same form accepted by the env backend.
type KeyringKeystore struct {
	ring keyring.Keyring
}

// NewKeyringKeystore opens the platform keyring for ServiceName.
func NewKeyringKeystore() (Keystore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return NewKeyringKeystoreFrom(ring), nil
}

// NewKeyringKeystoreFrom wraps an already opened keyring.
func NewKeyringKeystoreFrom(ring keyring.Keyring) *KeyringKeystore {
	return &KeyringKeystore{ring: ring}
}

// PrivateKey retrieves a private key from the keyring.
func (k *KeyringKeystore) PrivateKey(id KeyID) ([crypto.KeySize]byte, error) {
	item, err := k.ring.Get(string(id))
	if err != nil {
		if errors.Is(err, keyring.ErrKeyNotFound) {
			return [crypto.KeySize]byte{}, fmt.Errorf("%w: %w: %s", crypto.ErrConfiguration, ErrKeyNotFound, id)
		}
		return [crypto.KeySize]byte{}, fmt.Errorf("%w: failed to get key from keyring: %v", crypto.ErrConfiguration, err)
	}
	key, err := ParseHexKey(string(item.Data))
	if err != nil {
		return [crypto.KeySize]byte{}, fmt.Errorf("failed to read %s: %w", id, err)
	}
	return key, nil
}

// SetPrivateKey stores a private key in the keyring.
func (k *KeyringKeystore) SetPrivateKey(id KeyID, key [crypto.KeySize]byte) error {
	err := k.ring.Set(keyring.Item{
		Key:         string(id),
		Data:        []byte(EncodeHexKey(key)),
		Label:       fmt.Sprintf("%s private key %s", ServiceName, id),
		Description: "X25519 private key",
	})
	if err != nil {
		return fmt.Errorf("failed to store key in keyring: %w", err)
	}

	return nil
}

// ListKeys returns all key IDs stored in the keyring.
func (k *KeyringKeystore) ListKeys() ([]KeyID, error) {
	keys, err := k.ring.Keys()
	if err != nil {
		return nil, fmt.Errorf("failed to list keys from keyring: %w", err)
	}
	ids := make([]KeyID, len(keys))
	for i, key := range keys {
		ids[i] = KeyID(key)
	}
	return ids, nil
}
