package keystore

import "errors"

// KeyID names a private key inside a keystore. For the env backend it is the
// name of the environment variable holding the key.
type KeyID string

// DefaultKeyID is the key used when none is configured.
const DefaultKeyID KeyID = "PRIVATE_KEY"

// ErrKeyNotFound is returned when a keystore has no key under the requested ID.
var ErrKeyNotFound = errors.New("key not found")

// Keystore gives access to static X25519 private keys.
type Keystore interface {
	// PrivateKey retrieves the 32-byte X25519 private key stored under id
	PrivateKey(id KeyID) ([32]byte, error)
	// SetPrivateKey stores a 32-byte X25519 private key under id
	SetPrivateKey(id KeyID, key [32]byte) error
	// ListKeys returns all key IDs stored in the keystore
	ListKeys() ([]KeyID, error)
}
