package keystore

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/joncooperworks/sentinel/crypto"
)

func init() {
	RegisterKeystore("env", NewEnvKeystore)
}

// EnvKeystore reads hex-encoded private keys from environment variables.
// The KeyID is the variable name. It is read-only.
type EnvKeystore struct {
	lookup func(string) (string, bool)
}

// NewEnvKeystore creates a keystore backed by the process environment.
func NewEnvKeystore() (Keystore, error) {
	return &EnvKeystore{lookup: os.LookupEnv}, nil
}

// PrivateKey reads and decodes the variable named by id.
func (k *EnvKeystore) PrivateKey(id KeyID) ([crypto.KeySize]byte, error) {
	value, ok := k.lookup(string(id))
	if !ok {
		return [crypto.KeySize]byte{}, fmt.Errorf("%w: %w: environment variable %s is not set", crypto.ErrConfiguration, ErrKeyNotFound, id)
	}
	key, err := ParseHexKey(value)
	if err != nil {
		return [crypto.KeySize]byte{}, fmt.Errorf("failed to read %s: %w", id, err)
	}
	return key, nil
}

// SetPrivateKey is not supported; the environment is configured outside the process.
func (k *EnvKeystore) SetPrivateKey(id KeyID, key [crypto.KeySize]byte) error {
	return fmt.Errorf("env keystore is read-only: %w", errors.ErrUnsupported)
}

// ListKeys returns the environment variables whose value parses as a private key.
func (k *EnvKeystore) ListKeys() ([]KeyID, error) {
	var ids []KeyID
	for _, kv := range os.Environ() {
		name, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, err := ParseHexKey(value); err == nil {
			ids = append(ids, KeyID(name))
		}
	}
	return ids, nil
}
