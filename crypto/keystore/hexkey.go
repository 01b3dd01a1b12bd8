package keystore

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/joncooperworks/sentinel/crypto"
)

// ParseHexKey decodes a hex-encoded 32-byte private key.
//
// Surrounding whitespace is ignored. Longer input is rejected rather than
// truncated. Errors wrap crypto.ErrConfiguration.
func ParseHexKey(s string) ([crypto.KeySize]byte, error) {
	var key [crypto.KeySize]byte

	s = strings.TrimSpace(s)
	if s == "" {
		return key, fmt.Errorf("%w: private key is empty", crypto.ErrConfiguration)
	}
	if len(s) != hex.EncodedLen(crypto.KeySize) {
		return key, fmt.Errorf("%w: private key must be %d hex characters, got %d", crypto.ErrConfiguration, hex.EncodedLen(crypto.KeySize), len(s))
	}
	if _, err := hex.Decode(key[:], []byte(s)); err != nil {
		return [crypto.KeySize]byte{}, fmt.Errorf("%w: private key is not valid hex: %v", crypto.ErrConfiguration, err)
	}
	return key, nil
}

// EncodeHexKey returns the lowercase hex encoding of a private key.
func EncodeHexKey(key [crypto.KeySize]byte) string {
	return hex.EncodeToString(key[:])
}

// PublicKey computes the X25519 public key for a stored private key.
func PublicKey(private [crypto.KeySize]byte) ([crypto.KeySize]byte, error) {
	kp, err := crypto.NewKeyPair(private)
	if err != nil {
		return [crypto.KeySize]byte{}, fmt.Errorf("%w: %v", crypto.ErrConfiguration, err)
	}
	return kp.Public, nil
}
