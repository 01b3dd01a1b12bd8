// Package crypto implements the sealed telemetry protocol.
//
// A device generates one ephemeral X25519 key pair per process, agrees a shared
// secret with the backend's static public key and expands it with HKDF-SHA256
// into an ASCON-AEAD128 key and a nonce seed. Every telemetry record is then
// sealed under a nonce built from the seed, the record timestamp and a
// process-wide counter. The backend repeats the agreement per message with its
// static private key and the ephemeral public key carried in the envelope.
package crypto

import (
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/curve25519"
)

// KeySize is the size of X25519 secret scalars, public points and shared secrets.
const KeySize = curve25519.PointSize

// KeyPair is an X25519 key pair.
//
// Only Public ever appears on the wire. String prints the public half only.
type KeyPair struct {
	// Secret is the 32-byte scalar. It is clamped by the curve operations.
	Secret [KeySize]byte
	// Public is the 32-byte Montgomery u-coordinate for Secret.
	Public [KeySize]byte
}

// SharedSecret is the raw output of an X25519 agreement.
type SharedSecret [KeySize]byte

// GenerateKeyPair reads a fresh secret scalar from random and computes its public key.
func GenerateKeyPair(random io.Reader) (KeyPair, error) {
	var secret [KeySize]byte
	if _, err := io.ReadFull(random, secret[:]); err != nil {
		return KeyPair{}, fmt.Errorf("failed to generate secret key: %w", err)
	}
	defer zeroize(secret[:])

	return NewKeyPair(secret)
}

// NewKeyPair computes the public key for an existing secret scalar.
func NewKeyPair(secret [KeySize]byte) (KeyPair, error) {
	public, err := curve25519.X25519(secret[:], curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: failed to compute public key: %v", ErrConfiguration, err)
	}

	kp := KeyPair{Secret: secret}
	copy(kp.Public[:], public)
	return kp, nil
}

// String returns the base64 encoding of the public key.
func (kp KeyPair) String() string {
	return base64.StdEncoding.EncodeToString(kp.Public[:])
}

// Agree performs X25519 between a local secret scalar and a peer public point.
//
// It is deterministic and never panics. A low-order peer point, which would
// produce the all-zero secret, is rejected with ErrMalformedInput. This
// deliberately departs from plain X25519 implementations that return the
// degenerate all-zero output and let the caller carry on with it.
func Agree(secret, peerPublic [KeySize]byte) (SharedSecret, error) {
	out, err := curve25519.X25519(secret[:], peerPublic[:])
	if err != nil {
		return SharedSecret{}, fmt.Errorf("%w: key agreement failed: %v", ErrMalformedInput, err)
	}
	defer zeroize(out)

	var shared SharedSecret
	copy(shared[:], out)
	return shared, nil
}
