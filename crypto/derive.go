package crypto

import (
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const (
	// DeriveInfo is the HKDF context label binding derived material to this protocol.
	DeriveInfo = "ascon-derive-v1"
	// AEADKeySize is the size of the derived ASCON-AEAD128 key.
	AEADKeySize = 16
	// NonceSeedSize is the size of the derived nonce seed.
	NonceSeedSize = 16
)

// DerivedMaterial is the symmetric material expanded from one SharedSecret.
//
// Both halves stay inside this package: the key feeds the AEAD engine and the
// seed feeds nonce construction.
type DerivedMaterial struct {
	aeadKey   [AEADKeySize]byte
	nonceSeed [NonceSeedSize]byte
}

// Derive expands a shared secret with HKDF-SHA256 (no salt, DeriveInfo as info)
// into 32 bytes: the first 16 become the AEAD key, the last 16 the nonce seed.
//
// A failure here means the key schedule itself is broken. It is reported as
// ErrConfiguration and callers must not retry.
func Derive(shared SharedSecret) (DerivedMaterial, error) {
	okm := make([]byte, AEADKeySize+NonceSeedSize)
	defer zeroize(okm)

	r := hkdf.New(sha256.New, shared[:], nil, []byte(DeriveInfo))
	if _, err := io.ReadFull(r, okm); err != nil {
		return DerivedMaterial{}, fmt.Errorf("%w: failed to expand shared secret: %v", ErrConfiguration, err)
	}

	var m DerivedMaterial
	copy(m.aeadKey[:], okm[:AEADKeySize])
	copy(m.nonceSeed[:], okm[AEADKeySize:])
	return m, nil
}

// wipe clears both halves of the material.
func (m *DerivedMaterial) wipe() {
	zeroize(m.aeadKey[:])
	zeroize(m.nonceSeed[:])
}
