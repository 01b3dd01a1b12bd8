package crypto

import (
	"fmt"

	"github.com/joncooperworks/sentinel/crypto/ascon"
)

// Seal encrypts plaintext with ASCON-AEAD128 under key and nonce.
// The 16-byte tag is appended; no associated data is used.
func Seal(key [AEADKeySize]byte, nonce Nonce, plaintext []byte) ([]byte, error) {
	aead, err := ascon.New(key[:])
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create cipher: %v", ErrConfiguration, err)
	}
	return aead.Seal(nil, nonce[:], plaintext, nil), nil
}

// Open decrypts and authenticates ciphertext (including its tag).
//
// It fails closed: a wrong nonce length, a truncated ciphertext and a tag
// mismatch all return ErrAuthentication with no plaintext and no detail.
func Open(key [AEADKeySize]byte, nonce, ciphertext []byte) ([]byte, error) {
	if len(nonce) != NonceSize || len(ciphertext) < ascon.TagSize {
		return nil, ErrAuthentication
	}

	aead, err := ascon.New(key[:])
	if err != nil {
		return nil, ErrAuthentication
	}

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}
