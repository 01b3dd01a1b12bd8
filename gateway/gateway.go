// Package gateway is the server-side decrypt entry point shared by Go callers
// and the C shared library in cmd/libsentinel.
//
// The contract mirrors a C function that decrypts into a caller-owned buffer:
//
//	n, status := g.Decrypt(cipher, out)
//
// StatusTooSmall reports the required size in n and writes nothing to out,
// so a caller can probe with an empty buffer and retry with an exact one.
// Decrypt never writes past len(out) and never panics.
package gateway

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/envelope"
)

// Status is the result of a Decrypt call. The values are part of the C ABI.
type Status int32

const (
	StatusOK       Status = 0
	StatusError    Status = -1
	StatusTooSmall Status = -2
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	case StatusTooSmall:
		return "too small"
	default:
		return fmt.Sprintf("status(%d)", int32(s))
	}
}

// ErrDecrypt is returned by Unseal for every failed decryption.
var ErrDecrypt = errors.New("decrypt failed")

// KeySource supplies the static private key and its version.
// *keystore.KeyHolder implements it.
type KeySource interface {
	Key() ([crypto.KeySize]byte, uint64, error)
}

// Cipher is a validated envelope ready for decryption. The zero value is
// invalid and always decrypts to StatusError.
type Cipher struct {
	env *envelope.Envelope
}

// NewCipher validates the three base64 text fields of an envelope. Missing
// fields, invalid UTF-8, bad base64 and wrong-length keys or nonces are
// rejected here with crypto.ErrMalformedInput, before any key is touched.
func NewCipher(ciphertext, publicKey, nonce string) (Cipher, error) {
	env, err := envelope.ParseFields(ciphertext, publicKey, nonce)
	if err != nil {
		return Cipher{}, fmt.Errorf("%w: %w", crypto.ErrMalformedInput, err)
	}
	return Cipher{env: env}, nil
}

// CipherFromEnvelope wraps an envelope that was already decoded.
func CipherFromEnvelope(e *envelope.Envelope) (Cipher, error) {
	if e == nil {
		return Cipher{}, fmt.Errorf("%w: envelope cannot be nil", crypto.ErrMalformedInput)
	}
	if len(e.Ciphertext) == 0 {
		return Cipher{}, fmt.Errorf("%w: missing ciphertext", crypto.ErrMalformedInput)
	}
	return Cipher{env: e}, nil
}

// Gateway decrypts envelopes addressed to one static private key.
// It holds no per-call state and is safe for concurrent use.
type Gateway struct {
	source KeySource
	logger zerolog.Logger
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithLogger sets the logger used to report failed decryptions.
func WithLogger(logger zerolog.Logger) Option {
	return func(g *Gateway) {
		g.logger = logger
	}
}

// New creates a gateway reading its private key from source.
func New(source KeySource, opts ...Option) *Gateway {
	g := &Gateway{
		source: source,
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Decrypt opens c into out.
//
// On StatusOK, n bytes of plaintext were copied into out. On StatusTooSmall,
// n is the plaintext length and out is untouched. On StatusError, n is 0 and
// out is untouched.
func (g *Gateway) Decrypt(c Cipher, out []byte) (n int, status Status) {
	defer func() {
		if r := recover(); r != nil {
			g.logger.Error().Interface("panic", r).Msg("recovered panic in decrypt")
			n, status = 0, StatusError
		}
	}()

	if g == nil || g.source == nil {
		return 0, StatusError
	}
	if c.env == nil {
		g.logger.Debug().Msg("decrypt called with an unvalidated cipher")
		return 0, StatusError
	}

	key, version, err := g.source.Key()
	if err != nil {
		g.logger.Error().Err(err).Msg("failed to load private key")
		return 0, StatusError
	}
	defer clear(key[:])

	plaintext, err := crypto.OpenEnvelope(key, c.env)
	if err != nil {
		g.logger.Debug().Err(err).Uint64("key_version", version).Int("ciphertext_size", len(c.env.Ciphertext)).Msg("decrypt failed")
		return 0, StatusError
	}
	defer clear(plaintext)

	if len(plaintext) > len(out) {
		return len(plaintext), StatusTooSmall
	}
	return copy(out, plaintext), StatusOK
}

// Unseal decrypts c into a new slice using the size-probing protocol: a call
// with no buffer to learn the size, then a call with a buffer of exactly that
// size. Every status is checked.
func Unseal(g *Gateway, c Cipher) ([]byte, error) {
	size, status := g.Decrypt(c, nil)
	switch status {
	case StatusOK:
		return []byte{}, nil
	case StatusTooSmall:
	default:
		return nil, fmt.Errorf("%w: probe returned %s", ErrDecrypt, status)
	}

	out := make([]byte, size)
	n, status := g.Decrypt(c, out)
	if status != StatusOK {
		return nil, fmt.Errorf("%w: decrypt returned %s for a %d byte buffer", ErrDecrypt, status, size)
	}
	return out[:n], nil
}
