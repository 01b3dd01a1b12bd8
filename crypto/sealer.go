package crypto

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/joncooperworks/sentinel/envelope"
)

// Algorithm is the tag written into every envelope header.
const Algorithm = "X25519+HKDF-SHA256+ASCON128"

// Sealer encrypts telemetry on the device side.
//
// A Sealer owns one ephemeral key pair for its whole lifetime: the shared
// secret and derived material are computed once in NewSealer and the ephemeral
// secret is wiped right after. A compromise of the derived material therefore
// exposes every message sealed since the process started, not just one.
// Rekeying means creating a new Sealer.
//
// Seal is safe for concurrent use; the nonce counter is the only mutable state.
type Sealer struct {
	public   [KeySize]byte
	material DerivedMaterial
	counter  *nonceCounter
	now      func() time.Time
}

// SealerOption configures a Sealer.
type SealerOption func(*sealerConfig)

type sealerConfig struct {
	random  io.Reader
	counter *nonceCounter
	now     func() time.Time
}

// WithRandom sets the entropy source for the ephemeral key pair. Defaults to crypto/rand.
func WithRandom(r io.Reader) SealerOption {
	return func(c *sealerConfig) {
		c.random = r
	}
}

// withNonceCounter replaces the process-wide counter. Tests only: a second
// counter restarts at 0 and can repeat nonces under the same key.
func withNonceCounter(counter *nonceCounter) SealerOption {
	return func(c *sealerConfig) {
		c.counter = counter
	}
}

// WithClock sets the clock used to time encryption for envelope metrics.
func WithClock(now func() time.Time) SealerOption {
	return func(c *sealerConfig) {
		c.now = now
	}
}

// NewSealer generates an ephemeral key pair, agrees a shared secret with
// peerPublic and derives the session material.
//
// Every failure is a configuration error: the peer key came from process
// configuration and nothing can be sealed without it.
func NewSealer(peerPublic [KeySize]byte, opts ...SealerOption) (*Sealer, error) {
	cfg := sealerConfig{
		random:  rand.Reader,
		counter: &processCounter,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	ephemeral, err := GenerateKeyPair(cfg.random)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}
	defer zeroize(ephemeral.Secret[:])

	shared, err := Agree(ephemeral.Secret, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid server public key: %v", ErrConfiguration, err)
	}
	defer zeroize(shared[:])

	material, err := Derive(shared)
	if err != nil {
		return nil, err
	}

	return &Sealer{
		public:   ephemeral.Public,
		material: material,
		counter:  cfg.counter,
		now:      cfg.now,
	}, nil
}

// PublicKey returns the ephemeral public key carried in every envelope.
func (s *Sealer) PublicKey() [KeySize]byte {
	return s.public
}

// Seal encrypts plaintext under a fresh nonce built from timestampMs and
// returns the complete envelope, including the encryption time metric.
func (s *Sealer) Seal(plaintext []byte, timestampMs uint64) (*envelope.Envelope, error) {
	if s == nil {
		return nil, errors.New("sealer cannot be nil")
	}

	start := s.now()
	nonce := s.counter.BuildNonce(s.material.nonceSeed, timestampMs)
	ciphertext, err := Seal(s.material.aeadKey, nonce, plaintext)
	if err != nil {
		return nil, fmt.Errorf("failed to seal payload: %w", err)
	}
	elapsed := s.now().Sub(start)

	return &envelope.Envelope{
		Header: envelope.Header{
			Algorithm:          Algorithm,
			EphemeralPublicKey: s.public,
		},
		Nonce:      nonce,
		Ciphertext: ciphertext,
		Metrics:    &envelope.Metrics{EncryptTimeNs: uint64(max(elapsed, 0))},
	}, nil
}

// OpenEnvelope decrypts an envelope with the receiver's static private key.
//
// The shared secret is recomputed per message from the ephemeral public key in
// the header and wiped before returning. A bad peer key is ErrMalformedInput;
// every decryption failure is the single opaque ErrAuthentication.
func OpenEnvelope(private [KeySize]byte, e *envelope.Envelope) ([]byte, error) {
	if e == nil {
		return nil, fmt.Errorf("%w: envelope cannot be nil", ErrMalformedInput)
	}

	shared, err := Agree(private, e.Header.EphemeralPublicKey)
	if err != nil {
		return nil, err
	}
	defer zeroize(shared[:])

	material, err := Derive(shared)
	if err != nil {
		return nil, err
	}
	defer material.wipe()

	return Open(material.aeadKey, e.Nonce[:], e.Ciphertext)
}
