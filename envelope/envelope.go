// Package envelope implements the wire format of a sealed telemetry message.
//
// An envelope is JSON text in which every binary field is standard base64:
//
//	{
//	  "header": {"algorithm": "<tag>", "ephemeral_public_key": "<base64 32B>"},
//	  "nonce": "<base64 16B>",
//	  "ciphertext": "<base64 ciphertext+tag>",
//	  "metrics": {"encrypt_time_ns": <int>}
//	}
//
// The algorithm tag is recorded for forward compatibility but never
// interpreted: both ends fix the algorithm at build time. Metrics are optional
// and carry no security meaning.
package envelope

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/goccy/go-json"
)

const (
	// PublicKeySize is the size of the sender's ephemeral X25519 public key.
	PublicKeySize = 32
	// NonceSize is the size of the AEAD nonce.
	NonceSize = 16
)

// ErrMalformed is returned for any envelope that cannot be parsed or fails
// field validation. Nothing that fails with ErrMalformed reaches the cipher.
var ErrMalformed = errors.New("malformed envelope")

// Header identifies the sender's key and the (informational) algorithm.
type Header struct {
	Algorithm          string
	EphemeralPublicKey [PublicKeySize]byte
}

// Metrics carries optional sender-side measurements.
type Metrics struct {
	// EncryptTimeNs is the wall time spent in the encryption call, in nanoseconds.
	EncryptTimeNs uint64 `json:"encrypt_time_ns"`
}

// Envelope is one sealed message. It is created once by the sender, consumed
// once by the receiver and never mutated in between.
type Envelope struct {
	Header     Header
	Nonce      [NonceSize]byte
	Ciphertext []byte
	Metrics    *Metrics
}

type wireHeader struct {
	Algorithm          string `json:"algorithm"`
	EphemeralPublicKey string `json:"ephemeral_public_key"`
}

type wireEnvelope struct {
	Header     wireHeader `json:"header"`
	Nonce      string     `json:"nonce"`
	Ciphertext string     `json:"ciphertext"`
	Metrics    *Metrics   `json:"metrics,omitempty"`
}

// inboundEnvelope defers metrics so a bad measurement never fails a decode.
type inboundEnvelope struct {
	Header     wireHeader      `json:"header"`
	Nonce      string          `json:"nonce"`
	Ciphertext string          `json:"ciphertext"`
	Metrics    json.RawMessage `json:"metrics"`
}

// Encode serializes the envelope to its JSON wire form.
func Encode(e *Envelope) ([]byte, error) {
	if e == nil {
		return nil, errors.New("envelope cannot be nil")
	}

	w := wireEnvelope{
		Header: wireHeader{
			Algorithm:          e.Header.Algorithm,
			EphemeralPublicKey: base64.StdEncoding.EncodeToString(e.Header.EphemeralPublicKey[:]),
		},
		Nonce:      base64.StdEncoding.EncodeToString(e.Nonce[:]),
		Ciphertext: base64.StdEncoding.EncodeToString(e.Ciphertext),
		Metrics:    e.Metrics,
	}

	data, err := json.Marshal(&w)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal envelope: %w", err)
	}
	return data, nil
}

// Decode parses JSON wire bytes into an Envelope.
//
// The ephemeral public key, nonce and ciphertext are required; a nonce that
// does not decode to exactly 16 bytes or a key that is not 32 bytes is rejected.
// Metrics are informational: malformed metrics decode as nil.
func Decode(data []byte) (*Envelope, error) {
	var w inboundEnvelope
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}

	e, err := ParseFields(w.Ciphertext, w.Header.EphemeralPublicKey, w.Nonce)
	if err != nil {
		return nil, err
	}
	e.Header.Algorithm = w.Header.Algorithm
	e.Metrics = parseMetrics(w.Metrics)
	return e, nil
}

// parseMetrics keeps well-formed metrics and drops anything else.
func parseMetrics(raw json.RawMessage) *Metrics {
	if len(raw) == 0 || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil
	}
	var m Metrics
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil
	}
	return &m
}

// ParseFields builds an Envelope from the three base64 text fields that the
// decrypt gateway receives individually.
func ParseFields(ciphertext, publicKey, nonce string) (*Envelope, error) {
	var e Envelope

	if err := decodeFixed("ephemeral_public_key", publicKey, e.Header.EphemeralPublicKey[:]); err != nil {
		return nil, err
	}
	if err := decodeFixed("nonce", nonce, e.Nonce[:]); err != nil {
		return nil, err
	}

	if ciphertext == "" {
		return nil, fmt.Errorf("%w: missing ciphertext", ErrMalformed)
	}
	if !utf8.ValidString(ciphertext) {
		return nil, fmt.Errorf("%w: ciphertext is not valid UTF-8", ErrMalformed)
	}
	ct, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: ciphertext: %v", ErrMalformed, err)
	}
	e.Ciphertext = ct

	return &e, nil
}

func decodeFixed(field, text string, dst []byte) error {
	if text == "" {
		return fmt.Errorf("%w: missing %s", ErrMalformed, field)
	}
	if !utf8.ValidString(text) {
		return fmt.Errorf("%w: %s is not valid UTF-8", ErrMalformed, field)
	}

	raw, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformed, field, err)
	}
	if len(raw) != len(dst) {
		return fmt.Errorf("%w: %s must be %d bytes, got %d", ErrMalformed, field, len(dst), len(raw))
	}

	copy(dst, raw)
	return nil
}
