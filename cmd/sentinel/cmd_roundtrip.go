package main

import (
	"bytes"
	"fmt"
	"time"

	"github.com/alecthomas/kong"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/crypto/keystore"
	"github.com/joncooperworks/sentinel/device"
	"github.com/joncooperworks/sentinel/envelope"
	"github.com/joncooperworks/sentinel/gateway"
)

type roundtripCmd struct {
	KeystoreFlags `embed:""`
}

// Run seals a sample reading to the stored key's public half, pushes it
// through the envelope codec and opens it with the probe-then-retry gateway.
func (cmd *roundtripCmd) Run(ctx *kong.Context) error {
	h, err := cmd.holder()
	if err != nil {
		return err
	}
	key, _, err := h.Key()
	if err != nil {
		return err
	}
	pub, err := keystore.PublicKey(key)
	clear(key[:])
	if err != nil {
		return err
	}

	now := time.Now()
	want, err := device.Telemetry{
		DeviceID:    "roundtrip",
		TimestampMs: uint64(now.UnixMilli()),
		LDR:         512,
		PIR:         true,
	}.Encode()
	if err != nil {
		return err
	}

	sealer, err := crypto.NewSealer(pub)
	if err != nil {
		return err
	}
	env, err := sealer.Seal(want, uint64(now.UnixMilli()))
	if err != nil {
		return err
	}
	wire, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	decoded, err := envelope.Decode(wire)
	if err != nil {
		return err
	}
	c, err := gateway.CipherFromEnvelope(decoded)
	if err != nil {
		return err
	}

	got, err := gateway.Unseal(gateway.New(h), c)
	if err != nil {
		return err
	}
	if !bytes.Equal(got, want) {
		return fmt.Errorf("roundtrip mismatch: got %q, want %q", got, want)
	}

	_, _ = fmt.Fprintf(ctx.Stdout, "Roundtrip OK\n")
	_, _ = fmt.Fprintf(ctx.Stdout, "  Public key: %s\n", encodePublicKey(pub))
	_, _ = fmt.Fprintf(ctx.Stdout, "  Envelope: %d bytes, ciphertext %d bytes, sealed in %dns\n", len(wire), len(env.Ciphertext), env.Metrics.EncryptTimeNs)
	return nil
}
