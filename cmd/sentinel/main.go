package main

import (
	"encoding/base64"
	"fmt"
	"io"
	"os"

	"github.com/alecthomas/kong"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/crypto/keystore"
)

type cli struct {
	Genkeys   genkeysCmd   `cmd:"" help:"Generate a static X25519 key pair for the broker."`
	Storekey  storekeyCmd  `cmd:"" help:"Store a hex private key in a keystore."`
	Listkeys  listkeysCmd  `cmd:"" help:"List the keys in a keystore."`
	Pubkey    pubkeyCmd    `cmd:"" help:"Print the public key of a stored private key."`
	Seal      sealCmd      `cmd:"" help:"Seal a telemetry record into an envelope."`
	Open      openCmd      `cmd:"" help:"Open an envelope with a stored private key."`
	Roundtrip roundtripCmd `cmd:"" help:"Seal and open a sample record to check a key pair."`
	Device    deviceCmd    `cmd:"" help:"Run the device agent with a simulated sensor."`
	Broker    brokerCmd    `cmd:"" help:"Subscribe to encrypted telemetry and record it."`
}

// KeystoreFlags selects a private key. It is embedded by every command that
// reads or writes keys.
type KeystoreFlags struct {
	Backend string `default:"env" enum:"env,keyring,memory" help:"Keystore backend."`
	KeyID   string `name:"key-id" default:"PRIVATE_KEY" help:"Key ID (the variable name for the env backend)."`
}

func (f KeystoreFlags) open() (keystore.Keystore, error) {
	return keystore.NewKeystore(f.Backend)
}

func (f KeystoreFlags) holder() (*keystore.KeyHolder, error) {
	ks, err := f.open()
	if err != nil {
		return nil, err
	}
	h := keystore.NewKeyHolder(ks, keystore.KeyID(f.KeyID))
	if err := h.Load(); err != nil {
		return nil, err
	}
	return h, nil
}

func main() {
	var cli cli

	ctx := kong.Parse(&cli,
		kong.Name("sentinel"),
		kong.Description("Hybrid-encrypted LDR/PIR telemetry: X25519, HKDF-SHA256 and ASCON-AEAD128."),
	)
	err := ctx.Run()
	ctx.FatalIfErrorf(err)
}

func decodePublicKey(s string) ([crypto.KeySize]byte, error) {
	var key [crypto.KeySize]byte
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return key, fmt.Errorf("%w: public key is not valid base64: %v", crypto.ErrConfiguration, err)
	}
	if len(raw) != crypto.KeySize {
		return key, fmt.Errorf("%w: public key must be %d bytes, got %d", crypto.ErrConfiguration, crypto.KeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

func encodePublicKey(key [crypto.KeySize]byte) string {
	return base64.StdEncoding.EncodeToString(key[:])
}

func readInput(path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}
