package main

import (
	"fmt"
	"os"

	"github.com/alecthomas/kong"
	"golang.org/x/term"

	"github.com/joncooperworks/sentinel/crypto/keystore"
)

type storekeyCmd struct {
	KeystoreFlags `embed:""`

	FromEnv string `name:"from-env" help:"Read the hex key from this environment variable instead of prompting."`
}

func (cmd *storekeyCmd) Run(ctx *kong.Context) error {
	var hexKey string
	if cmd.FromEnv != "" {
		hexKey = os.Getenv(cmd.FromEnv)
	} else {
		raw, err := askSecret("Enter hex private key: ")
		if err != nil {
			return err
		}
		hexKey = string(raw)
		clear(raw)
	}

	key, err := keystore.ParseHexKey(hexKey)
	if err != nil {
		return err
	}
	defer clear(key[:])

	ks, err := cmd.open()
	if err != nil {
		return err
	}
	if err := ks.SetPrivateKey(keystore.KeyID(cmd.KeyID), key); err != nil {
		return err
	}

	pub, err := keystore.PublicKey(key)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(ctx.Stdout, "Private key stored successfully:\n")
	_, _ = fmt.Fprintf(ctx.Stdout, "  Keystore: %s\n", cmd.Backend)
	_, _ = fmt.Fprintf(ctx.Stdout, "  Key ID: %s\n", cmd.KeyID)
	_, _ = fmt.Fprintf(ctx.Stdout, "  Public key: %s\n", encodePublicKey(pub))
	return nil
}

func askSecret(prompt string) ([]byte, error) {
	defer func() { _, _ = fmt.Fprintln(os.Stderr) }()

	_, _ = fmt.Fprint(os.Stderr, prompt)

	return term.ReadPassword(int(os.Stdin.Fd()))
}
