package main

import (
	"crypto/rand"
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/crypto/keystore"
)

type genkeysCmd struct {
	KeystoreFlags `embed:""`

	Store bool `help:"Store the private key in the keystore instead of printing it."`
}

func (cmd *genkeysCmd) Run(ctx *kong.Context) error {
	kp, err := crypto.GenerateKeyPair(rand.Reader)
	if err != nil {
		return err
	}

	if cmd.Store {
		ks, err := cmd.open()
		if err != nil {
			return err
		}
		if err := ks.SetPrivateKey(keystore.KeyID(cmd.KeyID), kp.Secret); err != nil {
			return err
		}
		_, _ = fmt.Fprintf(ctx.Stderr, "Private key stored in %s keystore as %s\n", cmd.Backend, cmd.KeyID)
	} else {
		_, _ = fmt.Fprintf(ctx.Stdout, "PRIVATE_KEY=%s\n", keystore.EncodeHexKey(kp.Secret))
	}
	_, _ = fmt.Fprintf(ctx.Stdout, "SERVER_PUBLIC_KEY=%s\n", encodePublicKey(kp.Public))
	return nil
}
