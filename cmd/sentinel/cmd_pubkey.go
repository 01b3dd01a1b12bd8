package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/joncooperworks/sentinel/crypto/keystore"
)

type pubkeyCmd struct {
	KeystoreFlags `embed:""`
}

func (cmd *pubkeyCmd) Run(ctx *kong.Context) error {
	h, err := cmd.holder()
	if err != nil {
		return err
	}
	key, _, err := h.Key()
	if err != nil {
		return err
	}
	defer clear(key[:])

	pub, err := keystore.PublicKey(key)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintln(ctx.Stdout, encodePublicKey(pub))
	return nil
}
