package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/joncooperworks/sentinel/crypto/keystore"
)

type listkeysCmd struct {
	KeystoreFlags `embed:""`
}

func (cmd *listkeysCmd) Run(ctx *kong.Context) error {
	ks, err := cmd.open()
	if err != nil {
		return err
	}

	ids, err := ks.ListKeys()
	if err != nil {
		return err
	}
	if len(ids) == 0 {
		_, _ = fmt.Fprintf(ctx.Stderr, "No keys found in %s keystore\n", cmd.Backend)
		return nil
	}

	for _, id := range ids {
		key, err := ks.PrivateKey(id)
		if err != nil {
			_, _ = fmt.Fprintf(ctx.Stdout, "%s\t(unreadable: %v)\n", id, err)
			continue
		}
		pub, err := keystore.PublicKey(key)
		clear(key[:])
		if err != nil {
			_, _ = fmt.Fprintf(ctx.Stdout, "%s\t(invalid: %v)\n", id, err)
			continue
		}
		_, _ = fmt.Fprintf(ctx.Stdout, "%s\t%s\n", id, encodePublicKey(pub))
	}
	return nil
}
