package main

import (
	"fmt"

	"github.com/alecthomas/kong"

	"github.com/joncooperworks/sentinel/envelope"
	"github.com/joncooperworks/sentinel/gateway"
)

type openCmd struct {
	KeystoreFlags `embed:""`

	Input string `arg:"" optional:"" default:"-" help:"Path to the envelope JSON, or - for stdin."`
}

func (cmd *openCmd) Run(ctx *kong.Context) error {
	data, err := readInput(cmd.Input)
	if err != nil {
		return err
	}
	env, err := envelope.Decode(data)
	if err != nil {
		return err
	}
	c, err := gateway.CipherFromEnvelope(env)
	if err != nil {
		return err
	}

	h, err := cmd.holder()
	if err != nil {
		return err
	}
	plaintext, err := gateway.Unseal(gateway.New(h), c)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(ctx.Stdout, "%s\n", plaintext)
	return nil
}
