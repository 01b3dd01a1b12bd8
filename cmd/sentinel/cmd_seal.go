package main

import (
	"fmt"
	"time"

	"github.com/alecthomas/kong"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/device"
	"github.com/joncooperworks/sentinel/envelope"
)

type sealCmd struct {
	PublicKey string `name:"public-key" env:"SERVER_PUBLIC_KEY" required:"" help:"Base64 X25519 public key of the broker."`
	Input     string `arg:"" optional:"" default:"" help:"Path to the plaintext, or - for stdin. Omit to seal a reading built from the flags below."`

	DeviceID string `name:"device-id" default:"esp32-device-001" help:"Device ID of the generated reading."`
	LDR      uint16 `help:"LDR value of the generated reading."`
	PIR      bool   `help:"PIR state of the generated reading."`
}

func (cmd *sealCmd) Run(ctx *kong.Context) error {
	peer, err := decodePublicKey(cmd.PublicKey)
	if err != nil {
		return err
	}

	now := time.Now()
	plaintext, err := cmd.plaintext(now)
	if err != nil {
		return err
	}

	sealer, err := crypto.NewSealer(peer)
	if err != nil {
		return err
	}
	env, err := sealer.Seal(plaintext, uint64(now.UnixMilli()))
	if err != nil {
		return err
	}

	out, err := envelope.Encode(env)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(ctx.Stdout, "%s\n", out)
	return nil
}

func (cmd *sealCmd) plaintext(now time.Time) ([]byte, error) {
	if cmd.Input != "" {
		return readInput(cmd.Input)
	}
	return device.Telemetry{
		DeviceID:    cmd.DeviceID,
		TimestampMs: uint64(now.UnixMilli()),
		LDR:         device.LightLevel(cmd.LDR),
		PIR:         cmd.PIR,
	}.Encode()
}
