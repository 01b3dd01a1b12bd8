package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/joncooperworks/sentinel/broker"
	"github.com/joncooperworks/sentinel/crypto/keystore"
	"github.com/joncooperworks/sentinel/gateway"
	"github.com/joncooperworks/sentinel/internal/config"
	"github.com/joncooperworks/sentinel/internal/logging"
	"github.com/joncooperworks/sentinel/publish"
)

type brokerCmd struct {
	Config string `type:"path" help:"Path to a JSON broker configuration file."`
}

func (cmd *brokerCmd) Run() error {
	cfg, err := config.LoadBroker(cmd.Config)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}

	ks, err := keystore.NewKeystore(cfg.Keystore.Backend)
	if err != nil {
		return err
	}
	holder := keystore.NewKeyHolder(ks, keystore.KeyID(cfg.Keystore.KeyID))
	if err := holder.Load(); err != nil {
		return err
	}

	handler, err := broker.NewHandler(
		gateway.New(holder, gateway.WithLogger(log.Logger)),
		broker.WithLogger(log.Logger),
	)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client, err := publish.Connect(ctx, publish.NewClientOptions(cfg.MQTT))
	if err != nil {
		return err
	}
	defer client.Disconnect(250)

	if err := broker.Subscribe(ctx, client, cfg.Topic, handler); err != nil {
		return err
	}

	log.Info().
		Str("broker", cfg.MQTT.BrokerURL).
		Str("topic", cfg.Topic).
		Str("keystore", cfg.Keystore.Backend).
		Msg("subscribed to encrypted telemetry")

	reload := make(chan os.Signal, 1)
	signal.Notify(reload, syscall.SIGHUP)
	defer signal.Stop(reload)

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("shutting down")
			return nil
		case <-reload:
			v, err := holder.Reload()
			if err != nil {
				log.Error().Err(err).Msg("private key reload failed")
				continue
			}
			log.Info().Uint64("key_version", v).Msg("private key reloaded")
		}
	}
}
