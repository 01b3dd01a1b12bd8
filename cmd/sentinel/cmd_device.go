package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/device"
	"github.com/joncooperworks/sentinel/internal/config"
	"github.com/joncooperworks/sentinel/internal/logging"
	"github.com/joncooperworks/sentinel/plugin"
	"github.com/joncooperworks/sentinel/publish"
)

type deviceCmd struct {
	Config string `type:"path" help:"Path to a JSON device configuration file."`
	Seed   uint64 `help:"Seed for the simulated sensor. Zero picks one from the clock."`
	Driver string `type:"existingfile" help:"Sensor driver module. The simulated sensor is used when omitted."`
}

func (cmd *deviceCmd) Run() error {
	cfg, err := config.LoadDevice(cmd.Config)
	if err != nil {
		return err
	}
	if err := logging.Init(cfg.LogLevel); err != nil {
		return err
	}

	peer, err := cfg.PeerPublicKey()
	if err != nil {
		return err
	}
	sealer, err := crypto.NewSealer(peer)
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

	publisher := publish.NewRetrying(
		publish.NewMQTTPublisher(client),
		cfg.PublishAttempts,
		time.Duration(cfg.PublishDelay),
		publish.WithLogger(log.Logger),
	)

	reader, err := cmd.sensor()
	if err != nil {
		return err
	}
	if closer, ok := reader.(plugin.Driver); ok {
		defer func() { _ = closer.Close(context.Background()) }()
	}

	agent := device.NewAgent(device.AgentConfig{
		DeviceID:     cfg.DeviceID,
		Topic:        cfg.Topic,
		LDRThreshold: cfg.LDRThreshold,
		SendInterval: time.Duration(cfg.SendInterval),
		PollInterval: time.Duration(cfg.PollInterval),
	}, sealer, reader, publisher, device.SystemClock{}, device.WithLogger(log.Logger))

	log.Info().
		Str("device_id", cfg.DeviceID).
		Str("broker", cfg.MQTT.BrokerURL).
		Str("topic", cfg.Topic).
		Msg("device agent started")
	return agent.Run(ctx)
}

func (cmd *deviceCmd) sensor() (device.SensorReader, error) {
	if cmd.Driver != "" {
		d, err := plugin.LoadFile(cmd.Driver, "")
		if err != nil {
			return nil, err
		}
		log.Info().Str("driver", d.Name()).Msg("sensor driver loaded")
		return d, nil
	}

	seed := cmd.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	return device.NewSimulatedSensor(seed), nil
}
