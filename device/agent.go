package device

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/envelope"
	"github.com/joncooperworks/sentinel/publish"
)

// Sealer encrypts a telemetry record. *crypto.Sealer implements it.
type Sealer interface {
	Seal(plaintext []byte, timestampMs uint64) (*envelope.Envelope, error)
}

// SensorReader samples the sensors.
type SensorReader interface {
	Read(ctx context.Context) (Reading, error)
}

// Clock supplies wall-clock time for timestamps and the send interval.
type Clock interface {
	Now() time.Time
}

// SystemClock reads time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }

// AgentConfig configures an Agent.
type AgentConfig struct {
	DeviceID     string
	Topic        string
	LDRThreshold uint16
	SendInterval time.Duration
	PollInterval time.Duration
}

// Agent runs the device loop: read, decide, seal, encode, publish.
type Agent struct {
	cfg       AgentConfig
	sealer    Sealer
	reader    SensorReader
	publisher publish.Publisher
	clock     Clock
	trigger   *Trigger
	logger    zerolog.Logger
}

// AgentOption configures an Agent.
type AgentOption func(*Agent)

// WithLogger sets the agent's logger.
func WithLogger(logger zerolog.Logger) AgentOption {
	return func(a *Agent) {
		a.logger = logger
	}
}

// NewAgent creates an agent. A nil clock uses SystemClock.
func NewAgent(cfg AgentConfig, sealer Sealer, reader SensorReader, publisher publish.Publisher, clock Clock, opts ...AgentOption) *Agent {
	if clock == nil {
		clock = SystemClock{}
	}
	a := &Agent{
		cfg:       cfg,
		sealer:    sealer,
		reader:    reader,
		publisher: publisher,
		clock:     clock,
		trigger:   NewTrigger(cfg.LDRThreshold, cfg.SendInterval),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Step takes one sample and sends it if the trigger fires. It reports whether
// an envelope was handed to the publisher.
//
// The trigger advances even when publishing fails, so a dropped message is not
// retried on the next step; the error wraps publish.ErrDropped in that case.
func (a *Agent) Step(ctx context.Context) (bool, error) {
	r, err := a.reader.Read(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to read sensors: %w", err)
	}

	now := a.clock.Now()
	if !a.trigger.ShouldSend(r, now) {
		return false, nil
	}

	t := Telemetry{
		DeviceID:    a.cfg.DeviceID,
		TimestampMs: uint64(max(now.UnixMilli(), 0)),
		LDR:         LightLevel(r.LDR),
		PIR:         r.PIR,
	}
	payload, err := a.seal(t)
	if err != nil {
		return false, err
	}
	a.trigger.MarkSent(r, now)

	if err := a.publisher.Publish(ctx, a.cfg.Topic, payload); err != nil {
		return true, fmt.Errorf("failed to publish telemetry: %w", err)
	}

	a.logger.Info().
		Str("device_id", t.DeviceID).
		Uint64("timestamp_ms", t.TimestampMs).
		Uint16("ldr", uint16(t.LDR)).
		Bool("pir", t.PIR).
		Msg("device: telemetry sent")
	return true, nil
}

func (a *Agent) seal(t Telemetry) ([]byte, error) {
	plaintext, err := t.Encode()
	if err != nil {
		return nil, fmt.Errorf("failed to encode telemetry: %w", err)
	}

	env, err := a.sealer.Seal(plaintext, t.TimestampMs)
	if err != nil {
		return nil, fmt.Errorf("failed to seal telemetry: %w", err)
	}

	payload, err := envelope.Encode(env)
	if err != nil {
		return nil, fmt.Errorf("failed to encode envelope: %w", err)
	}
	return payload, nil
}

// Run calls Step every PollInterval until ctx is done.
//
// Sensor and publish failures are logged and the loop continues; a
// configuration error stops it.
func (a *Agent) Run(ctx context.Context) error {
	interval := a.cfg.PollInterval
	if interval <= 0 {
		interval = 200 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if _, err := a.Step(ctx); err != nil {
			switch {
			case ctx.Err() != nil:
				return nil
			case errors.Is(err, crypto.ErrConfiguration):
				return err
			case errors.Is(err, publish.ErrDropped):
				a.logger.Error().Err(err).Msg("device: telemetry lost")
			default:
				a.logger.Warn().Err(err).Msg("device: step failed")
			}
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
