// Package broker consumes encrypted telemetry from MQTT: decode the envelope,
// decrypt it through the gateway, decode the reading and record it as otel
// gauges.
package broker

import (
	"context"
	"errors"
	"fmt"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/device"
	"github.com/joncooperworks/sentinel/envelope"
	"github.com/joncooperworks/sentinel/gateway"
)

// MeterName is the instrumentation scope of the broker's instruments.
const MeterName = "iot"

// Failure stages reported on the sensors.failures counter.
const (
	StageDecode    = "decode"
	StageDecrypt   = "decrypt"
	StageTelemetry = "telemetry"
)

// Handler processes one MQTT payload at a time. It is safe for concurrent use.
type Handler struct {
	gateway  *gateway.Gateway
	logger   zerolog.Logger
	meter    metric.Meter
	ldr      metric.Int64Gauge
	pir      metric.Int64Gauge
	failures metric.Int64Counter
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the handler's logger.
func WithLogger(logger zerolog.Logger) Option {
	return func(h *Handler) {
		h.logger = logger
	}
}

// WithMeter sets the meter for the sensor gauges. Defaults to the global
// provider's "iot" meter.
func WithMeter(meter metric.Meter) Option {
	return func(h *Handler) {
		h.meter = meter
	}
}

// NewHandler creates a handler decrypting through g.
func NewHandler(g *gateway.Gateway, opts ...Option) (*Handler, error) {
	if g == nil {
		return nil, errors.New("gateway cannot be nil")
	}
	h := &Handler{
		gateway: g,
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.meter == nil {
		h.meter = otel.Meter(MeterName)
	}

	var err error
	h.ldr, err = h.meter.Int64Gauge(
		"sensors.ldr",
		metric.WithDescription("LDR Sensor Reading"),
		metric.WithUnit("Ohms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create ldr gauge: %w", err)
	}
	h.pir, err = h.meter.Int64Gauge(
		"sensors.pir",
		metric.WithDescription("PIR Sensor Reading"),
		metric.WithUnit("Boolean"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pir gauge: %w", err)
	}
	h.failures, err = h.meter.Int64Counter(
		"sensors.failures",
		metric.WithDescription("Telemetry messages that could not be processed"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create failure counter: %w", err)
	}
	return h, nil
}

// Handle decrypts one payload and records the reading. Envelopes that cannot
// be parsed fail with both envelope.ErrMalformed and crypto.ErrMalformedInput.
func (h *Handler) Handle(ctx context.Context, payload []byte) (*device.Telemetry, error) {
	env, err := envelope.Decode(payload)
	if err != nil {
		return nil, h.fail(ctx, StageDecode, fmt.Errorf("%w: %w", crypto.ErrMalformedInput, err), payload)
	}

	c, err := gateway.CipherFromEnvelope(env)
	if err != nil {
		return nil, h.fail(ctx, StageDecode, err, payload)
	}

	plaintext, err := gateway.Unseal(h.gateway, c)
	if err != nil {
		return nil, h.fail(ctx, StageDecrypt, err, payload)
	}

	reading, err := device.DecodeTelemetry(plaintext)
	if err != nil {
		return nil, h.fail(ctx, StageTelemetry, err, payload)
	}

	attrs := metric.WithAttributes(attribute.String("device_id", reading.DeviceID))
	h.ldr.Record(ctx, int64(reading.LDR), attrs)
	h.pir.Record(ctx, boolToInt(reading.PIR), attrs)

	h.logger.Info().
		Str("device_id", reading.DeviceID).
		Uint64("timestamp_ms", reading.TimestampMs).
		Uint16("ldr", uint16(reading.LDR)).
		Bool("pir", reading.PIR).
		Msg("iot: reading received")
	h.logger.Debug().Bytes("data", plaintext).Msg("iot: unencrypted received message")
	return reading, nil
}

func (h *Handler) fail(ctx context.Context, stage string, err error, payload []byte) error {
	h.failures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
	h.logger.Error().
		Err(err).
		Str("stage", stage).
		Int("size", len(payload)).
		Msg("iot: cannot process mqtt message")
	return fmt.Errorf("%s: %w", stage, err)
}

func boolToInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

// Subscribe routes every message on topic to h. Messages are handled with ctx.
func Subscribe(ctx context.Context, client mqtt.Client, topic string, h *Handler) error {
	token := client.Subscribe(topic, 0, func(_ mqtt.Client, message mqtt.Message) {
		_, _ = h.Handle(ctx, message.Payload())
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-token.Done():
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
	}
	return nil
}
