// Package publish delivers sealed envelopes to the message broker.
package publish

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

// ErrDropped is returned when every publish attempt failed. The message is
// not queued anywhere; the caller decides whether that is data loss.
var ErrDropped = errors.New("message dropped")

// Publisher sends one payload to a topic.
type Publisher interface {
	Publish(ctx context.Context, topic string, payload []byte) error
}

// Retrying retries a Publisher with a fixed delay and a fixed attempt budget.
// Every attempt sends the same bytes.
type Retrying struct {
	next     Publisher
	attempts int
	delay    time.Duration
	logger   zerolog.Logger
	dropped  metric.Int64Counter
	wait     func(ctx context.Context, d time.Duration) error
}

// RetryOption configures a Retrying publisher.
type RetryOption func(*Retrying)

// WithLogger sets the logger used to report failed attempts.
func WithLogger(logger zerolog.Logger) RetryOption {
	return func(r *Retrying) {
		r.logger = logger
	}
}

// WithMeter sets the meter used for the publish.dropped counter.
// Defaults to the global otel meter provider.
func WithMeter(meter metric.Meter) RetryOption {
	return func(r *Retrying) {
		r.dropped = newDroppedCounter(meter)
	}
}

// NewRetrying wraps p. attempts below 1 are treated as 1.
func NewRetrying(p Publisher, attempts int, delay time.Duration, opts ...RetryOption) *Retrying {
	r := &Retrying{
		next:     p,
		attempts: max(attempts, 1),
		delay:    delay,
		logger:   zerolog.Nop(),
		dropped:  newDroppedCounter(otel.Meter("sentinel/publish")),
		wait:     sleep,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

func newDroppedCounter(meter metric.Meter) metric.Int64Counter {
	counter, err := meter.Int64Counter(
		"publish.dropped",
		metric.WithDescription("Messages dropped after exhausting publish retries"),
	)
	if err != nil {
		otel.Handle(err)
	}
	return counter
}

// Publish sends payload, retrying on failure. It returns ErrDropped wrapping
// the last error once the budget is exhausted, or the context error if ctx is
// done while waiting between attempts.
func (r *Retrying) Publish(ctx context.Context, topic string, payload []byte) error {
	payload = bytes.Clone(payload)

	var lastErr error
	for attempt := 1; attempt <= r.attempts; attempt++ {
		lastErr = r.next.Publish(ctx, topic, payload)
		if lastErr == nil {
			r.logger.Debug().Str("topic", topic).Int("attempt", attempt).Int("size", len(payload)).Msg("publish: payload sent")
			return nil
		}

		r.logger.Warn().Err(lastErr).Str("topic", topic).Int("attempt", attempt).Msg("publish: attempt failed")
		if attempt == r.attempts {
			break
		}
		if err := r.wait(ctx, r.delay); err != nil {
			return fmt.Errorf("publish: interrupted after %d attempts: %w", attempt, err)
		}
	}

	if r.dropped != nil {
		r.dropped.Add(ctx, 1)
	}
	r.logger.Error().Err(lastErr).Str("topic", topic).Int("attempts", r.attempts).Msg("publish: giving up")
	return fmt.Errorf("%w after %d attempts: %w", ErrDropped, r.attempts, lastErr)
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Message is a payload recorded by Memory.
type Message struct {
	Topic   string
	Payload []byte
}

// Memory is an in-process Publisher that records what it is given.
// Failures can be scripted with FailNext.
type Memory struct {
	mu       sync.Mutex
	messages []Message
	attempts int
	failures []error
}

// NewMemory creates an empty in-memory publisher.
func NewMemory() *Memory {
	return &Memory{}
}

// Publish records the message, or returns the next scripted failure.
func (m *Memory) Publish(ctx context.Context, topic string, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts++
	if len(m.failures) > 0 {
		err := m.failures[0]
		m.failures = m.failures[1:]
		return err
	}
	m.messages = append(m.messages, Message{Topic: topic, Payload: bytes.Clone(payload)})
	return nil
}

// FailNext makes the next n Publish calls fail with err.
func (m *Memory) FailNext(n int, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for range n {
		m.failures = append(m.failures, err)
	}
}

// Messages returns the recorded messages.
func (m *Memory) Messages() []Message {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Message(nil), m.messages...)
}

// Attempts returns how many times Publish was called.
func (m *Memory) Attempts() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.attempts
}
