package broker

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/go-cmp/cmp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/joncooperworks/sentinel/crypto"
	"github.com/joncooperworks/sentinel/crypto/keystore"
	"github.com/joncooperworks/sentinel/device"
	"github.com/joncooperworks/sentinel/envelope"
	"github.com/joncooperworks/sentinel/gateway"
	"github.com/joncooperworks/sentinel/internal/mqtttest"
	"github.com/joncooperworks/sentinel/publish"
)

const vectorPayload = `{
    "ciphertext": "+cF4V6z9OnbolyT+5Z2DrHuox+PRuqwX/TaUPIVryUqjRTm0Pc9/GXlbNJG0XwnyRsXr1fUsx6XlwKDwGsTettEGie2ld7U58EI4/pFzq20IIO6w4jRxgkDkn9iix8lfw1J9Ew==",
    "header": {
        "algorithm": "X25519+HKDF-SHA256+ASCON128",
        "ephemeral_public_key": "25ru/9JtiE5b0cUHHDHoRqNlnxRBlLhQKoQ5vxX3tE8="
    },
    "nonce": "6wg6L5GxAAABmrpvISEADg=="
}`

const vectorPrivateHex = "4174bee44869f6672f32daed3ca7dd10b8a8141813df58ebfc00dda0563cfbc1"

type sample struct {
	Name  string
	Value int64
	Attrs map[string]string
}

// recordingMeter captures gauge and counter values.
type recordingMeter struct {
	noop.Meter
	mu      sync.Mutex
	samples []sample
}

func (m *recordingMeter) record(name string, v int64, set attribute.Set) {
	attrs := make(map[string]string)
	iter := set.Iter()
	for iter.Next() {
		kv := iter.Attribute()
		attrs[string(kv.Key)] = kv.Value.Emit()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.samples = append(m.samples, sample{Name: name, Value: v, Attrs: attrs})
}

func (m *recordingMeter) Samples() []sample {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sample(nil), m.samples...)
}

func (m *recordingMeter) Int64Gauge(name string, _ ...metric.Int64GaugeOption) (metric.Int64Gauge, error) {
	return recordingGauge{name: name, m: m}, nil
}

func (m *recordingMeter) Int64Counter(name string, _ ...metric.Int64CounterOption) (metric.Int64Counter, error) {
	return recordingCounter{name: name, m: m}, nil
}

type recordingGauge struct {
	noop.Int64Gauge
	name string
	m    *recordingMeter
}

func (g recordingGauge) Record(_ context.Context, v int64, opts ...metric.RecordOption) {
	g.m.record(g.name, v, metric.NewRecordConfig(opts).Attributes())
}

type recordingCounter struct {
	noop.Int64Counter
	name string
	m    *recordingMeter
}

func (c recordingCounter) Add(_ context.Context, v int64, opts ...metric.AddOption) {
	c.m.record(c.name, v, metric.NewAddConfig(opts).Attributes())
}

func vectorGateway(t *testing.T) *gateway.Gateway {
	t.Helper()
	key, err := keystore.ParseHexKey(vectorPrivateHex)
	if err != nil {
		t.Fatalf("ParseHexKey() failed: %v", err)
	}
	ks := keystore.NewMemoryKeystore()
	_ = ks.SetPrivateKey("broker", key)
	return gateway.New(keystore.NewKeyHolder(ks, "broker"))
}

func newHandler(t *testing.T, g *gateway.Gateway) (*Handler, *recordingMeter) {
	t.Helper()
	meter := &recordingMeter{}
	h, err := NewHandler(g, WithMeter(meter))
	if err != nil {
		t.Fatalf("NewHandler() failed: %v", err)
	}
	return h, meter
}

func TestHandleVector(t *testing.T) {
	h, meter := newHandler(t, vectorGateway(t))

	reading, err := h.Handle(context.Background(), []byte(vectorPayload))
	if err != nil {
		t.Fatalf("Handle() failed: %v", err)
	}

	want := &device.Telemetry{DeviceID: "esp32-device-001", TimestampMs: 1764064436513, LDR: 1, PIR: false}
	if diff := cmp.Diff(want, reading); diff != "" {
		t.Errorf("Handle() mismatch (-want +got):\n%s", diff)
	}

	wantSamples := []sample{
		{Name: "sensors.ldr", Value: 1, Attrs: map[string]string{"device_id": "esp32-device-001"}},
		{Name: "sensors.pir", Value: 0, Attrs: map[string]string{"device_id": "esp32-device-001"}},
	}
	if diff := cmp.Diff(wantSamples, meter.Samples()); diff != "" {
		t.Errorf("samples mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleFailures(t *testing.T) {
	other, _ := crypto.GenerateKeyPair(rand.Reader)
	ks := keystore.NewMemoryKeystore()
	_ = ks.SetPrivateKey("k", other.Secret)
	wrongKey := gateway.New(keystore.NewKeyHolder(ks, "k"))

	server, _ := crypto.GenerateKeyPair(rand.Reader)
	serverStore := keystore.NewMemoryKeystore()
	_ = serverStore.SetPrivateKey("k", server.Secret)
	sealer, _ := crypto.NewSealer(server.Public)
	env, _ := sealer.Seal([]byte(`{"ldr":1}`), 1)
	noDeviceID, _ := envelope.Encode(env)

	tests := []struct {
		name    string
		gateway *gateway.Gateway
		payload string
		stage   string
		wantErr error
	}{
		{"not json", vectorGateway(t), "garbage", StageDecode, envelope.ErrMalformed},
		{"missing nonce", vectorGateway(t), `{"header":{"ephemeral_public_key":"25ru/9JtiE5b0cUHHDHoRqNlnxRBlLhQKoQ5vxX3tE8="},"ciphertext":"AAAA"}`, StageDecode, envelope.ErrMalformed},
		{"wrong key", wrongKey, vectorPayload, StageDecrypt, gateway.ErrDecrypt},
		{"not telemetry", gateway.New(keystore.NewKeyHolder(serverStore, "k")), string(noDeviceID), StageTelemetry, nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h, meter := newHandler(t, tc.gateway)

			reading, err := h.Handle(context.Background(), []byte(tc.payload))
			if err == nil {
				t.Fatal("Handle() should fail")
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Errorf("Handle() error = %v, want %v", err, tc.wantErr)
			}
			if tc.stage == StageDecode && !errors.Is(err, crypto.ErrMalformedInput) {
				t.Errorf("Handle() error = %v, want %v", err, crypto.ErrMalformedInput)
			}
			if reading != nil {
				t.Errorf("Handle() returned a reading on error: %+v", reading)
			}

			want := []sample{{Name: "sensors.failures", Value: 1, Attrs: map[string]string{"stage": tc.stage}}}
			if diff := cmp.Diff(want, meter.Samples()); diff != "" {
				t.Errorf("samples mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestNewHandlerRequiresGateway(t *testing.T) {
	if _, err := NewHandler(nil); err == nil {
		t.Error("NewHandler(nil) should fail")
	}
}

func TestNewHandlerDefaultMeter(t *testing.T) {
	h, err := NewHandler(vectorGateway(t))
	if err != nil {
		t.Fatalf("NewHandler() failed: %v", err)
	}
	if _, err := h.Handle(context.Background(), []byte(vectorPayload)); err != nil {
		t.Errorf("Handle() with the global meter failed: %v", err)
	}
}

func TestSubscribeEndToEnd(t *testing.T) {
	server, _ := crypto.GenerateKeyPair(rand.Reader)
	ks := keystore.NewMemoryKeystore()
	_ = ks.SetPrivateKey(keystore.DefaultKeyID, server.Secret)
	h, meter := newHandler(t, gateway.New(keystore.NewKeyHolder(ks, "")))

	client := mqtttest.NewClient()
	ctx := context.Background()
	if err := Subscribe(ctx, client, "telemetry", h); err != nil {
		t.Fatalf("Subscribe() failed: %v", err)
	}

	sealer, err := crypto.NewSealer(server.Public)
	if err != nil {
		t.Fatalf("NewSealer() failed: %v", err)
	}
	sensor := device.NewSimulatedSensor(1)
	agent := device.NewAgent(device.AgentConfig{
		DeviceID:     "esp32-device-001",
		Topic:        "telemetry",
		LDRThreshold: 50,
		SendInterval: 10 * time.Second,
	}, sealer, sensor, publish.NewRetrying(publish.NewMQTTPublisher(client), 3, 0), nil)

	if sent, err := agent.Step(ctx); err != nil || !sent {
		t.Fatalf("Step() = (%v, %v), want (true, nil)", sent, err)
	}

	samples := meter.Samples()
	if len(samples) != 2 {
		t.Fatalf("got %d samples, want 2: %+v", len(samples), samples)
	}
	if samples[0].Name != "sensors.ldr" || samples[1].Name != "sensors.pir" {
		t.Errorf("unexpected instruments: %+v", samples)
	}
	if samples[0].Attrs["device_id"] != "esp32-device-001" {
		t.Errorf("device_id attribute = %q", samples[0].Attrs["device_id"])
	}
}

func TestSubscribeFailure(t *testing.T) {
	h, _ := newHandler(t, vectorGateway(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	client := &blockingClient{Client: mqtttest.NewClient()}
	if err := Subscribe(ctx, client, "t", h); !errors.Is(err, context.Canceled) {
		t.Errorf("Subscribe() error = %v, want %v", err, context.Canceled)
	}
}

// blockingClient never completes a subscription.
type blockingClient struct {
	*mqtttest.Client
}

func (c *blockingClient) Subscribe(string, byte, mqtt.MessageHandler) mqtt.Token {
	return pendingToken{}
}

type pendingToken struct{}

func (pendingToken) Wait() bool                     { return false }
func (pendingToken) WaitTimeout(time.Duration) bool { return false }
func (pendingToken) Done() <-chan struct{}          { return nil }
func (pendingToken) Error() error                   { return nil }
