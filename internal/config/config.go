// Package config loads process configuration for the device agent and the
// broker: defaults, then an optional JSON file, then environment overrides.
package config

import (
	"bytes"
	"encoding/base64"
	"fmt"
	"os"
	"time"

	"github.com/goccy/go-json"

	"github.com/joncooperworks/sentinel/crypto"
)

// DefaultTopic is the MQTT topic carrying encrypted telemetry.
const DefaultTopic = "esp32/kriptografi/encrypted/ldr-pir"

// Environment variables read by Load*.
const (
	EnvDeviceID        = "SENTINEL_DEVICE_ID"
	EnvServerPublicKey = "SERVER_PUBLIC_KEY"
	EnvBrokerURL       = "SENTINEL_MQTT_BROKER"
	EnvClientID        = "SENTINEL_MQTT_CLIENT_ID"
	EnvUsername        = "SENTINEL_MQTT_USERNAME"
	EnvPassword        = "SENTINEL_MQTT_PASSWORD"
	EnvTopic           = "SENTINEL_TOPIC"
	EnvKeystore        = "SENTINEL_KEYSTORE"
	EnvKeyID           = "SENTINEL_KEY_ID"
	EnvLogLevel        = "SENTINEL_LOG_LEVEL"
)

// Duration is a time.Duration that decodes from JSON as either a Go duration
// string ("10s") or an integer number of milliseconds.
type Duration time.Duration

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Duration) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}

	var ms int64
	if err := json.Unmarshal(data, &ms); err != nil {
		return fmt.Errorf("duration must be a string or milliseconds: %w", err)
	}
	*d = Duration(time.Duration(ms) * time.Millisecond)
	return nil
}

// MQTT holds broker connection settings.
type MQTT struct {
	BrokerURL string `json:"broker_url"`
	ClientID  string `json:"client_id"`
	Username  string `json:"username,omitempty"`
	Password  string `json:"password,omitempty"`
}

// Keystore selects where the broker's private key lives.
type Keystore struct {
	Backend string `json:"backend"`
	KeyID   string `json:"key_id"`
}

// Device configures the sensor agent.
type Device struct {
	DeviceID        string   `json:"device_id"`
	ServerPublicKey string   `json:"server_public_key"`
	MQTT            MQTT     `json:"mqtt"`
	Topic           string   `json:"topic"`
	SendInterval    Duration `json:"send_interval"`
	LDRThreshold    uint16   `json:"ldr_threshold"`
	PollInterval    Duration `json:"poll_interval"`
	PublishAttempts int      `json:"publish_attempts"`
	PublishDelay    Duration `json:"publish_delay"`
	LogLevel        string   `json:"log_level"`
}

// Broker configures the telemetry subscriber.
type Broker struct {
	MQTT     MQTT     `json:"mqtt"`
	Topic    string   `json:"topic"`
	Keystore Keystore `json:"keystore"`
	LogLevel string   `json:"log_level"`
}

// DefaultDevice returns the device defaults.
func DefaultDevice() Device {
	return Device{
		DeviceID:        "esp32-device-001",
		MQTT:            MQTT{BrokerURL: "tcp://localhost:1883", ClientID: "esp32-device-001"},
		Topic:           DefaultTopic,
		SendInterval:    Duration(10 * time.Second),
		LDRThreshold:    50,
		PollInterval:    Duration(200 * time.Millisecond),
		PublishAttempts: 3,
		PublishDelay:    Duration(500 * time.Millisecond),
		LogLevel:        "info",
	}
}

// DefaultBroker returns the broker defaults.
func DefaultBroker() Broker {
	return Broker{
		MQTT:     MQTT{BrokerURL: "tcp://localhost:1883", ClientID: "sentinel-broker"},
		Topic:    DefaultTopic,
		Keystore: Keystore{Backend: "env", KeyID: "PRIVATE_KEY"},
		LogLevel: "info",
	}
}

// LoadDevice reads device configuration. path may be empty.
func LoadDevice(path string) (Device, error) {
	cfg := DefaultDevice()
	if err := readFile(path, &cfg); err != nil {
		return Device{}, err
	}

	overlay(&cfg.DeviceID, EnvDeviceID)
	overlay(&cfg.ServerPublicKey, EnvServerPublicKey)
	overlayMQTT(&cfg.MQTT)
	overlay(&cfg.Topic, EnvTopic)
	overlay(&cfg.LogLevel, EnvLogLevel)

	if err := cfg.Validate(); err != nil {
		return Device{}, err
	}
	return cfg, nil
}

// LoadBroker reads broker configuration. path may be empty.
func LoadBroker(path string) (Broker, error) {
	cfg := DefaultBroker()
	if err := readFile(path, &cfg); err != nil {
		return Broker{}, err
	}

	overlayMQTT(&cfg.MQTT)
	overlay(&cfg.Topic, EnvTopic)
	overlay(&cfg.Keystore.Backend, EnvKeystore)
	overlay(&cfg.Keystore.KeyID, EnvKeyID)
	overlay(&cfg.LogLevel, EnvLogLevel)

	if err := cfg.Validate(); err != nil {
		return Broker{}, err
	}
	return cfg, nil
}

// Validate checks the device settings. Key material problems wrap
// crypto.ErrConfiguration.
func (d Device) Validate() error {
	if d.DeviceID == "" {
		return fmt.Errorf("config: device_id is required")
	}
	if _, err := d.PeerPublicKey(); err != nil {
		return err
	}
	if err := validateMQTT(d.MQTT, d.Topic); err != nil {
		return err
	}
	// A zero send_interval disables the periodic send; only changes are reported.
	if d.SendInterval < 0 {
		return fmt.Errorf("config: send_interval cannot be negative")
	}
	if d.PollInterval <= 0 {
		return fmt.Errorf("config: poll_interval must be positive")
	}
	if d.PublishAttempts < 1 {
		return fmt.Errorf("config: publish_attempts must be at least 1, got %d", d.PublishAttempts)
	}
	if d.PublishDelay < 0 {
		return fmt.Errorf("config: publish_delay cannot be negative")
	}
	return nil
}

// PeerPublicKey decodes the base64 server public key.
func (d Device) PeerPublicKey() ([crypto.KeySize]byte, error) {
	var key [crypto.KeySize]byte
	if d.ServerPublicKey == "" {
		return key, fmt.Errorf("%w: server public key is not set (%s)", crypto.ErrConfiguration, EnvServerPublicKey)
	}
	raw, err := base64.StdEncoding.DecodeString(d.ServerPublicKey)
	if err != nil {
		return key, fmt.Errorf("%w: server public key is not valid base64: %v", crypto.ErrConfiguration, err)
	}
	if len(raw) != crypto.KeySize {
		return key, fmt.Errorf("%w: server public key must be %d bytes, got %d", crypto.ErrConfiguration, crypto.KeySize, len(raw))
	}
	copy(key[:], raw)
	return key, nil
}

// Validate checks the broker settings.
func (b Broker) Validate() error {
	if b.Keystore.Backend == "" {
		return fmt.Errorf("config: keystore.backend is required")
	}
	return validateMQTT(b.MQTT, b.Topic)
}

func validateMQTT(m MQTT, topic string) error {
	if m.BrokerURL == "" {
		return fmt.Errorf("config: mqtt.broker_url is required")
	}
	if m.ClientID == "" {
		return fmt.Errorf("config: mqtt.client_id is required")
	}
	if topic == "" {
		return fmt.Errorf("config: topic is required")
	}
	return nil
}

func readFile(path string, v any) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("config: cannot read file %s: %w", path, err)
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("config: failed to parse %s: %w", path, err)
	}
	return nil
}

func overlay(dst *string, name string) {
	if v, ok := os.LookupEnv(name); ok && v != "" {
		*dst = v
	}
}

func overlayMQTT(m *MQTT) {
	overlay(&m.BrokerURL, EnvBrokerURL)
	overlay(&m.ClientID, EnvClientID)
	overlay(&m.Username, EnvUsername)
	overlay(&m.Password, EnvPassword)
}
