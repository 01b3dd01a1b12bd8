// Package device implements the sensor side: sample the LDR and PIR sensors,
// decide whether the change is worth reporting, seal the reading and hand the
// envelope to a publisher.
package device

import (
	"bytes"
	"fmt"
	"math"

	"github.com/goccy/go-json"
)

// Telemetry is the plaintext record sealed into every envelope.
type Telemetry struct {
	DeviceID    string     `json:"device_id"`
	TimestampMs uint64     `json:"timestamp_ms"`
	LDR         LightLevel `json:"ldr"`
	PIR         bool       `json:"pir"`
}

// LightLevel is a raw LDR reading.
//
// Devices that only carry a digital light sensor report a boolean; it decodes
// as 1 (light) or 0 (dark). Numbers outside the 16-bit ADC range are rejected.
type LightLevel uint16

func (l *LightLevel) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)

	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		if b {
			*l = 1
		} else {
			*l = 0
		}
		return nil
	}

	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("ldr must be a number or a boolean: %w", err)
	}
	if n < 0 || n > math.MaxUint16 || n != math.Trunc(n) {
		return fmt.Errorf("ldr value %v out of range", n)
	}
	*l = LightLevel(n)
	return nil
}

// Encode returns the JSON encoding of t.
func (t Telemetry) Encode() ([]byte, error) {
	return json.Marshal(t)
}

// DecodeTelemetry parses a telemetry record. A record without a device_id is
// rejected.
func DecodeTelemetry(data []byte) (*Telemetry, error) {
	t := new(Telemetry)
	if err := json.Unmarshal(data, t); err != nil {
		return nil, fmt.Errorf("failed to decode telemetry: %w", err)
	}
	if t.DeviceID == "" {
		return nil, fmt.Errorf("failed to decode telemetry: missing device_id")
	}
	return t, nil
}
