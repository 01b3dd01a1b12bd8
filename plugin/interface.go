// Package plugin loads sensor drivers for the device agent.
//
// A driver owns the hardware side of a device: it samples the light and
// motion sensors and returns one reading per call. Drivers are shipped as
// compiled modules and picked by type through a registry, so a gateway can
// swap sensor hardware without rebuilding the agent.
package plugin

import (
	"context"

	"github.com/joncooperworks/sentinel/device"
)

// Driver supplies sensor readings. It satisfies device.SensorReader.
type Driver interface {
	// Name returns the driver name, as reported by the module when it exports one.
	Name() string

	// Read samples both sensors once.
	Read(ctx context.Context) (device.Reading, error)

	// Close releases the module instance.
	Close(ctx context.Context) error
}

// Loader instantiates drivers of one module type.
type Loader interface {
	Load(data []byte, name string) (Driver, error)
}
