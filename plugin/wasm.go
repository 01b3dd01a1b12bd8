package plugin

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	extism "github.com/extism/go-sdk"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/joncooperworks/sentinel/device"
)

func init() {
	RegisterLoader("wasm", func() (Loader, error) {
		return NewWASMLoader(log.Logger), nil
	})
}

// WASMLoader loads Extism modules that export:
//
//	read()  -> {"ldr": <number or bool>, "pir": <bool>}
//	name()  -> driver name (optional)
//
// The host provides sensor_now_ms and sensor_log in the "env" namespace.
type WASMLoader struct {
	logger zerolog.Logger
}

// NewWASMLoader creates a WASM loader. Module log lines go to logger.
func NewWASMLoader(logger zerolog.Logger) *WASMLoader {
	return &WASMLoader{logger: logger}
}

// Load compiles and instantiates a driver module. Drivers get WASI but no
// network access.
func (wl *WASMLoader) Load(data []byte, name string) (Driver, error) {
	manifest := extism.Manifest{
		Wasm: []extism.Wasm{
			extism.WasmData{Data: data, Name: name},
		},
	}
	config := extism.PluginConfig{
		EnableWasi: true,
	}

	logger := wl.logger.With().Str("driver", name).Logger()
	hostFunctions := []extism.HostFunction{
		newNowFunction(time.Now),
		newLogFunction(logger),
	}

	ctx := context.Background()
	p, err := extism.NewPlugin(ctx, manifest, config, hostFunctions)
	if err != nil {
		return nil, fmt.Errorf("failed to create Extism plugin: %w", err)
	}

	return &WASMDriver{name: name, plugin: p}, nil
}

// WASMDriver runs a driver module. Calls are serialized: an Extism plugin
// instance is not safe for concurrent use.
type WASMDriver struct {
	name   string
	mu     sync.Mutex
	plugin *extism.Plugin
}

var _ device.SensorReader = (*WASMDriver)(nil)

// Name returns the module's exported name, or the file name.
func (wd *WASMDriver) Name() string {
	out, err := wd.call("name")
	if err == nil && len(out) > 0 {
		return string(out)
	}
	return wd.name
}

// Read calls the module's read export and decodes the reading.
func (wd *WASMDriver) Read(ctx context.Context) (device.Reading, error) {
	if err := ctx.Err(); err != nil {
		return device.Reading{}, err
	}
	out, err := wd.call("read")
	if err != nil {
		return device.Reading{}, err
	}
	return parseReading(out)
}

// Close shuts the module instance down.
func (wd *WASMDriver) Close(ctx context.Context) error {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	if wd.plugin == nil {
		return nil
	}
	err := wd.plugin.Close(ctx)
	wd.plugin = nil
	return err
}

func (wd *WASMDriver) call(function string) ([]byte, error) {
	wd.mu.Lock()
	defer wd.mu.Unlock()
	if wd.plugin == nil {
		return nil, errors.New("driver is closed")
	}

	exitCode, out, err := wd.plugin.Call(function, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to call %s: %w", function, err)
	}
	if exitCode != 0 {
		return nil, fmt.Errorf("%s returned non-zero exit code: %d", function, exitCode)
	}
	return out, nil
}

type wireReading struct {
	LDR *device.LightLevel `json:"ldr"`
	PIR *bool              `json:"pir"`
}

// parseReading decodes a read() result. Both fields are required.
func parseReading(data []byte) (device.Reading, error) {
	var w wireReading
	if err := json.Unmarshal(data, &w); err != nil {
		return device.Reading{}, fmt.Errorf("invalid driver reading: %w", err)
	}
	if w.LDR == nil || w.PIR == nil {
		return device.Reading{}, fmt.Errorf("invalid driver reading: ldr and pir are required")
	}
	return device.Reading{LDR: uint16(*w.LDR), PIR: *w.PIR}, nil
}

// newNowFunction exposes the host clock.
// WASM signature: () -> i64 unix milliseconds
func newNowFunction(now func() time.Time) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"sensor_now_ms",
		nowCallback(now),
		[]extism.ValueType{},
		[]extism.ValueType{extism.ValueTypeI64},
	)
	fn.SetNamespace("env")
	return fn
}

func nowCallback(now func() time.Time) extism.HostFunctionStackCallback {
	return func(_ context.Context, _ *extism.CurrentPlugin, stack []uint64) {
		stack[0] = uint64(now().UnixMilli())
	}
}

// newLogFunction forwards driver diagnostics to the agent's logger.
// WASM signature: (i64 msg_offset) -> ()
func newLogFunction(logger zerolog.Logger) extism.HostFunction {
	fn := extism.NewHostFunctionWithStack(
		"sensor_log",
		func(_ context.Context, p *extism.CurrentPlugin, stack []uint64) {
			msg, err := p.ReadString(stack[0])
			if err != nil {
				logger.Warn().Err(err).Msg("sensor_log: failed to read message")
				return
			}
			logger.Debug().Msg(msg)
		},
		[]extism.ValueType{extism.ValueTypeI64},
		[]extism.ValueType{},
	)
	fn.SetNamespace("env")
	return fn
}
