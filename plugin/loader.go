package plugin

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// LoadFile reads a driver module from path and loads it with the loader
// registered for driverType. An empty driverType is inferred from the file
// extension, so "ldr.wasm" selects "wasm".
func LoadFile(path, driverType string) (Driver, error) {
	if driverType == "" {
		driverType = strings.TrimPrefix(filepath.Ext(path), ".")
		if driverType == "" {
			return nil, fmt.Errorf("cannot infer driver type of %s: no file extension", path)
		}
	}

	factory, err := GetLoaderFactory(driverType)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read driver module: %w", err)
	}
	loader, err := factory()
	if err != nil {
		return nil, fmt.Errorf("failed to create %s loader: %w", driverType, err)
	}

	name := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	return loader.Load(data, name)
}
