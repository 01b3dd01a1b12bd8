// Package logging configures zerolog for the sentinel processes.
package logging

import (
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// New returns a JSON logger writing to w with timestamps, filtered at level.
func New(w io.Writer, level string) (zerolog.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return zerolog.Nop(), err
	}
	return zerolog.New(w).
		Level(lvl).
		With().
		Timestamp().
		Logger(), nil
}

// Init installs a stdout logger as the global log.Logger.
func Init(level string) error {
	logger, err := New(os.Stdout, level)
	if err != nil {
		return err
	}
	log.Logger = logger.With().Stack().Logger()
	return nil
}

// ParseLevel parses a zerolog level name. An empty string means info.
func ParseLevel(level string) (zerolog.Level, error) {
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("logging: failed to parse log level of %s: %w", level, err)
	}
	return lvl, nil
}
