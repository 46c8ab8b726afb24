package shared

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// SetupLogger returns a console logger, or a JSON logger when structured is
// set, at the given level.
func SetupLogger(level zerolog.Level, structured bool) zerolog.Logger {
	if structured {
		zerolog.TimeFieldFormat = time.RFC3339Nano
		return zerolog.New(os.Stderr).
			Level(level).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(level).
		With().
		Timestamp().
		Logger()
}

// ParseLevel resolves a level name, falling back to info when debug is unset
// and name is empty.
func ParseLevel(name string, debug bool) (zerolog.Level, error) {
	if debug {
		return zerolog.DebugLevel, nil
	}
	if name == "" {
		return zerolog.InfoLevel, nil
	}
	return zerolog.ParseLevel(name)
}
