package di

import (
	"os"

	"github.com/rs/zerolog"
)

// ProvideLogger creates a new zerolog.Logger configured for the runtime
// environment. NIMBUS_LOG_FORMAT=json selects JSON output for scripted use;
// the default is console format with pretty printing.
func ProvideLogger() zerolog.Logger {
	if os.Getenv("NIMBUS_LOG_FORMAT") == "json" {
		return zerolog.New(os.Stderr).
			Level(zerolog.InfoLevel).
			With().
			Timestamp().
			Logger()
	}

	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).
		Level(zerolog.InfoLevel).
		With().
		Timestamp().
		Logger()
}
