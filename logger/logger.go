package logger

import (
	"os"

	"github.com/axiagw/gateway/config"
	"github.com/rs/zerolog"
)

// New returns a configured zerolog.Logger. JSON output in production,
// a human-readable console writer otherwise.
func New(cfg *config.Config) zerolog.Logger {
	var out zerolog.ConsoleWriter
	var log zerolog.Logger

	lvl, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	if cfg.IsDevelopment() {
		lvl = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(lvl)

	if cfg.IsProduction() {
		log = zerolog.New(os.Stderr).With().Timestamp().Logger()
		return log
	}

	out = zerolog.ConsoleWriter{Out: os.Stderr}
	log = zerolog.New(out).With().Timestamp().Logger()
	return log
}
