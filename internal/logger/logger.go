// Package logger provides the process-wide structured logger, built once
// and shared by every component via child loggers scoped with
// Component(name).
package logger

import (
	"os"
	"sync"

	"github.com/rs/zerolog"
)

var (
	base zerolog.Logger
	once sync.Once
)

// Init builds the default zerolog logger writing JSON to stdout. Safe to
// call repeatedly; only the first call takes effect.
func Init(debug bool) {
	once.Do(func() {
		level := zerolog.InfoLevel
		if debug {
			level = zerolog.DebugLevel
		}
		zerolog.SetGlobalLevel(level)
		base = zerolog.New(os.Stdout).With().Timestamp().Logger()
		base.Info().Msg("logger initialized")
	})
}

// Get returns the process-wide logger, initializing it at info level if
// it hasn't been initialized yet.
func Get() *zerolog.Logger {
	Init(false)
	return &base
}

// Component returns a child logger tagged with a component name, the
// pattern every package in this module uses to scope its log lines
// (e.g. logger.Component("orchestrator")).
func Component(name string) zerolog.Logger {
	return Get().With().Str("component", name).Logger()
}
