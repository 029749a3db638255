// Package logging configures zerolog the way
// adred-codev-ws_poc/ws/internal/shared/monitoring/logger.go does: a single
// constructor picking console-pretty vs JSON output, plus a panic-recovery
// helper every long-running goroutine defers.
package logging

import (
	"os"
	"time"

	"github.com/rs/zerolog"
)

// Options configures the root logger.
type Options struct {
	Level  string // debug|info|warn|error
	Format string // console|json
}

// New builds the root logger for the process.
func New(opts Options) zerolog.Logger {
	level, err := zerolog.ParseLevel(opts.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	var writer = os.Stdout
	if opts.Format == "console" {
		console := zerolog.ConsoleWriter{Out: writer, TimeFormat: time.RFC3339}
		return zerolog.New(console).With().Timestamp().Logger()
	}
	return zerolog.New(writer).With().Timestamp().Logger()
}

// RecoverPanic should be deferred at the top of every long-running
// goroutine (analyzer loops, the log-stream reader, periodic pollers) so a
// single panic is logged and kills only that goroutine, not the process.
func RecoverPanic(logger *zerolog.Logger, component string) {
	if r := recover(); r != nil {
		logger.Error().
			Str("component", component).
			Interface("panic", r).
			Msg("recovered from panic")
	}
}
