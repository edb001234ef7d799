// Package logger provides structured logging via zerolog. It builds one root
// logger per process with service-level context; components derive child
// loggers tagged with a component field.
package logger

import (
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
)

// Init creates the root logger for the given service. Output is JSON on
// stdout; when stdout is a terminal a console writer is used instead.
func Init(service, level string) zerolog.Logger {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs

	lvl := parseLevel(level)

	var log zerolog.Logger
	if isatty.IsTerminal(os.Stdout.Fd()) {
		cw := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
		log = zerolog.New(cw)
	} else {
		log = zerolog.New(os.Stdout)
	}

	return log.Level(lvl).With().
		Timestamp().
		Str("service", service).
		Logger()
}

// Component derives a child logger tagged with the given component name.
func Component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}

// Nop returns a disabled logger, used as the default in constructors so
// tests need not wire logging.
func Nop() zerolog.Logger {
	return zerolog.Nop()
}

func parseLevel(level string) zerolog.Level {
	switch strings.ToLower(level) {
	case "trace":
		return zerolog.TraceLevel
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
