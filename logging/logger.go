// Package logging wraps zerolog behind the component logger used across
// the node. Output goes to the console and, when a log directory is
// configured, to a daily file alongside it.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// ComponentLogger provides structured logging for one node component.
type ComponentLogger struct {
	logger    zerolog.Logger
	component string
	version   string
}

// New creates a component logger. logDir may be empty to log to the
// console only; otherwise a bank_YYYYMMDD.log file is appended to in that
// directory.
func New(component, version, level, logDir string) (*ComponentLogger, error) {
	console := zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	}

	var out io.Writer = console
	if logDir != "" {
		if err := os.MkdirAll(logDir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		name := filepath.Join(logDir, "bank_"+time.Now().Format("20060102")+".log")
		file, err := os.OpenFile(name, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, fmt.Errorf("failed to open log file: %w", err)
		}
		out = zerolog.MultiLevelWriter(console, file)
	}

	logger := zerolog.New(out).
		With().
		Timestamp().
		Str("component", component).
		Str("version", version).
		Logger()

	SetLevel(level)

	return &ComponentLogger{
		logger:    logger,
		component: component,
		version:   version,
	}, nil
}

// Info returns an info level event.
func (cl *ComponentLogger) Info() *zerolog.Event {
	return cl.logger.Info()
}

// Debug returns a debug level event.
func (cl *ComponentLogger) Debug() *zerolog.Event {
	return cl.logger.Debug()
}

// Warn returns a warn level event.
func (cl *ComponentLogger) Warn() *zerolog.Event {
	return cl.logger.Warn()
}

// Error returns an error level event.
func (cl *ComponentLogger) Error() *zerolog.Event {
	return cl.logger.Error()
}

// Fatal returns a fatal level event.
func (cl *ComponentLogger) Fatal() *zerolog.Event {
	return cl.logger.Fatal()
}

// With creates a child logger context.
func (cl *ComponentLogger) With() zerolog.Context {
	return cl.logger.With()
}

// Sub returns a child logger for a subsystem of this component.
func (cl *ComponentLogger) Sub(name string) *ComponentLogger {
	return &ComponentLogger{
		logger:    cl.logger.With().Str("subsystem", name).Logger(),
		component: cl.component,
		version:   cl.version,
	}
}

// GetLogger returns the underlying zerolog logger.
func (cl *ComponentLogger) GetLogger() zerolog.Logger {
	return cl.logger
}

// SetLevel sets the global logging level.
func SetLevel(level string) {
	switch level {
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info", "":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn", "warning":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
