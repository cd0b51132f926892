// Package xlog wraps zerolog with the field set this store's components
// care about: a connection id and a transaction id, rather than the cluster
// node/service/task fields a different kind of server would attach.
package xlog

import (
	"io"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Logger is the global logger instance, configured once by Init.
var Logger zerolog.Logger

// Level names a logging verbosity, independent of zerolog's own type so
// callers (CLI flags, config files) never need to import zerolog directly.
type Level string

const (
	DebugLevel Level = "debug"
	InfoLevel  Level = "info"
	WarnLevel  Level = "warn"
	ErrorLevel Level = "error"
)

// Config holds logging configuration.
type Config struct {
	Level      Level
	JSONOutput bool
	Output     io.Writer
}

// Init initializes the global logger from cfg.
func Init(cfg Config) {
	var level zerolog.Level
	switch cfg.Level {
	case DebugLevel:
		level = zerolog.DebugLevel
	case WarnLevel:
		level = zerolog.WarnLevel
	case ErrorLevel:
		level = zerolog.ErrorLevel
	default:
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	output := cfg.Output
	if output == nil {
		output = os.Stdout
	}

	if cfg.JSONOutput {
		Logger = zerolog.New(output).With().Timestamp().Logger()
	} else {
		Logger = zerolog.New(zerolog.ConsoleWriter{
			Out:        output,
			TimeFormat: time.RFC3339,
		}).With().Timestamp().Logger()
	}
}

// WithConn returns a child logger tagging every entry with a connection's
// correlation id.
func WithConn(id uuid.UUID) zerolog.Logger {
	return Logger.With().Str("conn_id", id.String()).Logger()
}

// WithTxn returns a child logger additionally tagging entries with a
// transaction id.
func WithTxn(logger zerolog.Logger, txnID uint64) zerolog.Logger {
	return logger.With().Uint64("txn_id", txnID).Logger()
}
