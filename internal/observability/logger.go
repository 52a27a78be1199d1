// Package observability builds the zap loggers shared by the CLI, the HTTP
// gateway and the storage clients.
package observability

import (
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// CLILogger is the human-facing logger used by commands. It writes to stderr
// so stdout stays reserved for JSONL records.
var CLILogger = zap.NewNop()

// ServerLogger is the structured logger used by the HTTP gateway.
var ServerLogger = zap.NewNop()

// InitCLILogger replaces CLILogger with a console logger. verbose enables
// debug output, including storage client diagnostics.
func InitCLILogger(serviceName string, verbose bool) {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	enc := zap.NewDevelopmentEncoderConfig()
	enc.TimeKey = ""
	enc.CallerKey = ""
	enc.NameKey = ""
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder

	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(os.Stderr), level)
	CLILogger = zap.New(core).Named(serviceName)
}

// InitServerLogger replaces ServerLogger with the logger configured by level
// and format.
func InitServerLogger(serviceName, level, format string) error {
	l, err := NewLogger(level, format)
	if err != nil {
		return err
	}
	ServerLogger = l.With(zap.String("service", serviceName))
	return nil
}

// NewLogger creates a zap logger. format is "json" (default) or "console";
// level is any zap level name.
func NewLogger(level, format string) (*zap.Logger, error) {
	var config zap.Config

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}

	if lvl == zapcore.DebugLevel {
		config = zap.NewDevelopmentConfig()
	} else {
		config = zap.NewProductionConfig()
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	// Set format based on configuration
	switch format {
	case "console":
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		config.DisableStacktrace = true
	case "", "json":
		config.Encoding = "json"
	default:
		return nil, fmt.Errorf("invalid log format %q", format)
	}

	config.EncoderConfig.LevelKey = "level"
	config.EncoderConfig.TimeKey = "time"
	config.EncoderConfig.MessageKey = "message"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	config.OutputPaths = []string{"stderr"}

	return config.Build()
}

// Sync flushes both package loggers.
func Sync() {
	_ = CLILogger.Sync()
	_ = ServerLogger.Sync()
}
