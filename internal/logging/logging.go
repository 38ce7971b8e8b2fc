// Package logging provides structured logging functionality.
package logging

import (
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "hedge-lords", "logs", "hedge-lords.log"),
		MaxSize:    100,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		writers = append(writers, consoleWriter)
	}

	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	var writer io.Writer
	if len(writers) == 0 {
		writer = os.Stdout
	} else if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	zerolog.SetGlobalLevel(parseLevel(cfg.Level))

	return zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// WithService adds a service name to the logger context.
func WithService(logger zerolog.Logger, service string) zerolog.Logger {
	return logger.With().Str("service", service).Logger()
}

// WithSymbol adds a symbol to the logger context.
func WithSymbol(logger zerolog.Logger, symbol string) zerolog.Logger {
	return logger.With().Str("symbol", symbol).Logger()
}

// WithChannel adds a broadcast channel name to the logger context.
func WithChannel(logger zerolog.Logger, channel string) zerolog.Logger {
	return logger.With().Str("channel", channel).Logger()
}

// LogTickerSaved logs a persisted ticker update.
func LogTickerSaved(logger zerolog.Logger, symbol string, contractType string) {
	logger.Debug().
		Str("event", "ticker_saved").
		Str("symbol", symbol).
		Str("contract_type", contractType).
		Msg("Ticker saved")
}

// LogSubscription logs a stream subscription event.
func LogSubscription(logger zerolog.Logger, coin string, expiry string, contracts int) {
	logger.Info().
		Str("event", "subscribe").
		Str("coin", coin).
		Str("expiry", expiry).
		Int("contracts", contracts).
		Msg("Subscribed to ticker stream")
}

// LogSimulation logs a completed Monte Carlo simulation.
func LogSimulation(logger zerolog.Logger, symbol string, candles, iterations int, cached bool, duration time.Duration) {
	logger.Info().
		Str("event", "simulation").
		Str("symbol", symbol).
		Int("candles", candles).
		Int("iterations", iterations).
		Bool("cached", cached).
		Dur("duration", duration).
		Msg("Simulation ready")
}

// LogAPICall logs an exchange API call.
func LogAPICall(logger zerolog.Logger, method, endpoint string, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "api_call").
		Str("method", method).
		Str("endpoint", endpoint).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("API call failed")
	} else {
		event.Msg("API call completed")
	}
}
