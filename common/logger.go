package common

import (
	"time"

	"github.com/sirupsen/logrus"
)

// LoggerConfig controls the behavior of the shared logger.
type LoggerConfig struct {
	Level      string // debug, info, warn, error
	Format     string // "json" or "text"
	TimeFormat string
}

// DefaultLoggerConfig returns the configuration used when none is supplied.
func DefaultLoggerConfig() LoggerConfig {
	return LoggerConfig{
		Level:      "info",
		Format:     "text",
		TimeFormat: time.RFC3339,
	}
}

// ConfigureLogger applies a LoggerConfig to the shared Logger. Called once by
// main after settings are loaded; safe to call again in tests.
func ConfigureLogger(cfg LoggerConfig) {
	switch cfg.Level {
	case "debug":
		Logger.SetLevel(logrus.DebugLevel)
	case "warn":
		Logger.SetLevel(logrus.WarnLevel)
	case "error":
		Logger.SetLevel(logrus.ErrorLevel)
	default:
		Logger.SetLevel(logrus.InfoLevel)
	}

	timeFormat := cfg.TimeFormat
	if timeFormat == "" {
		timeFormat = time.RFC3339
	}

	if cfg.Format == "json" {
		Logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: timeFormat})
	} else {
		Logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: timeFormat,
		})
	}
}

// WithCorrelation returns an entry carrying the request correlation id. Every
// log line produced while serving a turn should hang off one of these.
func WithCorrelation(correlationID string) *logrus.Entry {
	return Logger.WithField("correlation_id", correlationID)
}

// MaskSecret masks sensitive strings for safe logging. Shows the first and
// last 4 characters for strings longer than 8 characters, "***" for short
// strings and "<not set>" for empty strings.
func MaskSecret(secret string) string {
	if secret == "" {
		return "<not set>"
	}
	if len(secret) <= 8 {
		return "***"
	}
	return secret[:4] + "..." + secret[len(secret)-4:]
}
