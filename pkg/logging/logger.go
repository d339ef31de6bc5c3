/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: logger.go
Description: Logging setup for the Choronzon fuzzer. Provides structured logging
with logrus: level parsing, text or JSON formatting and an optional run log file.
*/

package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// LogLevel represents the logging level.
type LogLevel string

const (
	LogLevelDebug   LogLevel = "debug"
	LogLevelInfo    LogLevel = "info"
	LogLevelWarning LogLevel = "warn"
	LogLevelError   LogLevel = "error"
)

// Config holds the configuration for the logger.
type Config struct {
	Level LogLevel `json:"level"`
	File  string   `json:"file"` // Empty = stderr only
	JSON  bool     `json:"json"`
}

// Validate checks the Config for invalid values.
func (c *Config) Validate() error {
	switch c.Level {
	case LogLevelDebug, LogLevelInfo, LogLevelWarning, LogLevelError, "":
	default:
		return fmt.Errorf("unsupported log level: %s", c.Level)
	}
	return nil
}

// New creates a configured logrus logger. When a log file is set the logger
// writes to both stderr and the file.
func New(config *Config) (*logrus.Logger, error) {
	if config == nil {
		config = &Config{Level: LogLevelInfo}
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := logrus.New()

	level, err := logrus.ParseLevel(string(config.Level))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if config.JSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}

	if config.File != "" {
		if err := os.MkdirAll(filepath.Dir(config.File), 0o755); err != nil {
			return nil, fmt.Errorf("create log directory: %w", err)
		}
		file, err := os.OpenFile(config.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file: %w", err)
		}
		logger.SetOutput(io.MultiWriter(os.Stderr, file))
	}

	return logger, nil
}
