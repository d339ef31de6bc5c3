/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: setup.go
Description: Shared setup helpers for the Choronzon CLI. Loads and validates the
campaign configuration, builds the logger and wires the engine from the format
plug-in and the tracer executor.
*/

package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/kleascm/choronzon/pkg/core"
	"github.com/kleascm/choronzon/pkg/execution"
	"github.com/kleascm/choronzon/pkg/interfaces"
	"github.com/kleascm/choronzon/pkg/logging"
	"github.com/kleascm/choronzon/pkg/parsers"
)

// loadConfig resolves the configuration path from the --config flag or an
// explicit argument and loads it.
func loadConfig(explicit string) (*interfaces.Config, error) {
	path := explicit
	if path == "" {
		path = viper.GetString("config")
	}
	if path == "" {
		return nil, fmt.Errorf("%w: no configuration file given (use --config)", interfaces.ErrConfig)
	}
	return core.LoadConfig(path)
}

// setupLogging builds the campaign logger from the configuration.
func setupLogging(config *interfaces.Config) (*logrus.Logger, error) {
	return logging.New(&logging.Config{
		Level: logging.LogLevel(config.LogLevel),
		File:  config.LogFile,
		JSON:  config.JSONLogs,
	})
}

// buildEngine wires the engine: format plug-in, tracer executor, corpus and
// scheduler.
func buildEngine(config *interfaces.Config, logger *logrus.Logger) (*core.Engine, error) {
	format, err := parsers.Lookup(config.Parser)
	if err != nil {
		return nil, err
	}
	executor := execution.NewTracerExecutor()
	if err := executor.Initialize(config); err != nil {
		return nil, err
	}
	return core.NewEngine(config, logger, format, executor), nil
}
