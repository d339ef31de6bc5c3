/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: run.go
Description: Run command for the Choronzon CLI. Bootstraps the initial population
from the seed directory and drives the evolutionary loop until the generation cap
is reached or the campaign is interrupted.
*/

package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RunCampaign executes the fuzzing campaign.
func RunCampaign(cmd *cobra.Command, args []string) error {
	config, err := loadConfig("")
	if err != nil {
		return err
	}
	logger, err := setupLogging(config)
	if err != nil {
		return err
	}
	engine, err := buildEngine(config, logger)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger.Infof("Starting campaign: target=%s parser=%s run_dir=%s", config.Target, config.Parser, config.RunDir)

	if err := engine.Bootstrap(ctx); err != nil {
		return err
	}
	return engine.Run(ctx)
}
