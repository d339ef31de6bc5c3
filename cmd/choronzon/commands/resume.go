/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: resume.go
Description: Resume command for the Choronzon CLI. Restores corpus, coverage map
and PRNG state from the latest checkpoint and continues the campaign.
*/

package commands

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

// RunResume continues a campaign from its latest checkpoint.
func RunResume(cmd *cobra.Command, args []string) error {
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

	if err := engine.Resume(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return engine.Run(ctx)
}
