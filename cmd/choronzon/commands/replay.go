/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: replay.go
Description: Replay command for the Choronzon CLI. Re-executes one corpus member
deterministically and reports its coverage and termination reason.
*/

package commands

import (
	"fmt"

	"github.com/spf13/cobra"
)

// RunReplay re-executes a corpus member by ID.
func RunReplay(cmd *cobra.Command, args []string) error {
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

	result, err := engine.Replay(args[0])
	if err != nil {
		return err
	}

	fmt.Printf("id:          %s\n", args[0])
	fmt.Printf("blocks:      %d\n", len(result.Coverage))
	fmt.Printf("termination: %s\n", result.Termination)
	fmt.Printf("duration:    %s\n", result.Duration)
	return nil
}
