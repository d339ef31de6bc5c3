/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: main.go
Description: Command-line interface for the Choronzon fuzzer. Provides the init,
run, resume and replay subcommands with configuration management and exit codes
that scripts can rely on: 0 success, 1 configuration error, 2 tracer error budget
exceeded, 130 interrupted.
*/

package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/kleascm/choronzon/cmd/choronzon/commands"
	"github.com/kleascm/choronzon/pkg/interfaces"
)

var configFile string

func main() {
	rootCmd := &cobra.Command{
		Use:   "choronzon",
		Short: "Choronzon - evolutionary knowledge-based file-format fuzzer",
		Long: `Choronzon is an evolutionary, knowledge-based file-format fuzzer. It keeps a
population of structurally parsed inputs, recombines and mutates their gene
trees, executes the target under a coverage tracer and evolves the population
against a code-coverage fitness signal.`,
		Version:       "1.0.0",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "Campaign configuration file")
	viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	initCmd := &cobra.Command{
		Use:   "init <config>",
		Short: "Validate a configuration and prepare the run directory",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunInit,
	}
	rootCmd.AddCommand(initCmd)

	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run the campaign until interrupted or the generation cap",
		Long: `Run the evolutionary loop: select parents, vary, execute under the tracer,
score and admit. A checkpoint is written at every generation boundary; an
interrupt finishes the current trial, flushes state and exits.`,
		RunE: commands.RunCampaign,
	}
	rootCmd.AddCommand(runCmd)

	resumeCmd := &cobra.Command{
		Use:   "resume",
		Short: "Continue a campaign from the latest checkpoint",
		RunE:  commands.RunResume,
	}
	rootCmd.AddCommand(resumeCmd)

	replayCmd := &cobra.Command{
		Use:   "replay <id>",
		Short: "Deterministically re-execute a corpus member",
		Args:  cobra.ExactArgs(1),
		RunE:  commands.RunReplay,
	}
	rootCmd.AddCommand(replayCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitCode(err))
	}
}

// exitCode maps an error to the documented process exit code.
func exitCode(err error) int {
	switch {
	case errors.Is(err, interfaces.ErrInterrupted):
		return 130
	case errors.Is(err, interfaces.ErrTracer):
		return 2
	default:
		return 1
	}
}
