/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: init.go
Description: Init command for the Choronzon CLI. Validates a campaign
configuration, prepares the run directory layout and writes the resolved
configuration into it.
*/

package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/kleascm/choronzon/pkg/core"
	"github.com/kleascm/choronzon/pkg/interfaces"
)

// RunInit validates the configuration and prepares the run directory.
func RunInit(cmd *cobra.Command, args []string) error {
	config, err := loadConfig(args[0])
	if err != nil {
		return err
	}

	if err := core.InitRunDir(config.RunDir); err != nil {
		return err
	}

	resolved, err := json.MarshalIndent(config, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: marshal config: %v", interfaces.ErrIO, err)
	}
	path := filepath.Join(config.RunDir, "config.json")
	if err := os.WriteFile(path, resolved, 0o644); err != nil {
		return fmt.Errorf("%w: write %s: %v", interfaces.ErrIO, path, err)
	}

	fmt.Printf("Run directory %s prepared for target %s\n", config.RunDir, config.Target)
	return nil
}
