/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: stats_writer.go
Description: Utility for writing campaign statistics snapshots to the run
directory. Ensures the stats directory exists and writes timestamped JSON files
for easy analysis.
*/

package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// WriteStatsSnapshot writes a statistics snapshot into <runDir>/stats with a
// timestamped, generation-tagged name and returns the file path.
func WriteStatsSnapshot(runDir string, generation int, stats interface{}) (string, error) {
	statsDir := filepath.Join(runDir, "stats")
	if err := os.MkdirAll(statsDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create stats directory: %w", err)
	}

	timestamp := time.Now().Format("2006-01-02_15-04-05")
	filename := fmt.Sprintf("%s_gen%d.json", timestamp, generation)
	filePath := filepath.Join(statsDir, filename)

	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal stats: %w", err)
	}

	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write stats file: %w", err)
	}

	return filePath, nil
}
