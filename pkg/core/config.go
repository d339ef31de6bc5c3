/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Configuration loading for the Choronzon fuzzer. Reads the campaign
config file through viper, applies defaults and validates the result.
*/

package core

import (
	"fmt"

	"github.com/spf13/viper"

	"github.com/kleascm/choronzon/pkg/interfaces"
)

// LoadConfig reads and validates a campaign configuration file. The format
// is whatever viper can decode (YAML, JSON, TOML).
func LoadConfig(path string) (*interfaces.Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("%w: read %s: %v", interfaces.ErrConfig, path, err)
	}

	config := &interfaces.Config{}
	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("%w: decode %s: %v", interfaces.ErrConfig, path, err)
	}

	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}
