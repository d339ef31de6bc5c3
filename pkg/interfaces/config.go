/*
Author: KleaSCM
Email: KleaSCM@gmail.com
File: config.go
Description: Configuration record for the Choronzon fuzzer. An explicit record with
enumerated fields covering the evolutionary parameters, the target contract, the
tracer budgets and the logging setup. Loaded from a config file via viper and
validated before any component starts.
*/

package interfaces

import (
	"fmt"
	"time"
)

// Config contains all configuration parameters for a fuzzing campaign.
type Config struct {
	// Target configuration
	Target     string   `mapstructure:"target" json:"target"`           // Path to the target binary (run under the tracer)
	TargetArgs []string `mapstructure:"target_args" json:"target_args"` // Arguments; "@@" is replaced by the input path
	TargetEnv  []string `mapstructure:"target_env" json:"target_env"`   // Extra environment variables for the target

	// Campaign layout
	Parser  string `mapstructure:"parser" json:"parser"`     // Format plug-in name (e.g. "png")
	SeedDir string `mapstructure:"seed_dir" json:"seed_dir"` // Directory containing the initial population
	RunDir  string `mapstructure:"run_dir" json:"run_dir"`   // Run directory for corpus, crashes and checkpoints

	// Evolutionary parameters
	CorpusSize       int     `mapstructure:"corpus_size" json:"corpus_size"`             // N: maximum corpus members
	GenerationTrials int     `mapstructure:"generation_trials" json:"generation_trials"` // M: trials per generation
	GenerationCap    int     `mapstructure:"generation_cap" json:"generation_cap"`       // Stop after this many generations (0 = unlimited)
	PRecomb          float64 `mapstructure:"p_recomb" json:"p_recomb"`                   // Probability of picking the recombinator family
	Alpha            float64 `mapstructure:"alpha" json:"alpha"`                         // Multiplicative operator weight update
	WeightFloor      float64 `mapstructure:"weight_floor" json:"weight_floor"`           // Minimum operator weight
	KTournament      int     `mapstructure:"k_tournament" json:"k_tournament"`           // Tournament size for parent selection
	Seed             uint64  `mapstructure:"seed" json:"seed"`                           // PRNG seed

	// Operator weights, keyed by canonical operator name. Missing
	// operators start at uniform weight.
	MutatorWeights      map[string]float64 `mapstructure:"mutator_weights" json:"mutator_weights"`
	RecombinatorWeights map[string]float64 `mapstructure:"recombinator_weights" json:"recombinator_weights"`

	// Trial execution
	TrialTimeout      time.Duration `mapstructure:"trial_timeout" json:"trial_timeout"`             // Per-trial wall clock budget
	GracePeriod       time.Duration `mapstructure:"grace_period" json:"grace_period"`               // Wait after signalling the tracer on timeout
	TracerErrorBudget int           `mapstructure:"tracer_error_budget" json:"tracer_error_budget"` // Consecutive tracer failures before aborting

	// Persistence
	KeepGenerations bool `mapstructure:"keep_generations" json:"keep_generations"` // Dump every generation's serialized members

	// Logging configuration
	LogLevel string `mapstructure:"log_level" json:"log_level"` // Logging level (debug, info, warn, error)
	LogFile  string `mapstructure:"log_file" json:"log_file"`   // Log file path (empty = stderr)
	JSONLogs bool   `mapstructure:"json_logs" json:"json_logs"` // Use JSON log format
}

// ApplyDefaults fills unset fields with the documented defaults.
func (c *Config) ApplyDefaults() {
	if c.CorpusSize == 0 {
		c.CorpusSize = 256
	}
	if c.GenerationTrials == 0 {
		c.GenerationTrials = 100
	}
	if c.PRecomb == 0 {
		c.PRecomb = 0.5
	}
	if c.Alpha == 0 {
		c.Alpha = 0.1
	}
	if c.WeightFloor == 0 {
		c.WeightFloor = 0.01
	}
	if c.KTournament == 0 {
		c.KTournament = 3
	}
	if c.TrialTimeout == 0 {
		c.TrialTimeout = 10 * time.Second
	}
	if c.GracePeriod == 0 {
		c.GracePeriod = 2 * time.Second
	}
	if c.TracerErrorBudget == 0 {
		c.TracerErrorBudget = 10
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.Seed == 0 {
		c.Seed = 1
	}
}

// Validate checks the configuration for missing or inconsistent values.
func (c *Config) Validate() error {
	if c.Target == "" {
		return fmt.Errorf("%w: target binary not specified", ErrConfig)
	}
	if c.Parser == "" {
		return fmt.Errorf("%w: parser not specified", ErrConfig)
	}
	if c.SeedDir == "" {
		return fmt.Errorf("%w: seed directory not specified", ErrConfig)
	}
	if c.RunDir == "" {
		return fmt.Errorf("%w: run directory not specified", ErrConfig)
	}
	if c.CorpusSize < 2 {
		return fmt.Errorf("%w: corpus_size must be at least 2", ErrConfig)
	}
	if c.GenerationTrials < 1 {
		return fmt.Errorf("%w: generation_trials must be positive", ErrConfig)
	}
	if c.PRecomb < 0 || c.PRecomb > 1 {
		return fmt.Errorf("%w: p_recomb must be in [0, 1]", ErrConfig)
	}
	if c.Alpha <= 0 || c.Alpha >= 1 {
		return fmt.Errorf("%w: alpha must be in (0, 1)", ErrConfig)
	}
	if c.KTournament < 1 {
		return fmt.Errorf("%w: k_tournament must be positive", ErrConfig)
	}
	if c.TrialTimeout <= 0 {
		return fmt.Errorf("%w: trial_timeout must be positive", ErrConfig)
	}
	return nil
}
