// Package config loads per-project SDK configuration.
// Configuration lives in .mlld/sdk.yaml in the project directory.
package config

import (
	"fmt"
	"time"
)

// Config is the top-level SDK configuration.
type Config struct {
	// Command invokes the mlld CLI. Defaults to "mlld" when empty.
	Command string `yaml:"command"`

	// CommandArgs are extra args placed before the mode selector.
	// Example: command: node, commandArgs: ["./dist/cli.cjs"].
	CommandArgs []string `yaml:"commandArgs"`

	// WorkingDir is the working directory for script execution.
	WorkingDir string `yaml:"workingDir"`

	// Timeout is the default deadline for operations ("30s", "2m").
	Timeout *Duration `yaml:"timeout"`

	// Mode selects the parsing mode (strict|markdown).
	Mode string `yaml:"mode"`

	// AllowAbsolutePaths permits absolute filesystem path access.
	AllowAbsolutePaths *bool `yaml:"allowAbsolutePaths"`
}

// Validate checks field values that cannot be caught during unmarshaling.
func (c *Config) Validate() error {
	switch c.Mode {
	case "", "strict", "markdown":
	default:
		return fmt.Errorf("invalid mode %q: must be strict or markdown", c.Mode)
	}
	if c.Timeout != nil && c.Timeout.Duration < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", c.Timeout.Duration)
	}
	return nil
}

// Duration is a wrapper around time.Duration that implements YAML unmarshaling
// from human-readable strings like "30s", "2m".
type Duration struct {
	time.Duration
}

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	d.Duration = parsed
	return nil
}

// MarshalYAML implements yaml.Marshaler for Duration.
func (d Duration) MarshalYAML() (any, error) {
	return d.Duration.String(), nil
}
