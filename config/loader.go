package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

const configFileName = "sdk.yaml"
const configDir = ".mlld"

// Load reads and parses .mlld/sdk.yaml from the given project path.
// Returns nil, nil if the file does not exist.
func Load(projectPath string) (*Config, error) {
	fp := filepath.Join(projectPath, configDir, configFileName)

	data, err := os.ReadFile(fp)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read sdk config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse sdk config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid sdk config: %w", err)
	}

	return &cfg, nil
}
