package cli

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds host-side settings. The engine reads none of this; it
// only shapes how the CLI drives it.
type Config struct {
	Database           string `yaml:"database"`
	Workers            int    `yaml:"workers"`
	CheckpointInterval int    `yaml:"checkpoint_interval"`
	MetricsAddr        string `yaml:"metrics_addr"`
}

// LoadConfig reads a YAML config file. An empty path returns the zero
// config; flags override whatever the file sets.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{}
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("config not readable: %s", path), err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, WrapExitError(ExitCommandError, fmt.Sprintf("config %s is invalid YAML", path), err)
	}
	if cfg.Workers < 0 {
		return nil, NewExitError(ExitCommandError, "config workers must not be negative")
	}
	if cfg.CheckpointInterval < 0 {
		return nil, NewExitError(ExitCommandError, "config checkpoint_interval must not be negative")
	}
	return cfg, nil
}
