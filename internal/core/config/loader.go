package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Set defaults if necessary
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Import.PageSize == 0 {
		cfg.Import.PageSize = 100
	}
	if cfg.Import.PerAttemptTimeout == 0 {
		cfg.Import.PerAttemptTimeout = 30 * time.Second
	}
	if cfg.Import.TotalTimeout == 0 {
		cfg.Import.TotalTimeout = 5 * time.Minute
	}

	for i := range cfg.Chains {
		b := &cfg.Chains[i].Breaker
		if b.MaxConsecutiveFailures == 0 {
			b.MaxConsecutiveFailures = 3
		}
		if b.Cooldown == 0 {
			b.Cooldown = 30 * time.Second
		}
		if b.MaxCooldown == 0 {
			b.MaxCooldown = 10 * time.Minute
		}
	}

	return &cfg, nil
}
