package config

import (
	"time"

	"github.com/mkral/importer/internal/core/cursor"
	"github.com/mkral/importer/internal/core/domain"
	redisclient "github.com/mkral/importer/internal/infra/redis"
	"github.com/mkral/importer/internal/infra/rpc/provider"
	"github.com/mkral/importer/internal/infra/storage/postgres"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig       `yaml:"server"`
	Chains   []ChainConfig      `yaml:"chains"`
	Redis    redisclient.Config `yaml:"redis"`
	Logging  LoggingConfig      `yaml:"logging"`
	Database postgres.Config    `yaml:"database"`
	Import   ImportConfig       `yaml:"import"`
}

// ServerConfig holds HTTP server settings for the metrics endpoint.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ImportConfig holds run-wide import settings.
type ImportConfig struct {
	PageSize          int           `yaml:"page_size"`
	PerAttemptTimeout time.Duration `yaml:"per_attempt_timeout"`
	TotalTimeout      time.Duration `yaml:"total_timeout"`
}

// BreakerConfig holds circuit breaker settings for a chain.
type BreakerConfig struct {
	MaxConsecutiveFailures int           `yaml:"max_consecutive_failures"`
	Cooldown               time.Duration `yaml:"cooldown"`
	MaxCooldown            time.Duration `yaml:"max_cooldown"`
}

// ChainConfig holds settings for a specific blockchain.
type ChainConfig struct {
	Chain              domain.Blockchain      `yaml:"id"`
	RetentionPeriod    time.Duration          `yaml:"retention_period"` // 0 = keep forever
	Breaker            BreakerConfig          `yaml:"breaker"`
	RequiredOperations []domain.OperationKind `yaml:"required_operations"`
	OptionalOperations []domain.OperationKind `yaml:"optional_operations"`
	Providers          []ProviderConfig       `yaml:"providers"`
}

// ProviderConfig holds settings for a third-party data provider.
type ProviderConfig struct {
	Name      string             `yaml:"name"`
	Transport string             `yaml:"transport"` // http, grpc
	URL       string             `yaml:"url"`
	APIKey    string             `yaml:"api_key"`
	RateLimit provider.RateLimit `yaml:"rate_limit"`

	Operations  []domain.OperationKind `yaml:"operations"`
	Assets      []string               `yaml:"assets"`
	CursorKinds []string               `yaml:"cursor_kinds"`
	Granularity domain.Granularity     `yaml:"granularity"`
}

// Capabilities builds the provider capability descriptor from config.
func (p ProviderConfig) Capabilities() provider.Capabilities {
	caps := provider.Capabilities{
		SupportedOperations: p.Operations,
		SupportedAssets:     p.Assets,
		Granularity:         p.Granularity,
	}
	for _, k := range p.CursorKinds {
		caps.CursorKinds = append(caps.CursorKinds, cursor.Kind(k))
	}
	return caps
}
