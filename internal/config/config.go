// Package config provides application configuration management with
// multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (TBCV_ prefix, runtime override)
//  2. Config file (~/.tbcv/config.yaml or ./config.yaml)
//  3. Default values
//
// Error Handling:
//   - Uses sentinel errors for Go-idiomatic error checking with errors.Is()
//   - Wrap with context using fmt.Errorf("%w: details", ErrXxx)
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/viper"

	"github.com/tbcv/tbcv/internal/types"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidBackend indicates the storage backend is not supported.
	ErrInvalidBackend = errors.New("invalid storage backend")

	// ErrMissingPostgresURL indicates the postgres backend was selected
	// without a connection string.
	ErrMissingPostgresURL = errors.New("missing postgres URL")

	// ErrInvalidThreshold indicates the failure threshold is not a severity.
	ErrInvalidThreshold = errors.New("invalid failure threshold")

	// ErrInvalidTimeout indicates a timeout value is out of range.
	ErrInvalidTimeout = errors.New("invalid timeout")

	// ErrInvalidConcurrency indicates the validator concurrency cap is out of range.
	ErrInvalidConcurrency = errors.New("invalid concurrency limit")

	// ErrInvalidValidator indicates an unknown validator name was enabled.
	ErrInvalidValidator = errors.New("invalid validator name")
)

// Storage backend identifiers used in Config.Backend.
const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// knownValidators are the validator names that may appear in Config.Validators.
var knownValidators = map[string]bool{
	"yaml":       true,
	"markdown":   true,
	"code":       true,
	"links":      true,
	"jsonschema": true,
	"seo":        true,
	"facts":      true,
}

// Config stores application configuration.
type Config struct {
	// Storage
	Backend     string `mapstructure:"backend" json:"backend"` // "sqlite" (default) or "postgres"
	DBPath      string `mapstructure:"db_path" json:"db_path"`
	PostgresURL string `mapstructure:"postgres_url" json:"postgres_url"`

	// Dispatch behavior
	FailureThreshold        string `mapstructure:"failure_threshold" json:"failure_threshold"` // "info", "warning" or "error"
	ValidatorTimeoutSecs    int    `mapstructure:"validator_timeout_secs" json:"validator_timeout_secs"`
	MaxConcurrentValidators int    `mapstructure:"max_concurrent_validators" json:"max_concurrent_validators"`

	// Validators. An empty list enables all known validators.
	Validators []string `mapstructure:"validators" json:"validators"`
	SchemaPath string   `mapstructure:"schema_path" json:"schema_path"` // JSON schema for json artifacts
	FactsPath  string   `mapstructure:"facts_path" json:"facts_path"`   // YAML claim->verdict table for the facts validator

	// Link checking
	LinkTimeoutSecs int     `mapstructure:"link_timeout_secs" json:"link_timeout_secs"`
	LinkRPS         float64 `mapstructure:"link_rps" json:"link_rps"`

	// Broadcasting
	HeartbeatSecs int `mapstructure:"heartbeat_secs" json:"heartbeat_secs"`

	// Validation history retention (see RetentionConfig)
	RetentionDays            int `mapstructure:"retention_days" json:"retention_days"`
	RetentionKeepPerArtifact int `mapstructure:"retention_keep_per_artifact" json:"retention_keep_per_artifact"`
	RetentionBatchSize       int `mapstructure:"retention_batch_size" json:"retention_batch_size"`

	// Enhancement
	AnthropicModel string `mapstructure:"anthropic_model" json:"anthropic_model"`

	// Logging
	LogLevel string `mapstructure:"log_level" json:"log_level"`
	LogJSON  bool   `mapstructure:"log_json" json:"log_json"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}
	configDir := filepath.Join(home, ".tbcv")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configDir)
	v.AddConfigPath(".")

	setDefaults(v, configDir)

	v.SetEnvPrefix("TBCV")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Configuration file not found is not an error, use default values
		var configNotFound viper.ConfigFileNotFoundError
		if !errors.As(err, &configNotFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using default values",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, configDir string) {
	v.SetDefault("backend", BackendSQLite)
	v.SetDefault("db_path", filepath.Join(configDir, "tbcv.db"))

	v.SetDefault("failure_threshold", string(types.SeverityError))
	v.SetDefault("validator_timeout_secs", 30)
	v.SetDefault("max_concurrent_validators", 4)

	v.SetDefault("link_timeout_secs", 10)
	v.SetDefault("link_rps", 5.0)

	v.SetDefault("heartbeat_secs", 15)

	retention := DefaultRetention()
	v.SetDefault("retention_days", retention.Days)
	v.SetDefault("retention_keep_per_artifact", retention.KeepPerArtifact)
	v.SetDefault("retention_batch_size", retention.BatchSize)

	v.SetDefault("log_level", "info")
	v.SetDefault("log_json", false)
}

// Validate checks all configuration values, failing fast on the first problem.
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}
	switch c.Backend {
	case BackendSQLite, BackendPostgres:
	default:
		return fmt.Errorf("%w: %q", ErrInvalidBackend, c.Backend)
	}
	if c.Backend == BackendPostgres && c.PostgresURL == "" {
		return ErrMissingPostgresURL
	}
	if !types.Severity(c.FailureThreshold).IsValid() {
		return fmt.Errorf("%w: %q", ErrInvalidThreshold, c.FailureThreshold)
	}
	if c.ValidatorTimeoutSecs < 0 || c.ValidatorTimeoutSecs > 3600 {
		return fmt.Errorf("%w: validator_timeout_secs %d", ErrInvalidTimeout, c.ValidatorTimeoutSecs)
	}
	if c.LinkTimeoutSecs < 1 || c.LinkTimeoutSecs > 300 {
		return fmt.Errorf("%w: link_timeout_secs %d", ErrInvalidTimeout, c.LinkTimeoutSecs)
	}
	if c.MaxConcurrentValidators < 0 || c.MaxConcurrentValidators > 256 {
		return fmt.Errorf("%w: %d", ErrInvalidConcurrency, c.MaxConcurrentValidators)
	}
	for _, name := range c.Validators {
		if !knownValidators[name] {
			return fmt.Errorf("%w: %q", ErrInvalidValidator, name)
		}
	}
	return c.Retention().Validate()
}

// Retention returns the validation history retention policy.
func (c *Config) Retention() RetentionConfig {
	return RetentionConfig{
		Days:            c.RetentionDays,
		KeepPerArtifact: c.RetentionKeepPerArtifact,
		BatchSize:       c.RetentionBatchSize,
	}
}

// ValidatorEnabled reports whether a validator should be registered. An
// empty Validators list enables everything.
func (c *Config) ValidatorEnabled(name string) bool {
	if len(c.Validators) == 0 {
		return true
	}
	for _, v := range c.Validators {
		if v == name {
			return true
		}
	}
	return false
}

// ValidatorTimeout returns the per-validator deadline as a duration.
func (c *Config) ValidatorTimeout() time.Duration {
	return time.Duration(c.ValidatorTimeoutSecs) * time.Second
}

// LinkTimeout returns the per-link deadline as a duration.
func (c *Config) LinkTimeout() time.Duration {
	return time.Duration(c.LinkTimeoutSecs) * time.Second
}

// Heartbeat returns the broadcaster heartbeat interval as a duration.
func (c *Config) Heartbeat() time.Duration {
	return time.Duration(c.HeartbeatSecs) * time.Second
}
