package config

import (
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Backend:                  BackendSQLite,
		DBPath:                   filepath.Join(".tbcv", "tbcv.db"),
		FailureThreshold:         "error",
		ValidatorTimeoutSecs:     30,
		MaxConcurrentValidators:  4,
		LinkTimeoutSecs:          10,
		LinkRPS:                  5,
		HeartbeatSecs:            15,
		RetentionDays:            30,
		RetentionKeepPerArtifact: 5,
		RetentionBatchSize:       500,
		LogLevel:                 "info",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr error
	}{
		{"valid", func(c *Config) {}, nil},
		{"nil threshold ok via severity check", func(c *Config) { c.FailureThreshold = "warning" }, nil},
		{"unknown backend", func(c *Config) { c.Backend = "mysql" }, ErrInvalidBackend},
		{"postgres without url", func(c *Config) { c.Backend = BackendPostgres }, ErrMissingPostgresURL},
		{"bad threshold", func(c *Config) { c.FailureThreshold = "fatal" }, ErrInvalidThreshold},
		{"negative timeout", func(c *Config) { c.ValidatorTimeoutSecs = -1 }, ErrInvalidTimeout},
		{"zero link timeout", func(c *Config) { c.LinkTimeoutSecs = 0 }, ErrInvalidTimeout},
		{"excessive concurrency", func(c *Config) { c.MaxConcurrentValidators = 1000 }, ErrInvalidConcurrency},
		{"unknown validator", func(c *Config) { c.Validators = []string{"spellcheck"} }, ErrInvalidValidator},
		{"zero retention days", func(c *Config) { c.RetentionDays = 0 }, ErrInvalidRetention},
		{"excessive retention days", func(c *Config) { c.RetentionDays = 400 }, ErrInvalidRetention},
		{"zero keep per artifact", func(c *Config) { c.RetentionKeepPerArtifact = 0 }, ErrInvalidRetention},
		{"excessive prune batch", func(c *Config) { c.RetentionBatchSize = 50000 }, ErrInvalidRetention},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Expected valid config, got %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestValidateNil(t *testing.T) {
	var cfg *Config
	if err := cfg.Validate(); !errors.Is(err, ErrConfigNil) {
		t.Errorf("Expected ErrConfigNil, got %v", err)
	}
}

func TestValidatorEnabled(t *testing.T) {
	cfg := validConfig()
	if !cfg.ValidatorEnabled("yaml") || !cfg.ValidatorEnabled("facts") {
		t.Error("Empty list should enable all validators")
	}

	cfg.Validators = []string{"yaml", "markdown"}
	if !cfg.ValidatorEnabled("yaml") {
		t.Error("Expected yaml enabled")
	}
	if cfg.ValidatorEnabled("links") {
		t.Error("Expected links disabled")
	}
}

func TestDurationAccessors(t *testing.T) {
	cfg := validConfig()
	if cfg.ValidatorTimeout().Seconds() != 30 {
		t.Errorf("Expected 30s validator timeout, got %v", cfg.ValidatorTimeout())
	}
	if cfg.LinkTimeout().Seconds() != 10 {
		t.Errorf("Expected 10s link timeout, got %v", cfg.LinkTimeout())
	}
	if cfg.Heartbeat().Seconds() != 15 {
		t.Errorf("Expected 15s heartbeat, got %v", cfg.Heartbeat())
	}
}

func TestRetentionCutoff(t *testing.T) {
	ret := RetentionConfig{Days: 30, KeepPerArtifact: 5, BatchSize: 500}
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)
	want := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	if got := ret.Cutoff(now); !got.Equal(want) {
		t.Errorf("Expected cutoff %v, got %v", want, got)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "error", cfg.FailureThreshold)
	assert.Equal(t, 30, cfg.ValidatorTimeoutSecs)
	assert.Equal(t, DefaultRetention(), cfg.Retention())
	assert.Empty(t, cfg.Validators)
}

func TestLoadEnvOverride(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("TBCV_FAILURE_THRESHOLD", "warning")
	t.Setenv("TBCV_MAX_CONCURRENT_VALIDATORS", "8")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "warning", cfg.FailureThreshold)
	assert.Equal(t, 8, cfg.MaxConcurrentValidators)
}
