// File: internal/config/config_test.go
package config

import (
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewDefaultConfigIsValid(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 10, cfg.Navigator.MaxSteps)
	assert.Equal(t, 3, cfg.Navigator.MaxRetries)
	assert.Equal(t, 0.85, cfg.Navigator.LevelBias)
	assert.Equal(t, int64(40_000_000), cfg.Navigator.MaxRegionPixels)
	assert.Equal(t, ProviderGemini, cfg.LLM.Provider)
	assert.Equal(t, 1, cfg.Runner.Concurrency)
}

func TestNewConfigFromViperOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("navigator.max_steps", 25)
	v.Set("navigator.enable_conch", true)
	v.Set("llm.provider", "scripted")
	v.Set("runner.concurrency", 4)

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)

	assert.Equal(t, 25, cfg.Navigator.MaxSteps)
	assert.True(t, cfg.Navigator.EnableConch)
	assert.Equal(t, ProviderScripted, cfg.LLM.Provider)
	assert.Equal(t, 4, cfg.Runner.Concurrency)
}

func TestBudgetRejectsConcurrentRuns(t *testing.T) {
	cfg := NewDefaultConfig()
	cfg.Navigator.BudgetUSD = 2.50
	cfg.Runner.Concurrency = 4

	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "budget_usd")

	cfg.Runner.BudgetBestEffort = true
	assert.NoError(t, cfg.Validate())

	cfg.Runner.BudgetBestEffort = false
	cfg.Runner.Concurrency = 1
	assert.NoError(t, cfg.Validate())
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max steps", func(c *Config) { c.Navigator.MaxSteps = 0 }},
		{"zero max retries", func(c *Config) { c.Navigator.MaxRetries = 0 }},
		{"negative budget", func(c *Config) { c.Navigator.BudgetUSD = -1 }},
		{"quality too high", func(c *Config) { c.Navigator.JPEGQuality = 101 }},
		{"zero bias", func(c *Config) { c.Navigator.LevelBias = 0 }},
		{"negative image window", func(c *Config) { c.Navigator.ImageWindow = -1 }},
		{"unknown provider", func(c *Config) { c.LLM.Provider = "oracle" }},
		{"zero api timeout", func(c *Config) { c.LLM.APITimeout = 0 }},
		{"zero runner concurrency", func(c *Config) { c.Runner.Concurrency = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}
