// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Navigator NavigatorConfig `mapstructure:"navigator" yaml:"navigator"`
	LLM       LLMConfig       `mapstructure:"llm" yaml:"llm"`
	Runner    RunnerConfig    `mapstructure:"runner" yaml:"runner"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// NavigatorConfig tunes the navigation loop: step and retry budgets, crop
// geometry, and the optional spend ceiling.
type NavigatorConfig struct {
	MaxSteps               int     `mapstructure:"max_steps" yaml:"max_steps"`
	MaxRetries             int     `mapstructure:"max_retries" yaml:"max_retries"`
	BudgetUSD              float64 `mapstructure:"budget_usd" yaml:"budget_usd"`
	ThumbnailSize          int     `mapstructure:"thumbnail_size" yaml:"thumbnail_size"`
	TargetLongSide         int     `mapstructure:"target_long_side" yaml:"target_long_side"`
	JPEGQuality            int     `mapstructure:"jpeg_quality" yaml:"jpeg_quality"`
	LevelBias              float64 `mapstructure:"level_bias" yaml:"level_bias"`
	MaxRegionPixels        int64   `mapstructure:"max_region_pixels" yaml:"max_region_pixels"`
	ImageWindow            int     `mapstructure:"image_window" yaml:"image_window"`
	ForceAnswerRetries     int     `mapstructure:"force_answer_retries" yaml:"force_answer_retries"`
	EnforceFixedIterations bool    `mapstructure:"enforce_fixed_iterations" yaml:"enforce_fixed_iterations"`
	EnableConch            bool    `mapstructure:"enable_conch" yaml:"enable_conch"`
}

// LLMProvider defines the supported LLM providers.
type LLMProvider string

const (
	ProviderGemini   LLMProvider = "gemini"
	ProviderScripted LLMProvider = "scripted"
)

// LLMConfig defines the configuration for the vision-language model backend.
type LLMConfig struct {
	Provider            LLMProvider   `mapstructure:"provider" yaml:"provider"`
	Model               string        `mapstructure:"model" yaml:"model"`
	APIKey              string        `mapstructure:"api_key" yaml:"-"`
	Endpoint            string        `mapstructure:"endpoint" yaml:"endpoint"`
	APITimeout          time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	Temperature         float32       `mapstructure:"temperature" yaml:"temperature"`
	MaxTokens           int           `mapstructure:"max_tokens" yaml:"max_tokens"`
	RequestsPerMinute   int           `mapstructure:"requests_per_minute" yaml:"requests_per_minute"`
	PromptPricePerM     float64       `mapstructure:"prompt_price_per_m" yaml:"prompt_price_per_m"`
	CompletionPricePerM float64       `mapstructure:"completion_price_per_m" yaml:"completion_price_per_m"`
	ScriptPath          string        `mapstructure:"script_path" yaml:"script_path"`
}

// RunnerConfig configures the batch runner.
type RunnerConfig struct {
	Concurrency      int    `mapstructure:"concurrency" yaml:"concurrency"`
	OutputDir        string `mapstructure:"output_dir" yaml:"output_dir"`
	BudgetBestEffort bool   `mapstructure:"budget_best_effort" yaml:"budget_best_effort"`
}

// SetDefaults initializes default values for various configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "slidescope")
	v.SetDefault("logger.log_file", "slidescope.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Navigator --
	v.SetDefault("navigator.max_steps", 10)
	v.SetDefault("navigator.max_retries", 3)
	v.SetDefault("navigator.budget_usd", 0.0)
	v.SetDefault("navigator.thumbnail_size", 1024)
	v.SetDefault("navigator.target_long_side", 1024)
	v.SetDefault("navigator.jpeg_quality", 85)
	v.SetDefault("navigator.level_bias", 0.85)
	v.SetDefault("navigator.max_region_pixels", 40_000_000)
	v.SetDefault("navigator.image_window", 3)
	v.SetDefault("navigator.force_answer_retries", 2)
	v.SetDefault("navigator.enforce_fixed_iterations", false)
	v.SetDefault("navigator.enable_conch", false)

	// -- LLM --
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "gemini-2.5-pro")
	v.SetDefault("llm.api_timeout", "120s")
	v.SetDefault("llm.temperature", 0.2)
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.requests_per_minute", 60)
	v.SetDefault("llm.prompt_price_per_m", 1.25)
	v.SetDefault("llm.completion_price_per_m", 10.0)

	// -- Runner --
	v.SetDefault("runner.concurrency", 1)
	v.SetDefault("runner.output_dir", "trajectories")
	v.SetDefault("runner.budget_best_effort", false)
}

// NewDefaultConfig creates a new configuration struct populated with default values.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// This should not happen with defaults, but good to be safe.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	return &cfg
}

// NewConfigFromViper creates a new configuration instance from a viper object.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Bind environment variables for sensitive data
	v.BindEnv("llm.api_key", "SLIDESCOPE_LLM_API_KEY")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	// Manually load the key if Unmarshal didn't pick it up
	if cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = os.Getenv("SLIDESCOPE_LLM_API_KEY")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if err := c.Navigator.Validate(); err != nil {
		return fmt.Errorf("navigator configuration invalid: %w", err)
	}
	if err := c.LLM.Validate(); err != nil {
		return fmt.Errorf("llm configuration invalid: %w", err)
	}
	if c.Runner.Concurrency <= 0 {
		return fmt.Errorf("runner.concurrency must be a positive integer")
	}
	// Token usage lands after each call, so a shared budget checked by
	// concurrent runs can be overshot between a gate check and the spend it
	// admits. A strict budget therefore only pairs with sequential runs.
	if c.Navigator.BudgetUSD > 0 && c.Runner.Concurrency > 1 && !c.Runner.BudgetBestEffort {
		return fmt.Errorf("navigator.budget_usd requires runner.concurrency = 1; set runner.budget_best_effort to accept approximate enforcement")
	}
	return nil
}

// Validate checks the NavigatorConfig settings.
func (n *NavigatorConfig) Validate() error {
	if n.MaxSteps <= 0 {
		return fmt.Errorf("max_steps must be greater than 0")
	}
	if n.MaxRetries <= 0 {
		return fmt.Errorf("max_retries must be greater than 0")
	}
	if n.BudgetUSD < 0 {
		return fmt.Errorf("budget_usd must not be negative")
	}
	if n.JPEGQuality < 1 || n.JPEGQuality > 100 {
		return fmt.Errorf("jpeg_quality must be between 1 and 100")
	}
	if n.LevelBias <= 0 || n.LevelBias > 1 {
		return fmt.Errorf("level_bias must be in (0, 1]")
	}
	if n.ImageWindow < 0 {
		return fmt.Errorf("image_window must not be negative")
	}
	return nil
}

// Validate checks the LLMConfig settings.
func (l *LLMConfig) Validate() error {
	switch l.Provider {
	case ProviderGemini, ProviderScripted:
	case "":
		return fmt.Errorf("llm.provider is required")
	default:
		return fmt.Errorf("unsupported llm.provider %q", l.Provider)
	}
	if l.Provider == ProviderGemini && l.Model == "" {
		return fmt.Errorf("llm.model is required for the gemini provider")
	}
	if l.APITimeout <= 0 {
		return fmt.Errorf("llm.api_timeout must be a positive duration")
	}
	return nil
}
