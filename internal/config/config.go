// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   GeocodeConfig   `yaml:"geocode" mapstructure:"geocode"`
	Places    PlacesConfig    `yaml:"places" mapstructure:"places"`
	Directory DirectoryConfig `yaml:"directory" mapstructure:"directory"`
	Browser   BrowserConfig   `yaml:"browser" mapstructure:"browser"`
	Verifier  VerifierConfig  `yaml:"verifier" mapstructure:"verifier"`
	Pricing   PricingConfig   `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings for the URL auto-fixer.
type AnthropicConfig struct {
	Key              string `yaml:"key" mapstructure:"key"`
	Model            string `yaml:"model" mapstructure:"model"`
	MaxTokens        int    `yaml:"max_tokens" mapstructure:"max_tokens"`
	WebSearchMaxUses int    `yaml:"web_search_max_uses" mapstructure:"web_search_max_uses"`
}

// GeocodeConfig holds geocoding provider settings.
type GeocodeConfig struct {
	GoogleKey string  `yaml:"google_key" mapstructure:"google_key"`
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
}

// PlacesConfig holds Google Places API settings for cross-referencing.
type PlacesConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// DirectoryConfig holds settings for the community-resource directory index.
type DirectoryConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// BrowserConfig configures the headless browser used for reachability checks.
type BrowserConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
	Headless    bool   `yaml:"headless" mapstructure:"headless"`
}

// VerifierConfig configures scoring, decisions, and content extraction.
type VerifierConfig struct {
	ApproveThreshold   float64 `yaml:"approve_threshold" mapstructure:"approve_threshold"`
	RejectThreshold    float64 `yaml:"reject_threshold" mapstructure:"reject_threshold"`
	ConflictThreshold  float64 `yaml:"conflict_threshold" mapstructure:"conflict_threshold"`
	ContentCharBudget  int     `yaml:"content_char_budget" mapstructure:"content_char_budget"`
	ContentTimeoutSecs int     `yaml:"content_timeout_secs" mapstructure:"content_timeout_secs"`
	AgentVersion       string  `yaml:"agent_version" mapstructure:"agent_version"`
	MaxBatchSize       int     `yaml:"max_batch_size" mapstructure:"max_batch_size"`
}

// PricingConfig holds per-provider pricing rates.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
	Geocode   PerQueryPricing         `yaml:"geocode" mapstructure:"geocode"`
	Places    PerQueryPricing         `yaml:"places" mapstructure:"places"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// PerQueryPricing holds a flat USD cost per query.
type PerQueryPricing struct {
	PerQuery float64 `yaml:"per_query" mapstructure:"per_query"`
}

// ServerConfig configures the intake webhook server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("REENTRY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "reentry.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.web_search_max_uses", 3)
	v.SetDefault("geocode.rate_limit", 10)
	v.SetDefault("places.base_url", "https://places.googleapis.com/v1")
	v.SetDefault("directory.base_url", "https://api.findhelp.com/v3")
	v.SetDefault("browser.timeout_secs", 15)
	v.SetDefault("browser.headless", true)
	v.SetDefault("verifier.approve_threshold", 0.85)
	v.SetDefault("verifier.reject_threshold", 0.50)
	v.SetDefault("verifier.conflict_threshold", 0.7)
	v.SetDefault("verifier.content_char_budget", 5000)
	v.SetDefault("verifier.content_timeout_secs", 10)
	v.SetDefault("verifier.agent_version", "verify-agent/1.0")
	v.SetDefault("verifier.max_batch_size", 100)
	v.SetDefault("pricing.geocode.per_query", 0.005)
	v.SetDefault("pricing.places.per_query", 0.032)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Verifier.ApproveThreshold <= c.Verifier.RejectThreshold {
		return eris.Errorf("config: approve_threshold (%.2f) must exceed reject_threshold (%.2f)",
			c.Verifier.ApproveThreshold, c.Verifier.RejectThreshold)
	}
	if c.Verifier.ConflictThreshold <= 0 || c.Verifier.ConflictThreshold > 1 {
		return eris.Errorf("config: conflict_threshold must be in (0,1], got %.2f", c.Verifier.ConflictThreshold)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
