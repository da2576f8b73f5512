package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Log         LogConfig         `mapstructure:"log"`
	AI          AIConfig          `mapstructure:"ai"`
	OpenAI      OpenAIConfig      `mapstructure:"openai"`
	AzureOpenAI AzureOpenAIConfig `mapstructure:"azure_openai"`
	Gemini      GeminiConfig      `mapstructure:"gemini"`
	Perplexity  PerplexityConfig  `mapstructure:"perplexity"`
	Site        SiteConfig        `mapstructure:"site"`
	Firebase    FirebaseConfig    `mapstructure:"firebase"`
	Relay       RelayConfig       `mapstructure:"relay"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Tracing     TracingConfig     `mapstructure:"tracing"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Update      UpdateConfig      `mapstructure:"update"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Env             string        `mapstructure:"env"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// AIConfig selects the upstream provider. APIKey is the OpenAI key; the
// name is kept for compatibility with existing deployments.
type AIConfig struct {
	Provider string `mapstructure:"provider"`
	APIKey   string `mapstructure:"api_key"`
}

type OpenAIConfig struct {
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type AzureOpenAIConfig struct {
	Endpoint   string `mapstructure:"endpoint"`
	Key        string `mapstructure:"key"`
	Deployment string `mapstructure:"deployment"`
	APIVersion string `mapstructure:"api_version"`
}

type GeminiConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

type PerplexityConfig struct {
	APIKey  string `mapstructure:"api_key"`
	Model   string `mapstructure:"model"`
	BaseURL string `mapstructure:"base_url"`
}

// SiteConfig holds the static shared secret accepted in lieu of an
// identity token.
type SiteConfig struct {
	APIKey string `mapstructure:"api_key"`
}

type FirebaseConfig struct {
	ProjectID string `mapstructure:"project_id"`
	CertsURL  string `mapstructure:"certs_url"`
}

type RelayConfig struct {
	// Timeout bounds a whole upstream exchange, streaming included. 0 disables it.
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

type RateLimitConfig struct {
	Enabled           bool    `mapstructure:"enabled"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	Burst             int     `mapstructure:"burst"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

type MetricsConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

type UpdateConfig struct {
	CheckURL string `mapstructure:"check_url"`
}

const (
	DefaultOpenAIBaseURL     = "https://api.openai.com/v1"
	DefaultGeminiBaseURL     = "https://generativelanguage.googleapis.com/v1beta"
	DefaultGeminiModel       = "gemini-pro"
	DefaultPerplexityBaseURL = "https://api.perplexity.ai"
	DefaultAzureAPIVersion   = "2023-07-01-preview"
	DefaultFirebaseCertsURL  = "https://www.googleapis.com/robot/v1/metadata/x509/securetoken@system.gserviceaccount.com"
)

// defaults lists every key viper should know about. AutomaticEnv only
// resolves keys that are already registered, so empty defaults matter too.
var defaults = map[string]any{
	"server.port":             "8080",
	"server.env":              "development",
	"server.shutdown_timeout": 10 * time.Second,

	"log.level":  "info",
	"log.format": "json",

	"ai.provider": "",
	"ai.api_key":  "",

	"openai.model":    "",
	"openai.base_url": DefaultOpenAIBaseURL,

	"azure_openai.endpoint":    "",
	"azure_openai.key":         "",
	"azure_openai.deployment":  "",
	"azure_openai.api_version": DefaultAzureAPIVersion,

	"gemini.api_key":  "",
	"gemini.model":    DefaultGeminiModel,
	"gemini.base_url": DefaultGeminiBaseURL,

	"perplexity.api_key":  "",
	"perplexity.model":    "",
	"perplexity.base_url": DefaultPerplexityBaseURL,

	"site.api_key": "",

	"firebase.project_id": "",
	"firebase.certs_url":  DefaultFirebaseCertsURL,

	"relay.timeout":        time.Duration(0),
	"relay.max_body_bytes": int64(10 << 20),

	"rate_limit.enabled":             false,
	"rate_limit.requests_per_second": 10.0,
	"rate_limit.burst":               20,

	"tracing.enabled":      false,
	"tracing.service_name": "ai-proxy",

	"metrics.enabled": true,

	"update.check_url": "",
}

// LoadConfig reads configuration from file or environment variables.
// Environment variables win over the optional config.yaml.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	// ai.provider -> AI_PROVIDER, azure_openai.key -> AZURE_OPENAI_KEY
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	cfg.applyFallbacks()

	return &cfg, nil
}

// applyFallbacks resolves values that default to other settings.
func (c *Config) applyFallbacks() {
	if c.AzureOpenAI.Deployment == "" {
		c.AzureOpenAI.Deployment = c.OpenAI.Model
	}
	if c.Perplexity.Model == "" {
		c.Perplexity.Model = c.OpenAI.Model
	}
}

// IsProduction reports whether the server runs in release mode.
func (c *Config) IsProduction() bool {
	return c.Server.Env == "production"
}
