// Package config loads service configuration from an optional YAML file and
// environment variables. The Gemini API key is deliberately not part of the
// config struct: it is read from the environment at call time by the provider
// client and never written to disk or logs.
package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// DefaultSystemPrompt is used when no system prompt is configured.
const DefaultSystemPrompt = "You are a helpful assistant. Answer concisely and truthfully."

// Config holds the service configuration.
type Config struct {
	Listen         string `mapstructure:"listen"`
	DatabasePath   string `mapstructure:"database_path"`
	AssetsDir      string `mapstructure:"assets_dir"`
	SystemPrompt   string `mapstructure:"system_prompt"`
	DefaultModel   string `mapstructure:"default_model"`
	RequestTimeout int    `mapstructure:"request_timeout_seconds"`
}

// RequestTimeoutDuration returns the per-request timeout as a duration.
func (config *Config) RequestTimeoutDuration() time.Duration {
	return time.Duration(config.RequestTimeout) * time.Second
}

// Load reads chatstream.yaml from the working directory if present, applies
// defaults, and lets CHATSTREAM_* environment variables override any key
// (e.g. CHATSTREAM_LISTEN, CHATSTREAM_DATABASE_PATH).
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigName("chatstream")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetDefault("listen", ":8080")
	v.SetDefault("database_path", "chatstream.db")
	v.SetDefault("assets_dir", "storage/public")
	v.SetDefault("system_prompt", DefaultSystemPrompt)
	v.SetDefault("default_model", "gemini-2.5-flash-image-preview")
	v.SetDefault("request_timeout_seconds", 300)

	v.SetEnvPrefix("CHATSTREAM")
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// No config file: defaults plus environment overrides.
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &config, nil
}
