// Package config loads server settings from defaults, an optional config
// file and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	ProviderHosted = "hosted"
	ProviderLocal  = "local"

	EnvPrefix = "FOLIO"
)

// ErrMisconfigured marks settings the server can start without but cannot
// answer chat requests without.
var ErrMisconfigured = errors.New("config: misconfigured")

type Config struct {
	Addr          string `mapstructure:"addr"`
	Provider      string `mapstructure:"provider"`
	OpenAIAPIKey  string `mapstructure:"openai_api_key"`
	VectorStoreID string `mapstructure:"vector_store_id"`
	Model         string `mapstructure:"model"`
	BaseURL       string `mapstructure:"base_url"`
	DBPath        string `mapstructure:"db_path"`
	PersonaFile   string `mapstructure:"persona_file"`

	Temperature float64 `mapstructure:"temperature"`
	TopP        float64 `mapstructure:"top_p"`

	MaxPromptChars  int `mapstructure:"max_prompt_chars"`
	MaxPromptTokens int `mapstructure:"max_prompt_tokens"`

	MaxConcurrent     int           `mapstructure:"max_concurrent"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
	DailyLimit        int           `mapstructure:"daily_limit"`
	RequestTimeout    time.Duration `mapstructure:"request_timeout"`

	HistoryTurns     int `mapstructure:"history_turns"`
	KnowledgeResults int `mapstructure:"knowledge_results"`

	TrustForwarded bool `mapstructure:"trust_forwarded"`

	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`
}

// SetDefaults registers every key so env vars resolve even without a config file.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("addr", ":8100")
	v.SetDefault("provider", ProviderHosted)
	v.SetDefault("openai_api_key", "")
	v.SetDefault("vector_store_id", "")
	v.SetDefault("model", "gpt-4o")
	v.SetDefault("base_url", "http://localhost:11434/v1/")
	v.SetDefault("db_path", "portfolio-chat.db")
	v.SetDefault("persona_file", "")
	v.SetDefault("temperature", 0.7)
	v.SetDefault("top_p", 0.9)
	v.SetDefault("max_prompt_chars", 1000)
	v.SetDefault("max_prompt_tokens", 400)
	v.SetDefault("max_concurrent", 4)
	v.SetDefault("requests_per_minute", 10)
	v.SetDefault("daily_limit", 500)
	v.SetDefault("request_timeout", 2*time.Minute)
	v.SetDefault("history_turns", 10)
	v.SetDefault("knowledge_results", 5)
	v.SetDefault("trust_forwarded", false)
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")
}

// Load reads configuration into cfg. configFile may be empty.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()
	// The provider variables keep their conventional names.
	if err := v.BindEnv("openai_api_key", EnvPrefix+"_OPENAI_API_KEY", "OPENAI_API_KEY"); err != nil {
		return nil, err
	}
	if err := v.BindEnv("vector_store_id", EnvPrefix+"_VECTOR_STORE_ID", "OPENAI_VECTOR_STORE_ID"); err != nil {
		return nil, err
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Provider = strings.ToLower(strings.TrimSpace(cfg.Provider))
	return &cfg, nil
}

// Validate reports settings the chat endpoint needs. A nil return means
// requests can reach the upstream.
func (c *Config) Validate() error {
	var missing []string
	switch c.Provider {
	case ProviderHosted:
		if c.OpenAIAPIKey == "" {
			missing = append(missing, "openai_api_key")
		}
		if c.VectorStoreID == "" {
			missing = append(missing, "vector_store_id")
		}
	case ProviderLocal:
		if c.BaseURL == "" {
			missing = append(missing, "base_url")
		}
		if c.VectorStoreID == "" {
			missing = append(missing, "vector_store_id")
		}
	default:
		return fmt.Errorf("%w: unknown provider %q", ErrMisconfigured, c.Provider)
	}
	if c.Model == "" {
		missing = append(missing, "model")
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMisconfigured, strings.Join(missing, ", "))
	}
	return nil
}

// Persona returns the contents of persona_file, or "" when unset.
func (c *Config) Persona() (string, error) {
	if c.PersonaFile == "" {
		return "", nil
	}
	b, err := os.ReadFile(c.PersonaFile)
	if err != nil {
		return "", fmt.Errorf("failed to read persona file: %w", err)
	}
	return strings.TrimSpace(string(b)), nil
}
