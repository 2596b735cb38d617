// Package config provides application configuration with multi-source
// priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (KBFLOW_ prefix)
//  2. Config file (kbflow.yaml in the working directory or ~/.kbflow/)
//  3. Default values
//
// Error handling uses sentinel errors so callers can check categories with
// errors.Is().
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrInvalidProvider indicates the model provider is not supported.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrInvalidModelName indicates the model name is empty.
	ErrInvalidModelName = errors.New("invalid model name")

	// ErrInvalidTopK indicates the retrieval fetch width is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidTopN indicates the surfaced passage count is out of range.
	ErrInvalidTopN = errors.New("invalid top_n")

	// ErrInvalidEmbedderModel indicates the embedder model is empty.
	ErrInvalidEmbedderModel = errors.New("invalid embedder model")

	// ErrInvalidVectorizeConfig indicates an incomplete managed-vector setup.
	ErrInvalidVectorizeConfig = errors.New("invalid vectorize configuration")

	// ErrNoBackend indicates no retrieval backend is configured.
	ErrNoBackend = errors.New("no retrieval backend configured")
)

// Model provider identifiers used in Config.Provider.
const (
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

// Config stores application configuration. Sensitive fields (API keys,
// tokens, connection strings) must never be logged.
type Config struct {
	// Model provider and generation settings.
	Provider  string `mapstructure:"provider"`
	ModelName string `mapstructure:"model_name"`
	MaxTokens int    `mapstructure:"max_tokens"`

	// Embedding settings.
	EmbedderModel string `mapstructure:"embedder_model"`

	// Retrieval settings. TopK is the raw fetch width per search, TopN the
	// number of passages surfaced after ranking.
	TopK int `mapstructure:"top_k"`
	TopN int `mapstructure:"top_n"`

	// PostgreSQL/pgvector backend. Enabled when PostgresURL is set.
	PostgresURL string `mapstructure:"postgres_url"`

	// Managed vector service backend. Enabled when both fields are set.
	VectorizeURL   string `mapstructure:"vectorize_url"`
	VectorizeToken string `mapstructure:"vectorize_token"`

	// Embedded chromem backend. Enabled when ChromemPath is set; use "-"
	// for a purely in-memory store.
	ChromemPath string `mapstructure:"chromem_path"`
}

// Load loads configuration with env > file > defaults priority.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("kbflow")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		v.AddConfigPath(filepath.Join(home, ".kbflow"))
	}

	setDefaults(v)

	v.SetEnvPrefix("KBFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvVariables(v)

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine, defaults and env apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
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

func setDefaults(v *viper.Viper) {
	v.SetDefault("provider", ProviderOpenAI)
	v.SetDefault("model_name", "gpt-4o-mini")
	v.SetDefault("max_tokens", 2048)
	v.SetDefault("embedder_model", "text-embedding-3-small")
	v.SetDefault("top_k", 10)
	v.SetDefault("top_n", 5)
}

// bindEnvVariables binds keys that have no default, so env-only settings
// still reach Unmarshal.
func bindEnvVariables(v *viper.Viper) {
	for _, key := range []string{
		"postgres_url",
		"vectorize_url",
		"vectorize_token",
		"chromem_path",
	} {
		_ = v.BindEnv(key)
	}
}

// Validate checks configuration values. Returns sentinel errors that can
// be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	switch c.Provider {
	case ProviderOpenAI, ProviderAnthropic:
	default:
		return fmt.Errorf("%w: %q (supported: %s, %s)",
			ErrInvalidProvider, c.Provider, ProviderOpenAI, ProviderAnthropic)
	}

	if c.ModelName == "" {
		return fmt.Errorf("%w: model_name cannot be empty", ErrInvalidModelName)
	}

	if c.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedderModel)
	}

	if c.TopK < 1 || c.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.TopK)
	}

	if c.TopN < 1 || c.TopN > c.TopK {
		return fmt.Errorf("%w: must be between 1 and top_k (%d), got %d", ErrInvalidTopN, c.TopK, c.TopN)
	}

	// Vectorize needs both the endpoint and the token.
	if (c.VectorizeURL == "") != (c.VectorizeToken == "") {
		return fmt.Errorf("%w: vectorize_url and vectorize_token must both be set", ErrInvalidVectorizeConfig)
	}

	return nil
}

// HasPostgres reports whether the pgvector backend is configured.
func (c *Config) HasPostgres() bool {
	return c.PostgresURL != ""
}

// HasVectorize reports whether the managed vector backend is configured.
func (c *Config) HasVectorize() bool {
	return c.VectorizeURL != "" && c.VectorizeToken != ""
}

// HasChromem reports whether the embedded backend is configured.
func (c *Config) HasChromem() bool {
	return c.ChromemPath != ""
}

// ChromemDir returns the on-disk path for the embedded backend, or ""
// when it should stay in-memory.
func (c *Config) ChromemDir() string {
	if c.ChromemPath == "-" {
		return ""
	}
	return c.ChromemPath
}
