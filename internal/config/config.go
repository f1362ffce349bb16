// Package config loads memberlens configuration: YAML file over
// defaults, environment variables over both.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"memberlens/internal/embedding"
	"memberlens/internal/signal"
)

// Config holds all memberlens configuration.
type Config struct {
	// Warehouse storage
	Warehouse WarehouseConfig `yaml:"warehouse"`

	// Rulebook retrieval index
	Rulebook RulebookConfig `yaml:"rulebook"`

	// Embedding engine
	Embedding embedding.Config `yaml:"embedding"`

	// Completion client
	LLM LLMConfig `yaml:"llm"`

	// Analyst pipeline
	Analyst AnalystConfig `yaml:"analyst"`

	// HTTP API
	Server ServerConfig `yaml:"server"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// WarehouseConfig configures the membership warehouse.
type WarehouseConfig struct {
	DatabasePath string `yaml:"database_path"`
}

// RulebookConfig configures the rulebook index.
type RulebookConfig struct {
	// Path is the plain-text/markdown rulebook source.
	Path string `yaml:"path"`

	// IndexPath is the SQLite file holding chunks and embeddings.
	IndexPath string `yaml:"index_path"`

	// TopK is the chunk count retrieved per query.
	TopK int `yaml:"top_k"`
}

// LLMConfig configures the completion client.
type LLMConfig struct {
	Provider string `yaml:"provider"` // gemini
	APIKey   string `yaml:"api_key"`
	Model    string `yaml:"model"`
	BaseURL  string `yaml:"base_url"`
	Timeout  string `yaml:"timeout"`
}

// AnalystConfig configures the analyst pipeline.
type AnalystConfig struct {
	// Variant: "direct" or "agent"
	Variant string `yaml:"variant"`

	// Thresholds are the signal classification cutoffs.
	Thresholds signal.Thresholds `yaml:"thresholds"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// ValidVariants enumerates the analyst variants.
var ValidVariants = []string{"direct", "agent"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Warehouse: WarehouseConfig{
			DatabasePath: "data/memberlens.db",
		},
		Rulebook: RulebookConfig{
			Path:      "data/rulebook.md",
			IndexPath: "data/rulebook_index.db",
			TopK:      4,
		},
		Embedding: embedding.DefaultConfig(),
		LLM: LLMConfig{
			Provider: "gemini",
			Model:    "gemini-2.5-flash",
			BaseURL:  "https://generativelanguage.googleapis.com/v1beta",
			Timeout:  "60s",
		},
		Analyst: AnalystConfig{
			Variant:    "direct",
			Thresholds: signal.DefaultThresholds(),
		},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load loads configuration from a YAML file. A missing file is not an
// error; defaults plus environment overrides apply either way.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides. The
// Google key feeds both the completion client and the GenAI embedding
// backend; GEMINI_API_KEY wins over GOOGLE_AI_API_KEY when both are
// set.
func (c *Config) applyEnvOverrides() {
	if key := os.Getenv("GOOGLE_AI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.Embedding.GenAIAPIKey = key
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.LLM.APIKey = key
		c.Embedding.GenAIAPIKey = key
	}

	if host := os.Getenv("OLLAMA_HOST"); host != "" {
		c.Embedding.OllamaEndpoint = host
	}

	if path := os.Getenv("MEMBERLENS_DB"); path != "" {
		c.Warehouse.DatabasePath = path
	}
	if path := os.Getenv("MEMBERLENS_RULEBOOK"); path != "" {
		c.Rulebook.Path = path
	}
	if path := os.Getenv("MEMBERLENS_INDEX"); path != "" {
		c.Rulebook.IndexPath = path
	}
	if addr := os.Getenv("MEMBERLENS_ADDR"); addr != "" {
		c.Server.Addr = addr
	}
	if variant := os.Getenv("MEMBERLENS_VARIANT"); variant != "" {
		c.Analyst.Variant = variant
	}
}

// GetLLMTimeout returns the completion timeout as a duration.
func (c *Config) GetLLMTimeout() time.Duration {
	d, err := time.ParseDuration(c.LLM.Timeout)
	if err != nil {
		return 60 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.LLM.APIKey == "" {
		return fmt.Errorf("Gemini API key not configured (set GOOGLE_AI_API_KEY or GEMINI_API_KEY)")
	}

	validVariant := false
	for _, v := range ValidVariants {
		if c.Analyst.Variant == v {
			validVariant = true
			break
		}
	}
	if !validVariant {
		return fmt.Errorf("invalid analyst variant: %s (valid: %v)", c.Analyst.Variant, ValidVariants)
	}

	if c.Embedding.Provider == "genai" && c.Embedding.GenAIAPIKey == "" {
		return fmt.Errorf("GenAI embedding provider requires an API key")
	}

	return nil
}
