package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration for the label scanner.
type Config struct {
	Knowledge KnowledgeConfig `yaml:"knowledge"`
	Model     ModelConfig     `yaml:"model"`
	Server    ServerConfig    `yaml:"server"`
	History   HistoryConfig   `yaml:"history"`
	Cache     CacheConfig     `yaml:"cache"`
	Batch     BatchConfig     `yaml:"batch"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// KnowledgeConfig holds ingredient knowledge base configuration.
type KnowledgeConfig struct {
	Sources   []string `yaml:"sources"`   // Files or doublestar patterns; empty uses the bundled table
	Threshold float64  `yaml:"threshold"` // Minimum similarity score for a fuzzy match
	Scorer    string   `yaml:"scorer"`    // "ratio" or "levenshtein"
}

// ModelConfig holds vision model configuration.
type ModelConfig struct {
	Provider           string  `yaml:"provider"` // "gemini", "mock"
	Model              string  `yaml:"model"`
	BaseURL            string  `yaml:"base_url"`
	APIKeyEnv          string  `yaml:"api_key_env"` // Environment variable for API key
	TimeoutSeconds     int     `yaml:"timeout_seconds"`
	MaxRetries         int     `yaml:"max_retries"`
	RetryDelayMS       int     `yaml:"retry_delay_ms"`
	ExtractTemperature float64 `yaml:"extract_temperature"`
	ExtractMaxTokens   int     `yaml:"extract_max_tokens"`
	AnalyzeTemperature float64 `yaml:"analyze_temperature"`
	AnalyzeMaxTokens   int     `yaml:"analyze_max_tokens"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Addr              string   `yaml:"addr"`
	MaxUploadBytes    int64    `yaml:"max_upload_bytes"`
	AllowedOrigins    []string `yaml:"allowed_origins"`
	AllowedExtensions []string `yaml:"allowed_extensions"`
}

// HistoryConfig holds scan history configuration.
type HistoryConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Backend  string `yaml:"backend"`   // "bolt" or "memory"
	Path     string `yaml:"path"`      // Bolt file; defaults to .labelscan/history.db under the root directory
	MaxScans int    `yaml:"max_scans"` // Memory backend only; 0 keeps every scan
}

// CacheConfig holds report cache configuration.
type CacheConfig struct {
	Enabled    bool `yaml:"enabled"`
	MaxEntries int  `yaml:"max_entries"`
	TTLSeconds int  `yaml:"ttl_seconds"`
}

// BatchConfig holds the image patterns used by batch scans.
type BatchConfig struct {
	Includes []string `yaml:"includes"`
	Excludes []string `yaml:"excludes"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "console" or "json"
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Knowledge: KnowledgeConfig{
			Threshold: 0.65,
			Scorer:    "ratio",
		},
		Model: ModelConfig{
			Provider:           "gemini",
			Model:              "gemini-2.5-flash",
			BaseURL:            "https://generativelanguage.googleapis.com/v1beta",
			APIKeyEnv:          "GOOGLE_API_KEY",
			TimeoutSeconds:     120,
			MaxRetries:         3,
			RetryDelayMS:       500,
			ExtractTemperature: 0.1,
			ExtractMaxTokens:   2048,
			AnalyzeTemperature: 0.3,
			AnalyzeMaxTokens:   4096,
		},
		Server: ServerConfig{
			Addr:              ":5000",
			MaxUploadBytes:    10 * 1024 * 1024,
			AllowedOrigins:    []string{"*"},
			AllowedExtensions: []string{"png", "jpg", "jpeg", "webp"},
		},
		History: HistoryConfig{
			Enabled:  true,
			Backend:  "bolt",
			MaxScans: 500,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxEntries: 100,
			TTLSeconds: 600,
		},
		Batch: BatchConfig{
			Includes: []string{"**/*.png", "**/*.jpg", "**/*.jpeg", "**/*.webp"},
			Excludes: []string{"**/.labelscan/**", "**/.git/**"},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Validate reports configuration values the scanner cannot run with.
func (c *Config) Validate() error {
	if c.Knowledge.Threshold < 0 || c.Knowledge.Threshold > 1 {
		return fmt.Errorf("knowledge.threshold must be within [0,1], got %g", c.Knowledge.Threshold)
	}
	switch c.Model.Provider {
	case "gemini", "mock":
	default:
		return fmt.Errorf("unsupported model provider: %s", c.Model.Provider)
	}
	if c.Model.Provider == "gemini" && c.Model.Model == "" {
		return fmt.Errorf("model.model is required")
	}
	switch c.History.Backend {
	case "bolt", "memory":
	default:
		return fmt.Errorf("unsupported history backend: %s", c.History.Backend)
	}
	if c.Server.MaxUploadBytes <= 0 {
		return fmt.Errorf("server.max_upload_bytes must be positive")
	}
	return nil
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil // Return defaults if no config file
		}
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromDir loads configuration from a directory (looks for labelscan.yaml).
func LoadFromDir(dir string) (*Config, error) {
	path := filepath.Join(dir, "labelscan.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	path = filepath.Join(DataDir(dir), "config.yaml")
	if _, err := os.Stat(path); err == nil {
		return Load(path)
	}

	return DefaultConfig(), nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// DataDir returns the directory holding local state for dir.
func DataDir(dir string) string {
	return filepath.Join(dir, ".labelscan")
}

// HistoryDBPath returns the path to the scan history database.
func (c *Config) HistoryDBPath(dir string) string {
	if c.History.Path != "" {
		if filepath.IsAbs(c.History.Path) {
			return c.History.Path
		}
		return filepath.Join(dir, c.History.Path)
	}
	return filepath.Join(DataDir(dir), "history.db")
}

// EnsureDataDir ensures the .labelscan directory exists.
func EnsureDataDir(dir string) error {
	return os.MkdirAll(DataDir(dir), 0755)
}
