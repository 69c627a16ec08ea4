package config

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"time"
)

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `json:"server"`
	Database  DatabaseConfig  `json:"database"`
	Embedding EmbeddingConfig `json:"embedding"`
	LLM       LLMConfig       `json:"llm"`
	Memory    MemoryConfig    `json:"memory"`
}

type ServerConfig struct {
	Port     int    `json:"port"`
	LogLevel string `json:"log_level"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `json:"postgres"`
	Redis    RedisConfig    `json:"redis"`
}

type PostgresConfig struct {
	DSN           string `json:"dsn"`
	MigrationsDir string `json:"migrations_dir"`
}

type RedisConfig struct {
	URL string `json:"url"`
}

type EmbeddingConfig struct {
	Provider  string `json:"provider"` // "api", "local" or "none"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	Dimension int    `json:"dimension"`
	TimeoutMS int    `json:"timeout_ms"`
}

type LLMConfig struct {
	Provider  string `json:"provider"` // "openai", "anthropic", "ollama" or "none"
	Endpoint  string `json:"endpoint"`
	Model     string `json:"model"`
	APIKey    string `json:"api_key"`
	TimeoutMS int    `json:"timeout_ms"`
}

type MemoryConfig struct {
	IndexPath           string  `json:"index_path"`
	Role                string  `json:"role"` // "writer" (default) or "reader"
	SimilarityThreshold float32 `json:"similarity_threshold"`
	EmbedTimeoutMS      int     `json:"embed_timeout_ms"`
	ReloadIntervalSec   int     `json:"reload_interval_sec"`
}

// IsReader reports whether this process only consumes index snapshots
// written elsewhere. Only readers reload the index; the writer is the
// source of truth for its own snapshot.
func (m MemoryConfig) IsReader() bool {
	return m.Role == "reader"
}

// EmbedTimeout returns the embedding timeout for interactive requests.
func (m MemoryConfig) EmbedTimeout() time.Duration {
	if m.EmbedTimeoutMS <= 0 {
		return 5 * time.Second
	}
	return time.Duration(m.EmbedTimeoutMS) * time.Millisecond
}

// ReloadInterval returns the periodic index reload interval for reader processes.
func (m MemoryConfig) ReloadInterval() time.Duration {
	if m.ReloadIntervalSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(m.ReloadIntervalSec) * time.Second
}

// envVarRe matches ${VAR} and ${VAR:default} patterns.
var envVarRe = regexp.MustCompile(`\$\{(\w+)(?::([^}]*))?\}`)

// Load reads a JSON config file and substitutes environment variable references.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	// Substitute ${VAR} and ${VAR:default} with environment values.
	resolved := envVarRe.ReplaceAllStringFunc(string(data), func(match string) string {
		parts := envVarRe.FindStringSubmatch(match)
		name := parts[1]
		defaultVal := parts[2]
		if v := os.Getenv(name); v != "" {
			return v
		}
		return defaultVal
	})

	var cfg Config
	if err := json.Unmarshal([]byte(resolved), &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Memory.IndexPath == "" {
		cfg.Memory.IndexPath = "data/memory.idx"
	}
	if cfg.Memory.SimilarityThreshold == 0 {
		cfg.Memory.SimilarityThreshold = 0.5
	}
	return &cfg, nil
}
