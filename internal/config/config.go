// Package config provides the server configuration schema and loader for
// Answercore.
//
// The file configures the process: listen address, logging, upstream
// endpoints, and cache backends. Everything organisation-scoped
// (localisations, prompts, voices, API keys) lives in the org-config table
// and is resolved per request, never here. Secrets are not written into the
// file either; fields ending in _env name the environment variable that
// holds the value.
package config

import (
	"os"
	"time"
)

// LogLevel controls log verbosity for the Answercore server.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// LogFormat selects the slog handler.
type LogFormat string

const (
	// LogText is the human-readable handler for development.
	LogText LogFormat = "text"

	// LogJSON is the structured handler for production.
	LogJSON LogFormat = "json"
)

// IsValid reports whether f is a recognised log format.
func (f LogFormat) IsValid() bool {
	return f == LogText || f == LogJSON
}

// Config is the root configuration structure for Answercore.
// It is typically loaded from a YAML file using [Load] or [LoadFromReader].
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	KM         KMConfig         `yaml:"km"`
	Knowledge  KnowledgeConfig  `yaml:"knowledge_store"`
	QuickReply QuickReplyConfig `yaml:"quick_reply"`
	OrgConfig  OrgConfigConfig  `yaml:"org_config"`
	AudioCache AudioCacheConfig `yaml:"audio_cache"`
	Metrics    MetricsConfig    `yaml:"metrics"`
}

// ServerConfig holds network and logging settings.
type ServerConfig struct {
	// ListenAddr is the TCP address the server listens on (e.g., ":8080").
	ListenAddr string `yaml:"listen_addr"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// LogFormat selects text or json log output. Empty means json.
	LogFormat LogFormat `yaml:"log_format"`

	// StreamTimeout bounds one answer stream end to end. Zero disables.
	StreamTimeout time.Duration `yaml:"stream_timeout"`
}

// KMConfig points at the hosted knowledge-search API.
type KMConfig struct {
	// BaseURL is the search endpoint. Empty disables the hosted backend.
	BaseURL string `yaml:"base_url"`

	// TokenEnv names the environment variable holding the bearer token.
	TokenEnv string `yaml:"token_env"`
}

// Token reads the bearer token from the configured environment variable.
func (c KMConfig) Token() string {
	if c.TokenEnv == "" {
		return ""
	}
	return os.Getenv(c.TokenEnv)
}

// KnowledgeConfig points at the self-hosted knowledge store. Configured, it
// replaces the hosted KM backend.
type KnowledgeConfig struct {
	// PostgresDSN is the connection string of the pgvector knowledge store.
	// Empty disables the self-hosted backend.
	PostgresDSN string `yaml:"postgres_dsn"`

	// EmbeddingModel is the query-embedding model. Empty uses the embeddings
	// provider's default.
	EmbeddingModel string `yaml:"embedding_model"`

	// OpenAIKeyEnv names the environment variable holding the API key the
	// query embedder authenticates with.
	OpenAIKeyEnv string `yaml:"openai_key_env"`
}

// OpenAIKey reads the embeddings API key from the environment.
func (c KnowledgeConfig) OpenAIKey() string {
	if c.OpenAIKeyEnv == "" {
		return ""
	}
	return os.Getenv(c.OpenAIKeyEnv)
}

// QuickReplyConfig points at the hosted quick-reply scripts endpoint.
type QuickReplyConfig struct {
	// BaseURL is the scripts endpoint. Empty disables quick replies.
	BaseURL string `yaml:"base_url"`

	// Threshold overrides the minimum similarity score for a match.
	// Zero keeps the default.
	Threshold float64 `yaml:"threshold"`
}

// OrgConfigConfig locates the organisation-configuration DynamoDB table.
type OrgConfigConfig struct {
	// Table is the DynamoDB table name.
	Table string `yaml:"table"`

	// Region is the AWS region of the table. Empty uses the SDK default
	// resolution chain.
	Region string `yaml:"region"`

	// CacheTTL is how long a loaded configuration is reused before the table
	// is consulted again. Zero keeps the default.
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

// AudioCacheConfig selects the audio cache backend.
type AudioCacheConfig struct {
	// RedisAddr is the shared cache address ("host:port"). Empty selects the
	// in-process memory cache.
	RedisAddr string `yaml:"redis_addr"`

	// RedisPasswordEnv names the environment variable holding the redis
	// password, when the server requires one.
	RedisPasswordEnv string `yaml:"redis_password_env"`

	// MaxEntries bounds the in-process memory cache. Zero keeps the default.
	MaxEntries int `yaml:"max_entries"`
}

// RedisPassword reads the redis password from the environment.
func (c AudioCacheConfig) RedisPassword() string {
	if c.RedisPasswordEnv == "" {
		return ""
	}
	return os.Getenv(c.RedisPasswordEnv)
}

// MetricsConfig controls the Prometheus /metrics endpoint.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}
