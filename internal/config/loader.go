package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// DefaultListenAddr is used when server.listen_addr is empty.
const DefaultListenAddr = ":8080"

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and
// [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	applyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogJSON
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if cfg.Server.StreamTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.stream_timeout must not be negative"))
	}

	// Org configuration table
	if cfg.OrgConfig.Table == "" {
		errs = append(errs, fmt.Errorf("org_config.table is required"))
	}
	if cfg.OrgConfig.CacheTTL < 0 {
		errs = append(errs, fmt.Errorf("org_config.cache_ttl must not be negative"))
	}

	// Knowledge backends
	if cfg.KM.BaseURL == "" && cfg.Knowledge.PostgresDSN == "" {
		slog.Warn("no knowledge backend configured; retrieval will return no documents")
	}
	if cfg.KM.BaseURL != "" && cfg.KM.TokenEnv == "" {
		slog.Warn("km.token_env is not set; hosted search requests will be unauthenticated")
	}
	if cfg.Knowledge.PostgresDSN != "" && cfg.Knowledge.OpenAIKeyEnv == "" {
		errs = append(errs, fmt.Errorf("knowledge_store.openai_key_env is required when knowledge_store.postgres_dsn is set"))
	}

	// Quick replies
	if cfg.QuickReply.Threshold < 0 || cfg.QuickReply.Threshold > 1 {
		errs = append(errs, fmt.Errorf("quick_reply.threshold %.2f is out of range [0, 1]", cfg.QuickReply.Threshold))
	}

	// Audio cache
	if cfg.AudioCache.MaxEntries < 0 {
		errs = append(errs, fmt.Errorf("audio_cache.max_entries must not be negative"))
	}
	if cfg.AudioCache.RedisAddr == "" && len(cfg.AudioCache.RedisPasswordEnv) > 0 {
		slog.Warn("audio_cache.redis_password_env is set but audio_cache.redis_addr is empty; using the in-memory cache")
	}

	// Secret resolution — missing variables are a deployment mistake worth
	// failing fast on.
	if cfg.KM.TokenEnv != "" && os.Getenv(cfg.KM.TokenEnv) == "" {
		errs = append(errs, fmt.Errorf("km.token_env: environment variable %q is empty", cfg.KM.TokenEnv))
	}
	if cfg.Knowledge.OpenAIKeyEnv != "" && os.Getenv(cfg.Knowledge.OpenAIKeyEnv) == "" {
		errs = append(errs, fmt.Errorf("knowledge_store.openai_key_env: environment variable %q is empty", cfg.Knowledge.OpenAIKeyEnv))
	}

	return errors.Join(errs...)
}
