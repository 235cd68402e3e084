package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the ramsgen server.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Embedding EmbeddingConfig
	Agents    AgentsConfig
	Cache     CacheConfig
	Runner    RunnerConfig
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

type RedisConfig struct {
	URL string
}

type EmbeddingConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries uint64
}

type AgentsConfig struct {
	RiskBaseURL   string
	MethodBaseURL string
	Timeout       time.Duration
}

// CacheConfig carries the semantic-cache scoring knobs. The weights and
// thresholds are a tuned heuristic, not a guarantee; they default to the
// values the cache was calibrated against.
type CacheConfig struct {
	TTL                time.Duration
	PrefilterThreshold float64
	AcceptThreshold    float64
	VectorWeight       float64
	LexicalWeight      float64
	MaxCandidates      int
}

type RunnerConfig struct {
	HeartbeatInterval time.Duration
}

// Load reads configuration from environment variables and returns a validated
// Config. Returns an error with a descriptive message if any required value is
// missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("RAMSGEN_PORT", 8080),
			Env:  envString("RAMSGEN_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Embedding: EmbeddingConfig{
			APIKey:     os.Getenv("OPENAI_API_KEY"),
			BaseURL:    envString("OPENAI_BASE_URL", "https://api.openai.com"),
			Model:      envString("EMBEDDING_MODEL", "text-embedding-3-small"),
			Timeout:    envDuration("EMBEDDING_TIMEOUT", 30*time.Second),
			MaxRetries: uint64(envInt("EMBEDDING_MAX_RETRIES", 3)),
		},
		Agents: AgentsConfig{
			RiskBaseURL:   os.Getenv("RISK_AGENT_URL"),
			MethodBaseURL: os.Getenv("METHOD_AGENT_URL"),
			Timeout:       envDuration("AGENT_TIMEOUT", 7*time.Minute),
		},
		Cache: CacheConfig{
			TTL:                envDuration("SEMCACHE_TTL", 30*24*time.Hour),
			PrefilterThreshold: envFloat("SEMCACHE_PREFILTER_THRESHOLD", 0.85),
			AcceptThreshold:    envFloat("SEMCACHE_ACCEPT_THRESHOLD", 0.80),
			VectorWeight:       envFloat("SEMCACHE_VECTOR_WEIGHT", 0.7),
			LexicalWeight:      envFloat("SEMCACHE_LEXICAL_WEIGHT", 0.3),
			MaxCandidates:      envInt("SEMCACHE_MAX_CANDIDATES", 3),
		},
		Runner: RunnerConfig{
			HeartbeatInterval: envDuration("RUNNER_HEARTBEAT_INTERVAL", 15*time.Second),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Embedding.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required")
	}

	if c.Agents.RiskBaseURL == "" {
		return fmt.Errorf("RISK_AGENT_URL is required")
	}
	if c.Agents.MethodBaseURL == "" {
		return fmt.Errorf("METHOD_AGENT_URL is required")
	}
	for name, u := range map[string]string{
		"RISK_AGENT_URL":   c.Agents.RiskBaseURL,
		"METHOD_AGENT_URL": c.Agents.MethodBaseURL,
	} {
		if !strings.HasPrefix(u, "http://") && !strings.HasPrefix(u, "https://") {
			return fmt.Errorf("%s must start with http:// or https://, got %q", name, u)
		}
	}

	if c.Cache.AcceptThreshold > 1 || c.Cache.AcceptThreshold < 0 {
		return fmt.Errorf("SEMCACHE_ACCEPT_THRESHOLD must be in [0, 1], got %v", c.Cache.AcceptThreshold)
	}
	if c.Cache.PrefilterThreshold > 1 || c.Cache.PrefilterThreshold < 0 {
		return fmt.Errorf("SEMCACHE_PREFILTER_THRESHOLD must be in [0, 1], got %v", c.Cache.PrefilterThreshold)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
