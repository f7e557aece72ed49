package config

import (
	"fmt"
	"time"

	"github.com/RishiKendai/palimpsest/internal/configs/env"
)

// Metadata sources
const (
	MetadataFromURL   = "url"
	MetadataFromMongo = "mongo"
)

// Config holds all configuration for the application
type Config struct {
	// MongoDB
	MongoURI    string
	MongoDBName string

	// Redis
	RedisHost               string
	RedisPassword           string
	RedisStreamKey          string
	RedisConsumerGroup      string
	RedisDeadLetterKey      string
	StreamRetentionDuration time.Duration

	// Inputs
	MetadataURL    string
	CorpusURL      string
	MetadataSource string
	FetchTimeout   time.Duration

	// JWT
	JWTSecret string
	JWTIssuer string

	// Rate Limiting
	RateLimitRPS float64

	// Runs
	MaxConcurrentRuns int
	RunTimeout        time.Duration
	DefaultMinWords   int
	ParallelMatching  bool
	MatchWorkers      int

	// Logging
	LogLevel string

	// Server
	ServerPort  string
	MetricsPort string
}

func Load() (*Config, error) {
	cfg := &Config{}

	// MongoDB
	cfg.MongoURI = env.GetEnv("MONGO_URI", "")
	cfg.MongoDBName = env.GetEnv("MONGO_DB_NAME", "palimpsest")

	// Redis
	cfg.RedisHost = env.GetEnv("REDIS_HOST", "localhost:6379")
	cfg.RedisPassword = env.GetEnv("REDIS_PASSWORD", "")
	cfg.RedisStreamKey = env.GetEnv("REDIS_STREAM_KEY", "reuse:runs")
	cfg.RedisConsumerGroup = env.GetEnv("REDIS_CONSUMER_GROUP", "reuse:workers")
	cfg.RedisDeadLetterKey = env.GetEnv("REDIS_DEAD_LETTER_KEY", "reuse:runs:dlq")
	retentionHours := env.GetEnvInt("STREAM_RETENTION_DURATION", 24)
	cfg.StreamRetentionDuration = time.Duration(retentionHours) * time.Hour

	// Inputs
	cfg.MetadataURL = env.GetEnv("METADATA_URL", "")
	cfg.CorpusURL = env.GetEnv("CORPUS_URL", "")
	cfg.MetadataSource = env.GetEnv("METADATA_SOURCE", MetadataFromURL)
	cfg.FetchTimeout = time.Duration(env.GetEnvInt("FETCH_TIMEOUT_SECONDS", 60)) * time.Second

	// JWT
	cfg.JWTSecret = env.GetEnv("JWT_SECRET", "")
	cfg.JWTIssuer = env.GetEnv("JWT_ISSUER", "")

	// Rate Limiting
	cfg.RateLimitRPS = env.GetEnvFloat("RATE_LIMIT_RPS", 10.0)

	// Runs
	cfg.MaxConcurrentRuns = env.GetEnvInt("MAX_CONCURRENT_RUNS", 2)
	cfg.RunTimeout = time.Duration(env.GetEnvInt("RUN_TIMEOUT_MINUTES", 30)) * time.Minute
	cfg.DefaultMinWords = env.GetEnvInt("DEFAULT_MIN_WORDS", 20)
	cfg.ParallelMatching = env.GetEnvBool("PARALLEL_MATCHING", true)
	cfg.MatchWorkers = env.GetEnvInt("MATCH_WORKERS", 0)

	// Logging
	cfg.LogLevel = env.GetEnv("LOG_LEVEL", "info")

	// Server
	cfg.ServerPort = env.GetEnv("SERVER_PORT", "8080")
	cfg.MetricsPort = env.GetEnv("METRICS_PORT", "2112")

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.MongoURI == "" {
		return fmt.Errorf("MONGO_URI is required")
	}
	if c.MongoDBName == "" {
		return fmt.Errorf("MONGO_DB_NAME is required")
	}
	if c.RedisHost == "" {
		return fmt.Errorf("REDIS_HOST is required")
	}
	if c.CorpusURL == "" {
		return fmt.Errorf("CORPUS_URL is required")
	}
	switch c.MetadataSource {
	case MetadataFromURL:
		if c.MetadataURL == "" {
			return fmt.Errorf("METADATA_URL is required when METADATA_SOURCE is %q", MetadataFromURL)
		}
	case MetadataFromMongo:
	default:
		return fmt.Errorf("METADATA_SOURCE must be %q or %q, got %q", MetadataFromURL, MetadataFromMongo, c.MetadataSource)
	}
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	if c.MaxConcurrentRuns <= 0 {
		return fmt.Errorf("MAX_CONCURRENT_RUNS must be greater than 0")
	}
	if c.DefaultMinWords <= 0 {
		return fmt.Errorf("DEFAULT_MIN_WORDS must be greater than 0")
	}
	if c.RunTimeout <= 0 {
		return fmt.Errorf("RUN_TIMEOUT_MINUTES must be greater than 0")
	}
	if c.StreamRetentionDuration <= 0 {
		return fmt.Errorf("STREAM_RETENTION_DURATION must be greater than 0")
	}
	return nil
}
