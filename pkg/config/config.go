// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Document, Search, Postgres, Kafka, Redis, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Document  DocumentConfig  `yaml:"document"`
	Search    SearchConfig    `yaml:"search"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Analytics AnalyticsConfig `yaml:"analytics"`
	Logging   LoggingConfig   `yaml:"logging"`
	Tracing   TracingConfig   `yaml:"tracing"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`

	// RateLimitPerMinute caps API requests per client IP. Zero disables it.
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
	// CORSAllowOrigins enables CORS headers for the listed origins; "*"
	// allows any.
	CORSAllowOrigins []string `yaml:"corsAllowOrigins"`
}

// Document sources understood by the loader.
const (
	SourceFile     = "file"
	SourcePostgres = "postgres"
)

// DocumentConfig says where the searchable document comes from.
type DocumentConfig struct {
	Source     string `yaml:"source"`
	Path       string `yaml:"path"`
	DocumentID string `yaml:"documentId"`
	Table      string `yaml:"table"`
}

// SearchConfig controls tokenization and query limits.
type SearchConfig struct {
	// ContextUnit is "slots" (2k tokens per side) or "words".
	ContextUnit         string `yaml:"contextUnit"`
	WordPattern         string `yaml:"wordPattern"`
	DefaultContextWords int    `yaml:"defaultContextWords"`
	MaxContextWords     int    `yaml:"maxContextWords"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	AnalyticsEvents string `yaml:"analyticsEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// AnalyticsConfig configures the standalone analytics service that consumes
// the events the searcher publishes.
type AnalyticsConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// TracingConfig toggles slog span logging.
type TracingConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided), applies environment-variable
// overrides and validates the result.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.writeTimeout must be positive, got %s", c.Server.WriteTimeout)
	}
	if c.Server.RateLimitPerMinute < 0 {
		return fmt.Errorf("server.rateLimitPerMinute must be >= 0, got %d", c.Server.RateLimitPerMinute)
	}
	switch c.Document.Source {
	case SourceFile:
		if c.Document.Path == "" {
			return fmt.Errorf("document.path is required for source %q", SourceFile)
		}
	case SourcePostgres:
		if c.Document.DocumentID == "" {
			return fmt.Errorf("document.documentId is required for source %q", SourcePostgres)
		}
	default:
		return fmt.Errorf("unknown document.source %q", c.Document.Source)
	}
	switch strings.ToLower(c.Search.ContextUnit) {
	case "", "slots", "words":
	default:
		return fmt.Errorf("unknown search.contextUnit %q", c.Search.ContextUnit)
	}
	if c.Search.DefaultContextWords < 0 {
		return fmt.Errorf("search.defaultContextWords must be >= 0, got %d", c.Search.DefaultContextWords)
	}
	if c.Search.MaxContextWords < c.Search.DefaultContextWords {
		return fmt.Errorf("search.maxContextWords (%d) is below defaultContextWords (%d)",
			c.Search.MaxContextWords, c.Search.DefaultContextWords)
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:               8080,
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       30 * time.Second,
			ShutdownTimeout:    15 * time.Second,
			RateLimitPerMinute: 600,
		},
		Document: DocumentConfig{
			Source: SourceFile,
			Path:   "data/document.txt",
			Table:  "documents",
		},
		Search: SearchConfig{
			ContextUnit:         "slots",
			DefaultContextWords: 3,
			MaxContextWords:     100,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "textsearcher",
			User:            "textsearcher",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    5,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "text-searcher-analytics",
			Topics: KafkaTopics{
				AnalyticsEvents: "search-analytics",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Analytics: AnalyticsConfig{
			Port: 8090,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads TS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("TS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("TS_SERVER_RATE_LIMIT"); v != "" {
		if limit, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimitPerMinute = limit
		}
	}
	if v := os.Getenv("TS_SERVER_CORS_ORIGINS"); v != "" {
		cfg.Server.CORSAllowOrigins = strings.Split(v, ",")
	}
	if v := os.Getenv("TS_DOCUMENT_SOURCE"); v != "" {
		cfg.Document.Source = v
	}
	if v := os.Getenv("TS_DOCUMENT_PATH"); v != "" {
		cfg.Document.Path = v
	}
	if v := os.Getenv("TS_DOCUMENT_ID"); v != "" {
		cfg.Document.DocumentID = v
	}
	if v := os.Getenv("TS_SEARCH_CONTEXT_UNIT"); v != "" {
		cfg.Search.ContextUnit = v
	}
	if v := os.Getenv("TS_SEARCH_MAX_CONTEXT_WORDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.MaxContextWords = n
		}
	}
	if v := os.Getenv("TS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("TS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("TS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("TS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("TS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("TS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
		cfg.Kafka.Enabled = true
	}
	if v := os.Getenv("TS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("TS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("TS_ANALYTICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Analytics.Port = port
		}
	}
	if v := os.Getenv("TS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("TS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
