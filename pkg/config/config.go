// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for the
// searcher and indexer services (Server, Postgres, Kafka, Redis, Indexer,
// Search, Proximity, etc.).
package config

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Kafka     KafkaConfig     `yaml:"kafka"`
	Redis     RedisConfig     `yaml:"redis"`
	Indexer   IndexerConfig   `yaml:"indexer"`
	Search    SearchConfig    `yaml:"search"`
	Proximity ProximityConfig `yaml:"proximity"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	// RateLimitPerMinute caps requests per client address. Zero disables it.
	RateLimitPerMinute int `yaml:"rateLimitPerMinute"`
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
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DocumentIngest string `yaml:"documentIngest"`
	MatchSpans     string `yaml:"matchSpans"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls the indexing engine's flush policy, sharding and
// zone layout.
type IndexerConfig struct {
	DataDir        string        `yaml:"dataDir"`
	SegmentMaxSize int64         `yaml:"segmentMaxSize"`
	FlushInterval  time.Duration `yaml:"flushInterval"`
	NumShards      int           `yaml:"numShards"`
	// ExpansionOnlyFields are indexed only into the unfielded expansion
	// zone. A fielded proximity query on one of them falls back to it.
	ExpansionOnlyFields []string `yaml:"expansionOnlyFields"`
}

// SearchConfig controls query execution limits and timeouts.
type SearchConfig struct {
	MaxResults               int           `yaml:"maxResults"`
	DefaultLimit             int           `yaml:"defaultLimit"`
	TimeoutPerShard          time.Duration `yaml:"timeoutPerShard"`
	MaxConcurrentEvaluations int           `yaml:"maxConcurrentEvaluations"`
	// ReloadInterval is how often the searcher picks up segments flushed
	// by the indexer.
	ReloadInterval    time.Duration `yaml:"reloadInterval"`
	SpanBatchSize     int           `yaml:"spanBatchSize"`
	SpanFlushInterval time.Duration `yaml:"spanFlushInterval"`
}

// ProximityConfig tunes phrase and within-distance evaluation.
type ProximityConfig struct {
	MaxPositionsPerTerm int     `yaml:"maxPositionsPerTerm"`
	DefaultMaxScore     float32 `yaml:"defaultMaxScore"`
	// Synonyms maps a phrase ("new york") or a single word to the term
	// indexed alongside it.
	Synonyms     map[string]string `yaml:"synonyms"`
	SynonymScore int64             `yaml:"synonymScore"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
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
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d out of range", c.Server.Port))
	}
	if c.Server.RateLimitPerMinute < 0 {
		errs = append(errs, fmt.Errorf("server.rateLimitPerMinute must not be negative, got %d", c.Server.RateLimitPerMinute))
	}
	if c.Indexer.NumShards < 1 {
		errs = append(errs, fmt.Errorf("indexer.numShards must be at least 1, got %d", c.Indexer.NumShards))
	}
	if c.Search.MaxResults < 1 {
		errs = append(errs, fmt.Errorf("search.maxResults must be positive, got %d", c.Search.MaxResults))
	}
	if c.Search.DefaultLimit < 1 || c.Search.DefaultLimit > c.Search.MaxResults {
		errs = append(errs, fmt.Errorf("search.defaultLimit must be in [1, %d], got %d", c.Search.MaxResults, c.Search.DefaultLimit))
	}
	if c.Search.MaxConcurrentEvaluations < 1 {
		errs = append(errs, fmt.Errorf("search.maxConcurrentEvaluations must be positive, got %d", c.Search.MaxConcurrentEvaluations))
	}
	if c.Proximity.MaxPositionsPerTerm < 0 {
		errs = append(errs, fmt.Errorf("proximity.maxPositionsPerTerm must not be negative, got %d", c.Proximity.MaxPositionsPerTerm))
	}
	if c.Proximity.DefaultMaxScore < 0 {
		errs = append(errs, fmt.Errorf("proximity.defaultMaxScore must not be negative, got %v", c.Proximity.DefaultMaxScore))
	}
	for phrase, synonym := range c.Proximity.Synonyms {
		if strings.TrimSpace(phrase) == "" || strings.TrimSpace(synonym) == "" {
			errs = append(errs, fmt.Errorf("proximity.synonyms has an empty entry %q -> %q", phrase, synonym))
		}
	}
	return errors.Join(errs...)
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "proximitysearch",
			User:            "proximitysearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "proximitysearch-indexer",
			Topics: KafkaTopics{
				DocumentIngest: "document-ingest",
				MatchSpans:     "match-spans",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:        "./data/index",
			SegmentMaxSize: 10000,
			FlushInterval:  30 * time.Second,
			NumShards:      4,
		},
		Search: SearchConfig{
			MaxResults:               100,
			DefaultLimit:             10,
			TimeoutPerShard:          2 * time.Second,
			MaxConcurrentEvaluations: 8,
			ReloadInterval:           10 * time.Second,
			SpanBatchSize:            100,
			SpanFlushInterval:        5 * time.Second,
		},
		Proximity: ProximityConfig{
			MaxPositionsPerTerm: 50000,
			DefaultMaxScore:     math.MaxFloat32,
			SynonymScore:        50,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// applyEnvOverrides reads SP_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SP_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("SP_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("SP_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("SP_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("SP_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("SP_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_INDEXER_NUM_SHARDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.NumShards = n
		}
	}
	if v := os.Getenv("SP_PROXIMITY_MAX_POSITIONS_PER_TERM"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Proximity.MaxPositionsPerTerm = n
		}
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("SP_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
