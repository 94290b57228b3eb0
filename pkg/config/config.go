// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, Analysis, Crawl).
package config

import (
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Crawl    CrawlConfig    `yaml:"crawl"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings. RateLimit is requests per minute
// per client IP; zero disables limiting.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RateLimit       int           `yaml:"rateLimit"`
	CORSOrigins     []string      `yaml:"corsOrigins"`
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
	CrawlRecords  string `yaml:"crawlRecords"`
	IndexComplete string `yaml:"indexComplete"`
	SearchEvents  string `yaml:"searchEvents"`
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

// IndexerConfig controls ingestion batching, worker fan-out and the merge.
type IndexerConfig struct {
	DataDir       string `yaml:"dataDir"`
	BatchSize     int    `yaml:"batchSize"`
	ChunkSize     int    `yaml:"chunkSize"`
	Workers       int    `yaml:"workers"`
	ParallelMerge bool   `yaml:"parallelMerge"`
	KeepPartials  bool   `yaml:"keepPartials"`
	NotifyOnBuild bool   `yaml:"notifyOnBuild"`
}

// PartialDir is where ingestion workers write partial shards.
func (c IndexerConfig) PartialDir() string {
	return c.DataDir + string(os.PathSeparator) + "partial"
}

// IndexDir is where the merge writes bucket files, dictionaries and the doc map.
func (c IndexerConfig) IndexDir() string {
	return c.DataDir + string(os.PathSeparator) + "index"
}

// SearchConfig controls query execution limits. PublishQueryLog streams
// search events to kafka.topics.searchEvents.
type SearchConfig struct {
	MaxResults        int           `yaml:"maxResults"`
	DefaultLimit      int           `yaml:"defaultLimit"`
	LookupConcurrency int           `yaml:"lookupConcurrency"`
	QueryTimeout      time.Duration `yaml:"queryTimeout"`
	PublishQueryLog   bool          `yaml:"publishQueryLog"`
}

// AnalysisConfig is shared by ingestion and query tokenization; both sides
// must agree or terms never collide.
type AnalysisConfig struct {
	NGramSizes     []int `yaml:"ngramSizes"`
	MaxTokenLength int   `yaml:"maxTokenLength"`
}

// CrawlConfig selects where crawl records are read from.
type CrawlConfig struct {
	Source      string        `yaml:"source"`
	Dir         string        `yaml:"dir"`
	IdleTimeout time.Duration `yaml:"idleTimeout"`
	MaxRecords  int           `yaml:"maxRecords"`
	Table       string        `yaml:"table"`
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
// overrides. It returns a Config populated with defaults for any missing
// values, or an error if the result fails validation.
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
	if cfg.Indexer.ChunkSize <= 0 {
		cfg.Indexer.ChunkSize = cfg.Indexer.BatchSize
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Indexer.BatchSize <= 0 {
		return fmt.Errorf("indexer.batchSize must be positive, got %d", c.Indexer.BatchSize)
	}
	if c.Indexer.Workers <= 0 {
		return fmt.Errorf("indexer.workers must be positive, got %d", c.Indexer.Workers)
	}
	if c.Search.DefaultLimit <= 0 {
		return fmt.Errorf("search.defaultLimit must be positive, got %d", c.Search.DefaultLimit)
	}
	for _, n := range c.Analysis.NGramSizes {
		if n < 2 || n > 8 {
			return fmt.Errorf("analysis.ngramSizes entries must be in [2, 8], got %d", n)
		}
	}
	switch c.Crawl.Source {
	case "dir", "kafka", "postgres":
	default:
		return fmt.Errorf("crawl.source must be one of dir, kafka, postgres, got %q", c.Crawl.Source)
	}
	return nil
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return defaultConfig()
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "crawl",
			User:            "crawl",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "crawl-search-indexer",
			Topics: KafkaTopics{
				CrawlRecords:  "crawl-records",
				IndexComplete: "index.complete",
				SearchEvents:  "search-events",
			},
		},
		Redis: RedisConfig{
			Enabled:  false,
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:   "data",
			BatchSize: 50000,
			Workers:   runtime.GOMAXPROCS(0),
		},
		Search: SearchConfig{
			MaxResults:        100,
			DefaultLimit:      10,
			LookupConcurrency: 8,
			QueryTimeout:      5 * time.Second,
		},
		Analysis: AnalysisConfig{
			NGramSizes:     []int{2, 3},
			MaxTokenLength: 10000,
		},
		Crawl: CrawlConfig{
			Source:      "dir",
			Dir:         "DEV",
			IdleTimeout: 30 * time.Second,
			Table:       "pages",
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
	if v := os.Getenv("SP_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("SP_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
		cfg.Redis.Enabled = true
	}
	if v := os.Getenv("SP_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("SP_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("SP_INDEXER_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.BatchSize = n
		}
	}
	if v := os.Getenv("SP_INDEXER_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Indexer.Workers = n
		}
	}
	if v := os.Getenv("SP_SEARCH_DEFAULT_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Search.DefaultLimit = n
		}
	}
	if v := os.Getenv("SP_CRAWL_SOURCE"); v != "" {
		cfg.Crawl.Source = v
	}
	if v := os.Getenv("SP_CRAWL_DIR"); v != "" {
		cfg.Crawl.Dir = v
	}
	if v := os.Getenv("SP_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SP_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
