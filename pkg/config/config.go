// Package config loads and validates the search service configuration from a
// YAML file with environment-variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level service configuration.
type Config struct {
	Server      ServerConfig                `yaml:"server"`
	Logging     LoggingConfig               `yaml:"logging"`
	Metrics     MetricsConfig               `yaml:"metrics"`
	Postgres    PostgresConfig              `yaml:"postgres"`
	Kafka       KafkaConfig                 `yaml:"kafka"`
	Redis       RedisConfig                 `yaml:"redis"`
	Store       StoreConfig                 `yaml:"store"`
	Index       IndexConfig                 `yaml:"index"`
	Search      SearchConfig                `yaml:"search"`
	Snapshot    SnapshotConfig              `yaml:"snapshot"`
	Collections map[string]CollectionConfig `yaml:"collections"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
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
	// ConnectTimeout bounds dialing and the startup ping. lib/pq only takes
	// whole seconds.
	ConnectTimeout time.Duration `yaml:"connectTimeout"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	dsn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
	if secs := int(p.ConnectTimeout / time.Second); secs > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", secs)
	}
	return dsn
}

// KafkaConfig holds Kafka broker and topic settings. The consumer is only
// started when Enabled is set.
type KafkaConfig struct {
	Enabled       bool     `yaml:"enabled"`
	Brokers       []string `yaml:"brokers"`
	ConsumerGroup string   `yaml:"consumerGroup"`
	DocumentTopic string   `yaml:"documentTopic"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
	// OpTimeout is the socket read and write deadline for Redis commands.
	OpTimeout time.Duration `yaml:"opTimeout"`
}

// StoreConfig selects where raw documents live: memory, sqlite or postgres.
type StoreConfig struct {
	Backend    string `yaml:"backend"`
	SQLitePath string `yaml:"sqlitePath"`
}

// IndexConfig holds the defaults every collection is built with.
type IndexConfig struct {
	DefaultLanguage string   `yaml:"defaultLanguage"`
	BatchSize       int      `yaml:"batchSize"`
	Stemming        bool     `yaml:"stemming"`
	StopWords       bool     `yaml:"stopWords"`
	SkipStemming    []string `yaml:"skipStemming"`
	IDGenerator     string   `yaml:"idGenerator"`
}

// SearchConfig controls query limits and ranking.
type SearchConfig struct {
	DefaultLimit   int     `yaml:"defaultLimit"`
	MaxResults     int     `yaml:"maxResults"`
	LocalCacheSize int     `yaml:"localCacheSize"`
	BM25K1         float64 `yaml:"bm25K1"`
	BM25B          float64 `yaml:"bm25B"`
	// SlowQuery escalates the span log of searches slower than this to Warn.
	SlowQuery time.Duration `yaml:"slowQuery"`
}

// SnapshotConfig selects where snapshots are written: a directory ("file")
// or Redis ("redis").
type SnapshotConfig struct {
	Backend        string `yaml:"backend"`
	Dir            string `yaml:"dir"`
	RedisPrefix    string `yaml:"redisPrefix"`
	LoadOnStart    bool   `yaml:"loadOnStart"`
	SaveOnShutdown bool   `yaml:"saveOnShutdown"`
}

// CollectionConfig declares one collection. SchemaFile is a YAML schema.
type CollectionConfig struct {
	SchemaFile           string   `yaml:"schemaFile"`
	Language             string   `yaml:"language"`
	SortDisabled         bool     `yaml:"sortDisabled"`
	UnsortableProperties []string `yaml:"unsortableProperties"`
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

// Validate rejects values the service cannot start with.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	switch c.Store.Backend {
	case "memory", "postgres":
	case "sqlite":
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlitePath is required for the sqlite backend")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	switch c.Snapshot.Backend {
	case "file", "redis":
	default:
		return fmt.Errorf("unknown snapshot.backend %q", c.Snapshot.Backend)
	}
	if c.Snapshot.Backend == "redis" && !c.Redis.Enabled {
		return fmt.Errorf("snapshot.backend redis requires redis.enabled")
	}
	if c.Index.BatchSize <= 0 {
		return fmt.Errorf("index.batchSize must be positive, got %d", c.Index.BatchSize)
	}
	switch c.Index.IDGenerator {
	case "counter", "uuid":
	default:
		return fmt.Errorf("unknown index.idGenerator %q", c.Index.IDGenerator)
	}
	if c.Search.DefaultLimit <= 0 || c.Search.MaxResults < c.Search.DefaultLimit {
		return fmt.Errorf("search.defaultLimit must be positive and at most search.maxResults")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	for name, col := range c.Collections {
		if col.SchemaFile == "" {
			return fmt.Errorf("collection %q has no schemaFile", name)
		}
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "docsearch",
			User:            "docsearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			ConnectTimeout:  5 * time.Second,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "docsearch-group",
			DocumentTopic: "document-events",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			PoolSize:  10,
			CacheTTL:  60 * time.Second,
			OpTimeout: 500 * time.Millisecond,
		},
		Store: StoreConfig{
			Backend: "memory",
		},
		Index: IndexConfig{
			DefaultLanguage: "english",
			BatchSize:       1000,
			IDGenerator:     "counter",
		},
		Search: SearchConfig{
			DefaultLimit:   10,
			MaxResults:     1000,
			LocalCacheSize: 1024,
			BM25K1:         1.2,
			BM25B:          0.75,
			SlowQuery:      250 * time.Millisecond,
		},
		Snapshot: SnapshotConfig{
			Backend:     "file",
			Dir:         "./data/snapshots",
			RedisPrefix: "docsearch:snapshot:",
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

// applyEnvOverrides reads DS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("DS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("DS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("DS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("DS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("DS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("DS_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("DS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("DS_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("DS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("DS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("DS_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("DS_STORE_SQLITE_PATH"); v != "" {
		cfg.Store.SQLitePath = v
	}
	if v := os.Getenv("DS_INDEX_DEFAULT_LANGUAGE"); v != "" {
		cfg.Index.DefaultLanguage = v
	}
	if v := os.Getenv("DS_SNAPSHOT_BACKEND"); v != "" {
		cfg.Snapshot.Backend = v
	}
	if v := os.Getenv("DS_SNAPSHOT_DIR"); v != "" {
		cfg.Snapshot.Dir = v
	}
	if v := os.Getenv("DS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("DS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
