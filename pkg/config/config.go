// Package config loads and validates application configuration from YAML
// files with environment-variable overrides. It provides typed structs for
// every subsystem (Server, Decoder, Postgres, Kafka, Redis, etc.).
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
	Server   ServerConfig   `yaml:"server"`
	Decoder  DecoderConfig  `yaml:"decoder"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	DecodeTimeout   time.Duration `yaml:"decodeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// DecoderConfig holds the search's hard resource knobs and k-best settings.
type DecoderConfig struct {
	// PopLimit caps cube-pruning pops per node; the primary
	// speed/quality trade-off.
	PopLimit int `yaml:"popLimit"`
	// RuleLimit caps the rule bundles retained per node.
	RuleLimit int `yaml:"ruleLimit"`
	// StackLimit caps the output vertices retained per node; 0 is
	// unlimited.
	StackLimit int `yaml:"stackLimit"`
	// NBest is the default k-best list size.
	NBest int `yaml:"nBest"`
	// NBestFactor controls oversampling for distinct n-best lists; 0 is
	// unlimited.
	NBestFactor int `yaml:"nBestFactor"`
	// DistinctNBest deduplicates surface translations in the n-best list.
	DistinctNBest bool `yaml:"distinctNBest"`
	// StateOrder is the number of boundary target words kept per side as
	// the recombination state; 0 recombines everything at a node.
	StateOrder int `yaml:"stateOrder"`
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
	Brokers []string    `yaml:"brokers"`
	Topics  KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	DecodeEvents string `yaml:"decodeEvents"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
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

// Load reads a YAML config file (if provided) and applies environment-
// variable overrides. It returns a Config populated with sensible defaults
// for any missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects knob values the search cannot work with.
func (c *Config) Validate() error {
	if c.Decoder.PopLimit <= 0 {
		return fmt.Errorf("decoder.popLimit must be positive, got %d", c.Decoder.PopLimit)
	}
	if c.Decoder.RuleLimit <= 0 {
		return fmt.Errorf("decoder.ruleLimit must be positive, got %d", c.Decoder.RuleLimit)
	}
	if c.Decoder.StackLimit < 0 {
		return fmt.Errorf("decoder.stackLimit must not be negative, got %d", c.Decoder.StackLimit)
	}
	if c.Decoder.NBest <= 0 {
		return fmt.Errorf("decoder.nBest must be positive, got %d", c.Decoder.NBest)
	}
	return nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			DecodeTimeout:   20 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Decoder: DecoderConfig{
			PopLimit:      1000,
			RuleLimit:     50,
			StackLimit:    200,
			NBest:         1,
			NBestFactor:   20,
			DistinctNBest: false,
			StateOrder:    2,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "decoder",
			User:            "decoder",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers: []string{"localhost:9092"},
			Topics: KafkaTopics{
				DecodeEvents: "decode-events",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 5 * time.Minute,
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

// applyEnvOverrides reads FD_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("FD_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("FD_DECODER_POP_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Decoder.PopLimit = n
		}
	}
	if v := os.Getenv("FD_DECODER_RULE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Decoder.RuleLimit = n
		}
	}
	if v := os.Getenv("FD_DECODER_STACK_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Decoder.StackLimit = n
		}
	}
	if v := os.Getenv("FD_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("FD_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("FD_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("FD_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("FD_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("FD_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("FD_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("FD_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("FD_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("FD_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("FD_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
