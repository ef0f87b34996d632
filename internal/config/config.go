package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	AppEnv   string `yaml:"app_env"`
	LogLevel string `yaml:"log_level"`

	HTTPPort           string        `yaml:"http_port"`
	RequestTimeout     time.Duration `yaml:"request_timeout"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	MaxRequestBodySize int64         `yaml:"max_request_body_size"`

	Store StoreConfig `yaml:"store"`
	Redis RedisConfig `yaml:"redis"`
	Mongo MongoConfig `yaml:"mongo"`
	Feed  FeedConfig  `yaml:"feed"`
	Kafka KafkaConfig `yaml:"kafka"`

	// Stock seeds the in-memory stock source: product id -> units available.
	Stock map[string]int `yaml:"stock"`
}

type StoreConfig struct {
	Backend string        `yaml:"backend"` // memory, file, redis, mongo
	Dir     string        `yaml:"dir"`
	TTL     time.Duration `yaml:"ttl"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type MongoConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

type FeedConfig struct {
	Backend string `yaml:"backend"` // none, redis, nats, file
	NATSURL string `yaml:"nats_url"`
}

type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"`
	GroupID string   `yaml:"group_id"`
}

func Default() *Config {
	return &Config{
		AppEnv:             "dev",
		LogLevel:           "info",
		HTTPPort:           "8080",
		RequestTimeout:     30 * time.Second,
		ShutdownTimeout:    10 * time.Second,
		MaxRequestBodySize: 1 << 20, // 1MB
		Store: StoreConfig{
			Backend: "memory",
			Dir:     ".carts",
			TTL:     30 * 24 * time.Hour,
		},
		Redis: RedisConfig{Addr: "localhost:6379"},
		Mongo: MongoConfig{URI: "mongodb://localhost:27017", Database: "cartdb"},
		Feed:  FeedConfig{Backend: "none", NATSURL: "nats://localhost:4222"},
		Kafka: KafkaConfig{Topic: "checkout-outbox", GroupID: "cart-engine"},
	}
}

// Load applies, in order: defaults, the YAML file at path (skipped when path is empty or
// the file does not exist), then environment variables.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return nil, fmt.Errorf("read config file failed: %w", err)
		default:
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse config file failed: %w", err)
			}
		}
	}

	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.AppEnv = getEnv("APP_ENV", c.AppEnv)
	c.LogLevel = getEnv("LOG_LEVEL", c.LogLevel)
	c.HTTPPort = getEnv("HTTP_PORT", c.HTTPPort)
	c.RequestTimeout = getEnvDuration("REQUEST_TIMEOUT", c.RequestTimeout)

	c.Store.Backend = getEnv("CART_STORE", c.Store.Backend)
	c.Store.Dir = getEnv("CART_DIR", c.Store.Dir)
	c.Store.TTL = getEnvDuration("CART_TTL", c.Store.TTL)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getEnvInt("REDIS_DB", c.Redis.DB)

	c.Mongo.URI = getEnv("MONGO_URI", c.Mongo.URI)
	c.Mongo.Database = getEnv("MONGO_DB_NAME", c.Mongo.Database)

	c.Feed.Backend = getEnv("CART_FEED", c.Feed.Backend)
	c.Feed.NATSURL = getEnv("NATS_URL", c.Feed.NATSURL)

	if brokers := getEnv("KAFKA_BROKERS", ""); brokers != "" {
		c.Kafka.Brokers = splitList(brokers)
	}
	c.Kafka.Topic = getEnv("KAFKA_TOPIC", c.Kafka.Topic)
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory", "file", "redis", "mongo":
	default:
		return fmt.Errorf("unknown cart store backend %q", c.Store.Backend)
	}
	switch c.Feed.Backend {
	case "none", "redis", "nats", "file":
	default:
		return fmt.Errorf("unknown cart feed backend %q", c.Feed.Backend)
	}
	if c.Feed.Backend == "file" && c.Store.Backend != "file" {
		return errors.New("file feed requires the file store")
	}
	for id, units := range c.Stock {
		if units < 0 {
			return fmt.Errorf("stock for %q cannot be negative", id)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return defaultValue
	}
	return n
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultValue
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultValue
	}
	return d
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
