package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr     string
	Postgres PostgresConfig
	Redis    RedisConfig
	Kafka    KafkaConfig
	Audit    AuditConfig
	Cache    CacheConfig
}

// PostgresConfig configures the entity, audit and event stores. An empty
// DSN selects the in-memory stores.
type PostgresConfig struct {
	DSN string
}

// RedisConfig configures the entity cache. An empty URL disables caching.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the audit forwarder. Empty brokers disable
// forwarding.
type KafkaConfig struct {
	Brokers     []string
	TopicPrefix string
}

// AuditConfig tunes the audit trail's buffering.
type AuditConfig struct {
	MaxOpenOperations int
	TapSize           int
}

// CacheConfig tunes the redis entity cache.
type CacheConfig struct {
	TTL time.Duration
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	return Server{
		Addr: getEnv("CATALOG_ADDR", ":8080"),
		Postgres: PostgresConfig{
			DSN: os.Getenv("CATALOG_POSTGRES_DSN"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("CATALOG_REDIS_URL"),
			PoolSize:     getEnvInt("CATALOG_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("CATALOG_REDIS_MIN_IDLE", 2),
			DialTimeout:  getEnvDuration("CATALOG_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("CATALOG_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("CATALOG_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:     splitList(os.Getenv("CATALOG_KAFKA_BROKERS")),
			TopicPrefix: getEnv("CATALOG_KAFKA_TOPIC_PREFIX", "catalog.audit"),
		},
		Audit: AuditConfig{
			MaxOpenOperations: getEnvInt("CATALOG_AUDIT_MAX_OPEN_OPERATIONS", 50),
			TapSize:           getEnvInt("CATALOG_AUDIT_TAP_SIZE", 1024),
		},
		Cache: CacheConfig{
			TTL: getEnvDuration("CATALOG_CACHE_TTL", 30*time.Second),
		},
	}
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}

func splitList(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
