// Package config loads process configuration from the environment. A .env
// file in the working directory, when present, seeds variables that are not
// already set.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is the full process configuration.
type Config struct {
	Environment string
	LogLevel    string
	Server      Server
	Database    DatabaseConfig
	Redis       RedisConfig
	Kafka       KafkaConfig
	Notify      NotifyConfig
	Scan        ScanConfig
	TxTimeout   time.Duration
	Tracing     TracingConfig
}

// Server captures HTTP server level configuration.
type Server struct {
	Addr          string
	JWTSigningKey string
}

// DatabaseConfig selects PostgreSQL. An empty URL means in-memory stores.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig enables the dedupe fast path. An empty URL disables it.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the Kafka sender and outbox relay. No brokers means
// the log sender is used and the relay is off.
type KafkaConfig struct {
	Brokers           []string
	NotificationTopic string
	AuditTopic        string
}

// NotifyConfig tunes the delivery worker.
type NotifyConfig struct {
	PollInterval   time.Duration
	BatchSize      int
	AttemptTimeout time.Duration
	LeaseTimeout   time.Duration
	BatchWindow    time.Duration
}

// ScanConfig tunes the scheduled reminder scans.
type ScanConfig struct {
	Interval      time.Duration
	DigestWeekday time.Weekday
}

type TracingConfig struct {
	Stdout bool
}

// IsProduction reports whether ENVIRONMENT is production.
func (c Config) IsProduction() bool {
	return c.Environment == "production"
}

// Load reads configuration from the environment, applying defaults.
func Load() (Config, error) {
	_ = godotenv.Load()

	var errs []string
	env := envReader{errs: &errs}

	cfg := Config{
		Environment: env.str("ENVIRONMENT", "development"),
		LogLevel:    env.str("LOG_LEVEL", "info"),
		Server: Server{
			Addr:          env.str("GOV_HTTP_ADDR", ":8080"),
			JWTSigningKey: env.str("JWT_SIGNING_KEY", ""),
		},
		Database: DatabaseConfig{
			URL:             env.str("DATABASE_URL", ""),
			MaxOpenConns:    env.integer("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    env.integer("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: env.duration("DATABASE_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          env.str("REDIS_URL", ""),
			PoolSize:     env.integer("REDIS_POOL_SIZE", 10),
			MinIdleConns: env.integer("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  env.duration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  env.duration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: env.duration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:           env.list("KAFKA_BROKERS"),
			NotificationTopic: env.str("KAFKA_NOTIFICATION_TOPIC", "governance.notifications"),
			AuditTopic:        env.str("KAFKA_AUDIT_TOPIC", "governance.audit"),
		},
		Notify: NotifyConfig{
			PollInterval:   env.duration("NOTIFY_POLL_INTERVAL", 15*time.Second),
			BatchSize:      env.integer("NOTIFY_BATCH_SIZE", 50),
			AttemptTimeout: env.duration("NOTIFY_ATTEMPT_TIMEOUT", 10*time.Second),
			LeaseTimeout:   env.duration("NOTIFY_LEASE_TIMEOUT", 10*time.Minute),
			BatchWindow:    env.duration("NOTIFY_BATCH_WINDOW", 5*time.Minute),
		},
		Scan: ScanConfig{
			Interval:      env.duration("SCAN_INTERVAL", time.Hour),
			DigestWeekday: env.weekday("DIGEST_WEEKDAY", time.Monday),
		},
		TxTimeout: env.duration("TX_TIMEOUT", 5*time.Second),
		Tracing: TracingConfig{
			Stdout: env.boolean("OTEL_TRACES_STDOUT", false),
		},
	}

	if cfg.Server.JWTSigningKey == "" {
		if cfg.IsProduction() {
			errs = append(errs, "JWT_SIGNING_KEY is required in production")
		} else {
			cfg.Server.JWTSigningKey = "dev-secret-key-change-in-production"
		}
	}
	if cfg.Notify.BatchSize <= 0 {
		errs = append(errs, "NOTIFY_BATCH_SIZE must be positive")
	}
	if cfg.Notify.LeaseTimeout <= cfg.Notify.AttemptTimeout {
		errs = append(errs, "NOTIFY_LEASE_TIMEOUT must exceed NOTIFY_ATTEMPT_TIMEOUT")
	}

	if len(errs) > 0 {
		return Config{}, fmt.Errorf("invalid configuration: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

type envReader struct {
	errs *[]string
}

func (e envReader) str(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func (e envReader) integer(key string, def int) int {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		*e.errs = append(*e.errs, key+" must be an integer")
		return def
	}
	return v
}

func (e envReader) duration(key string, def time.Duration) time.Duration {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		*e.errs = append(*e.errs, key+" must be a duration such as 15s")
		return def
	}
	return v
}

func (e envReader) boolean(key string, def bool) bool {
	raw := e.str(key, "")
	if raw == "" {
		return def
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		*e.errs = append(*e.errs, key+" must be true or false")
		return def
	}
	return v
}

func (e envReader) list(key string) []string {
	raw := e.str(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (e envReader) weekday(key string, def time.Weekday) time.Weekday {
	raw := strings.ToLower(e.str(key, ""))
	if raw == "" {
		return def
	}
	for d := time.Sunday; d <= time.Saturday; d++ {
		if strings.ToLower(d.String()) == raw {
			return d
		}
	}
	*e.errs = append(*e.errs, key+" must be a weekday name")
	return def
}
