// Package config builds runtime configuration from the environment so main
// stays lean. Every knob has a development default; production overrides via
// CREDLOCK_* variables.
package config

import (
	"os"
	"strconv"
	"time"
)

type Config struct {
	Addr        string
	DatabaseURL string
	Redis       RedisConfig
	Kafka       KafkaConfig
	Ledger      LedgerConfig
	Sweep       SweepConfig

	// AdminToken guards the admin surface. Empty disables admin routes.
	AdminToken string

	// ReceiptSigningKey signs verification receipts.
	ReceiptSigningKey string
	ReceiptTTL        time.Duration
}

type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

type KafkaConfig struct {
	Brokers    string
	AuditTopic string
}

type LedgerConfig struct {
	URL     string
	Timeout time.Duration

	// FinalityTimeout bounds how long issue/revoke waits for a submitted
	// transaction to finalize before giving up on the whole operation.
	FinalityTimeout time.Duration
}

type SweepConfig struct {
	Interval  time.Duration
	BatchSize int
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:        getEnv("CREDLOCK_ADDR", ":8080"),
		DatabaseURL: os.Getenv("CREDLOCK_DATABASE_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("CREDLOCK_REDIS_URL"),
			PoolSize:     getEnvInt("CREDLOCK_REDIS_POOL_SIZE", 10),
			MinIdleConns: getEnvInt("CREDLOCK_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  getEnvDuration("CREDLOCK_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  getEnvDuration("CREDLOCK_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: getEnvDuration("CREDLOCK_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:    os.Getenv("CREDLOCK_KAFKA_BROKERS"),
			AuditTopic: getEnv("CREDLOCK_KAFKA_AUDIT_TOPIC", "credlock.audit.v1"),
		},
		Ledger: LedgerConfig{
			URL:             getEnv("CREDLOCK_LEDGER_URL", "http://localhost:8545"),
			Timeout:         getEnvDuration("CREDLOCK_LEDGER_TIMEOUT", 5*time.Second),
			FinalityTimeout: getEnvDuration("CREDLOCK_LEDGER_FINALITY_TIMEOUT", 30*time.Second),
		},
		Sweep: SweepConfig{
			Interval:  getEnvDuration("CREDLOCK_SWEEP_INTERVAL", 5*time.Minute),
			BatchSize: getEnvInt("CREDLOCK_SWEEP_BATCH_SIZE", 100),
		},
		AdminToken:        os.Getenv("CREDLOCK_ADMIN_TOKEN"),
		ReceiptSigningKey: getEnv("CREDLOCK_RECEIPT_SIGNING_KEY", "dev-secret-key-change-in-production"),
		ReceiptTTL:        getEnvDuration("CREDLOCK_RECEIPT_TTL", 15*time.Minute),
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
