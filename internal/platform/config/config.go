// Package config builds runtime configuration from environment variables so
// main stays lean. Every knob has a default that works for local runs.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"chronicle/internal/snapshot"
)

// Config is the full process configuration.
type Config struct {
	// Addr is the listen address of the read-side HTTP API.
	Addr string

	// PostgresURL enables the durable Postgres sink when set.
	PostgresURL string

	// DirectoryURL enables actor re-validation against a REST identity
	// service when set.
	DirectoryURL string

	Redis RedisConfig
	Kafka KafkaConfig

	// CheckActorExists re-validates the request actor against the identity
	// directory before stamping it on an event.
	CheckActorExists bool

	// PropagateFailures re-raises audit pipeline failures into the caller's
	// transaction instead of swallowing them.
	PropagateFailures bool

	// SnapshotTTL bounds relationship snapshot lifetime between the pre and
	// post lifecycle callbacks.
	SnapshotTTL time.Duration
}

// RedisConfig configures the snapshot cache backend. An empty URL means the
// in-process cache is used instead.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig configures the optional Kafka sink. Empty brokers disable it.
type KafkaConfig struct {
	Brokers []string
	Topic   string
}

// FromEnv builds a Config from environment variables.
func FromEnv() Config {
	return Config{
		Addr:         envString("CHRONICLE_ADDR", ":8080"),
		PostgresURL:  os.Getenv("CHRONICLE_POSTGRES_URL"),
		DirectoryURL: os.Getenv("CHRONICLE_DIRECTORY_URL"),
		Redis: RedisConfig{
			URL:          os.Getenv("CHRONICLE_REDIS_URL"),
			PoolSize:     envInt("CHRONICLE_REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("CHRONICLE_REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("CHRONICLE_REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("CHRONICLE_REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("CHRONICLE_REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers: envList("CHRONICLE_KAFKA_BROKERS"),
			Topic:   envString("CHRONICLE_KAFKA_TOPIC", "chronicle.audit-events"),
		},
		CheckActorExists:  envBool("CHRONICLE_CHECK_ACTOR_EXISTS", true),
		PropagateFailures: envBool("CHRONICLE_PROPAGATE_FAILURES", false),
		SnapshotTTL:       envDuration("CHRONICLE_SNAPSHOT_TTL", snapshot.DefaultTTL),
	}
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return parsed
}

func envList(key string) []string {
	v := os.Getenv(key)
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
