// Package config provides configuration structures and validation for the
// payment broker. It covers the HTTP server, the upstream payment gateway,
// the reconciliation schedules, and the storage backends.
package config

import (
	"errors"
	"strings"
	"time"
)

// Store driver names accepted by StoreConfig.Driver.
const (
	StoreDriverMemory   = "memory"
	StoreDriverPostgres = "postgres"
)

// Config holds the complete application configuration with settings for all
// components. It is validated during application startup.
type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Gateway     GatewayConfig
	Reconciler  ReconcilerConfig
	Store       StoreConfig
	Postgres    PostgresConfig
	MongoDB     MongoDBConfig
	Kafka       KafkaConfig
	WorkerPool  WorkerPoolConfig
}

// ApplicationConfig contains general application configuration
type ApplicationConfig struct {
	Env  string
	Name string
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level string
}

// ServerConfig contains HTTP server configuration settings
type ServerConfig struct {
	Port            int           // Port to listen on
	ShutdownTimeout time.Duration // Grace period for server shutdown
	ReadTimeout     time.Duration // Maximum duration for reading entire request
	WriteTimeout    time.Duration // Maximum duration for writing response
	IdleTimeout     time.Duration // Maximum duration to wait for next request
}

// GatewayConfig contains upstream payment gateway settings
type GatewayConfig struct {
	BaseURL  string        // Gateway API base URL
	APIKey   string        // Fixed auth key sent with every request
	LinkCode string        // Payment-link code used for STK push initiation
	Timeout  time.Duration // Per-request timeout, transport and read combined
}

// ReconcilerConfig contains status poller and release sweeper schedules
type ReconcilerConfig struct {
	PollInterval  time.Duration // Interval between status queries per transaction
	SweepInterval time.Duration // Interval between release sweeper scans
	ReleaseDwell  time.Duration // Time a confirmed payment waits before release
}

// StoreConfig selects the transaction store backend
type StoreConfig struct {
	Driver string // "postgres" or "memory"
}

// PostgresConfig contains PostgreSQL configuration
type PostgresConfig struct {
	URL             string        // Database connection string
	MaxConns        int32         // Maximum number of open connections
	MinConns        int32         // Minimum number of idle connections
	ConnMaxLifetime time.Duration // Maximum lifetime of a connection
	ConnMaxIdleTime time.Duration // Maximum idle time of a connection
	MigrationsPath  string        // Path to migration files
}

// MongoDBConfig contains MongoDB configuration for the audit archive
type MongoDBConfig struct {
	URI             string
	Database        string
	Timeout         time.Duration
	MaxPoolSize     uint64
	MinPoolSize     uint64
	MaxConnIdleTime time.Duration
}

// KafkaConfig contains Kafka configuration for the unmatched-webhook topic.
// An empty UnmatchedTopic disables publishing entirely.
type KafkaConfig struct {
	Brokers           string
	UnmatchedTopic    string
	NumPartitions     int
	ReplicationFactor int
	MaxWait           time.Duration
}

// WorkerPoolConfig bounds the number of concurrent gateway status queries
type WorkerPoolConfig struct {
	Size int
}

// validate performs comprehensive validation of all configuration values,
// ensuring they meet minimum requirements and logical constraints
func (c *Config) validate() error {
	var validationErrors []string

	// Validate Server config
	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	// Validate Gateway config
	if c.Gateway.BaseURL == "" {
		validationErrors = append(validationErrors, "GATEWAY_BASE_URL is required")
	}
	if c.Gateway.APIKey == "" {
		validationErrors = append(validationErrors, "GATEWAY_API_KEY is required")
	}
	if c.Gateway.LinkCode == "" {
		validationErrors = append(validationErrors, "GATEWAY_LINK_CODE is required")
	}
	if c.Gateway.Timeout <= 0 {
		validationErrors = append(validationErrors, "GATEWAY_TIMEOUT must be greater than 0")
	}

	// Validate Reconciler config
	if c.Reconciler.PollInterval <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_POLL_INTERVAL must be greater than 0")
	}
	if c.Reconciler.SweepInterval <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_SWEEP_INTERVAL must be greater than 0")
	}
	if c.Reconciler.ReleaseDwell <= 0 {
		validationErrors = append(validationErrors, "RECONCILER_RELEASE_DWELL must be greater than 0")
	}

	// Validate Store config
	switch c.Store.Driver {
	case StoreDriverMemory:
	case StoreDriverPostgres:
		if c.Postgres.URL == "" {
			validationErrors = append(validationErrors, "POSTGRES_URL is required when STORE_DRIVER is postgres")
		}
		if c.Postgres.MaxConns <= 0 {
			validationErrors = append(validationErrors, "POSTGRES_MAX_CONNS must be greater than 0")
		}
		if c.Postgres.MinConns <= 0 {
			validationErrors = append(validationErrors, "POSTGRES_MIN_CONNS must be greater than 0")
		}
		if c.Postgres.ConnMaxLifetime <= 0 {
			validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_LIFETIME must be greater than 0")
		}
		if c.Postgres.ConnMaxIdleTime <= 0 {
			validationErrors = append(validationErrors, "POSTGRES_MAX_CONN_IDLE_TIME must be greater than 0")
		}
	default:
		validationErrors = append(validationErrors, "STORE_DRIVER must be one of: memory, postgres")
	}

	// The audit archive is optional; when a URI is set the rest of the
	// section must be usable
	if c.MongoDB.URI != "" {
		if c.MongoDB.Database == "" {
			validationErrors = append(validationErrors, "MONGO_DATABASE is required when MONGO_URI is set")
		}
		if c.MongoDB.Timeout <= 0 {
			validationErrors = append(validationErrors, "MONGO_TIMEOUT must be greater than 0")
		}
	}

	// Unmatched-webhook publishing is optional; when a topic is set the
	// brokers must be configured
	if c.Kafka.UnmatchedTopic != "" {
		if c.Kafka.Brokers == "" {
			validationErrors = append(validationErrors, "KAFKA_BROKERS is required when KAFKA_UNMATCHED_TOPIC is set")
		}
		if c.Kafka.MaxWait <= 0 {
			validationErrors = append(validationErrors, "KAFKA_MAX_WAIT must be greater than 0")
		}
	}

	// Validate worker pool config
	if c.WorkerPool.Size <= 0 {
		validationErrors = append(validationErrors, "WORKER_POOL_SIZE must be greater than 0")
	}

	if len(validationErrors) > 0 {
		return errors.New("configuration validation failed: " + strings.Join(validationErrors, "; "))
	}

	return nil
}
