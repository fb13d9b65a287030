// Package config loads offlinequeue settings from defaults, an optional file,
// an optional secrets file, and environment variables.
package config

import (
	"strings"
	"time"
)

// Store type constants
const (
	StoreTypeMemory   = "memory"
	StoreTypeSQLite   = "sqlite"
	StoreTypePostgres = "postgres"
	StoreTypeMySQL    = "mysql"
	StoreTypeRedis    = "redis"
	StoreTypeDynamoDB = "dynamodb"
	StoreTypeS3       = "s3"
	StoreTypeMongoDB  = "mongodb"
)

// Broker type constants
const (
	// BrokerTypeKafka represents Apache Kafka
	BrokerTypeKafka = "kafka"
	// BrokerTypeRabbitMQ represents RabbitMQ
	BrokerTypeRabbitMQ = "rabbitmq"
	// BrokerTypeSQS represents AWS SQS
	BrokerTypeSQS = "sqs"
)

// Reachability observer constants
const (
	// ReachabilityManual keeps the state set by the operator.
	ReachabilityManual = "manual"
	// ReachabilityProbe polls an HTTP health URL.
	ReachabilityProbe = "probe"
)

// Processor kind constants
const (
	ProcessorKindHTTP   = "http"
	ProcessorKindBroker = "broker"

	// SweepLockNone runs sweeps without cross-instance coordination.
	SweepLockNone     = "none"
	SweepLockRedis    = "redis"
	SweepLockPostgres = "postgres"
)

// Config is the root configuration structure.
type Config struct {
	Service       ServiceConfig       `mapstructure:"service"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Queue         QueueConfig         `mapstructure:"queue"`
	Store         StoreConfig         `mapstructure:"store"`
	Reachability  ReachabilityConfig  `mapstructure:"reachability"`
	Remote        RemoteConfig        `mapstructure:"remote"`
	Broker        BrokerConfig        `mapstructure:"broker"`
	Processors    []ProcessorConfig   `mapstructure:"processors"`
	Sweep         SweepConfig         `mapstructure:"sweep"`
	Management    ManagementConfig    `mapstructure:"management"`
}

// ServiceConfig configures service identity metadata.
type ServiceConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

// ObservabilityConfig configures logging, metrics, and tracing
type ObservabilityConfig struct {
	LogLevel          string             `mapstructure:"log_level"`
	LogFormat         string             `mapstructure:"log_format"` // json, text
	AsyncLogging      AsyncLoggingConfig `mapstructure:"async_logging"`
	MetricsEnabled    bool               `mapstructure:"metrics_enabled"`
	TracingEnabled    bool               `mapstructure:"tracing_enabled"`
	TracingEndpoint   string             `mapstructure:"tracing_endpoint"`
	TracingSampleRate float64            `mapstructure:"tracing_sample_rate"`
	TracingInsecure   bool               `mapstructure:"tracing_insecure"`
}

// AsyncLoggingConfig configures optional asynchronous logger dispatching.
type AsyncLoggingConfig struct {
	Enabled      bool `mapstructure:"enabled"`
	QueueSize    int  `mapstructure:"queue_size"`
	WorkerCount  int  `mapstructure:"worker_count"`
	DropWhenFull bool `mapstructure:"drop_when_full"`
}

// QueueConfig configures the queue engine.
type QueueConfig struct {
	MaxRetries      int           `mapstructure:"max_retries"`
	BackoffBase     time.Duration `mapstructure:"backoff_base"`
	BackoffCeiling  time.Duration `mapstructure:"backoff_ceiling"`
	// AttemptTimeout abandons a processor call that outlives it; zero is off.
	AttemptTimeout  time.Duration `mapstructure:"attempt_timeout"`
	KeyPrefix       string        `mapstructure:"key_prefix"`
	DrainOnStart    bool          `mapstructure:"drain_on_start"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// SweepConfig schedules periodic drain passes in addition to the
// connectivity trigger. Sweeping is off unless Interval or Schedule is set.
type SweepConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	// Schedule is a cron expression evaluated in UTC, e.g. "*/5 * * * *".
	Schedule string `mapstructure:"schedule"`
	// Timeout bounds one sweep pass.
	Timeout time.Duration `mapstructure:"timeout"`
	// Lock coordinates sweeps between instances sharing a store: none, redis, postgres.
	Lock      string        `mapstructure:"lock"`
	LockURL   string        `mapstructure:"lock_url"`
	LockTTL   time.Duration `mapstructure:"lock_ttl"`
	LockTable string        `mapstructure:"lock_table"`
}

// Enabled reports whether periodic sweeps are configured.
func (s SweepConfig) Enabled() bool {
	return s.Interval > 0 || strings.TrimSpace(s.Schedule) != ""
}

// StoreConfig selects and configures the durable key-value store.
type StoreConfig struct {
	Type string `mapstructure:"type"` // memory, sqlite, postgres, mysql, redis, dynamodb, s3, mongodb
	// URL is the DSN for postgres, mysql, redis and mongodb.
	URL string `mapstructure:"url"`
	// Path is the sqlite database file.
	Path string `mapstructure:"path"`
	// Table is the SQL table or DynamoDB table.
	Table           string        `mapstructure:"table"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MaxConns        int           `mapstructure:"max_conns"`
	DatabaseName    string        `mapstructure:"database_name"`
	Collection      string        `mapstructure:"collection"`
	Bucket          string        `mapstructure:"bucket"`
	Prefix          string        `mapstructure:"prefix"`
	UsePathStyle    bool          `mapstructure:"use_path_style"`
	Region          string        `mapstructure:"region"`
	Endpoint        string        `mapstructure:"endpoint"`
	AccessKeyID     string        `mapstructure:"access_key_id"`
	SecretAccessKey string        `mapstructure:"secret_access_key"`
	SessionToken    string        `mapstructure:"session_token"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	// OperationTimeout bounds each Get and Set.
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
}

// ReachabilityConfig selects the connectivity observer.
type ReachabilityConfig struct {
	Type          string        `mapstructure:"type"` // manual, probe
	InitialOnline bool          `mapstructure:"initial_online"`
	ProbeURL      string        `mapstructure:"probe_url"`
	ProbeInterval time.Duration `mapstructure:"probe_interval"`
	ProbeTimeout  time.Duration `mapstructure:"probe_timeout"`
}

// RemoteConfig configures HTTP processors.
type RemoteConfig struct {
	BaseURL           string            `mapstructure:"base_url"`
	Headers           map[string]string `mapstructure:"headers"`
	Timeout           time.Duration     `mapstructure:"timeout"`
	RateLimit         float64           `mapstructure:"rate_limit"`
	Burst             int               `mapstructure:"burst"`
	DropOnClientError bool              `mapstructure:"drop_on_client_error"`
	UserAgent         string            `mapstructure:"user_agent"`
}

// BrokerConfig configures the message broker used by broker processors.
type BrokerConfig struct {
	Type             string        `mapstructure:"type"` // kafka, rabbitmq, sqs
	OperationTimeout time.Duration `mapstructure:"operation_timeout"`
	Brokers          []string      `mapstructure:"brokers"`
	Topic            string        `mapstructure:"topic"`
	MaxAttempts      int           `mapstructure:"max_attempts"`
	URL              string        `mapstructure:"url"`
	Exchange         string        `mapstructure:"exchange"`
	ExchangeType     string        `mapstructure:"exchange_type"`
	RoutingKey       string        `mapstructure:"routing_key"`
	Region           string        `mapstructure:"region"`
	QueueURL         string        `mapstructure:"queue_url"`
	Endpoint         string        `mapstructure:"endpoint"`
	AccessKeyID      string        `mapstructure:"access_key_id"`
	SecretAccessKey  string        `mapstructure:"secret_access_key"`
	SessionToken     string        `mapstructure:"session_token"`
}

// ProcessorConfig binds one endpoint to a processor.
type ProcessorConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Kind     string `mapstructure:"kind"` // http, broker
	// Path overrides the endpoint as the HTTP path.
	Path string `mapstructure:"path"`
	// Topic overrides the broker's default destination.
	Topic          string               `mapstructure:"topic"`
	Timeout        time.Duration        `mapstructure:"timeout"`
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
}

// CircuitBreakerConfig configures an optional per-processor breaker.
type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
}

// ManagementConfig configures the management server
type ManagementConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:        "offlinequeue",
			Environment: "development",
		},
		Observability: ObservabilityConfig{
			LogLevel:  "info",
			LogFormat: "json",
			AsyncLogging: AsyncLoggingConfig{
				QueueSize:   1024,
				WorkerCount: 1,
			},
			MetricsEnabled:    true,
			TracingEndpoint:   "localhost:4317",
			TracingSampleRate: 1.0,
			TracingInsecure:   true,
		},
		Queue: QueueConfig{
			MaxRetries:      5,
			BackoffBase:     time.Second,
			BackoffCeiling:  30 * time.Second,
			KeyPrefix:       "offline_queue:",
			DrainOnStart:    true,
			ShutdownTimeout: 10 * time.Second,
		},
		Store: StoreConfig{
			Type:             StoreTypeSQLite,
			Path:             "offlinequeue.db",
			Table:            "offline_queue_kv",
			AutoMigrate:      true,
			MaxOpenConns:     10,
			MaxIdleConns:     2,
			ConnMaxLifetime:  5 * time.Minute,
			ConnMaxIdleTime:  time.Minute,
			MaxConns:         10,
			Collection:       "offline_queue_kv",
			ConnectTimeout:   10 * time.Second,
			OperationTimeout: 5 * time.Second,
		},
		Reachability: ReachabilityConfig{
			Type:          ReachabilityManual,
			InitialOnline: true,
			ProbeInterval: 15 * time.Second,
			ProbeTimeout:  5 * time.Second,
		},
		Remote: RemoteConfig{
			Timeout: 30 * time.Second,
			Burst:   1,
		},
		Broker: BrokerConfig{
			OperationTimeout: 30 * time.Second,
			MaxAttempts:      3,
			Exchange:         "mutations",
			ExchangeType:     "topic",
		},
		Sweep: SweepConfig{
			Timeout:   time.Minute,
			Lock:      SweepLockNone,
			LockTTL:   30 * time.Second,
			LockTable: "offlinequeue_locks",
		},
		Management: ManagementConfig{
			Enabled:         true,
			Host:            "127.0.0.1",
			Port:            9090,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    10 * time.Second,
			ShutdownTimeout: 10 * time.Second,
		},
	}
}
