package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultEnvPrefix prefixes every environment variable.
const DefaultEnvPrefix = "OFFLINEQUEUE"

// Loader defines the interface for loading configuration
type Loader interface {
	Load() (*Config, error)
	Validate(*Config) error
}

// FlagBindings maps command-line flag names to configuration keys. Only flags
// present in the bound FlagSet and explicitly set by the user take effect.
var FlagBindings = map[string]string{
	"log-level":       "observability.log_level",
	"log-format":      "observability.log_format",
	"store-type":      "store.type",
	"store-path":      "store.path",
	"store-url":       "store.url",
	"management-host": "management.host",
	"management-port": "management.port",
	"remote-base-url": "remote.base_url",
}

// ViperLoader implements Loader using Viper for configuration management
type ViperLoader struct {
	configFile string
	envPrefix  string
	flags      *pflag.FlagSet
	secrets    *Config
}

// NewViperLoader creates a new ViperLoader
// configFile: path to configuration file (optional, can be empty)
// envPrefix: prefix for environment variables (defaults to OFFLINEQUEUE)
func NewViperLoader(configFile, envPrefix string) *ViperLoader {
	return &ViperLoader{
		configFile: strings.TrimSpace(configFile),
		envPrefix:  envPrefix,
	}
}

// WithFlags lets explicitly set command-line flags override every other source.
func (l *ViperLoader) WithFlags(flags *pflag.FlagSet) *ViperLoader {
	l.flags = flags
	return l
}

// ConfigFile returns the configuration file path, or "" when none was given.
func (l *ViperLoader) ConfigFile() string {
	return l.configFile
}

// Secrets returns the values read from the secrets file during the last Load,
// or nil when no secrets file was found.
func (l *ViperLoader) Secrets() *Config {
	return l.secrets
}

// Load loads configuration with precedence: flags > ENV > secrets file > file > defaults
func (l *ViperLoader) Load() (*Config, error) {
	v := viper.New()
	l.setDefaults(v, DefaultConfig())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", l.configFile, err)
		}
	}

	secrets, err := l.mergeSecrets(v)
	if err != nil {
		return nil, err
	}
	l.secrets = secrets

	v.SetEnvPrefix(l.envPrefix)
	l.bindEnvVars(v)

	if err := l.bindFlags(v); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := l.Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// bindEnvVars explicitly binds environment variables for nested structs
func (l *ViperLoader) bindEnvVars(v *viper.Viper) {
	bind := func(key, suffix string) {
		_ = v.BindEnv(key, l.prefixedEnv(suffix))
	}

	// Service
	bind("service.name", "SERVICE_NAME")
	_ = v.BindEnv("service.environment", l.prefixedEnv("SERVICE_ENVIRONMENT"), l.prefixedEnv("ENVIRONMENT"))

	// Observability
	bind("observability.log_level", "LOG_LEVEL")
	bind("observability.log_format", "LOG_FORMAT")
	bind("observability.async_logging.enabled", "LOG_ASYNC_ENABLED")
	bind("observability.async_logging.queue_size", "LOG_ASYNC_QUEUE_SIZE")
	bind("observability.async_logging.worker_count", "LOG_ASYNC_WORKER_COUNT")
	bind("observability.async_logging.drop_when_full", "LOG_ASYNC_DROP_WHEN_FULL")
	bind("observability.metrics_enabled", "METRICS_ENABLED")
	bind("observability.tracing_enabled", "TRACING_ENABLED")
	bind("observability.tracing_endpoint", "TRACING_ENDPOINT")
	bind("observability.tracing_sample_rate", "TRACING_SAMPLE_RATE")
	bind("observability.tracing_insecure", "TRACING_INSECURE")

	// Queue
	bind("queue.max_retries", "QUEUE_MAX_RETRIES")
	bind("queue.backoff_base", "QUEUE_BACKOFF_BASE")
	bind("queue.backoff_ceiling", "QUEUE_BACKOFF_CEILING")
	bind("queue.attempt_timeout", "QUEUE_ATTEMPT_TIMEOUT")
	bind("queue.key_prefix", "QUEUE_KEY_PREFIX")
	bind("queue.drain_on_start", "QUEUE_DRAIN_ON_START")
	bind("queue.shutdown_timeout", "QUEUE_SHUTDOWN_TIMEOUT")

	// Store
	bind("store.type", "STORE_TYPE")
	bind("store.url", "STORE_URL")
	bind("store.path", "STORE_PATH")
	bind("store.table", "STORE_TABLE")
	bind("store.auto_migrate", "STORE_AUTO_MIGRATE")
	bind("store.max_open_conns", "STORE_MAX_OPEN_CONNS")
	bind("store.max_idle_conns", "STORE_MAX_IDLE_CONNS")
	bind("store.conn_max_lifetime", "STORE_CONN_MAX_LIFETIME")
	bind("store.conn_max_idle_time", "STORE_CONN_MAX_IDLE_TIME")
	bind("store.max_conns", "STORE_MAX_CONNS")
	bind("store.database_name", "STORE_DATABASE_NAME")
	bind("store.collection", "STORE_COLLECTION")
	bind("store.bucket", "STORE_BUCKET")
	bind("store.prefix", "STORE_PREFIX")
	bind("store.use_path_style", "STORE_USE_PATH_STYLE")
	bind("store.region", "STORE_REGION")
	bind("store.endpoint", "STORE_ENDPOINT")
	bind("store.access_key_id", "STORE_ACCESS_KEY_ID")
	bind("store.secret_access_key", "STORE_SECRET_ACCESS_KEY")
	bind("store.session_token", "STORE_SESSION_TOKEN")
	bind("store.connect_timeout", "STORE_CONNECT_TIMEOUT")
	bind("store.operation_timeout", "STORE_OPERATION_TIMEOUT")

	// Sweep
	bind("sweep.interval", "SWEEP_INTERVAL")
	bind("sweep.schedule", "SWEEP_SCHEDULE")
	bind("sweep.timeout", "SWEEP_TIMEOUT")
	bind("sweep.lock", "SWEEP_LOCK")
	bind("sweep.lock_url", "SWEEP_LOCK_URL")
	bind("sweep.lock_ttl", "SWEEP_LOCK_TTL")
	bind("sweep.lock_table", "SWEEP_LOCK_TABLE")

	// Reachability
	bind("reachability.type", "REACHABILITY_TYPE")
	bind("reachability.initial_online", "REACHABILITY_INITIAL_ONLINE")
	bind("reachability.probe_url", "REACHABILITY_PROBE_URL")
	bind("reachability.probe_interval", "REACHABILITY_PROBE_INTERVAL")
	bind("reachability.probe_timeout", "REACHABILITY_PROBE_TIMEOUT")

	// Remote
	bind("remote.base_url", "REMOTE_BASE_URL")
	bind("remote.timeout", "REMOTE_TIMEOUT")
	bind("remote.rate_limit", "REMOTE_RATE_LIMIT")
	bind("remote.burst", "REMOTE_BURST")
	bind("remote.drop_on_client_error", "REMOTE_DROP_ON_CLIENT_ERROR")
	bind("remote.user_agent", "REMOTE_USER_AGENT")

	// Broker
	bind("broker.type", "BROKER_TYPE")
	bind("broker.operation_timeout", "BROKER_OPERATION_TIMEOUT")
	bind("broker.brokers", "BROKER_BROKERS")
	bind("broker.topic", "BROKER_TOPIC")
	bind("broker.max_attempts", "BROKER_MAX_ATTEMPTS")
	bind("broker.url", "BROKER_URL")
	bind("broker.exchange", "BROKER_EXCHANGE")
	bind("broker.exchange_type", "BROKER_EXCHANGE_TYPE")
	bind("broker.routing_key", "BROKER_ROUTING_KEY")
	bind("broker.region", "BROKER_REGION")
	bind("broker.queue_url", "BROKER_QUEUE_URL")
	bind("broker.endpoint", "BROKER_ENDPOINT")
	bind("broker.access_key_id", "BROKER_ACCESS_KEY_ID")
	bind("broker.secret_access_key", "BROKER_SECRET_ACCESS_KEY")
	bind("broker.session_token", "BROKER_SESSION_TOKEN")

	// Management
	bind("management.enabled", "MGMT_ENABLED")
	bind("management.host", "MGMT_HOST")
	bind("management.port", "MGMT_PORT")
	bind("management.read_timeout", "MGMT_READ_TIMEOUT")
	bind("management.write_timeout", "MGMT_WRITE_TIMEOUT")
	bind("management.shutdown_timeout", "MGMT_SHUTDOWN_TIMEOUT")
}

func (l *ViperLoader) bindFlags(v *viper.Viper) error {
	if l.flags == nil {
		return nil
	}
	for name, key := range FlagBindings {
		flag := l.flags.Lookup(name)
		if flag == nil {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("bind flag --%s: %w", name, err)
		}
	}
	return nil
}

func (l *ViperLoader) prefixedEnv(suffix string) string {
	prefix := strings.TrimSpace(l.envPrefix)
	if prefix == "" {
		prefix = DefaultEnvPrefix
	}
	return fmt.Sprintf("%s_%s", strings.ToUpper(prefix), suffix)
}

// setDefaults sets default values in Viper from the default config
func (l *ViperLoader) setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("service.name", cfg.Service.Name)
	v.SetDefault("service.environment", cfg.Service.Environment)

	v.SetDefault("observability.log_level", cfg.Observability.LogLevel)
	v.SetDefault("observability.log_format", cfg.Observability.LogFormat)
	v.SetDefault("observability.async_logging.enabled", cfg.Observability.AsyncLogging.Enabled)
	v.SetDefault("observability.async_logging.queue_size", cfg.Observability.AsyncLogging.QueueSize)
	v.SetDefault("observability.async_logging.worker_count", cfg.Observability.AsyncLogging.WorkerCount)
	v.SetDefault("observability.async_logging.drop_when_full", cfg.Observability.AsyncLogging.DropWhenFull)
	v.SetDefault("observability.metrics_enabled", cfg.Observability.MetricsEnabled)
	v.SetDefault("observability.tracing_enabled", cfg.Observability.TracingEnabled)
	v.SetDefault("observability.tracing_endpoint", cfg.Observability.TracingEndpoint)
	v.SetDefault("observability.tracing_sample_rate", cfg.Observability.TracingSampleRate)
	v.SetDefault("observability.tracing_insecure", cfg.Observability.TracingInsecure)

	v.SetDefault("queue.max_retries", cfg.Queue.MaxRetries)
	v.SetDefault("queue.backoff_base", cfg.Queue.BackoffBase)
	v.SetDefault("queue.backoff_ceiling", cfg.Queue.BackoffCeiling)
	v.SetDefault("queue.attempt_timeout", cfg.Queue.AttemptTimeout)
	v.SetDefault("queue.key_prefix", cfg.Queue.KeyPrefix)
	v.SetDefault("queue.drain_on_start", cfg.Queue.DrainOnStart)
	v.SetDefault("queue.shutdown_timeout", cfg.Queue.ShutdownTimeout)

	v.SetDefault("store.type", cfg.Store.Type)
	v.SetDefault("store.url", cfg.Store.URL)
	v.SetDefault("store.path", cfg.Store.Path)
	v.SetDefault("store.table", cfg.Store.Table)
	v.SetDefault("store.auto_migrate", cfg.Store.AutoMigrate)
	v.SetDefault("store.max_open_conns", cfg.Store.MaxOpenConns)
	v.SetDefault("store.max_idle_conns", cfg.Store.MaxIdleConns)
	v.SetDefault("store.conn_max_lifetime", cfg.Store.ConnMaxLifetime)
	v.SetDefault("store.conn_max_idle_time", cfg.Store.ConnMaxIdleTime)
	v.SetDefault("store.max_conns", cfg.Store.MaxConns)
	v.SetDefault("store.database_name", cfg.Store.DatabaseName)
	v.SetDefault("store.collection", cfg.Store.Collection)
	v.SetDefault("store.bucket", cfg.Store.Bucket)
	v.SetDefault("store.prefix", cfg.Store.Prefix)
	v.SetDefault("store.use_path_style", cfg.Store.UsePathStyle)
	v.SetDefault("store.region", cfg.Store.Region)
	v.SetDefault("store.endpoint", cfg.Store.Endpoint)
	v.SetDefault("store.access_key_id", cfg.Store.AccessKeyID)
	v.SetDefault("store.secret_access_key", cfg.Store.SecretAccessKey)
	v.SetDefault("store.session_token", cfg.Store.SessionToken)
	v.SetDefault("store.connect_timeout", cfg.Store.ConnectTimeout)
	v.SetDefault("store.operation_timeout", cfg.Store.OperationTimeout)

	v.SetDefault("reachability.type", cfg.Reachability.Type)
	v.SetDefault("reachability.initial_online", cfg.Reachability.InitialOnline)
	v.SetDefault("reachability.probe_url", cfg.Reachability.ProbeURL)
	v.SetDefault("reachability.probe_interval", cfg.Reachability.ProbeInterval)
	v.SetDefault("reachability.probe_timeout", cfg.Reachability.ProbeTimeout)

	v.SetDefault("remote.base_url", cfg.Remote.BaseURL)
	v.SetDefault("remote.headers", cfg.Remote.Headers)
	v.SetDefault("remote.timeout", cfg.Remote.Timeout)
	v.SetDefault("remote.rate_limit", cfg.Remote.RateLimit)
	v.SetDefault("remote.burst", cfg.Remote.Burst)
	v.SetDefault("remote.drop_on_client_error", cfg.Remote.DropOnClientError)
	v.SetDefault("remote.user_agent", cfg.Remote.UserAgent)

	v.SetDefault("broker.type", cfg.Broker.Type)
	v.SetDefault("broker.operation_timeout", cfg.Broker.OperationTimeout)
	v.SetDefault("broker.brokers", cfg.Broker.Brokers)
	v.SetDefault("broker.topic", cfg.Broker.Topic)
	v.SetDefault("broker.max_attempts", cfg.Broker.MaxAttempts)
	v.SetDefault("broker.url", cfg.Broker.URL)
	v.SetDefault("broker.exchange", cfg.Broker.Exchange)
	v.SetDefault("broker.exchange_type", cfg.Broker.ExchangeType)
	v.SetDefault("broker.routing_key", cfg.Broker.RoutingKey)
	v.SetDefault("broker.region", cfg.Broker.Region)
	v.SetDefault("broker.queue_url", cfg.Broker.QueueURL)
	v.SetDefault("broker.endpoint", cfg.Broker.Endpoint)
	v.SetDefault("broker.access_key_id", cfg.Broker.AccessKeyID)
	v.SetDefault("broker.secret_access_key", cfg.Broker.SecretAccessKey)
	v.SetDefault("broker.session_token", cfg.Broker.SessionToken)

	v.SetDefault("processors", cfg.Processors)

	v.SetDefault("sweep.interval", cfg.Sweep.Interval)
	v.SetDefault("sweep.schedule", cfg.Sweep.Schedule)
	v.SetDefault("sweep.timeout", cfg.Sweep.Timeout)
	v.SetDefault("sweep.lock", cfg.Sweep.Lock)
	v.SetDefault("sweep.lock_url", cfg.Sweep.LockURL)
	v.SetDefault("sweep.lock_ttl", cfg.Sweep.LockTTL)
	v.SetDefault("sweep.lock_table", cfg.Sweep.LockTable)

	v.SetDefault("management.enabled", cfg.Management.Enabled)
	v.SetDefault("management.host", cfg.Management.Host)
	v.SetDefault("management.port", cfg.Management.Port)
	v.SetDefault("management.read_timeout", cfg.Management.ReadTimeout)
	v.SetDefault("management.write_timeout", cfg.Management.WriteTimeout)
	v.SetDefault("management.shutdown_timeout", cfg.Management.ShutdownTimeout)
}

// Validate validates the configuration and returns every problem found.
func (l *ViperLoader) Validate(cfg *Config) error {
	var errs []error

	validLogLevels := []string{"debug", "info", "warn", "error"}
	if !contains(validLogLevels, strings.ToLower(cfg.Observability.LogLevel)) {
		errs = append(errs, fmt.Errorf("invalid observability.log_level: %s (must be one of: %v)", cfg.Observability.LogLevel, validLogLevels))
	}
	validLogFormats := []string{"json", "text"}
	if !contains(validLogFormats, strings.ToLower(cfg.Observability.LogFormat)) {
		errs = append(errs, fmt.Errorf("invalid observability.log_format: %s (must be one of: %v)", cfg.Observability.LogFormat, validLogFormats))
	}
	if cfg.Observability.AsyncLogging.Enabled {
		if cfg.Observability.AsyncLogging.QueueSize <= 0 {
			errs = append(errs, errors.New("observability.async_logging.queue_size must be greater than 0 when async logging is enabled"))
		}
		if cfg.Observability.AsyncLogging.WorkerCount <= 0 {
			errs = append(errs, errors.New("observability.async_logging.worker_count must be greater than 0 when async logging is enabled"))
		}
	}
	if cfg.Observability.TracingEnabled {
		if cfg.Observability.TracingEndpoint == "" {
			errs = append(errs, errors.New("observability.tracing_endpoint is required when tracing is enabled"))
		}
		if cfg.Observability.TracingSampleRate < 0 || cfg.Observability.TracingSampleRate > 1 {
			errs = append(errs, fmt.Errorf("observability.tracing_sample_rate must be between 0 and 1, got %v", cfg.Observability.TracingSampleRate))
		}
	}

	errs = append(errs, validateQueue(cfg.Queue)...)
	errs = append(errs, validateStore(cfg.Store)...)
	errs = append(errs, validateReachability(cfg.Reachability)...)
	errs = append(errs, validateProcessors(cfg)...)
	errs = append(errs, validateSweep(cfg.Sweep)...)

	if cfg.Management.Enabled && (cfg.Management.Port <= 0 || cfg.Management.Port > 65535) {
		errs = append(errs, fmt.Errorf("invalid management.port: %d (must be between 1 and 65535)", cfg.Management.Port))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

func validateQueue(q QueueConfig) []error {
	var errs []error
	if q.MaxRetries <= 0 {
		errs = append(errs, fmt.Errorf("queue.max_retries must be greater than 0, got %d", q.MaxRetries))
	}
	if q.BackoffBase <= 0 {
		errs = append(errs, errors.New("queue.backoff_base must be positive"))
	}
	if q.BackoffCeiling < q.BackoffBase {
		errs = append(errs, errors.New("queue.backoff_ceiling must not be lower than queue.backoff_base"))
	}
	if q.AttemptTimeout < 0 {
		errs = append(errs, errors.New("queue.attempt_timeout cannot be negative"))
	}
	return errs
}

func validateSweep(s SweepConfig) []error {
	var errs []error
	if s.Interval < 0 {
		errs = append(errs, errors.New("sweep.interval cannot be negative"))
	}
	if strings.TrimSpace(s.Schedule) != "" {
		if s.Interval != 0 {
			errs = append(errs, errors.New("sweep.interval and sweep.schedule are mutually exclusive"))
		}
		if _, err := cron.ParseStandard(strings.TrimSpace(s.Schedule)); err != nil {
			errs = append(errs, fmt.Errorf("invalid sweep.schedule %q: %w", s.Schedule, err))
		}
	}
	if !s.Enabled() {
		return errs
	}
	switch strings.ToLower(s.Lock) {
	case "", SweepLockNone:
	case SweepLockRedis, SweepLockPostgres:
		if s.LockURL == "" {
			errs = append(errs, fmt.Errorf("sweep.lock_url is required for %s locks", s.Lock))
		}
		if s.LockTTL <= 0 {
			errs = append(errs, errors.New("sweep.lock_ttl must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid sweep.lock: %s (must be one of: %v)", s.Lock, []string{SweepLockNone, SweepLockRedis, SweepLockPostgres}))
	}
	return errs
}

func validateStore(s StoreConfig) []error {
	var errs []error
	switch strings.ToLower(s.Type) {
	case StoreTypeMemory:
	case StoreTypeSQLite:
		if s.Path == "" {
			errs = append(errs, errors.New("store.path is required for sqlite"))
		}
	case StoreTypePostgres, StoreTypeMySQL, StoreTypeRedis:
		if s.URL == "" {
			errs = append(errs, fmt.Errorf("store.url is required for %s", s.Type))
		}
	case StoreTypeMongoDB:
		if s.URL == "" {
			errs = append(errs, errors.New("store.url is required for mongodb"))
		}
		if s.DatabaseName == "" {
			errs = append(errs, errors.New("store.database_name is required for mongodb"))
		}
	case StoreTypeDynamoDB:
		if s.Region == "" {
			errs = append(errs, errors.New("store.region is required for dynamodb"))
		}
		if s.Table == "" {
			errs = append(errs, errors.New("store.table is required for dynamodb"))
		}
	case StoreTypeS3:
		if s.Region == "" {
			errs = append(errs, errors.New("store.region is required for s3"))
		}
		if s.Bucket == "" {
			errs = append(errs, errors.New("store.bucket is required for s3"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid store.type: %s (must be one of: %v)", s.Type, []string{
			StoreTypeMemory, StoreTypeSQLite, StoreTypePostgres, StoreTypeMySQL,
			StoreTypeRedis, StoreTypeDynamoDB, StoreTypeS3, StoreTypeMongoDB,
		}))
	}
	return errs
}

func validateReachability(r ReachabilityConfig) []error {
	switch strings.ToLower(r.Type) {
	case ReachabilityManual:
		return nil
	case ReachabilityProbe:
		if !isHTTPURL(r.ProbeURL) {
			return []error{fmt.Errorf("reachability.probe_url must be an http or https URL, got %q", r.ProbeURL)}
		}
		return nil
	default:
		return []error{fmt.Errorf("invalid reachability.type: %s (must be one of: %v)", r.Type, []string{ReachabilityManual, ReachabilityProbe})}
	}
}

func validateProcessors(cfg *Config) []error {
	var errs []error
	needsHTTP, needsBroker := false, false
	seen := make(map[string]bool, len(cfg.Processors))

	for i, p := range cfg.Processors {
		endpoint := strings.TrimSpace(p.Endpoint)
		if endpoint == "" {
			errs = append(errs, fmt.Errorf("processors[%d].endpoint is required", i))
		} else if seen[endpoint] {
			errs = append(errs, fmt.Errorf("processors[%d].endpoint %q is declared more than once", i, endpoint))
		}
		seen[endpoint] = true

		switch strings.ToLower(p.Kind) {
		case ProcessorKindHTTP:
			needsHTTP = true
		case ProcessorKindBroker:
			needsBroker = true
		default:
			errs = append(errs, fmt.Errorf("processors[%d].kind must be one of: %v", i, []string{ProcessorKindHTTP, ProcessorKindBroker}))
		}
		if p.Timeout < 0 {
			errs = append(errs, fmt.Errorf("processors[%d].timeout cannot be negative", i))
		}
		if p.CircuitBreaker.Enabled && p.CircuitBreaker.MaxFailures <= 0 {
			errs = append(errs, fmt.Errorf("processors[%d].circuit_breaker.max_failures must be greater than 0", i))
		}
	}

	if needsHTTP && !isHTTPURL(cfg.Remote.BaseURL) {
		errs = append(errs, errors.New("remote.base_url must be an http or https URL when http processors are configured"))
	}
	if needsBroker || cfg.Broker.Type != "" {
		errs = append(errs, validateBroker(cfg.Broker, needsBroker)...)
	}
	return errs
}

func validateBroker(b BrokerConfig, required bool) []error {
	var errs []error
	switch strings.ToLower(b.Type) {
	case BrokerTypeKafka:
		if len(normalizeStringSlice(b.Brokers)) == 0 {
			errs = append(errs, errors.New("broker.brokers is required for kafka"))
		}
	case BrokerTypeRabbitMQ:
		if b.URL == "" {
			errs = append(errs, errors.New("broker.url is required for rabbitmq"))
		}
	case BrokerTypeSQS:
		if b.Region == "" {
			errs = append(errs, errors.New("broker.region is required for sqs"))
		}
		if b.QueueURL == "" {
			errs = append(errs, errors.New("broker.queue_url is required for sqs"))
		}
	case "":
		if required {
			errs = append(errs, errors.New("broker.type is required when broker processors are configured"))
		}
	default:
		errs = append(errs, fmt.Errorf("invalid broker.type: %s (must be one of: %v)", b.Type, []string{BrokerTypeKafka, BrokerTypeRabbitMQ, BrokerTypeSQS}))
	}
	return errs
}

func isHTTPURL(raw string) bool {
	u, err := url.Parse(strings.TrimSpace(raw))
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// contains checks if a string slice contains a specific string
func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// normalizeStringSlice removes empty strings and trims whitespace
func normalizeStringSlice(values []string) []string {
	result := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
