// Package config loads vault configuration. An optional YAML file is read
// with koanf; VAULT_* environment variables take precedence; defaults fill
// the rest.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

// Backend names.
const (
	BackendMemory   = "memory"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
	BackendS3       = "s3"
)

// Audit sink names.
const (
	AuditSinkNone  = "none"
	AuditSinkSQL   = "sql"
	AuditSinkKafka = "kafka"
)

// Defaults.
const (
	DefaultBackend          = BackendSQLite
	DefaultSQLitePath       = "receiptvault.db"
	DefaultAuditSink        = AuditSinkSQL
	DefaultLockTimeout      = 5 * time.Second
	DefaultExpiryInterval   = time.Hour
	DefaultMetricsAddr      = ":9464"
	DefaultLogLevel         = "info"
	DefaultLogFormat        = "json"
	DefaultEnvironment      = "development"
	DefaultKafkaTopic       = "receiptvault.audit"
	DefaultKafkaAcks        = "all"
	DefaultRedisNamespace   = "default"
	DefaultS3Prefix         = "receiptvault"
	DefaultS3Region         = "us-east-1"
	DefaultAuditAsyncBuffer = 0
)

// Config validation errors.
var (
	ErrUnknownBackend       = errors.New("backend must be one of memory, sqlite, postgres, redis, s3")
	ErrUnknownAuditSink     = errors.New("audit_sink must be one of none, sql, kafka")
	ErrMissingDatabaseURL   = errors.New("database_url is required for the postgres backend")
	ErrMissingRedisURL      = errors.New("redis_url is required for the redis backend")
	ErrMissingS3Bucket      = errors.New("s3_bucket is required for the s3 backend")
	ErrMissingKafkaBrokers  = errors.New("kafka_brokers is required for the kafka audit sink")
	ErrSQLSinkNeedsDatabase = errors.New("audit_sink sql requires the sqlite or postgres backend")
	ErrNonPositiveDuration  = errors.New("durations must be positive")
	ErrUnknownLogFormat     = errors.New("log_format must be json or text")
)

// DatabaseConfig configures the postgres pool.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig configures the redis client.
type RedisConfig struct {
	URL          string
	Namespace    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// S3Config configures the object store backend.
type S3Config struct {
	Bucket          string
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	Prefix          string
	UsePathStyle    bool
}

// KafkaConfig configures the audit stream.
type KafkaConfig struct {
	Brokers string
	Topic   string
	Acks    string
}

// Config holds every vault setting.
type Config struct {
	Backend    string
	SQLitePath string
	Database   DatabaseConfig
	Redis      RedisConfig
	S3         S3Config
	Kafka      KafkaConfig

	AuditSink        string
	AuditAsyncBuffer int
	AuditHashChain   bool

	LockTimeout    time.Duration
	ExpiryInterval time.Duration

	MetricsAddr string
	LogLevel    string
	LogFormat   string
	Environment string
}

// Load reads configuration from configFilePath (optional) and the
// environment. The returned errors are validation failures; cfg is non-nil
// unless the file itself could not be read.
func Load(configFilePath string) (*Config, []error) {
	k := koanf.New(".")
	if configFilePath != "" {
		if err := k.Load(file.Provider(configFilePath), yaml.Parser()); err != nil {
			return nil, []error{fmt.Errorf("load config file %s: %w", configFilePath, err)}
		}
	}

	var errs []error
	intVal := func(env, key string, def int) int {
		v, err := envInt(env, k, key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	durVal := func(env, key string, def time.Duration) time.Duration {
		v, err := envDuration(env, k, key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}
	boolVal := func(env, key string, def bool) bool {
		v, err := envBool(env, k, key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Backend:    strings.ToLower(envString("VAULT_BACKEND", k, "backend", DefaultBackend)),
		SQLitePath: envString("VAULT_SQLITE_PATH", k, "sqlite_path", DefaultSQLitePath),
		Database: DatabaseConfig{
			URL:             envString("VAULT_DATABASE_URL", k, "database_url", ""),
			MaxOpenConns:    intVal("VAULT_DATABASE_MAX_OPEN_CONNS", "database_max_open_conns", 25),
			MaxIdleConns:    intVal("VAULT_DATABASE_MAX_IDLE_CONNS", "database_max_idle_conns", 5),
			ConnMaxLifetime: durVal("VAULT_DATABASE_CONN_MAX_LIFETIME", "database_conn_max_lifetime", 5*time.Minute),
		},
		Redis: RedisConfig{
			URL:          envString("VAULT_REDIS_URL", k, "redis_url", ""),
			Namespace:    envString("VAULT_REDIS_NAMESPACE", k, "redis_namespace", DefaultRedisNamespace),
			PoolSize:     intVal("VAULT_REDIS_POOL_SIZE", "redis_pool_size", 10),
			MinIdleConns: intVal("VAULT_REDIS_MIN_IDLE_CONNS", "redis_min_idle_conns", 2),
			DialTimeout:  durVal("VAULT_REDIS_DIAL_TIMEOUT", "redis_dial_timeout", 5*time.Second),
			ReadTimeout:  durVal("VAULT_REDIS_READ_TIMEOUT", "redis_read_timeout", 3*time.Second),
			WriteTimeout: durVal("VAULT_REDIS_WRITE_TIMEOUT", "redis_write_timeout", 3*time.Second),
		},
		S3: S3Config{
			Bucket:          envString("VAULT_S3_BUCKET", k, "s3_bucket", ""),
			Region:          envString("VAULT_S3_REGION", k, "s3_region", DefaultS3Region),
			Endpoint:        envString("VAULT_S3_ENDPOINT", k, "s3_endpoint", ""),
			AccessKeyID:     envString("VAULT_S3_ACCESS_KEY_ID", k, "s3_access_key_id", ""),
			SecretAccessKey: envString("VAULT_S3_SECRET_ACCESS_KEY", k, "s3_secret_access_key", ""),
			Prefix:          envString("VAULT_S3_PREFIX", k, "s3_prefix", DefaultS3Prefix),
			UsePathStyle:    boolVal("VAULT_S3_USE_PATH_STYLE", "s3_use_path_style", false),
		},
		Kafka: KafkaConfig{
			Brokers: envString("VAULT_KAFKA_BROKERS", k, "kafka_brokers", ""),
			Topic:   envString("VAULT_KAFKA_TOPIC", k, "kafka_topic", DefaultKafkaTopic),
			Acks:    envString("VAULT_KAFKA_ACKS", k, "kafka_acks", DefaultKafkaAcks),
		},
		AuditSink:        strings.ToLower(envString("VAULT_AUDIT_SINK", k, "audit_sink", DefaultAuditSink)),
		AuditAsyncBuffer: intVal("VAULT_AUDIT_ASYNC_BUFFER", "audit_async_buffer", DefaultAuditAsyncBuffer),
		AuditHashChain:   boolVal("VAULT_AUDIT_HASH_CHAIN", "audit_hash_chain", true),
		LockTimeout:      durVal("VAULT_LOCK_TIMEOUT", "lock_timeout", DefaultLockTimeout),
		ExpiryInterval:   durVal("VAULT_EXPIRY_INTERVAL", "expiry_interval", DefaultExpiryInterval),
		MetricsAddr:      envString("VAULT_METRICS_ADDR", k, "metrics_addr", DefaultMetricsAddr),
		LogLevel:         strings.ToLower(envString("VAULT_LOG_LEVEL", k, "log_level", DefaultLogLevel)),
		LogFormat:        strings.ToLower(envString("VAULT_LOG_FORMAT", k, "log_format", DefaultLogFormat)),
		Environment:      envString("VAULT_ENVIRONMENT", k, "environment", DefaultEnvironment),
	}

	errs = append(errs, cfg.Validate()...)
	return cfg, errs
}

// Validate reports every invalid combination of settings.
func (c *Config) Validate() []error {
	var errs []error
	switch c.Backend {
	case BackendMemory, BackendSQLite:
	case BackendPostgres:
		if c.Database.URL == "" {
			errs = append(errs, ErrMissingDatabaseURL)
		}
	case BackendRedis:
		if c.Redis.URL == "" {
			errs = append(errs, ErrMissingRedisURL)
		}
	case BackendS3:
		if c.S3.Bucket == "" {
			errs = append(errs, ErrMissingS3Bucket)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrUnknownBackend, c.Backend))
	}

	switch c.AuditSink {
	case AuditSinkNone:
	case AuditSinkSQL:
		if !c.UsesSQL() {
			errs = append(errs, ErrSQLSinkNeedsDatabase)
		}
	case AuditSinkKafka:
		if c.Kafka.Brokers == "" {
			errs = append(errs, ErrMissingKafkaBrokers)
		}
	default:
		errs = append(errs, fmt.Errorf("%w: got %q", ErrUnknownAuditSink, c.AuditSink))
	}

	if c.LockTimeout <= 0 || c.ExpiryInterval <= 0 {
		errs = append(errs, ErrNonPositiveDuration)
	}
	if c.LogFormat != "json" && c.LogFormat != "text" {
		errs = append(errs, ErrUnknownLogFormat)
	}
	return errs
}

// UsesSQL reports whether the artifact backend is a SQL database.
func (c *Config) UsesSQL() bool {
	return c.Backend == BackendSQLite || c.Backend == BackendPostgres
}

func envString(envKey string, k *koanf.Koanf, key, def string) string {
	if v := os.Getenv(envKey); v != "" {
		return v
	}
	if v := k.String(key); v != "" {
		return v
	}
	return def
}

func envInt(envKey string, k *koanf.Koanf, key string, def int) (int, error) {
	if v := os.Getenv(envKey); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return def, fmt.Errorf("%s: invalid integer %q", envKey, v)
		}
		return n, nil
	}
	if k.Exists(key) {
		return k.Int(key), nil
	}
	return def, nil
}

func envDuration(envKey string, k *koanf.Koanf, key string, def time.Duration) (time.Duration, error) {
	raw := os.Getenv(envKey)
	name := envKey
	if raw == "" {
		if !k.Exists(key) {
			return def, nil
		}
		raw = k.String(key)
		name = key
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return def, fmt.Errorf("%s: invalid duration %q", name, raw)
	}
	return d, nil
}

func envBool(envKey string, k *koanf.Koanf, key string, def bool) (bool, error) {
	if v := os.Getenv(envKey); v != "" {
		switch strings.ToLower(v) {
		case "true", "1", "yes", "on":
			return true, nil
		case "false", "0", "no", "off":
			return false, nil
		default:
			return def, fmt.Errorf("%s: invalid boolean %q", envKey, v)
		}
	}
	if k.Exists(key) {
		return k.Bool(key), nil
	}
	return def, nil
}
