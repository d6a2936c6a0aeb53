// Package config loads saga-orchestrator configuration from the
// environment (with an optional .env file), following the same
// viper-based Load/setDefaults/bindConfig/Validate split the source
// monorepo uses for its per-service configs.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all process configuration.
type Config struct {
	App     AppConfig
	Server  ServerConfig
	Database DatabaseConfig
	Redis   RedisConfig
	Kafka   KafkaConfig
	JWT     JWTConfig
	OTel    OTelConfig
	Saga    SagaConfig
}

// AppConfig holds application-level settings.
type AppConfig struct {
	Name        string
	Environment string
	Debug       bool
}

// ServerConfig holds the admission HTTP surface's server settings.
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DatabaseConfig holds the durable-store PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string
	Port            int
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		d.Host, d.Port, d.User, d.Password, d.DBName, d.SSLMode,
	)
}

// RedisConfig holds the coordination-store Redis connection settings.
type RedisConfig struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// Addr returns the Redis address.
func (r *RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

// KafkaConfig holds broker-gateway connection settings.
type KafkaConfig struct {
	Brokers       []string
	ConsumerGroup string
	ClientID      string
}

// JWTConfig guards the admin/recovery HTTP surface.
type JWTConfig struct {
	Secret string
	Issuer string
}

// OTelConfig holds OpenTelemetry exporter settings.
type OTelConfig struct {
	Enabled       bool
	ServiceName   string
	CollectorAddr string
	SampleRatio   float64
}

// SagaConfig holds the orchestrator's business-rule knobs (spec.md §6).
type SagaConfig struct {
	RateLimitPerMinute    int
	LockTTL               time.Duration
	ActiveStateTTL        time.Duration
	StepsTTL              time.Duration
	MetadataTTL           time.Duration
	StuckSagaThreshold    time.Duration
	SweeperInterval       time.Duration
	WebhookTimeout        time.Duration
}

// Load loads configuration from environment variables and an optional
// .env file.
func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read .env: %w", err)
		}
	}

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	cfg := &Config{}
	bindConfig(v, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", "saga-orchestrator")
	v.SetDefault("APP_ENVIRONMENT", "development")
	v.SetDefault("APP_DEBUG", true)

	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8080)
	v.SetDefault("SERVER_READ_TIMEOUT", "30s")
	v.SetDefault("SERVER_WRITE_TIMEOUT", "30s")

	v.SetDefault("SAGA_DATABASE_HOST", "localhost")
	v.SetDefault("SAGA_DATABASE_PORT", 5432)
	v.SetDefault("SAGA_DATABASE_USER", "postgres")
	v.SetDefault("SAGA_DATABASE_PASSWORD", "postgres")
	v.SetDefault("SAGA_DATABASE_DBNAME", "saga_db")
	v.SetDefault("SAGA_DATABASE_SSLMODE", "disable")
	v.SetDefault("SAGA_DATABASE_MAX_OPEN_CONNS", 50)
	v.SetDefault("SAGA_DATABASE_MAX_IDLE_CONNS", 10)
	v.SetDefault("SAGA_DATABASE_CONN_MAX_LIFETIME", "1h")

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("REDIS_POOL_SIZE", 100)
	v.SetDefault("REDIS_MIN_IDLE_CONNS", 10)
	v.SetDefault("REDIS_DIAL_TIMEOUT", "5s")
	v.SetDefault("REDIS_READ_TIMEOUT", "3s")
	v.SetDefault("REDIS_WRITE_TIMEOUT", "3s")

	v.SetDefault("KAFKA_BROKERS", "localhost:9092")
	v.SetDefault("KAFKA_CONSUMER_GROUP", "saga-orchestrator")
	v.SetDefault("KAFKA_CLIENT_ID", "saga-orchestrator")

	v.SetDefault("JWT_SECRET", "change-me-in-production")
	v.SetDefault("JWT_ISSUER", "saga-orchestrator")

	v.SetDefault("OTEL_ENABLED", true)
	v.SetDefault("OTEL_SERVICE_NAME", "saga-orchestrator")
	v.SetDefault("OTEL_COLLECTOR_ADDR", "localhost:4317")
	v.SetDefault("OTEL_SAMPLE_RATIO", 1.0)

	v.SetDefault("RATE_LIMIT_PER_MIN", 5)
	v.SetDefault("LOCK_TTL_SECONDS", 300)
	v.SetDefault("ACTIVE_STATE_TTL_SECONDS", 3600)
	v.SetDefault("STEPS_TTL_SECONDS", 7200)
	v.SetDefault("METADATA_TTL_SECONDS", 7200)
	v.SetDefault("STUCK_SAGA_THRESHOLD_MS", 1_800_000)
	v.SetDefault("SWEEPER_INTERVAL_SECONDS", 60)
	v.SetDefault("WEBHOOK_TIMEOUT_MS", 5000)
}

func bindConfig(v *viper.Viper, cfg *Config) {
	cfg.App.Name = v.GetString("APP_NAME")
	cfg.App.Environment = v.GetString("APP_ENVIRONMENT")
	cfg.App.Debug = v.GetBool("APP_DEBUG")

	cfg.Server.Host = v.GetString("SERVER_HOST")
	cfg.Server.Port = v.GetInt("SERVER_PORT")
	cfg.Server.ReadTimeout = v.GetDuration("SERVER_READ_TIMEOUT")
	cfg.Server.WriteTimeout = v.GetDuration("SERVER_WRITE_TIMEOUT")

	cfg.Database.Host = v.GetString("SAGA_DATABASE_HOST")
	cfg.Database.Port = v.GetInt("SAGA_DATABASE_PORT")
	cfg.Database.User = v.GetString("SAGA_DATABASE_USER")
	cfg.Database.Password = v.GetString("SAGA_DATABASE_PASSWORD")
	cfg.Database.DBName = v.GetString("SAGA_DATABASE_DBNAME")
	cfg.Database.SSLMode = v.GetString("SAGA_DATABASE_SSLMODE")
	cfg.Database.MaxOpenConns = v.GetInt("SAGA_DATABASE_MAX_OPEN_CONNS")
	cfg.Database.MaxIdleConns = v.GetInt("SAGA_DATABASE_MAX_IDLE_CONNS")
	cfg.Database.ConnMaxLifetime = v.GetDuration("SAGA_DATABASE_CONN_MAX_LIFETIME")

	cfg.Redis.Host = v.GetString("REDIS_HOST")
	cfg.Redis.Port = v.GetInt("REDIS_PORT")
	cfg.Redis.Password = v.GetString("REDIS_PASSWORD")
	cfg.Redis.DB = v.GetInt("REDIS_DB")
	cfg.Redis.PoolSize = v.GetInt("REDIS_POOL_SIZE")
	cfg.Redis.MinIdleConns = v.GetInt("REDIS_MIN_IDLE_CONNS")
	cfg.Redis.DialTimeout = v.GetDuration("REDIS_DIAL_TIMEOUT")
	cfg.Redis.ReadTimeout = v.GetDuration("REDIS_READ_TIMEOUT")
	cfg.Redis.WriteTimeout = v.GetDuration("REDIS_WRITE_TIMEOUT")

	brokers := v.GetString("KAFKA_BROKERS")
	cfg.Kafka.Brokers = strings.Split(brokers, ",")
	cfg.Kafka.ConsumerGroup = v.GetString("KAFKA_CONSUMER_GROUP")
	cfg.Kafka.ClientID = v.GetString("KAFKA_CLIENT_ID")

	cfg.JWT.Secret = v.GetString("JWT_SECRET")
	cfg.JWT.Issuer = v.GetString("JWT_ISSUER")

	cfg.OTel.Enabled = v.GetBool("OTEL_ENABLED")
	cfg.OTel.ServiceName = v.GetString("OTEL_SERVICE_NAME")
	cfg.OTel.CollectorAddr = v.GetString("OTEL_COLLECTOR_ADDR")
	cfg.OTel.SampleRatio = v.GetFloat64("OTEL_SAMPLE_RATIO")

	cfg.Saga.RateLimitPerMinute = v.GetInt("RATE_LIMIT_PER_MIN")
	cfg.Saga.LockTTL = time.Duration(v.GetInt64("LOCK_TTL_SECONDS")) * time.Second
	cfg.Saga.ActiveStateTTL = time.Duration(v.GetInt64("ACTIVE_STATE_TTL_SECONDS")) * time.Second
	cfg.Saga.StepsTTL = time.Duration(v.GetInt64("STEPS_TTL_SECONDS")) * time.Second
	cfg.Saga.MetadataTTL = time.Duration(v.GetInt64("METADATA_TTL_SECONDS")) * time.Second
	cfg.Saga.StuckSagaThreshold = time.Duration(v.GetInt64("STUCK_SAGA_THRESHOLD_MS")) * time.Millisecond
	cfg.Saga.SweeperInterval = time.Duration(v.GetInt64("SWEEPER_INTERVAL_SECONDS")) * time.Second
	cfg.Saga.WebhookTimeout = time.Duration(v.GetInt64("WEBHOOK_TIMEOUT_MS")) * time.Millisecond
}

// Validate checks required fields and production safety.
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return fmt.Errorf("app name is required")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	if c.App.Environment == "production" && c.JWT.Secret == "change-me-in-production" {
		return fmt.Errorf("JWT secret must be changed in production")
	}
	return nil
}

// IsProduction returns true if running in the production environment.
func (c *Config) IsProduction() bool { return c.App.Environment == "production" }
