package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Store     StoreConfig     `mapstructure:"store"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Lease     LeaseConfig     `mapstructure:"lease"`
	Matching  MatchingConfig  `mapstructure:"matching"`
	AI        AIConfig        `mapstructure:"ai"`
	Jobs      JobsConfig      `mapstructure:"jobs"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Auth      AuthConfig      `mapstructure:"auth"`
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	Environment     string        `mapstructure:"environment"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes"`
}

// LogConfig holds logger configuration
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"` // "json" or "console"
	File       string `mapstructure:"file"`   // empty = stdout only
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// StoreConfig holds persistence configuration
type StoreConfig struct {
	Type            string        `mapstructure:"type"` // "memory" or "postgres"
	DSN             string        `mapstructure:"dsn"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	LogLevel        string        `mapstructure:"log_level"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds Redis connection configuration
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

// LeaseConfig holds batch mutual exclusion configuration
type LeaseConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Backend string        `mapstructure:"backend"` // "memory" or "redis"
	Key     string        `mapstructure:"key"`
	TTL     time.Duration `mapstructure:"ttl"`
}

// MatchingConfig holds batch and scoring configuration
type MatchingConfig struct {
	BatchSize      int      `mapstructure:"batch_size"`
	Threshold      float64  `mapstructure:"threshold"`
	ExtraStopWords []string `mapstructure:"extra_stop_words"`
	CategoryBonus  float64  `mapstructure:"category_bonus"`
}

// AIConfig holds AI fallback configuration
type AIConfig struct {
	Provider          string        `mapstructure:"provider"` // "none", "gateway" or "gemini"
	BaseURL           string        `mapstructure:"base_url"`
	APIKey            string        `mapstructure:"api_key"`
	Model             string        `mapstructure:"model"`
	ChunkSize         int           `mapstructure:"chunk_size"`
	MaxProducts       int           `mapstructure:"max_products"`
	Timeout           time.Duration `mapstructure:"timeout"`
	Confidence        float64       `mapstructure:"confidence"`
	RequestsPerMinute int           `mapstructure:"requests_per_minute"`
}

// JobsConfig holds work queue configuration
type JobsConfig struct {
	MaxAttempts  int           `mapstructure:"max_attempts"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
	StaleTimeout time.Duration `mapstructure:"stale_timeout"`
}

// SchedulerConfig holds cron configuration
type SchedulerConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	WorkerInterval string `mapstructure:"worker_interval"`
	BatchCron      string `mapstructure:"batch_cron"` // empty = no periodic batch job
}

// AuthConfig holds admin route authentication configuration
type AuthConfig struct {
	JWTSecret    string   `mapstructure:"jwt_secret"` // empty = admin routes are open
	AllowedRoles []string `mapstructure:"allowed_roles"`
}

// Load loads configuration from .env, environment variables and config files
func Load() (*Config, error) {
	return LoadFrom("")
}

// LoadFrom loads configuration like Load but reads the given config file when path is set
func LoadFrom(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	v := viper.New()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		v.AddConfigPath("/etc/adbroll/")
	}

	// ADBROLL_SERVER_PORT -> server.port
	v.SetEnvPrefix("ADBROLL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// loadEnvFile loads .env from the working directory if present
func loadEnvFile() error {
	err := godotenv.Load()
	if err != nil && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout", "15s")
	v.SetDefault("server.max_upload_bytes", 32<<20)

	// Log defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 30)

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.dsn", "")
	v.SetDefault("store.max_idle_conns", 5)
	v.SetDefault("store.max_open_conns", 20)
	v.SetDefault("store.conn_max_lifetime", "1h")
	v.SetDefault("store.log_level", "warn")
	v.SetDefault("store.auto_migrate", true)

	// Redis defaults
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Lease defaults
	v.SetDefault("lease.enabled", true)
	v.SetDefault("lease.backend", "memory")
	v.SetDefault("lease.key", "matcher:batch")
	v.SetDefault("lease.ttl", "10m")

	// Matching defaults
	v.SetDefault("matching.batch_size", 100)
	v.SetDefault("matching.threshold", 0.55)
	v.SetDefault("matching.extra_stop_words", []string{})
	v.SetDefault("matching.category_bonus", 0.1)

	// AI defaults
	v.SetDefault("ai.provider", "none")
	v.SetDefault("ai.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("ai.api_key", "")
	v.SetDefault("ai.model", "")
	v.SetDefault("ai.chunk_size", 20)
	v.SetDefault("ai.max_products", 200)
	v.SetDefault("ai.timeout", "30s")
	v.SetDefault("ai.confidence", 0.7)
	v.SetDefault("ai.requests_per_minute", 30)

	// Jobs defaults
	v.SetDefault("jobs.max_attempts", 3)
	v.SetDefault("jobs.retry_backoff", "30s")
	v.SetDefault("jobs.stale_timeout", "1h")

	// Scheduler defaults
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.worker_interval", "@every 10s")
	v.SetDefault("scheduler.batch_cron", "")

	// Auth defaults
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.allowed_roles", []string{"service_role", "admin"})
}

// validate validates the configuration
func validate(config *Config) error {
	switch config.Store.Type {
	case "memory":
	case "postgres":
		if config.Store.DSN == "" {
			return fmt.Errorf("store DSN is required when store type is 'postgres' (set ADBROLL_STORE_DSN)")
		}
	default:
		return fmt.Errorf("store type must be 'memory' or 'postgres', got: %s", config.Store.Type)
	}

	if config.Lease.Backend != "memory" && config.Lease.Backend != "redis" {
		return fmt.Errorf("lease backend must be 'memory' or 'redis', got: %s", config.Lease.Backend)
	}
	if config.Lease.Enabled && config.Lease.TTL <= 0 {
		return fmt.Errorf("lease TTL must be positive, got: %s", config.Lease.TTL)
	}

	if config.Matching.BatchSize <= 0 {
		return fmt.Errorf("matching batch size must be positive, got: %d", config.Matching.BatchSize)
	}
	if config.Matching.Threshold <= 0 || config.Matching.Threshold > 1 {
		return fmt.Errorf("matching threshold must be within (0, 1], got: %v", config.Matching.Threshold)
	}

	switch config.AI.Provider {
	case "none":
	case "gateway":
		if config.AI.BaseURL == "" {
			return fmt.Errorf("AI base URL is required when provider is 'gateway' (set ADBROLL_AI_BASE_URL)")
		}
	case "gemini":
		if config.AI.APIKey == "" {
			return fmt.Errorf("AI API key is required when provider is 'gemini' (set ADBROLL_AI_API_KEY)")
		}
	default:
		return fmt.Errorf("AI provider must be 'none', 'gateway' or 'gemini', got: %s", config.AI.Provider)
	}
	if config.AI.Confidence <= 0 || config.AI.Confidence > 1 {
		return fmt.Errorf("AI confidence must be within (0, 1], got: %v", config.AI.Confidence)
	}

	if config.Log.Format != "json" && config.Log.Format != "console" {
		return fmt.Errorf("log format must be 'json' or 'console', got: %s", config.Log.Format)
	}

	return nil
}
