package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the service
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Kafka      KafkaConfig
	Sync       SyncConfig
	RateSource RateSourceConfig
	Logging    LoggingConfig
	ServiceKey string
}

// ServerConfig holds server specific configuration
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// DatabaseConfig holds database specific configuration
type DatabaseConfig struct {
	Host            string
	Port            string
	User            string
	Password        string
	DBName          string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis specific configuration
type RedisConfig struct {
	Enabled  bool
	URL      string
	Password string
	DB       int
}

// KafkaConfig holds Kafka specific configuration
type KafkaConfig struct {
	Enabled bool
	Brokers []string
	Topic   string
}

// SyncConfig holds feed synchronization configuration
type SyncConfig struct {
	FeedTimeout        time.Duration
	CatalogTTL         time.Duration
	LockTTL            time.Duration
	RunBudget          time.Duration
	PartnerLifetime    time.Duration
	DefaultCreateSec   int
	DefaultUpdateSec   int
	DefaultBlacklistHr int
}

// RateSourceConfig holds the external spot-price source configuration
type RateSourceConfig struct {
	BaseURL string
	Timeout time.Duration
}

// LoggingConfig holds logging specific configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads the configuration from file and environment variables
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Read config file
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Environment variables override
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets default values for configuration
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.readTimeout", "10s")
	v.SetDefault("server.writeTimeout", "10s")
	v.SetDefault("server.idleTimeout", "120s")

	// Database defaults
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxOpenConns", 25)
	v.SetDefault("database.maxIdleConns", 5)
	v.SetDefault("database.connMaxLifetime", "30m")

	// Redis defaults
	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.url", "localhost:6379")
	v.SetDefault("redis.db", 0)

	// Kafka defaults
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "offer-sync-events")

	// Sync defaults. The lock TTL must not be shorter than the run
	// budget, otherwise a slow run loses its single-flight guarantee.
	v.SetDefault("sync.feedTimeout", "5s")
	v.SetDefault("sync.catalogTTL", "60s")
	v.SetDefault("sync.lockTTL", "120s")
	v.SetDefault("sync.runBudget", "120s")
	v.SetDefault("sync.partnerLifetime", "72h")
	v.SetDefault("sync.defaultCreateSec", 90)
	v.SetDefault("sync.defaultUpdateSec", 60)
	v.SetDefault("sync.defaultBlacklistHr", 24)

	// Rate source defaults
	v.SetDefault("ratesource.baseURL", "https://api.coinbase.com/v2")
	v.SetDefault("ratesource.timeout", "5s")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("servicekey", "exchange-aggregator-key")
}
