package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server    ServerConfig
	Storage   StorageConfig
	Remote    RemoteConfig
	Auth      AuthConfig
	RateLimit RateLimitConfig
	Logging   LoggingConfig
	Metrics   MetricsConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
}

// StorageConfig holds the file store configuration
type StorageConfig struct {
	DataPath       string
	BackupPath     string
	EnableCache    bool
	CacheSize      int
	EncryptionKey  string
	LockTimeout    time.Duration
	AutoBackup     bool
	BackupInterval time.Duration
}

// RemoteConfig holds the optional off-site backup target
type RemoteConfig struct {
	Enabled         bool
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
}

// AuthConfig holds admin API authentication configuration
type AuthConfig struct {
	JWTSecret string
}

// RateLimitConfig holds per-client API rate limiting configuration
type RateLimitConfig struct {
	RequestsPerSecond int
	Burst             int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds the metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	// Set defaults
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := config.Storage.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects storage settings the store cannot run with
func (c StorageConfig) Validate() error {
	if c.DataPath == "" {
		return fmt.Errorf("storage.dataPath must not be empty")
	}
	if c.BackupPath == "" {
		return fmt.Errorf("storage.backupPath must not be empty")
	}
	if c.EnableCache && c.CacheSize <= 0 {
		return fmt.Errorf("storage.cacheSize must be positive when the cache is enabled")
	}
	if c.LockTimeout <= 0 {
		return fmt.Errorf("storage.lockTimeout must be positive")
	}
	return nil
}

func setDefaults() {
	// Server defaults
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.readTimeout", "30s")
	viper.SetDefault("server.writeTimeout", "30s")
	viper.SetDefault("server.shutdownTimeout", "10s")

	// Storage defaults
	viper.SetDefault("storage.dataPath", "./data")
	viper.SetDefault("storage.backupPath", "./data/backups")
	viper.SetDefault("storage.enableCache", true)
	viper.SetDefault("storage.cacheSize", 1000)
	viper.SetDefault("storage.encryptionKey", "")
	viper.SetDefault("storage.lockTimeout", "5s")
	viper.SetDefault("storage.autoBackup", false)
	viper.SetDefault("storage.backupInterval", "24h")

	// Remote backup defaults
	viper.SetDefault("remote.enabled", false)
	viper.SetDefault("remote.endpoint", "localhost:9000")
	viper.SetDefault("remote.accessKeyID", "minioadmin")
	viper.SetDefault("remote.secretAccessKey", "minioadmin")
	viper.SetDefault("remote.bucketName", "promptstore-backups")
	viper.SetDefault("remote.region", "us-east-1")
	viper.SetDefault("remote.useSSL", false)

	// Auth defaults
	viper.SetDefault("auth.jwtSecret", "")

	// Rate limit defaults
	viper.SetDefault("ratelimit.requestsPerSecond", 20)
	viper.SetDefault("ratelimit.burst", 40)

	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9091)
}
