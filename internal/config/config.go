package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Upstream UpstreamConfig `mapstructure:"upstream"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Sync     SyncConfig     `mapstructure:"sync"`
	Feed     FeedConfig     `mapstructure:"feed"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	Path            string        `mapstructure:"path"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
}

type UpstreamConfig struct {
	BaseURL       string        `mapstructure:"base_url"`
	AppCredential string        `mapstructure:"app_credential"`
	PageSize      int           `mapstructure:"page_size"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxAttempts   int           `mapstructure:"max_attempts"`
	PagePause     time.Duration `mapstructure:"page_pause"`
}

type QueueConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	ChunkSize       int           `mapstructure:"chunk_size"`
	ChunkPause      time.Duration `mapstructure:"chunk_pause"`
	RetentionDays   int           `mapstructure:"retention_days"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

type SyncConfig struct {
	WindowDays int `mapstructure:"window_days"`
	MaxRecords int `mapstructure:"max_records"`
}

type FeedConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxDuration  time.Duration `mapstructure:"max_duration"`
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Set defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/clientsync.db")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("upstream.page_size", 100)
	v.SetDefault("upstream.timeout", 60*time.Second)
	v.SetDefault("upstream.max_attempts", 3)
	v.SetDefault("upstream.page_pause", time.Second)
	v.SetDefault("queue.poll_interval", 5*time.Second)
	v.SetDefault("queue.chunk_size", 10)
	v.SetDefault("queue.chunk_pause", 100*time.Millisecond)
	v.SetDefault("queue.retention_days", 7)
	v.SetDefault("queue.cleanup_interval", time.Hour)
	v.SetDefault("sync.window_days", 2)
	v.SetDefault("sync.max_records", 500)
	v.SetDefault("feed.poll_interval", time.Second)
	v.SetDefault("feed.max_duration", 30*time.Second)

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.dsn", "DATABASE_DSN")
	v.BindEnv("database.driver", "DATABASE_DRIVER")
	v.BindEnv("upstream.base_url", "UPSTREAM_BASE_URL")
	v.BindEnv("upstream.app_credential", "UPSTREAM_APP_CREDENTIAL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
