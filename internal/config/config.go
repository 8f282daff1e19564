package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	// Server
	Port string `mapstructure:"port"`
	Env  string `mapstructure:"env"`

	// Database
	StorageDriver string `mapstructure:"storage_driver"`
	DatabaseURL   string `mapstructure:"database_url"`
	SQLitePath    string `mapstructure:"sqlite_path"`

	// Redis (optional)
	RedisURL string `mapstructure:"redis_url"`

	// Auth
	JWTSecret         string        `mapstructure:"jwt_secret"`
	RequireApproval   bool          `mapstructure:"require_approval"`
	IdentityCacheSize int           `mapstructure:"identity_cache_size"`
	IdentityCacheTTL  time.Duration `mapstructure:"identity_cache_ttl"`

	// Tracker
	LeaderboardCacheTTL time.Duration `mapstructure:"leaderboard_cache_ttl"`
	LockTTL             time.Duration `mapstructure:"lock_ttl"`
	LockWait            time.Duration `mapstructure:"lock_wait"`

	// Rate limiting
	RateLimit       int           `mapstructure:"rate_limit"`
	RateLimitWindow time.Duration `mapstructure:"rate_limit_window"`

	// Logging
	LogLevel  string `mapstructure:"log_level"`
	LogFormat string `mapstructure:"log_format"`

	// Frontend
	FrontendURL string `mapstructure:"frontend_url"`
}

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

// Load reads .env, then the optional config file at path, then the
// environment. Later sources win.
func Load(path string) (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("port", "8080")
	v.SetDefault("env", "development")

	v.SetDefault("storage_driver", DriverPostgres)
	v.SetDefault("database_url", "")
	v.SetDefault("sqlite_path", "./studytracker.db")

	v.SetDefault("redis_url", "")

	v.SetDefault("jwt_secret", "")
	v.SetDefault("require_approval", true)
	v.SetDefault("identity_cache_size", 1024)
	v.SetDefault("identity_cache_ttl", "5m")

	v.SetDefault("leaderboard_cache_ttl", "30s")
	v.SetDefault("lock_ttl", "10s")
	v.SetDefault("lock_wait", "5s")

	v.SetDefault("rate_limit", 120)
	v.SetDefault("rate_limit_window", "1m")

	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "json")

	v.SetDefault("frontend_url", "http://localhost:5173")
}

func validate(cfg *Config) error {
	cfg.StorageDriver = strings.ToLower(strings.TrimSpace(cfg.StorageDriver))

	if cfg.JWTSecret == "" {
		return errors.New("jwt_secret is required")
	}

	switch cfg.StorageDriver {
	case DriverPostgres:
		if cfg.DatabaseURL == "" {
			return errors.New("database_url is required for the postgres driver")
		}
	case DriverSQLite:
		if cfg.SQLitePath == "" {
			return errors.New("sqlite_path is required for the sqlite driver")
		}
	default:
		return fmt.Errorf("unknown storage_driver %q (want postgres or sqlite)", cfg.StorageDriver)
	}

	if cfg.IdentityCacheSize <= 0 {
		return errors.New("identity_cache_size must be positive")
	}
	if cfg.LockTTL <= 0 || cfg.LockWait <= 0 {
		return errors.New("lock_ttl and lock_wait must be positive")
	}
	if cfg.RateLimit < 0 {
		return errors.New("rate_limit must not be negative")
	}

	switch cfg.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log_format %q (want json or text)", cfg.LogFormat)
	}
	return nil
}

// IsProduction reports whether the server runs with ENV=production.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}
