package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
	DriverMemory   = "memory"
)

// Config is centralized process configuration.
// Keep infra values here and pass typed config into builders.
type Config struct {
	ServiceName string
	HTTPPort    string
	LogLevel    string

	DatabaseDriver string
	DatabaseDSN    string
	AutoMigrate    bool

	RedisURL     string
	StreamPrefix string

	CORSAllowedOrigins []string

	SchedulerInterval        time.Duration
	SchedulerBatchSize       int
	OutboxBatchSize          int
	EnableLifecycleScheduler bool
	EnableAutoFinalize       bool
	AutoFinalizeAfter        time.Duration
}

// Load resolves configuration from defaults, an optional config file, a
// local .env file and the process environment, in increasing precedence.
// Nested keys map to environment variables with dots replaced by
// underscores, so database.dsn is read from DATABASE_DSN.
func Load(path string) (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}

	v := viper.New()
	v.SetDefault("service_name", "fangov")
	v.SetDefault("http_port", "8080")
	v.SetDefault("log_level", "info")
	v.SetDefault("database.driver", DriverPostgres)
	v.SetDefault("database.dsn", "")
	v.SetDefault("auto_migrate", false)
	v.SetDefault("redis.url", "")
	v.SetDefault("stream.prefix", "governance")
	v.SetDefault("cors.allowed_origins", "")
	v.SetDefault("scheduler.interval", "30s")
	v.SetDefault("scheduler.batch_size", 100)
	v.SetDefault("outbox.batch_size", 100)
	v.SetDefault("enable.lifecycle_scheduler", true)
	v.SetDefault("enable.auto_finalize", false)
	v.SetDefault("auto_finalize_after", "24h")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	if strings.TrimSpace(path) != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
	} else {
		v.SetConfigName("governance")
		v.AddConfigPath(".")
		v.AddConfigPath("/etc/fangov")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		ServiceName: v.GetString("service_name"),
		HTTPPort:    v.GetString("http_port"),
		LogLevel:    strings.ToLower(strings.TrimSpace(v.GetString("log_level"))),

		DatabaseDriver: strings.ToLower(strings.TrimSpace(v.GetString("database.driver"))),
		DatabaseDSN:    strings.TrimSpace(v.GetString("database.dsn")),
		AutoMigrate:    v.GetBool("auto_migrate"),

		RedisURL:     strings.TrimSpace(v.GetString("redis.url")),
		StreamPrefix: strings.TrimSpace(v.GetString("stream.prefix")),

		CORSAllowedOrigins: splitList(v.GetString("cors.allowed_origins")),

		SchedulerInterval:        v.GetDuration("scheduler.interval"),
		SchedulerBatchSize:       v.GetInt("scheduler.batch_size"),
		OutboxBatchSize:          v.GetInt("outbox.batch_size"),
		EnableLifecycleScheduler: v.GetBool("enable.lifecycle_scheduler"),
		EnableAutoFinalize:       v.GetBool("enable.auto_finalize"),
		AutoFinalizeAfter:        v.GetDuration("auto_finalize_after"),
	}
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	switch c.DatabaseDriver {
	case DriverPostgres, DriverMySQL:
		if c.DatabaseDSN == "" {
			return errors.New("DATABASE_DSN is required for the " + c.DatabaseDriver + " driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver)
	}
	if c.SchedulerInterval <= 0 {
		return errors.New("SCHEDULER_INTERVAL must be positive")
	}
	if c.AutoFinalizeAfter < 0 {
		return errors.New("AUTO_FINALIZE_AFTER must not be negative")
	}
	return nil
}

// loadDotEnv applies a .env file from the working directory when present.
// Variables already set in the environment win.
func loadDotEnv() error {
	if _, err := os.Stat(".env"); err != nil {
		return nil
	}
	if err := godotenv.Load(".env"); err != nil {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

func splitList(raw string) []string {
	var items []string
	for _, value := range strings.Split(raw, ",") {
		value = strings.TrimSpace(value)
		if value != "" {
			items = append(items, value)
		}
	}
	return items
}
