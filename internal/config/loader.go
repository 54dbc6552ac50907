// internal/config/loader.go
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Load reads .env, configs/config.yaml (optional) and environment overrides.
// Keys map to env vars with "." replaced by "_", e.g. PROVIDER_TEAM_ID.
func Load() (*Config, error) {
	loadEnvFile()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("../../configs")
	v.AddConfigPath(".")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := validateConfig(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can resolve it on Unmarshal.
func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "voicedrop-backend")
	v.SetDefault("app.environment", "development")
	v.SetDefault("server.addr", ":8080")

	v.SetDefault("database.postgres.host", "localhost")
	v.SetDefault("database.postgres.port", 5432)
	v.SetDefault("database.postgres.database", "voicedrop")
	v.SetDefault("database.postgres.user", "postgres")
	v.SetDefault("database.postgres.password", "")
	v.SetDefault("database.postgres.sslmode", "disable")
	v.SetDefault("database.postgres.max_connections", 10)
	v.SetDefault("database.postgres.max_idle", 5)

	v.SetDefault("database.redis.address", "")
	v.SetDefault("database.redis.password", "")
	v.SetDefault("database.redis.db", 0)
	v.SetDefault("database.redis.media_ttl", "24h")

	v.SetDefault("rabbitmq.url", "")
	v.SetDefault("rabbitmq.dispatch_queue", "campaign_dispatches")
	v.SetDefault("rabbitmq.execution_queue", "dispatch_executions")

	v.SetDefault("provider.base_url", "https://api.slybroadcast.example/v1")
	v.SetDefault("provider.team_id", "")
	v.SetDefault("provider.secret", "")
	v.SetDefault("provider.brand_id", "")
	v.SetDefault("provider.timeout", "30s")

	v.SetDefault("dispatch.interval", "1s")
	v.SetDefault("dispatch.concurrency", 1)
	v.SetDefault("dispatch.heartbeat_interval", "1m")
	v.SetDefault("dispatch.guard_ttl", "30m")
	v.SetDefault("dispatch.sweep_schedule", "@every 5m")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

func validateConfig(cfg *Config) error {
	if cfg.Dispatch.Concurrency < 1 {
		return fmt.Errorf("dispatch.concurrency must be >= 1, got %d", cfg.Dispatch.Concurrency)
	}
	if cfg.Dispatch.Interval < 0 {
		return fmt.Errorf("dispatch.interval must not be negative")
	}
	if cfg.Dispatch.HeartbeatInterval <= 0 || cfg.Dispatch.HeartbeatInterval >= cfg.Dispatch.GuardTTL {
		return fmt.Errorf("dispatch.heartbeat_interval must be positive and shorter than dispatch.guard_ttl")
	}
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	if cfg.Provider.Timeout <= 0 {
		return fmt.Errorf("provider.timeout must be positive")
	}
	return nil
}

func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}
