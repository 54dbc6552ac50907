// internal/config/config.go
package config

import (
	"fmt"
	"time"
)

// Config is the application configuration shared by server, worker and seeder.
type Config struct {
	App      AppConfig      `mapstructure:"app"`
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	RabbitMQ RabbitMQConfig `mapstructure:"rabbitmq"`
	Provider ProviderConfig `mapstructure:"provider"`
	Dispatch DispatchConfig `mapstructure:"dispatch"`
	Logging  LoggingConfig  `mapstructure:"logging"`
}

type AppConfig struct {
	Name        string `mapstructure:"name"`
	Environment string `mapstructure:"environment"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

type DatabaseConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	Redis    RedisConfig    `mapstructure:"redis"`
}

type PostgresConfig struct {
	Host           string `mapstructure:"host"`
	Port           int    `mapstructure:"port"`
	Database       string `mapstructure:"database"`
	User           string `mapstructure:"user"`
	Password       string `mapstructure:"password"`
	SSLMode        string `mapstructure:"sslmode"`
	MaxConnections int    `mapstructure:"max_connections"`
	MaxIdle        int    `mapstructure:"max_idle"`
}

// GetDSN returns the PostgreSQL connection string.
func (p PostgresConfig) GetDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// RedisConfig is optional; an empty Address disables the media cache.
type RedisConfig struct {
	Address  string        `mapstructure:"address"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	MediaTTL time.Duration `mapstructure:"media_ttl"`
}

// RabbitMQConfig is optional for the server; the worker requires URL.
type RabbitMQConfig struct {
	URL            string `mapstructure:"url"`
	DispatchQueue  string `mapstructure:"dispatch_queue"`
	ExecutionQueue string `mapstructure:"execution_queue"`
}

// ProviderConfig holds the ringless-voicemail provider endpoint and credentials.
// Credentials are validated per dispatch, not at load time.
type ProviderConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	TeamID  string        `mapstructure:"team_id"`
	Secret  string        `mapstructure:"secret"`
	BrandID string        `mapstructure:"brand_id"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type DispatchConfig struct {
	Interval          time.Duration `mapstructure:"interval"`
	Concurrency       int           `mapstructure:"concurrency"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	GuardTTL          time.Duration `mapstructure:"guard_ttl"`
	SweepSchedule     string        `mapstructure:"sweep_schedule"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}
