package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config holds server configuration values.
type Config struct {
	Addr              string        `mapstructure:"addr" yaml:"addr" validate:"required"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" yaml:"read_header_timeout" validate:"gt=0"`
	ShutdownTimeout   time.Duration `mapstructure:"shutdown_timeout" yaml:"shutdown_timeout" validate:"gt=0"`
	LogLevel          string        `mapstructure:"log_level" yaml:"log_level" validate:"oneof=debug info warn warning error"`
	LogFormat         string        `mapstructure:"log_format" yaml:"log_format" validate:"oneof=console json"`
	// WSRateLimit is the number of commands a WebSocket client may send per
	// minute. Zero disables the limit.
	WSRateLimit int `mapstructure:"ws_rate_limit" yaml:"ws_rate_limit" validate:"gte=0"`

	// ReplicaID tags outgoing events; a random one is generated when empty.
	ReplicaID    string   `mapstructure:"replica_id" yaml:"replica_id"`
	CreatePolicy string   `mapstructure:"create_policy" yaml:"create_policy" validate:"oneof=reject ignore overwrite"`
	Strategies   []string `mapstructure:"strategies" yaml:"strategies" validate:"min=1,dive,oneof=rdbms global local"`

	ConnectRetries int           `mapstructure:"connect_retries" yaml:"connect_retries" validate:"gte=1"`
	ConnectBackoff time.Duration `mapstructure:"connect_backoff" yaml:"connect_backoff" validate:"gte=0"`

	Bus   BusConfig   `mapstructure:"bus" yaml:"bus"`
	Store StoreConfig `mapstructure:"store" yaml:"store"`
	Cache CacheConfig `mapstructure:"cache" yaml:"cache"`
}

// BusConfig selects the broadcast bus.
type BusConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver" validate:"oneof=redis nats memory"`
	RedisURL    string `mapstructure:"redis_url" yaml:"redis_url" validate:"required_if=Driver redis"`
	NATSURL     string `mapstructure:"nats_url" yaml:"nats_url" validate:"required_if=Driver nats"`
	TopicPrefix string `mapstructure:"topic_prefix" yaml:"topic_prefix"`
}

// StoreConfig selects the durable store behind the rdbms strategy.
type StoreConfig struct {
	Driver      string `mapstructure:"driver" yaml:"driver" validate:"oneof=sqlite postgres badger"`
	SQLitePath  string `mapstructure:"sqlite_path" yaml:"sqlite_path" validate:"required_if=Driver sqlite"`
	PostgresDSN string `mapstructure:"postgres_dsn" yaml:"postgres_dsn" validate:"required_if=Driver postgres"`
	// BadgerPath empty keeps the badger store in memory.
	BadgerPath string `mapstructure:"badger_path" yaml:"badger_path"`
}

// CacheConfig selects the shared cache behind the global strategy.
type CacheConfig struct {
	Driver     string `mapstructure:"driver" yaml:"driver" validate:"oneof=redis nats"`
	RedisURL   string `mapstructure:"redis_url" yaml:"redis_url" validate:"required_if=Driver redis"`
	NATSURL    string `mapstructure:"nats_url" yaml:"nats_url" validate:"required_if=Driver nats"`
	KeyPrefix  string `mapstructure:"key_prefix" yaml:"key_prefix"`
	NATSBucket string `mapstructure:"nats_bucket" yaml:"nats_bucket" validate:"required_if=Driver nats"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		Addr:              ":8080",
		ReadHeaderTimeout: 5 * time.Second,
		ShutdownTimeout:   5 * time.Second,
		LogLevel:          "info",
		LogFormat:         "console",
		CreatePolicy:      "reject",
		Strategies:        []string{"rdbms", "global", "local"},
		ConnectRetries:    5,
		ConnectBackoff:    2 * time.Second,
		Bus: BusConfig{
			Driver:   "redis",
			RedisURL: "redis://localhost:6379/0",
			NATSURL:  "nats://127.0.0.1:4222",
		},
		Store: StoreConfig{
			Driver:     "sqlite",
			SQLitePath: "roomsync.db",
		},
		Cache: CacheConfig{
			Driver:     "redis",
			RedisURL:   "redis://localhost:6379/0",
			NATSURL:    "nats://127.0.0.1:4222",
			KeyPrefix:  "gameroom:",
			NATSBucket: "rooms",
		},
	}
}

// UpdateFrom overwrites non-zero values from other config into receiver.
// Only the settings exposed as command line flags are considered.
func (c *Config) UpdateFrom(other Config) {
	if other.Addr != "" {
		c.Addr = other.Addr
	}
	if other.ReadHeaderTimeout != 0 {
		c.ReadHeaderTimeout = other.ReadHeaderTimeout
	}
	if other.ShutdownTimeout != 0 {
		c.ShutdownTimeout = other.ShutdownTimeout
	}
	if other.LogLevel != "" {
		c.LogLevel = other.LogLevel
	}
	if other.ReplicaID != "" {
		c.ReplicaID = other.ReplicaID
	}
	if other.Bus.Driver != "" {
		c.Bus.Driver = other.Bus.Driver
	}
	if other.Store.Driver != "" {
		c.Store.Driver = other.Store.Driver
	}
}

var validate = validator.New()

// Validate checks field constraints.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
