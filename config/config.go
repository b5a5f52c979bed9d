// Package config loads the server configuration from defaults, an optional
// YAML file and LEAVE_-prefixed environment variables, in increasing order
// of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Log      LogConfig      `mapstructure:"log"`
	Calendar CalendarConfig `mapstructure:"calendar"`
	Approval ApprovalConfig `mapstructure:"approval"`
	Lock     LockConfig     `mapstructure:"lock"`
	Events   EventsConfig   `mapstructure:"events"`
	Seed     SeedConfig     `mapstructure:"seed"`
}

type ServerConfig struct {
	Port            int             `mapstructure:"port"`
	CORS            CORSConfig      `mapstructure:"cors"`
	RateLimit       RateLimitConfig `mapstructure:"rate_limit"`
	ShutdownTimeout time.Duration   `mapstructure:"shutdown_timeout"`
}

type CORSConfig struct {
	AllowOrigins []string `mapstructure:"allow_origins"`
}

// RateLimitConfig limits requests per caller. RPS <= 0 disables limiting.
type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type StorageConfig struct {
	Driver string `mapstructure:"driver"` // memory | sqlite
	DSN    string `mapstructure:"dsn"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // json | console
}

type CalendarConfig struct {
	// Timezone in which request timestamps are interpreted for date rules.
	Timezone string `mapstructure:"timezone"`
}

// Location resolves the configured timezone.
func (c CalendarConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

type ApprovalConfig struct {
	Policy string `mapstructure:"policy"` // allow_all | direct_manager | casbin
	// Delegations maps a manager ID to the employees who may approve on
	// their behalf. Used by the casbin policy.
	Delegations map[string][]string `mapstructure:"delegations"`
}

// DelegationsByManager returns Delegations with manager IDs restored to
// upper case, since viper lower-cases map keys.
func (c ApprovalConfig) DelegationsByManager() map[string][]string {
	out := make(map[string][]string, len(c.Delegations))
	for manager, delegates := range c.Delegations {
		out[strings.ToUpper(manager)] = delegates
	}
	return out
}

type LockConfig struct {
	Driver        string        `mapstructure:"driver"` // local | redis
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	Prefix        string        `mapstructure:"prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

type EventsConfig struct {
	Publisher     string        `mapstructure:"publisher"` // log | kafka
	Brokers       []string      `mapstructure:"brokers"`
	Topic         string        `mapstructure:"topic"`
	FlushInterval time.Duration `mapstructure:"flush_interval"`
	OutboxLimit   int           `mapstructure:"outbox_limit"`
}

type SeedConfig struct {
	// Scenario loaded at startup; empty loads nothing.
	Scenario string `mapstructure:"scenario"`
}

// Load reads configuration. An empty path searches ./config.yaml and
// ./config/config.yaml; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors.allow_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	v.SetDefault("server.rate_limit.rps", 20)
	v.SetDefault("server.rate_limit.burst", 40)
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("storage.driver", "memory")
	v.SetDefault("storage.dsn", "./data/leave.db")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	v.SetDefault("calendar.timezone", "UTC")

	v.SetDefault("approval.policy", "direct_manager")
	v.SetDefault("approval.delegations", map[string][]string{})

	v.SetDefault("lock.driver", "local")
	v.SetDefault("lock.redis_addr", "localhost:6379")
	v.SetDefault("lock.redis_password", "")
	v.SetDefault("lock.redis_db", 0)
	v.SetDefault("lock.prefix", "leave:lock:")
	v.SetDefault("lock.ttl", "10s")

	v.SetDefault("events.publisher", "log")
	v.SetDefault("events.brokers", []string{"localhost:9092"})
	v.SetDefault("events.topic", "leave-events")
	v.SetDefault("events.flush_interval", "1s")
	v.SetDefault("events.outbox_limit", 10000)

	v.SetDefault("seed.scenario", "")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./config")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("LEAVE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values that would otherwise fail late at startup.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid config: server.port must be in 1-65535, got %d", c.Server.Port)
	}
	if err := oneOf("storage.driver", c.Storage.Driver, "memory", "sqlite"); err != nil {
		return err
	}
	if c.Storage.Driver == "sqlite" && c.Storage.DSN == "" {
		return errors.New("invalid config: storage.dsn is required for sqlite")
	}
	if err := oneOf("log.format", c.Log.Format, "json", "console"); err != nil {
		return err
	}
	if _, err := c.Calendar.Location(); err != nil {
		return fmt.Errorf("invalid config: calendar.timezone: %w", err)
	}
	if err := oneOf("approval.policy", c.Approval.Policy, "allow_all", "direct_manager", "casbin"); err != nil {
		return err
	}
	if err := oneOf("lock.driver", c.Lock.Driver, "local", "redis"); err != nil {
		return err
	}
	if err := oneOf("events.publisher", c.Events.Publisher, "log", "kafka"); err != nil {
		return err
	}
	if c.Events.Publisher == "kafka" && (len(c.Events.Brokers) == 0 || c.Events.Topic == "") {
		return errors.New("invalid config: events.brokers and events.topic are required for kafka")
	}
	return nil
}

func oneOf(key, value string, allowed ...string) error {
	for _, a := range allowed {
		if value == a {
			return nil
		}
	}
	return fmt.Errorf("invalid config: %s must be one of %s, got %q", key, strings.Join(allowed, "|"), value)
}
