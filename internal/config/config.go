// Package config loads netproxy configuration from defaults, an optional
// YAML file and NETPROXY_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Sternrassler/resilient-net/pkg/cache"
	"github.com/Sternrassler/resilient-net/pkg/connectivity"
	"github.com/Sternrassler/resilient-net/pkg/logging"
	"github.com/Sternrassler/resilient-net/pkg/queue"
	"github.com/Sternrassler/resilient-net/pkg/retry"
	"github.com/Sternrassler/resilient-net/pkg/transport"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. NETPROXY_CACHE_TTL.
const EnvPrefix = "NETPROXY"

// Config is the full netproxy configuration.
type Config struct {
	Logging      LoggingConfig      `mapstructure:"logging"`
	Server       ServerConfig       `mapstructure:"server"`
	Upstream     UpstreamConfig     `mapstructure:"upstream"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Retry        RetryConfig        `mapstructure:"retry"`
	Queue        QueueConfig        `mapstructure:"queue"`
	Connectivity ConnectivityConfig `mapstructure:"connectivity"`

	// Flags holds feature flags such as offline_support.
	Flags map[string]bool `mapstructure:"flags"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=debug info warn error"`
	Pretty bool   `mapstructure:"pretty"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

// UpstreamConfig controls the HTTP transport.
type UpstreamConfig struct {
	BaseURL      string        `mapstructure:"base_url" validate:"omitempty,url"`
	UserAgent    string        `mapstructure:"user_agent"`
	Timeout      time.Duration `mapstructure:"timeout" validate:"gt=0"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes" validate:"gt=0"`
}

// CacheConfig is the default cache policy.
type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl" validate:"gte=0"`
}

// RetryConfig is the default retry policy.
type RetryConfig struct {
	MaxRetries         int           `mapstructure:"max_retries" validate:"gte=0,lte=20"`
	BaseDelay          time.Duration `mapstructure:"base_delay" validate:"gte=0"`
	ExponentialBackoff bool          `mapstructure:"exponential_backoff"`
}

// QueueConfig selects the queue persistence backend.
type QueueConfig struct {
	Backend       string `mapstructure:"backend" validate:"required,oneof=memory file redis badger sqlite"`
	Path          string `mapstructure:"path"`
	RedisAddr     string `mapstructure:"redis_addr" validate:"omitempty,hostname_port"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db" validate:"gte=0"`
	Key           string `mapstructure:"key"`
}

// ConnectivityConfig controls the upstream probe.
type ConnectivityConfig struct {
	Enabled          bool          `mapstructure:"enabled"`
	ProbeURL         string        `mapstructure:"probe_url" validate:"omitempty,url"`
	Interval         time.Duration `mapstructure:"interval" validate:"gt=0"`
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	FailureThreshold int           `mapstructure:"failure_threshold" validate:"min=1"`
	StartOnline      bool          `mapstructure:"start_online"`

	// ShareState publishes monitor state to the queue's redis server.
	ShareState bool `mapstructure:"share_state"`
}

// SetDefaults registers every key with its default value. Registering all
// keys also makes them reachable through environment variables.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.pretty", false)

	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.shutdown_timeout", 15*time.Second)

	v.SetDefault("upstream.base_url", "")
	v.SetDefault("upstream.user_agent", "netproxy/"+Version)
	v.SetDefault("upstream.timeout", 30*time.Second)
	v.SetDefault("upstream.max_body_bytes", int64(32<<20))

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", cache.DefaultTTL)

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.base_delay", time.Second)
	v.SetDefault("retry.exponential_backoff", true)

	v.SetDefault("queue.backend", queue.BackendMemory)
	v.SetDefault("queue.path", "")
	v.SetDefault("queue.redis_addr", "")
	v.SetDefault("queue.redis_password", "")
	v.SetDefault("queue.redis_db", 0)
	v.SetDefault("queue.key", queue.DefaultKey)

	v.SetDefault("connectivity.enabled", false)
	v.SetDefault("connectivity.probe_url", "")
	v.SetDefault("connectivity.interval", connectivity.DefaultInterval)
	v.SetDefault("connectivity.timeout", connectivity.DefaultTimeout)
	v.SetDefault("connectivity.failure_threshold", connectivity.DefaultFailureThreshold)
	v.SetDefault("connectivity.start_online", true)
	v.SetDefault("connectivity.share_state", false)

	v.SetDefault("flags.offline_support", true)
}

// New returns a viper instance with defaults, env overrides and the config
// file at configPath read in. An empty or missing path is not an error.
func New(configPath string) (*viper.Viper, error) {
	v := viper.New()
	SetDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath == "" {
		return v, nil
	}

	v.SetConfigFile(configPath)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return v, nil
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}
	return v, nil
}

// Load builds the configuration from configPath and the environment.
// The returned viper instance stays live for config reloads.
func Load(configPath string) (*Config, *viper.Viper, error) {
	v, err := New(configPath)
	if err != nil {
		return nil, nil, err
	}

	cfg, err := FromViper(v)
	if err != nil {
		return nil, nil, err
	}
	return cfg, v, nil
}

// FromViper unmarshals and validates v.
func FromViper(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.Logging.Level = strings.ToLower(cfg.Logging.Level)
	cfg.Queue.Backend = strings.ToLower(cfg.Queue.Backend)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the rules that span fields.
func Validate(cfg *Config) error {
	if err := validate.Struct(cfg); err != nil {
		return err
	}

	if cfg.Cache.Enabled && cfg.Cache.TTL <= 0 {
		return errors.New("cache.ttl must be > 0 when cache.enabled is true")
	}

	switch cfg.Queue.Backend {
	case queue.BackendFile, queue.BackendSQLite:
		if cfg.Queue.Path == "" {
			return fmt.Errorf("queue.path is required for the %s backend", cfg.Queue.Backend)
		}
	case queue.BackendRedis:
		if cfg.Queue.RedisAddr == "" {
			return errors.New("queue.redis_addr is required for the redis backend")
		}
	}

	if cfg.Connectivity.Enabled && cfg.Connectivity.ProbeURL == "" && cfg.Upstream.BaseURL == "" {
		return errors.New("connectivity.probe_url or upstream.base_url is required when connectivity.enabled is true")
	}
	if cfg.Connectivity.ShareState && cfg.Queue.RedisAddr == "" {
		return errors.New("queue.redis_addr is required when connectivity.share_state is true")
	}
	return nil
}

// LoggerConfig converts to the logging package configuration.
func (c LoggingConfig) LoggerConfig(service string) logging.Config {
	cfg := logging.DefaultConfig()
	cfg.Level = logging.LogLevel(c.Level)
	cfg.Pretty = c.Pretty
	cfg.Service = service
	return cfg
}

// TransportConfig converts to the HTTP transport configuration.
func (c UpstreamConfig) TransportConfig() transport.Config {
	return transport.Config{
		BaseURL:      c.BaseURL,
		UserAgent:    c.UserAgent,
		Timeout:      c.Timeout,
		MaxBodyBytes: c.MaxBodyBytes,
	}
}

// Policy returns the default cache policy.
func (c CacheConfig) Policy() cache.Policy {
	if !c.Enabled {
		return cache.Disabled
	}
	return cache.Policy{Enabled: true, TTL: c.TTL}
}

// Policy returns the default retry policy.
func (c RetryConfig) Policy() retry.Policy {
	return retry.Policy{
		MaxRetries:         c.MaxRetries,
		BaseDelay:          c.BaseDelay,
		ExponentialBackoff: c.ExponentialBackoff,
	}
}

// PersistenceConfig converts to the queue package configuration.
func (c QueueConfig) PersistenceConfig() queue.Config {
	return queue.Config{
		Backend:       c.Backend,
		Path:          c.Path,
		RedisAddr:     c.RedisAddr,
		RedisPassword: c.RedisPassword,
		RedisDB:       c.RedisDB,
		Key:           c.Key,
	}
}

// MonitorConfig converts to the connectivity monitor configuration.
func (c ConnectivityConfig) MonitorConfig() connectivity.Config {
	return connectivity.Config{
		Interval:         c.Interval,
		Timeout:          c.Timeout,
		FailureThreshold: c.FailureThreshold,
		Initial:          c.StartOnline,
	}
}

// ProbeTarget returns the URL the monitor probes.
func (c *Config) ProbeTarget() string {
	if c.Connectivity.ProbeURL != "" {
		return c.Connectivity.ProbeURL
	}
	return c.Upstream.BaseURL
}
