// Package config loads process configuration from defaults, an optional
// file, environment variables (JOBPOOL_ prefix) and command-line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment variable names, so pool.workers
// becomes JOBPOOL_POOL_WORKERS.
const EnvPrefix = "JOBPOOL"

// Config is the full process configuration.
type Config struct {
	HTTP      HTTP      `mapstructure:"http"`
	Pool      Pool      `mapstructure:"pool"`
	Jobs      Jobs      `mapstructure:"jobs"`
	Executor  Executor  `mapstructure:"executor"`
	Retention Retention `mapstructure:"retention"`
	Archive   Archive   `mapstructure:"archive"`
	Log       Log       `mapstructure:"log"`
}

type HTTP struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
}

type Pool struct {
	Workers      int           `mapstructure:"workers" validate:"gte=1,lte=1000"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}

type Jobs struct {
	MaxRetries int `mapstructure:"max_retries" validate:"gte=0,lte=100"`
}

type Executor struct {
	Duration    time.Duration `mapstructure:"duration" validate:"gte=0"`
	FailureRate float64       `mapstructure:"failure_rate" validate:"gte=0,lte=1"`
}

type Retention struct {
	TTL       time.Duration `mapstructure:"ttl" validate:"gte=0"`
	Schedule  string        `mapstructure:"schedule" validate:"required"`
	BatchSize int           `mapstructure:"batch_size" validate:"gte=0"`
}

// Archive configures the SQL archive. An empty DSN disables it.
type Archive struct {
	Driver string `mapstructure:"driver" validate:"oneof=sqlite"`
	DSN    string `mapstructure:"dsn"`
}

// Enabled reports whether an archive DSN is configured.
func (a Archive) Enabled() bool {
	return a.DSN != ""
}

type Log struct {
	Level  string `mapstructure:"level" validate:"oneof=debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=json text"`
}

// SetDefaults registers every key with its default value.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", "127.0.0.1:8080")
	v.SetDefault("http.shutdown_timeout", 10*time.Second)
	v.SetDefault("pool.workers", 4)
	v.SetDefault("pool.poll_interval", 500*time.Millisecond)
	v.SetDefault("jobs.max_retries", 3)
	v.SetDefault("executor.duration", 5*time.Second)
	v.SetDefault("executor.failure_rate", 0.3)
	v.SetDefault("retention.ttl", time.Duration(0))
	v.SetDefault("retention.schedule", "@every 1m")
	v.SetDefault("retention.batch_size", 1000)
	v.SetDefault("archive.driver", "sqlite")
	v.SetDefault("archive.dsn", "")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// New returns a viper instance with defaults and environment binding.
func New() *viper.Viper {
	v := viper.New()
	SetDefaults(v)
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file at path into v and returns the
// validated configuration.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.Log.Level = strings.ToLower(cfg.Log.Level)
	cfg.Log.Format = strings.ToLower(cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

var validate = validator.New()

// Validate checks ranges and enumerations.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}
