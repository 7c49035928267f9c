// Package config loads runtime configuration. Environment variables are the
// source of truth; an optional YAML file overlays them for local development,
// and a .env file is honored when present.
package config

import (
	"fmt"
	"os"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the full runtime configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Stats    StatsConfig    `yaml:"stats"`
	Counters CountersConfig `yaml:"counters"`
	Feed     FeedConfig     `yaml:"feed"`
}

type ServerConfig struct {
	Host            string `env:"SERVER_HOST,default=0.0.0.0" yaml:"host"`
	Port            int    `env:"SERVER_PORT,default=8080" yaml:"port"`
	ReadTimeoutSec  int    `env:"SERVER_READ_TIMEOUT,default=15" yaml:"read_timeout"`
	WriteTimeoutSec int    `env:"SERVER_WRITE_TIMEOUT,default=30" yaml:"write_timeout"`
	IdleTimeoutSec  int    `env:"SERVER_IDLE_TIMEOUT,default=60" yaml:"idle_timeout"`
}

type DatabaseConfig struct {
	// Driver is empty for the in-memory store, "postgres" otherwise.
	Driver          string `env:"DATABASE_DRIVER" yaml:"driver"`
	DSN             string `env:"DATABASE_DSN" yaml:"dsn"`
	MaxOpenConns    int    `env:"DATABASE_MAX_OPEN_CONNS,default=25" yaml:"max_open_conns"`
	MaxIdleConns    int    `env:"DATABASE_MAX_IDLE_CONNS,default=5" yaml:"max_idle_conns"`
	ConnMaxLifetime int    `env:"DATABASE_CONN_MAX_LIFETIME,default=300" yaml:"conn_max_lifetime"`
	Migrate         bool   `env:"DATABASE_MIGRATE,default=true" yaml:"migrate"`
}

type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" yaml:"addr"`
	Password string `env:"REDIS_PASSWORD" yaml:"password"`
	DB       int    `env:"REDIS_DB,default=0" yaml:"db"`
}

// Enabled reports whether a Redis counter fast-path is configured.
func (c RedisConfig) Enabled() bool { return c.Addr != "" }

type LoggingConfig struct {
	Level  string `env:"LOG_LEVEL,default=info" yaml:"level"`
	Format string `env:"LOG_FORMAT,default=json" yaml:"format"`
	Output string `env:"LOG_OUTPUT,default=stdout" yaml:"output"`
}

type StatsConfig struct {
	RefreshIntervalSec int    `env:"STATS_REFRESH_INTERVAL,default=30" yaml:"refresh_interval"`
	SeriesDays         int    `env:"STATS_SERIES_DAYS,default=7" yaml:"series_days"`
	Timezone           string `env:"STATS_TIMEZONE" yaml:"timezone"`
}

type CountersConfig struct {
	ReconcileSchedule string `env:"COUNTERS_RECONCILE_SCHEDULE,default=@every 5m" yaml:"reconcile_schedule"`
}

type FeedConfig struct {
	Capacity int `env:"FEED_CAPACITY,default=50" yaml:"capacity"`
}

// Load reads configuration from the environment, after loading .env when
// present and applying the YAML file named by CONFIG_FILE when set.
func Load() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode environment: %w", err)
	}

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config file: %w", err)
		}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server port %d out of range", c.Server.Port)
	}
	if c.Database.Driver != "" && c.Database.DSN == "" {
		return fmt.Errorf("database driver %q configured without dsn", c.Database.Driver)
	}
	if c.Stats.SeriesDays <= 0 {
		return fmt.Errorf("stats series days must be positive")
	}
	if c.Feed.Capacity <= 0 {
		return fmt.Errorf("feed capacity must be positive")
	}
	return nil
}
