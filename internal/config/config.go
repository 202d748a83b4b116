package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Relay   RelayConfig   `mapstructure:"relay"`
	Ingest  IngestConfig  `mapstructure:"ingest"`
	Tenants TenantsConfig `mapstructure:"tenants"`
	Logging LoggingConfig `mapstructure:"logging"`
}

type ServerConfig struct {
	Port            string        `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	CORSOrigin      string        `mapstructure:"cors_origin"`
}

type RelayConfig struct {
	SSEBufferSize int           `mapstructure:"sse_buffer_size"`
	WSBufferSize  int           `mapstructure:"ws_buffer_size"`
	PingPeriod    time.Duration `mapstructure:"ping_period"`
}

type IngestConfig struct {
	RatePerSecond float64 `mapstructure:"rate_per_second"`
	Burst         int     `mapstructure:"burst"`
}

type TenantsConfig struct {
	Source TenantSource   `mapstructure:"source"`
	File   string         `mapstructure:"file"`
	SQLite string         `mapstructure:"sqlite"`
	Redis  RedisConfig    `mapstructure:"redis"`
	Static []StaticTenant `mapstructure:"static"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Prefix   string `mapstructure:"prefix"`
}

type StaticTenant struct {
	ID       string `mapstructure:"id"`
	Username string `mapstructure:"username"`
	Code     string `mapstructure:"code"`
	Active   bool   `mapstructure:"active"`
}

type LoggingConfig struct {
	Level     string `mapstructure:"level"`
	Directory string `mapstructure:"directory"`
}

func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.read_timeout", 15*time.Second)
	// Streaming responses stay open; a write timeout would cut them off.
	v.SetDefault("server.write_timeout", time.Duration(0))
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.cors_origin", "*")
	v.SetDefault("relay.sse_buffer_size", 256)
	v.SetDefault("relay.ws_buffer_size", 256)
	v.SetDefault("relay.ping_period", 30*time.Second)
	v.SetDefault("ingest.rate_per_second", 50.0)
	v.SetDefault("ingest.burst", 100)
	v.SetDefault("tenants.source", string(TenantSourceStatic))
	v.SetDefault("tenants.file", "tenants.jsonl")
	v.SetDefault("tenants.sqlite", "tenants.db")
	v.SetDefault("tenants.redis.addr", "localhost:6379")
	v.SetDefault("tenants.redis.db", 0)
	v.SetDefault("tenants.redis.prefix", "relay")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.directory", "")

	// Environment variable support
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Load config file
	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("relay")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks every section and reports all problems at once.
func (c *Config) Validate() error {
	errs := &ValidationErrors{}

	if c.Server.Port == "" {
		errs.add("server.port", "is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		errs.add("server.shutdown_timeout", "must be > 0")
	}
	if c.Relay.SSEBufferSize < 2 {
		errs.add("relay.sse_buffer_size", "must be >= 2")
	}
	if c.Relay.WSBufferSize < 2 {
		errs.add("relay.ws_buffer_size", "must be >= 2")
	}
	if c.Relay.PingPeriod <= 0 {
		errs.add("relay.ping_period", "must be > 0")
	}
	if c.Ingest.RatePerSecond < 0 {
		errs.add("ingest.rate_per_second", "must be >= 0 (0 disables limiting)")
	}
	if c.Ingest.RatePerSecond > 0 && c.Ingest.Burst < 1 {
		errs.add("ingest.burst", "must be >= 1 when rate limiting is enabled")
	}
	if !ValidLogLevels[strings.ToLower(c.Logging.Level)] {
		errs.add("logging.level", fmt.Sprintf("unknown level %q", c.Logging.Level))
	}
	validateTenants(errs, c.Tenants)

	if errs.HasErrors() {
		return errs
	}
	return nil
}
