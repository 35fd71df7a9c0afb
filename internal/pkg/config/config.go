package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/spf13/viper"
)

// Pin source kinds.
const (
	SourcePostgres = "postgres"
	SourceRemote   = "remote"
)

// Config holds all application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	NATS      NATSConfig      `mapstructure:"nats"`
	Valkey    ValkeyConfig    `mapstructure:"valkey"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Pins      PinsConfig      `mapstructure:"pins"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	Cache     CacheConfig     `mapstructure:"cache"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	ReadTimeout    int      `mapstructure:"read_timeout"`
	WriteTimeout   int      `mapstructure:"write_timeout"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
	MaxConns int32  `mapstructure:"max_conns"`
}

func (d DatabaseConfig) DSN() string {
	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(d.User, d.Password),
		Host:     fmt.Sprintf("%s:%d", d.Host, d.Port),
		Path:     "/" + d.DBName,
		RawQuery: "sslmode=" + url.QueryEscape(d.SSLMode),
	}
	return u.String()
}

// NATSConfig configures pins-changed events. An empty URL disables the
// broker and changes are delivered in-process only.
type NATSConfig struct {
	URL string `mapstructure:"url"`
}

// ValkeyConfig configures the pins cache. An empty address disables it.
type ValkeyConfig struct {
	Addr      string `mapstructure:"addr"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
	TempoAddr   string `mapstructure:"tempo_addr"`
	Enabled     bool   `mapstructure:"enabled"`
}

// PinsConfig selects where pins-in-bounds queries are answered from.
type PinsConfig struct {
	Source     string  `mapstructure:"source"`
	BaseURL    string  `mapstructure:"base_url"`
	APIKey     string  `mapstructure:"api_key"`
	RatePerSec float64 `mapstructure:"rate_per_sec"`
	Burst      int     `mapstructure:"burst"`
	TimeoutSec int     `mapstructure:"timeout_sec"`
}

// PipelineConfig holds the viewport pipeline thresholds.
type PipelineConfig struct {
	DraftProximityMeters float64 `mapstructure:"draft_proximity_meters"`
	SearchResetMeters    float64 `mapstructure:"search_reset_meters"`
	ViewportEpsilon      float64 `mapstructure:"viewport_epsilon"`
}

type CacheConfig struct {
	PinsTTLSeconds int `mapstructure:"pins_ttl_seconds"`
}

// Load reads configuration from file and environment variables.
func Load(service string) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 10)
	v.SetDefault("server.write_timeout", 10)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "pinmap")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "pinmap")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 20)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("valkey.addr", "localhost:6379")
	v.SetDefault("valkey.key_prefix", "pinmap:")
	v.SetDefault("telemetry.service_name", service)
	v.SetDefault("telemetry.tempo_addr", "tempo:4317")
	v.SetDefault("telemetry.enabled", false)
	v.SetDefault("pins.source", SourcePostgres)
	v.SetDefault("pins.base_url", "")
	v.SetDefault("pins.api_key", "")
	v.SetDefault("pins.rate_per_sec", 10.0)
	v.SetDefault("pins.burst", 5)
	v.SetDefault("pins.timeout_sec", 10)
	v.SetDefault("pipeline.draft_proximity_meters", 800.0)
	v.SetDefault("pipeline.search_reset_meters", 300.0)
	v.SetDefault("pipeline.viewport_epsilon", 1e-6)
	v.SetDefault("cache.pins_ttl_seconds", 30)

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./configs")
	_ = v.ReadInConfig() // OK if missing

	// Environment variables: PINMAP_PINS_SOURCE → pins.source
	v.SetEnvPrefix("PINMAP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks that required configuration fields are present and sane.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", c.Server.Port))
	}
	if c.Server.ReadTimeout <= 0 {
		errs = append(errs, "server.read_timeout must be positive")
	}
	if c.Server.WriteTimeout <= 0 {
		errs = append(errs, "server.write_timeout must be positive")
	}

	switch c.Pins.Source {
	case SourcePostgres:
		if c.Database.Host == "" {
			errs = append(errs, "database.host is required")
		}
		if c.Database.Port <= 0 || c.Database.Port > 65535 {
			errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", c.Database.Port))
		}
		if c.Database.User == "" {
			errs = append(errs, "database.user is required")
		}
		if c.Database.DBName == "" {
			errs = append(errs, "database.dbname is required")
		}
	case SourceRemote:
		u, err := url.Parse(c.Pins.BaseURL)
		if c.Pins.BaseURL == "" || err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, "pins.base_url must be an absolute URL when pins.source is remote")
		}
		if c.Pins.RatePerSec <= 0 {
			errs = append(errs, "pins.rate_per_sec must be positive")
		}
		if c.Pins.TimeoutSec <= 0 {
			errs = append(errs, "pins.timeout_sec must be positive")
		}
	default:
		errs = append(errs, fmt.Sprintf("pins.source must be %q or %q, got %q", SourcePostgres, SourceRemote, c.Pins.Source))
	}

	if c.Pipeline.DraftProximityMeters <= 0 {
		errs = append(errs, "pipeline.draft_proximity_meters must be positive")
	}
	if c.Pipeline.SearchResetMeters <= 0 {
		errs = append(errs, "pipeline.search_reset_meters must be positive")
	}
	if c.Pipeline.ViewportEpsilon <= 0 {
		errs = append(errs, "pipeline.viewport_epsilon must be positive")
	}
	if c.Cache.PinsTTLSeconds <= 0 {
		errs = append(errs, "cache.pins_ttl_seconds must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
