// Package config loads and exposes application configuration (TOML).
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
)

// Default configuration values used when a field is missing in TOML.
const (
	DefaultConfigPath     = "config.toml"
	DefaultHTTPAddr       = ":8080"
	DefaultStorageDriver  = "memory"
	DefaultSQLitePath     = "smsrouter.db"
	DefaultPGHost         = "127.0.0.1"
	DefaultPGPort         = 5432
	DefaultPGUser         = "postgres"
	DefaultPGDatabase     = "smsrouter"
	DefaultPGSSLMode      = "disable"
	DefaultHTTPTransport  = "http+sms"
	DefaultHTTPTimeoutSec = 30
	DefaultPollTicks      = 10
	DefaultPollTickMs     = 1000
	DefaultAckTimeoutMs   = 3000
	DefaultMinIdentLength = 6
)

// Transport kinds accepted in [transports.<name>] sections.
const (
	KindHTTP     = "http"
	KindPoller   = "poller"
	KindLoopback = "loopback"
)

// Storage drivers accepted in [storage].
const (
	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Config is the root application configuration loaded from TOML.
type Config struct {
	Log        LogConfig                  `toml:"log"`
	Server     ServerConfig               `toml:"server"`
	Debug      bool                       `toml:"debug"`
	Storage    StorageConfig              `toml:"storage"`
	Postgres   PostgresConfig             `toml:"postgres"`
	Routes     []RouteConfig              `toml:"routes"`
	Transports map[string]TransportConfig `toml:"transports"`
}

// LogConfig holds logging level and format (e.g. level=info, format=text).
type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

// ServerConfig holds the HTTP server listen address.
type ServerConfig struct {
	Addr string `toml:"addr"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	Driver     string `toml:"driver"`
	SQLitePath string `toml:"sqlite_path"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host     string `toml:"host"`
	Port     int    `toml:"port"`
	User     string `toml:"user"`
	Password string `toml:"password"`
	Database string `toml:"database"`
	SSLMode  string `toml:"sslmode"`
}

// RouteConfig is one routing table entry. Exactly one of Pattern or
// Keyword is set; Keyword is a "|"-separated term list expanded with the
// keyword pattern builder.
type RouteConfig struct {
	Pattern string `toml:"pattern"`
	Keyword string `toml:"keyword"`
	Prefix  string `toml:"prefix"`
	Handler string `toml:"handler"`
}

// TransportConfig configures one named transport. Fields are kind specific.
type TransportConfig struct {
	Kind string `toml:"kind"`

	// http
	SendURL        string `toml:"send_url"`
	DLRURL         string `toml:"dlr_url"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
	RetryMax       int    `toml:"retry_max"`
	RetryBackoffMs int    `toml:"retry_backoff_ms"`
	ResendSchedule string `toml:"resend_schedule"`

	// poller
	PollTicks      int     `toml:"poll_ticks"`
	PollTickMs     int     `toml:"poll_tick_ms"`
	AckTimeoutMs   int     `toml:"ack_timeout_ms"`
	MaxAttempts    int     `toml:"max_attempts"`
	MinIdentLength int     `toml:"min_ident_length"`
	SendRate       float64 `toml:"send_rate"`
}

// Load reads and parses the TOML config file at path and applies default values for missing fields.
func Load(path string) (Config, error) {
	cfg := Defaults()

	if path == "" {
		path = DefaultConfigPath
	}

	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, err
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Defaults returns the configuration used when no file is present.
func Defaults() Config {
	return Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Server: ServerConfig{
			Addr: DefaultHTTPAddr,
		},
		Storage: StorageConfig{
			Driver:     DefaultStorageDriver,
			SQLitePath: DefaultSQLitePath,
		},
		Postgres: PostgresConfig{
			Host:     DefaultPGHost,
			Port:     DefaultPGPort,
			User:     DefaultPGUser,
			Database: DefaultPGDatabase,
			SSLMode:  DefaultPGSSLMode,
		},
	}
}

// Parse decodes configuration from a TOML document, applying the same
// defaults and validation as Load.
func Parse(data string) (Config, error) {
	cfg := Defaults()
	if _, err := toml.Decode(data, &cfg); err != nil {
		return cfg, err
	}
	if err := cfg.normalize(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) normalize() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case "":
		c.Storage.Driver = DefaultStorageDriver
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		return fmt.Errorf("unknown storage driver: %s", c.Storage.Driver)
	}
	for name, tc := range c.Transports {
		normalized, err := tc.Normalize()
		if err != nil {
			return fmt.Errorf("transport %s: %w", name, err)
		}
		c.Transports[name] = normalized
	}
	return nil
}

// Normalize validates the kind and fills kind specific defaults.
func (t TransportConfig) Normalize() (TransportConfig, error) {
	t.Kind = strings.ToLower(strings.TrimSpace(t.Kind))
	switch t.Kind {
	case KindHTTP:
		if t.TimeoutSeconds <= 0 {
			t.TimeoutSeconds = DefaultHTTPTimeoutSec
		}
		if t.RetryMax <= 0 {
			t.RetryMax = 1
		}
		if t.RetryBackoffMs < 0 {
			t.RetryBackoffMs = 0
		}
	case KindPoller:
		if t.PollTicks <= 0 {
			t.PollTicks = DefaultPollTicks
		}
		if t.PollTickMs <= 0 {
			t.PollTickMs = DefaultPollTickMs
		}
		if t.AckTimeoutMs <= 0 {
			t.AckTimeoutMs = DefaultAckTimeoutMs
		}
		if t.MaxAttempts < 0 {
			t.MaxAttempts = 0
		}
		if t.MinIdentLength <= 0 {
			t.MinIdentLength = DefaultMinIdentLength
		}
	case KindLoopback:
	case "":
		return t, fmt.Errorf("kind is required")
	default:
		return t, fmt.Errorf("unknown kind: %s", t.Kind)
	}
	return t, nil
}
