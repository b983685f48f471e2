// Package config defines the top-level configuration for the ledger client
// and provides validation helpers.
package config

import (
	"fmt"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by LEDGER_* environment variables.
type Config struct {
	Gateway  GatewayConfig  `toml:"gateway"`
	Snapshot SnapshotConfig `toml:"snapshot"`
	Redis    RedisConfig    `toml:"redis"`
	Postgres PostgresConfig `toml:"postgres"`
	S3       S3Config       `toml:"s3"`
	Ledger   LedgerConfig   `toml:"ledger"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// GatewayConfig holds the remote ledger endpoint and credential.
type GatewayConfig struct {
	Endpoint string   `toml:"endpoint"`
	Token    string   `toml:"token"`
	Username string   `toml:"username"`
	Password string   `toml:"password"`
	Timeout  duration `toml:"timeout"`
}

// SnapshotConfig selects and names the durable snapshot backend.
type SnapshotConfig struct {
	// Backend is one of "redis", "postgres", "s3".
	Backend   string `toml:"backend"`
	KeyPrefix string `toml:"key_prefix"`
}

// RedisConfig holds Redis connection parameters.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN          string `toml:"dsn"`
	Host         string `toml:"host"`
	Port         int    `toml:"port"`
	Database     string `toml:"database"`
	User         string `toml:"user"`
	Password     string `toml:"password"`
	SSLMode      string `toml:"ssl_mode"`
	PoolMaxConns int    `toml:"pool_max_conns"`
	PoolMinConns int    `toml:"pool_min_conns"`
}

// S3Config holds S3-compatible object storage parameters.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// LedgerConfig holds the business-policy knobs of the engine.
type LedgerConfig struct {
	// Markup is the multiplier applied to every derived price. It is a
	// business policy of the ledger, not an algorithmic constant.
	Markup float64 `toml:"markup"`
	// InboundPrefix and OutboundPrefix are the order-number prefixes that
	// determine a record's direction.
	InboundPrefix  string `toml:"inbound_prefix"`
	OutboundPrefix string `toml:"outbound_prefix"`
	// SequenceWidth is the zero-padded width of the per-day order sequence.
	SequenceWidth int `toml:"sequence_width"`
}

// duration is a wrapper around time.Duration that supports TOML string
// decoding (e.g. "30s", "2m").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "30s".
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Defaults returns a Config populated with reasonable default values.
func Defaults() Config {
	return Config{
		Gateway: GatewayConfig{
			Endpoint: "https://www.kdocs.cn/api/v3/ide/file/376458734559/script/V2-116KoKukgp1oRnx8QREi07/sync_task",
			Timeout:  duration{30 * time.Second},
		},
		Snapshot: SnapshotConfig{
			Backend:   "redis",
			KeyPrefix: "stockledger",
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			DB:         0,
			PoolSize:   10,
			MaxRetries: 3,
		},
		Postgres: PostgresConfig{
			Host:         "localhost",
			Port:         5432,
			Database:     "stockledger",
			User:         "postgres",
			SSLMode:      "disable",
			PoolMaxConns: 5,
			PoolMinConns: 1,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "stockledger-snapshots",
			ForcePathStyle: true,
		},
		Ledger: LedgerConfig{
			Markup:         2,
			InboundPrefix:  "RKD",
			OutboundPrefix: "CKD",
			SequenceWidth:  3,
		},
		Mode:     "once",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"once":  true,
	"sync":  true,
	"serve": true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// validBackends enumerates the accepted snapshot backends.
var validBackends = map[string]bool{
	"redis":    true,
	"postgres": true,
	"s3":       true,
}

// Validate checks Config for obviously invalid or missing values and returns
// a combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: once, sync, serve)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Gateway
	if c.Gateway.Endpoint == "" {
		errs = append(errs, "gateway: endpoint must not be empty")
	}
	if c.Gateway.Token == "" {
		errs = append(errs, "gateway: token must not be empty")
	}
	if c.Gateway.Timeout.Duration <= 0 {
		errs = append(errs, "gateway: timeout must be positive")
	}

	// Snapshot backend
	backend := strings.ToLower(c.Snapshot.Backend)
	if !validBackends[backend] {
		errs = append(errs, fmt.Sprintf("snapshot: unknown backend %q (valid: redis, postgres, s3)", c.Snapshot.Backend))
	}

	switch backend {
	case "redis":
		if c.Redis.Addr == "" {
			errs = append(errs, "redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			errs = append(errs, "redis: pool_size must be >= 1")
		}
	case "postgres":
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				errs = append(errs, "postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				errs = append(errs, fmt.Sprintf("postgres: port must be 1-65535, got %d", c.Postgres.Port))
			}
			if c.Postgres.Database == "" {
				errs = append(errs, "postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			errs = append(errs, "postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			errs = append(errs, "postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			errs = append(errs, "postgres: pool_min_conns must not exceed pool_max_conns")
		}
	case "s3":
		if c.S3.Endpoint == "" {
			errs = append(errs, "s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			errs = append(errs, "s3: bucket must not be empty")
		}
	}

	// Ledger policy
	if c.Ledger.Markup <= 0 {
		errs = append(errs, "ledger: markup must be > 0")
	}
	if c.Ledger.InboundPrefix == "" {
		errs = append(errs, "ledger: inbound_prefix must not be empty")
	}
	if c.Ledger.OutboundPrefix == "" {
		errs = append(errs, "ledger: outbound_prefix must not be empty")
	}
	if c.Ledger.InboundPrefix == c.Ledger.OutboundPrefix {
		errs = append(errs, "ledger: inbound_prefix and outbound_prefix must differ")
	}
	if c.Ledger.SequenceWidth < 1 || c.Ledger.SequenceWidth > 6 {
		errs = append(errs, fmt.Sprintf("ledger: sequence_width must be 1-6, got %d", c.Ledger.SequenceWidth))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
