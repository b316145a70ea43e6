// Package config defines the top-level configuration for predictd and
// provides validation helpers.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/predictledger/internal/hasher"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by PREDICTD_* environment variables.
type Config struct {
	Market   MarketConfig   `toml:"market"`
	Oracle   OracleConfig   `toml:"oracle"`
	Keys     KeysConfig     `toml:"keys"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Archive  ArchiveConfig  `toml:"archive"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// MarketConfig fixes the numeric contract every market on this deployment
// shares with the covenant.
type MarketConfig struct {
	// Hash selects the digest function: "sha256" or "keccak256".
	Hash          string `toml:"hash"`
	LedgerDepth   int    `toml:"ledger_depth"`
	MaxLiquidity  int    `toml:"max_liquidity"`
	MaxShares     int    `toml:"max_shares"`
	ScalingFactor int64  `toml:"scaling_factor"`
	SatScaling    int64  `toml:"sat_scaling"`

	LockTTL      duration `toml:"lock_ttl"`
	StatusStream string   `toml:"status_stream"`
}

// OracleConfig holds the oracle signature parameters.
type OracleConfig struct {
	// KeyLen is the Rabin modulus width in bytes.
	KeyLen int `toml:"key_len"`
}

// KeysConfig locates the operator owner key and controls key generation.
type KeysConfig struct {
	OwnerPrivateKey    string `toml:"owner_private_key"`
	EncryptedOwnerPath string `toml:"encrypted_owner_path"`
	Password           string `toml:"password"`
	// Iterations is the PBKDF2 work factor for newly sealed key files.
	Iterations int `toml:"iterations"`
	// OutDir receives the files written by keygen mode.
	OutDir string `toml:"out_dir"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	DSN           string `toml:"dsn"`
	Host          string `toml:"host"`
	Port          int    `toml:"port"`
	Database      string `toml:"database"`
	User          string `toml:"user"`
	Password      string `toml:"password"`
	SSLMode       string `toml:"ssl_mode"`
	PoolMaxConns  int    `toml:"pool_max_conns"`
	PoolMinConns  int    `toml:"pool_min_conns"`
	RunMigrations bool   `toml:"run_migrations"`
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

// HMACCredential is one key id and shared secret accepted for signed requests.
type HMACCredential struct {
	Key    string `toml:"key"`
	Secret string `toml:"secret"`
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port           int              `toml:"port"`
	CORSOrigins    []string         `toml:"cors_origins"`
	APIKey         string           `toml:"api_key"`
	HMAC           []HMACCredential `toml:"hmac"`
	HMACMaxSkew    duration         `toml:"hmac_max_skew"`
	RateLimit      int              `toml:"rate_limit"`
	WriteRateLimit int              `toml:"write_rate_limit"`
	RateWindow     duration         `toml:"rate_window"`
	// PublishLadder uploads the ladder snapshot on startup when missing.
	PublishLadder bool `toml:"publish_ladder"`
}

// ArchiveConfig controls the status-history archiver.
type ArchiveConfig struct {
	RetentionDays int `toml:"retention_days"`
	// Cron, when set, keeps archive mode running on this 5-field UTC
	// schedule instead of archiving once.
	Cron string `toml:"cron"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler so the TOML decoder can
// parse duration strings like "5m" or "30s".
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
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Market: MarketConfig{
			Hash:          hasher.NameSHA256,
			LedgerDepth:   10,
			MaxLiquidity:  15,
			MaxShares:     63,
			ScalingFactor: 1 << 32,
			SatScaling:    1 << 20,
			LockTTL:       duration{10 * time.Second},
			StatusStream:  "stream:market_status",
		},
		Oracle: OracleConfig{
			KeyLen: 126,
		},
		Keys: KeysConfig{
			Iterations: 480_000,
			OutDir:     "keys",
		},
		Postgres: PostgresConfig{
			Host:          "localhost",
			Port:          5432,
			Database:      "predictd",
			User:          "postgres",
			SSLMode:       "disable",
			PoolMaxConns:  10,
			PoolMinConns:  2,
			RunMigrations: true,
		},
		Redis: RedisConfig{
			Addr:       "localhost:6379",
			PoolSize:   20,
			MaxRetries: 3,
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Bucket:         "predictd-data",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			HMACMaxSkew:    duration{30 * time.Second},
			RateLimit:      120,
			WriteRateLimit: 30,
			RateWindow:     duration{time.Minute},
			PublishLadder:  true,
		},
		Archive: ArchiveConfig{
			RetentionDays: 90,
		},
		Notify: NotifyConfig{
			Events: []string{"market.created", "market.resolved"},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"ladder":  true,
	"archive": true,
	"keygen":  true,
}

// validLogLevels enumerates the accepted values for Config.LogLevel.
var validLogLevels = map[string]bool{
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

// Validate checks Config for obviously invalid or missing values and returns a
// combined error describing every problem found.
func (c *Config) Validate() error {
	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf(format, args...))
	}

	mode := strings.ToLower(c.Mode)
	if !validModes[mode] {
		add("unknown mode %q (valid: server, ladder, archive, keygen)", c.Mode)
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		add("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel)
	}

	// Market
	if _, err := hasher.ByName(c.Market.Hash); err != nil {
		add("market: %v", err)
	}
	if c.Market.LedgerDepth < 1 || c.Market.LedgerDepth > 16 {
		add("market: ledger_depth must be 1-16, got %d", c.Market.LedgerDepth)
	}
	if c.Market.MaxLiquidity < 1 || c.Market.MaxLiquidity > 255 {
		add("market: max_liquidity must be 1-255, got %d", c.Market.MaxLiquidity)
	}
	if c.Market.MaxShares < 0 || c.Market.MaxShares > 255 {
		add("market: max_shares must be 0-255, got %d", c.Market.MaxShares)
	}
	if c.Market.ScalingFactor <= 0 || c.Market.SatScaling <= 0 {
		add("market: scaling_factor and sat_scaling must be > 0")
	} else if c.Market.ScalingFactor%c.Market.SatScaling != 0 {
		add("market: scaling_factor must be a multiple of sat_scaling")
	}

	// Oracle
	if c.Oracle.KeyLen < 16 {
		add("oracle: key_len must be >= 16, got %d", c.Oracle.KeyLen)
	}

	// Keys
	if c.Keys.EncryptedOwnerPath != "" && c.Keys.Password == "" {
		add("keys: password is required when encrypted_owner_path is set")
	}
	if mode == "keygen" {
		if c.Keys.Password == "" {
			add("keys: password is required for mode keygen")
		}
		if c.Keys.OutDir == "" {
			add("keys: out_dir must not be empty for mode keygen")
		}
	}

	needsStores := mode == "server" || mode == "archive"

	// Postgres
	if needsStores {
		if strings.TrimSpace(c.Postgres.DSN) == "" {
			if c.Postgres.Host == "" {
				add("postgres: host must not be empty (or set postgres.dsn)")
			}
			if c.Postgres.Port <= 0 || c.Postgres.Port > 65535 {
				add("postgres: port must be 1-65535, got %d", c.Postgres.Port)
			}
			if c.Postgres.Database == "" {
				add("postgres: database must not be empty")
			}
		}
		if c.Postgres.PoolMaxConns < 1 {
			add("postgres: pool_max_conns must be >= 1")
		}
		if c.Postgres.PoolMinConns < 0 {
			add("postgres: pool_min_conns must be >= 0")
		}
		if c.Postgres.PoolMinConns > c.Postgres.PoolMaxConns {
			add("postgres: pool_min_conns must not exceed pool_max_conns")
		}
	}

	// Redis
	if mode == "server" {
		if c.Redis.Addr == "" {
			add("redis: addr must not be empty")
		}
		if c.Redis.PoolSize < 1 {
			add("redis: pool_size must be >= 1")
		}
	}

	// S3
	if mode != "keygen" {
		if c.S3.Endpoint == "" {
			add("s3: endpoint must not be empty")
		}
		if c.S3.Bucket == "" {
			add("s3: bucket must not be empty")
		}
	}

	// Server
	if mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			add("server: port must be 1-65535, got %d", c.Server.Port)
		}
		if c.Server.RateLimit < 0 || c.Server.WriteRateLimit < 0 {
			add("server: rate limits must be >= 0")
		}
		if (c.Server.RateLimit > 0 || c.Server.WriteRateLimit > 0) && c.Server.RateWindow.Duration <= 0 {
			add("server: rate_window must be > 0 when rate limiting is enabled")
		}
		for i, h := range c.Server.HMAC {
			if h.Key == "" || h.Secret == "" {
				add("server: hmac[%d] needs both key and secret", i)
			}
		}
	}

	// Archive
	if mode == "archive" && c.Archive.RetentionDays < 1 {
		add("archive: retention_days must be >= 1")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		add("notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed: %w", errors.Join(errs...))
	}
	return nil
}
