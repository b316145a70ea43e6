package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies PREDICTD_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, err
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides reads well-known PREDICTD_* environment variables and
// overwrites the corresponding Config fields when a variable is set (i.e. not
// empty). This lets operators inject secrets at deploy time without touching
// the TOML file.
func applyEnvOverrides(cfg *Config) {
	// ── Market ──
	setStr(&cfg.Market.Hash, "PREDICTD_MARKET_HASH")
	setInt(&cfg.Market.LedgerDepth, "PREDICTD_MARKET_LEDGER_DEPTH")
	setInt(&cfg.Market.MaxLiquidity, "PREDICTD_MARKET_MAX_LIQUIDITY")
	setInt(&cfg.Market.MaxShares, "PREDICTD_MARKET_MAX_SHARES")
	setInt64(&cfg.Market.ScalingFactor, "PREDICTD_MARKET_SCALING_FACTOR")
	setInt64(&cfg.Market.SatScaling, "PREDICTD_MARKET_SAT_SCALING")
	setDuration(&cfg.Market.LockTTL, "PREDICTD_MARKET_LOCK_TTL")
	setStr(&cfg.Market.StatusStream, "PREDICTD_MARKET_STATUS_STREAM")

	// ── Oracle ──
	setInt(&cfg.Oracle.KeyLen, "PREDICTD_ORACLE_KEY_LEN")

	// ── Keys ──
	setStr(&cfg.Keys.OwnerPrivateKey, "PREDICTD_KEYS_OWNER_PRIVATE_KEY")
	setStr(&cfg.Keys.EncryptedOwnerPath, "PREDICTD_KEYS_ENCRYPTED_OWNER_PATH")
	setStr(&cfg.Keys.Password, "PREDICTD_KEYS_PASSWORD")
	setInt(&cfg.Keys.Iterations, "PREDICTD_KEYS_ITERATIONS")
	setStr(&cfg.Keys.OutDir, "PREDICTD_KEYS_OUT_DIR")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "PREDICTD_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "PREDICTD_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "PREDICTD_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "PREDICTD_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "PREDICTD_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "PREDICTD_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "PREDICTD_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "PREDICTD_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "PREDICTD_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "PREDICTD_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "PREDICTD_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "PREDICTD_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "PREDICTD_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "PREDICTD_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "PREDICTD_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "PREDICTD_REDIS_TLS_ENABLED")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "PREDICTD_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "PREDICTD_S3_REGION")
	setStr(&cfg.S3.Bucket, "PREDICTD_S3_BUCKET")
	setStr(&cfg.S3.AccessKey, "PREDICTD_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "PREDICTD_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "PREDICTD_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "PREDICTD_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "PREDICTD_SERVER_PORT")
	setStringSlice(&cfg.Server.CORSOrigins, "PREDICTD_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.APIKey, "PREDICTD_SERVER_API_KEY")
	setHMAC(&cfg.Server.HMAC, "PREDICTD_SERVER_HMAC")
	setDuration(&cfg.Server.HMACMaxSkew, "PREDICTD_SERVER_HMAC_MAX_SKEW")
	setInt(&cfg.Server.RateLimit, "PREDICTD_SERVER_RATE_LIMIT")
	setInt(&cfg.Server.WriteRateLimit, "PREDICTD_SERVER_WRITE_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "PREDICTD_SERVER_RATE_WINDOW")
	setBool(&cfg.Server.PublishLadder, "PREDICTD_SERVER_PUBLISH_LADDER")

	// ── Archive ──
	setInt(&cfg.Archive.RetentionDays, "PREDICTD_ARCHIVE_RETENTION_DAYS")
	setStr(&cfg.Archive.Cron, "PREDICTD_ARCHIVE_CRON")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "PREDICTD_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "PREDICTD_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "PREDICTD_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "PREDICTD_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "PREDICTD_MODE")
	setStr(&cfg.LogLevel, "PREDICTD_LOG_LEVEL")
}

// ---------------------------------------------------------------------------
// Typed env-var helpers. Each only mutates the target when the environment
// variable is present and non-empty.
// ---------------------------------------------------------------------------

func setStr(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setInt64(dst *int64, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}

func setDuration(dst *duration, key string) {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			dst.Duration = d
		}
	}
}

func setStringSlice(dst *[]string, key string) {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		cleaned := make([]string, 0, len(parts))
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p != "" {
				cleaned = append(cleaned, p)
			}
		}
		if len(cleaned) > 0 {
			*dst = cleaned
		}
	}
}

// setHMAC parses "key:secret" pairs separated by commas.
func setHMAC(dst *[]HMACCredential, key string) {
	var creds []HMACCredential
	for _, pair := range strings.Split(os.Getenv(key), ",") {
		id, secret, ok := strings.Cut(strings.TrimSpace(pair), ":")
		if ok && id != "" && secret != "" {
			creds = append(creds, HMACCredential{Key: id, Secret: secret})
		}
	}
	if len(creds) > 0 {
		*dst = creds
	}
}
