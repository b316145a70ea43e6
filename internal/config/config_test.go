package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func writeTOML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "predictd.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
	require.Equal(t, int64(1<<32)/int64(1<<20), cfg.Market.ScalingFactor/cfg.Market.SatScaling)
}

func TestLoadMergesFileOverDefaults(t *testing.T) {
	path := writeTOML(t, `
mode = "ladder"

[market]
hash = "keccak256"
ledger_depth = 4
lock_ttl = "3s"

[server]
port = 9001

[[server.hmac]]
key = "ops"
secret = "s3cret"
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "ladder", cfg.Mode)
	require.Equal(t, "keccak256", cfg.Market.Hash)
	require.Equal(t, 4, cfg.Market.LedgerDepth)
	require.Equal(t, 3*time.Second, cfg.Market.LockTTL.Duration)
	require.Equal(t, 63, cfg.Market.MaxShares, "untouched keys keep defaults")
	require.Equal(t, 9001, cfg.Server.Port)
	require.Equal(t, []HMACCredential{{Key: "ops", Secret: "s3cret"}}, cfg.Server.HMAC)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.toml"))
	require.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("PREDICTD_MODE", "archive")
	t.Setenv("PREDICTD_MARKET_LEDGER_DEPTH", "6")
	t.Setenv("PREDICTD_MARKET_SCALING_FACTOR", "8589934592")
	t.Setenv("PREDICTD_SERVER_RATE_WINDOW", "30s")
	t.Setenv("PREDICTD_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("PREDICTD_SERVER_HMAC", "k1:s1, bad, k2:s2")
	t.Setenv("PREDICTD_POSTGRES_RUN_MIGRATIONS", "false")
	t.Setenv("PREDICTD_REDIS_DB", "not-a-number")

	cfg := Defaults()
	applyEnvOverrides(&cfg)

	require.Equal(t, "archive", cfg.Mode)
	require.Equal(t, 6, cfg.Market.LedgerDepth)
	require.Equal(t, int64(1<<33), cfg.Market.ScalingFactor)
	require.Equal(t, 30*time.Second, cfg.Server.RateWindow.Duration)
	require.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	require.Equal(t, []HMACCredential{{Key: "k1", Secret: "s1"}, {Key: "k2", Secret: "s2"}}, cfg.Server.HMAC)
	require.False(t, cfg.Postgres.RunMigrations)
	require.Equal(t, 0, cfg.Redis.DB, "unparsable values are ignored")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"unknown mode", func(c *Config) { c.Mode = "trade" }, "unknown mode"},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"hash", func(c *Config) { c.Market.Hash = "md5" }, "unknown algorithm"},
		{"depth", func(c *Config) { c.Market.LedgerDepth = 0 }, "ledger_depth"},
		{"liquidity", func(c *Config) { c.Market.MaxLiquidity = 0 }, "max_liquidity"},
		{"scaling", func(c *Config) { c.Market.SatScaling = 3 }, "multiple of sat_scaling"},
		{"oracle", func(c *Config) { c.Oracle.KeyLen = 8 }, "key_len"},
		{"encrypted key", func(c *Config) { c.Keys.EncryptedOwnerPath = "owner.json" }, "password is required"},
		{"keygen password", func(c *Config) { c.Mode = "keygen" }, "mode keygen"},
		{"pool", func(c *Config) { c.Postgres.PoolMinConns = 50 }, "pool_min_conns"},
		{"redis", func(c *Config) { c.Redis.Addr = "" }, "redis: addr"},
		{"bucket", func(c *Config) { c.S3.Bucket = "" }, "s3: bucket"},
		{"port", func(c *Config) { c.Server.Port = 70000 }, "server: port"},
		{"window", func(c *Config) { c.Server.RateWindow.Duration = 0 }, "rate_window"},
		{"hmac", func(c *Config) { c.Server.HMAC = []HMACCredential{{Key: "k"}} }, "hmac[0]"},
		{"retention", func(c *Config) { c.Mode = "archive"; c.Archive.RetentionDays = 0 }, "retention_days"},
		{"telegram", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_chat_id"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			require.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestValidateScopesByMode(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "keygen"
	cfg.Keys.Password = "pw"
	cfg.Redis.Addr = ""
	cfg.S3.Bucket = ""
	cfg.Postgres.Host = ""
	require.NoError(t, cfg.Validate(), "keygen needs no backing services")

	cfg = Defaults()
	cfg.Mode = "ladder"
	cfg.Redis.Addr = ""
	cfg.Postgres.Host = ""
	require.NoError(t, cfg.Validate())
}

func TestValidateCollectsEveryProblem(t *testing.T) {
	cfg := Defaults()
	cfg.Mode = "nope"
	cfg.Market.LedgerDepth = 99
	err := cfg.Validate()
	require.ErrorContains(t, err, "unknown mode")
	require.ErrorContains(t, err, "ledger_depth")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Keys.OwnerPrivateKey = "deadbeef"
	cfg.Postgres.Password = "pg"
	cfg.Server.APIKey = "key"
	cfg.Server.HMAC = []HMACCredential{{Key: "ops", Secret: "secret"}}
	cfg.Notify.TelegramToken = "tok"

	out := RedactedConfig(&cfg)
	require.Equal(t, redacted, out.Keys.OwnerPrivateKey)
	require.Equal(t, redacted, out.Postgres.Password)
	require.Equal(t, redacted, out.Server.APIKey)
	require.Equal(t, "ops", out.Server.HMAC[0].Key)
	require.Equal(t, redacted, out.Server.HMAC[0].Secret)
	require.Equal(t, redacted, out.Notify.TelegramToken)
	require.Empty(t, out.Redis.Password, "empty secrets stay empty")

	require.Equal(t, "secret", cfg.Server.HMAC[0].Secret, "original untouched")
	out.Server.CORSOrigins[0] = "mutated"
	require.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
}
