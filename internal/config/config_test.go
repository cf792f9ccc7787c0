package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsValidate(t *testing.T) {
	cfg := Defaults()
	require.NoError(t, cfg.Validate())
}

func TestLoadMergesFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
mode = "monitor"

[chain]
rpc_url = "https://rpc.example.org"
chain_id = 11155111

[engine]
poll_interval = "5s"
max_periods = 1024
`), 0o600))

	t.Setenv("SLOTENGINE_ENGINE_READ_CONCURRENCY", "3")
	t.Setenv("SLOTENGINE_SERVER_CORS_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("SLOTENGINE_ENGINE_ACTION_TIMEOUT", "90s")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "monitor", cfg.Mode)
	assert.Equal(t, "https://rpc.example.org", cfg.Chain.RPCURL)
	assert.Equal(t, int64(11155111), cfg.Chain.ChainID)
	assert.Equal(t, 5*time.Second, cfg.Engine.PollInterval.Duration)
	assert.Equal(t, 1024, cfg.Engine.MaxPeriods)
	assert.Equal(t, 3, cfg.Engine.ReadConcurrency)
	assert.Equal(t, 90*time.Second, cfg.Engine.ActionTimeout.Duration)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.Server.CORSOrigins)
	// untouched defaults survive
	assert.Equal(t, 20, cfg.Chain.GasHeadroomPct)
	assert.Equal(t, "info", cfg.LogLevel)
	require.NoError(t, cfg.Validate())
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	require.Error(t, err)
}

func TestValidateCollectsProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"mode", func(c *Config) { c.Mode = "trade" }, `unknown mode "trade"`},
		{"log level", func(c *Config) { c.LogLevel = "loud" }, "unknown log_level"},
		{"rpc url", func(c *Config) { c.Chain.RPCURL = "localhost" }, "chain: rpc_url"},
		{"headroom", func(c *Config) { c.Chain.GasHeadroomPct = 150 }, "gas_headroom_pct"},
		{"keystore password", func(c *Config) { c.Wallet.KeystorePath = "/k.json" }, "key_password is required"},
		{"poll interval", func(c *Config) { c.Engine.PollInterval.Duration = 0 }, "poll_interval"},
		{"max periods", func(c *Config) { c.Engine.MaxPeriods = 0 }, "max_periods"},
		{"pool", func(c *Config) { c.Postgres.PoolMinConns = 20 }, "pool_min_conns must not exceed"},
		{"telegram", func(c *Config) { c.Notify.TelegramToken = "t" }, "telegram_token and telegram_chat_id"},
		{"request timeout", func(c *Config) { c.Server.RequestTimeout.Duration = time.Second }, "request_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}

	cfg := Defaults()
	cfg.Mode = "x"
	cfg.Engine.MaxPeriods = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
	assert.Contains(t, err.Error(), "max_periods")
}

func TestRedactedConfig(t *testing.T) {
	cfg := Defaults()
	cfg.Wallet.PrivateKey = "deadbeef"
	cfg.Postgres.DSN = "postgres://u:p@h/db"
	cfg.Server.SigningSecret = "s3cret"

	out := RedactedConfig(&cfg)
	assert.Equal(t, "***", out.Wallet.PrivateKey)
	assert.Equal(t, "***", out.Postgres.DSN)
	assert.Equal(t, "***", out.Server.SigningSecret)
	assert.Empty(t, out.Redis.Password)

	out.Server.CORSOrigins[0] = "mutated"
	assert.NotEqual(t, "mutated", cfg.Server.CORSOrigins[0])
	assert.Equal(t, "deadbeef", cfg.Wallet.PrivateKey)
}

func TestExampleConfigValidates(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config.example.toml"))
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	assert.Equal(t, Defaults().Engine, cfg.Engine)
	assert.Equal(t, Defaults().Server.RateLimit, cfg.Server.RateLimit)
	assert.Equal(t, Defaults().Notify, cfg.Notify)
}
