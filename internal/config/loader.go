package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Load reads a TOML configuration file at path, merges it on top of the
// built-in defaults, applies SLOTENGINE_* environment variable overrides, and
// returns the final Config. The returned Config has NOT been validated; the
// caller should invoke Config.Validate() after Load.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}

	// Load .env file if present (silently ignore if missing).
	_ = godotenv.Load()

	applyEnvOverrides(&cfg)

	return &cfg, nil
}

// applyEnvOverrides overwrites Config fields from SLOTENGINE_* environment
// variables that are set and non-empty.
func applyEnvOverrides(cfg *Config) {
	// ── Chain ──
	setStr(&cfg.Chain.RPCURL, "SLOTENGINE_CHAIN_RPC_URL")
	setInt64(&cfg.Chain.ChainID, "SLOTENGINE_CHAIN_CHAIN_ID")
	setDuration(&cfg.Chain.ReceiptPollInterval, "SLOTENGINE_CHAIN_RECEIPT_POLL_INTERVAL")
	setInt(&cfg.Chain.GasHeadroomPct, "SLOTENGINE_CHAIN_GAS_HEADROOM_PCT")

	// ── Wallet ──
	setStr(&cfg.Wallet.PrivateKey, "SLOTENGINE_WALLET_PRIVATE_KEY")
	setStr(&cfg.Wallet.SealedKeyPath, "SLOTENGINE_WALLET_SEALED_KEY_PATH")
	setStr(&cfg.Wallet.KeystorePath, "SLOTENGINE_WALLET_KEYSTORE_PATH")
	setStr(&cfg.Wallet.KeyPassword, "SLOTENGINE_WALLET_KEY_PASSWORD")

	// ── Registry ──
	setStr(&cfg.Registry.Path, "SLOTENGINE_REGISTRY_PATH")

	// ── Engine ──
	setDuration(&cfg.Engine.PollInterval, "SLOTENGINE_ENGINE_POLL_INTERVAL")
	setDuration(&cfg.Engine.ArchiveInterval, "SLOTENGINE_ENGINE_ARCHIVE_INTERVAL")
	setInt(&cfg.Engine.MaxPeriods, "SLOTENGINE_ENGINE_MAX_PERIODS")
	setDuration(&cfg.Engine.ActionTimeout, "SLOTENGINE_ENGINE_ACTION_TIMEOUT")
	setInt(&cfg.Engine.ReadConcurrency, "SLOTENGINE_ENGINE_READ_CONCURRENCY")

	// ── Postgres ──
	setStr(&cfg.Postgres.DSN, "SLOTENGINE_POSTGRES_DSN")
	setStr(&cfg.Postgres.DSN, "DATABASE_URL") // compatibility alias
	setStr(&cfg.Postgres.Host, "SLOTENGINE_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "SLOTENGINE_POSTGRES_PORT")
	setStr(&cfg.Postgres.Database, "SLOTENGINE_POSTGRES_DATABASE")
	setStr(&cfg.Postgres.User, "SLOTENGINE_POSTGRES_USER")
	setStr(&cfg.Postgres.Password, "SLOTENGINE_POSTGRES_PASSWORD")
	setStr(&cfg.Postgres.SSLMode, "SLOTENGINE_POSTGRES_SSL_MODE")
	setInt(&cfg.Postgres.PoolMaxConns, "SLOTENGINE_POSTGRES_POOL_MAX_CONNS")
	setInt(&cfg.Postgres.PoolMinConns, "SLOTENGINE_POSTGRES_POOL_MIN_CONNS")
	setBool(&cfg.Postgres.RunMigrations, "SLOTENGINE_POSTGRES_RUN_MIGRATIONS")

	// ── Redis ──
	setStr(&cfg.Redis.Addr, "SLOTENGINE_REDIS_ADDR")
	setStr(&cfg.Redis.Password, "SLOTENGINE_REDIS_PASSWORD")
	setInt(&cfg.Redis.DB, "SLOTENGINE_REDIS_DB")
	setInt(&cfg.Redis.PoolSize, "SLOTENGINE_REDIS_POOL_SIZE")
	setInt(&cfg.Redis.MaxRetries, "SLOTENGINE_REDIS_MAX_RETRIES")
	setBool(&cfg.Redis.TLSEnabled, "SLOTENGINE_REDIS_TLS_ENABLED")
	setDuration(&cfg.Redis.BoardTTL, "SLOTENGINE_REDIS_BOARD_TTL")

	// ── S3 ──
	setStr(&cfg.S3.Endpoint, "SLOTENGINE_S3_ENDPOINT")
	setStr(&cfg.S3.Region, "SLOTENGINE_S3_REGION")
	setStr(&cfg.S3.Bucket, "SLOTENGINE_S3_BUCKET")
	setStr(&cfg.S3.Prefix, "SLOTENGINE_S3_PREFIX")
	setStr(&cfg.S3.AccessKey, "SLOTENGINE_S3_ACCESS_KEY")
	setStr(&cfg.S3.SecretKey, "SLOTENGINE_S3_SECRET_KEY")
	setBool(&cfg.S3.UseSSL, "SLOTENGINE_S3_USE_SSL")
	setBool(&cfg.S3.ForcePathStyle, "SLOTENGINE_S3_FORCE_PATH_STYLE")

	// ── Server ──
	setInt(&cfg.Server.Port, "SLOTENGINE_SERVER_PORT")
	setStr(&cfg.Server.APIKey, "SLOTENGINE_SERVER_API_KEY")
	setStringSlice(&cfg.Server.CORSOrigins, "SLOTENGINE_SERVER_CORS_ORIGINS")
	setStr(&cfg.Server.SigningSecret, "SLOTENGINE_SERVER_SIGNING_SECRET")
	setDuration(&cfg.Server.SignatureSkew, "SLOTENGINE_SERVER_SIGNATURE_SKEW")
	setInt(&cfg.Server.RateLimit, "SLOTENGINE_SERVER_RATE_LIMIT")
	setDuration(&cfg.Server.RateWindow, "SLOTENGINE_SERVER_RATE_WINDOW")
	setInt(&cfg.Server.RecentActions, "SLOTENGINE_SERVER_RECENT_ACTIONS")
	setDuration(&cfg.Server.RequestTimeout, "SLOTENGINE_SERVER_REQUEST_TIMEOUT")

	// ── Notify ──
	setStr(&cfg.Notify.TelegramToken, "SLOTENGINE_NOTIFY_TELEGRAM_TOKEN")
	setStr(&cfg.Notify.TelegramChatID, "SLOTENGINE_NOTIFY_TELEGRAM_CHAT_ID")
	setStr(&cfg.Notify.DiscordWebhookURL, "SLOTENGINE_NOTIFY_DISCORD_WEBHOOK_URL")
	setStringSlice(&cfg.Notify.Events, "SLOTENGINE_NOTIFY_EVENTS")

	// ── Top-level ──
	setStr(&cfg.Mode, "SLOTENGINE_MODE")
	setStr(&cfg.LogLevel, "SLOTENGINE_LOG_LEVEL")
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
