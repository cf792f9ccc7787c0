// Package config defines the top-level configuration for the slot engine
// and provides validation helpers.
package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"
)

// Config is the root configuration structure. Fields are populated from a TOML
// file and then optionally overridden by SLOTENGINE_* environment variables.
type Config struct {
	Chain    ChainConfig    `toml:"chain"`
	Wallet   WalletConfig   `toml:"wallet"`
	Registry RegistryConfig `toml:"registry"`
	Engine   EngineConfig   `toml:"engine"`
	Postgres PostgresConfig `toml:"postgres"`
	Redis    RedisConfig    `toml:"redis"`
	S3       S3Config       `toml:"s3"`
	Server   ServerConfig   `toml:"server"`
	Notify   NotifyConfig   `toml:"notify"`
	Mode     string         `toml:"mode"`
	LogLevel string         `toml:"log_level"`
}

// ChainConfig holds the JSON-RPC endpoint and transaction parameters.
type ChainConfig struct {
	RPCURL              string   `toml:"rpc_url"`
	ChainID             int64    `toml:"chain_id"`
	ReceiptPollInterval duration `toml:"receipt_poll_interval"`
	GasHeadroomPct      int      `toml:"gas_headroom_pct"`
}

// WalletConfig holds the signing key sources, tried in field order.
type WalletConfig struct {
	PrivateKey    string `toml:"private_key"`
	SealedKeyPath string `toml:"sealed_key_path"`
	KeystorePath  string `toml:"keystore_path"`
	KeyPassword   string `toml:"key_password"`
}

// HasKey reports whether any key source is configured.
func (w WalletConfig) HasKey() bool {
	return w.PrivateKey != "" || w.SealedKeyPath != "" || w.KeystorePath != ""
}

// RegistryConfig points at the slot catalogue.
type RegistryConfig struct {
	Path string `toml:"path"`
}

// EngineConfig tunes the board poller and the action engine.
type EngineConfig struct {
	PollInterval    duration `toml:"poll_interval"`
	ArchiveInterval duration `toml:"archive_interval"`
	MaxPeriods      int      `toml:"max_periods"`
	ActionTimeout   duration `toml:"action_timeout"`
	ReadConcurrency int      `toml:"read_concurrency"`
}

// PostgresConfig holds PostgreSQL connection parameters. An empty DSN and
// Host disables persistence.
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

// Enabled reports whether a database is configured.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.DSN) != "" || p.Host != ""
}

// RedisConfig holds Redis connection parameters. An empty Addr disables the
// cache, lock and event bus.
type RedisConfig struct {
	Addr       string `toml:"addr"`
	Password   string `toml:"password"`
	DB         int    `toml:"db"`
	PoolSize   int    `toml:"pool_size"`
	MaxRetries int    `toml:"max_retries"`
	TLSEnabled bool   `toml:"tls_enabled"`
	// BoardTTL bounds how long a cached board is served.
	BoardTTL duration `toml:"board_ttl"`
}

// S3Config holds S3-compatible object storage parameters. An empty Bucket
// disables snapshot archiving.
type S3Config struct {
	Endpoint       string `toml:"endpoint"`
	Region         string `toml:"region"`
	Bucket         string `toml:"bucket"`
	Prefix         string `toml:"prefix"`
	AccessKey      string `toml:"access_key"`
	SecretKey      string `toml:"secret_key"`
	UseSSL         bool   `toml:"use_ssl"`
	ForcePathStyle bool   `toml:"force_path_style"`
}

// duration is a wrapper around time.Duration that supports TOML string decoding
// (e.g. "5m", "30s").
type duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *duration) UnmarshalText(text []byte) error {
	var err error
	d.Duration, err = time.ParseDuration(string(text))
	return err
}

// MarshalText implements encoding.TextMarshaler for round-trip encoding.
func (d duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// ServerConfig holds HTTP server parameters.
type ServerConfig struct {
	Port        int      `toml:"port"`
	APIKey      string   `toml:"api_key"`
	CORSOrigins []string `toml:"cors_origins"`
	// SigningSecret, when set, requires HMAC-signed action requests.
	SigningSecret  string   `toml:"signing_secret"`
	SignatureSkew  duration `toml:"signature_skew"`
	RateLimit      int      `toml:"rate_limit"`
	RateWindow     duration `toml:"rate_window"`
	RecentActions  int      `toml:"recent_actions"`
	RequestTimeout duration `toml:"request_timeout"`
}

// NotifyConfig holds notification channel credentials.
type NotifyConfig struct {
	TelegramToken     string   `toml:"telegram_token"`
	TelegramChatID    string   `toml:"telegram_chat_id"`
	DiscordWebhookURL string   `toml:"discord_webhook_url"`
	Events            []string `toml:"events"`
	// LapseRepeat is how often a slot that stays forfeitable is re-announced.
	LapseRepeat duration `toml:"lapse_repeat"`
}

// Defaults returns a Config populated with reasonable default values.
// These match the values in config.example.toml.
func Defaults() Config {
	return Config{
		Chain: ChainConfig{
			RPCURL:              "http://localhost:8545",
			ReceiptPollInterval: duration{2 * time.Second},
			GasHeadroomPct:      20,
		},
		Registry: RegistryConfig{
			Path: "slots.toml",
		},
		Engine: EngineConfig{
			PollInterval:    duration{15 * time.Second},
			ArchiveInterval: duration{time.Hour},
			MaxPeriods:      512,
			ActionTimeout:   duration{3 * time.Minute},
			ReadConcurrency: 8,
		},
		Postgres: PostgresConfig{
			Port:          5432,
			Database:      "slotengine",
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
			BoardTTL:   duration{time.Minute},
		},
		S3: S3Config{
			Endpoint:       "http://localhost:9000",
			Region:         "us-east-1",
			Prefix:         "boards",
			ForcePathStyle: true,
		},
		Server: ServerConfig{
			Port:           8000,
			CORSOrigins:    []string{"http://localhost:3000", "http://localhost:5173"},
			SignatureSkew:  duration{5 * time.Minute},
			RateLimit:      30,
			RateWindow:     duration{time.Minute},
			RecentActions:  50,
			RequestTimeout: duration{4 * time.Minute},
		},
		Notify: NotifyConfig{
			Events:      []string{"action_confirmed", "action_failed", "slot_forfeitable"},
			LapseRepeat: duration{24 * time.Hour},
		},
		Mode:     "server",
		LogLevel: "info",
	}
}

// validModes enumerates the accepted values for Config.Mode.
var validModes = map[string]bool{
	"server":  true,
	"monitor": true,
	"once":    true,
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
	var errs []string

	if !validModes[strings.ToLower(c.Mode)] {
		errs = append(errs, fmt.Sprintf("unknown mode %q (valid: server, monitor, once)", c.Mode))
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		errs = append(errs, fmt.Sprintf("unknown log_level %q (valid: debug, info, warn, error)", c.LogLevel))
	}

	// Chain
	if u, err := url.Parse(c.Chain.RPCURL); err != nil || u.Scheme == "" {
		errs = append(errs, fmt.Sprintf("chain: rpc_url %q is not a valid URL", c.Chain.RPCURL))
	}
	if c.Chain.ChainID < 0 {
		errs = append(errs, "chain: chain_id must not be negative")
	}
	if c.Chain.GasHeadroomPct < 0 || c.Chain.GasHeadroomPct > 100 {
		errs = append(errs, fmt.Sprintf("chain: gas_headroom_pct must be 0-100, got %d", c.Chain.GasHeadroomPct))
	}
	if c.Chain.ReceiptPollInterval.Duration <= 0 {
		errs = append(errs, "chain: receipt_poll_interval must be > 0")
	}

	// Wallet
	if c.Wallet.SealedKeyPath != "" || c.Wallet.KeystorePath != "" {
		if c.Wallet.KeyPassword == "" && c.Wallet.PrivateKey == "" {
			errs = append(errs, "wallet: key_password is required when sealed_key_path or keystore_path is set")
		}
	}

	if c.Registry.Path == "" {
		errs = append(errs, "registry: path must not be empty")
	}

	// Engine
	if c.Engine.PollInterval.Duration <= 0 {
		errs = append(errs, "engine: poll_interval must be > 0")
	}
	if c.Engine.ArchiveInterval.Duration < 0 {
		errs = append(errs, "engine: archive_interval must be >= 0")
	}
	if c.Engine.MaxPeriods < 1 {
		errs = append(errs, "engine: max_periods must be >= 1")
	}
	if c.Engine.ActionTimeout.Duration <= 0 {
		errs = append(errs, "engine: action_timeout must be > 0")
	}
	if c.Engine.ReadConcurrency < 1 {
		errs = append(errs, "engine: read_concurrency must be >= 1")
	}

	// Postgres
	if c.Postgres.Enabled() && strings.TrimSpace(c.Postgres.DSN) == "" {
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

	// Redis
	if c.Redis.Addr != "" && c.Redis.PoolSize < 1 {
		errs = append(errs, "redis: pool_size must be >= 1")
	}

	// S3
	if c.S3.Bucket != "" && c.S3.Region == "" {
		errs = append(errs, "s3: region must not be empty when bucket is set")
	}

	// Server
	if c.Mode == "server" {
		if c.Server.Port <= 0 || c.Server.Port > 65535 {
			errs = append(errs, fmt.Sprintf("server: port must be 1-65535, got %d", c.Server.Port))
		}
	}
	if c.Server.RateLimit < 0 {
		errs = append(errs, "server: rate_limit must be >= 0")
	}
	if c.Server.RateLimit > 0 && c.Server.RateWindow.Duration <= 0 {
		errs = append(errs, "server: rate_window must be > 0 when rate_limit is set")
	}
	if c.Server.RequestTimeout.Duration > 0 && c.Server.RequestTimeout.Duration < c.Engine.ActionTimeout.Duration {
		errs = append(errs, "server: request_timeout must not be shorter than engine.action_timeout")
	}

	// Notify
	if (c.Notify.TelegramToken == "") != (c.Notify.TelegramChatID == "") {
		errs = append(errs, "notify: telegram_token and telegram_chat_id must be set together")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}
