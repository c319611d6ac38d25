package vault

import (
	"time"

	"filevault/internal/auth"
	"filevault/internal/sniff"
	"filevault/internal/storage"
)

type Config struct {
	// DataDir is the root directory holding the metadata database and, for
	// the default engine, object payloads.
	DataDir string

	// MaxFileSize is the per-file upload limit in bytes.
	MaxFileSize int64

	// SecretKey signs bearer tokens. The default is for development only.
	SecretKey string

	// TokenTTL is the validity duration of issued bearer tokens.
	TokenTTL time.Duration

	// Engine stores object payloads. Defaults to local content-addressed
	// storage under DataDir.
	Engine storage.Engine

	// Accounts hold the credentials accepted by the login endpoint.
	Accounts *auth.AccountStore

	// Compat is the declared-vs-sniffed MIME compatibility table.
	Compat sniff.Table

	// RateLimit is the per-caller request rate in requests per second; zero
	// disables rate limiting. RateBurst is the bucket size (defaulted when
	// unset and RateLimit is active).
	RateLimit float64
	RateBurst int
}

type ConfigOption func(*Config)

func WithDataDir(dataDir string) ConfigOption {
	return func(cfg *Config) {
		cfg.DataDir = dataDir
	}
}

func WithMaxFileSize(limit int64) ConfigOption {
	return func(cfg *Config) {
		cfg.MaxFileSize = limit
	}
}

func WithSecretKey(secretKey string) ConfigOption {
	return func(cfg *Config) {
		cfg.SecretKey = secretKey
	}
}

func WithTokenTTL(ttl time.Duration) ConfigOption {
	return func(cfg *Config) {
		cfg.TokenTTL = ttl
	}
}

func WithStorageEngine(engine storage.Engine) ConfigOption {
	return func(cfg *Config) {
		cfg.Engine = engine
	}
}

func WithAccounts(accounts *auth.AccountStore) ConfigOption {
	return func(cfg *Config) {
		cfg.Accounts = accounts
	}
}

func WithCompatibilityTable(table sniff.Table) ConfigOption {
	return func(cfg *Config) {
		cfg.Compat = table
	}
}

func WithRateLimit(perSecond float64, burst int) ConfigOption {
	return func(cfg *Config) {
		cfg.RateLimit = perSecond
		cfg.RateBurst = burst
	}
}

func NewConfig(opts ...ConfigOption) Config {
	cfg := Config{}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}
