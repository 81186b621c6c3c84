// Package config loads runtime configuration from environment variables.
//
// Account credentials themselves are NOT configured here - they live in the
// account config file read by the accounts registry. This package covers the
// ambient settings: where state is stored, how logs are written, how
// notifications are delivered.
package config

import (
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// CacheBackend selects the token cache storage implementation.
type CacheBackend string

const (
	CacheBackendFile  CacheBackend = "file"
	CacheBackendRedis CacheBackend = "redis"
)

// Config is the main application configuration, loaded from environment
// variables via github.com/caarlos0/env.
type Config struct {
	AppName string `env:"APP_NAME" envDefault:"Steam Session Manager"`

	// DataFolder is the root for all persisted state (token cache files,
	// account config).
	DataFolder string `env:"DATA_FOLDER" envDefault:"./data"`

	// AccountFile is the path of the account configuration file. Relative
	// paths are resolved against DataFolder.
	AccountFile string `env:"ACCOUNT_FILE" envDefault:"steam_accounts.json"`

	// MaxAccounts caps how many accounts the registry will load.
	MaxAccounts int `env:"MAX_ACCOUNTS" envDefault:"5"`

	// ProviderTimeout bounds every remote authentication call so the pool
	// mutex is never held indefinitely.
	ProviderTimeout time.Duration `env:"PROVIDER_TIMEOUT" envDefault:"90s"`

	CacheBackend CacheBackend `env:"CACHE_BACKEND" envDefault:"file"`
	Redis        RedisConfig  `envPrefix:"REDIS_"`
	SMTP         SMTPConfig   `envPrefix:"SMTP_"`
	Log          LogConfig    `envPrefix:"LOG_"`
}

// RedisConfig configures the optional redis token cache backend.
type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

// SMTPConfig configures the SMTP notification sink. Notifications fall back
// to log-only delivery when Account is empty.
type SMTPConfig struct {
	Host      string `env:"HOST" envDefault:"smtp.gmail.com"`
	Port      string `env:"PORT" envDefault:"587"`
	Account   string `env:"ACCOUNT"`
	Password  string `env:"PASSWORD"`
	Recipient string `env:"RECIPIENT"`
}

// LogConfig configures zerolog output.
type LogConfig struct {
	Level string `env:"LEVEL" envDefault:"info"`

	// File enables rotated file output when non-empty; console output is
	// always on.
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"20"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"5"`
}

// New loads configuration from the environment.
func New() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, errors.Wrap(err, "[config.New] env.Parse")
	}
	cfg.Sanitize()
	return cfg, nil
}

// Sanitize applies guardrails to configuration values loaded from env.
func (c *Config) Sanitize() {
	if c.MaxAccounts <= 0 {
		c.MaxAccounts = 5
	}
	if c.ProviderTimeout <= 0 {
		c.ProviderTimeout = 90 * time.Second
	}
	if c.CacheBackend != CacheBackendFile && c.CacheBackend != CacheBackendRedis {
		c.CacheBackend = CacheBackendFile
	}
	if !filepath.IsAbs(c.AccountFile) {
		c.AccountFile = filepath.Join(c.DataFolder, c.AccountFile)
	}
}

// SessionFolder is where per-account token cache files are written.
func (c *Config) SessionFolder() string {
	return filepath.Join(c.DataFolder, "session")
}
