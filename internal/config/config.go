// Package config loads server configuration from the environment and game catalog
// overrides from YAML.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is the server configuration.
type Config struct {
	Addr   string `env:"MINIGAMES_ADDR" envDefault:":8080"`
	DBPath string `env:"MINIGAMES_DB_PATH" envDefault:"minigames.db"`

	// LedgerURL selects the remote balance authority. Empty runs an in-memory one.
	LedgerURL      string        `env:"MINIGAMES_LEDGER_URL"`
	LedgerToken    string        `env:"MINIGAMES_LEDGER_TOKEN"`
	LedgerTimeout  time.Duration `env:"MINIGAMES_LEDGER_TIMEOUT" envDefault:"5s"`
	CreditRetries  int           `env:"MINIGAMES_CREDIT_RETRIES" envDefault:"2"`
	KeyringService string        `env:"MINIGAMES_KEYRING_SERVICE" envDefault:"minigame-engine"`

	// Tick is the wall-clock length of one scheduler second.
	Tick        time.Duration `env:"MINIGAMES_TICK" envDefault:"1s"`
	CatalogPath string        `env:"MINIGAMES_CATALOG"`

	// Account and StartingBalance seed the in-memory authority.
	Account         string `env:"MINIGAMES_ACCOUNT" envDefault:"demo"`
	StartingBalance int64  `env:"MINIGAMES_STARTING_BALANCE" envDefault:"10000"`

	AutoplayScript string `env:"MINIGAMES_AUTOPLAY_SCRIPT"`
	AutoplayGame   string `env:"MINIGAMES_AUTOPLAY_GAME" envDefault:"coin-flip"`
}

// Load parses the process environment.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// LoadFrom parses an explicit environment instead of the process one.
func LoadFrom(environ map[string]string) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: environ}); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.LedgerTimeout <= 0 {
		return fmt.Errorf("config: ledger timeout must be positive, got %s", c.LedgerTimeout)
	}
	if c.CreditRetries < 1 {
		return fmt.Errorf("config: credit retries must be at least 1, got %d", c.CreditRetries)
	}
	if c.Tick <= 0 {
		return fmt.Errorf("config: tick must be positive, got %s", c.Tick)
	}
	if c.StartingBalance < 0 {
		return fmt.Errorf("config: starting balance must not be negative")
	}
	return nil
}
