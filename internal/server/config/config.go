// Package config loads the rtmp-auth settings.
//
// Values are layered: Default, then the TOML file, then a .env file and the
// RTMP_AUTH_* environment, then command line overrides. The result is checked
// with Validate.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"

	"github.com/dmitrijs2005/rtmp-auth/internal/common"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/backends"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/health"
	"github.com/dmitrijs2005/rtmp-auth/internal/server/store"
	"github.com/dmitrijs2005/rtmp-auth/internal/timex"
)

// DefaultPath is the config file read when none is given.
const DefaultPath = "config.toml"

// DefaultDotEnv is the dotenv file loaded into the environment when present.
const DefaultDotEnv = ".env"

// Config holds runtime settings for rtmp-auth.
type Config struct {
	API            APIConfig       `toml:"api" envPrefix:"API_"`
	Frontend       FrontendConfig  `toml:"frontend" envPrefix:"FRONTEND_"`
	Applications   []string        `toml:"applications" env:"APPLICATIONS" envSeparator:"," validate:"min=1,dive,required"`
	Store          backends.Config `toml:"store" envPrefix:"STORE_"`
	ExpiryInterval timex.Duration  `toml:"expiry_interval" env:"EXPIRY_INTERVAL"`
	Health         HealthConfig    `toml:"health" envPrefix:"HEALTH_"`
	Log            LogConfig       `toml:"log" envPrefix:"LOG_"`
}

// APIConfig is the listener streaming servers call back to.
type APIConfig struct {
	Address string `toml:"address" env:"ADDRESS" validate:"required,hostname_port"`
}

// FrontendConfig is the admin page listener.
//
// Prefix mounts the page below a subpath for reverse proxies. Insecure drops
// the Secure flag of the CSRF cookie. A non-empty PasswordHash (bcrypt)
// enables basic auth for Username.
type FrontendConfig struct {
	Address      string `toml:"address" env:"ADDRESS" validate:"required,hostname_port"`
	Prefix       string `toml:"prefix" env:"PREFIX" validate:"omitempty,startswith=/"`
	Insecure     bool   `toml:"insecure" env:"INSECURE"`
	Username     string `toml:"username" env:"USERNAME"`
	PasswordHash string `toml:"password_hash" env:"PASSWORD_HASH"`
}

// HealthConfig enables the gRPC health service when Address is set.
type HealthConfig struct {
	Address  string         `toml:"address" env:"ADDRESS" validate:"omitempty,hostname_port"`
	Interval timex.Duration `toml:"interval" env:"INTERVAL"`
}

type LogConfig struct {
	Level string `toml:"level" env:"LEVEL" validate:"oneof=debug info warn warning error"`
}

// Default returns the settings used when nothing is configured.
func Default() *Config {
	return &Config{
		API:          APIConfig{Address: "localhost:8080"},
		Frontend:     FrontendConfig{Address: "localhost:8082", Username: "admin"},
		Applications: []string{"stream"},
		Store: backends.Config{
			Backend: backends.KindFile,
			File:    backends.FileConfig{Path: "store.db"},
		},
		ExpiryInterval: timex.Duration{Duration: store.DefaultExpiryInterval},
		Health:         HealthConfig{Interval: timex.Duration{Duration: health.DefaultInterval}},
		Log:            LogConfig{Level: "info"},
	}
}

// Load builds a Config from defaults, the TOML file at path, the dotenv
// file and the environment, and finally the given overrides. Missing files
// are skipped.
func Load(path, dotenv string, overrides ...func(*Config)) (*Config, error) {
	cfg := Default()

	if err := LoadFile(path, cfg); err != nil {
		return nil, err
	}

	if dotenv != "" {
		if err := godotenv.Load(dotenv); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", dotenv, err)
		}
	}

	if err := ParseEnv(cfg); err != nil {
		return nil, err
	}

	for _, apply := range overrides {
		apply(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadFile overlays the TOML file at path onto cfg. A missing file is not an
// error.
func LoadFile(path string, cfg *Config) error {
	if path == "" {
		return nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("reading config file: %w", err)
	}

	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return nil
}

// ParseEnv overlays RTMP_AUTH_* variables onto cfg.
func ParseEnv(cfg *Config) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: common.EnvPrefix}); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Validate checks field constraints and the settings of the chosen backend.
func (c *Config) Validate() error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	if c.ExpiryInterval.Duration < time.Second {
		return fmt.Errorf("%w: expiry_interval must be at least 1s", common.ErrValidation)
	}
	if c.Frontend.PasswordHash != "" && !strings.HasPrefix(c.Frontend.PasswordHash, "$2") {
		return fmt.Errorf("%w: frontend.password_hash must be a bcrypt hash", common.ErrValidation)
	}
	return c.Store.Validate()
}
