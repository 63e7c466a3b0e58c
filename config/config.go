// Package config loads server configuration.
//
// Precedence, lowest first: Default(), an optional TOML file, then CHORES_*
// environment variables.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

type Config struct {
	HTTP    HTTP    `toml:"http"`
	DB      DB      `toml:"db"`
	Auth    Auth    `toml:"auth"`
	Push    Push    `toml:"push"`
	Metrics Metrics `toml:"metrics"`
}

type HTTP struct {
	Addr           string   `toml:"addr" env:"CHORES_HTTP_ADDR"`
	AllowedOrigins []string `toml:"allowed_origins" env:"CHORES_HTTP_ALLOWED_ORIGINS" envSeparator:","`
	StaticDir      string   `toml:"static_dir" env:"CHORES_HTTP_STATIC_DIR"`
}

type DB struct {
	Path string `toml:"path" env:"CHORES_DB_PATH"`
}

type Auth struct {
	JWTSecret  string        `toml:"jwt_secret" env:"CHORES_JWT_SECRET"`
	TokenTTL   time.Duration `toml:"token_ttl" env:"CHORES_TOKEN_TTL"`
	BcryptCost int           `toml:"bcrypt_cost" env:"CHORES_BCRYPT_COST"`
}

type Push struct {
	VAPIDSubject    string        `toml:"vapid_subject" env:"CHORES_VAPID_SUBJECT"`
	VAPIDPublicKey  string        `toml:"vapid_public_key" env:"CHORES_VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey string        `toml:"vapid_private_key" env:"CHORES_VAPID_PRIVATE_KEY"`
	Timeout         time.Duration `toml:"timeout" env:"CHORES_PUSH_TIMEOUT"`
}

type Metrics struct {
	Enabled bool `toml:"enabled" env:"CHORES_METRICS_ENABLED"`
}

// Default returns development defaults.
func Default() Config {
	return Config{
		HTTP: HTTP{
			Addr:           ":8080",
			AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
			StaticDir:      "./web/dist",
		},
		DB: DB{Path: "chores.db"},
		Auth: Auth{
			TokenTTL:   12 * time.Hour,
			BcryptCost: 10,
		},
		Push: Push{
			VAPIDSubject: "mailto:admin@localhost",
			Timeout:      10 * time.Second,
		},
		Metrics: Metrics{Enabled: true},
	}
}

// Load builds the configuration. path may be empty to skip the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return cfg, fmt.Errorf("read config file %s: %w", path, err)
		}
	}
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, cfg.Validate()
}

// Validate rejects settings the server cannot start with.
func (c Config) Validate() error {
	var errs []error
	if c.HTTP.Addr == "" {
		errs = append(errs, errors.New("http.addr is required"))
	}
	if c.DB.Path == "" {
		errs = append(errs, errors.New("db.path is required"))
	}
	if c.Auth.BcryptCost < 4 || c.Auth.BcryptCost > 31 {
		errs = append(errs, fmt.Errorf("auth.bcrypt_cost must be between 4 and 31, got %d", c.Auth.BcryptCost))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("auth.token_ttl must be positive"))
	}
	if (c.Push.VAPIDPublicKey == "") != (c.Push.VAPIDPrivateKey == "") {
		errs = append(errs, errors.New("push: set both vapid_public_key and vapid_private_key, or neither"))
	}
	return errors.Join(errs...)
}
