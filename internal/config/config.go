package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	AllowedOrigin string `envconfig:"ALLOWED_ORIGIN" default:"http://127.0.0.1:3000"`

	MongoURL      string `envconfig:"MONGODB_URL"`
	MongoDatabase string `envconfig:"MONGODB_DATABASE" default:"provisionstore"`
	DatabaseURL   string `envconfig:"DATABASE_URL"`

	RedisAddr       string        `envconfig:"REDIS_ADDR"`
	RedisPassword   string        `envconfig:"REDIS_PASSWORD"`
	RedisDB         int           `envconfig:"REDIS_DB" default:"0"`
	BarcodeCacheTTL time.Duration `envconfig:"BARCODE_CACHE_TTL" default:"30s"`

	Timezone string `envconfig:"STORE_TIMEZONE" default:"UTC"`
	ShopName string `envconfig:"SHOP_NAME" default:"Provision Store"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"json"`

	// Used only when no settings have been stored yet.
	DefaultPIN               string `envconfig:"DEFAULT_PIN" default:"1234"`
	DefaultLowStockThreshold int    `envconfig:"DEFAULT_LOW_STOCK_THRESHOLD" default:"5"`
}

func Load() (Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	cfg.DefaultPIN = strings.TrimSpace(cfg.DefaultPIN)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	var errs []error
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("STORE_TIMEZONE: %w", err))
	}
	if !fourDigits(c.DefaultPIN) {
		errs = append(errs, errors.New("DEFAULT_PIN must be exactly 4 digits"))
	}
	if c.DefaultLowStockThreshold < 0 {
		errs = append(errs, errors.New("DEFAULT_LOW_STOCK_THRESHOLD must not be negative"))
	}
	if c.BarcodeCacheTTL < 0 {
		errs = append(errs, errors.New("BARCODE_CACHE_TTL must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) Address() string {
	return fmt.Sprintf(":%s", c.Port)
}

// Location falls back to UTC for a zone that does not load; Validate reports it.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// Backend names the repository main will open.
func (c Config) Backend() string {
	switch {
	case c.MongoURL != "":
		return "mongodb"
	case c.DatabaseURL != "":
		return "postgres"
	}
	return "memory"
}

func fourDigits(pin string) bool {
	if len(pin) != 4 {
		return false
	}
	for _, r := range pin {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
