package config

import (
	"fmt"

	pkgconfig "github.com/goleaf/discount-service/pkg/config"
)

// Config holds all configuration for the discount service, loaded from
// environment variables.
type Config struct {
	HTTPPort    int    `env:"DISCOUNT_HTTP_PORT" envDefault:"8011"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	PostgresHost string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser string `env:"POSTGRES_USER" envDefault:"ecommerce"`
	PostgresPass string `env:"POSTGRES_PASSWORD" envDefault:"ecommerce"`
	PostgresDB   string `env:"POSTGRES_DB" envDefault:"discount_db"`
	PostgresSSL  string `env:"POSTGRES_SSLMODE" envDefault:"disable"`

	RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB       int    `env:"REDIS_DB" envDefault:"0"`

	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// AppliedDiscountTTLHours bounds how long a cart's applied-discount
	// record survives in Redis.
	AppliedDiscountTTLHours int `env:"APPLIED_DISCOUNT_TTL_HOURS" envDefault:"168"`

	// ManualCouponsOverrideAuto lets manually entered coupons replace
	// already-admitted automatic promotions during conflict resolution.
	ManualCouponsOverrideAuto bool `env:"MANUAL_COUPONS_OVERRIDE_AUTO" envDefault:"true"`
}

// Load reads configuration from environment variables and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.PostgresHost == "" {
		return fmt.Errorf("POSTGRES_HOST is required")
	}
	if c.PostgresUser == "" {
		return fmt.Errorf("POSTGRES_USER is required")
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.AppliedDiscountTTLHours <= 0 {
		return fmt.Errorf("APPLIED_DISCOUNT_TTL_HOURS must be positive")
	}
	return nil
}
