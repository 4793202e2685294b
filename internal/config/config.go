// File: internal/config/config.go
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "ENTITLEMENTS_"

type RuntimeConfig struct {
	Dev bool
}

type HTTPConfig struct {
	Port            int           `yaml:"port" env:"PORT"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout" env:"SHUTDOWN_TIMEOUT"`
	RequestTimeout  time.Duration `yaml:"request_timeout" env:"REQUEST_TIMEOUT"`
}

type LogConfig struct {
	Level    string `yaml:"level" env:"LEVEL"`       // trace|debug|info|warn|error
	Format   string `yaml:"format" env:"FORMAT"`     // json|console
	Sampling bool   `yaml:"sampling" env:"SAMPLING"` // enable sampling in prod
}

type DatabaseConfig struct {
	URL      string `yaml:"url" env:"URL"`
	MaxConns int32  `yaml:"max_conns" env:"MAX_CONNS"`
}

// RedisConfig is optional; an empty URL selects the in-process attempt store.
type RedisConfig struct {
	URL      string `yaml:"url" env:"URL"`
	Password string `yaml:"password" env:"PASSWORD"`
	DB       int    `yaml:"db" env:"DB"`
}

type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" env:"JWT_SECRET"`
	Issuer    string `yaml:"issuer" env:"JWT_ISSUER"`
}

type ActivationConfig struct {
	MinBatch int `yaml:"min_batch"`
	MaxBatch int `yaml:"max_batch"`
}

type TrialConfig struct {
	Grace time.Duration `yaml:"grace" env:"GRACE"`
}

type RateRule struct {
	MaxAttempts int           `yaml:"max_attempts"`
	Window      time.Duration `yaml:"window"`
}

type ProductConfig struct {
	Slug          string `yaml:"slug"`
	Name          string `yaml:"name"`
	RequiredLevel string `yaml:"required_level"`
	PriceType     string `yaml:"price_type"`
	TrialEnabled  bool   `yaml:"trial_enabled"`
	TrialQuota    int    `yaml:"trial_quota"`
}

type StatsConfig struct {
	Interval time.Duration `yaml:"interval" env:"INTERVAL"`
}

type AuditConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

type Config struct {
	HTTP       HTTPConfig          `yaml:"http" envPrefix:"HTTP_"`
	Log        LogConfig           `yaml:"log" envPrefix:"LOG_"`
	Database   DatabaseConfig      `yaml:"database" envPrefix:"DATABASE_"`
	Redis      RedisConfig         `yaml:"redis" envPrefix:"REDIS_"`
	Auth       AuthConfig          `yaml:"auth"`
	Activation ActivationConfig    `yaml:"activation"`
	Trial      TrialConfig         `yaml:"trial" envPrefix:"TRIAL_"`
	RateLimit  map[string]RateRule `yaml:"rate_limit"`
	Products   []ProductConfig     `yaml:"products"`
	Stats      StatsConfig         `yaml:"stats" envPrefix:"STATS_"`
	Audit      AuditConfig         `yaml:"audit"`

	Runtime RuntimeConfig `yaml:"-"`
}

var (
	levels     = map[string]bool{"none": true, "monthly": true, "quarterly": true, "yearly": true, "lifetime": true}
	priceTypes = map[string]bool{"membership": true, "standalone": true, "both": true}
)

// LoadConfig reads the yaml file at path, then applies .env and
// ENTITLEMENTS_* environment overrides on top of it.
func LoadConfig(path string, dev bool) (*Config, error) {
	// The .env file is optional.
	_ = godotenv.Load()

	var cfg Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(b, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := env.ParseWithOptions(&cfg, env.Options{Prefix: EnvPrefix}); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	applyDefaults(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	cfg.Runtime.Dev = dev
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = 8080
	}
	if cfg.HTTP.ShutdownTimeout <= 0 {
		cfg.HTTP.ShutdownTimeout = 10 * time.Second
	}
	if cfg.HTTP.RequestTimeout <= 0 {
		cfg.HTTP.RequestTimeout = 15 * time.Second
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "json"
	}
	if cfg.Database.MaxConns <= 0 {
		cfg.Database.MaxConns = 10
	}
	if cfg.Auth.Issuer == "" {
		cfg.Auth.Issuer = "product-entitlements"
	}
	if cfg.Activation.MinBatch <= 0 {
		cfg.Activation.MinBatch = 1
	}
	if cfg.Activation.MaxBatch <= 0 {
		cfg.Activation.MaxBatch = 100
	}
	if cfg.Trial.Grace <= 0 {
		cfg.Trial.Grace = 2 * time.Hour
	}
	if cfg.Stats.Interval <= 0 {
		cfg.Stats.Interval = time.Minute
	}
	if cfg.Audit.Workers <= 0 {
		cfg.Audit.Workers = 1
	}
	if cfg.Audit.QueueSize <= 0 {
		cfg.Audit.QueueSize = 1024
	}
	for i := range cfg.Products {
		p := &cfg.Products[i]
		if p.RequiredLevel == "" {
			p.RequiredLevel = "monthly"
		}
		if p.PriceType == "" {
			p.PriceType = "membership"
		}
		if p.TrialEnabled && p.TrialQuota <= 0 {
			p.TrialQuota = 5
		}
	}
}

// Validate performs the minimal checks needed to start the service.
func (c *Config) Validate() error {
	if c.Database.URL == "" {
		return errors.New("database.url is required")
	}
	if c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required")
	}
	if c.Activation.MinBatch > c.Activation.MaxBatch {
		return errors.New("activation.min_batch exceeds activation.max_batch")
	}
	for action, r := range c.RateLimit {
		if r.MaxAttempts <= 0 || r.Window <= 0 {
			return fmt.Errorf("rate_limit.%s: max_attempts and window must be positive", action)
		}
	}
	seen := make(map[string]bool, len(c.Products))
	for _, p := range c.Products {
		if p.Slug == "" {
			return errors.New("products: slug is required")
		}
		if seen[p.Slug] {
			return fmt.Errorf("products: duplicate slug %q", p.Slug)
		}
		seen[p.Slug] = true
		if !levels[p.RequiredLevel] {
			return fmt.Errorf("products.%s: invalid required_level %q", p.Slug, p.RequiredLevel)
		}
		if !priceTypes[p.PriceType] {
			return fmt.Errorf("products.%s: invalid price_type %q", p.Slug, p.PriceType)
		}
	}
	return nil
}
