package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	libconfig "chargeway/backend/libs/config"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

var defaultCORSOrigins = []string{
	"http://localhost:3000",
	"http://localhost:5173",
	"http://127.0.0.1:3000",
	"http://127.0.0.1:5173",
}

type HTTPConfig struct {
	Port        string   `yaml:"port" env:"PORT"`
	CORSOrigins []string `yaml:"corsOrigins" env:"CORS_ORIGINS"`
}

type StorageConfig struct {
	Driver string `yaml:"driver" env:"STORAGE_DRIVER"`
}

type DatabaseConfig struct {
	DSN          string        `yaml:"dsn" env:"POSTGRES_DSN"`
	MaxOpenConns int           `yaml:"maxOpenConns" env:"POSTGRES_MAX_OPEN_CONNS"`
	ConnLifetime time.Duration `yaml:"connLifetime" env:"POSTGRES_CONN_LIFETIME"`
}

type RedisConfig struct {
	Addr     string `yaml:"addr" env:"REDIS_ADDR"`
	Password string `yaml:"password" env:"REDIS_PASSWORD"`
	DB       int    `yaml:"db" env:"REDIS_DB"`
}

type SessionConfig struct {
	Secret string        `yaml:"secret" env:"SESSION_SECRET"`
	TTL    time.Duration `yaml:"ttl" env:"SESSION_TTL"`
}

type ChargingConfig struct {
	PerPercentInterval time.Duration `yaml:"perPercentInterval" env:"CHARGING_PER_PERCENT_INTERVAL"`
	TickInterval       time.Duration `yaml:"tickInterval" env:"CHARGING_TICK_INTERVAL"`
	TickTimeout        time.Duration `yaml:"tickTimeout" env:"CHARGING_TICK_TIMEOUT"`
	DrainTick          time.Duration `yaml:"drainTick" env:"BATTERY_DRAIN_TICK"`
	DrainStep          int           `yaml:"drainStep" env:"BATTERY_DRAIN_STEP"`
}

type RateLimitConfig struct {
	Window time.Duration `yaml:"window" env:"RATE_LIMIT_WINDOW"`
	Max    int           `yaml:"max" env:"RATE_LIMIT_MAX"`
}

type EffectsConfig struct {
	Workers   int           `yaml:"workers" env:"EFFECTS_WORKERS"`
	QueueSize int           `yaml:"queueSize" env:"EFFECTS_QUEUE_SIZE"`
	Timeout   time.Duration `yaml:"timeout" env:"EFFECTS_TIMEOUT"`
}

type AdminConfig struct {
	Email    string `yaml:"email" env:"ADMIN_EMAIL"`
	Password string `yaml:"password" env:"ADMIN_PASSWORD"`
	Name     string `yaml:"name" env:"ADMIN_NAME"`
	Region   string `yaml:"region" env:"ADMIN_REGION"`
}

type LogConfig struct {
	Level       string `yaml:"level" env:"LOG_LEVEL"`
	Development bool   `yaml:"development" env:"LOG_DEVELOPMENT"`
}

// Config represents service configuration loaded from YAML/env.
type Config struct {
	Env       string          `yaml:"env" env:"APP_ENV"`
	HTTP      HTTPConfig      `yaml:"http"`
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Session   SessionConfig   `yaml:"session"`
	Charging  ChargingConfig  `yaml:"charging"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`
	Effects   EffectsConfig   `yaml:"effects"`
	Admin     AdminConfig     `yaml:"admin"`
	Log       LogConfig       `yaml:"log"`
}

// Default returns the configuration used when nothing is overridden.
func Default() *Config {
	return &Config{
		Env:     "development",
		HTTP:    HTTPConfig{Port: "5000", CORSOrigins: append([]string(nil), defaultCORSOrigins...)},
		Storage: StorageConfig{Driver: StoragePostgres},
		Redis:   RedisConfig{Addr: "localhost:6379"},
		Session: SessionConfig{TTL: 24 * time.Hour},
		Charging: ChargingConfig{
			PerPercentInterval: 30 * time.Second,
			TickInterval:       5 * time.Second,
			TickTimeout:        10 * time.Second,
			DrainTick:          10 * time.Minute,
			DrainStep:          5,
		},
		RateLimit: RateLimitConfig{Window: time.Minute, Max: 60},
		Effects:   EffectsConfig{Workers: 4, QueueSize: 256, Timeout: 5 * time.Second},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads configuration using the shared config loader.
func Load() (*Config, error) {
	cfg := Default()
	if err := libconfig.LoadConfig(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks required settings and restores defaults for non-positive tunables.
func (c *Config) Validate() error {
	def := Default()

	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	switch c.Storage.Driver {
	case StoragePostgres:
		if strings.TrimSpace(c.Database.DSN) == "" {
			return errors.New("config: database DSN is required")
		}
	case StorageMemory:
	default:
		return fmt.Errorf("config: unknown storage driver %q", c.Storage.Driver)
	}
	if strings.TrimSpace(c.Redis.Addr) == "" {
		return errors.New("config: redis addr is required")
	}
	if c.Session.Secret == "" {
		return errors.New("config: session secret is required")
	}
	if c.IsProduction() && len(c.Session.Secret) < 32 {
		return errors.New("config: session secret must be at least 32 characters in production")
	}

	if c.Session.TTL <= 0 {
		c.Session.TTL = def.Session.TTL
	}
	if c.Charging.PerPercentInterval <= 0 {
		c.Charging.PerPercentInterval = def.Charging.PerPercentInterval
	}
	if c.Charging.TickInterval <= 0 {
		c.Charging.TickInterval = def.Charging.TickInterval
	}
	if c.Charging.TickTimeout <= 0 {
		c.Charging.TickTimeout = def.Charging.TickTimeout
	}
	if c.Charging.DrainTick <= 0 {
		c.Charging.DrainTick = def.Charging.DrainTick
	}
	if c.Charging.DrainStep < 0 {
		return errors.New("config: battery drain step must not be negative")
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = def.RateLimit.Window
	}
	if c.RateLimit.Max <= 0 {
		c.RateLimit.Max = def.RateLimit.Max
	}
	if len(c.HTTP.CORSOrigins) == 0 {
		c.HTTP.CORSOrigins = def.HTTP.CORSOrigins
	}
	return nil
}

// IsProduction reports whether secure cookies are required.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}

// HTTPAddress ensures we always return host:port formatted string.
func (c *Config) HTTPAddress() string {
	port := strings.TrimSpace(c.HTTP.Port)
	if port == "" {
		port = "5000"
	}
	if strings.Contains(port, ":") {
		return port
	}
	return fmt.Sprintf(":%s", port)
}
