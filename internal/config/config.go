// Package config loads application configuration from environment
// variables (optionally seeded from a .env file).
package config

import (
	"context"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
)

// Config holds all runtime configuration values.  Each leaf field maps to
// an environment variable through its env tag.
type Config struct {
	Env       string `env:"APP_ENV,default=development"`
	Port      string `env:"APP_PORT,default=8080"`
	LogLevel  string `env:"LOG_LEVEL,default=info"`
	LogPretty bool   `env:"LOG_PRETTY,default=false"`

	JWTSecret      string `env:"JWT_SECRET,required"`
	AccessTTLMin   int    `env:"ACCESS_TOKEN_TTL_MIN,default=15"`
	RefreshTTLDays int    `env:"REFRESH_TOKEN_TTL_DAYS,default=7"`
	BcryptCost     int    `env:"BCRYPT_COST,default=10"`

	DB        DBConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Cache     CacheConfig
	AMQP      AMQPConfig
}

// DBConfig selects and configures the store.  Driver "memory" runs the
// server without MySQL.
type DBConfig struct {
	Driver  string `env:"DB_DRIVER,default=mysql"`
	User    string `env:"DB_USER,default=root"`
	Pass    string `env:"DB_PASS"`
	Host    string `env:"DB_HOST,default=127.0.0.1"`
	Port    string `env:"DB_PORT,default=3306"`
	Name    string `env:"DB_NAME,default=surplus"`
	Migrate bool   `env:"DB_MIGRATE,default=true"`
}

// AMQPConfig configures the reservation event publisher and the audit
// consumer.  An empty URL disables both.
type AMQPConfig struct {
	URL          string `env:"RABBITMQ_URL"`
	Queue        string `env:"RABBITMQ_QUEUE,default=reservation.events"`
	AuditLogPath string `env:"AUDIT_LOG_PATH,default=logs/reservations.log"`
	Consume      bool   `env:"RABBITMQ_CONSUME,default=true"`
}

// Load reads .env (when present) and then the process environment.
func Load(ctx context.Context) (Config, error) {
	_ = godotenv.Load()
	return LoadWith(ctx, envconfig.OsLookuper())
}

// LoadWith reads configuration from l and normalises it.
func LoadWith(ctx context.Context, l envconfig.Lookuper) (Config, error) {
	var cfg Config
	if err := envconfig.ProcessWith(ctx, &envconfig.Config{Target: &cfg, Lookuper: l}); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	cfg.DB.Driver = strings.ToLower(strings.TrimSpace(cfg.DB.Driver))
	if cfg.DB.Driver != "mysql" && cfg.DB.Driver != "memory" {
		return Config{}, fmt.Errorf("config: unsupported DB_DRIVER %q", cfg.DB.Driver)
	}
	cfg.RateLimit.normalize()
	cfg.Cache.normalize()
	return cfg, nil
}
