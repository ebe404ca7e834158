package config

import (
	"context"
	"testing"
	"time"

	"github.com/sethvargo/go-envconfig"
)

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "s3cret",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Port != "8080" || cfg.DB.Driver != "mysql" || cfg.BcryptCost != 10 {
		t.Errorf("unexpected defaults: %+v", cfg)
	}
	if cfg.AMQP.Queue != "reservation.events" {
		t.Errorf("expected default queue, got %q", cfg.AMQP.Queue)
	}
	if !cfg.Cache.Caches("GET") || cfg.Cache.Caches("POST") {
		t.Errorf("expected only GET to be cached, got %v", cfg.Cache.Methods)
	}
	if cfg.RateLimit.Capacity != 60 || cfg.RateLimit.RefillInterval != time.Second {
		t.Errorf("unexpected rate limit: %+v", cfg.RateLimit)
	}
}

func TestLoadWithRequiresSecret(t *testing.T) {
	if _, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{})); err == nil {
		t.Fatal("expected error when JWT_SECRET is missing")
	}
}

func TestLoadWithRejectsUnknownDriver(t *testing.T) {
	_, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET": "x",
		"DB_DRIVER":  "mongo",
	}))
	if err == nil {
		t.Fatal("expected error for unsupported driver")
	}
}

func TestRateLimitShorthands(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":              "x",
		"RATE_LIMIT_BURST":        "5",
		"RATE_LIMIT_REFILL_EVERY": "2s",
		"RATE_LIMIT_TTL":          "1s",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rl := cfg.RateLimit
	if rl.Capacity != 5 || rl.RefillTokens != 1 || rl.RefillInterval != 2*time.Second {
		t.Errorf("shorthands not applied: %+v", rl)
	}
	if rl.TTL != 10*time.Second {
		t.Errorf("expected TTL raised to 10s, got %s", rl.TTL)
	}
}

func TestRedisAddress(t *testing.T) {
	if got := (RedisConfig{Addr: "a:1"}).Address(); got != "a:1" {
		t.Errorf("got %q", got)
	}
	if got := (RedisConfig{Addr: "a:1", Host: "h", Port: "2"}).Address(); got != "h:2" {
		t.Errorf("got %q", got)
	}
}

func TestCacheMethodsNormalised(t *testing.T) {
	cfg, err := LoadWith(context.Background(), envconfig.MapLookuper(map[string]string{
		"JWT_SECRET":    "x",
		"CACHE_METHODS": "get, head",
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !cfg.Cache.Caches("GET") || !cfg.Cache.Caches("HEAD") {
		t.Errorf("expected GET and HEAD, got %v", cfg.Cache.Methods)
	}
}
