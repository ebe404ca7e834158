package config

import (
	"strings"
	"time"
)

// CacheConfig defines settings for the response cache middleware.
// When Enabled is false or no Redis client is configured, caching will be disabled.
// Methods lists the HTTP methods to cache (e.g. GET, HEAD).  TTL defines the
// lifetime of cache entries.  KeyStrategy determines which parts of the request
// contribute to the cache key.  Prefix and MaxBodyBytes allow control over
// namespacing and the maximum size of responses to cache.
type CacheConfig struct {
	Enabled      bool          `env:"CACHE_ENABLED,default=true"`
	Methods      []string      `env:"CACHE_METHODS,default=GET"`
	TTL          time.Duration `env:"CACHE_TTL,default=30s"`
	KeyStrategy  string        `env:"CACHE_KEY_STRATEGY,default=route_query"`
	Prefix       string        `env:"CACHE_PREFIX,default=cache"`
	MaxBodyBytes int           `env:"CACHE_MAX_BODY_BYTES,default=1048576"`
}

func (c *CacheConfig) normalize() {
	methods := make([]string, 0, len(c.Methods))
	for _, m := range c.Methods {
		if m = strings.ToUpper(strings.TrimSpace(m)); m != "" {
			methods = append(methods, m)
		}
	}
	c.Methods = methods
	if c.TTL <= 0 {
		c.TTL = time.Second
	}
}

// Caches reports whether responses to method are cacheable.
func (c CacheConfig) Caches(method string) bool {
	for _, m := range c.Methods {
		if m == method {
			return true
		}
	}
	return false
}
