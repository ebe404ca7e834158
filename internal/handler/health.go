package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by repository.Store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler reports whether the store and Redis are reachable.  Redis
// is optional: when it is not configured it reports "disabled" and never
// fails the check.
type HealthHandler struct {
	Store Pinger
	Redis *redis.Client
}

func NewHealthHandler(store Pinger, rdb *redis.Client) *HealthHandler {
	return &HealthHandler{Store: store, Redis: rdb}
}

// Health is used by load balancers and monitoring.  It returns 200 when
// the store answers and 503 otherwise.
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()

	status, code := "ok", http.StatusOK
	db := "ok"
	if err := h.Store.Ping(ctx); err != nil {
		db, status, code = "down", "degraded", http.StatusServiceUnavailable
	}
	cache := "disabled"
	if h.Redis != nil {
		cache = "ok"
		if err := h.Redis.Ping(ctx).Err(); err != nil {
			cache = "down"
		}
	}
	return c.JSON(code, echo.Map{"status": status, "db": db, "redis": cache})
}
