package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/surplus-market/internal/authz"
	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/service"
)

// StreakHandler lets customers start and read their own pickup streak.
// The router guards both routes with authz.RequirePermission; a streak is
// always the caller's, so there is no ownership check.
type StreakHandler struct {
	Streaks *service.StreakService
}

func NewStreakHandler(s *service.StreakService) *StreakHandler {
	return &StreakHandler{Streaks: s}
}

type streakResp struct {
	ID              uint64     `json:"id"`
	CustomerID      uint64     `json:"customer_id"`
	Count           uint32     `json:"count"`
	Status          string     `json:"status"`
	LastCollectedAt *time.Time `json:"last_collected_at"`
	CreatedAt       time.Time  `json:"created_at"`
}

func toStreakResp(s *model.Streak) streakResp {
	return streakResp{
		ID:              s.ID,
		CustomerID:      s.CustomerID,
		Count:           s.Count,
		Status:          string(s.Status),
		LastCollectedAt: s.LastCollectedAt,
		CreatedAt:       s.CreatedAt,
	}
}

func (h *StreakHandler) Create(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Streaks.Create(ctx, authz.CallerFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusCreated, toStreakResp(s))
}

func (h *StreakHandler) Get(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	s, err := h.Streaks.Get(ctx, authz.CallerFrom(c).UserID)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toStreakResp(s))
}
