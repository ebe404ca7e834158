package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/surplus-market/internal/authz"
	"github.com/iliyamo/surplus-market/internal/handler"
	"github.com/iliyamo/surplus-market/internal/middleware"
	"github.com/iliyamo/surplus-market/internal/model"
)

// RegisterReservations registers reservation endpoints under
// /v1/reservations.  Customers reserve and cancel; sellers claim, mark
// no-shows and cancel.  The handlers resolve ownership per reservation.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string) {
	g := e.Group("/v1/reservations", middleware.JWTAuth(jwtSecret))
	g.POST("", h.Create)
	g.GET("", h.List)
	g.POST("/claim", h.Claim)
	g.GET("/:id", h.Get)
	g.POST("/:id/cancel", h.Cancel)
	g.POST("/:id/no-show", h.NoShow)
}

// RegisterStreak registers the customer streak endpoints.
func RegisterStreak(e *echo.Echo, h *handler.StreakHandler, gate *authz.Gate, jwtSecret string) {
	g := e.Group("/v1/streak", middleware.JWTAuth(jwtSecret))
	g.POST("", h.Create, authz.RequirePermission(gate, model.PermStreakCreate))
	g.GET("", h.Get, authz.RequirePermission(gate, model.PermStreakView))
}
