package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/surplus-market/internal/handler"
	"github.com/iliyamo/surplus-market/internal/middleware"
)

// RegisterBundles registers the bundle endpoints.  Browsing is public and
// goes through the response cache; listing, editing and deleting require
// a valid JWT, and the handlers run the authorization gate with the
// matching bundle permission and ownership check.
func RegisterBundles(e *echo.Echo, h *handler.BundleHandler, jwtSecret string, cache echo.MiddlewareFunc) {
	public := e.Group("/v1/bundles", cache)
	public.GET("", h.Search)
	public.GET("/:id", h.Get)

	g := e.Group("/v1/bundles", middleware.JWTAuth(jwtSecret))
	g.POST("", h.Create)
	g.PATCH("/:id", h.Update)
	g.DELETE("/:id", h.Delete)
}
