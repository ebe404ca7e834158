package authz

import (
	"github.com/labstack/echo/v4"
)

const callerKey = "caller"

// SetCaller stores the authenticated caller on the echo context.
func SetCaller(c echo.Context, caller Caller) { c.Set(callerKey, caller) }

// CallerFrom returns the caller stored by SetCaller, or the anonymous
// caller when none was set.
func CallerFrom(c echo.Context) Caller {
	caller, _ := c.Get(callerKey).(Caller)
	return caller
}

// RequirePermission runs the authentication and permission checks for a
// route or group.  Handlers still resolve ownership themselves through
// Gate.Authorize once they know the target resource.
func RequirePermission(g *Gate, permission string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if err := g.Authorize(c.Request().Context(), CallerFrom(c), permission, nil); err != nil {
				return err
			}
			return next(c)
		}
	}
}
