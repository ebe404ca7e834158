package middleware

import (
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/surplus-market/internal/authz"
)

// userKey identifies the caller for rate limit and cache keys.  Anonymous
// requests share the "guest" key.
func userKey(c echo.Context) string {
	caller := authz.CallerFrom(c)
	if !caller.Authenticated() {
		return "guest"
	}
	return strconv.FormatUint(caller.UserID, 10)
}

func authzUserID(c echo.Context) uint64 { return authz.CallerFrom(c).UserID }
