package middleware // reusable HTTP middleware for the marketplace API

import (
	"strings" // prefix checking and trimming of the Authorization header

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware

	"github.com/iliyamo/surplus-market/internal/authz"
	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/utils"
)

// JWTAuth returns an Echo middleware that validates a Bearer access token
// and stores the resulting authz.Caller on the context.  Requests without
// a valid token fail with model.ErrUnauthenticated, which the error
// handler renders as 401.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			caller, ok := callerFromHeader(secret, c)
			if !ok {
				return model.ErrUnauthenticated
			}
			authz.SetCaller(c, caller)
			return next(c)
		}
	}
}

// OptionalJWT is JWTAuth for public routes: a valid token sets the caller,
// anything else leaves the request anonymous.
func OptionalJWT(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if caller, ok := callerFromHeader(secret, c); ok {
				authz.SetCaller(c, caller)
			}
			return next(c)
		}
	}
}

func callerFromHeader(secret string, c echo.Context) (authz.Caller, bool) {
	// A valid header looks like "Bearer <jwt>".
	auth := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(auth, "Bearer ") {
		return authz.Caller{}, false
	}
	claims, err := utils.ParseAccessToken(secret, strings.TrimPrefix(auth, "Bearer "))
	if err != nil {
		return authz.Caller{}, false
	}
	id, err := claims.AccountID()
	if err != nil || id == 0 {
		return authz.Caller{}, false
	}
	kind, err := model.ParseAccountKind(claims.Kind)
	if err != nil {
		return authz.Caller{}, false
	}
	return authz.Caller{UserID: id, Kind: kind}, true
}
