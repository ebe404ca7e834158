package handler

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/model"
)

// errorResponse is the error envelope of every API error.
type errorResponse struct {
	Error string `json:"error"`
}

// NewHTTPErrorHandler returns an echo.HTTPErrorHandler that maps the
// model error taxonomy to HTTP status codes.  Persistence failures and
// unknown errors are logged and rendered as a generic 500 so driver
// details never reach the client.
func NewHTTPErrorHandler(log zerolog.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := resolveError(err, log, c)
		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, errorResponse{Error: msg})
	}
}

func resolveError(err error, log zerolog.Logger, c echo.Context) (int, string) {
	// Echo's own errors: bind failures, unknown routes, 405s.
	var he *echo.HTTPError
	if errors.As(err, &he) {
		return he.Code, fmt.Sprintf("%v", he.Message)
	}

	if code := StatusFor(err); code != http.StatusInternalServerError {
		return code, err.Error()
	}

	log.Error().
		Err(err).
		Str("method", c.Request().Method).
		Str("path", c.Path()).
		Msg("unhandled error")
	return http.StatusInternalServerError, "internal server error"
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrPersistence):
		return http.StatusInternalServerError
	case errors.Is(err, model.ErrMissingValues),
		errors.Is(err, model.ErrInvalidArgument),
		errors.Is(err, model.ErrTitleTooLong),
		errors.Is(err, model.ErrInvalidClaimCode):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthenticated),
		errors.Is(err, model.ErrInvalidCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrForbidden),
		errors.Is(err, model.ErrOwnershipViolation):
		return http.StatusForbidden
	case errors.Is(err, model.ErrNoSuchBundle),
		errors.Is(err, model.ErrNoSuchReservation),
		errors.Is(err, model.ErrNoSuchAccount),
		errors.Is(err, model.ErrNoSuchSeller),
		errors.Is(err, model.ErrNoSuchCustomer),
		errors.Is(err, model.ErrNoSuchRole),
		errors.Is(err, model.ErrNoSuchPermission),
		errors.Is(err, model.ErrNoSuchStreak):
		return http.StatusNotFound
	case errors.Is(err, model.ErrConflict),
		errors.Is(err, model.ErrAlreadyExists),
		errors.Is(err, model.ErrInvalidTransition):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}
