// Package authz is the authorization gate placed in front of every
// state-mutating operation.  A request is checked in a fixed order:
// authenticated, then permitted, then owner of the target resource.
package authz

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/metrics"
	"github.com/iliyamo/surplus-market/internal/model"
)

// Caller is the explicit authentication context of a request.  The zero
// value is an anonymous caller.
type Caller struct {
	UserID uint64
	Kind   model.AccountKind
}

// Authenticated reports whether the caller carries an identity.
func (c Caller) Authenticated() bool { return c.UserID != 0 }

// PermissionChecker answers whether a user holds a permission.
// *service.RBACManager implements it.
type PermissionChecker interface {
	IsUserPermitted(ctx context.Context, userID uint64, permission string) (bool, error)
}

// OwnerResolver returns the user ID that owns the target resource.  It is
// only invoked once the caller is authenticated and permitted.
type OwnerResolver func(ctx context.Context) (uint64, error)

// Gate enforces authentication, permission and ownership.
type Gate struct {
	perms  PermissionChecker
	logger zerolog.Logger
}

func NewGate(perms PermissionChecker, logger zerolog.Logger) *Gate {
	return &Gate{perms: perms, logger: logger}
}

// Authorize runs the three checks in order and returns the first failure:
// model.ErrUnauthenticated, model.ErrForbidden or
// model.ErrOwnershipViolation.  A nil owner skips the ownership check.
// Errors raised by owner (e.g. model.ErrNoSuchBundle) are returned as is.
func (g *Gate) Authorize(ctx context.Context, caller Caller, permission string, owner OwnerResolver) error {
	err := g.authorize(ctx, caller, permission, owner)
	metrics.AuthorizationDecisionsTotal.WithLabelValues(permission, outcome(err)).Inc()
	if err != nil && !model.IsDomainError(err) {
		g.logger.Error().Err(err).Uint64("user_id", caller.UserID).Str("permission", permission).Msg("authorization check failed")
	}
	return err
}

func (g *Gate) authorize(ctx context.Context, caller Caller, permission string, owner OwnerResolver) error {
	if !caller.Authenticated() {
		return model.ErrUnauthenticated
	}
	ok, err := g.perms.IsUserPermitted(ctx, caller.UserID, permission)
	if errors.Is(err, model.ErrNoSuchAccount) {
		// The token outlived its account.
		return model.ErrUnauthenticated
	}
	if err != nil {
		return err
	}
	if !ok {
		return model.ErrForbidden
	}
	if owner == nil {
		return nil
	}
	ownerID, err := owner(ctx)
	if err != nil {
		return err
	}
	if ownerID != caller.UserID {
		return model.ErrOwnershipViolation
	}
	return nil
}

func outcome(err error) string {
	switch {
	case err == nil:
		return "allowed"
	case errors.Is(err, model.ErrUnauthenticated):
		return "unauthenticated"
	case errors.Is(err, model.ErrForbidden):
		return "forbidden"
	case errors.Is(err, model.ErrOwnershipViolation):
		return "ownership"
	default:
		return "error"
	}
}
