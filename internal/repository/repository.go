// Package repository defines the persistence contracts used by the service
// layer and their MySQL implementations.  Every repository method wraps
// driver failures into model.PersistenceError so that callers never see
// raw driver errors; "not found" conditions surface as the matching
// model.ErrNoSuchX sentinel.
package repository

import (
	"context"
	"time"

	"github.com/iliyamo/surplus-market/internal/model"
)

// AccountRepository persists accounts and their seller/customer rows.
type AccountRepository interface {
	// Create inserts the account and its subtype row and assigns a.ID.
	// A duplicate email yields model.ErrAlreadyExists.
	Create(ctx context.Context, a *model.Account) error
	GetByID(ctx context.Context, id uint64) (*model.Account, error)
	GetByEmail(ctx context.Context, email string) (*model.Account, error)
	Exists(ctx context.Context, id uint64) (bool, error)
	// Delete removes the account; subtype rows and dependants cascade.
	Delete(ctx context.Context, id uint64) (bool, error)
	SetStreak(ctx context.Context, customerID uint64, count uint32) error
}

// BundlePatch carries the columns a bundle update may touch.  Nil fields
// are left unchanged; ClearPurchaser sets purchaser_id to NULL.
type BundlePatch struct {
	Status         *model.BundleStatus
	Title          *string
	Details        *string
	RetailPrice    *model.Pence
	PurchaserID    *uint64
	ClearPurchaser bool
}

// Empty reports whether the patch changes nothing.
func (p BundlePatch) Empty() bool {
	return p.Status == nil && p.Title == nil && p.Details == nil &&
		p.RetailPrice == nil && p.PurchaserID == nil && !p.ClearPurchaser
}

// BundleRepository persists bundles and their allergen tags.
type BundleRepository interface {
	// Create inserts b (including allergens) and assigns b.ID.
	Create(ctx context.Context, b *model.Bundle) error
	GetByID(ctx context.Context, id uint64) (*model.Bundle, error)
	// LockByID is GetByID with a row lock; only meaningful inside InTx.
	LockByID(ctx context.Context, id uint64) (*model.Bundle, error)
	Exists(ctx context.Context, id uint64) (bool, error)
	Update(ctx context.Context, id uint64, patch BundlePatch) error
	Delete(ctx context.Context, id uint64) (bool, error)
	Search(ctx context.Context, q model.BundleQuery) ([]model.Bundle, int64, error)
}

// ReservationRepository persists reservations.
type ReservationRepository interface {
	// Create inserts r and assigns r.ID.  An empty ClaimCode is stored as
	// NULL until Update sets it.
	Create(ctx context.Context, r *model.Reservation) error
	GetByID(ctx context.Context, id uint64) (*model.Reservation, error)
	LockByID(ctx context.Context, id uint64) (*model.Reservation, error)
	LockByClaimCode(ctx context.Context, code string) (*model.Reservation, error)
	Exists(ctx context.Context, id uint64) (bool, error)
	// Update saves status and claim code.
	Update(ctx context.Context, r *model.Reservation) error
	Delete(ctx context.Context, id uint64) (bool, error)
	ListByPurchaser(ctx context.Context, purchaserID uint64) ([]model.Reservation, error)
	ListBySeller(ctx context.Context, sellerID uint64) ([]model.Reservation, error)
}

// RBACRepository persists roles, permissions and their associations.
// Add/Remove methods report whether a row was actually inserted/deleted.
type RBACRepository interface {
	CreateRole(ctx context.Context, title string) error
	CreatePermission(ctx context.Context, title string) error
	RoleID(ctx context.Context, title string) (uint64, bool, error)
	PermissionID(ctx context.Context, title string) (uint64, bool, error)
	AddPermissionToRole(ctx context.Context, roleID, permissionID uint64) (bool, error)
	RemovePermissionFromRole(ctx context.Context, roleID, permissionID uint64) (bool, error)
	AddRoleToUser(ctx context.Context, userID, roleID uint64) (bool, error)
	RemoveRoleFromUser(ctx context.Context, userID, roleID uint64) (bool, error)
	RoleHasPermission(ctx context.Context, roleID, permissionID uint64) (bool, error)
	UserHasRole(ctx context.Context, userID, roleID uint64) (bool, error)
	UserHasPermission(ctx context.Context, userID, permissionID uint64) (bool, error)
	PermissionsForUser(ctx context.Context, userID uint64) ([]string, error)
}

// StreakRepository persists customer streaks.
type StreakRepository interface {
	// Create inserts s; a second streak for one customer yields
	// model.ErrAlreadyExists.
	Create(ctx context.Context, s *model.Streak) error
	GetByCustomer(ctx context.Context, customerID uint64) (*model.Streak, error)
	Update(ctx context.Context, s *model.Streak) error
}

// TokenRepository persists hashed refresh tokens.
type TokenRepository interface {
	StoreRefresh(ctx context.Context, accountID uint64, tokenHash string, exp time.Time) error
	// ValidateRefresh returns the owning account or model.ErrUnauthenticated
	// for unknown, revoked or expired tokens.
	ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error)
	RevokeByHash(ctx context.Context, tokenHash string) error
	RevokeAllForAccount(ctx context.Context, accountID uint64) error
}

// Repositories groups the repositories sharing one connection or
// transaction.
type Repositories interface {
	Accounts() AccountRepository
	Bundles() BundleRepository
	Reservations() ReservationRepository
	RBAC() RBACRepository
	Streaks() StreakRepository
	Tokens() TokenRepository
}

// Store is the unit of work used by services.  InTx runs fn against
// repositories bound to a single transaction: fn's writes all commit or
// all roll back.
type Store interface {
	Repositories
	InTx(ctx context.Context, fn func(Repositories) error) error
	Ping(ctx context.Context) error
}
