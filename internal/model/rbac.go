package model

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Role represents a row in `rbac_roles`.
type Role struct {
	ID    uint64 // rbac_roles.id
	Title string // rbac_roles.title
}

// Permission represents a row in `rbac_permissions`.
type Permission struct {
	ID    uint64 // rbac_permissions.id
	Title string // rbac_permissions.title
}

// ValidateRBACTitle trims the title and rejects empty or overlong values.
func ValidateRBACTitle(title string) (string, error) {
	t := strings.TrimSpace(title)
	if t == "" {
		return "", ErrMissingValues
	}
	if utf8.RuneCountInString(t) > MaxTitleLength {
		return "", fmt.Errorf("%w: %d characters max", ErrTitleTooLong, MaxTitleLength)
	}
	return t, nil
}

// Permission titles checked by the authorization gate.
const (
	PermBundleCreate          = "bundle.create"
	PermBundleUpdate          = "bundle.update"
	PermBundleDelete          = "bundle.delete"
	PermReservationCreate     = "reservation.create"
	PermReservationCancel     = "reservation.cancel"
	PermReservationClaim      = "reservation.claim"
	PermReservationNoShow     = "reservation.no_show"
	PermReservationViewBuyer  = "reservation.view_buyer"
	PermReservationViewSeller = "reservation.view_seller"
	PermStreakCreate          = "streak.create"
	PermStreakView            = "streak.view"
)

// DefaultRoles maps each account kind's role title to its permissions.
// Registration assigns the role named after the account kind.
var DefaultRoles = map[string][]string{
	string(KindSeller): {
		PermBundleCreate, PermBundleUpdate, PermBundleDelete,
		PermReservationClaim, PermReservationNoShow, PermReservationViewSeller,
		PermReservationCancel,
	},
	string(KindCustomer): {
		PermReservationCreate, PermReservationCancel, PermReservationViewBuyer,
		PermStreakCreate, PermStreakView,
	},
}
