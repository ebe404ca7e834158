package model

import (
	"fmt"
	"strings"
	"time"
)

// ReservationStatus is the lifecycle state of a reservation.  Only
// ReservationActive is non-terminal.
type ReservationStatus string

const (
	ReservationActive    ReservationStatus = "active"
	ReservationCompleted ReservationStatus = "completed"
	ReservationNoShow    ReservationStatus = "no-show"
	ReservationCancelled ReservationStatus = "cancelled"
)

// ParseReservationStatus validates a status string.
func ParseReservationStatus(s string) (ReservationStatus, error) {
	switch st := ReservationStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case ReservationActive, ReservationCompleted, ReservationNoShow, ReservationCancelled:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown reservation status %q", ErrInvalidArgument, s)
}

// CanTransitionTo reports whether s -> next is allowed.
func (s ReservationStatus) CanTransitionTo(next ReservationStatus) bool {
	switch s {
	case ReservationActive:
		switch next {
		case ReservationCompleted, ReservationNoShow, ReservationCancelled:
			return true
		}
	case ReservationCompleted, ReservationNoShow, ReservationCancelled:
		return false
	}
	return false
}

// ClaimCodeLength is the number of hex characters kept from the digest.
const ClaimCodeLength = 16

// Reservation records a customer's claim on a bundle.  It represents a
// row in the `reservation` table.
//
// Fields:
//
//	ID          – primary key.
//	BundleID    – reserved bundle.
//	PurchaserID – customer who made the reservation.
//	Status      – lifecycle state (active, completed, no-show, cancelled).
//	ClaimCode   – 16 character shared secret presented at pickup.
//	CreatedAt   – creation timestamp.
//	UpdatedAt   – last update timestamp.
type Reservation struct {
	ID          uint64            // reservation.id
	BundleID    uint64            // reservation.bundle_id
	PurchaserID uint64            // reservation.purchaser_id
	Status      ReservationStatus // reservation.status
	ClaimCode   string            // reservation.claim_code
	CreatedAt   time.Time         // reservation.created_at
	UpdatedAt   time.Time         // reservation.updated_at
}

// ReservationRole selects the perspective used when listing reservations.
type ReservationRole string

const (
	RoleBuyer  ReservationRole = "buyer"
	RoleSeller ReservationRole = "seller"
)

// ParseReservationRole accepts "buyer" or "seller".
func ParseReservationRole(s string) (ReservationRole, error) {
	switch r := ReservationRole(s); r {
	case RoleBuyer, RoleSeller:
		return r, nil
	}
	return "", fmt.Errorf("%w: role must be buyer or seller, got %q", ErrInvalidArgument, s)
}
