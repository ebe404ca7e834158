package model

import (
	"errors"
	"fmt"
)

// The sentinel values below form the error taxonomy shared by the
// repository, service and handler layers.  Handlers translate them into
// HTTP status codes; everything else propagates them unmodified.
var (
	// ErrMissingValues is returned when a required input is absent or empty.
	ErrMissingValues = errors.New("missing values")
	// ErrInvalidArgument is returned for malformed or disallowed fields.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrTitleTooLong is returned when a role or permission title exceeds
	// MaxTitleLength characters.
	ErrTitleTooLong = errors.New("title too long")

	ErrNoSuchBundle      = errors.New("no such bundle")
	ErrNoSuchReservation = errors.New("no such reservation")
	ErrNoSuchAccount     = errors.New("no such account")
	ErrNoSuchSeller      = errors.New("no such seller")
	ErrNoSuchCustomer    = errors.New("no such customer")
	ErrNoSuchRole        = errors.New("no such role")
	ErrNoSuchPermission  = errors.New("no such permission")
	ErrNoSuchStreak      = errors.New("no such streak")

	// ErrUnauthenticated means no valid caller identity was supplied.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrForbidden means the caller lacks the required permission.
	ErrForbidden = errors.New("forbidden")
	// ErrOwnershipViolation means the caller does not own the resource.
	ErrOwnershipViolation = errors.New("ownership violation")

	// ErrInvalidClaimCode is returned when a claim code matches no reservation.
	ErrInvalidClaimCode = errors.New("invalid claim code")
	// ErrAlreadyExists is returned for a duplicate unique resource.
	ErrAlreadyExists = errors.New("already exists")
	// ErrConflict signals that the current state of a resource prevents the
	// operation, e.g. reserving a bundle that is no longer available.
	ErrConflict = errors.New("conflict")
	// ErrInvalidTransition is returned when a status change is not allowed
	// by the state machine.
	ErrInvalidTransition = errors.New("invalid status transition")
	// ErrInvalidCredentials is returned by login for a bad email/password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrPersistence is matched by every PersistenceError.
	ErrPersistence = errors.New("persistence failure")
)

// PersistenceError wraps an underlying store error.  Callers match it with
// errors.Is(err, ErrPersistence); the driver error stays reachable through
// Unwrap for logging but its text is never rendered to clients.
type PersistenceError struct {
	Op  string
	Err error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrPersistence, e.Op, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }

// Is reports whether target is ErrPersistence.
func (e *PersistenceError) Is(target error) bool { return target == ErrPersistence }

// Persistence wraps err as a PersistenceError for operation op.  A nil err
// yields nil and errors already in the taxonomy pass through unchanged.
func Persistence(op string, err error) error {
	if err == nil {
		return nil
	}
	if IsDomainError(err) {
		return err
	}
	return &PersistenceError{Op: op, Err: err}
}

// IsDomainError reports whether err already belongs to the taxonomy above.
func IsDomainError(err error) bool {
	for _, target := range []error{
		ErrMissingValues, ErrInvalidArgument, ErrTitleTooLong,
		ErrNoSuchBundle, ErrNoSuchReservation, ErrNoSuchAccount, ErrNoSuchSeller,
		ErrNoSuchCustomer, ErrNoSuchRole, ErrNoSuchPermission, ErrNoSuchStreak,
		ErrUnauthenticated, ErrForbidden, ErrOwnershipViolation,
		ErrInvalidClaimCode, ErrAlreadyExists, ErrConflict, ErrInvalidTransition,
		ErrInvalidCredentials, ErrPersistence,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
