package model

import (
	"fmt"
	"strings"
	"time"
)

// AccountKind discriminates the Account variant.  It is fixed when the
// account is created and never changes afterwards.
type AccountKind string

const (
	KindSeller   AccountKind = "seller"
	KindCustomer AccountKind = "customer"
)

// ParseAccountKind validates a kind coming from a request or a row.
func ParseAccountKind(s string) (AccountKind, error) {
	switch k := AccountKind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindSeller, KindCustomer:
		return k, nil
	}
	return "", fmt.Errorf("%w: unknown account kind %q", ErrInvalidArgument, s)
}

// Account represents a row in the `account` table together with the
// matching subtype row.  Exactly one of Seller or Customer is set and it
// must agree with Kind.
//
// Fields:
//
//	ID           – primary key, assigned on creation.
//	Email        – unique, stored lower-case.
//	PasswordHash – bcrypt hash of the password.
//	Kind         – seller or customer.
//	CreatedAt    – creation timestamp.
type Account struct {
	ID           uint64           // account.id
	Email        string           // account.email
	PasswordHash string           // account.password_hash
	Kind         AccountKind      // account.kind
	CreatedAt    time.Time        // account.created_at
	Seller       *SellerDetails   // seller row when Kind == KindSeller
	Customer     *CustomerDetails // customer row when Kind == KindCustomer
}

// SellerDetails mirrors the `seller` table.
type SellerDetails struct {
	DisplayName string // seller.display_name
	Address     string // seller.address
}

// CustomerDetails mirrors the `customer` table.  Streak is the current
// count of consecutive collected reservations.
type CustomerDetails struct {
	Username string // customer.username
	Streak   uint32 // customer.streak
}

// Validate checks that the variant payload matches the discriminant.
func (a Account) Validate() error {
	if strings.TrimSpace(a.Email) == "" || a.PasswordHash == "" {
		return ErrMissingValues
	}
	switch a.Kind {
	case KindSeller:
		if a.Seller == nil || a.Customer != nil {
			return fmt.Errorf("%w: seller account needs seller details only", ErrInvalidArgument)
		}
		if strings.TrimSpace(a.Seller.DisplayName) == "" || strings.TrimSpace(a.Seller.Address) == "" {
			return ErrMissingValues
		}
	case KindCustomer:
		if a.Customer == nil || a.Seller != nil {
			return fmt.Errorf("%w: customer account needs customer details only", ErrInvalidArgument)
		}
		if strings.TrimSpace(a.Customer.Username) == "" {
			return ErrMissingValues
		}
	default:
		return fmt.Errorf("%w: unknown account kind %q", ErrInvalidArgument, a.Kind)
	}
	return nil
}

// IsSeller reports whether the account is the seller variant.
func (a Account) IsSeller() bool { return a.Kind == KindSeller }

// IsCustomer reports whether the account is the customer variant.
func (a Account) IsCustomer() bool { return a.Kind == KindCustomer }
