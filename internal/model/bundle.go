package model

import (
	"fmt"
	"sort"
	"strings"
	"time"
	"unicode/utf8"
)

// MaxTitleLength bounds bundle, role and permission titles (characters).
const MaxTitleLength = 128

// BundleStatus is the lifecycle state of a bundle.
type BundleStatus string

const (
	BundleAvailable BundleStatus = "available"
	BundleReserved  BundleStatus = "reserved"
	BundleCollected BundleStatus = "collected"
	BundleCancelled BundleStatus = "cancelled"
	BundleExpired   BundleStatus = "expired"
)

// ParseBundleStatus validates a status string.
func ParseBundleStatus(s string) (BundleStatus, error) {
	switch st := BundleStatus(strings.ToLower(strings.TrimSpace(s))); st {
	case BundleAvailable, BundleReserved, BundleCollected, BundleCancelled, BundleExpired:
		return st, nil
	}
	return "", fmt.Errorf("%w: unknown bundle status %q", ErrInvalidArgument, s)
}

// CanTransitionTo reports whether the state machine allows s -> next.
// reserved -> available exists only for reservation cancellation.
func (s BundleStatus) CanTransitionTo(next BundleStatus) bool {
	switch s {
	case BundleAvailable:
		switch next {
		case BundleReserved, BundleCancelled, BundleExpired:
			return true
		}
	case BundleReserved:
		switch next {
		case BundleCollected, BundleCancelled, BundleExpired, BundleAvailable:
			return true
		}
	case BundleCollected, BundleCancelled, BundleExpired:
		return false
	}
	return false
}

// ReservationDriven reports whether s -> next may only happen as part of a
// reservation operation (reserve, collect, release).  Direct bundle
// updates must not perform these.
func (s BundleStatus) ReservationDriven(next BundleStatus) bool {
	switch next {
	case BundleReserved, BundleCollected:
		return true
	case BundleAvailable:
		return s == BundleReserved
	case BundleCancelled, BundleExpired:
		return s == BundleReserved
	}
	return false
}

// Bundle represents a row in the `bundle` table: a seller's discounted
// surplus-food listing.  Prices are minor units; DiscountedPrice must be
// strictly below RetailPrice (enforced by a CHECK constraint).
//
// Fields:
//
//	ID              – primary key.
//	Status          – lifecycle state.
//	Title           – at most MaxTitleLength characters.
//	Details         – free text.
//	RetailPrice     – recommended retail price.
//	DiscountedPrice – price charged.
//	SellerID        – owning seller.
//	PurchaserID     – customer holding the bundle (nil until reserved).
//	Allergens       – sorted, de-duplicated lower-case tags.
type Bundle struct {
	ID              uint64       // bundle.id
	Status          BundleStatus // bundle.status
	Title           string       // bundle.title
	Details         string       // bundle.details
	RetailPrice     Pence        // bundle.rrp
	DiscountedPrice Pence        // bundle.discounted_price
	SellerID        uint64       // bundle.seller_id
	PurchaserID     *uint64      // bundle.purchaser_id (nullable)
	Allergens       []string     // bundle_allergen rows
	CreatedAt       time.Time    // bundle.created_at
	UpdatedAt       time.Time    // bundle.updated_at
}

// ValidateTitle enforces the non-empty and length rules shared by bundle
// titles.  Length is counted in characters.
func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return ErrMissingValues
	}
	if utf8.RuneCountInString(title) > MaxTitleLength {
		return fmt.Errorf("%w: title exceeds %d characters", ErrInvalidArgument, MaxTitleLength)
	}
	return nil
}

// NormalizeAllergens lower-cases, trims, de-duplicates and sorts tags.
func NormalizeAllergens(tags []string) []string {
	seen := make(map[string]struct{}, len(tags))
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// BundleQuery holds the filters accepted by bundle search.
type BundleQuery struct {
	Title            string         // substring match, case-insensitive
	Statuses         []BundleStatus // empty means available only
	SellerID         uint64         // 0 means any seller
	MaxPrice         Pence          // 0 means no limit
	ExcludeAllergens []string       // bundles carrying any of these are skipped
	Page             int            // 1-based
	PageSize         int            // capped by the registry
}
