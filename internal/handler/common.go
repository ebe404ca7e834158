package handler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/surplus-market/internal/model"
)

// requestTimeout bounds the store work of a single request.
const requestTimeout = 5 * time.Second

// CachePurger drops cached GET responses after a write.
// *middleware.CachePurger implements it.
type CachePurger interface {
	Purge(ctx context.Context)
}

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// bindAndValidate decodes the body into req and runs the validator.
func bindAndValidate(c echo.Context, req any) error {
	if err := c.Bind(req); err != nil {
		return fmt.Errorf("%w: invalid body", model.ErrInvalidArgument)
	}
	return c.Validate(req)
}

func pathID(c echo.Context, name string) (uint64, error) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", model.ErrInvalidArgument, name)
	}
	return id, nil
}

func purge(ctx context.Context, p CachePurger) {
	if p != nil {
		p.Purge(context.WithoutCancel(ctx))
	}
}

type bundleResp struct {
	ID              uint64    `json:"id"`
	Status          string    `json:"status"`
	Title           string    `json:"title"`
	Details         string    `json:"details"`
	RetailPrice     string    `json:"retail_price"`
	DiscountedPrice string    `json:"discounted_price"`
	SellerID        uint64    `json:"seller_id"`
	PurchaserID     *uint64   `json:"purchaser_id"`
	Allergens       []string  `json:"allergens"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func toBundleResp(b *model.Bundle) bundleResp {
	allergens := b.Allergens
	if allergens == nil {
		allergens = []string{}
	}
	return bundleResp{
		ID:              b.ID,
		Status:          string(b.Status),
		Title:           b.Title,
		Details:         b.Details,
		RetailPrice:     b.RetailPrice.String(),
		DiscountedPrice: b.DiscountedPrice.String(),
		SellerID:        b.SellerID,
		PurchaserID:     b.PurchaserID,
		Allergens:       allergens,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
}

type reservationResp struct {
	ID          uint64    `json:"id"`
	BundleID    uint64    `json:"bundle_id"`
	PurchaserID uint64    `json:"purchaser_id"`
	Status      string    `json:"status"`
	ClaimCode   string    `json:"claim_code,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// toReservationResp shows the claim code to the purchaser only; the
// seller learns it at pickup.
func toReservationResp(r *model.Reservation, viewerID uint64) reservationResp {
	out := reservationResp{
		ID:          r.ID,
		BundleID:    r.BundleID,
		PurchaserID: r.PurchaserID,
		Status:      string(r.Status),
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
	if viewerID == r.PurchaserID {
		out.ClaimCode = r.ClaimCode
	}
	return out
}
