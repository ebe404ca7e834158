package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/surplus-market/internal/authz"
	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/service"
)

// ReservationHandler serves reservation endpoints for both customers
// (reserve, cancel, list as buyer) and sellers (claim, no-show, cancel,
// list as seller).
type ReservationHandler struct {
	Reservations *service.ReservationEngine
	Gate         *authz.Gate
	Cache        CachePurger
}

func NewReservationHandler(r *service.ReservationEngine, g *authz.Gate, cache CachePurger) *ReservationHandler {
	return &ReservationHandler{Reservations: r, Gate: g, Cache: cache}
}

type createReservationReq struct {
	BundleID uint64 `json:"bundle_id" validate:"required"`
	Status   string `json:"status"`
}

type claimReq struct {
	ClaimCode string `json:"claim_code" validate:"required"`
}

// Create reserves a bundle for the calling customer.
func (h *ReservationHandler) Create(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	caller := authz.CallerFrom(c)
	if err := h.Gate.Authorize(ctx, caller, model.PermReservationCreate, nil); err != nil {
		return err
	}

	var req createReservationReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	if req.Status == "" {
		req.Status = string(model.ReservationActive)
	}
	res, err := h.Reservations.Create(ctx, service.ReservationInput{
		BundleID:    req.BundleID,
		PurchaserID: caller.UserID,
		Status:      req.Status,
	})
	if err != nil {
		return err
	}
	purge(ctx, h.Cache)
	return c.JSON(http.StatusCreated, toReservationResp(res, caller.UserID))
}

// List returns the caller's reservations; ?role=buyer|seller picks the
// side (default follows the account kind).
func (h *ReservationHandler) List(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	caller := authz.CallerFrom(c)
	if !caller.Authenticated() {
		return model.ErrUnauthenticated
	}

	role := c.QueryParam("role")
	if role == "" {
		role = defaultRole(caller)
	}
	r, err := model.ParseReservationRole(role)
	if err != nil {
		return err
	}
	perm := model.PermReservationViewBuyer
	if r == model.RoleSeller {
		perm = model.PermReservationViewSeller
	}
	if err := h.Gate.Authorize(ctx, caller, perm, nil); err != nil {
		return err
	}

	list, err := h.Reservations.ListForUser(ctx, caller.UserID, string(r))
	if err != nil {
		return err
	}
	out := make([]reservationResp, 0, len(list))
	for i := range list {
		out = append(out, toReservationResp(&list[i], caller.UserID))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// Get returns one reservation to its purchaser or to the bundle's seller.
func (h *ReservationHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	caller := authz.CallerFrom(c)

	perm := model.PermReservationViewBuyer
	if caller.Kind == model.KindSeller {
		perm = model.PermReservationViewSeller
	}
	if err := h.Gate.Authorize(ctx, caller, perm, h.partyOf(id, caller)); err != nil {
		return err
	}
	res, err := h.Reservations.Load(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toReservationResp(res, caller.UserID))
}

// Cancel cancels an active reservation.  Customers cancel their own,
// sellers cancel reservations on their bundles.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	caller := authz.CallerFrom(c)
	if err := h.Gate.Authorize(ctx, caller, model.PermReservationCancel, h.partyOf(id, caller)); err != nil {
		return err
	}
	res, err := h.Reservations.Cancel(ctx, id)
	if err != nil {
		return err
	}
	purge(ctx, h.Cache)
	return c.JSON(http.StatusOK, toReservationResp(res, caller.UserID))
}

// NoShow records that the purchaser never collected.
func (h *ReservationHandler) NoShow(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	caller := authz.CallerFrom(c)
	if err := h.Gate.Authorize(ctx, caller, model.PermReservationNoShow, h.sellerOf(id)); err != nil {
		return err
	}
	res, err := h.Reservations.MarkNoShow(ctx, id)
	if err != nil {
		return err
	}
	purge(ctx, h.Cache)
	return c.JSON(http.StatusOK, toReservationResp(res, caller.UserID))
}

// Claim redeems a claim code presented at pickup.  Only the seller of the
// reserved bundle may redeem it.
func (h *ReservationHandler) Claim(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	caller := authz.CallerFrom(c)
	// Ownership needs the code, so the first pass checks identity and
	// permission only.
	if err := h.Gate.Authorize(ctx, caller, model.PermReservationClaim, nil); err != nil {
		return err
	}

	var req claimReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	owner := func(ctx context.Context) (uint64, error) {
		return h.Reservations.SellerForClaimCode(ctx, req.ClaimCode)
	}
	if err := h.Gate.Authorize(ctx, caller, model.PermReservationClaim, owner); err != nil {
		return err
	}
	res, err := h.Reservations.Claim(ctx, req.ClaimCode)
	if err != nil {
		return err
	}
	purge(ctx, h.Cache)
	return c.JSON(http.StatusOK, toReservationResp(res, caller.UserID))
}

func (h *ReservationHandler) sellerOf(id uint64) authz.OwnerResolver {
	return func(ctx context.Context) (uint64, error) {
		o, err := h.Reservations.OwnersOf(ctx, id)
		return o.SellerID, err
	}
}

// partyOf resolves the owner from the caller's side of the reservation.
func (h *ReservationHandler) partyOf(id uint64, caller authz.Caller) authz.OwnerResolver {
	return func(ctx context.Context) (uint64, error) {
		o, err := h.Reservations.OwnersOf(ctx, id)
		if err != nil {
			return 0, err
		}
		if caller.Kind == model.KindSeller {
			return o.SellerID, nil
		}
		return o.PurchaserID, nil
	}
}

func defaultRole(caller authz.Caller) string {
	if caller.Kind == model.KindSeller {
		return string(model.RoleSeller)
	}
	return string(model.RoleBuyer)
}
