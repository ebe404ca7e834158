package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/surplus-market/internal/authz"
	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/service"
)

// BundleHandler serves the public bundle browse API and the seller's
// bundle management endpoints.
type BundleHandler struct {
	Bundles *service.BundleRegistry
	Gate    *authz.Gate
	Cache   CachePurger
}

func NewBundleHandler(b *service.BundleRegistry, g *authz.Gate, cache CachePurger) *BundleHandler {
	return &BundleHandler{Bundles: b, Gate: g, Cache: cache}
}

type createBundleReq struct {
	Status          string   `json:"status" validate:"required"`
	Title           string   `json:"title" validate:"required"`
	Details         string   `json:"details" validate:"required"`
	RetailPrice     string   `json:"retail_price" validate:"required"`
	DiscountedPrice string   `json:"discounted_price" validate:"required"`
	Allergens       []string `json:"allergens"`
}

type searchResp struct {
	Items    []bundleResp `json:"items"`
	Total    int64        `json:"total"`
	Page     int          `json:"page"`
	PageSize int          `json:"page_size"`
}

// Search lists bundles.  Query parameters: title, status (comma list),
// seller_id, max_price, exclude_allergens (comma list), page, page_size.
func (h *BundleHandler) Search(c echo.Context) error {
	q, err := parseBundleQuery(c)
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	res, err := h.Bundles.Search(ctx, q)
	if err != nil {
		return err
	}
	items := make([]bundleResp, 0, len(res.Items))
	for i := range res.Items {
		items = append(items, toBundleResp(&res.Items[i]))
	}
	return c.JSON(http.StatusOK, searchResp{Items: items, Total: res.Total, Page: res.Page, PageSize: res.PageSize})
}

// Get returns a single bundle.
func (h *BundleHandler) Get(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()

	b, err := h.Bundles.Load(ctx, id)
	if err != nil {
		return err
	}
	return c.JSON(http.StatusOK, toBundleResp(b))
}

// Create lists a new bundle owned by the calling seller.
func (h *BundleHandler) Create(c echo.Context) error {
	ctx, cancel := reqCtx(c)
	defer cancel()
	caller := authz.CallerFrom(c)
	if err := h.Gate.Authorize(ctx, caller, model.PermBundleCreate, nil); err != nil {
		return err
	}

	var req createBundleReq
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}
	b, err := h.Bundles.Create(ctx, service.BundleInput{
		Status:          req.Status,
		Title:           req.Title,
		Details:         req.Details,
		RetailPrice:     req.RetailPrice,
		DiscountedPrice: req.DiscountedPrice,
		SellerID:        caller.UserID,
		Allergens:       req.Allergens,
	})
	if err != nil {
		return err
	}
	purge(ctx, h.Cache)
	return c.JSON(http.StatusCreated, toBundleResp(b))
}

// Update applies a partial update.  The body is a JSON object whose keys
// are limited to status, title, details, retail_price and purchaser_id.
func (h *BundleHandler) Update(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Gate.Authorize(ctx, authz.CallerFrom(c), model.PermBundleUpdate, h.sellerOf(id)); err != nil {
		return err
	}

	fields := map[string]any{}
	dec := json.NewDecoder(c.Request().Body)
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil {
		return fmt.Errorf("%w: invalid body", model.ErrInvalidArgument)
	}
	b, err := h.Bundles.Update(ctx, id, fields)
	if err != nil {
		return err
	}
	purge(ctx, h.Cache)
	return c.JSON(http.StatusOK, toBundleResp(b))
}

// Delete removes a bundle owned by the caller.
func (h *BundleHandler) Delete(c echo.Context) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	ctx, cancel := reqCtx(c)
	defer cancel()
	if err := h.Gate.Authorize(ctx, authz.CallerFrom(c), model.PermBundleDelete, h.sellerOf(id)); err != nil {
		return err
	}
	if err := h.Bundles.Delete(ctx, id); err != nil {
		return err
	}
	purge(ctx, h.Cache)
	return c.NoContent(http.StatusNoContent)
}

func (h *BundleHandler) sellerOf(id uint64) authz.OwnerResolver {
	return func(ctx context.Context) (uint64, error) {
		b, err := h.Bundles.Load(ctx, id)
		if err != nil {
			return 0, err
		}
		return b.SellerID, nil
	}
}

func parseBundleQuery(c echo.Context) (model.BundleQuery, error) {
	q := model.BundleQuery{
		Title:            c.QueryParam("title"),
		ExcludeAllergens: splitList(c.QueryParam("exclude_allergens")),
	}
	for _, s := range splitList(c.QueryParam("status")) {
		st, err := model.ParseBundleStatus(s)
		if err != nil {
			return q, err
		}
		q.Statuses = append(q.Statuses, st)
	}
	if v := c.QueryParam("seller_id"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return q, fmt.Errorf("%w: seller_id", model.ErrInvalidArgument)
		}
		q.SellerID = id
	}
	if v := c.QueryParam("max_price"); v != "" {
		p, err := model.ParsePence(v)
		if err != nil {
			return q, err
		}
		q.MaxPrice = p
	}
	var err error
	if q.Page, err = intParam(c, "page"); err != nil {
		return q, err
	}
	if q.PageSize, err = intParam(c, "page_size"); err != nil {
		return q, err
	}
	return q, nil
}

func intParam(c echo.Context, name string) (int, error) {
	v := c.QueryParam(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: %s must be a non-negative integer", model.ErrInvalidArgument, name)
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
