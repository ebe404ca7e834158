package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/metrics"
	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/repository"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

// BundleInput carries the fields of a new bundle.  Prices use the decimal
// wire form ("12.34").
type BundleInput struct {
	Status          string
	Title           string
	Details         string
	RetailPrice     string
	DiscountedPrice string
	SellerID        uint64
	Allergens       []string
}

// bundleUpdateKeys is the allow-list accepted by Update.
var bundleUpdateKeys = map[string]struct{}{
	"status":       {},
	"title":        {},
	"details":      {},
	"retail_price": {},
	"purchaser_id": {},
}

// BundleRegistry owns bundle records and their status state machine.
type BundleRegistry struct {
	store  repository.Store
	logger zerolog.Logger
}

func NewBundleRegistry(store repository.Store, logger zerolog.Logger) *BundleRegistry {
	return &BundleRegistry{store: store, logger: logger}
}

// Create validates in and inserts a new bundle.  New bundles always start
// out available; the discounted price must be below the retail price.
func (r *BundleRegistry) Create(ctx context.Context, in BundleInput) (*model.Bundle, error) {
	if strings.TrimSpace(in.Status) == "" || strings.TrimSpace(in.Title) == "" ||
		strings.TrimSpace(in.Details) == "" || strings.TrimSpace(in.RetailPrice) == "" ||
		strings.TrimSpace(in.DiscountedPrice) == "" || in.SellerID == 0 {
		return nil, model.ErrMissingValues
	}
	status, err := model.ParseBundleStatus(in.Status)
	if err != nil {
		return nil, err
	}
	if status != model.BundleAvailable {
		return nil, fmt.Errorf("%w: new bundles must be %s", model.ErrInvalidArgument, model.BundleAvailable)
	}
	title := strings.TrimSpace(in.Title)
	if err := model.ValidateTitle(title); err != nil {
		return nil, err
	}
	rrp, err := model.ParsePence(in.RetailPrice)
	if err != nil {
		return nil, err
	}
	discounted, err := model.ParsePence(in.DiscountedPrice)
	if err != nil {
		return nil, err
	}

	b := &model.Bundle{
		Status:          status,
		Title:           title,
		Details:         strings.TrimSpace(in.Details),
		RetailPrice:     rrp,
		DiscountedPrice: discounted,
		SellerID:        in.SellerID,
		Allergens:       model.NormalizeAllergens(in.Allergens),
	}
	if err := r.store.Bundles().Create(ctx, b); err != nil {
		return nil, err
	}
	metrics.BundlesCreatedTotal.Inc()
	r.logger.Info().Uint64("bundle_id", b.ID).Uint64("seller_id", b.SellerID).Msg("bundle created")
	return b, nil
}

func (r *BundleRegistry) Load(ctx context.Context, id uint64) (*model.Bundle, error) {
	return r.store.Bundles().GetByID(ctx, id)
}

// ExistsWithID never returns model.ErrNoSuchBundle; absence is false.
func (r *BundleRegistry) ExistsWithID(ctx context.Context, id uint64) (bool, error) {
	return r.store.Bundles().Exists(ctx, id)
}

// Update applies a partial update restricted to status, title, details,
// retail_price and purchaser_id.  Status changes that belong to the
// reservation lifecycle (reserve, collect, release) are rejected with
// model.ErrInvalidTransition.
func (r *BundleRegistry) Update(ctx context.Context, id uint64, fields map[string]any) (*model.Bundle, error) {
	if len(fields) == 0 {
		return nil, model.ErrMissingValues
	}
	patch, err := bundlePatch(fields)
	if err != nil {
		return nil, err
	}

	var out *model.Bundle
	err = r.store.InTx(ctx, func(repos repository.Repositories) error {
		cur, err := repos.Bundles().LockByID(ctx, id)
		if err != nil {
			return err
		}
		if patch.Status != nil && *patch.Status != cur.Status {
			next := *patch.Status
			if !cur.Status.CanTransitionTo(next) || cur.Status.ReservationDriven(next) {
				return fmt.Errorf("%w: bundle %s -> %s", model.ErrInvalidTransition, cur.Status, next)
			}
		}
		if err := repos.Bundles().Update(ctx, id, patch); err != nil {
			return err
		}
		out, err = repos.Bundles().GetByID(ctx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info().Uint64("bundle_id", id).Msg("bundle updated")
	return out, nil
}

// Delete removes the bundle together with its reservations.
func (r *BundleRegistry) Delete(ctx context.Context, id uint64) error {
	err := r.store.InTx(ctx, func(repos repository.Repositories) error {
		ok, err := repos.Bundles().Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNoSuchBundle
		}
		return nil
	})
	if err != nil {
		return err
	}
	r.logger.Info().Uint64("bundle_id", id).Msg("bundle deleted")
	return nil
}

// SearchResult is one page of bundles plus the total match count.
type SearchResult struct {
	Items    []model.Bundle
	Total    int64
	Page     int
	PageSize int
}

// Search normalises paging (page >= 1, page size capped) and runs q.
func (r *BundleRegistry) Search(ctx context.Context, q model.BundleQuery) (*SearchResult, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	switch {
	case q.PageSize <= 0:
		q.PageSize = defaultPageSize
	case q.PageSize > maxPageSize:
		q.PageSize = maxPageSize
	}
	if q.MaxPrice < 0 {
		return nil, fmt.Errorf("%w: max price must not be negative", model.ErrInvalidArgument)
	}
	items, total, err := r.store.Bundles().Search(ctx, q)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Items: items, Total: total, Page: q.Page, PageSize: q.PageSize}, nil
}

func bundlePatch(fields map[string]any) (repository.BundlePatch, error) {
	var p repository.BundlePatch
	for key, raw := range fields {
		if _, ok := bundleUpdateKeys[key]; !ok {
			return p, fmt.Errorf("%w: field %q cannot be updated", model.ErrInvalidArgument, key)
		}
		switch key {
		case "status":
			s, err := stringField(key, raw)
			if err != nil {
				return p, err
			}
			st, err := model.ParseBundleStatus(s)
			if err != nil {
				return p, err
			}
			p.Status = &st
		case "title":
			s, err := stringField(key, raw)
			if err != nil {
				return p, err
			}
			s = strings.TrimSpace(s)
			if err := model.ValidateTitle(s); err != nil {
				return p, err
			}
			p.Title = &s
		case "details":
			s, err := stringField(key, raw)
			if err != nil {
				return p, err
			}
			p.Details = &s
		case "retail_price":
			var s string
			switch v := raw.(type) {
			case string:
				s = v
			case json.Number:
				s = v.String()
			default:
				return p, fmt.Errorf("%w: retail_price must be a decimal string", model.ErrInvalidArgument)
			}
			rrp, err := model.ParsePence(s)
			if err != nil {
				return p, err
			}
			p.RetailPrice = &rrp
		case "purchaser_id":
			if raw == nil {
				p.ClearPurchaser = true
				continue
			}
			id, err := idField(key, raw)
			if err != nil {
				return p, err
			}
			p.PurchaserID = &id
		}
	}
	return p, nil
}

func stringField(key string, raw any) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("%w: %s must be a string", model.ErrInvalidArgument, key)
	}
	return s, nil
}

func idField(key string, raw any) (uint64, error) {
	var (
		id  uint64
		err error
	)
	switch v := raw.(type) {
	case uint64:
		id = v
	case int:
		if v < 0 {
			err = strconv.ErrRange
		}
		id = uint64(v)
	case json.Number:
		id, err = strconv.ParseUint(v.String(), 10, 64)
	case string:
		id, err = strconv.ParseUint(v, 10, 64)
	default:
		err = strconv.ErrSyntax
	}
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: %s must be a positive integer", model.ErrInvalidArgument, key)
	}
	return id, nil
}
