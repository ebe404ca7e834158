package memory

import (
	"context"
	"sort"
	"strings"

	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/repository"
)

type bundleRepo struct{ s *Store }

func copyBundle(b model.Bundle) model.Bundle {
	if b.PurchaserID != nil {
		id := *b.PurchaserID
		b.PurchaserID = &id
	}
	b.Allergens = append([]string{}, b.Allergens...)
	return b
}

func deleteBundle(st *state, id uint64) {
	delete(st.bundles, id)
	for rid, res := range st.reservations {
		if res.BundleID == id {
			delete(st.reservations, rid)
		}
	}
}

func (r bundleRepo) Create(_ context.Context, b *model.Bundle) error {
	return r.s.view(func(st *state) error {
		if !isSeller(st, b.SellerID) {
			return model.ErrNoSuchSeller
		}
		if b.DiscountedPrice >= b.RetailPrice {
			return model.Persistence("insert bundle: discounted price must be below retail price", errPriceCheck)
		}
		if b.PurchaserID != nil && !isCustomer(st, *b.PurchaserID) {
			return model.Persistence("insert bundle", errForeignKey)
		}
		b.ID = st.next("bundle")
		b.CreatedAt = r.s.now()
		b.UpdatedAt = b.CreatedAt
		b.Allergens = model.NormalizeAllergens(b.Allergens)
		st.bundles[b.ID] = copyBundle(*b)
		return nil
	})
}

func (r bundleRepo) GetByID(_ context.Context, id uint64) (*model.Bundle, error) {
	var out *model.Bundle
	err := r.s.view(func(st *state) error {
		b, ok := st.bundles[id]
		if !ok {
			return model.ErrNoSuchBundle
		}
		c := copyBundle(b)
		out = &c
		return nil
	})
	return out, err
}

// LockByID is GetByID; the store mutex already serialises transactions.
func (r bundleRepo) LockByID(ctx context.Context, id uint64) (*model.Bundle, error) {
	return r.GetByID(ctx, id)
}

func (r bundleRepo) Exists(_ context.Context, id uint64) (bool, error) {
	var ok bool
	err := r.s.view(func(st *state) error {
		_, ok = st.bundles[id]
		return nil
	})
	return ok, err
}

func (r bundleRepo) Update(_ context.Context, id uint64, p repository.BundlePatch) error {
	if p.Empty() {
		return model.ErrMissingValues
	}
	return r.s.view(func(st *state) error {
		cur, ok := st.bundles[id]
		if !ok {
			return model.ErrNoSuchBundle
		}
		b := copyBundle(cur)
		if p.Status != nil {
			b.Status = *p.Status
		}
		if p.Title != nil {
			b.Title = *p.Title
		}
		if p.Details != nil {
			b.Details = *p.Details
		}
		if p.RetailPrice != nil {
			b.RetailPrice = *p.RetailPrice
		}
		switch {
		case p.ClearPurchaser:
			b.PurchaserID = nil
		case p.PurchaserID != nil:
			if !isCustomer(st, *p.PurchaserID) {
				return model.ErrNoSuchCustomer
			}
			pid := *p.PurchaserID
			b.PurchaserID = &pid
		}
		if b.DiscountedPrice >= b.RetailPrice {
			return model.Persistence("update bundle: discounted price must be below retail price", errPriceCheck)
		}
		b.UpdatedAt = r.s.now()
		st.bundles[id] = b
		return nil
	})
}

func (r bundleRepo) Delete(_ context.Context, id uint64) (bool, error) {
	var found bool
	err := r.s.view(func(st *state) error {
		if _, found = st.bundles[id]; found {
			deleteBundle(st, id)
		}
		return nil
	})
	return found, err
}

func (r bundleRepo) Search(_ context.Context, q model.BundleQuery) ([]model.Bundle, int64, error) {
	statuses := q.Statuses
	if len(statuses) == 0 {
		statuses = []model.BundleStatus{model.BundleAvailable}
	}
	title := strings.ToLower(strings.TrimSpace(q.Title))
	excluded := model.NormalizeAllergens(q.ExcludeAllergens)

	var matches []model.Bundle
	err := r.s.view(func(st *state) error {
		for _, b := range st.bundles {
			if !statusIn(b.Status, statuses) {
				continue
			}
			if title != "" && !strings.Contains(strings.ToLower(b.Title), title) {
				continue
			}
			if q.SellerID != 0 && b.SellerID != q.SellerID {
				continue
			}
			if q.MaxPrice > 0 && b.DiscountedPrice > q.MaxPrice {
				continue
			}
			if sharesAny(b.Allergens, excluded) {
				continue
			}
			matches = append(matches, copyBundle(b))
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	sort.Slice(matches, func(i, j int) bool {
		if !matches[i].CreatedAt.Equal(matches[j].CreatedAt) {
			return matches[i].CreatedAt.After(matches[j].CreatedAt)
		}
		return matches[i].ID > matches[j].ID
	})

	total := int64(len(matches))
	start := (q.Page - 1) * q.PageSize
	if start < 0 || start >= len(matches) {
		return []model.Bundle{}, total, nil
	}
	end := start + q.PageSize
	if end > len(matches) {
		end = len(matches)
	}
	return matches[start:end], total, nil
}

func statusIn(s model.BundleStatus, set []model.BundleStatus) bool {
	for _, x := range set {
		if s == x {
			return true
		}
	}
	return false
}

func sharesAny(tags, excluded []string) bool {
	for _, t := range tags {
		for _, e := range excluded {
			if t == e {
				return true
			}
		}
	}
	return false
}
