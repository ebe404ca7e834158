package memory

import (
	"context"
	"sort"

	"github.com/iliyamo/surplus-market/internal/model"
)

type reservationRepo struct{ s *Store }

// checkUnique enforces the two unique indexes of the reservation table:
// one active reservation per bundle and one row per claim code.
func checkUnique(st *state, res *model.Reservation) error {
	for id, other := range st.reservations {
		if id == res.ID {
			continue
		}
		if res.Status == model.ReservationActive && other.Status == model.ReservationActive &&
			other.BundleID == res.BundleID {
			return model.ErrConflict
		}
		if res.ClaimCode != "" && other.ClaimCode == res.ClaimCode {
			return model.ErrConflict
		}
	}
	return nil
}

func (r reservationRepo) Create(_ context.Context, res *model.Reservation) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.bundles[res.BundleID]; !ok {
			return model.Persistence("insert reservation", errForeignKey)
		}
		if !isCustomer(st, res.PurchaserID) {
			return model.Persistence("insert reservation", errForeignKey)
		}
		res.ID = 0
		if err := checkUnique(st, res); err != nil {
			return err
		}
		res.ID = st.next("reservation")
		res.CreatedAt = r.s.now()
		res.UpdatedAt = res.CreatedAt
		st.reservations[res.ID] = *res
		return nil
	})
}

func (r reservationRepo) GetByID(_ context.Context, id uint64) (*model.Reservation, error) {
	var out *model.Reservation
	err := r.s.view(func(st *state) error {
		res, ok := st.reservations[id]
		if !ok {
			return model.ErrNoSuchReservation
		}
		out = &res
		return nil
	})
	return out, err
}

func (r reservationRepo) LockByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.GetByID(ctx, id)
}

func (r reservationRepo) LockByClaimCode(_ context.Context, code string) (*model.Reservation, error) {
	var out *model.Reservation
	err := r.s.view(func(st *state) error {
		for _, res := range st.reservations {
			if code != "" && res.ClaimCode == code {
				out = &res
				return nil
			}
		}
		return model.ErrNoSuchReservation
	})
	return out, err
}

func (r reservationRepo) Exists(_ context.Context, id uint64) (bool, error) {
	var ok bool
	err := r.s.view(func(st *state) error {
		_, ok = st.reservations[id]
		return nil
	})
	return ok, err
}

func (r reservationRepo) Update(_ context.Context, res *model.Reservation) error {
	return r.s.view(func(st *state) error {
		cur, ok := st.reservations[res.ID]
		if !ok {
			return model.ErrNoSuchReservation
		}
		if err := checkUnique(st, res); err != nil {
			return err
		}
		cur.Status = res.Status
		cur.ClaimCode = res.ClaimCode
		cur.UpdatedAt = r.s.now()
		st.reservations[res.ID] = cur
		*res = cur
		return nil
	})
}

func (r reservationRepo) Delete(_ context.Context, id uint64) (bool, error) {
	var found bool
	err := r.s.view(func(st *state) error {
		if _, found = st.reservations[id]; found {
			delete(st.reservations, id)
		}
		return nil
	})
	return found, err
}

func (r reservationRepo) ListByPurchaser(_ context.Context, purchaserID uint64) ([]model.Reservation, error) {
	return r.list(func(st *state, res model.Reservation) bool { return res.PurchaserID == purchaserID })
}

func (r reservationRepo) ListBySeller(_ context.Context, sellerID uint64) ([]model.Reservation, error) {
	return r.list(func(st *state, res model.Reservation) bool {
		b, ok := st.bundles[res.BundleID]
		return ok && b.SellerID == sellerID
	})
}

func (r reservationRepo) list(match func(*state, model.Reservation) bool) ([]model.Reservation, error) {
	out := make([]model.Reservation, 0)
	err := r.s.view(func(st *state) error {
		for _, res := range st.reservations {
			if match(st, res) {
				out = append(out, res)
			}
		}
		return nil
	})
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID > out[j].ID
	})
	return out, err
}
