package memory

import (
	"context"
	"strings"

	"github.com/iliyamo/surplus-market/internal/model"
)

type accountRepo struct{ s *Store }

func copyAccount(a model.Account) model.Account {
	if a.Seller != nil {
		d := *a.Seller
		a.Seller = &d
	}
	if a.Customer != nil {
		d := *a.Customer
		a.Customer = &d
	}
	return a
}

func (r accountRepo) Create(_ context.Context, a *model.Account) error {
	return r.s.view(func(st *state) error {
		a.Email = strings.ToLower(strings.TrimSpace(a.Email))
		if _, ok := st.emails[a.Email]; ok {
			return model.ErrAlreadyExists
		}
		if a.Kind == model.KindCustomer {
			for _, other := range st.accounts {
				if other.Customer != nil && other.Customer.Username == a.Customer.Username {
					return model.ErrAlreadyExists
				}
			}
		}
		a.ID = st.next("account")
		a.CreatedAt = r.s.now()
		if a.Customer != nil {
			a.Customer.Streak = 0
		}
		st.accounts[a.ID] = copyAccount(*a)
		st.emails[a.Email] = a.ID
		return nil
	})
}

func (r accountRepo) GetByID(_ context.Context, id uint64) (*model.Account, error) {
	var out *model.Account
	err := r.s.view(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return model.ErrNoSuchAccount
		}
		c := copyAccount(a)
		out = &c
		return nil
	})
	return out, err
}

func (r accountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	var id uint64
	err := r.s.view(func(st *state) error {
		var ok bool
		id, ok = st.emails[strings.ToLower(strings.TrimSpace(email))]
		if !ok {
			return model.ErrNoSuchAccount
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r accountRepo) Exists(_ context.Context, id uint64) (bool, error) {
	var ok bool
	err := r.s.view(func(st *state) error {
		_, ok = st.accounts[id]
		return nil
	})
	return ok, err
}

// Delete cascades like the schema: the account's bundles (and their
// reservations), its reservations, streak, role assignments and tokens
// go with it; bundles it had purchased lose their purchaser.
func (r accountRepo) Delete(_ context.Context, id uint64) (bool, error) {
	var found bool
	err := r.s.view(func(st *state) error {
		a, ok := st.accounts[id]
		if !ok {
			return nil
		}
		found = true
		delete(st.accounts, id)
		delete(st.emails, a.Email)
		for bid, b := range st.bundles {
			switch {
			case b.SellerID == id:
				deleteBundle(st, bid)
			case b.PurchaserID != nil && *b.PurchaserID == id:
				b.PurchaserID = nil
				st.bundles[bid] = b
			}
		}
		for rid, res := range st.reservations {
			if res.PurchaserID == id {
				delete(st.reservations, rid)
			}
		}
		delete(st.streaks, id)
		for p := range st.ua {
			if p.a == id {
				delete(st.ua, p)
			}
		}
		for h, t := range st.tokens {
			if t.accountID == id {
				delete(st.tokens, h)
			}
		}
		return nil
	})
	return found, err
}

func (r accountRepo) SetStreak(_ context.Context, customerID uint64, count uint32) error {
	return r.s.view(func(st *state) error {
		a, ok := st.accounts[customerID]
		if !ok || a.Customer == nil {
			return model.ErrNoSuchCustomer
		}
		a = copyAccount(a)
		a.Customer.Streak = count
		st.accounts[customerID] = a
		return nil
	})
}

func isSeller(st *state, id uint64) bool {
	a, ok := st.accounts[id]
	return ok && a.Kind == model.KindSeller
}

func isCustomer(st *state, id uint64) bool {
	a, ok := st.accounts[id]
	return ok && a.Kind == model.KindCustomer
}
