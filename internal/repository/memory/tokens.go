package memory

import (
	"context"
	"time"

	"github.com/iliyamo/surplus-market/internal/model"
)

type tokenRepo struct{ s *Store }

func (r tokenRepo) StoreRefresh(_ context.Context, accountID uint64, tokenHash string, exp time.Time) error {
	return r.s.view(func(st *state) error {
		if _, ok := st.accounts[accountID]; !ok {
			return model.ErrNoSuchAccount
		}
		st.tokens[tokenHash] = token{accountID: accountID, expiresAt: exp.UTC()}
		return nil
	})
}

func (r tokenRepo) ValidateRefresh(_ context.Context, tokenHash string, now time.Time) (uint64, error) {
	var id uint64
	err := r.s.view(func(st *state) error {
		t, ok := st.tokens[tokenHash]
		if !ok || t.revoked || now.UTC().After(t.expiresAt) {
			return model.ErrUnauthenticated
		}
		id = t.accountID
		return nil
	})
	return id, err
}

func (r tokenRepo) RevokeByHash(_ context.Context, tokenHash string) error {
	return r.s.view(func(st *state) error {
		if t, ok := st.tokens[tokenHash]; ok {
			t.revoked = true
			st.tokens[tokenHash] = t
		}
		return nil
	})
}

func (r tokenRepo) RevokeAllForAccount(_ context.Context, accountID uint64) error {
	return r.s.view(func(st *state) error {
		for h, t := range st.tokens {
			if t.accountID == accountID {
				t.revoked = true
				st.tokens[h] = t
			}
		}
		return nil
	})
}
