package memory

import (
	"context"

	"github.com/iliyamo/surplus-market/internal/model"
)

type streakRepo struct{ s *Store }

func copyStreak(s model.Streak) model.Streak {
	if s.LastCollectedAt != nil {
		t := *s.LastCollectedAt
		s.LastCollectedAt = &t
	}
	return s
}

func (r streakRepo) Create(_ context.Context, s *model.Streak) error {
	return r.s.view(func(st *state) error {
		if !isCustomer(st, s.CustomerID) {
			return model.ErrNoSuchCustomer
		}
		if _, ok := st.streaks[s.CustomerID]; ok {
			return model.ErrAlreadyExists
		}
		s.ID = st.next("streak")
		s.CreatedAt = r.s.now()
		st.streaks[s.CustomerID] = copyStreak(*s)
		return nil
	})
}

func (r streakRepo) GetByCustomer(_ context.Context, customerID uint64) (*model.Streak, error) {
	var out *model.Streak
	err := r.s.view(func(st *state) error {
		s, ok := st.streaks[customerID]
		if !ok {
			return model.ErrNoSuchStreak
		}
		c := copyStreak(s)
		out = &c
		return nil
	})
	return out, err
}

func (r streakRepo) Update(_ context.Context, s *model.Streak) error {
	return r.s.view(func(st *state) error {
		cur, ok := st.streaks[s.CustomerID]
		if !ok || cur.ID != s.ID {
			return model.ErrNoSuchStreak
		}
		st.streaks[s.CustomerID] = copyStreak(*s)
		return nil
	})
}
