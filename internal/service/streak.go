package service

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/repository"
)

// StreakService tracks consecutive collected reservations per customer.
// The claim and no-show transitions of ReservationEngine advance and break
// streaks; this service only starts and reads them.
type StreakService struct {
	store  repository.Store
	logger zerolog.Logger
}

func NewStreakService(store repository.Store, logger zerolog.Logger) *StreakService {
	return &StreakService{store: store, logger: logger}
}

// Create starts an empty streak.  A customer has at most one streak; a
// second call yields model.ErrAlreadyExists.
func (s *StreakService) Create(ctx context.Context, customerID uint64) (*model.Streak, error) {
	if customerID == 0 {
		return nil, model.ErrMissingValues
	}
	st := &model.Streak{CustomerID: customerID, Status: model.StreakActive}
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		if err := requireCustomer(ctx, r, customerID); err != nil {
			return err
		}
		return r.Streaks().Create(ctx, st)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Uint64("customer_id", customerID).Msg("streak started")
	return st, nil
}

func (s *StreakService) Get(ctx context.Context, customerID uint64) (*model.Streak, error) {
	return s.store.Streaks().GetByCustomer(ctx, customerID)
}
