package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/repository"
	"github.com/iliyamo/surplus-market/internal/utils"
)

// TokenPair is what login and refresh hand back to the client.
type TokenPair struct {
	AccessToken    string
	AccessExpires  time.Time
	RefreshToken   string
	RefreshExpires time.Time
}

// SessionService issues and rotates access/refresh token pairs.  Refresh
// tokens are stored hashed and are single use.
type SessionService struct {
	store          repository.Store
	secret         string
	accessTTLMin   int
	refreshTTLDays int
	logger         zerolog.Logger
	now            func() time.Time
}

func NewSessionService(store repository.Store, secret string, accessTTLMin, refreshTTLDays int, logger zerolog.Logger) *SessionService {
	return &SessionService{
		store:          store,
		secret:         secret,
		accessTTLMin:   accessTTLMin,
		refreshTTLDays: refreshTTLDays,
		logger:         logger,
		now:            func() time.Time { return time.Now().UTC() },
	}
}

// Issue creates a new token pair for acc.
func (s *SessionService) Issue(ctx context.Context, acc *model.Account) (*TokenPair, error) {
	return s.issue(ctx, s.store, acc)
}

func (s *SessionService) issue(ctx context.Context, r repository.Repositories, acc *model.Account) (*TokenPair, error) {
	access, err := utils.NewAccessToken(s.secret, acc.ID, string(acc.Kind), s.accessTTLMin)
	if err != nil {
		return nil, err
	}
	refresh, err := utils.NewRefreshToken(s.refreshTTLDays)
	if err != nil {
		return nil, err
	}
	if err := r.Tokens().StoreRefresh(ctx, acc.ID, utils.HashRefreshRaw(refresh.Raw), refresh.Exp); err != nil {
		return nil, err
	}
	return &TokenPair{
		AccessToken:    access.Token,
		AccessExpires:  access.Exp,
		RefreshToken:   refresh.Raw,
		RefreshExpires: refresh.Exp,
	}, nil
}

// Refresh exchanges a valid refresh token for a new pair and revokes the
// old one.  Unknown, revoked or expired tokens yield
// model.ErrUnauthenticated.
func (s *SessionService) Refresh(ctx context.Context, raw string) (*TokenPair, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, model.ErrMissingValues
	}
	hash := utils.HashRefreshRaw(raw)
	var pair *TokenPair
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		accountID, err := r.Tokens().ValidateRefresh(ctx, hash, s.now())
		if err != nil {
			return err
		}
		acc, err := r.Accounts().GetByID(ctx, accountID)
		if errors.Is(err, model.ErrNoSuchAccount) {
			return model.ErrUnauthenticated
		}
		if err != nil {
			return err
		}
		if err := r.Tokens().RevokeByHash(ctx, hash); err != nil {
			return err
		}
		pair, err = s.issue(ctx, r, acc)
		return err
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// Revoke invalidates one refresh token.  Unknown tokens are ignored.
func (s *SessionService) Revoke(ctx context.Context, raw string) error {
	if strings.TrimSpace(raw) == "" {
		return model.ErrMissingValues
	}
	return s.store.Tokens().RevokeByHash(ctx, utils.HashRefreshRaw(raw))
}

// RevokeAll invalidates every refresh token of an account.
func (s *SessionService) RevokeAll(ctx context.Context, accountID uint64) error {
	if err := s.store.Tokens().RevokeAllForAccount(ctx, accountID); err != nil {
		return err
	}
	s.logger.Info().Uint64("account_id", accountID).Msg("sessions revoked")
	return nil
}
