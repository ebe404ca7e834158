package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/repository"
	"github.com/iliyamo/surplus-market/internal/utils"
)

// RegisterInput carries the fields of a new account.  DisplayName and
// Address apply to sellers, Username to customers.
type RegisterInput struct {
	Email       string
	Password    string
	Kind        string
	DisplayName string
	Address     string
	Username    string
}

// AccountService is the account directory: registration, credential
// checks, lookup and deletion.
type AccountService struct {
	store      repository.Store
	bcryptCost int
	logger     zerolog.Logger
}

func NewAccountService(store repository.Store, bcryptCost int, logger zerolog.Logger) *AccountService {
	return &AccountService{store: store, bcryptCost: bcryptCost, logger: logger}
}

// Register creates the account and its subtype row and assigns the role
// named after the account kind, all in one transaction.
func (s *AccountService) Register(ctx context.Context, in RegisterInput) (*model.Account, error) {
	if strings.TrimSpace(in.Email) == "" || in.Password == "" || strings.TrimSpace(in.Kind) == "" {
		return nil, model.ErrMissingValues
	}
	kind, err := model.ParseAccountKind(in.Kind)
	if err != nil {
		return nil, err
	}
	hash, err := utils.HashPassword(in.Password, s.bcryptCost)
	if err != nil {
		return nil, err
	}
	acc := &model.Account{
		Email:        strings.ToLower(strings.TrimSpace(in.Email)),
		PasswordHash: hash,
		Kind:         kind,
	}
	switch kind {
	case model.KindSeller:
		acc.Seller = &model.SellerDetails{
			DisplayName: strings.TrimSpace(in.DisplayName),
			Address:     strings.TrimSpace(in.Address),
		}
	case model.KindCustomer:
		acc.Customer = &model.CustomerDetails{Username: strings.TrimSpace(in.Username)}
	}
	if err := acc.Validate(); err != nil {
		return nil, err
	}

	err = s.store.InTx(ctx, func(r repository.Repositories) error {
		if err := r.Accounts().Create(ctx, acc); err != nil {
			return err
		}
		_, err := assignRole(ctx, r, acc.ID, string(kind))
		return err
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info().Uint64("account_id", acc.ID).Str("kind", string(kind)).Msg("account registered")
	return s.Load(ctx, acc.ID)
}

// Authenticate checks the email/password pair.  Unknown emails and wrong
// passwords both yield model.ErrInvalidCredentials.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*model.Account, error) {
	if strings.TrimSpace(email) == "" || password == "" {
		return nil, model.ErrMissingValues
	}
	acc, err := s.store.Accounts().GetByEmail(ctx, email)
	if errors.Is(err, model.ErrNoSuchAccount) {
		return nil, model.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if !utils.VerifyPassword(acc.PasswordHash, password) {
		return nil, model.ErrInvalidCredentials
	}
	return acc, nil
}

func (s *AccountService) Load(ctx context.Context, id uint64) (*model.Account, error) {
	return s.store.Accounts().GetByID(ctx, id)
}

// Delete removes the account; its subtype row, bundles, reservations,
// streak and role assignments cascade.  Bundles a customer still holds
// through an active reservation go back to available first.
func (s *AccountService) Delete(ctx context.Context, id uint64) error {
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		acc, err := r.Accounts().GetByID(ctx, id)
		if err != nil {
			return err
		}
		if acc.IsCustomer() {
			held, err := r.Reservations().ListByPurchaser(ctx, id)
			if err != nil {
				return err
			}
			for _, res := range held {
				if res.Status != model.ReservationActive {
					continue
				}
				if err := releaseBundle(ctx, r, res.BundleID); err != nil {
					return err
				}
			}
		}
		ok, err := r.Accounts().Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNoSuchAccount
		}
		return nil
	})
	if err != nil {
		return err
	}
	s.logger.Info().Uint64("account_id", id).Msg("account deleted")
	return nil
}
