package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/iliyamo/surplus-market/internal/metrics"
	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/queue"
	"github.com/iliyamo/surplus-market/internal/repository"
)

// EventPublisher delivers reservation events after a transition commits.
// *queue.Publisher, queue.NopPublisher and *queue.Recorder implement it.
type EventPublisher interface {
	Publish(ctx context.Context, ev queue.ReservationEvent) error
}

// ReservationInput carries the fields of a new reservation.  An empty
// ClaimCode is generated from the reservation ID, purchaser and bundle
// title.
type ReservationInput struct {
	BundleID    uint64
	PurchaserID uint64
	Status      string
	ClaimCode   string
}

// Owners identifies the two parties of a reservation.
type Owners struct {
	SellerID    uint64
	PurchaserID uint64
}

// ReservationEngine owns reservations and keeps them in step with their
// bundle.  Every compound transition runs in one store transaction.
type ReservationEngine struct {
	store  repository.Store
	events EventPublisher
	logger zerolog.Logger
	now    func() time.Time
}

func NewReservationEngine(store repository.Store, events EventPublisher, logger zerolog.Logger) *ReservationEngine {
	if events == nil {
		events = queue.NopPublisher{}
	}
	return &ReservationEngine{
		store:  store,
		events: events,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create reserves an available bundle for a customer.  The bundle flip to
// reserved, the reservation insert and the claim code all commit together;
// a bundle that is not available yields model.ErrConflict.
func (e *ReservationEngine) Create(ctx context.Context, in ReservationInput) (*model.Reservation, error) {
	if in.BundleID == 0 || in.PurchaserID == 0 || strings.TrimSpace(in.Status) == "" {
		return nil, model.ErrMissingValues
	}
	status, err := model.ParseReservationStatus(in.Status)
	if err != nil {
		return nil, err
	}
	if status != model.ReservationActive {
		return nil, fmt.Errorf("%w: new reservations must be %s", model.ErrInvalidArgument, model.ReservationActive)
	}

	var (
		res    *model.Reservation
		bundle *model.Bundle
	)
	err = e.store.InTx(ctx, func(r repository.Repositories) error {
		if err := requireCustomer(ctx, r, in.PurchaserID); err != nil {
			return err
		}
		b, err := r.Bundles().LockByID(ctx, in.BundleID)
		if err != nil {
			return err
		}
		if b.Status != model.BundleAvailable {
			return fmt.Errorf("%w: bundle is %s", model.ErrConflict, b.Status)
		}
		reserved := model.BundleReserved
		purchaser := in.PurchaserID
		if err := r.Bundles().Update(ctx, b.ID, repository.BundlePatch{Status: &reserved, PurchaserID: &purchaser}); err != nil {
			return err
		}
		b.Status, b.PurchaserID = reserved, &purchaser

		created := &model.Reservation{
			BundleID:    b.ID,
			PurchaserID: in.PurchaserID,
			Status:      status,
			ClaimCode:   strings.TrimSpace(in.ClaimCode),
		}
		if err := r.Reservations().Create(ctx, created); err != nil {
			return err
		}
		if created.ClaimCode == "" {
			created.ClaimCode = GenerateClaimCode(created.ID, created.PurchaserID, b.Title)
			if err := r.Reservations().Update(ctx, created); err != nil {
				return err
			}
		}
		res, bundle = created, b
		return nil
	})
	if errors.Is(err, model.ErrConflict) {
		metrics.ReservationConflictsTotal.Inc()
	}
	if err != nil {
		return nil, err
	}
	e.committed(ctx, queue.EventReserved, res, bundle)
	return res, nil
}

func (e *ReservationEngine) Load(ctx context.Context, id uint64) (*model.Reservation, error) {
	return e.store.Reservations().GetByID(ctx, id)
}

// ExistsWithID never returns model.ErrNoSuchReservation; absence is false.
func (e *ReservationEngine) ExistsWithID(ctx context.Context, id uint64) (bool, error) {
	return e.store.Reservations().Exists(ctx, id)
}

// Update saves res's claim code.  Status changes move the bundle too, so
// they go through Claim, Cancel or MarkNoShow; any other status yields
// model.ErrInvalidTransition.
func (e *ReservationEngine) Update(ctx context.Context, res *model.Reservation) error {
	if res == nil || res.ID == 0 {
		return model.ErrMissingValues
	}
	return e.store.InTx(ctx, func(r repository.Repositories) error {
		cur, err := r.Reservations().LockByID(ctx, res.ID)
		if err != nil {
			return err
		}
		if res.Status != cur.Status {
			return fmt.Errorf("%w: reservation %s -> %s requires claim, cancel or no-show",
				model.ErrInvalidTransition, cur.Status, res.Status)
		}
		return r.Reservations().Update(ctx, res)
	})
}

// Delete removes the reservation.  Deleting an active reservation hands
// its bundle back to available in the same transaction.
func (e *ReservationEngine) Delete(ctx context.Context, id uint64) error {
	err := e.store.InTx(ctx, func(r repository.Repositories) error {
		res, err := r.Reservations().LockByID(ctx, id)
		if err != nil {
			return err
		}
		if res.Status == model.ReservationActive {
			if err := releaseBundle(ctx, r, res.BundleID); err != nil {
				return err
			}
		}
		ok, err := r.Reservations().Delete(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return model.ErrNoSuchReservation
		}
		return nil
	})
	if err != nil {
		return err
	}
	e.logger.Info().Uint64("reservation_id", id).Msg("reservation deleted")
	return nil
}

// ListForUser lists reservations from the buyer's or the seller's side,
// newest first.
func (e *ReservationEngine) ListForUser(ctx context.Context, userID uint64, role string) ([]model.Reservation, error) {
	r, err := model.ParseReservationRole(role)
	if err != nil {
		return nil, err
	}
	switch r {
	case model.RoleBuyer:
		return e.store.Reservations().ListByPurchaser(ctx, userID)
	case model.RoleSeller:
		return e.store.Reservations().ListBySeller(ctx, userID)
	}
	return nil, model.ErrInvalidArgument
}

// OwnersOf returns the seller and purchaser of a reservation.
func (e *ReservationEngine) OwnersOf(ctx context.Context, id uint64) (Owners, error) {
	res, err := e.store.Reservations().GetByID(ctx, id)
	if err != nil {
		return Owners{}, err
	}
	b, err := e.store.Bundles().GetByID(ctx, res.BundleID)
	if err != nil {
		return Owners{}, err
	}
	return Owners{SellerID: b.SellerID, PurchaserID: res.PurchaserID}, nil
}

// SellerForClaimCode returns the seller that must redeem code.  Unknown
// codes yield model.ErrInvalidClaimCode.
func (e *ReservationEngine) SellerForClaimCode(ctx context.Context, code string) (uint64, error) {
	res, err := e.findByCode(ctx, e.store, code)
	if err != nil {
		return 0, err
	}
	b, err := e.store.Bundles().GetByID(ctx, res.BundleID)
	if err != nil {
		return 0, err
	}
	return b.SellerID, nil
}

// Claim redeems a claim code: the reservation becomes completed, its
// bundle collected and the customer's streak advances, all at once.  A
// code that matches nothing changes nothing.
func (e *ReservationEngine) Claim(ctx context.Context, code string) (*model.Reservation, error) {
	if strings.TrimSpace(code) == "" {
		return nil, model.ErrMissingValues
	}
	var (
		res    *model.Reservation
		bundle *model.Bundle
	)
	err := e.store.InTx(ctx, func(r repository.Repositories) error {
		found, err := e.findByCode(ctx, r, code)
		if err != nil {
			return err
		}
		b, err := e.transition(ctx, r, found, model.ReservationCompleted, model.BundleCollected, false)
		if err != nil {
			return err
		}
		if err := e.bumpStreak(ctx, r, found.PurchaserID, true); err != nil {
			return err
		}
		res, bundle = found, b
		return nil
	})
	if err != nil {
		switch {
		case errors.Is(err, model.ErrInvalidClaimCode):
			metrics.ClaimFailuresTotal.WithLabelValues("invalid_code").Inc()
		case errors.Is(err, model.ErrInvalidTransition):
			metrics.ClaimFailuresTotal.WithLabelValues("not_active").Inc()
		}
		return nil, err
	}
	e.committed(ctx, queue.EventCollected, res, bundle)
	return res, nil
}

// Cancel moves an active reservation to cancelled and releases its bundle
// back to available.
func (e *ReservationEngine) Cancel(ctx context.Context, id uint64) (*model.Reservation, error) {
	return e.close(ctx, id, model.ReservationCancelled, queue.EventCancelled, false)
}

// MarkNoShow moves an active reservation to no-show, releases its bundle
// for re-listing and breaks the customer's streak.
func (e *ReservationEngine) MarkNoShow(ctx context.Context, id uint64) (*model.Reservation, error) {
	return e.close(ctx, id, model.ReservationNoShow, queue.EventNoShow, true)
}

func (e *ReservationEngine) close(ctx context.Context, id uint64, next model.ReservationStatus, typ queue.EventType, missed bool) (*model.Reservation, error) {
	var (
		res    *model.Reservation
		bundle *model.Bundle
	)
	err := e.store.InTx(ctx, func(r repository.Repositories) error {
		found, err := r.Reservations().LockByID(ctx, id)
		if err != nil {
			return err
		}
		b, err := e.transition(ctx, r, found, next, model.BundleAvailable, true)
		if err != nil {
			return err
		}
		if missed {
			if err := e.bumpStreak(ctx, r, found.PurchaserID, false); err != nil {
				return err
			}
		}
		res, bundle = found, b
		return nil
	})
	if err != nil {
		return nil, err
	}
	e.committed(ctx, typ, res, bundle)
	return res, nil
}

// transition moves res to next and its bundle from reserved to
// bundleNext.  A bundle that is no longer reserved (expired, cancelled by
// the seller) keeps its status.
func (e *ReservationEngine) transition(ctx context.Context, r repository.Repositories, res *model.Reservation,
	next model.ReservationStatus, bundleNext model.BundleStatus, release bool) (*model.Bundle, error) {
	if !res.Status.CanTransitionTo(next) {
		return nil, fmt.Errorf("%w: reservation %s -> %s", model.ErrInvalidTransition, res.Status, next)
	}
	b, err := r.Bundles().LockByID(ctx, res.BundleID)
	if err != nil {
		return nil, err
	}
	res.Status = next
	if err := r.Reservations().Update(ctx, res); err != nil {
		return nil, err
	}
	if b.Status != model.BundleReserved {
		if !release {
			return nil, fmt.Errorf("%w: bundle is %s", model.ErrInvalidTransition, b.Status)
		}
		return b, nil
	}
	if !b.Status.CanTransitionTo(bundleNext) {
		return nil, fmt.Errorf("%w: bundle %s -> %s", model.ErrInvalidTransition, b.Status, bundleNext)
	}
	patch := repository.BundlePatch{Status: &bundleNext, ClearPurchaser: release}
	if err := r.Bundles().Update(ctx, b.ID, patch); err != nil {
		return nil, err
	}
	b.Status = bundleNext
	if release {
		b.PurchaserID = nil
	}
	return b, nil
}

// bumpStreak advances (collected) or breaks the purchaser's streak,
// creating it on the first pickup, and mirrors the count onto the
// customer row.
func (e *ReservationEngine) bumpStreak(ctx context.Context, r repository.Repositories, customerID uint64, collected bool) error {
	s, err := r.Streaks().GetByCustomer(ctx, customerID)
	switch {
	case errors.Is(err, model.ErrNoSuchStreak):
		if !collected {
			return nil
		}
		s = &model.Streak{CustomerID: customerID, Status: model.StreakActive}
		s.Collected(e.now())
		if err := r.Streaks().Create(ctx, s); err != nil {
			return err
		}
	case err != nil:
		return err
	default:
		if collected {
			s.Collected(e.now())
		} else {
			s.Missed()
		}
		if err := r.Streaks().Update(ctx, s); err != nil {
			return err
		}
	}
	return r.Accounts().SetStreak(ctx, customerID, s.Count)
}

// findByCode locates the reservation holding code and verifies the match
// byte for byte.
func (e *ReservationEngine) findByCode(ctx context.Context, r repository.Repositories, code string) (*model.Reservation, error) {
	code = strings.TrimSpace(code)
	if len(code) != model.ClaimCodeLength {
		return nil, model.ErrInvalidClaimCode
	}
	res, err := r.Reservations().LockByClaimCode(ctx, code)
	if errors.Is(err, model.ErrNoSuchReservation) {
		return nil, model.ErrInvalidClaimCode
	}
	if err != nil {
		return nil, err
	}
	if !claimCodeMatches(res.ClaimCode, code) {
		return nil, model.ErrInvalidClaimCode
	}
	return res, nil
}

// committed records metrics and publishes the event for a transition that
// has already been written.  Broker failures are logged, never returned.
func (e *ReservationEngine) committed(ctx context.Context, typ queue.EventType, res *model.Reservation, b *model.Bundle) {
	metrics.ReservationTransitionsTotal.WithLabelValues(string(res.Status)).Inc()
	e.logger.Info().
		Uint64("reservation_id", res.ID).
		Uint64("bundle_id", res.BundleID).
		Str("status", string(res.Status)).
		Msg("reservation transition committed")

	ev := queue.ReservationEvent{
		Type:            typ,
		ReservationID:   res.ID,
		BundleID:        res.BundleID,
		BundleTitle:     b.Title,
		SellerID:        b.SellerID,
		PurchaserID:     res.PurchaserID,
		Status:          string(res.Status),
		DiscountedPrice: b.DiscountedPrice.String(),
		OccurredAt:      e.now().Format(time.RFC3339),
	}
	if err := e.events.Publish(ctx, ev); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues("error").Inc()
		e.logger.Warn().Err(err).Uint64("reservation_id", res.ID).Str("event", string(typ)).Msg("event publish failed")
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues("ok").Inc()
}

func requireCustomer(ctx context.Context, r repository.Repositories, id uint64) error {
	acc, err := r.Accounts().GetByID(ctx, id)
	if errors.Is(err, model.ErrNoSuchAccount) {
		return model.ErrNoSuchCustomer
	}
	if err != nil {
		return err
	}
	if !acc.IsCustomer() {
		return model.ErrNoSuchCustomer
	}
	return nil
}

// releaseBundle puts a reserved bundle back on sale and clears its
// purchaser.  Bundles in any other status are left alone.
func releaseBundle(ctx context.Context, r repository.Repositories, bundleID uint64) error {
	b, err := r.Bundles().LockByID(ctx, bundleID)
	if err != nil {
		return err
	}
	if b.Status != model.BundleReserved {
		return nil
	}
	available := model.BundleAvailable
	return r.Bundles().Update(ctx, b.ID, repository.BundlePatch{Status: &available, ClearPurchaser: true})
}
