// Package memory implements repository.Store in process memory.  It backs
// the server when DB_DRIVER=memory and is the store used by the service
// and handler tests.  Uniqueness, foreign keys, cascades and the bundle
// price CHECK mirror internal/database/schema.sql.
package memory

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/iliyamo/surplus-market/internal/model"
	"github.com/iliyamo/surplus-market/internal/repository"
)

var (
	errForeignKey = errors.New("foreign key constraint fails")
	errPriceCheck = errors.New("check constraint bundle_price_chk is violated")
)

type pair struct{ a, b uint64 }

type token struct {
	accountID uint64
	expiresAt time.Time
	revoked   bool
}

// state is one snapshot of every table.  Stored values are never mutated
// in place, so copying the maps is enough to snapshot them.
type state struct {
	seq          map[string]uint64
	accounts     map[uint64]model.Account
	emails       map[string]uint64
	bundles      map[uint64]model.Bundle
	reservations map[uint64]model.Reservation
	roles        map[uint64]string
	permissions  map[uint64]string
	pa           map[pair]struct{}
	ua           map[pair]struct{}
	streaks      map[uint64]model.Streak // keyed by customer
	tokens       map[string]token
}

func newState() *state {
	return &state{
		seq:          map[string]uint64{},
		accounts:     map[uint64]model.Account{},
		emails:       map[string]uint64{},
		bundles:      map[uint64]model.Bundle{},
		reservations: map[uint64]model.Reservation{},
		roles:        map[uint64]string{},
		permissions:  map[uint64]string{},
		pa:           map[pair]struct{}{},
		ua:           map[pair]struct{}{},
		streaks:      map[uint64]model.Streak{},
		tokens:       map[string]token{},
	}
}

func (s *state) clone() *state {
	c := newState()
	copyMap(c.seq, s.seq)
	copyMap(c.accounts, s.accounts)
	copyMap(c.emails, s.emails)
	copyMap(c.bundles, s.bundles)
	copyMap(c.reservations, s.reservations)
	copyMap(c.roles, s.roles)
	copyMap(c.permissions, s.permissions)
	copyMap(c.pa, s.pa)
	copyMap(c.ua, s.ua)
	copyMap(c.streaks, s.streaks)
	copyMap(c.tokens, s.tokens)
	return c
}

func copyMap[K comparable, V any](dst, src map[K]V) {
	for k, v := range src {
		dst[k] = v
	}
}

func (s *state) next(table string) uint64 {
	s.seq[table]++
	return s.seq[table]
}

// Store is an in-memory repository.Store.  Transactions are serialised:
// InTx holds the store mutex for the whole callback and works on a copy
// that replaces the live state only when fn returns nil.
type Store struct {
	mu   *sync.Mutex
	st   *state
	inTx bool
	now  func() time.Time
}

var _ repository.Store = (*Store)(nil)

// New returns an empty store.
func New() *Store {
	return &Store{mu: &sync.Mutex{}, st: newState(), now: func() time.Time { return time.Now().UTC() }}
}

// WithClock replaces the timestamp source; tests use it for ordering.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Accounts() repository.AccountRepository         { return accountRepo{s} }
func (s *Store) Bundles() repository.BundleRepository           { return bundleRepo{s} }
func (s *Store) Reservations() repository.ReservationRepository { return reservationRepo{s} }
func (s *Store) RBAC() repository.RBACRepository                { return rbacRepo{s} }
func (s *Store) Streaks() repository.StreakRepository           { return streakRepo{s} }
func (s *Store) Tokens() repository.TokenRepository             { return tokenRepo{s} }

// InTx runs fn against a private copy of the state and publishes the copy
// when fn succeeds.  Nested calls join the running transaction.
func (s *Store) InTx(ctx context.Context, fn func(repository.Repositories) error) error {
	if s.inTx {
		return fn(s)
	}
	if err := ctx.Err(); err != nil {
		return model.Persistence("begin transaction", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx := &Store{mu: s.mu, st: s.st.clone(), inTx: true, now: s.now}
	if err := fn(tx); err != nil {
		return err
	}
	s.st = tx.st
	return nil
}

// Ping fails only when ctx is already done.
func (s *Store) Ping(ctx context.Context) error {
	return model.Persistence("ping", ctx.Err())
}

// view runs fn against the live state, taking the lock unless the caller
// is already inside a transaction.
func (s *Store) view(fn func(st *state) error) error {
	if !s.inTx {
		s.mu.Lock()
		defer s.mu.Unlock()
	}
	return fn(s.st)
}
