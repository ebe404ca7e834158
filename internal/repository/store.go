package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/surplus-market/internal/model"
)

// MySQLStore hands out MySQL-backed repositories bound either to the pool
// or, inside InTx, to a single transaction.
type MySQLStore struct {
	db *sql.DB
	q  dbtx
}

// NewMySQLStore returns a Store bound to db.
func NewMySQLStore(db *sql.DB) *MySQLStore { return &MySQLStore{db: db, q: db} }

// DB exposes the underlying pool for health checks and migrations.
func (s *MySQLStore) DB() *sql.DB { return s.db }

func (s *MySQLStore) Accounts() AccountRepository         { return &AccountRepo{q: s.q} }
func (s *MySQLStore) Bundles() BundleRepository           { return &BundleRepo{q: s.q} }
func (s *MySQLStore) Reservations() ReservationRepository { return &ReservationRepo{q: s.q} }
func (s *MySQLStore) RBAC() RBACRepository                { return &RBACRepo{q: s.q} }
func (s *MySQLStore) Streaks() StreakRepository           { return &StreakRepo{q: s.q} }
func (s *MySQLStore) Tokens() TokenRepository             { return &TokenRepo{q: s.q} }

// InTx runs fn inside a READ COMMITTED transaction.  The transaction is
// committed only when fn returns nil; any error or panic rolls it back.
// A store that is already transactional runs fn in the same transaction.
func (s *MySQLStore) InTx(ctx context.Context, fn func(Repositories) error) error {
	if _, ok := s.q.(*sql.Tx); ok {
		return fn(s)
	}
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelReadCommitted})
	if err != nil {
		return model.Persistence("begin transaction", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(&MySQLStore{db: s.db, q: tx}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return model.Persistence("commit transaction", err)
	}
	committed = true
	return nil
}

// Ping verifies the database connection.
func (s *MySQLStore) Ping(ctx context.Context) error {
	return model.Persistence("ping", s.db.PingContext(ctx))
}
