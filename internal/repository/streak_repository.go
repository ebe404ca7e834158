package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/surplus-market/internal/model"
)

// StreakRepo persists the streak table (one row per customer).
type StreakRepo struct{ q dbtx }

func (r *StreakRepo) Create(ctx context.Context, s *model.Streak) error {
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO streak (customer_id, count, status, last_collected_at) VALUES (?, ?, ?, ?)",
		s.CustomerID, s.Count, string(s.Status), nullableTime(s))
	if err != nil {
		switch mysqlErrNumber(err) {
		case errDuplicateEntry:
			return model.ErrAlreadyExists
		case errNoReferencedRow:
			return model.ErrNoSuchCustomer
		}
		return model.Persistence("insert streak", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Persistence("insert streak", err)
	}
	got, err := r.GetByCustomer(ctx, s.CustomerID)
	if err != nil {
		return err
	}
	got.ID = uint64(id)
	*s = *got
	return nil
}

// GetByCustomer returns the customer's streak or model.ErrNoSuchStreak.
func (r *StreakRepo) GetByCustomer(ctx context.Context, customerID uint64) (*model.Streak, error) {
	var (
		s      model.Streak
		status string
		last   sql.NullTime
	)
	err := r.q.QueryRowContext(ctx,
		"SELECT id, customer_id, count, status, last_collected_at, created_at FROM streak WHERE customer_id = ?",
		customerID).Scan(&s.ID, &s.CustomerID, &s.Count, &status, &last, &s.CreatedAt)
	if err != nil {
		return nil, notFound("select streak", err, model.ErrNoSuchStreak)
	}
	s.Status = model.StreakStatus(status)
	if last.Valid {
		t := last.Time.UTC()
		s.LastCollectedAt = &t
	}
	return &s, nil
}

func (r *StreakRepo) Update(ctx context.Context, s *model.Streak) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE streak SET count = ?, status = ?, last_collected_at = ? WHERE id = ?",
		s.Count, string(s.Status), nullableTime(s), s.ID)
	return model.Persistence("update streak", err)
}

func nullableTime(s *model.Streak) any {
	if s.LastCollectedAt == nil {
		return nil
	}
	return *s.LastCollectedAt
}
