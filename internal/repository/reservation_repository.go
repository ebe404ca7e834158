package repository

import (
	"context"
	"database/sql"

	"github.com/iliyamo/surplus-market/internal/model"
)

// ReservationRepo provides CRUD operations for reservations.  The
// reservation table carries a generated active_bundle_id column with a
// unique index, so at most one active reservation can reference a
// bundle; a second insert fails with a duplicate key and is reported as
// model.ErrConflict.  All timestamp fields are stored in UTC.
type ReservationRepo struct{ q dbtx }

const selectReservation = `SELECT r.id, r.bundle_id, r.purchaser_id, r.status, r.claim_code, r.created_at, r.updated_at FROM reservation r`

// Create inserts res and populates its ID and timestamps.
func (r *ReservationRepo) Create(ctx context.Context, res *model.Reservation) error {
	var code any
	if res.ClaimCode != "" {
		code = res.ClaimCode
	}
	result, err := r.q.ExecContext(ctx,
		"INSERT INTO reservation (bundle_id, purchaser_id, status, claim_code) VALUES (?, ?, ?, ?)",
		res.BundleID, res.PurchaserID, string(res.Status), code)
	if err != nil {
		if isDuplicate(err) {
			return model.ErrConflict
		}
		return model.Persistence("insert reservation", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return model.Persistence("insert reservation", err)
	}
	got, err := r.GetByID(ctx, uint64(id))
	if err != nil {
		return err
	}
	*res = *got
	return nil
}

// GetByID returns the reservation or model.ErrNoSuchReservation.
func (r *ReservationRepo) GetByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.one(ctx, selectReservation+" WHERE r.id = ?", id)
}

// LockByID is GetByID with a row lock.
func (r *ReservationRepo) LockByID(ctx context.Context, id uint64) (*model.Reservation, error) {
	return r.one(ctx, selectReservation+" WHERE r.id = ? FOR UPDATE", id)
}

// LockByClaimCode locks the reservation carrying code.  The code column is
// unique, so at most one row matches.
func (r *ReservationRepo) LockByClaimCode(ctx context.Context, code string) (*model.Reservation, error) {
	return r.one(ctx, selectReservation+" WHERE r.claim_code = ? FOR UPDATE", code)
}

func (r *ReservationRepo) one(ctx context.Context, query string, arg any) (*model.Reservation, error) {
	res, err := scanReservation(r.q.QueryRowContext(ctx, query, arg))
	if err != nil {
		return nil, notFound("select reservation", err, model.ErrNoSuchReservation)
	}
	return res, nil
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		res    model.Reservation
		status string
		code   sql.NullString
	)
	if err := row.Scan(&res.ID, &res.BundleID, &res.PurchaserID, &status, &code,
		&res.CreatedAt, &res.UpdatedAt); err != nil {
		return nil, err
	}
	st, err := model.ParseReservationStatus(status)
	if err != nil {
		return nil, err
	}
	res.Status = st
	res.ClaimCode = code.String
	return &res, nil
}

// Exists reports whether a reservation with id exists.
func (r *ReservationRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx, "SELECT 1 FROM reservation WHERE id = ? LIMIT 1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, model.Persistence("reservation exists", err)
	}
	return true, nil
}

// Update saves the status and claim code of res and reloads it.
func (r *ReservationRepo) Update(ctx context.Context, res *model.Reservation) error {
	var code any
	if res.ClaimCode != "" {
		code = res.ClaimCode
	}
	result, err := r.q.ExecContext(ctx,
		"UPDATE reservation SET status = ?, claim_code = ? WHERE id = ?",
		string(res.Status), code, res.ID)
	if err != nil {
		if isDuplicate(err) {
			return model.ErrConflict
		}
		return model.Persistence("update reservation", err)
	}
	changed, err := affected("update reservation", result)
	if err != nil {
		return err
	}
	if !changed {
		exists, err := r.Exists(ctx, res.ID)
		if err != nil {
			return err
		}
		if !exists {
			return model.ErrNoSuchReservation
		}
	}
	got, err := r.GetByID(ctx, res.ID)
	if err != nil {
		return err
	}
	*res = *got
	return nil
}

// Delete removes the reservation row.
func (r *ReservationRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	res, err := r.q.ExecContext(ctx, "DELETE FROM reservation WHERE id = ?", id)
	if err != nil {
		return false, model.Persistence("delete reservation", err)
	}
	return affected("delete reservation", res)
}

// ListByPurchaser returns the customer's reservations, newest first.
func (r *ReservationRepo) ListByPurchaser(ctx context.Context, purchaserID uint64) ([]model.Reservation, error) {
	return r.list(ctx, selectReservation+" WHERE r.purchaser_id = ? ORDER BY r.created_at DESC, r.id DESC", purchaserID)
}

// ListBySeller returns reservations on the seller's bundles, newest first.
func (r *ReservationRepo) ListBySeller(ctx context.Context, sellerID uint64) ([]model.Reservation, error) {
	return r.list(ctx, selectReservation+
		" JOIN bundle b ON b.id = r.bundle_id WHERE b.seller_id = ? ORDER BY r.created_at DESC, r.id DESC", sellerID)
}

func (r *ReservationRepo) list(ctx context.Context, query string, arg any) ([]model.Reservation, error) {
	rows, err := r.q.QueryContext(ctx, query, arg)
	if err != nil {
		return nil, model.Persistence("list reservations", err)
	}
	defer rows.Close()
	out := make([]model.Reservation, 0)
	for rows.Next() {
		res, err := scanReservation(rows)
		if err != nil {
			return nil, model.Persistence("scan reservation", err)
		}
		out = append(out, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list reservations", err)
	}
	return out, nil
}
