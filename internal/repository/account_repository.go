package repository

import (
	"context"
	"database/sql"
	"strings"

	"github.com/iliyamo/surplus-market/internal/model"
)

// AccountRepo persists rows of the account, seller and customer tables.
// Create writes two rows and must run inside Store.InTx to be atomic.
type AccountRepo struct{ q dbtx }

const selectAccount = `SELECT a.id, a.email, a.password_hash, a.kind, a.created_at,
       s.display_name, s.address, c.username, c.streak
FROM account a
LEFT JOIN seller s   ON s.account_id = a.id
LEFT JOIN customer c ON c.account_id = a.id`

// Create inserts the account and the subtype row matching a.Kind.
func (r *AccountRepo) Create(ctx context.Context, a *model.Account) error {
	a.Email = strings.ToLower(strings.TrimSpace(a.Email))
	res, err := r.q.ExecContext(ctx,
		"INSERT INTO account (email, password_hash, kind) VALUES (?,?,?)",
		a.Email, a.PasswordHash, string(a.Kind))
	if err != nil {
		if isDuplicate(err) {
			return model.ErrAlreadyExists
		}
		return model.Persistence("insert account", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Persistence("insert account", err)
	}
	a.ID = uint64(id)

	switch a.Kind {
	case model.KindSeller:
		_, err = r.q.ExecContext(ctx,
			"INSERT INTO seller (account_id, display_name, address) VALUES (?,?,?)",
			a.ID, a.Seller.DisplayName, a.Seller.Address)
	case model.KindCustomer:
		_, err = r.q.ExecContext(ctx,
			"INSERT INTO customer (account_id, username, streak) VALUES (?,?,0)",
			a.ID, a.Customer.Username)
	}
	if err != nil {
		if isDuplicate(err) {
			return model.ErrAlreadyExists
		}
		return model.Persistence("insert account subtype", err)
	}
	return nil
}

// GetByID fetches an account and its subtype row.
func (r *AccountRepo) GetByID(ctx context.Context, id uint64) (*model.Account, error) {
	row := r.q.QueryRowContext(ctx, selectAccount+" WHERE a.id = ? LIMIT 1", id)
	return scanAccount(row)
}

// GetByEmail fetches an account by normalised email.
func (r *AccountRepo) GetByEmail(ctx context.Context, email string) (*model.Account, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	row := r.q.QueryRowContext(ctx, selectAccount+" WHERE a.email = ? LIMIT 1", email)
	return scanAccount(row)
}

func scanAccount(row *sql.Row) (*model.Account, error) {
	var (
		a                    model.Account
		kind                 string
		displayName, address sql.NullString
		username             sql.NullString
		streak               sql.NullInt64
	)
	err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &kind, &a.CreatedAt,
		&displayName, &address, &username, &streak)
	if err != nil {
		return nil, notFound("select account", err, model.ErrNoSuchAccount)
	}
	a.Kind = model.AccountKind(kind)
	switch a.Kind {
	case model.KindSeller:
		a.Seller = &model.SellerDetails{DisplayName: displayName.String, Address: address.String}
	case model.KindCustomer:
		a.Customer = &model.CustomerDetails{Username: username.String, Streak: uint32(streak.Int64)}
	}
	return &a, nil
}

// Exists reports whether an account with id exists.
func (r *AccountRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	var one int
	err := r.q.QueryRowContext(ctx, "SELECT 1 FROM account WHERE id = ? LIMIT 1", id).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, model.Persistence("account exists", err)
	}
	return true, nil
}

// Delete removes the account.  seller/customer rows, bundles, the
// customer's reservations, streaks and role assignments cascade.
// Reservations on a seller's bundles are deleted explicitly because the
// reservation.bundle_id foreign key does not cascade.
func (r *AccountRepo) Delete(ctx context.Context, id uint64) (bool, error) {
	if _, err := r.q.ExecContext(ctx,
		"DELETE r FROM reservation r JOIN bundle b ON b.id = r.bundle_id WHERE b.seller_id = ?", id); err != nil {
		return false, model.Persistence("delete seller reservations", err)
	}
	res, err := r.q.ExecContext(ctx, "DELETE FROM account WHERE id = ?", id)
	if err != nil {
		return false, model.Persistence("delete account", err)
	}
	return affected("delete account", res)
}

// SetStreak mirrors the streak count onto the customer row.
func (r *AccountRepo) SetStreak(ctx context.Context, customerID uint64, count uint32) error {
	res, err := r.q.ExecContext(ctx, "UPDATE customer SET streak = ? WHERE account_id = ?", count, customerID)
	if err != nil {
		return model.Persistence("update customer streak", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return model.Persistence("update customer streak", err)
	}
	if n == 0 {
		// MySQL reports 0 for an unchanged value too, so confirm the row.
		var one int
		err := r.q.QueryRowContext(ctx, "SELECT 1 FROM customer WHERE account_id = ?", customerID).Scan(&one)
		if err != nil {
			return notFound("select customer", err, model.ErrNoSuchCustomer)
		}
	}
	return nil
}
