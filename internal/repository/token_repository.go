package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/surplus-market/internal/model"
)

// TokenRepo persists/validates refresh tokens (single 'token_hash' column).
type TokenRepo struct{ q dbtx }

// StoreRefresh inserts a refresh token hash row.
func (r *TokenRepo) StoreRefresh(ctx context.Context, accountID uint64, tokenHash string, exp time.Time) error {
	_, err := r.q.ExecContext(ctx,
		"INSERT INTO refresh_token (account_id, token_hash, expires_at) VALUES (?,?,?)",
		accountID, tokenHash, exp.UTC())
	if mysqlErrNumber(err) == errNoReferencedRow {
		return model.ErrNoSuchAccount
	}
	return model.Persistence("insert refresh token", err)
}

// ValidateRefresh returns the account ID if a non-revoked, non-expired
// token exists, otherwise model.ErrUnauthenticated.
func (r *TokenRepo) ValidateRefresh(ctx context.Context, tokenHash string, now time.Time) (uint64, error) {
	var (
		accountID uint64
		expiresAt time.Time
		revokedAt sql.NullTime
	)
	err := r.q.QueryRowContext(ctx,
		"SELECT account_id, expires_at, revoked_at FROM refresh_token WHERE token_hash=? LIMIT 1",
		tokenHash).Scan(&accountID, &expiresAt, &revokedAt)
	if err != nil {
		return 0, notFound("select refresh token", err, model.ErrUnauthenticated)
	}
	if revokedAt.Valid || now.UTC().After(expiresAt) {
		return 0, model.ErrUnauthenticated
	}
	return accountID, nil
}

// RevokeByHash marks a token as revoked.
func (r *TokenRepo) RevokeByHash(ctx context.Context, tokenHash string) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE refresh_token SET revoked_at=UTC_TIMESTAMP() WHERE token_hash=? AND revoked_at IS NULL",
		tokenHash)
	return model.Persistence("revoke refresh token", err)
}

// RevokeAllForAccount revokes all of the account's active tokens.
func (r *TokenRepo) RevokeAllForAccount(ctx context.Context, accountID uint64) error {
	_, err := r.q.ExecContext(ctx,
		"UPDATE refresh_token SET revoked_at=UTC_TIMESTAMP() WHERE account_id=? AND revoked_at IS NULL",
		accountID)
	return model.Persistence("revoke refresh tokens", err)
}
