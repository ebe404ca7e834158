package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/iliyamo/surplus-market/internal/model"
)

// MySQL server error numbers the repositories translate.
const (
	errDuplicateEntry  = 1062
	errNoReferencedRow = 1452
	errCheckConstraint = 3819
)

// dbtx is satisfied by both *sql.DB and *sql.Tx so that one repository
// implementation serves plain calls and transactional calls alike.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// mysqlErrNumber returns the server error number carried by err, or 0.
func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

func isDuplicate(err error) bool { return mysqlErrNumber(err) == errDuplicateEntry }

// notFound maps sql.ErrNoRows to the given sentinel and wraps anything
// else as a persistence failure.
func notFound(op string, err error, sentinel error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return sentinel
	}
	return model.Persistence(op, err)
}

// affected reports whether res changed at least one row.
func affected(op string, res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, model.Persistence(op, err)
	}
	return n > 0, nil
}
