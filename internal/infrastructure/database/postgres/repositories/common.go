// Package repositories implements the analysis and alert persistence ports
// on PostgreSQL.
package repositories

import (
	"context"
	"database/sql"
	stderrors "errors"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/lib/pq"

	"github.com/turtacn/PriorArt-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/PriorArt-Intelligence/pkg/errors"
)

// psql builds dynamic queries with $n placeholders.
var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// queryExecutor abstracts sql.DB and sql.Tx.
type queryExecutor interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// scanner abstracts sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// withTx runs fn inside a transaction, rolling back on error or panic.
func withTx(ctx context.Context, db *sql.DB, log logging.Logger, fn func(tx *sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeDatabaseError, "failed to begin transaction")
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil && !stderrors.Is(rbErr, sql.ErrTxDone) {
				log.Warn("transaction rollback failed", logging.Err(rbErr))
			}
		}
	}()

	if err = fn(tx); err != nil {
		return err
	}
	if cErr := tx.Commit(); cErr != nil {
		return errors.Wrap(cErr, errors.ErrCodeDatabaseError, "failed to commit transaction")
	}
	return nil
}

// validID reports whether id can address a UUID primary key. Anything else
// cannot exist, so callers answer not-found without a round trip.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return stderrors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func timePtr(nt sql.NullTime) *time.Time {
	if !nt.Valid {
		return nil
	}
	t := nt.Time.UTC()
	return &t
}

func dbError(err error, msg string) error {
	return errors.Wrap(err, errors.ErrCodeDatabaseError, msg)
}
