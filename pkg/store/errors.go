// Package store contains the repositories: atomic data operations over the
// relational schema. Repositories never commit or roll back; transaction
// boundaries belong to the caller via database.WithTx.
package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound indicates the requested row does not exist.
var ErrNotFound = errors.New("not found")

// DatabaseError wraps any SQL-level failure. Repositories raise this and
// nothing else; they never swallow SQL errors.
type DatabaseError struct {
	Op  string
	Err error
}

func (e *DatabaseError) Error() string {
	return fmt.Sprintf("database: %s: %v", e.Op, e.Err)
}

func (e *DatabaseError) Unwrap() error { return e.Err }

// dbErr wraps err as a DatabaseError, passing through sentinel and
// already-wrapped errors.
func dbErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrNotFound
	}
	var dbe *DatabaseError
	if errors.As(err, &dbe) {
		return err
	}
	return &DatabaseError{Op: op, Err: err}
}

// isRetryable reports whether err is a transient serialisation conflict or
// deadlock worth one in-scope retry.
func isRetryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	// 40001 serialization_failure, 40P01 deadlock_detected
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}

// withRetry runs fn, retrying exactly once when the failure is a transient
// serialisation conflict. Persistent failures propagate so the queue's
// retry policy applies.
func withRetry(ctx context.Context, fn func() error) error {
	err := fn()
	if err == nil || !isRetryable(err) {
		return err
	}
	if ctx.Err() != nil {
		return err
	}
	return fn()
}
