// Package retry wraps data-mutating operations in automatic
// deadlock-detection and retry with exponential backoff.
//
// Every call site that can deadlock under concurrent load (bulk association
// reconciliation, cache refresh, upload persistence) goes through Do. Each
// attempt runs in its own database transaction, so a failed attempt's writes
// are fully rolled back before the next attempt begins; retries are strictly
// sequential.
package retry

import (
	"context"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"

	"github.com/docvault/docvault/internal/apperr"
)

const (
	// MaxRetries is the number of attempts before giving up on a deadlock.
	MaxRetries = 5
	// Delay is the initial backoff; attempt n waits Delay * 2^n.
	Delay = 100 * time.Millisecond

	// mysqlDeadlockCode is the MySQL error number for ER_LOCK_DEADLOCK.
	mysqlDeadlockCode = 1213
	// pgDeadlockCode is the PostgreSQL SQLSTATE for deadlock_detected.
	pgDeadlockCode = "40P01"
)

// ErrDeadlockExhausted signals that the retry budget ran out while the
// operation kept deadlocking; the system is overloaded and the caller may
// retry the whole request later.
var ErrDeadlockExhausted = apperr.New(
	apperr.KindDeadlockExhausted,
	"system overloaded by transaction contention, please retry shortly",
)

// Op is one attempt of a data-mutating operation. It receives the attempt's
// transaction handle and must perform all of its writes through it.
type Op[T any] func(tx *gorm.DB) (T, error)

// Do invokes op up to MaxRetries times, each attempt inside its own database
// transaction. On success it returns the result together with the 1-based
// attempt number that succeeded.
//
// A deadlock-classified failure waits Delay * 2^attempt and retries. A
// classified application error (not found, forbidden, conflict, ...)
// propagates immediately unchanged. Any other error is wrapped as an
// internal error and propagates immediately.
func Do[T any](ctx context.Context, db *gorm.DB, name string, op Op[T]) (T, int, error) {
	var zero T

	for attempt := 0; attempt < MaxRetries; attempt++ {
		var result T

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var opErr error
			result, opErr = op(tx)

			return opErr
		})
		if err == nil {
			return result, attempt + 1, nil
		}

		if !IsDeadlock(err) {
			if apperr.Classified(err) {
				return zero, attempt + 1, err
			}

			return zero, attempt + 1, apperr.Internal(err, "operation "+name+" failed")
		}

		if attempt == MaxRetries-1 {
			break
		}

		wait := Delay * (1 << attempt)
		log.Warn().
			Str("op", name).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("deadlock detected, retrying")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return zero, attempt + 1, apperr.Internal(ctx.Err(), "operation "+name+" aborted while backing off")
		}
	}

	log.Error().Str("op", name).Int("attempts", MaxRetries).Msg("deadlock retries exhausted")

	return zero, MaxRetries, ErrDeadlockExhausted
}

// IsDeadlock reports whether err is a deadlock-classified database error,
// either by driver-specific error type or by the standard deadlock code.
func IsDeadlock(err error) bool {
	if err == nil {
		return false
	}

	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		return myErr.Number == mysqlDeadlockCode
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgDeadlockCode || pgErr.SQLState() == pgDeadlockCode
	}

	return false
}
