// Package repository implements all database access for the rewards system.
// It uses pgx directly (no ORM) for transparency and performance.
//
// Concurrency model: every mutation runs inside an explicit transaction that
// first locks its aggregate root row with SELECT ... FOR UPDATE — the event
// row for roster changes, the account row for ledger writes, the user_stats
// row for unlock writes. Locking the root serialises all concurrent writers
// of one aggregate while leaving unrelated aggregates fully parallel.
package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// ErrNotFound is returned when a requested resource does not exist.
var ErrNotFound = errors.New("not found")

// ErrConcurrentModification is returned after retries on transaction
// conflicts are exhausted.
var ErrConcurrentModification = errors.New("concurrent modification")

// maxTxAttempts bounds retries on serialization failures and deadlocks.
const maxTxAttempts = 3

// inTx runs fn inside a transaction, committing on success and rolling back
// on error. Transactions that fail with a retryable SQLSTATE (serialization
// failure, deadlock) are retried up to maxTxAttempts before surfacing
// ErrConcurrentModification. Business-rule errors are never retried.
func inTx(ctx context.Context, db *pgxpool.Pool, fn func(pgx.Tx) error) error {
	var lastErr error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err := runTx(ctx, db, fn)
		if err == nil {
			return nil
		}
		if !retryable(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("%w: %v", ErrConcurrentModification, lastErr)
}

func runTx(ctx context.Context, db *pgxpool.Pool, fn func(pgx.Tx) error) error {
	tx, err := db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// retryable reports whether the error is a transient transaction conflict:
// SQLSTATE 40001 (serialization_failure) or 40P01 (deadlock_detected).
func retryable(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "40001" || pgErr.Code == "40P01"
}
