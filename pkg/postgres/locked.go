package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"
)

// lockStatement serializes read-modify-write access to the shared session
// state. Sensor-driven alert creation, responder replies and siren
// acknowledgements all mutate the same rows.
const lockStatement = "LOCK TABLE clients, sessions, locations"

// IsDeadlockError reports whether err is a deadlock-class Postgres error
// (serialization failure, deadlock detected, or lock not available).
func IsDeadlockError(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code.Class() == "40" || pqErr.Code == "55P03"
}

// BeginLocked starts a transaction holding the shared table lock. A
// deadlock-class failure is retried exactly once; on a second failure the
// returned transaction is nil and callers must abort without assuming any
// partial writes occurred.
func BeginLocked(ctx context.Context, db *sql.DB, logger *slog.Logger) (*sql.Tx, error) {
	tx, err := beginAndLock(ctx, db)
	if err != nil {
		if !IsDeadlockError(err) {
			logger.Error("Failed to begin locked transaction", "error", err)
			return nil, err
		}
		logger.Error("Deadlock while beginning locked transaction, retrying once", "error", err)
		tx, err = beginAndLock(ctx, db)
		if err != nil {
			logger.Error("Deadlock retry failed, aborting transaction", "error", err)
			return nil, err
		}
	}
	return tx, nil
}

func beginAndLock(ctx context.Context, db *sql.DB) (*sql.Tx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.ExecContext(ctx, lockStatement); err != nil {
		rollbackQuietly(tx)
		return nil, fmt.Errorf("failed to lock tables: %w", err)
	}
	return tx, nil
}

// BeginLocked starts a locked transaction on the client's connection pool
func (c *PostgresClient) BeginLocked(ctx context.Context) (*sql.Tx, error) {
	if c.db == nil {
		return nil, fmt.Errorf("postgres client not connected")
	}
	return BeginLocked(ctx, c.db, c.logger)
}

// RunLocked executes fn inside a locked transaction, committing on success
// and rolling back on error. Rollback failures are logged, never returned.
func (c *PostgresClient) RunLocked(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := c.BeginLocked(ctx)
	if err != nil {
		return err
	}

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			c.logger.Error("Failed to roll back locked transaction", "error", rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit locked transaction: %w", err)
	}

	return nil
}

func rollbackQuietly(tx *sql.Tx) {
	_ = tx.Rollback()
}
