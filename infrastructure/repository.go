package infrastructure

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// TimeOperation executes an operation and logs its execution time
func TimeOperation(ctx context.Context, name string, operation func() error) error {
	start := time.Now()
	err := operation()
	slog.Log(ctx, slog.LevelDebug, "store operation", "op", name, "elapsed", time.Since(start), "error", err)
	return err
}

// WithTransaction handles a database transaction and executes the given operation.
// The transaction is committed only when the operation returns nil.
func WithTransaction(db *sql.DB, ctx context.Context, operation func(*sql.Tx) error) (err error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("%w: begin transaction: %v", ErrStoreFailure, err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p) // re-throw panic after Rollback
		}
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Log(ctx, slog.LevelError, "Error while rolling back transaction", "error", rbErr)
			}
			return
		}
		if cErr := tx.Commit(); cErr != nil {
			err = fmt.Errorf("%w: commit transaction: %v", ErrStoreFailure, cErr)
		}
	}()

	return operation(tx)
}

// StoreError wraps a driver error so callers can match ErrStoreFailure
// without seeing driver types.
func StoreError(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %s: %v", ErrStoreFailure, op, err)
}
