package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Querier abstracts the query surface shared by *sql.DB and *sql.Tx so repositories
// transparently participate in an ambient transaction.
type Querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type txContextKey struct{}

// WithTx stores the transaction on the context for downstream repository calls.
func WithTx(ctx context.Context, tx *sql.Tx) context.Context {
	return context.WithValue(ctx, txContextKey{}, tx)
}

// TxFromContext retrieves an ambient transaction when one is active.
func TxFromContext(ctx context.Context) (*sql.Tx, bool) {
	tx, ok := ctx.Value(txContextKey{}).(*sql.Tx)
	return tx, ok && tx != nil
}

// QuerierFromContext returns the ambient transaction when present, otherwise the fallback handle.
func QuerierFromContext(ctx context.Context, fallback Querier) Querier {
	if tx, ok := TxFromContext(ctx); ok {
		return tx
	}
	return fallback
}

// UnitOfWork groups repository operations into a single database transaction.
type UnitOfWork struct {
	db *sql.DB
}

// NewUnitOfWork constructs a UnitOfWork bound to the shared database handle.
func NewUnitOfWork(db *sql.DB) (*UnitOfWork, error) {
	if db == nil {
		return nil, errors.New("postgres: database handle is required")
	}
	return &UnitOfWork{db: db}, nil
}

// RunInTx executes fn within a transaction, committing on success and rolling back on error.
// Nested calls reuse the ambient transaction.
func (u *UnitOfWork) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if u == nil || u.db == nil {
		return errors.New("postgres: unit of work not initialised")
	}
	if fn == nil {
		return errors.New("postgres: transaction function is nil")
	}

	if _, ok := TxFromContext(ctx); ok {
		return fn(ctx)
	}

	tx, err := u.db.BeginTx(ctx, nil)
	if err != nil {
		return WrapError("begin tx", err)
	}

	if err := fn(WithTx(ctx, tx)); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("%w (rollback failed: %v)", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return WrapError("commit tx", err)
	}
	return nil
}
