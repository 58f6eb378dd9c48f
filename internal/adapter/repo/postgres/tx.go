package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
)

type txExecKey struct{}

// txExecutor adapts an open pgx.Tx to the PgxPool contract so repositories
// run unmodified whether or not a transaction is bound to ctx. BeginTx opens
// a nested/savepoint transaction via tx.Begin and ignores txOptions: pgx
// only honors isolation/access-mode on the outermost transaction.
type txExecutor struct{ tx pgx.Tx }

func (e txExecutor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return e.tx.Exec(ctx, sql, args...)
}

func (e txExecutor) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return e.tx.QueryRow(ctx, sql, args...)
}

func (e txExecutor) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return e.tx.Query(ctx, sql, args...)
}

func (e txExecutor) BeginTx(ctx context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
	return e.tx.Begin(ctx)
}

// executorFrom returns the transaction TxManager.WithinTx bound to ctx, if
// any, else pool. Repositories call this instead of touching pool directly
// so a write transparently joins whatever transaction its caller opened.
func executorFrom(ctx context.Context, pool PgxPool) PgxPool {
	if tx, ok := ctx.Value(txExecKey{}).(pgx.Tx); ok {
		return txExecutor{tx: tx}
	}
	return pool
}

// TxManager implements domain.UnitOfWork over a pgx pool. It generalizes the
// repository layer's own BeginTx+committed-bool+deferred-rollback pattern to
// span more than one repository call, stashing the open pgx.Tx in ctx so
// every repository invoked with that ctx writes to the same transaction.
type TxManager struct{ Pool PgxPool }

// NewTxManager constructs a TxManager over the given pool.
func NewTxManager(p PgxPool) *TxManager { return &TxManager{Pool: p} }

// WithinTx runs fn with a ctx carrying an open transaction, committing on a
// nil return and rolling back otherwise. Nesting is not supported: fn must
// not call WithinTx again with the same ctx.
func (m *TxManager) WithinTx(ctx domain.Context, fn func(ctx domain.Context) error) error {
	tx, err := m.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("op=tx.begin: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback(ctx)
		}
	}()

	txCtx := context.WithValue(ctx, txExecKey{}, tx)
	if err := fn(txCtx); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("op=tx.commit: %w", err)
	}
	committed = true
	return nil
}
