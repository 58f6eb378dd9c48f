package postgres

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
)

func TestTxManager_WithinTx_CommitsOnSuccess(t *testing.T) {
	committed := false
	tx := &fakePgxTx{execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, nil
	}}
	pool := &fakePool{
		beginTxFn: func(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
			return recordingCommitTx{tx, &committed}, nil
		},
	}

	mgr := NewTxManager(pool)
	err := mgr.WithinTx(context.Background(), func(ctx domain.Context) error {
		_, execErr := executorFrom(ctx, pool).Exec(ctx, "UPDATE leads SET status=$1", "contacted")
		return execErr
	})
	require.NoError(t, err)
	assert.True(t, committed)
}

func TestTxManager_WithinTx_RollsBackOnError(t *testing.T) {
	rolledBack := false
	tx := &recordingRollbackTx{fakePgxTx: &fakePgxTx{execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
		return pgconn.CommandTag{}, nil
	}}, rolledBack: &rolledBack}
	pool := &fakePool{
		beginTxFn: func(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
			return tx, nil
		},
	}

	mgr := NewTxManager(pool)
	wantErr := fmt.Errorf("downstream mutation failed")
	err := mgr.WithinTx(context.Background(), func(ctx domain.Context) error {
		return wantErr
	})
	require.ErrorIs(t, err, wantErr)
	assert.True(t, rolledBack)
}

func TestTxManager_WithinTx_BeginError(t *testing.T) {
	pool := &fakePool{
		beginTxFn: func(_ context.Context, _ pgx.TxOptions) (pgx.Tx, error) {
			return nil, fmt.Errorf("connection refused")
		},
	}
	mgr := NewTxManager(pool)
	called := false
	err := mgr.WithinTx(context.Background(), func(ctx domain.Context) error {
		called = true
		return nil
	})
	require.Error(t, err)
	assert.False(t, called, "fn must not run when the transaction never opened")
}

type recordingCommitTx struct {
	*fakePgxTx
	committed *bool
}

func (t recordingCommitTx) Commit(ctx context.Context) error {
	*t.committed = true
	return t.fakePgxTx.Commit(ctx)
}

type recordingRollbackTx struct {
	*fakePgxTx
	rolledBack *bool
}

func (t *recordingRollbackTx) Rollback(ctx context.Context) error {
	*t.rolledBack = true
	return t.fakePgxTx.Rollback(ctx)
}
