package postgres

import (
	"context"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bishnubista/pipeline-whisperer/internal/domain"
)

func TestLeadRepo_Create_OK(t *testing.T) {
	pool := &fakePool{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			return pgconn.CommandTag{}, nil
		},
	}
	repo := NewLeadRepo(pool)
	id, err := repo.Create(context.Background(), domain.Lead{ExternalID: "ext-1", Status: domain.LeadRaw})
	require.NoError(t, err)
	assert.NotEmpty(t, id)
}

func TestLeadRepo_FindByExternalID_NotFound(t *testing.T) {
	pool := &fakePool{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return fakeRow2{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	repo := NewLeadRepo(pool)
	_, err := repo.FindByExternalID(context.Background(), "missing")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestLeadRepo_CountByStatus_OK(t *testing.T) {
	pool := &fakePool{
		queryRowFn: func(_ context.Context, _ string, _ ...any) pgx.Row {
			return fakeRow2{scan: func(dest ...any) error {
				*(dest[0].(*int)) = 3
				return nil
			}}
		},
	}
	repo := NewLeadRepo(pool)
	count, err := repo.CountByStatus(context.Background(), domain.LeadScored)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestLeadRepo_Update_OK(t *testing.T) {
	var gotSQL string
	pool := &fakePool{
		execFn: func(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
			gotSQL = sql
			return pgconn.CommandTag{}, nil
		},
	}

	repo := NewLeadRepo(pool)
	err := repo.Update(context.Background(), domain.Lead{ID: "lead-1", Status: domain.LeadScored})
	require.NoError(t, err)
	assert.Contains(t, gotSQL, "UPDATE leads")
}

func TestLeadRepo_Update_JoinsTxBoundToContext(t *testing.T) {
	var execCount int
	tx := &fakePgxTx{execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
		execCount++
		return pgconn.CommandTag{}, nil
	}}
	ctx := context.WithValue(context.Background(), txExecKey{}, pgx.Tx(tx))

	pool := &fakePool{
		execFn: func(_ context.Context, _ string, _ ...any) (pgconn.CommandTag, error) {
			t.Fatal("Update must route through the ctx-bound transaction, not the pool, when one is present")
			return pgconn.CommandTag{}, nil
		},
	}

	repo := NewLeadRepo(pool)
	err := repo.Update(ctx, domain.Lead{ID: "lead-1", Status: domain.LeadScored})
	require.NoError(t, err)
	assert.Equal(t, 1, execCount)
}
