package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// fakeRow and fakeRows are hand-rolled stand-ins for pgx.Row/pgx.Rows, used
// to unit-test the repo layer without a live database or a generated mock
// package.

type scanFunc func(dest ...any) error

type fakeRow2 struct {
	scan scanFunc
}

func (r fakeRow2) Scan(dest ...any) error { return r.scan(dest...) }

type fakeRows struct {
	rows []scanFunc
	idx  int
	err  error
}

func (r *fakeRows) Close()                                       {}
func (r *fakeRows) Err() error                                    { return r.err }
func (r *fakeRows) CommandTag() pgconn.CommandTag                 { return pgconn.CommandTag{} }
func (r *fakeRows) FieldDescriptions() []pgconn.FieldDescription  { return nil }
func (r *fakeRows) Next() bool {
	if r.idx >= len(r.rows) {
		return false
	}
	r.idx++
	return true
}
func (r *fakeRows) Scan(dest ...any) error { return r.rows[r.idx-1](dest...) }
func (r *fakeRows) Values() ([]any, error) { return nil, nil }
func (r *fakeRows) RawValues() [][]byte    { return nil }
func (r *fakeRows) Conn() *pgx.Conn        { return nil }

// fakePool implements PgxPool for table-driven repo tests.
type fakePool struct {
	execFn     func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	queryRowFn func(ctx context.Context, sql string, args ...any) pgx.Row
	queryFn    func(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	beginTxFn  func(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error)
}

func (p *fakePool) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return p.execFn(ctx, sql, args...)
}
func (p *fakePool) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return p.queryRowFn(ctx, sql, args...)
}
func (p *fakePool) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return p.queryFn(ctx, sql, args...)
}
func (p *fakePool) BeginTx(ctx context.Context, opts pgx.TxOptions) (pgx.Tx, error) {
	return p.beginTxFn(ctx, opts)
}

// fakePgxTx is a hand-rolled stand-in for pgx.Tx, exposing only the methods
// the repo layer calls (Exec/Commit/Rollback); other pgx.Tx methods are
// unused by the code under test and panic if reached.
type fakePgxTx struct {
	pgx.Tx
	execFn    func(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	commitErr error
}

func (t *fakePgxTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return t.execFn(ctx, sql, args...)
}
func (t *fakePgxTx) Commit(_ context.Context) error   { return t.commitErr }
func (t *fakePgxTx) Rollback(_ context.Context) error { return nil }
