package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Row is satisfied by pgx.Row.
type Row interface {
	Scan(dest ...any) error
}

// Rows is satisfied by pgx.Rows.
type Rows interface {
	Close()
	Err() error
	Next() bool
	Scan(dest ...any) error
}

// CommandTag is satisfied by pgconn.CommandTag.
type CommandTag interface {
	RowsAffected() int64
}

// DBConn is what the history store runs its statements against: the pool,
// or the transaction that ranks a win.
type DBConn interface {
	Exec(ctx context.Context, sql string, args ...any) (CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) Row
}

type Tx interface {
	DBConn
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

type DB interface {
	DBConn
	Begin(ctx context.Context) (Tx, error)
}

// pgxQuerier is the statement surface *pgxpool.Pool and pgx.Tx share.
type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgxBeginner interface {
	pgxQuerier
	Begin(ctx context.Context) (pgx.Tx, error)
}

type querier struct {
	q pgxQuerier
}

func (c querier) Exec(ctx context.Context, sql string, args ...any) (CommandTag, error) {
	return c.q.Exec(ctx, sql, args...)
}

func (c querier) Query(ctx context.Context, sql string, args ...any) (Rows, error) {
	rows, err := c.q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func (c querier) QueryRow(ctx context.Context, sql string, args ...any) Row {
	return c.q.QueryRow(ctx, sql, args...)
}

// PoolAdapter runs history statements on a pgx pool.
type PoolAdapter struct {
	querier
	pool pgxBeginner
}

func NewPoolAdapter(pool *pgxpool.Pool) *PoolAdapter {
	return newPoolAdapter(pool)
}

func newPoolAdapter(pool pgxBeginner) *PoolAdapter {
	return &PoolAdapter{querier: querier{q: pool}, pool: pool}
}

func (p *PoolAdapter) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return nil, err
	}
	return &txAdapter{querier: querier{q: tx}, tx: tx}, nil
}

type txAdapter struct {
	querier
	tx pgx.Tx
}

func (t *txAdapter) Commit(ctx context.Context) error {
	return t.tx.Commit(ctx)
}

func (t *txAdapter) Rollback(ctx context.Context) error {
	return t.tx.Rollback(ctx)
}

// withTx runs fn in a transaction, committing only when fn succeeds.
func withTx(ctx context.Context, db DB, fn func(tx Tx) error) error {
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

const pgUniqueViolation = "23505"

// isUniqueViolation reports whether err came from the named unique index.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == pgUniqueViolation && pgErr.ConstraintName == constraint
}
