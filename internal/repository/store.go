package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store is a Querier that can also run a group of queries atomically.
type Store interface {
	Querier

	// ExecTx runs fn inside a single database transaction. The transaction
	// is committed when fn returns nil and rolled back otherwise.
	ExecTx(ctx context.Context, fn func(q Querier) error) error
}

// PgStore is the PostgreSQL-backed Store.
type PgStore struct {
	*Queries
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *PgStore {
	return &PgStore{
		Queries: New(pool),
		pool:    pool,
	}
}

func (s *PgStore) ExecTx(ctx context.Context, fn func(q Querier) error) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		// No-op after a successful commit
		_ = tx.Rollback(ctx)
	}()

	if err := fn(s.WithTx(tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

var _ Store = (*PgStore)(nil)
