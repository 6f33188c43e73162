// Package store provides PostgreSQL access for the fleet: a shared pgx
// pool, transactions, embedded migrations, and vector column support.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	pgxvector "github.com/pgvector/pgvector-go/pgx"
)

// Store wraps the shared connection pool. All collector write paths and
// the operational surface go through it.
type Store struct {
	pool *pgxpool.Pool
}

// Open connects to databaseURL, applies pending migrations, and returns
// a ready pool with vector types registered on every connection.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	if err := runMigrations(ctx, databaseURL); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	cfg.MaxConns = 16
	cfg.MaxConnLifetime = time.Hour
	cfg.MaxConnIdleTime = 30 * time.Minute
	cfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return pgxvector.RegisterTypes(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &Store{pool: pool}, nil
}

// NewFromPool wraps an existing pool (useful for testing).
func NewFromPool(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Query runs a query that returns rows.
func (s *Store) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return s.pool.Query(ctx, sql, args...)
}

// QueryRow runs a query expected to return at most one row.
func (s *Store) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return s.pool.QueryRow(ctx, sql, args...)
}

// Exec runs a statement that returns no rows.
func (s *Store) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	return s.pool.Exec(ctx, sql, args...)
}

// Acquire checks a connection out of the pool. Callers must Release it
// on every exit path.
func (s *Store) Acquire(ctx context.Context) (*pgxpool.Conn, error) {
	return s.pool.Acquire(ctx)
}

// WithTx runs fn inside a transaction. The transaction is rolled back
// unless fn returns nil and the commit succeeds.
func (s *Store) WithTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Pool exposes the underlying pool for health checks.
func (s *Store) Pool() *pgxpool.Pool {
	return s.pool
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}
