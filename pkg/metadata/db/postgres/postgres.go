// Copyright 2025 Vaultclaw Authors
// SPDX-License-Identifier: Apache-2.0

// Package postgres provides a PostgreSQL implementation of the db.DB interface.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/C-0711/Vaultclaw/pkg/metadata/db"

	_ "github.com/jackc/pgx/v5/stdlib" // PostgreSQL driver
)

// querier abstracts *sql.DB and *sql.Tx so every store method works both
// directly and inside a transaction.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// queries implements all store operations against a querier.
type queries struct {
	q querier
}

// Postgres implements db.DB using PostgreSQL as the backing store
type Postgres struct {
	queries
	pool *sql.DB
}

// New creates a new PostgreSQL-backed database
func New(cfg db.Config) (*Postgres, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("DSN is required")
	}

	pool, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pool.SetMaxOpenConns(cfg.MaxOpenConns)
	pool.SetMaxIdleConns(cfg.MaxIdleConns)
	pool.SetConnMaxLifetime(time.Duration(cfg.ConnMaxLifetime) * time.Second)
	pool.SetConnMaxIdleTime(time.Duration(cfg.ConnMaxIdleTime) * time.Second)

	return &Postgres{
		queries: queries{q: pool},
		pool:    pool,
	}, nil
}

// WithTx executes fn within a database transaction.
func (p *Postgres) WithTx(ctx context.Context, fn func(tx db.TxStore) error) error {
	sqlTx, err := p.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	if err := fn(&queries{q: sqlTx}); err != nil {
		if rbErr := sqlTx.Rollback(); rbErr != nil {
			return fmt.Errorf("rollback failed: %v (original error: %w)", rbErr, err)
		}
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the database connection
func (p *Postgres) Close() error {
	return p.pool.Close()
}

// Ensure interfaces are satisfied
var (
	_ db.DB      = (*Postgres)(nil)
	_ db.TxStore = (*queries)(nil)
)
