// Package postgres is the production store. Every transaction binds
// app.tenant_id so the row-level security policies in schema.sql scope
// what it can see.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"CimplrBankImport/internal/bankimport"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type Store struct {
	pool *pgxpool.Pool
}

// Open connects a pool using a keyword/value or URL connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool}, nil
}

// New wraps an existing pool.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func (s *Store) Name() string { return "store:postgres" }

func (s *Store) RunInTx(ctx context.Context, tenantID string, fn func(bankimport.Tx) error) (err error) {
	if strings.TrimSpace(tenantID) == "" {
		return errors.New("postgres: tenant id is required")
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if _, err = tx.Exec(ctx, `SELECT set_config('app.tenant_id', $1, true)`, tenantID); err != nil {
		return fmt.Errorf("bind tenant: %w", err)
	}
	if err = fn(&pgTx{tx: tx}); err != nil {
		return err
	}
	if err = tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type pgTx struct {
	tx pgx.Tx
}

// isUUID reports whether id can be compared with a UUID column. Anything else
// would fail the cast with SQLSTATE 22P02, so lookups treat it as a miss.
func isUUID(id string) bool {
	return len(id) == 36 && uuid.Validate(id) == nil
}

var _ bankimport.Tx = (*pgTx)(nil)
