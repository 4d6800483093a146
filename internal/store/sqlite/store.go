// Package sqlite is the embedded store used for single-node deployments and
// tests. Transactions open with BEGIN IMMEDIATE, which takes the database
// write lock up front; that stands in for PostgreSQL's row locks.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"strings"

	"CimplrBankImport/internal/bankimport"

	_ "modernc.org/sqlite"
)

//go:embed schema.sql
var schema string

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

type Store struct {
	db *sql.DB
}

// Open opens (creating when needed) the database at path and applies the
// schema.
func Open(ctx context.Context, path string) (*Store, error) {
	var dsn string
	memory := path == MemoryPath
	if memory {
		dsn = "file::memory:?_txlock=immediate&_pragma=foreign_keys(1)"
	} else {
		dsn = "file:" + path + "?_txlock=immediate&_pragma=foreign_keys(1)&_pragma=busy_timeout(10000)&_pragma=journal_mode(WAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	if memory {
		// Every connection would otherwise see its own empty database.
		db.SetMaxOpenConns(1)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply sqlite schema: %w", err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) Close() error { return s.db.Close() }

// Name identifies the store to the resource manager.
func (s *Store) Name() string { return "store:sqlite" }

func (s *Store) RunInTx(ctx context.Context, tenantID string, fn func(bankimport.Tx) error) error {
	if strings.TrimSpace(tenantID) == "" {
		return fmt.Errorf("sqlite: tenant id is required")
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	if err := fn(&sqlTx{tx: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

type sqlTx struct {
	tx *sql.Tx
}

var _ bankimport.Tx = (*sqlTx)(nil)
