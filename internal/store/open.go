// Package store selects the metadata store named by STORE_DRIVER.
package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/store/postgres"
	"CimplrBankImport/internal/store/sqlite"
)

// Open connects to the configured store. When migrate is set the PostgreSQL
// schema is applied first; the embedded store always applies its schema.
func Open(ctx context.Context, cfg config.DB, migrate bool) (bankimport.Store, error) {
	switch cfg.Driver {
	case "", "postgres":
		dsn := cfg.DSN()
		if migrate {
			if err := postgres.Migrate(ctx, dsn); err != nil {
				return nil, err
			}
		}
		return postgres.Open(ctx, dsn)
	case "sqlite":
		if cfg.Path != sqlite.MemoryPath {
			if err := os.MkdirAll(filepath.Dir(cfg.Path), 0755); err != nil {
				return nil, fmt.Errorf("create sqlite directory: %w", err)
			}
		}
		return sqlite.Open(ctx, cfg.Path)
	default:
		return nil, fmt.Errorf("unknown store driver %q (want postgres or sqlite)", cfg.Driver)
	}
}
