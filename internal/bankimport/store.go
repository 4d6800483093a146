package bankimport

import (
	"context"
	"errors"

	"CimplrBankImport/internal/statement"
)

// Store is the tenant-scoped transaction provider. Everything fn does through
// the Tx commits or rolls back together; implementations bind the
// transaction to tenantID so row-level policies apply.
type Store interface {
	RunInTx(ctx context.Context, tenantID string, fn func(tx Tx) error) error
	Ping(ctx context.Context) error
	Close() error
}

// Tx exposes the import, staging and ledger relations inside one transaction.
// Lookups return (nil, nil) when nothing matches.
type Tx interface {
	// LockContentHash serializes ingests of the same content for a company
	// until the transaction ends.
	LockContentHash(ctx context.Context, tenantID, companyID, hash string) error
	FindActiveImportByHash(ctx context.Context, tenantID, companyID, hash string) (*BankImport, error)
	InsertImport(ctx context.Context, imp *BankImport) error
	// GetImport loads an import owned by tenantID. forUpdate holds a row lock
	// until the transaction ends.
	GetImport(ctx context.Context, tenantID, importID string, forUpdate bool) (*BankImport, error)
	// UpdateImport persists status, detected format, target account and
	// failure reason.
	UpdateImport(ctx context.Context, imp *BankImport) error
	// MergeStats merges the given counters key-by-key into the stored stats.
	MergeStats(ctx context.Context, tenantID, importID string, stats Stats) error

	DeleteRows(ctx context.Context, tenantID, importID string) (int64, error)
	InsertRows(ctx context.Context, rows []Row) error
	ListRows(ctx context.Context, tenantID, importID string, filter RowFilter) ([]Row, error)

	GetAccount(ctx context.Context, tenantID, accountID string) (*Account, error)
	InsertAccount(ctx context.Context, acct *Account) error

	// InsertTransaction appends to the ledger, doing nothing when
	// (tenant, account, provider transaction id) already exists. It reports
	// whether a row was created.
	InsertTransaction(ctx context.Context, t *BankTransaction) (bool, error)
	ListTransactions(ctx context.Context, tenantID, accountID string) ([]BankTransaction, error)
}

// ArtifactStore keeps the physical statement files as opaque bytes.
// ErrObjectNotFound is wrapped by ArtifactStore.Read and Move when the key is
// absent.
var ErrObjectNotFound = errors.New("artifact not found")

type ArtifactStore interface {
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
	Read(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	// Move places the object at src under dst, removing src.
	Move(ctx context.Context, src, dst string) error
}

// StatementParser detects statement formats and turns file bytes into lines.
type StatementParser interface {
	DetectFormat(filename, mimeType string, sample []byte) (string, bool)
	Parse(ctx context.Context, format string, data []byte) ([]statement.Line, error)
}
