package bankimport

import (
	"time"

	"CimplrBankImport/internal/statement"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusUploaded  Status = "uploaded"
	StatusParsed    Status = "parsed"
	StatusCommitted Status = "committed"
	StatusFailed    Status = "failed"
)

// Terminal reports whether no further transition is allowed out of s.
func (s Status) Terminal() bool {
	return s == StatusCommitted || s == StatusFailed
}

// Stats keys written by the pipeline.
const (
	StatRowsTotal      = "rowsTotal"
	StatRowsOK         = "rowsOk"
	StatRowsError      = "rowsError"
	StatRowsEligible   = "rowsEligible"
	StatRowsInserted   = "rowsInserted"
	StatRowsDuplicated = "rowsDuplicated"
)

// Stats is the accumulating counter object of an import. Phases merge their
// keys into it; nothing replaces it wholesale.
type Stats map[string]int64

// Merge copies every key of other into s and returns s.
func (s Stats) Merge(other Stats) Stats {
	if s == nil {
		s = Stats{}
	}
	for k, v := range other {
		s[k] = v
	}
	return s
}

// BankImport is one uploaded statement file.
type BankImport struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenant_id"`
	CompanyID       string    `json:"company_id"`
	Status          Status    `json:"status"`
	Filename        string    `json:"filename"`
	MimeType        string    `json:"mime_type"`
	SizeBytes       int64     `json:"size_bytes"`
	ContentHash     string    `json:"content_hash"`
	DetectedFormat  string    `json:"detected_format,omitempty"`
	Stats           Stats     `json:"stats"`
	TargetAccountID string    `json:"target_account_id,omitempty"`
	UploadedBy      string    `json:"uploaded_by,omitempty"`
	FailureReason   string    `json:"failure_reason,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// Row is a staging line of an import.
type Row struct {
	ID           string                 `json:"id"`
	TenantID     string                 `json:"-"`
	BankImportID string                 `json:"bank_import_id"`
	RowNumber    int                    `json:"row_number"`
	Status       statement.Status       `json:"status"`
	Errors       []statement.FieldError `json:"errors,omitempty"`
	Parsed       statement.Fields       `json:"parsed"`
	Raw          map[string]string      `json:"raw"`
	CreatedAt    time.Time              `json:"created_at"`
}

// RowFilter narrows ListRows. Rows always come back by ascending row number.
type RowFilter struct {
	ExcludeErrors bool
	Limit         int
	Offset        int
}

type Direction string

const (
	DirectionIn  Direction = "in"
	DirectionOut Direction = "out"
)

// DirectionOf classifies a signed amount.
func DirectionOf(amount decimal.Decimal) Direction {
	if amount.IsNegative() {
		return DirectionOut
	}
	return DirectionIn
}

// SourceManualImport tags ledger entries created from uploaded statements.
const SourceManualImport = "manual_import"

// BankTransaction is an append-only ledger entry.
type BankTransaction struct {
	ID                    string            `json:"id"`
	TenantID              string            `json:"tenant_id"`
	BankAccountID         string            `json:"bank_account_id"`
	BankImportID          string            `json:"bank_import_id,omitempty"`
	ProviderTransactionID string            `json:"provider_transaction_id"`
	Source                string            `json:"source"`
	BookingDate           time.Time         `json:"booking_date"`
	ValueDate             *time.Time        `json:"value_date,omitempty"`
	Amount                decimal.Decimal   `json:"amount"`
	Currency              string            `json:"currency"`
	Description           string            `json:"description"`
	Category              string            `json:"category,omitempty"`
	RunningBalance        *decimal.Decimal  `json:"running_balance,omitempty"`
	Direction             Direction         `json:"direction"`
	ProviderPayload       map[string]string `json:"provider_payload"`
	CreatedAt             time.Time         `json:"created_at"`
}

// Account is the slice of a bank account the committer needs to validate
// ownership.
type Account struct {
	ID        string `json:"id"`
	TenantID  string `json:"tenant_id"`
	CompanyID string `json:"company_id"`
	Name      string `json:"name"`
	Currency  string `json:"currency"`
}

// IngestMeta describes an upload.
type IngestMeta struct {
	TenantID   string
	CompanyID  string
	UploadedBy string
	Filename   string
	MimeType   string
	SizeBytes  int64
}

type IngestResult struct {
	ImportID    string `json:"import_id"`
	Status      Status `json:"status"`
	IsDuplicate bool   `json:"is_duplicate"`
	Recovered   bool   `json:"recovered,omitempty"`
}

type StageResult struct {
	DetectedFormat string `json:"detected_format"`
	Stats          Stats  `json:"stats"`
	Preview        []Row  `json:"preview"`
}

type CommitResult struct {
	Inserted   int `json:"inserted"`
	Duplicated int `json:"duplicated"`
	Total      int `json:"total"`
}
