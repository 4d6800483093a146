package bankimport

import "time"

// Event reports a status change of an import after its transaction committed.
type Event struct {
	Type      string    `json:"type"`
	TenantID  string    `json:"tenant_id"`
	CompanyID string    `json:"company_id"`
	ImportID  string    `json:"import_id"`
	Status    Status    `json:"status"`
	Stats     Stats     `json:"stats,omitempty"`
	Reason    string    `json:"reason,omitempty"`
	At        time.Time `json:"at"`
}

const (
	EventUploaded  = "import.uploaded"
	EventRecovered = "import.recovered"
	EventParsed    = "import.parsed"
	EventCommitted = "import.committed"
	EventFailed    = "import.failed"
)

// Notifier receives pipeline events. Notify must not block.
type Notifier interface {
	Notify(e Event)
}

type nopNotifier struct{}

func (nopNotifier) Notify(Event) {}

func (s *Service) emit(typ string, imp *BankImport, stats Stats) {
	s.opts.Notifier.Notify(Event{
		Type:      typ,
		TenantID:  imp.TenantID,
		CompanyID: imp.CompanyID,
		ImportID:  imp.ID,
		Status:    imp.Status,
		Stats:     stats,
		Reason:    imp.FailureReason,
		At:        s.opts.Now(),
	})
}
