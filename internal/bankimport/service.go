// Package bankimport implements the three-phase statement pipeline: ingest
// (content-addressed upload), stage (parse into replaceable rows) and commit
// (exactly-once migration into the ledger).
package bankimport

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"CimplrBankImport/internal/config"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// TempPrefix is where uploads wait before being moved to their canonical key.
const TempPrefix = "tmp/"

// ArtifactKey is the canonical storage key of an import's file.
func ArtifactKey(importID, filename string) string {
	ext := strings.ToLower(filepath.Ext(filename))
	if len(ext) > 10 || strings.ContainsAny(ext, `/\ `) {
		ext = ""
	}
	return "bank_import_" + importID + ext
}

func tempArtifactKey() string {
	return TempPrefix + "upload_" + uuid.NewString()
}

// UnrecognizedPolicy says what Stage does when no parser claims a file.
type UnrecognizedPolicy string

const (
	UnrecognizedReject UnrecognizedPolicy = "reject"
	UnrecognizedCSV    UnrecognizedPolicy = "csv"
)

type Options struct {
	PreviewSize        int
	InsertBatchSize    int
	Unrecognized       UnrecognizedPolicy
	FailOnUnrecognized bool
	Logger             *zerolog.Logger
	Now                func() time.Time
	// Notifier hears about each status change once its transaction commits.
	Notifier Notifier
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.PreviewSize <= 0 {
		out.PreviewSize = config.DefaultPreviewSize
	}
	if out.InsertBatchSize <= 0 {
		out.InsertBatchSize = config.DefaultInsertBatchSize
	}
	if out.Unrecognized == "" {
		out.Unrecognized = UnrecognizedReject
	}
	if out.Logger == nil {
		nop := zerolog.Nop()
		out.Logger = &nop
	}
	if out.Now == nil {
		out.Now = func() time.Time { return time.Now().UTC() }
	}
	if out.Notifier == nil {
		out.Notifier = nopNotifier{}
	}
	return out
}

// ParsePolicy validates a configured unrecognized-format policy.
func ParsePolicy(s string) (UnrecognizedPolicy, error) {
	switch p := UnrecognizedPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return UnrecognizedReject, nil
	case UnrecognizedReject, UnrecognizedCSV:
		return p, nil
	default:
		return "", fmt.Errorf("unknown unrecognized_format policy %q (want reject or csv)", s)
	}
}

// OptionsFromConfig reads the bankimport block of services.yaml.
func OptionsFromConfig(cfg map[string]interface{}) (*Options, error) {
	policy, err := ParsePolicy(config.String(cfg, "unrecognized_format", ""))
	if err != nil {
		return nil, err
	}
	return &Options{
		PreviewSize:        config.Int(cfg, "preview_size", config.DefaultPreviewSize),
		InsertBatchSize:    config.Int(cfg, "insert_batch_size", config.DefaultInsertBatchSize),
		Unrecognized:       policy,
		FailOnUnrecognized: config.Bool(cfg, "fail_on_unrecognized", false),
	}, nil
}

// Service runs Ingest, Stage and Commit, plus the read and failure
// operations around them.
type Service struct {
	store     Store
	artifacts ArtifactStore
	parser    StatementParser
	opts      Options
	log       zerolog.Logger
}

func NewService(store Store, artifacts ArtifactStore, parser StatementParser, opts *Options) *Service {
	o := opts.withDefaults()
	return &Service{
		store:     store,
		artifacts: artifacts,
		parser:    parser,
		opts:      o,
		log:       o.Logger.With().Str("component", "bankimport").Logger(),
	}
}

// Get returns an import owned by tenantID.
func (s *Service) Get(ctx context.Context, importID, tenantID string) (*BankImport, error) {
	var imp *BankImport
	err := s.store.RunInTx(ctx, tenantID, func(tx Tx) error {
		var err error
		imp, err = tx.GetImport(ctx, tenantID, importID, false)
		if err != nil {
			return err
		}
		if imp == nil {
			return notFound("get", importID, "import not found")
		}
		return nil
	})
	if err != nil {
		return nil, storageErr("get", importID, err)
	}
	return imp, nil
}

// Rows lists staged rows of an import by ascending row number.
func (s *Service) Rows(ctx context.Context, importID, tenantID string, filter RowFilter) ([]Row, error) {
	var rows []Row
	err := s.store.RunInTx(ctx, tenantID, func(tx Tx) error {
		imp, err := tx.GetImport(ctx, tenantID, importID, false)
		if err != nil {
			return err
		}
		if imp == nil {
			return notFound("rows", importID, "import not found")
		}
		rows, err = tx.ListRows(ctx, tenantID, importID, filter)
		return err
	})
	if err != nil {
		return nil, storageErr("rows", importID, err)
	}
	return rows, nil
}

// Fail moves a non-terminal import to failed, recording reason.
func (s *Service) Fail(ctx context.Context, importID, tenantID, reason string) (*BankImport, error) {
	var imp *BankImport
	err := s.store.RunInTx(ctx, tenantID, func(tx Tx) error {
		var err error
		imp, err = tx.GetImport(ctx, tenantID, importID, true)
		if err != nil {
			return err
		}
		if imp == nil {
			return notFound("fail", importID, "import not found")
		}
		if imp.Status.Terminal() {
			return invalidState("fail", importID, "import already finished", "uploaded or parsed", imp.Status)
		}
		imp.Status = StatusFailed
		imp.FailureReason = truncate(reason, 2000)
		imp.UpdatedAt = s.opts.Now()
		return tx.UpdateImport(ctx, imp)
	})
	if err != nil {
		return nil, storageErr("fail", importID, err)
	}
	s.log.Warn().Str("import_id", importID).Str("tenant_id", tenantID).Str("reason", imp.FailureReason).Msg("import marked failed")
	s.emit(EventFailed, imp, nil)
	return imp, nil
}

// RegisterAccount adds a bank account a commit can target.
func (s *Service) RegisterAccount(ctx context.Context, acct *Account) error {
	if acct.ID == "" {
		acct.ID = uuid.NewString()
	}
	err := s.store.RunInTx(ctx, acct.TenantID, func(tx Tx) error {
		return tx.InsertAccount(ctx, acct)
	})
	return storageErr("register account", "", err)
}

// Ledger lists the ledger entries of an account.
func (s *Service) Ledger(ctx context.Context, tenantID, accountID string) ([]BankTransaction, error) {
	var out []BankTransaction
	err := s.store.RunInTx(ctx, tenantID, func(tx Tx) error {
		var err error
		out, err = tx.ListTransactions(ctx, tenantID, accountID)
		return err
	})
	return out, storageErr("ledger", "", err)
}

func truncate(s string, max int) string {
	if len(s) > max {
		return s[:max]
	}
	return s
}
