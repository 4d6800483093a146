package bankimport

import (
	"context"
	"fmt"
	"strings"

	"CimplrBankImport/internal/statement"

	"github.com/google/uuid"
)

// Commit migrates the eligible staged rows of a parsed import into the ledger
// of the target account, exactly once.
//
// The import row lock serializes concurrent commits of one import; the
// ledger's unique (tenant, account, provider transaction id) key absorbs
// retries and identical lines. accountID overrides the account stored on the
// import when non-empty.
func (s *Service) Commit(ctx context.Context, importID, tenantID, accountID string) (*CommitResult, error) {
	const op = "commit"
	log := s.log.With().Str("import_id", importID).Str("tenant_id", tenantID).Logger()

	var res CommitResult
	var target string
	var committed *BankImport
	err := s.store.RunInTx(ctx, tenantID, func(tx Tx) error {
		imp, err := tx.GetImport(ctx, tenantID, importID, true)
		if err != nil {
			return err
		}
		if imp == nil {
			return notFound(op, importID, "import not found")
		}
		switch imp.Status {
		case StatusParsed:
		case StatusCommitted:
			return invalidState(op, importID, "import already committed", string(StatusParsed), imp.Status)
		default:
			return invalidState(op, importID, "import is not ready to commit", string(StatusParsed), imp.Status)
		}

		target = strings.TrimSpace(accountID)
		if target == "" {
			target = imp.TargetAccountID
		}
		if target == "" {
			return &ImportError{Op: op, Kind: ErrInvalidState, ImportID: importID, Msg: "account not selected"}
		}
		acct, err := tx.GetAccount(ctx, tenantID, target)
		if err != nil {
			return err
		}
		if acct == nil || acct.TenantID != imp.TenantID || acct.CompanyID != imp.CompanyID {
			return notFound(op, importID, fmt.Sprintf("invalid account %s for this company", target))
		}

		rows, err := tx.ListRows(ctx, tenantID, importID, RowFilter{ExcludeErrors: true})
		if err != nil {
			return err
		}

		now := s.opts.Now()
		for _, r := range rows {
			t, err := ledgerEntry(imp, acct, r)
			if err != nil {
				return &ImportError{Op: op, Kind: ErrInvalidState, ImportID: importID, Msg: fmt.Sprintf("row %d cannot be booked", r.RowNumber), Err: err}
			}
			t.CreatedAt = now
			inserted, err := tx.InsertTransaction(ctx, t)
			if err != nil {
				return fmt.Errorf("row %d: %w", r.RowNumber, err)
			}
			if inserted {
				res.Inserted++
			} else {
				res.Duplicated++
			}
		}
		res.Total = len(rows)

		imp.Status = StatusCommitted
		imp.TargetAccountID = target
		imp.UpdatedAt = now
		if err := tx.UpdateImport(ctx, imp); err != nil {
			return err
		}
		delta := Stats{
			StatRowsEligible:   int64(res.Total),
			StatRowsInserted:   int64(res.Inserted),
			StatRowsDuplicated: int64(res.Duplicated),
		}
		imp.Stats = imp.Stats.Merge(delta)
		committed = imp
		return tx.MergeStats(ctx, tenantID, importID, delta)
	})
	if err != nil {
		log.Error().Err(err).Msg("commit failed")
		return nil, storageErr(op, importID, err)
	}

	log.Info().
		Str("bank_account_id", target).
		Int("inserted", res.Inserted).
		Int("duplicated", res.Duplicated).
		Int("total", res.Total).
		Msg("import committed")
	s.emit(EventCommitted, committed, committed.Stats)
	return &res, nil
}

func ledgerEntry(imp *BankImport, acct *Account, r Row) (*BankTransaction, error) {
	f := r.Parsed
	booking, err := f.BookingTime()
	if err != nil {
		return nil, fmt.Errorf("booking date %q: %w", f.BookingDate, err)
	}
	t := &BankTransaction{
		ID:                    uuid.NewString(),
		TenantID:              imp.TenantID,
		BankAccountID:         acct.ID,
		BankImportID:          imp.ID,
		ProviderTransactionID: IdempotencyKey(imp.TenantID, acct.ID, f),
		Source:                SourceManualImport,
		BookingDate:           booking,
		Amount:                f.Amount,
		Currency:              currencyOf(f, acct),
		Description:           strings.TrimSpace(f.Description),
		Category:              f.Category,
		RunningBalance:        f.Balance,
		Direction:             DirectionOf(f.Amount),
		ProviderPayload:       r.Raw,
	}
	if vd, ok, err := f.ValueTime(); err != nil {
		return nil, fmt.Errorf("value date %q: %w", f.ValueDate, err)
	} else if ok {
		t.ValueDate = &vd
	}
	return t, nil
}

func currencyOf(f statement.Fields, acct *Account) string {
	if f.Currency != "" {
		return strings.ToUpper(f.Currency)
	}
	return acct.Currency
}
