package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/statement"

	"github.com/jackc/pgx/v5"
)

const importColumns = `id, tenant_id, company_id, status, filename, mime_type, size_bytes, content_hash,
	detected_format, stats, target_account_id, uploaded_by, failure_reason, created_at, updated_at`

// LockContentHash takes a transaction-scoped advisory lock keyed on the
// company and content hash.
func (t *pgTx) LockContentHash(ctx context.Context, tenantID, companyID, hash string) error {
	key := tenantID + "|" + companyID + "|" + hash
	if _, err := t.tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key); err != nil {
		return fmt.Errorf("lock content hash: %w", err)
	}
	return nil
}

func (t *pgTx) FindActiveImportByHash(ctx context.Context, tenantID, companyID, hash string) (*bankimport.BankImport, error) {
	row := t.tx.QueryRow(ctx, `SELECT `+importColumns+` FROM bank_imports
		WHERE tenant_id = $1 AND company_id = $2 AND content_hash = $3 AND status <> 'failed'
		ORDER BY created_at LIMIT 1`, tenantID, companyID, hash)
	return scanImport(row)
}

func (t *pgTx) InsertImport(ctx context.Context, imp *bankimport.BankImport) error {
	stats, err := json.Marshal(statsOrEmpty(imp.Stats))
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `INSERT INTO bank_imports (`+importColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10::jsonb, $11, $12, $13, $14, $15)`,
		imp.ID, imp.TenantID, imp.CompanyID, string(imp.Status), imp.Filename, imp.MimeType, imp.SizeBytes,
		imp.ContentHash, nullable(imp.DetectedFormat), string(stats), nullable(imp.TargetAccountID),
		imp.UploadedBy, imp.FailureReason, imp.CreatedAt, imp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert bank import: %w", err)
	}
	return nil
}

func (t *pgTx) GetImport(ctx context.Context, tenantID, importID string, forUpdate bool) (*bankimport.BankImport, error) {
	if !isUUID(importID) {
		return nil, nil
	}
	q := `SELECT ` + importColumns + ` FROM bank_imports WHERE id = $1 AND tenant_id = $2`
	if forUpdate {
		q += ` FOR UPDATE`
	}
	return scanImport(t.tx.QueryRow(ctx, q, importID, tenantID))
}

func (t *pgTx) UpdateImport(ctx context.Context, imp *bankimport.BankImport) error {
	tag, err := t.tx.Exec(ctx, `UPDATE bank_imports
		SET status = $1, detected_format = $2, target_account_id = $3, failure_reason = $4, updated_at = $5
		WHERE id = $6 AND tenant_id = $7`,
		string(imp.Status), nullable(imp.DetectedFormat), nullable(imp.TargetAccountID),
		imp.FailureReason, imp.UpdatedAt, imp.ID, imp.TenantID)
	if err != nil {
		return fmt.Errorf("update bank import: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("update bank import %s: no row", imp.ID)
	}
	return nil
}

func (t *pgTx) MergeStats(ctx context.Context, tenantID, importID string, stats bankimport.Stats) error {
	patch, err := json.Marshal(statsOrEmpty(stats))
	if err != nil {
		return err
	}
	_, err = t.tx.Exec(ctx, `UPDATE bank_imports SET stats = stats || $1::jsonb
		WHERE id = $2 AND tenant_id = $3`, string(patch), importID, tenantID)
	if err != nil {
		return fmt.Errorf("merge stats: %w", err)
	}
	return nil
}

func (t *pgTx) DeleteRows(ctx context.Context, tenantID, importID string) (int64, error) {
	if !isUUID(importID) {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM bank_import_rows WHERE bank_import_id = $1 AND tenant_id = $2`, importID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}
	return tag.RowsAffected(), nil
}

// InsertRows sends the chunk as one pipelined batch.
func (t *pgTx) InsertRows(ctx context.Context, rows []bankimport.Row) error {
	if len(rows) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, r := range rows {
		parsed, err := json.Marshal(r.Parsed)
		if err != nil {
			return fmt.Errorf("row %d: %w", r.RowNumber, err)
		}
		raw, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("row %d: %w", r.RowNumber, err)
		}
		var errs *string
		if len(r.Errors) > 0 {
			e, err := json.Marshal(r.Errors)
			if err != nil {
				return fmt.Errorf("row %d: %w", r.RowNumber, err)
			}
			s := string(e)
			errs = &s
		}
		batch.Queue(`INSERT INTO bank_import_rows
			(id, tenant_id, bank_import_id, row_number, status, errors, parsed, raw, created_at)
			VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7::jsonb, $8::jsonb, $9)`,
			r.ID, r.TenantID, r.BankImportID, r.RowNumber, string(r.Status), errs,
			string(parsed), string(raw), r.CreatedAt)
	}
	br := t.tx.SendBatch(ctx, batch)
	for range rows {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("insert rows: %w", err)
		}
	}
	return br.Close()
}

func (t *pgTx) ListRows(ctx context.Context, tenantID, importID string, filter bankimport.RowFilter) ([]bankimport.Row, error) {
	if !isUUID(importID) {
		return nil, nil
	}
	q := `SELECT id, tenant_id, bank_import_id, row_number, status, errors, parsed, raw, created_at
		FROM bank_import_rows WHERE bank_import_id = $1 AND tenant_id = $2`
	if filter.ExcludeErrors {
		q += ` AND status <> 'error'`
	}
	q += ` ORDER BY row_number`
	args := []any{importID, tenantID}
	if filter.Limit > 0 {
		q += ` LIMIT $3`
		args = append(args, filter.Limit)
	}
	if filter.Offset > 0 {
		q += fmt.Sprintf(` OFFSET $%d`, len(args)+1)
		args = append(args, filter.Offset)
	}
	rs, err := t.tx.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rs.Close()

	var out []bankimport.Row
	for rs.Next() {
		var (
			r           bankimport.Row
			status      string
			errs        []byte
			parsed, raw []byte
		)
		if err := rs.Scan(&r.ID, &r.TenantID, &r.BankImportID, &r.RowNumber, &status, &errs, &parsed, &raw, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Status = statement.Status(status)
		if len(errs) > 0 {
			if err := json.Unmarshal(errs, &r.Errors); err != nil {
				return nil, fmt.Errorf("row %d errors: %w", r.RowNumber, err)
			}
		}
		if err := json.Unmarshal(parsed, &r.Parsed); err != nil {
			return nil, fmt.Errorf("row %d parsed: %w", r.RowNumber, err)
		}
		if err := json.Unmarshal(raw, &r.Raw); err != nil {
			return nil, fmt.Errorf("row %d raw: %w", r.RowNumber, err)
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

func scanImport(row pgx.Row) (*bankimport.BankImport, error) {
	var (
		imp            bankimport.BankImport
		status         string
		stats          []byte
		format, target *string
	)
	err := row.Scan(&imp.ID, &imp.TenantID, &imp.CompanyID, &status, &imp.Filename, &imp.MimeType,
		&imp.SizeBytes, &imp.ContentHash, &format, &stats, &target, &imp.UploadedBy, &imp.FailureReason,
		&imp.CreatedAt, &imp.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan bank import: %w", err)
	}
	imp.Status = bankimport.Status(status)
	if format != nil {
		imp.DetectedFormat = *format
	}
	if target != nil {
		imp.TargetAccountID = *target
	}
	imp.Stats = bankimport.Stats{}
	if err := json.Unmarshal(stats, &imp.Stats); err != nil {
		return nil, fmt.Errorf("bank import %s stats: %w", imp.ID, err)
	}
	return &imp, nil
}

func statsOrEmpty(s bankimport.Stats) bankimport.Stats {
	if s == nil {
		return bankimport.Stats{}
	}
	return s
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
