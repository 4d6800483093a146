package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/statement"
)

const importColumns = `id, tenant_id, company_id, status, filename, mime_type, size_bytes, content_hash,
	detected_format, stats, target_account_id, uploaded_by, failure_reason, created_at, updated_at`

func (t *sqlTx) LockContentHash(ctx context.Context, tenantID, companyID, hash string) error {
	// The IMMEDIATE transaction already holds the write lock.
	return nil
}

func (t *sqlTx) FindActiveImportByHash(ctx context.Context, tenantID, companyID, hash string) (*bankimport.BankImport, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+importColumns+` FROM bank_imports
		WHERE tenant_id = ? AND company_id = ? AND content_hash = ? AND status <> 'failed'
		ORDER BY created_at LIMIT 1`, tenantID, companyID, hash)
	return scanImport(row)
}

func (t *sqlTx) InsertImport(ctx context.Context, imp *bankimport.BankImport) error {
	stats, err := json.Marshal(statsOrEmpty(imp.Stats))
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `INSERT INTO bank_imports (`+importColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		imp.ID, imp.TenantID, imp.CompanyID, string(imp.Status), imp.Filename, imp.MimeType, imp.SizeBytes,
		imp.ContentHash, nullString(imp.DetectedFormat), string(stats), nullString(imp.TargetAccountID),
		imp.UploadedBy, imp.FailureReason, formatTime(imp.CreatedAt), formatTime(imp.UpdatedAt))
	if err != nil {
		return fmt.Errorf("insert bank import: %w", err)
	}
	return nil
}

func (t *sqlTx) GetImport(ctx context.Context, tenantID, importID string, forUpdate bool) (*bankimport.BankImport, error) {
	row := t.tx.QueryRowContext(ctx, `SELECT `+importColumns+` FROM bank_imports
		WHERE id = ? AND tenant_id = ?`, importID, tenantID)
	return scanImport(row)
}

func (t *sqlTx) UpdateImport(ctx context.Context, imp *bankimport.BankImport) error {
	res, err := t.tx.ExecContext(ctx, `UPDATE bank_imports
		SET status = ?, detected_format = ?, target_account_id = ?, failure_reason = ?, updated_at = ?
		WHERE id = ? AND tenant_id = ?`,
		string(imp.Status), nullString(imp.DetectedFormat), nullString(imp.TargetAccountID),
		imp.FailureReason, formatTime(imp.UpdatedAt), imp.ID, imp.TenantID)
	if err != nil {
		return fmt.Errorf("update bank import: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("update bank import %s: no row", imp.ID)
	}
	return nil
}

func (t *sqlTx) MergeStats(ctx context.Context, tenantID, importID string, stats bankimport.Stats) error {
	patch, err := json.Marshal(statsOrEmpty(stats))
	if err != nil {
		return err
	}
	_, err = t.tx.ExecContext(ctx, `UPDATE bank_imports SET stats = json_patch(stats, ?)
		WHERE id = ? AND tenant_id = ?`, string(patch), importID, tenantID)
	if err != nil {
		return fmt.Errorf("merge stats: %w", err)
	}
	return nil
}

func (t *sqlTx) DeleteRows(ctx context.Context, tenantID, importID string) (int64, error) {
	res, err := t.tx.ExecContext(ctx, `DELETE FROM bank_import_rows WHERE bank_import_id = ? AND tenant_id = ?`, importID, tenantID)
	if err != nil {
		return 0, fmt.Errorf("delete rows: %w", err)
	}
	return res.RowsAffected()
}

// InsertRows writes one batch with a single multi-row INSERT.
func (t *sqlTx) InsertRows(ctx context.Context, rows []bankimport.Row) error {
	if len(rows) == 0 {
		return nil
	}
	var b strings.Builder
	b.WriteString(`INSERT INTO bank_import_rows
		(id, tenant_id, bank_import_id, row_number, status, errors, parsed, raw, created_at) VALUES `)
	args := make([]interface{}, 0, len(rows)*9)
	for i, r := range rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		parsed, err := json.Marshal(r.Parsed)
		if err != nil {
			return fmt.Errorf("row %d: %w", r.RowNumber, err)
		}
		raw, err := json.Marshal(r.Raw)
		if err != nil {
			return fmt.Errorf("row %d: %w", r.RowNumber, err)
		}
		var errs interface{}
		if len(r.Errors) > 0 {
			e, err := json.Marshal(r.Errors)
			if err != nil {
				return fmt.Errorf("row %d: %w", r.RowNumber, err)
			}
			errs = string(e)
		}
		args = append(args, r.ID, r.TenantID, r.BankImportID, r.RowNumber, string(r.Status), errs,
			string(parsed), string(raw), formatTime(r.CreatedAt))
	}
	if _, err := t.tx.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert rows: %w", err)
	}
	return nil
}

func (t *sqlTx) ListRows(ctx context.Context, tenantID, importID string, filter bankimport.RowFilter) ([]bankimport.Row, error) {
	q := `SELECT id, tenant_id, bank_import_id, row_number, status, errors, parsed, raw, created_at
		FROM bank_import_rows WHERE bank_import_id = ? AND tenant_id = ?`
	args := []interface{}{importID, tenantID}
	if filter.ExcludeErrors {
		q += ` AND status <> 'error'`
	}
	q += ` ORDER BY row_number`
	if filter.Limit > 0 {
		q += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	} else if filter.Offset > 0 {
		q += ` LIMIT -1 OFFSET ?`
		args = append(args, filter.Offset)
	}
	rs, err := t.tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list rows: %w", err)
	}
	defer rs.Close()

	var out []bankimport.Row
	for rs.Next() {
		var (
			r               bankimport.Row
			status, created string
			errs            sql.NullString
			parsed, raw     string
		)
		if err := rs.Scan(&r.ID, &r.TenantID, &r.BankImportID, &r.RowNumber, &status, &errs, &parsed, &raw, &created); err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		r.Status = statement.Status(status)
		if errs.Valid && errs.String != "" {
			if err := json.Unmarshal([]byte(errs.String), &r.Errors); err != nil {
				return nil, fmt.Errorf("row %d errors: %w", r.RowNumber, err)
			}
		}
		if err := json.Unmarshal([]byte(parsed), &r.Parsed); err != nil {
			return nil, fmt.Errorf("row %d parsed: %w", r.RowNumber, err)
		}
		if err := json.Unmarshal([]byte(raw), &r.Raw); err != nil {
			return nil, fmt.Errorf("row %d raw: %w", r.RowNumber, err)
		}
		if r.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rs.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanImport(row scanner) (*bankimport.BankImport, error) {
	var (
		imp              bankimport.BankImport
		status, stats    string
		format, target   sql.NullString
		created, updated string
	)
	err := row.Scan(&imp.ID, &imp.TenantID, &imp.CompanyID, &status, &imp.Filename, &imp.MimeType,
		&imp.SizeBytes, &imp.ContentHash, &format, &stats, &target, &imp.UploadedBy, &imp.FailureReason,
		&created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan bank import: %w", err)
	}
	imp.Status = bankimport.Status(status)
	imp.DetectedFormat = format.String
	imp.TargetAccountID = target.String
	imp.Stats = bankimport.Stats{}
	if err := json.Unmarshal([]byte(stats), &imp.Stats); err != nil {
		return nil, fmt.Errorf("bank import %s stats: %w", imp.ID, err)
	}
	if imp.CreatedAt, err = parseTime(created); err != nil {
		return nil, err
	}
	if imp.UpdatedAt, err = parseTime(updated); err != nil {
		return nil, err
	}
	return &imp, nil
}

func statsOrEmpty(s bankimport.Stats) bankimport.Stats {
	if s == nil {
		return bankimport.Stats{}
	}
	return s
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, err)
	}
	return t, nil
}
