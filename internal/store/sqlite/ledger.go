package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/statement"

	"github.com/shopspring/decimal"
)

func (t *sqlTx) GetAccount(ctx context.Context, tenantID, accountID string) (*bankimport.Account, error) {
	var a bankimport.Account
	err := t.tx.QueryRowContext(ctx, `SELECT id, tenant_id, company_id, name, currency
		FROM bank_accounts WHERE id = ? AND tenant_id = ?`, accountID, tenantID).
		Scan(&a.ID, &a.TenantID, &a.CompanyID, &a.Name, &a.Currency)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bank account: %w", err)
	}
	return &a, nil
}

func (t *sqlTx) InsertAccount(ctx context.Context, a *bankimport.Account) error {
	_, err := t.tx.ExecContext(ctx, `INSERT INTO bank_accounts (id, tenant_id, company_id, name, currency)
		VALUES (?, ?, ?, ?, ?)`, a.ID, a.TenantID, a.CompanyID, a.Name, a.Currency)
	if err != nil {
		return fmt.Errorf("insert bank account: %w", err)
	}
	return nil
}

func (t *sqlTx) InsertTransaction(ctx context.Context, bt *bankimport.BankTransaction) (bool, error) {
	payload, err := json.Marshal(bt.ProviderPayload)
	if err != nil {
		return false, err
	}
	var valueDate, balance interface{}
	if bt.ValueDate != nil {
		valueDate = bt.ValueDate.Format(statement.DateLayout)
	}
	if bt.RunningBalance != nil {
		balance = bt.RunningBalance.String()
	}
	res, err := t.tx.ExecContext(ctx, `INSERT INTO bank_transactions (
			id, tenant_id, bank_account_id, bank_import_id, provider_transaction_id, source,
			booking_date, value_date, amount, currency, description, category, running_balance,
			direction, provider_payload, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (tenant_id, bank_account_id, provider_transaction_id) DO NOTHING`,
		bt.ID, bt.TenantID, bt.BankAccountID, nullString(bt.BankImportID), bt.ProviderTransactionID, bt.Source,
		bt.BookingDate.Format(statement.DateLayout), valueDate, bt.Amount.String(), bt.Currency,
		bt.Description, bt.Category, balance, string(bt.Direction), string(payload), formatTime(bt.CreatedAt))
	if err != nil {
		return false, fmt.Errorf("insert bank transaction: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (t *sqlTx) ListTransactions(ctx context.Context, tenantID, accountID string) ([]bankimport.BankTransaction, error) {
	rs, err := t.tx.QueryContext(ctx, `SELECT id, tenant_id, bank_account_id, bank_import_id, provider_transaction_id,
			source, booking_date, value_date, amount, currency, description, category, running_balance,
			direction, provider_payload, created_at
		FROM bank_transactions WHERE tenant_id = ? AND bank_account_id = ?
		ORDER BY booking_date, created_at, id`, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list bank transactions: %w", err)
	}
	defer rs.Close()

	var out []bankimport.BankTransaction
	for rs.Next() {
		var (
			bt                         bankimport.BankTransaction
			importID, valueDate, bal   sql.NullString
			booking, amount, direction string
			payload, created           string
		)
		if err := rs.Scan(&bt.ID, &bt.TenantID, &bt.BankAccountID, &importID, &bt.ProviderTransactionID,
			&bt.Source, &booking, &valueDate, &amount, &bt.Currency, &bt.Description, &bt.Category, &bal,
			&direction, &payload, &created); err != nil {
			return nil, fmt.Errorf("scan bank transaction: %w", err)
		}
		bt.BankImportID = importID.String
		bt.Direction = bankimport.Direction(direction)
		if bt.BookingDate, err = time.Parse(statement.DateLayout, booking); err != nil {
			return nil, err
		}
		if valueDate.Valid {
			vd, err := time.Parse(statement.DateLayout, valueDate.String)
			if err != nil {
				return nil, err
			}
			bt.ValueDate = &vd
		}
		if bt.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", bt.ID, err)
		}
		if bal.Valid {
			b, err := decimal.NewFromString(bal.String)
			if err != nil {
				return nil, fmt.Errorf("transaction %s balance: %w", bt.ID, err)
			}
			bt.RunningBalance = &b
		}
		if err := json.Unmarshal([]byte(payload), &bt.ProviderPayload); err != nil {
			return nil, fmt.Errorf("transaction %s payload: %w", bt.ID, err)
		}
		if bt.CreatedAt, err = parseTime(created); err != nil {
			return nil, err
		}
		out = append(out, bt)
	}
	return out, rs.Err()
}
