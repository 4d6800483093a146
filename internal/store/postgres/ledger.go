package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"CimplrBankImport/internal/bankimport"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

func (t *pgTx) GetAccount(ctx context.Context, tenantID, accountID string) (*bankimport.Account, error) {
	if !isUUID(accountID) {
		return nil, nil
	}
	var a bankimport.Account
	err := t.tx.QueryRow(ctx, `SELECT id, tenant_id, company_id, name, currency
		FROM bank_accounts WHERE id = $1 AND tenant_id = $2`, accountID, tenantID).
		Scan(&a.ID, &a.TenantID, &a.CompanyID, &a.Name, &a.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get bank account: %w", err)
	}
	return &a, nil
}

func (t *pgTx) InsertAccount(ctx context.Context, a *bankimport.Account) error {
	if !isUUID(a.ID) {
		return fmt.Errorf("insert bank account: id %q is not a UUID", a.ID)
	}
	_, err := t.tx.Exec(ctx, `INSERT INTO bank_accounts (id, tenant_id, company_id, name, currency)
		VALUES ($1, $2, $3, $4, $5)`, a.ID, a.TenantID, a.CompanyID, a.Name, a.Currency)
	if err != nil {
		return fmt.Errorf("insert bank account: %w", err)
	}
	return nil
}

func (t *pgTx) InsertTransaction(ctx context.Context, bt *bankimport.BankTransaction) (bool, error) {
	payload, err := json.Marshal(bt.ProviderPayload)
	if err != nil {
		return false, err
	}
	var balance *string
	if bt.RunningBalance != nil {
		s := bt.RunningBalance.String()
		balance = &s
	}
	tag, err := t.tx.Exec(ctx, `INSERT INTO bank_transactions (
			id, tenant_id, bank_account_id, bank_import_id, provider_transaction_id, source,
			booking_date, value_date, amount, currency, description, category, running_balance,
			direction, provider_payload, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::numeric, $10, $11, $12, $13::numeric, $14, $15::jsonb, $16)
		ON CONFLICT (tenant_id, bank_account_id, provider_transaction_id) DO NOTHING`,
		bt.ID, bt.TenantID, bt.BankAccountID, nullable(bt.BankImportID), bt.ProviderTransactionID, bt.Source,
		bt.BookingDate, bt.ValueDate, bt.Amount.String(), bt.Currency, bt.Description, bt.Category, balance,
		string(bt.Direction), string(payload), bt.CreatedAt)
	if err != nil {
		return false, fmt.Errorf("insert bank transaction: %w", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) ListTransactions(ctx context.Context, tenantID, accountID string) ([]bankimport.BankTransaction, error) {
	if !isUUID(accountID) {
		return nil, nil
	}
	rs, err := t.tx.Query(ctx, `SELECT id, tenant_id, bank_account_id, bank_import_id, provider_transaction_id,
			source, booking_date, value_date, amount::text, currency, description, category,
			running_balance::text, direction, provider_payload, created_at
		FROM bank_transactions WHERE tenant_id = $1 AND bank_account_id = $2
		ORDER BY booking_date, created_at, id`, tenantID, accountID)
	if err != nil {
		return nil, fmt.Errorf("list bank transactions: %w", err)
	}
	defer rs.Close()

	var out []bankimport.BankTransaction
	for rs.Next() {
		var (
			bt                bankimport.BankTransaction
			importID, balance *string
			valueDate         *time.Time
			amount, direction string
			payload           []byte
		)
		if err := rs.Scan(&bt.ID, &bt.TenantID, &bt.BankAccountID, &importID, &bt.ProviderTransactionID,
			&bt.Source, &bt.BookingDate, &valueDate, &amount, &bt.Currency, &bt.Description, &bt.Category,
			&balance, &direction, &payload, &bt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan bank transaction: %w", err)
		}
		if importID != nil {
			bt.BankImportID = *importID
		}
		bt.ValueDate = valueDate
		bt.Direction = bankimport.Direction(direction)
		if bt.Amount, err = decimal.NewFromString(amount); err != nil {
			return nil, fmt.Errorf("transaction %s amount: %w", bt.ID, err)
		}
		if balance != nil {
			b, err := decimal.NewFromString(*balance)
			if err != nil {
				return nil, fmt.Errorf("transaction %s balance: %w", bt.ID, err)
			}
			bt.RunningBalance = &b
		}
		if err := json.Unmarshal(payload, &bt.ProviderPayload); err != nil {
			return nil, fmt.Errorf("transaction %s payload: %w", bt.ID, err)
		}
		out = append(out, bt)
	}
	return out, rs.Err()
}
