package bankimport

import (
	"strings"

	"CimplrBankImport/internal/checksum"
	"CimplrBankImport/internal/statement"
)

// IdempotencyKey derives the ledger provider transaction id from the economic
// content of a line. It must not depend on the staging row identity: rows are
// regenerated on every re-parse.
func IdempotencyKey(tenantID, accountID string, f statement.Fields) string {
	balance := ""
	if f.Balance != nil {
		balance = f.Balance.String()
	}
	return checksum.SumFields(
		tenantID,
		accountID,
		f.BookingDate,
		f.Amount.String(),
		strings.ToUpper(strings.TrimSpace(f.Description)),
		balance,
	)
}
