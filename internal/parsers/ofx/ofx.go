// Package ofx parses OFX/QFX bank and credit card statements (SGML v1 and
// XML v2).
package ofx

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"CimplrBankImport/internal/statement"

	"github.com/aclindsa/ofxgo"
	"github.com/shopspring/decimal"
)

const Name = "ofx"

type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) Name() string { return Name }

// CanParse trusts the header markers. The extension only matters for files
// that carry no marker in the sampled prefix.
func (p *Parser) CanParse(filename, mimeType string, header []byte) bool {
	upper := strings.ToUpper(string(header))
	if strings.Contains(upper, "OFXHEADER") || strings.Contains(upper, "<?OFX") || strings.Contains(upper, "<OFX>") {
		return true
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return (ext == ".ofx" || ext == ".qfx") && strings.Contains(upper, "<OFX")
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]statement.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	resp, err := ofxgo.ParseResponse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("parse ofx (%d bytes): %w", len(data), err)
	}

	var lines []statement.Line
	found := false
	for _, msg := range resp.Bank {
		stmt, ok := msg.(*ofxgo.StatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		found = true
		lines = appendTransactions(lines, stmt.BankTranList.Transactions, stmt.CurDef.String())
	}
	for _, msg := range resp.CreditCard {
		stmt, ok := msg.(*ofxgo.CCStatementResponse)
		if !ok || stmt.BankTranList == nil {
			continue
		}
		found = true
		lines = appendTransactions(lines, stmt.BankTranList.Transactions, stmt.CurDef.String())
	}
	if !found {
		return nil, fmt.Errorf("ofx file has no bank or credit card statement (bank: %d, creditcard: %d)",
			len(resp.Bank), len(resp.CreditCard))
	}
	return lines, nil
}

func appendTransactions(lines []statement.Line, txns []ofxgo.Transaction, curDef string) []statement.Line {
	for _, txn := range txns {
		line := statement.Line{
			RowNumber: len(lines) + 1,
			Status:    statement.StatusOK,
			Raw: map[string]string{
				"fitid":    txn.FiTID.String(),
				"trntype":  txn.TrnType.String(),
				"dtposted": formatDate(txn.DtPosted.Time),
				"trnamt":   txn.TrnAmt.String(),
				"name":     txn.Name.String(),
				"memo":     txn.Memo.String(),
			},
		}
		f := &line.Fields

		date := txn.DtPosted.Time
		if date.IsZero() && txn.DtUser != nil {
			date = txn.DtUser.Time
		}
		if date.IsZero() {
			line.AddError("booking_date", "required", "transaction has neither posted nor user date")
		} else {
			f.BookingDate = formatDate(date)
		}
		if txn.DtAvail != nil && !txn.DtAvail.IsZero() {
			f.ValueDate = formatDate(txn.DtAvail.Time)
		}

		amt, err := decimal.NewFromString(txn.TrnAmt.Rat.FloatString(6))
		if err != nil {
			line.AddError("amount", "invalid_amount", err.Error())
		} else {
			f.Amount = amt
		}

		desc := strings.TrimSpace(txn.Name.String())
		memo := strings.TrimSpace(txn.Memo.String())
		switch {
		case desc == "":
			desc = memo
		case memo != "" && memo != desc:
			desc += " " + memo
		}
		f.Description = desc

		f.Currency = knownCurrency(curDef)
		if txn.Currency != nil {
			if c := knownCurrency(txn.Currency.CurSym.String()); c != "" {
				f.Currency = c
			}
		}
		lines = append(lines, line)
	}
	return lines
}

// knownCurrency drops the XXX placeholder an unset symbol prints as.
func knownCurrency(c string) string {
	if c == "XXX" {
		return ""
	}
	return c
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format(statement.DateLayout)
}
