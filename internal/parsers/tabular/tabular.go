// Package tabular maps the grid of a spreadsheet or delimited statement onto
// statement lines. Banks disagree on column names, so headers are matched
// against alias lists after normalization, and amounts may come either as a
// signed amount column or as separate withdrawal and deposit columns.
package tabular

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode"

	"CimplrBankImport/internal/statement"

	"github.com/shopspring/decimal"
)

// headerScanRows bounds how far down the sheet the header row may sit; most
// exports put account details above the table.
const headerScanRows = 30

const nbsp = " "

// ErrNoHeader is returned when no row looks like a transaction table header.
var ErrNoHeader = errors.New("no transaction header row found")

type column int

const (
	colBookingDate column = iota
	colValueDate
	colDescription
	colAmount
	colDebit
	colCredit
	colDrCr
	colBalance
	colCurrency
	colCategory
	numColumns
)

var aliases = map[column][]string{
	colBookingDate: {"date", "booking date", "txn date", "tran date", "transaction date", "posting date", "posted date", "post date", "trans date"},
	colValueDate:   {"value date", "value dt", "valuedate"},
	colDescription: {"description", "narration", "particulars", "details", "transaction details", "remarks", "memo", "payee", "transaction remarks"},
	colAmount:      {"amount", "transaction amount", "amt", "txn amount"},
	colDebit:       {"debit", "withdrawal", "withdrawals", "withdrawal amt", "withdrawal amount", "debit amount", "dr amount", "paid out", "money out"},
	colCredit:      {"credit", "deposit", "deposits", "deposit amt", "deposit amount", "credit amount", "cr amount", "paid in", "money in"},
	colDrCr:        {"dr cr", "cr dr", "debit credit", "dr/cr", "cr/dr", "type"},
	colBalance:     {"balance", "closing balance", "running balance", "available balance", "balance amt"},
	colCurrency:    {"currency", "ccy", "curr"},
	colCategory:    {"category"},
}

// layout tracks the index of each recognized column, -1 when absent.
type layout [numColumns]int

func (l layout) has(c column) bool { return l[c] >= 0 }

func (l layout) cell(record []string, c column) string {
	i := l[c]
	if i < 0 || i >= len(record) {
		return ""
	}
	return normalizeCell(record[i])
}

// Lines finds the header row and converts each following non-blank record to
// a line. Per-record problems become error lines; only a grid with no usable
// header fails as a whole.
func Lines(records [][]string) ([]statement.Line, error) {
	hdrIdx, cols, ok := findHeader(records)
	if !ok {
		return nil, ErrNoHeader
	}
	names := headerNames(records[hdrIdx])
	dec := fileDecimal(cols, records[hdrIdx+1:])

	var lines []statement.Line
	for _, rec := range records[hdrIdx+1:] {
		if blank(rec) {
			continue
		}
		line := statement.Line{
			RowNumber: len(lines) + 1,
			Status:    statement.StatusOK,
			Raw:       raw(names, rec),
		}
		fill(&line, cols, rec, dec)
		lines = append(lines, line)
	}
	return lines, nil
}

func findHeader(records [][]string) (int, layout, bool) {
	for i := 0; i < len(records) && i < headerScanRows; i++ {
		cols := match(records[i])
		if cols.has(colBookingDate) && (cols.has(colAmount) || cols.has(colDebit) || cols.has(colCredit)) {
			return i, cols, true
		}
	}
	return 0, layout{}, false
}

func match(header []string) layout {
	var l layout
	for c := range l {
		l[c] = -1
	}
	for i, h := range header {
		key := headerKey(h)
		if key == "" {
			continue
		}
		for c := column(0); c < numColumns; c++ {
			if l[c] >= 0 {
				continue
			}
			if contains(aliases[c], key) {
				l[c] = i
				break
			}
		}
	}
	return l
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// headerKey lowercases a header, drops bracketed units such as "(INR)" and
// keeps letters, digits, spaces and slashes.
func headerKey(s string) string {
	s = strings.ToLower(normalizeCell(s))
	if i := strings.IndexAny(s, "(["); i > 0 {
		s = s[:i]
	}
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsLetter(r), unicode.IsDigit(r), r == '/':
			b.WriteRune(r)
		case r == ' ', r == '_', r == '-', r == '.':
			b.WriteRune(' ')
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}

func headerNames(header []string) []string {
	names := make([]string, len(header))
	seen := map[string]bool{}
	for i, h := range header {
		n := normalizeCell(h)
		if n == "" || seen[n] {
			n = fmt.Sprintf("col_%d", i+1)
		}
		seen[n] = true
		names[i] = n
	}
	return names
}

func raw(names []string, rec []string) map[string]string {
	out := make(map[string]string, len(rec))
	for i, v := range rec {
		name := fmt.Sprintf("col_%d", i+1)
		if i < len(names) {
			name = names[i]
		}
		out[name] = v
	}
	return out
}

func blank(rec []string) bool {
	for _, v := range rec {
		if normalizeCell(v) != "" {
			return false
		}
	}
	return true
}

func fill(line *statement.Line, cols layout, rec []string, dec rune) {
	f := &line.Fields

	if d := cols.cell(rec, colBookingDate); d == "" {
		line.AddError("booking_date", "required", "booking date is empty")
	} else if t, err := ParseDate(d); err != nil {
		line.AddError("booking_date", "invalid_date", err.Error())
	} else {
		f.BookingDate = t.Format(statement.DateLayout)
	}

	if d := cols.cell(rec, colValueDate); d != "" {
		if t, err := ParseDate(d); err != nil {
			line.AddError("value_date", "invalid_date", err.Error())
		} else {
			f.ValueDate = t.Format(statement.DateLayout)
		}
	}

	f.Description = cols.cell(rec, colDescription)
	f.Category = cols.cell(rec, colCategory)
	f.Currency = strings.ToUpper(cols.cell(rec, colCurrency))

	amount, err := resolveAmount(cols, rec, dec)
	if err != nil {
		line.AddError("amount", err.code, err.msg)
	} else {
		f.Amount = amount
	}

	if b := cols.cell(rec, colBalance); b != "" {
		bal, present, perr := parseAmount(b, dec)
		if perr != nil {
			ferr := amountError("", perr)
			line.AddError("balance", ferr.code, ferr.msg)
		} else if present {
			f.Balance = &bal
		}
	}
}

type fieldErr struct{ code, msg string }

func resolveAmount(cols layout, rec []string, dec rune) (decimal.Decimal, *fieldErr) {
	if cols.has(colAmount) {
		amt, present, err := parseAmount(cols.cell(rec, colAmount), dec)
		if err != nil {
			return decimal.Zero, amountError("", err)
		}
		if present {
			if ind := strings.ToUpper(cols.cell(rec, colDrCr)); strings.HasPrefix(ind, "D") {
				amt = amt.Abs().Neg()
			} else if strings.HasPrefix(ind, "C") {
				amt = amt.Abs()
			}
			return amt, nil
		}
		if !cols.has(colDebit) && !cols.has(colCredit) {
			return decimal.Zero, &fieldErr{"required", "amount is empty"}
		}
	}

	debit, hasDebit, err := parseAmount(cols.cell(rec, colDebit), dec)
	if err != nil {
		return decimal.Zero, amountError("debit: ", err)
	}
	credit, hasCredit, err := parseAmount(cols.cell(rec, colCredit), dec)
	if err != nil {
		return decimal.Zero, amountError("credit: ", err)
	}
	hasDebit = hasDebit && !debit.IsZero()
	hasCredit = hasCredit && !credit.IsZero()
	switch {
	case hasDebit && hasCredit:
		return decimal.Zero, &fieldErr{"ambiguous_amount", "both debit and credit are set"}
	case hasDebit:
		return debit.Abs().Neg(), nil
	case hasCredit:
		return credit.Abs(), nil
	default:
		return decimal.Zero, &fieldErr{"required", "no debit or credit amount"}
	}
}

// ParseAmount reads a bank-formatted amount. present is false for an empty
// cell. Thousands separators, currency marks, trailing CR/DR, a trailing minus
// and accounting parentheses are understood. Both 1,234.56 and 1.234,56 are
// accepted; a lone comma followed by exactly three digits (1,234) could be
// either and fails with ErrAmbiguousAmount.
func ParseAmount(s string) (d decimal.Decimal, present bool, err error) {
	return parseAmount(s, 0)
}

// parseAmount is ParseAmount with the decimal separator of the file, or 0
// when it is unknown.
func parseAmount(s string, dec rune) (d decimal.Decimal, present bool, err error) {
	s = strings.ToUpper(normalizeCell(s))
	if s == "" || s == "-" {
		return decimal.Zero, false, nil
	}
	neg := false
	switch {
	case strings.HasSuffix(s, "DR"):
		neg = true
		s = strings.TrimSpace(strings.TrimSuffix(s, "DR"))
	case strings.HasSuffix(s, "CR"):
		s = strings.TrimSpace(strings.TrimSuffix(s, "CR"))
	}
	if strings.HasPrefix(s, "(") && strings.HasSuffix(s, ")") {
		neg = true
		s = s[1 : len(s)-1]
	}
	if strings.HasSuffix(s, "-") {
		neg = true
		s = strings.TrimSuffix(s, "-")
	}
	num, ok := digits(s)
	if !ok {
		return decimal.Zero, true, fmt.Errorf("invalid amount %q", s)
	}
	num, err = normalizeSeparators(num, dec)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("amount %q: %w", s, err)
	}
	d, err = decimal.NewFromString(num)
	if err != nil {
		return decimal.Zero, true, fmt.Errorf("invalid amount %q", s)
	}
	if neg {
		d = d.Abs().Neg()
	}
	return d, true, nil
}

// digits keeps signs, digits and separators, dropping spaces, apostrophes,
// letters and currency symbols.
func digits(s string) (string, bool) {
	var b strings.Builder
	for _, r := range s {
		switch {
		case unicode.IsDigit(r), r == '.', r == ',', r == '-', r == '+':
			b.WriteRune(r)
		case r == ' ', r == '\'':
		case unicode.IsLetter(r), unicode.Is(unicode.Sc, r):
		default:
			return "", false
		}
	}
	return b.String(), true
}

// ErrAmbiguousAmount marks an amount whose decimal separator cannot be told
// apart from a thousands separator.
var ErrAmbiguousAmount = errors.New("ambiguous decimal separator")

var errBadGrouping = errors.New("malformed digit grouping")

// normalizeSeparators rewrites num so that '.' is the only separator left and
// it marks the decimals. dec is the file's decimal separator, 0 if unknown.
func normalizeSeparators(num string, dec rune) (string, error) {
	if dec == 0 {
		dec = decimalHint(num)
	}
	switch dec {
	case '.', ',':
		thou := ","
		if dec == ',' {
			thou = "."
		}
		intPart, frac, _ := strings.Cut(num, string(dec))
		if strings.ContainsAny(frac, ".,") {
			return "", errBadGrouping
		}
		if strings.Contains(intPart, thou) {
			groups := strings.Split(intPart, thou)
			if len(groups[len(groups)-1]) != 3 {
				return "", errBadGrouping
			}
			intPart = strings.Join(groups, "")
		}
		if frac == "" && !strings.Contains(num, string(dec)) {
			return intPart, nil
		}
		return intPart + "." + frac, nil
	case '?':
		return "", ErrAmbiguousAmount
	default:
		return num, nil
	}
}

// decimalHint says which separator marks the decimals of num: '.' or ',',
// '?' when num alone cannot tell, and 0 when it has no separator.
func decimalHint(num string) rune {
	dots := strings.Count(num, ".")
	commas := strings.Count(num, ",")
	switch {
	case dots > 0 && commas > 0:
		if strings.LastIndex(num, ",") > strings.LastIndex(num, ".") {
			return ','
		}
		return '.'
	case commas > 1:
		return '.'
	case dots > 1:
		return ','
	case commas == 1:
		intPart, frac, _ := strings.Cut(num, ",")
		if len(frac) == 3 && strings.TrimLeft(intPart, "+-0") != "" {
			return '?'
		}
		return ','
	case dots == 1:
		return '.'
	default:
		return 0
	}
}

// fileDecimal looks at every amount cell of the data rows and returns the
// decimal separator most of them point to, or 0 when there is no clear
// majority. A lone dot with three decimals (1.234) only counts when nothing
// else in the file gives an answer.
func fileDecimal(cols layout, records [][]string) rune {
	votes := map[rune]int{}
	weak := rune(0)
	for _, rec := range records {
		for _, c := range []column{colAmount, colDebit, colCredit, colBalance} {
			num, ok := digits(strings.ToUpper(cols.cell(rec, c)))
			if !ok {
				continue
			}
			h := decimalHint(num)
			if h != '.' && h != ',' {
				continue
			}
			if h == '.' && !strings.Contains(num, ",") && strings.Count(num, ".") == 1 && decimalsAfter(num, '.') == 3 {
				weak = h
				continue
			}
			votes[h]++
		}
	}
	switch {
	case votes['.'] > votes[',']:
		return '.'
	case votes[','] > votes['.']:
		return ','
	case votes['.'] == 0:
		return weak
	default:
		return 0
	}
}

func decimalsAfter(num string, sep rune) int {
	i := strings.LastIndexByte(num, byte(sep))
	if i < 0 {
		return 0
	}
	return len(num) - i - 1
}

// amountError converts a ParseAmount failure into a line error code.
func amountError(prefix string, err error) *fieldErr {
	code := "invalid_amount"
	if errors.Is(err, ErrAmbiguousAmount) {
		code = "ambiguous_amount"
	}
	return &fieldErr{code, prefix + err.Error()}
}

// Day-first layouts come before month-first ones; an ambiguous 03/04/2024 is
// read as 3 April.
var dateLayouts = []string{
	"2006-01-02", "2006/01/02", "2006.01.02", "2006-1-2", "2006/1/2",
	"02/01/2006", "2/1/2006", "02/01/06", "2/1/06",
	"02-01-2006", "2-1-2006", "02-01-06", "02.01.2006", "2.1.2006",
	"01/02/2006", "1/2/2006",
	"02-Jan-2006", "2-Jan-2006", "02-Jan-06", "02/Jan/2006", "02/Jan/06", "02 Jan 2006", "2 Jan 2006",
	"Jan 2, 2006", "January 2, 2006",
	"2006-01-02 15:04:05", "2006-01-02T15:04:05", time.RFC3339,
	"02/01/2006 15:04:05", "02/01/2006 15:04", "02-01-2006 15:04:05", "02-Jan-2006 15:04:05",
}

// ParseDate reads a statement date in any of the supported layouts, falling
// back to an Excel serial day number.
func ParseDate(s string) (time.Time, error) {
	s = normalizeCell(s)
	if s == "" {
		return time.Time{}, errors.New("empty date")
	}
	for _, l := range dateLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC), nil
		}
	}
	if t, err := excelSerialDate(s); err == nil {
		return t, nil
	}
	return time.Time{}, fmt.Errorf("could not parse date %q", s)
}

// excelSerialDate converts days since 1899-12-30, skipping Excel's phantom
// 1900-02-29.
func excelSerialDate(s string) (time.Time, error) {
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return time.Time{}, err
	}
	if f < 1 || f > 2958465 {
		return time.Time{}, fmt.Errorf("serial %v out of range", f)
	}
	days := int(f)
	if days < 60 {
		days++
	}
	return time.Date(1899, 12, 30, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days), nil
}

func normalizeCell(s string) string {
	s = strings.ReplaceAll(s, nbsp, " ")
	return strings.Join(strings.Fields(s), " ")
}
