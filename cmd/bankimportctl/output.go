package main

import (
	"fmt"
	"io"
	"strings"

	"CimplrBankImport/internal/bankimport"

	"github.com/fatih/color"
)

var (
	green  = color.New(color.FgGreen)
	yellow = color.New(color.FgYellow, color.Bold)
	blue   = color.New(color.FgBlue)
	red    = color.New(color.FgRed)
)

type printer struct {
	w io.Writer
}

func (p printer) Header(text string) {
	line := strings.Repeat("=", 60)
	green.Fprintf(p.w, "%s\n%s\n%s\n", line, text, line)
}

func (p printer) Success(format string, args ...interface{}) {
	green.Fprintf(p.w, "  ✓ "+format+"\n", args...)
}

func (p printer) Info(format string, args ...interface{}) {
	fmt.Fprintf(p.w, "  → "+format+"\n", args...)
}

func (p printer) Warning(format string, args ...interface{}) {
	yellow.Fprintf(p.w, "  ⚠ "+format+"\n", args...)
}

func (p printer) Error(text string) {
	red.Fprintf(p.w, "Error: %s\n", text)
}

// Status prints an import status in its colour.
func (p printer) Status(s bankimport.Status) {
	c := blue
	switch s {
	case bankimport.StatusCommitted:
		c = green
	case bankimport.StatusFailed:
		c = red
	case bankimport.StatusParsed:
		c = yellow
	}
	fmt.Fprint(p.w, "  status: ")
	c.Fprintln(p.w, string(s))
}

func (p printer) Stats(stats bankimport.Stats) {
	for _, k := range []string{
		bankimport.StatRowsTotal, bankimport.StatRowsOK, bankimport.StatRowsError,
		bankimport.StatRowsEligible, bankimport.StatRowsInserted, bankimport.StatRowsDuplicated,
	} {
		if v, ok := stats[k]; ok {
			fmt.Fprintf(p.w, "  %-15s %d\n", k, v)
		}
	}
}

func (p printer) Rows(rows []bankimport.Row) {
	for _, r := range rows {
		line := fmt.Sprintf("%5d  %-10s %12s  %s", r.RowNumber, r.Parsed.BookingDate, r.Parsed.Amount.String(), r.Parsed.Description)
		if r.Status == "error" {
			msgs := make([]string, 0, len(r.Errors))
			for _, e := range r.Errors {
				msgs = append(msgs, e.String())
			}
			red.Fprintf(p.w, "%s  [%s]\n", line, strings.Join(msgs, "; "))
			continue
		}
		fmt.Fprintln(p.w, line)
	}
}
