// Package statement holds the normalized line records exchanged between the
// statement parsers and the staging layer.
package statement

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the wire layout for booking and value dates.
const DateLayout = "2006-01-02"

type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// FieldError describes one validation failure on a parsed line.
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e FieldError) String() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Fields are the normalized values of a statement line. On error lines any of
// them may be empty.
type Fields struct {
	BookingDate string           `json:"booking_date,omitempty"`
	ValueDate   string           `json:"value_date,omitempty"`
	Amount      decimal.Decimal  `json:"amount"`
	Currency    string           `json:"currency,omitempty"`
	Description string           `json:"description"`
	Category    string           `json:"category,omitempty"`
	Balance     *decimal.Decimal `json:"balance,omitempty"`
}

// BookingTime parses BookingDate.
func (f Fields) BookingTime() (time.Time, error) {
	return time.Parse(DateLayout, f.BookingDate)
}

// ValueTime parses ValueDate. ok is false when no value date is present.
func (f Fields) ValueTime() (t time.Time, ok bool, err error) {
	if f.ValueDate == "" {
		return time.Time{}, false, nil
	}
	t, err = time.Parse(DateLayout, f.ValueDate)
	return t, err == nil, err
}

// Line is one record emitted by a parser, in emission order.
type Line struct {
	RowNumber int               `json:"row_number"`
	Status    Status            `json:"status"`
	Errors    []FieldError      `json:"errors,omitempty"`
	Fields    Fields            `json:"parsed"`
	Raw       map[string]string `json:"raw"`
}

// AddError records a validation failure and flips the line to StatusError.
func (l *Line) AddError(field, code, msg string) {
	l.Errors = append(l.Errors, FieldError{Field: field, Code: code, Message: msg})
	l.Status = StatusError
}

// Valid reports whether the line carries no validation errors.
func (l *Line) Valid() bool {
	return l.Status != StatusError && len(l.Errors) == 0
}
