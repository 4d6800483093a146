// Package parsers holds the statement parser registry. Detection asks each
// parser in registration order whether it claims a file, so the stricter
// signature-based parsers are registered before the delimited-text fallback.
package parsers

import (
	"context"
	"fmt"

	"CimplrBankImport/internal/parsers/csv"
	"CimplrBankImport/internal/parsers/ofx"
	"CimplrBankImport/internal/parsers/xls"
	"CimplrBankImport/internal/parsers/xlsx"
	"CimplrBankImport/internal/statement"
)

// Parser is implemented by every statement format.
type Parser interface {
	// Name is the format tag stored as the import's detected format.
	Name() string
	// CanParse inspects the filename, declared mime type and the first bytes
	// of the file.
	CanParse(filename, mimeType string, header []byte) bool
	Parse(ctx context.Context, data []byte) ([]statement.Line, error)
}

type Registry struct {
	parsers []Parser
}

// New returns a registry with the built-in formats.
func New() *Registry {
	return &Registry{
		parsers: []Parser{
			ofx.NewParser(),
			xlsx.NewParser(),
			xls.NewParser(),
			csv.NewParser(),
		},
	}
}

// Register appends p, replacing any parser with the same name.
func (r *Registry) Register(p Parser) {
	for i, existing := range r.parsers {
		if existing.Name() == p.Name() {
			r.parsers[i] = p
			return
		}
	}
	r.parsers = append(r.parsers, p)
}

func (r *Registry) DetectFormat(filename, mimeType string, sample []byte) (string, bool) {
	for _, p := range r.parsers {
		if p.CanParse(filename, mimeType, sample) {
			return p.Name(), true
		}
	}
	return "", false
}

func (r *Registry) Parse(ctx context.Context, format string, data []byte) ([]statement.Line, error) {
	for _, p := range r.parsers {
		if p.Name() == format {
			return p.Parse(ctx, data)
		}
	}
	return nil, fmt.Errorf("no parser registered for format %q", format)
}

func (r *Registry) ListParsers() []string {
	names := make([]string, len(r.parsers))
	for i, p := range r.parsers {
		names[i] = p.Name()
	}
	return names
}
