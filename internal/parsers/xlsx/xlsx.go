// Package xlsx parses Office Open XML workbooks. Only the first sheet is
// read.
package xlsx

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"CimplrBankImport/internal/parsers/tabular"
	"CimplrBankImport/internal/statement"

	"github.com/xuri/excelize/v2"
)

const Name = "xlsx"

var zipMagic = []byte("PK\x03\x04")

type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) Name() string { return Name }

// CanParse needs the zip signature plus a spreadsheet extension or mime type,
// since docx and plain zip archives share the signature.
func (p *Parser) CanParse(filename, mimeType string, header []byte) bool {
	if !bytes.HasPrefix(header, zipMagic) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".xlsx" || ext == ".xlsm" || strings.Contains(strings.ToLower(mimeType), "spreadsheetml")
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]statement.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	records, err := Records(data)
	if err != nil {
		return nil, err
	}
	return tabular.Lines(records)
}

// Records returns the formatted cell values of the first sheet.
func Records(data []byte) ([][]string, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	if sheet == "" {
		return nil, fmt.Errorf("xlsx has no sheets")
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("sheet %q is empty", sheet)
	}
	return rows, nil
}
