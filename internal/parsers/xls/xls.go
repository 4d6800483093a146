// Package xls parses legacy BIFF8 workbooks. Only the first sheet is read.
package xls

import (
	"bytes"
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"CimplrBankImport/internal/parsers/tabular"
	"CimplrBankImport/internal/statement"

	"github.com/extrame/xls"
)

const Name = "xls"

// oleMagic is the compound document signature shared by all BIFF workbooks.
var oleMagic = []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1}

type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) Name() string { return Name }

func (p *Parser) CanParse(filename, mimeType string, header []byte) bool {
	if !bytes.HasPrefix(header, oleMagic) {
		return false
	}
	ext := strings.ToLower(filepath.Ext(filename))
	return ext == ".xls" || strings.Contains(strings.ToLower(mimeType), "ms-excel")
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

// Records reads the first sheet. The decoder panics on some malformed
// streams, so panics are turned into errors.
func Records(data []byte) (records [][]string, err error) {
	defer func() {
		if r := recover(); r != nil {
			records, err = nil, fmt.Errorf("corrupt xls: %v", r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("open xls: %w", err)
	}
	if wb.NumSheets() == 0 {
		return nil, fmt.Errorf("xls has no sheets")
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, fmt.Errorf("xls sheet 0 unreadable")
	}
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := sheet.Row(i)
		if row == nil {
			records = append(records, nil)
			continue
		}
		vals := make([]string, 0, row.LastCol()+1)
		for j := 0; j < row.LastCol(); j++ {
			vals = append(vals, row.Col(j))
		}
		records = append(records, vals)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("xls sheet is empty")
	}
	return records, nil
}
