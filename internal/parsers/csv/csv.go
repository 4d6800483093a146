// Package csv parses delimited text statements. Input may be UTF-8 (with or
// without BOM), UTF-16 with BOM, or Windows-1252 as exported by older
// banking portals.
package csv

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"CimplrBankImport/internal/parsers/tabular"
	"CimplrBankImport/internal/statement"

	"golang.org/x/text/encoding/charmap"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Name is the format tag of this parser.
const Name = "csv"

var delimiters = []rune{',', ';', '\t', '|'}

type Parser struct{}

func NewParser() *Parser { return &Parser{} }

func (p *Parser) Name() string { return Name }

// CanParse claims text files with a csv-like extension or mime type whose
// leading lines split on a known delimiter. Title lines above the table are
// allowed, as the header may sit further down.
func (p *Parser) CanParse(filename, mimeType string, header []byte) bool {
	ext := strings.ToLower(filepath.Ext(filename))
	mime := strings.ToLower(mimeType)
	byName := ext == ".csv" || ext == ".txt" || ext == ".tsv" ||
		strings.Contains(mime, "csv") || strings.HasPrefix(mime, "text/plain") || strings.Contains(mime, "tab-separated")
	if !byName || len(header) == 0 {
		return false
	}
	text, err := decode(header)
	if err != nil || strings.ContainsRune(text, 0) {
		return false
	}
	upper := strings.ToUpper(text)
	if strings.Contains(upper, "OFXHEADER") || strings.Contains(upper, "<OFX>") {
		return false
	}
	return sniffDelimiter(sampleLines(text, 10)) != 0
}

func (p *Parser) Parse(ctx context.Context, data []byte) ([]statement.Line, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	text, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("decode csv: %w", err)
	}
	records, err := Records(text)
	if err != nil {
		return nil, err
	}
	return tabular.Lines(records)
}

// Records splits decoded text into records using the delimiter that best fits
// the first non-empty lines.
func Records(text string) ([][]string, error) {
	delim := sniffDelimiter(sampleLines(text, 10))
	if delim == 0 {
		delim = ','
	}
	r := csv.NewReader(strings.NewReader(text))
	r.Comma = delim
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	var out [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		out = append(out, rec)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("csv has no records")
	}
	return out, nil
}

func sampleLines(text string, n int) string {
	var kept []string
	for _, l := range strings.Split(text, "\n") {
		if strings.TrimSpace(l) == "" {
			continue
		}
		kept = append(kept, l)
		if len(kept) == n {
			break
		}
	}
	return strings.Join(kept, "\n")
}

// sniffDelimiter picks the candidate with the highest count on the busiest
// line, 0 when none appears.
func sniffDelimiter(sample string) rune {
	var best rune
	bestCount := 0
	for _, d := range delimiters {
		for _, line := range strings.Split(sample, "\n") {
			if c := strings.Count(line, string(d)); c > bestCount {
				best, bestCount = d, c
			}
		}
	}
	return best
}

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// decode returns data as UTF-8 text.
func decode(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return string(data[len(bomUTF8):]), nil
	case bytes.HasPrefix(data, bomUTF16LE), bytes.HasPrefix(data, bomUTF16BE):
		dec := unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder()
		out, _, err := transform.Bytes(dec, data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	case utf8.Valid(data):
		return string(data), nil
	default:
		out, _, err := transform.Bytes(charmap.Windows1252.NewDecoder(), data)
		if err != nil {
			return "", err
		}
		return string(out), nil
	}
}
