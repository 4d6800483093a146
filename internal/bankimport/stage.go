package bankimport

import (
	"context"
	"errors"
	"fmt"

	"CimplrBankImport/internal/checksum"
	"CimplrBankImport/internal/statement"

	"github.com/google/uuid"
)

// FormatCSV is the parser forced by the csv unrecognized-format policy.
const FormatCSV = "csv"

const sniffBytes = 512

// Stage parses an import's artifact into staging rows, replacing any rows a
// previous parse left behind. It takes the import row lock, so a stage never
// interleaves with a commit of the same import.
func (s *Service) Stage(ctx context.Context, importID, tenantID string) (*StageResult, error) {
	const op = "stage"
	log := s.log.With().Str("import_id", importID).Str("tenant_id", tenantID).Logger()

	var (
		result       *StageResult
		staged       *BankImport
		unrecognized bool
	)
	err := s.store.RunInTx(ctx, tenantID, func(tx Tx) error {
		imp, err := tx.GetImport(ctx, tenantID, importID, true)
		if err != nil {
			return err
		}
		if imp == nil {
			return notFound(op, importID, "import not found")
		}
		if imp.Status.Terminal() {
			return invalidState(op, importID, "import can no longer be parsed", "uploaded or parsed", imp.Status)
		}

		data, err := s.loadArtifact(ctx, imp)
		if err != nil {
			return err
		}

		format, err := s.resolveFormat(imp, data)
		if err != nil {
			unrecognized = errors.Is(err, ErrUnrecognizedFormat)
			return err
		}

		lines, err := s.parser.Parse(ctx, format, data)
		if err != nil {
			return &ImportError{Op: op, Kind: ErrParseFailed, ImportID: importID, Msg: fmt.Sprintf("%s parser rejected the file", format), Err: err}
		}

		rows, stats := s.buildRows(imp, lines)

		if _, err := tx.DeleteRows(ctx, tenantID, importID); err != nil {
			return err
		}
		for start := 0; start < len(rows); start += s.opts.InsertBatchSize {
			end := min(start+s.opts.InsertBatchSize, len(rows))
			if err := tx.InsertRows(ctx, rows[start:end]); err != nil {
				return fmt.Errorf("insert rows %d-%d: %w", start+1, end, err)
			}
		}

		imp.DetectedFormat = format
		imp.Status = StatusParsed
		imp.FailureReason = ""
		imp.UpdatedAt = s.opts.Now()
		if err := tx.UpdateImport(ctx, imp); err != nil {
			return err
		}
		if err := tx.MergeStats(ctx, tenantID, importID, stats); err != nil {
			return err
		}

		preview, err := tx.ListRows(ctx, tenantID, importID, RowFilter{Limit: s.opts.PreviewSize})
		if err != nil {
			return err
		}
		staged = imp
		result = &StageResult{
			DetectedFormat: format,
			Stats:          imp.Stats.Merge(stats),
			Preview:        preview,
		}
		return nil
	})
	if err != nil {
		if unrecognized && s.opts.FailOnUnrecognized {
			if _, ferr := s.Fail(ctx, importID, tenantID, err.Error()); ferr != nil {
				log.Error().Err(ferr).Msg("could not mark import failed")
			}
		}
		log.Error().Err(err).Msg("stage failed")
		return nil, storageErr(op, importID, err)
	}

	log.Info().
		Str("format", result.DetectedFormat).
		Int64("rows_total", result.Stats[StatRowsTotal]).
		Int64("rows_error", result.Stats[StatRowsError]).
		Msg("statement staged")
	s.emit(EventParsed, staged, result.Stats)
	return result, nil
}

// loadArtifact reads the import's file, treating a vanished or altered file as
// ArtifactMissing.
func (s *Service) loadArtifact(ctx context.Context, imp *BankImport) ([]byte, error) {
	key := ArtifactKey(imp.ID, imp.Filename)
	present, err := s.artifacts.Exists(ctx, key)
	if err != nil {
		return nil, err
	}
	if !present {
		return nil, &ImportError{Op: "stage", Kind: ErrArtifactMissing, ImportID: imp.ID, Msg: "artifact " + key + " is missing; re-upload the file"}
	}
	data, err := s.artifacts.Read(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, &ImportError{Op: "stage", Kind: ErrArtifactMissing, ImportID: imp.ID, Msg: "artifact " + key + " is missing; re-upload the file", Err: err}
	}
	if err != nil {
		return nil, err
	}
	if ok, _ := checksum.NewContentHasher(imp.ContentHash).Match(data); !ok {
		return nil, &ImportError{Op: "stage", Kind: ErrArtifactMissing, ImportID: imp.ID, Msg: "artifact " + key + " does not match the uploaded content hash"}
	}
	return data, nil
}

func (s *Service) resolveFormat(imp *BankImport, data []byte) (string, error) {
	sample := data
	if len(sample) > sniffBytes {
		sample = sample[:sniffBytes]
	}
	if format, ok := s.parser.DetectFormat(imp.Filename, imp.MimeType, sample); ok {
		return format, nil
	}
	if s.opts.Unrecognized == UnrecognizedCSV {
		s.log.Warn().Str("import_id", imp.ID).Str("filename", imp.Filename).Msg("no parser claimed the file, forcing csv")
		return FormatCSV, nil
	}
	return "", &ImportError{Op: "stage", Kind: ErrUnrecognizedFormat, ImportID: imp.ID, Msg: fmt.Sprintf("no parser recognizes %q (%s)", imp.Filename, imp.MimeType)}
}

// buildRows numbers lines 1..n in emission order.
func (s *Service) buildRows(imp *BankImport, lines []statement.Line) ([]Row, Stats) {
	now := s.opts.Now()
	rows := make([]Row, 0, len(lines))
	var ok, bad int64
	for i, l := range lines {
		status := statement.StatusOK
		if !l.Valid() {
			status = statement.StatusError
			bad++
		} else {
			ok++
		}
		r := Row{
			ID:           uuid.NewString(),
			TenantID:     imp.TenantID,
			BankImportID: imp.ID,
			RowNumber:    i + 1,
			Status:       status,
			Parsed:       l.Fields,
			Raw:          l.Raw,
			CreatedAt:    now,
		}
		if status == statement.StatusError {
			r.Errors = l.Errors
		}
		if r.Raw == nil {
			r.Raw = map[string]string{}
		}
		rows = append(rows, r)
	}
	return rows, Stats{
		StatRowsTotal: int64(len(rows)),
		StatRowsOK:    ok,
		StatRowsError: bad,
	}
}
