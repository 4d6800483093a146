package bankimport

import (
	"context"
	"errors"
	"strings"

	"CimplrBankImport/internal/checksum"

	"github.com/google/uuid"
)

// Ingest stores an uploaded statement, deduplicating on content hash per
// tenant and company.
//
// The bytes first land under a temporary key. A new import row is inserted,
// and only once its id is known are the bytes moved to ArtifactKey(id). When
// the hash matches a live import whose artifact was lost, the upload repairs
// that artifact instead of creating a second import.
func (s *Service) Ingest(ctx context.Context, data []byte, meta IngestMeta) (*IngestResult, error) {
	const op = "ingest"
	if strings.TrimSpace(meta.TenantID) == "" || strings.TrimSpace(meta.CompanyID) == "" {
		return nil, &ImportError{Op: op, Kind: ErrInvalidInput, Msg: "tenant and company are required"}
	}
	if len(data) == 0 {
		return nil, &ImportError{Op: op, Kind: ErrInvalidInput, Msg: "uploaded file is empty"}
	}

	hash := checksum.Sum(data)
	log := s.log.With().Str("tenant_id", meta.TenantID).Str("company_id", meta.CompanyID).Str("content_hash", hash).Logger()

	tmpKey := tempArtifactKey()
	if err := s.artifacts.Put(ctx, tmpKey, data); err != nil {
		return nil, storageErr(op, "", err)
	}

	var (
		existing *BankImport
		created  *BankImport
	)
	err := s.store.RunInTx(ctx, meta.TenantID, func(tx Tx) error {
		if err := tx.LockContentHash(ctx, meta.TenantID, meta.CompanyID, hash); err != nil {
			return err
		}
		found, err := tx.FindActiveImportByHash(ctx, meta.TenantID, meta.CompanyID, hash)
		if err != nil {
			return err
		}
		if found != nil {
			existing = found
			return nil
		}
		now := s.opts.Now()
		size := meta.SizeBytes
		if size <= 0 {
			size = int64(len(data))
		}
		imp := &BankImport{
			ID:          uuid.NewString(),
			TenantID:    meta.TenantID,
			CompanyID:   meta.CompanyID,
			Status:      StatusUploaded,
			Filename:    meta.Filename,
			MimeType:    meta.MimeType,
			SizeBytes:   size,
			ContentHash: hash,
			Stats:       Stats{},
			UploadedBy:  meta.UploadedBy,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := tx.InsertImport(ctx, imp); err != nil {
			return err
		}
		created = imp
		return nil
	})
	if err != nil {
		s.discardTemp(ctx, tmpKey)
		return nil, storageErr(op, "", err)
	}

	if existing != nil {
		key := ArtifactKey(existing.ID, existing.Filename)
		present, err := s.artifacts.Exists(ctx, key)
		if err != nil {
			s.discardTemp(ctx, tmpKey)
			return nil, storageErr(op, existing.ID, err)
		}
		if present {
			s.discardTemp(ctx, tmpKey)
			log.Info().Str("import_id", existing.ID).Msg("duplicate upload")
			return &IngestResult{ImportID: existing.ID, Status: existing.Status, IsDuplicate: true}, nil
		}
		if err := s.artifacts.Move(ctx, tmpKey, key); err != nil {
			s.discardTemp(ctx, tmpKey)
			return nil, storageErr(op, existing.ID, err)
		}
		log.Warn().Str("import_id", existing.ID).Str("artifact", key).Msg("artifact was missing, restored from duplicate upload")
		s.emit(EventRecovered, existing, nil)
		return &IngestResult{ImportID: existing.ID, Status: existing.Status, IsDuplicate: true, Recovered: true}, nil
	}

	key := ArtifactKey(created.ID, created.Filename)
	if err := s.artifacts.Move(ctx, tmpKey, key); err != nil {
		// The row stays uploaded; a later stage reports the missing artifact.
		s.discardTemp(ctx, tmpKey)
		return nil, storageErr(op, created.ID, err)
	}
	log.Info().Str("import_id", created.ID).Str("filename", created.Filename).Int64("size_bytes", created.SizeBytes).Msg("statement uploaded")
	s.emit(EventUploaded, created, nil)
	return &IngestResult{ImportID: created.ID, Status: created.Status}, nil
}

// discardTemp removes an orphaned upload. Failures are logged only so they
// never replace the error being returned.
func (s *Service) discardTemp(ctx context.Context, key string) {
	if err := s.artifacts.Delete(context.WithoutCancel(ctx), key); err != nil && !errors.Is(err, context.Canceled) {
		s.log.Warn().Err(err).Str("artifact", key).Msg("could not remove temporary upload")
	}
}
