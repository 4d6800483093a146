package bankimport_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"CimplrBankImport/internal/artifact"
	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/parsers"
	"CimplrBankImport/internal/statement"
	"CimplrBankImport/internal/store/sqlite"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	tenant  = "tenant-a"
	company = "company-a"
	account = "acct-a"
)

const threeLines = "Date,Description,Amount,Balance\n" +
	"05/01/2024,Coffee Shop,-4.50,995.50\n" +
	"06/01/2024,Broken,abc,\n" +
	"07/01/2024,Salary,100.00,1095.50\n"

type brokenParser struct{}

func (brokenParser) Name() string { return "broken" }
func (brokenParser) CanParse(filename, _ string, _ []byte) bool {
	return strings.HasSuffix(filename, ".broken")
}
func (brokenParser) Parse(context.Context, []byte) ([]statement.Line, error) {
	return nil, errors.New("truncated file")
}

type fixture struct {
	svc   *bankimport.Service
	files *artifact.FS
	store *sqlite.Store
}

func newFixture(t *testing.T, opts *bankimport.Options) *fixture {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	files, err := artifact.NewFS(t.TempDir())
	require.NoError(t, err)

	reg := parsers.New()
	reg.Register(brokenParser{})
	svc := bankimport.NewService(st, files, reg, opts)
	require.NoError(t, svc.RegisterAccount(ctx, &bankimport.Account{ID: account, TenantID: tenant, CompanyID: company, Name: "Operating", Currency: "EUR"}))
	return &fixture{svc: svc, files: files, store: st}
}

func (f *fixture) ingest(t *testing.T, filename, content string) *bankimport.IngestResult {
	t.Helper()
	res, err := f.svc.Ingest(context.Background(), []byte(content), bankimport.IngestMeta{
		TenantID:   tenant,
		CompanyID:  company,
		UploadedBy: "user-1",
		Filename:   filename,
	})
	require.NoError(t, err)
	return res
}

func TestScenarioStageThenCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)
	assert.Equal(t, bankimport.StatusUploaded, up.Status)
	assert.False(t, up.IsDuplicate)

	staged, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	assert.Equal(t, "csv", staged.DetectedFormat)
	assert.Equal(t, int64(3), staged.Stats[bankimport.StatRowsTotal])
	assert.Equal(t, int64(2), staged.Stats[bankimport.StatRowsOK])
	assert.Equal(t, int64(1), staged.Stats[bankimport.StatRowsError])
	require.Len(t, staged.Preview, 3)
	assert.Equal(t, statement.StatusError, staged.Preview[1].Status)
	assert.NotEmpty(t, staged.Preview[1].Errors)

	res, err := f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.NoError(t, err)
	assert.Equal(t, bankimport.CommitResult{Inserted: 2, Duplicated: 0, Total: 2}, *res)

	imp, err := f.svc.Get(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	assert.Equal(t, bankimport.StatusCommitted, imp.Status)
	assert.Equal(t, account, imp.TargetAccountID)
	// Commit counters merge into the parse counters.
	assert.Equal(t, int64(3), imp.Stats[bankimport.StatRowsTotal])
	assert.Equal(t, int64(2), imp.Stats[bankimport.StatRowsInserted])
	assert.Equal(t, int64(0), imp.Stats[bankimport.StatRowsDuplicated])
	assert.Equal(t, int64(2), imp.Stats[bankimport.StatRowsEligible])

	ledger, err := f.svc.Ledger(ctx, tenant, account)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, bankimport.DirectionOut, ledger[0].Direction)
	assert.Equal(t, "-4.5", ledger[0].Amount.String())
	assert.Equal(t, "EUR", ledger[0].Currency)
	assert.Equal(t, bankimport.SourceManualImport, ledger[0].Source)
	assert.Equal(t, up.ImportID, ledger[0].BankImportID)
	assert.Equal(t, bankimport.DirectionIn, ledger[1].Direction)
}

func TestCommitTwiceFailsWithInvalidState(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)
	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.NoError(t, err)

	_, err = f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.ErrorIs(t, err, bankimport.ErrInvalidState)
	var ie *bankimport.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, "parsed", ie.Expected)
	assert.Equal(t, "committed", ie.Found)
	assert.Contains(t, err.Error(), "already committed")

	ledger, err := f.svc.Ledger(ctx, tenant, account)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
}

func TestConcurrentCommitsBookOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)
	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 4)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Commit(ctx, up.ImportID, tenant, account)
		}(i)
	}
	wg.Wait()

	var ok int
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, bankimport.ErrInvalidState)
	}
	assert.Equal(t, 1, ok)
	ledger, err := f.svc.Ledger(ctx, tenant, account)
	require.NoError(t, err)
	assert.Len(t, ledger, 2)
}

func TestIdenticalLinesCollapse(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "dup.csv", "Date,Description,Amount,Balance\n"+
		"05/01/2024,Coffee Shop,-4.50,995.50\n"+
		"05/01/2024,  coffee shop ,-4.500,995.5\n")
	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)

	res, err := f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.NoError(t, err)
	assert.Equal(t, bankimport.CommitResult{Inserted: 1, Duplicated: 1, Total: 2}, *res)
}

func TestOverlappingStatementsDoNotDuplicateLedger(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first := f.ingest(t, "jan.csv", threeLines)
	_, err := f.svc.Stage(ctx, first.ImportID, tenant)
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, first.ImportID, tenant, account)
	require.NoError(t, err)

	second := f.ingest(t, "jan-feb.csv", threeLines+"01/02/2024,Rent,-500,595.50\n")
	require.NotEqual(t, first.ImportID, second.ImportID)
	_, err = f.svc.Stage(ctx, second.ImportID, tenant)
	require.NoError(t, err)
	res, err := f.svc.Commit(ctx, second.ImportID, tenant, account)
	require.NoError(t, err)
	assert.Equal(t, bankimport.CommitResult{Inserted: 1, Duplicated: 2, Total: 3}, *res)
}

func TestIngestDeduplicatesByContent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first := f.ingest(t, "jan.csv", threeLines)
	second := f.ingest(t, "renamed.csv", threeLines)
	assert.Equal(t, first.ImportID, second.ImportID)
	assert.True(t, second.IsDuplicate)
	assert.False(t, second.Recovered)

	// Another company uploading the same bytes gets its own import.
	other, err := f.svc.Ingest(ctx, []byte(threeLines), bankimport.IngestMeta{TenantID: tenant, CompanyID: "company-b", Filename: "jan.csv"})
	require.NoError(t, err)
	assert.NotEqual(t, first.ImportID, other.ImportID)
	assert.False(t, other.IsDuplicate)

	// Only canonical artifacts remain; temp uploads are cleaned up.
	tmp, err := f.files.List(ctx, bankimport.TempPrefix)
	require.NoError(t, err)
	assert.Empty(t, tmp)
	ok, err := f.files.Exists(ctx, bankimport.ArtifactKey(first.ImportID, "jan.csv"))
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestIngestAfterFailureCreatesNewImport(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first := f.ingest(t, "jan.csv", threeLines)
	_, err := f.svc.Fail(ctx, first.ImportID, tenant, "wrong account")
	require.NoError(t, err)

	again := f.ingest(t, "jan.csv", threeLines)
	assert.NotEqual(t, first.ImportID, again.ImportID)
	assert.False(t, again.IsDuplicate)
}

func TestIngestRecoversMissingArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	first := f.ingest(t, "jan.csv", threeLines)
	key := bankimport.ArtifactKey(first.ImportID, "jan.csv")
	require.NoError(t, f.files.Delete(ctx, key))

	_, err := f.svc.Stage(ctx, first.ImportID, tenant)
	require.ErrorIs(t, err, bankimport.ErrArtifactMissing)

	again := f.ingest(t, "jan.csv", threeLines)
	assert.Equal(t, first.ImportID, again.ImportID)
	assert.True(t, again.IsDuplicate)
	assert.True(t, again.Recovered)

	_, err = f.svc.Stage(ctx, first.ImportID, tenant)
	assert.NoError(t, err)
}

func TestStageDetectsTamperedArtifact(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)
	require.NoError(t, f.files.Put(ctx, bankimport.ArtifactKey(up.ImportID, "jan.csv"), []byte("Date,Amount\n01/01/2024,1\n")))

	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	assert.ErrorIs(t, err, bankimport.ErrArtifactMissing)
}

func TestReparseReplacesRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)

	first, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	second, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	assert.Equal(t, first.Stats, second.Stats)

	rows, err := f.svc.Rows(ctx, up.ImportID, tenant, bankimport.RowFilter{})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for i, r := range rows {
		assert.Equal(t, i+1, r.RowNumber)
		assert.NotEqual(t, first.Preview[i].ID, r.ID, "rows are regenerated")
	}

	ok, err := f.svc.Rows(ctx, up.ImportID, tenant, bankimport.RowFilter{ExcludeErrors: true})
	require.NoError(t, err)
	assert.Len(t, ok, 2)
}

func TestStageRespectsBatchAndPreviewSize(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, &bankimport.Options{PreviewSize: 2, InsertBatchSize: 2})
	var b strings.Builder
	b.WriteString("Date,Description,Amount\n")
	for i := 1; i <= 7; i++ {
		b.WriteString("05/01/2024,Item ")
		b.WriteByte(byte('0' + i))
		b.WriteString(",-1\n")
	}
	up := f.ingest(t, "many.csv", b.String())
	res, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	assert.Len(t, res.Preview, 2)
	assert.Equal(t, int64(7), res.Stats[bankimport.StatRowsTotal])

	rows, err := f.svc.Rows(ctx, up.ImportID, tenant, bankimport.RowFilter{Limit: 3, Offset: 5})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 6, rows[0].RowNumber)
}

func TestUnrecognizedFormatPolicies(t *testing.T) {
	ctx := context.Background()
	data := "when;what;how much\n2024-01-05;thing;-1\n"

	t.Run("reject", func(t *testing.T) {
		f := newFixture(t, nil)
		up := f.ingest(t, "export.dat", data)
		_, err := f.svc.Stage(ctx, up.ImportID, tenant)
		require.ErrorIs(t, err, bankimport.ErrUnrecognizedFormat)
		imp, err := f.svc.Get(ctx, up.ImportID, tenant)
		require.NoError(t, err)
		assert.Equal(t, bankimport.StatusUploaded, imp.Status)
	})

	t.Run("reject and fail", func(t *testing.T) {
		f := newFixture(t, &bankimport.Options{FailOnUnrecognized: true})
		up := f.ingest(t, "export.dat", data)
		_, err := f.svc.Stage(ctx, up.ImportID, tenant)
		require.ErrorIs(t, err, bankimport.ErrUnrecognizedFormat)
		imp, err := f.svc.Get(ctx, up.ImportID, tenant)
		require.NoError(t, err)
		assert.Equal(t, bankimport.StatusFailed, imp.Status)
		assert.NotEmpty(t, imp.FailureReason)
	})

	t.Run("force csv", func(t *testing.T) {
		f := newFixture(t, &bankimport.Options{Unrecognized: bankimport.UnrecognizedCSV})
		up := f.ingest(t, "export.dat", "Date,Description,Amount\n05/01/2024,Coffee,-4.50\n")
		res, err := f.svc.Stage(ctx, up.ImportID, tenant)
		require.NoError(t, err)
		assert.Equal(t, bankimport.FormatCSV, res.DetectedFormat)
		assert.Equal(t, int64(1), res.Stats[bankimport.StatRowsOK])
	})
}

func TestParseFailedLeavesImportUntouched(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "stmt.broken", "garbage")
	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.ErrorIs(t, err, bankimport.ErrParseFailed)
	assert.Contains(t, err.Error(), "truncated file")

	imp, err := f.svc.Get(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	assert.Equal(t, bankimport.StatusUploaded, imp.Status)
	assert.Empty(t, imp.DetectedFormat)
}

func TestCommitValidation(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)

	_, err := f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.ErrorIs(t, err, bankimport.ErrInvalidState, "not parsed yet")

	_, err = f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)

	_, err = f.svc.Commit(ctx, up.ImportID, tenant, "")
	require.ErrorIs(t, err, bankimport.ErrInvalidState)
	assert.Contains(t, err.Error(), "account not selected")

	_, err = f.svc.Commit(ctx, up.ImportID, tenant, "nope")
	require.ErrorIs(t, err, bankimport.ErrNotFound)

	require.NoError(t, f.svc.RegisterAccount(ctx, &bankimport.Account{ID: "acct-other", TenantID: tenant, CompanyID: "company-b"}))
	_, err = f.svc.Commit(ctx, up.ImportID, tenant, "acct-other")
	require.ErrorIs(t, err, bankimport.ErrNotFound, "account of another company")

	_, err = f.svc.Commit(ctx, "missing", tenant, account)
	require.ErrorIs(t, err, bankimport.ErrNotFound)
}

func TestTenantScoping(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)

	_, err := f.svc.Get(ctx, up.ImportID, "tenant-b")
	require.ErrorIs(t, err, bankimport.ErrNotFound)
	_, err = f.svc.Stage(ctx, up.ImportID, "tenant-b")
	require.ErrorIs(t, err, bankimport.ErrNotFound)
	_, err = f.svc.Rows(ctx, up.ImportID, "tenant-b", bankimport.RowFilter{})
	require.ErrorIs(t, err, bankimport.ErrNotFound)
}

func TestFailTransitions(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)
	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)

	imp, err := f.svc.Fail(ctx, up.ImportID, tenant, "uploaded to the wrong company")
	require.NoError(t, err)
	assert.Equal(t, bankimport.StatusFailed, imp.Status)

	_, err = f.svc.Fail(ctx, up.ImportID, tenant, "again")
	require.ErrorIs(t, err, bankimport.ErrInvalidState)
	_, err = f.svc.Stage(ctx, up.ImportID, tenant)
	require.ErrorIs(t, err, bankimport.ErrInvalidState)
	_, err = f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.ErrorIs(t, err, bankimport.ErrInvalidState)
}

func TestIngestRejectsBadInput(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.svc.Ingest(context.Background(), []byte("x"), bankimport.IngestMeta{TenantID: tenant, Filename: "a.csv"})
	assert.ErrorIs(t, err, bankimport.ErrInvalidInput)
	_, err = f.svc.Ingest(context.Background(), nil, bankimport.IngestMeta{TenantID: tenant, CompanyID: company, Filename: "a.csv"})
	assert.ErrorIs(t, err, bankimport.ErrInvalidInput)
}

type flakyArtifacts struct {
	bankimport.ArtifactStore
	failMove bool
}

func (f *flakyArtifacts) Move(ctx context.Context, src, dst string) error {
	if f.failMove {
		return errors.New("connection reset")
	}
	return f.ArtifactStore.Move(ctx, src, dst)
}

func TestIngestStorageFailureIsTransient(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	defer st.Close()
	files, err := artifact.NewFS(t.TempDir())
	require.NoError(t, err)
	svc := bankimport.NewService(st, &flakyArtifacts{ArtifactStore: files, failMove: true}, parsers.New(), nil)

	_, err = svc.Ingest(ctx, []byte(threeLines), bankimport.IngestMeta{TenantID: tenant, CompanyID: company, Filename: "jan.csv"})
	require.ErrorIs(t, err, bankimport.ErrTransientStorage)

	tmp, err := files.List(ctx, bankimport.TempPrefix)
	require.NoError(t, err)
	assert.Empty(t, tmp, "temp upload removed on failure")
}

func TestStageWithFixedClock(t *testing.T) {
	ctx := context.Background()
	at := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	f := newFixture(t, &bankimport.Options{Now: func() time.Time { return at }})
	up := f.ingest(t, "jan.csv", threeLines)
	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	imp, err := f.svc.Get(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	assert.True(t, imp.UpdatedAt.Equal(at))
}

type recorder struct {
	mu     sync.Mutex
	events []bankimport.Event
}

func (r *recorder) Notify(e bankimport.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Type
	}
	return out
}

func TestNotifierSeesCommittedTransitionsOnly(t *testing.T) {
	ctx := context.Background()
	rec := &recorder{}
	f := newFixture(t, &bankimport.Options{Notifier: rec})

	up := f.ingest(t, "jan.csv", threeLines)
	f.ingest(t, "jan.csv", threeLines)
	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.Error(t, err)

	other := f.ingest(t, "feb.csv", "Date,Description,Amount\n01/02/2024,Rent,-800\n")
	_, err = f.svc.Fail(ctx, other.ImportID, tenant, "wrong account")
	require.NoError(t, err)

	assert.Equal(t, []string{
		bankimport.EventUploaded,
		bankimport.EventParsed,
		bankimport.EventCommitted,
		bankimport.EventUploaded,
		bankimport.EventFailed,
	}, rec.types())

	rec.mu.Lock()
	committed := rec.events[2]
	failed := rec.events[4]
	rec.mu.Unlock()
	assert.Equal(t, up.ImportID, committed.ImportID)
	assert.Equal(t, company, committed.CompanyID)
	assert.Equal(t, bankimport.StatusCommitted, committed.Status)
	assert.Equal(t, int64(2), committed.Stats[bankimport.StatRowsInserted])
	assert.Equal(t, int64(3), committed.Stats[bankimport.StatRowsTotal])
	assert.Equal(t, "wrong account", failed.Reason)
}

func TestStageAfterCommitIsRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, nil)
	up := f.ingest(t, "jan.csv", threeLines)
	_, err := f.svc.Stage(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	_, err = f.svc.Commit(ctx, up.ImportID, tenant, account)
	require.NoError(t, err)

	rowsBefore, err := f.svc.Rows(ctx, up.ImportID, tenant, bankimport.RowFilter{})
	require.NoError(t, err)
	ledgerBefore, err := f.svc.Ledger(ctx, tenant, account)
	require.NoError(t, err)

	_, err = f.svc.Stage(ctx, up.ImportID, tenant)
	require.ErrorIs(t, err, bankimport.ErrInvalidState)
	var ie *bankimport.ImportError
	require.ErrorAs(t, err, &ie)
	assert.Equal(t, string(bankimport.StatusCommitted), ie.Found)

	rowsAfter, err := f.svc.Rows(ctx, up.ImportID, tenant, bankimport.RowFilter{})
	require.NoError(t, err)
	assert.Equal(t, len(rowsBefore), len(rowsAfter))
	for i := range rowsBefore {
		assert.Equal(t, rowsBefore[i].ID, rowsAfter[i].ID)
	}
	ledgerAfter, err := f.svc.Ledger(ctx, tenant, account)
	require.NoError(t, err)
	assert.Len(t, ledgerAfter, len(ledgerBefore))

	imp, err := f.svc.Get(ctx, up.ImportID, tenant)
	require.NoError(t, err)
	assert.Equal(t, bankimport.StatusCommitted, imp.Status)
}

// vanishingArtifacts deletes the file right after confirming it exists.
type vanishingArtifacts struct {
	bankimport.ArtifactStore
}

func (v *vanishingArtifacts) Exists(ctx context.Context, key string) (bool, error) {
	ok, err := v.ArtifactStore.Exists(ctx, key)
	if ok && strings.HasPrefix(key, "bank_import_") {
		_ = v.ArtifactStore.Delete(ctx, key)
	}
	return ok, err
}

func TestStageArtifactRemovedMidRead(t *testing.T) {
	ctx := context.Background()
	st, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	defer st.Close()
	files, err := artifact.NewFS(t.TempDir())
	require.NoError(t, err)

	up, err := bankimport.NewService(st, files, parsers.New(), nil).Ingest(ctx, []byte(threeLines),
		bankimport.IngestMeta{TenantID: tenant, CompanyID: company, Filename: "jan.csv"})
	require.NoError(t, err)

	svc := bankimport.NewService(st, &vanishingArtifacts{ArtifactStore: files}, parsers.New(), nil)
	_, err = svc.Stage(ctx, up.ImportID, tenant)
	require.ErrorIs(t, err, bankimport.ErrArtifactMissing)
	assert.NotErrorIs(t, err, bankimport.ErrTransientStorage)
	assert.ErrorIs(t, err, artifact.ErrNotFound)
}
