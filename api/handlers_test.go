package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"CimplrBankImport/internal/artifact"
	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/events"
	"CimplrBankImport/internal/parsers"
	"CimplrBankImport/internal/resource"
	"CimplrBankImport/internal/store/sqlite"
	"CimplrBankImport/internal/validation"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const statementCSV = "Date,Description,Amount,Balance\n" +
	"05/01/2024,Coffee Shop,-4.50,995.50\n" +
	"06/01/2024,Refund,not-a-number,\n" +
	"07/01/2024,Salary,100.00,1095.50\n"

type fixedHealth map[string]resource.Health

func (f fixedHealth) Health() map[string]resource.Health { return f }

type apiFixture struct {
	router http.Handler
	svc    *bankimport.Service
	hub    *events.Hub
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.Open(ctx, sqlite.MemoryPath)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	files, err := artifact.NewFS(t.TempDir())
	require.NoError(t, err)

	hub := events.NewHub(time.Minute, 50)
	t.Cleanup(hub.Stop)
	svc := bankimport.NewService(store, files, parsers.New(), &bankimport.Options{Notifier: hub})
	require.NoError(t, svc.RegisterAccount(ctx, &bankimport.Account{ID: "acct-1", TenantID: "t1", CompanyID: "c1", Name: "Operating", Currency: "EUR"}))

	health := fixedHealth{"store:sqlite": {OK: true}}
	return &apiFixture{router: NewRouter(NewHandlers(svc, health, hub, 1), zerolog.Nop()), svc: svc, hub: hub}
}

func (f *apiFixture) do(t *testing.T, method, path string, body []byte, contentType string, headers map[string]string) (int, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)

	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func multipartBody(t *testing.T, filename string, content []byte) ([]byte, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return buf.Bytes(), mw.FormDataContentType()
}

var scopeHeaders = map[string]string{
	validation.HeaderTenantID:  "t1",
	validation.HeaderCompanyID: "c1",
	validation.HeaderUserID:    "u1",
}

func TestImportLifecycleOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	body, ct := multipartBody(t, "statement.csv", []byte(statementCSV))

	code, out := f.do(t, http.MethodPost, "/api/bank-imports", body, ct, scopeHeaders)
	require.Equal(t, http.StatusCreated, code, out)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, false, out["is_duplicate"])
	id := out["import_id"].(string)
	require.NotEmpty(t, id)

	code, out = f.do(t, http.MethodPost, "/api/bank-imports", body, ct, scopeHeaders)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["is_duplicate"])
	assert.Equal(t, id, out["import_id"])

	code, out = f.do(t, http.MethodPost, "/api/bank-imports/"+id+"/stage", nil, "", scopeHeaders)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, "csv", out["detected_format"])
	stats := out["stats"].(map[string]interface{})
	assert.Equal(t, float64(3), stats["rowsTotal"])
	assert.Equal(t, float64(1), stats["rowsError"])
	assert.Len(t, out["preview"], 3)

	code, out = f.do(t, http.MethodGet, "/api/bank-imports/"+id+"/rows?limit=2&offset=1", nil, "", scopeHeaders)
	require.Equal(t, http.StatusOK, code)
	rows := out["rows"].([]interface{})
	require.Len(t, rows, 2)
	assert.Equal(t, float64(2), rows[0].(map[string]interface{})["row_number"])

	commitBody := []byte(`{"bank_account_id":"acct-1"}`)
	code, out = f.do(t, http.MethodPost, "/api/bank-imports/"+id+"/commit", commitBody, "application/json", scopeHeaders)
	require.Equal(t, http.StatusOK, code, out)
	assert.Equal(t, float64(2), out["inserted"])
	assert.Equal(t, float64(0), out["duplicated"])
	assert.Equal(t, float64(2), out["total"])

	code, out = f.do(t, http.MethodPost, "/api/bank-imports/"+id+"/commit", commitBody, "application/json", scopeHeaders)
	assert.Equal(t, http.StatusConflict, code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, id, out["import_id"])
	assert.Equal(t, "committed", out["found"])

	code, out = f.do(t, http.MethodGet, "/api/bank-imports/"+id, nil, "", scopeHeaders)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "committed", out["import"].(map[string]interface{})["status"])

	code, _ = f.do(t, http.MethodPost, "/api/bank-imports/"+id+"/fail", []byte(`{"reason":"wrong file"}`), "application/json", scopeHeaders)
	assert.Equal(t, http.StatusConflict, code)
}

func TestTenantIsolationOverHTTP(t *testing.T) {
	f := newAPIFixture(t)
	body, ct := multipartBody(t, "statement.csv", []byte(statementCSV))
	_, out := f.do(t, http.MethodPost, "/api/bank-imports", body, ct, scopeHeaders)
	id := out["import_id"].(string)

	code, out := f.do(t, http.MethodGet, "/api/bank-imports/"+id, nil, "", map[string]string{validation.HeaderTenantID: "t2"})
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, false, out["success"])
}

func TestUploadValidation(t *testing.T) {
	f := newAPIFixture(t)
	body, ct := multipartBody(t, "statement.csv", []byte(statementCSV))

	code, out := f.do(t, http.MethodPost, "/api/bank-imports", body, ct, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["error"], validation.HeaderTenantID)

	code, out = f.do(t, http.MethodPost, "/api/bank-imports", body, ct, map[string]string{validation.HeaderTenantID: "t1"})
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["error"], validation.HeaderCompanyID)

	big, bigCT := multipartBody(t, "huge.csv", bytes.Repeat([]byte("a,b\n"), 600_000))
	code, _ = f.do(t, http.MethodPost, "/api/bank-imports", big, bigCT, scopeHeaders)
	assert.Equal(t, http.StatusRequestEntityTooLarge, code)

	code, out = f.do(t, http.MethodPost, "/api/bank-imports", []byte("plain"), "text/plain", scopeHeaders)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, false, out["success"])
}

func TestStageUnrecognizedFormat(t *testing.T) {
	f := newAPIFixture(t)
	body, ct := multipartBody(t, "statement.bin", []byte{0x00, 0x01, 0x02, 0x03})
	_, out := f.do(t, http.MethodPost, "/api/bank-imports", body, ct, scopeHeaders)
	id := out["import_id"].(string)

	code, out := f.do(t, http.MethodPost, "/api/bank-imports/"+id+"/stage", nil, "", scopeHeaders)
	assert.Equal(t, http.StatusUnsupportedMediaType, code)
	assert.Equal(t, id, out["import_id"])
}

func TestFailRequiresReason(t *testing.T) {
	f := newAPIFixture(t)
	body, ct := multipartBody(t, "statement.csv", []byte(statementCSV))
	_, out := f.do(t, http.MethodPost, "/api/bank-imports", body, ct, scopeHeaders)
	id := out["import_id"].(string)

	code, _ := f.do(t, http.MethodPost, "/api/bank-imports/"+id+"/fail", []byte(`{}`), "application/json", scopeHeaders)
	assert.Equal(t, http.StatusBadRequest, code)

	code, out = f.do(t, http.MethodPost, "/api/bank-imports/"+id+"/fail", []byte(`{"reason":"duplicate of paper statement"}`), "application/json", scopeHeaders)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "failed", out["status"])
}

func TestRowsPaginationErrors(t *testing.T) {
	f := newAPIFixture(t)
	code, out := f.do(t, http.MethodGet, "/api/bank-imports/x/rows?limit=-1", nil, "", scopeHeaders)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.True(t, strings.HasPrefix(out["error"].(string), "invalid limit"))
}

func TestHealthAndNotFound(t *testing.T) {
	f := newAPIFixture(t)
	code, out := f.do(t, http.MethodGet, "/api/health", nil, "", nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["success"])

	code, out = f.do(t, http.MethodGet, "/api/nope", nil, "", nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "route not found", out["error"])
}

func TestStatusForError(t *testing.T) {
	tests := []struct {
		kind error
		want int
	}{
		{bankimport.ErrNotFound, http.StatusNotFound},
		{bankimport.ErrInvalidState, http.StatusConflict},
		{bankimport.ErrArtifactMissing, http.StatusGone},
		{bankimport.ErrUnrecognizedFormat, http.StatusUnsupportedMediaType},
		{bankimport.ErrParseFailed, http.StatusUnprocessableEntity},
		{bankimport.ErrInvalidInput, http.StatusBadRequest},
		{bankimport.ErrTransientStorage, http.StatusServiceUnavailable},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		err := error(&bankimport.ImportError{Op: "test", Kind: tt.kind})
		if bankimport.Kind(tt.kind) == nil {
			err = tt.kind
		}
		assert.Equal(t, tt.want, StatusForError(err), tt.kind.Error())
	}
}

func TestEventStreamFollowsPipeline(t *testing.T) {
	f := newAPIFixture(t)
	body, ct := multipartBody(t, "statement.csv", []byte(statementCSV))
	code, out := f.do(t, http.MethodPost, "/api/bank-imports", body, ct, scopeHeaders)
	require.Equal(t, http.StatusCreated, code, out)
	id := out["import_id"].(string)

	srv := httptest.NewServer(f.router)
	defer srv.Close()
	req, err := http.NewRequest(http.MethodGet, srv.URL+"/api/bank-imports/events", nil)
	require.NoError(t, err)
	req.Header.Set(validation.HeaderTenantID, "t1")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	sc := bufio.NewScanner(resp.Body)
	nextEvent := func() string {
		for sc.Scan() {
			if name, ok := strings.CutPrefix(sc.Text(), "event: "); ok {
				return name
			}
		}
		return ""
	}
	assert.Equal(t, "connected", nextEvent())
	assert.Equal(t, bankimport.EventUploaded, nextEvent())

	require.Eventually(t, func() bool { return f.hub.ClientCount() == 1 }, time.Second, 10*time.Millisecond)
	code, _ = f.do(t, http.MethodPost, "/api/bank-imports/"+id+"/stage", nil, "", scopeHeaders)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, bankimport.EventParsed, nextEvent())
}

func TestEventStreamDisabled(t *testing.T) {
	f := newAPIFixture(t)
	router := NewRouter(NewHandlers(f.svc, fixedHealth{}, nil, 1), zerolog.Nop())
	req := httptest.NewRequest(http.MethodGet, "/api/bank-imports/events", nil)
	req.Header.Set(validation.HeaderTenantID, "t1")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestTransientStorageErrorHidesDriverMessage(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/api/bank-imports/imp-9/stage", nil)
	rec := httptest.NewRecorder()
	RespondWithImportError(rec, req, &bankimport.ImportError{Op: "stage", Kind: bankimport.ErrTransientStorage, ImportID: "imp-9", Err: errors.New("connection reset by peer")})

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "storage temporarily unavailable, retry later", out["error"])
	assert.Equal(t, "imp-9", out["import_id"])
	assert.NotContains(t, rec.Body.String(), "connection reset")
}
