package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/config"
	"CimplrBankImport/internal/resource"
	"CimplrBankImport/internal/validation"

	"github.com/gorilla/mux"
)

// HealthReporter is the heartbeat view exposed by /api/health.
type HealthReporter interface {
	Health() map[string]resource.Health
}

// EventStream serves a tenant's live import events.
type EventStream interface {
	ServeSSE(w http.ResponseWriter, r *http.Request, tenantID string)
}

type Handlers struct {
	svc            *bankimport.Service
	health         HealthReporter
	events         EventStream
	maxUploadBytes int64
}

// NewHandlers builds the route handlers. events may be nil, in which case the
// events route answers 404.
func NewHandlers(svc *bankimport.Service, health HealthReporter, events EventStream, maxUploadMB int) *Handlers {
	if maxUploadMB <= 0 {
		maxUploadMB = config.DefaultMaxUploadMB
	}
	return &Handlers{svc: svc, health: health, events: events, maxUploadBytes: int64(maxUploadMB) << 20}
}

// Events handles GET /api/bank-imports/events as a server-sent event stream.
func (h *Handlers) Events(w http.ResponseWriter, r *http.Request) {
	if h.events == nil {
		RespondWithError(w, r, http.StatusNotFound, "event stream disabled")
		return
	}
	// The stream outlives the server write timeout.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})
	h.events.ServeSSE(w, r, validation.ScopeFromCtx(r.Context()).TenantID)
}

// Upload handles POST /api/bank-imports with a multipart "file" field.
func (h *Handlers) Upload(w http.ResponseWriter, r *http.Request) {
	scope := validation.ScopeFromCtx(r.Context())
	if scope.CompanyID == "" {
		RespondWithError(w, r, http.StatusBadRequest, validation.HeaderCompanyID+" header is required")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes+1<<20)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondWithError(w, r, http.StatusRequestEntityTooLarge, "uploaded file is too large")
			return
		}
		RespondWithError(w, r, http.StatusBadRequest, "Unable to read the uploaded file. Please try again.")
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "File not found in request. Attach the statement using the 'file' field in form-data.")
		return
	}
	defer file.Close()

	filename := validation.CleanFilename(header.Filename)
	if err := validation.ValidateUpload(filename, header.Size, h.maxUploadBytes); err != nil {
		status := http.StatusBadRequest
		if header.Size > h.maxUploadBytes {
			status = http.StatusRequestEntityTooLarge
		}
		RespondWithError(w, r, status, err.Error())
		return
	}
	data, err := io.ReadAll(file)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Failed to read the uploaded file. Please try again.")
		return
	}

	res, err := h.svc.Ingest(r.Context(), data, bankimport.IngestMeta{
		TenantID:   scope.TenantID,
		CompanyID:  scope.CompanyID,
		UploadedBy: scope.UserID,
		Filename:   filename,
		MimeType:   header.Header.Get("Content-Type"),
		SizeBytes:  int64(len(data)),
	})
	if err != nil {
		RespondWithImportError(w, r, err)
		return
	}
	status := http.StatusCreated
	if res.IsDuplicate {
		status = http.StatusOK
	}
	RespondWithPayload(w, status, res)
}

func (h *Handlers) Stage(w http.ResponseWriter, r *http.Request) {
	scope := validation.ScopeFromCtx(r.Context())
	res, err := h.svc.Stage(r.Context(), mux.Vars(r)["id"], scope.TenantID)
	if err != nil {
		RespondWithImportError(w, r, err)
		return
	}
	RespondWithPayload(w, http.StatusOK, res)
}

type commitRequest struct {
	BankAccountID string `json:"bank_account_id"`
}

func (h *Handlers) Commit(w http.ResponseWriter, r *http.Request) {
	scope := validation.ScopeFromCtx(r.Context())
	var req commitRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	res, err := h.svc.Commit(r.Context(), mux.Vars(r)["id"], scope.TenantID, req.BankAccountID)
	if err != nil {
		RespondWithImportError(w, r, err)
		return
	}
	RespondWithPayload(w, http.StatusOK, res)
}

type failRequest struct {
	Reason string `json:"reason"`
}

func (h *Handlers) Fail(w http.ResponseWriter, r *http.Request) {
	scope := validation.ScopeFromCtx(r.Context())
	var req failRequest
	if err := decodeOptionalJSON(r, &req); err != nil {
		RespondWithError(w, r, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Reason) == "" {
		RespondWithError(w, r, http.StatusBadRequest, "reason is required")
		return
	}
	imp, err := h.svc.Fail(r.Context(), mux.Vars(r)["id"], scope.TenantID, req.Reason)
	if err != nil {
		RespondWithImportError(w, r, err)
		return
	}
	RespondWithPayload(w, http.StatusOK, map[string]interface{}{
		"import_id": imp.ID,
		"status":    imp.Status,
	})
}

func (h *Handlers) Get(w http.ResponseWriter, r *http.Request) {
	scope := validation.ScopeFromCtx(r.Context())
	imp, err := h.svc.Get(r.Context(), mux.Vars(r)["id"], scope.TenantID)
	if err != nil {
		RespondWithImportError(w, r, err)
		return
	}
	RespondWithPayload(w, http.StatusOK, map[string]interface{}{"import": imp})
}

func (h *Handlers) Rows(w http.ResponseWriter, r *http.Request) {
	scope := validation.ScopeFromCtx(r.Context())
	page, err := ExtractPagination(r)
	if err != nil {
		RespondWithError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	filter := bankimport.RowFilter{
		Limit:         page.Limit,
		Offset:        page.Offset,
		ExcludeErrors: r.URL.Query().Get("exclude_errors") == "true",
	}
	rows, err := h.svc.Rows(r.Context(), mux.Vars(r)["id"], scope.TenantID, filter)
	if err != nil {
		RespondWithImportError(w, r, err)
		return
	}
	if rows == nil {
		rows = []bankimport.Row{}
	}
	RespondWithRows(w, rows, page)
}

func (h *Handlers) Health(w http.ResponseWriter, r *http.Request) {
	checks := map[string]resource.Health{}
	if h.health != nil {
		checks = h.health.Health()
	}
	ok := true
	for _, c := range checks {
		ok = ok && c.OK
	}
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, map[string]interface{}{
		"success":   ok,
		"resources": checks,
	})
}

// decodeOptionalJSON accepts an empty body.
func decodeOptionalJSON(r *http.Request, v interface{}) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(io.LimitReader(r.Body, 1<<20)).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}
