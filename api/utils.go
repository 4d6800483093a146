package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"CimplrBankImport/internal/bankimport"
	"CimplrBankImport/internal/logger"
)

const (
	defaultRowsLimit = 100
	maxRowsLimit     = 1000
)

// RespondWithError writes the {"success": false, "error": ...} envelope.
func RespondWithError(w http.ResponseWriter, r *http.Request, status int, errMsg string) {
	RespondWithErrorFields(w, r, status, errMsg, nil)
}

func RespondWithErrorFields(w http.ResponseWriter, r *http.Request, status int, errMsg string, fields map[string]interface{}) {
	log := logger.FromContext(r.Context())
	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Int("status", status).Str("path", r.URL.Path).Msg(errMsg)

	resp := map[string]interface{}{
		"success": false,
		"error":   errMsg,
	}
	for k, v := range fields {
		resp[k] = v
	}
	writeJSON(w, status, resp)
}

// RespondWithPayload writes {"success": true} merged with payload's fields.
// Non-object payloads go under "data".
func RespondWithPayload(w http.ResponseWriter, status int, payload interface{}) {
	resp := map[string]interface{}{"success": true}
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			writeJSON(w, http.StatusInternalServerError, map[string]interface{}{"success": false, "error": "could not encode response"})
			return
		}
		var obj map[string]interface{}
		if json.Unmarshal(b, &obj) == nil && obj != nil {
			for k, v := range obj {
				resp[k] = v
			}
		} else {
			resp["data"] = json.RawMessage(b)
		}
	}
	writeJSON(w, status, resp)
}

// RespondWithRows sends a list payload under the conventional `rows` key.
func RespondWithRows(w http.ResponseWriter, rows interface{}, page PaginationParams) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"rows":    rows,
		"limit":   page.Limit,
		"offset":  page.Offset,
	})
}

// RespondWithImportError maps a pipeline error to its HTTP status.
func RespondWithImportError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusForError(err)
	fields := map[string]interface{}{}
	var ie *bankimport.ImportError
	if errors.As(err, &ie) {
		if ie.ImportID != "" {
			fields["import_id"] = ie.ImportID
		}
		if ie.Expected != "" || ie.Found != "" {
			fields["expected"] = ie.Expected
			fields["found"] = ie.Found
		}
	}
	msg := err.Error()
	if status == http.StatusServiceUnavailable {
		msg = "storage temporarily unavailable, retry later"
		log := logger.FromContext(r.Context())
		log.Error().Err(err).Msg("transient storage failure")
	}
	RespondWithErrorFields(w, r, status, msg, fields)
}

// StatusForError returns the HTTP status for an error kind.
func StatusForError(err error) int {
	switch bankimport.Kind(err) {
	case bankimport.ErrNotFound:
		return http.StatusNotFound
	case bankimport.ErrInvalidState:
		return http.StatusConflict
	case bankimport.ErrArtifactMissing:
		return http.StatusGone
	case bankimport.ErrUnrecognizedFormat:
		return http.StatusUnsupportedMediaType
	case bankimport.ErrParseFailed:
		return http.StatusUnprocessableEntity
	case bankimport.ErrInvalidInput:
		return http.StatusBadRequest
	case bankimport.ErrTransientStorage:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

type PaginationParams struct {
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

// ExtractPagination reads limit and offset query parameters.
func ExtractPagination(r *http.Request) (PaginationParams, error) {
	params := PaginationParams{Limit: defaultRowsLimit}

	if l := r.URL.Query().Get("limit"); l != "" {
		val, err := strconv.Atoi(l)
		if err != nil || val <= 0 {
			return PaginationParams{}, fmt.Errorf("invalid limit parameter: %s", l)
		}
		if val > maxRowsLimit {
			val = maxRowsLimit
		}
		params.Limit = val
	}
	if o := r.URL.Query().Get("offset"); o != "" {
		val, err := strconv.Atoi(o)
		if err != nil || val < 0 {
			return PaginationParams{}, fmt.Errorf("invalid offset parameter: %s", o)
		}
		params.Offset = val
	}
	return params, nil
}
