package api

import (
	"net/http"

	"CimplrBankImport/internal/logger"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
)

func NewRouter(h *Handlers, log zerolog.Logger) *mux.Router {
	router := mux.NewRouter()
	router.Use(RequestLogger(log))

	router.HandleFunc("/api/health", h.Health).Methods(http.MethodGet)

	imports := router.PathPrefix("/api/bank-imports").Subrouter()
	imports.Use(ScopeMiddleware)
	imports.HandleFunc("", h.Upload).Methods(http.MethodPost)
	imports.HandleFunc("/events", h.Events).Methods(http.MethodGet)
	imports.HandleFunc("/{id}", h.Get).Methods(http.MethodGet)
	imports.HandleFunc("/{id}/rows", h.Rows).Methods(http.MethodGet)
	imports.HandleFunc("/{id}/stage", h.Stage).Methods(http.MethodPost)
	imports.HandleFunc("/{id}/commit", h.Commit).Methods(http.MethodPost)
	imports.HandleFunc("/{id}/fail", h.Fail).Methods(http.MethodPost)

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if logger.GlobalLogger != nil {
			logger.GlobalLogger.LogAudit("route not found: " + r.Method + " " + r.URL.Path + " from " + extractClientIP(r))
		}
		RespondWithError(w, r, http.StatusNotFound, "route not found")
	})
	return router
}
