package handlers

import (
	"net/http"

	mdlwr "diglet/internal/middleware"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type CatalogHandler struct {
	logr *zap.Logger
}

func NewCatalogHandler(logr *zap.Logger) *CatalogHandler {
	return &CatalogHandler{logr: logr}
}

// GET /api/v1/schemas
func (h *CatalogHandler) Schemas(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	schemas, err := session.Schemas(r.Context())
	if err != nil {
		writeError(w, h.logr, "failed to list schemas", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schemas": schemas})
}

// GET /api/v1/schemas/{schema}/tables
func (h *CatalogHandler) Tables(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}
	schema := chi.URLParam(r, "schema")

	tables, err := session.Tables(r.Context(), schema)
	if err != nil {
		writeError(w, h.logr, "failed to list geometry tables", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": schema, "tables": tables})
}
