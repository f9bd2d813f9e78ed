package handlers

import (
	"net/http"

	mdlwr "diglet/internal/middleware"
	"diglet/internal/services"
	"diglet/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type DiagnosticsHandler struct {
	logr *zap.Logger
}

func NewDiagnosticsHandler(logr *zap.Logger) *DiagnosticsHandler {
	return &DiagnosticsHandler{logr: logr}
}

type aoiReq struct {
	Path string `json:"path"`
}

// POST /api/v1/aoi
func (h *DiagnosticsHandler) LoadAOI(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	var req aoiReq
	if err := decodeJSON(r, &req); err != nil || req.Path == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "path is required"})
		return
	}

	aoi, err := session.LoadAOI(r.Context(), req.Path)
	if err != nil {
		writeError(w, h.logr, "failed to load AOI", err)
		return
	}
	writeJSON(w, http.StatusOK, aoi)
}

type scanReq struct {
	Schema string   `json:"schema"`
	Tables []string `json:"tables,omitempty"`
}

// POST /api/v1/scan
// Tables may be given in the body or as ?tables=a,b.
func (h *DiagnosticsHandler) Scan(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	var req scanReq
	if err := decodeJSON(r, &req); err != nil || req.Schema == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "schema is required"})
		return
	}
	if len(req.Tables) == 0 {
		req.Tables = utils.ParseQueryList(r.URL.Query(), "tables")
	}

	report, err := session.Scan(r.Context(), req.Schema, req.Tables)
	if err != nil {
		writeError(w, h.logr, "scan failed", err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

// GET /api/v1/diagnostics/tree
func (h *DiagnosticsHandler) Tree(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	nodes, err := session.Hierarchy()
	if err != nil {
		writeError(w, h.logr, "failed to build hierarchy", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tables": nodes})
}

// GET /api/v1/diagnostics/report.csv
func (h *DiagnosticsHandler) ReportCSV(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	rows, err := session.CountReport()
	if err != nil {
		writeError(w, h.logr, "failed to build count report", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="diagnostic.csv"`)
	if err := services.WriteCountReportCSV(w, rows); err != nil {
		h.logr.Error("failed to write count report", zap.Error(err))
	}
}

type selectionReq struct {
	Included *bool `json:"included"`
}

// PUT /api/v1/selection/{table}
func (h *DiagnosticsHandler) SetSelection(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	var req selectionReq
	if err := decodeJSON(r, &req); err != nil || req.Included == nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "included is required"})
		return
	}

	table := chi.URLParam(r, "table")
	if err := session.SetIncluded(table, *req.Included); err != nil {
		writeError(w, h.logr, "failed to change selection", err)
		return
	}
	writeJSON(w, http.StatusOK, session.Selection())
}

// GET /api/v1/selection
func (h *DiagnosticsHandler) Selection(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}
	writeJSON(w, http.StatusOK, session.Selection())
}
