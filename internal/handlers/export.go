package handlers

import (
	"net/http"
	"path/filepath"
	"strings"

	mdlwr "diglet/internal/middleware"

	"go.uber.org/zap"
)

type ExportHandler struct {
	logr *zap.Logger
}

func NewExportHandler(logr *zap.Logger) *ExportHandler {
	return &ExportHandler{logr: logr}
}

type exportReq struct {
	Output string `json:"output"`
}

// POST /api/v1/export
func (h *ExportHandler) Export(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}

	var req exportReq
	if err := decodeJSON(r, &req); err != nil || strings.TrimSpace(req.Output) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "output is required"})
		return
	}
	output := filepath.Clean(req.Output)
	if !strings.EqualFold(filepath.Ext(output), ".gpkg") {
		output += ".gpkg"
	}

	report, err := session.Export(r.Context(), output)
	if err != nil {
		writeError(w, h.logr, "export failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": report.Success(), "report": report})
}
