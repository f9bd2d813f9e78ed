package handlers

import (
	"net/http"

	"diglet/internal/models"
	"diglet/internal/services"

	"go.uber.org/zap"
)

type CredentialsHandler struct {
	logr *zap.Logger
}

func NewCredentialsHandler(logr *zap.Logger) *CredentialsHandler {
	return &CredentialsHandler{logr: logr}
}

// POST /api/v1/credentials/import
func (h *CredentialsHandler) Import(w http.ResponseWriter, r *http.Request) {
	profile, err := services.ImportProfile(r.Body)
	if err != nil {
		writeError(w, h.logr, "credential import failed", err)
		return
	}
	h.logr.Info("credentials imported", zap.String("profile", profile.String()))
	writeJSON(w, http.StatusOK, profile)
}

// POST /api/v1/credentials/export
func (h *CredentialsHandler) Export(w http.ResponseWriter, r *http.Request) {
	var profile models.ConnectionProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="credentials.json"`)
	if err := services.ExportProfile(w, profile); err != nil {
		h.logr.Error("credential export failed", zap.Error(err))
	}
}
