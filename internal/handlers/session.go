package handlers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"diglet/internal/auth"
	mdlwr "diglet/internal/middleware"
	"diglet/internal/models"
	"diglet/internal/services"

	"go.uber.org/zap"
)

// SessionOpener connects a new diagnostic session for a profile.
type SessionOpener func(ctx context.Context, p models.ConnectionProfile) (*services.DiagnosticSession, error)

type SessionHandler struct {
	open     SessionOpener
	sessions *services.SessionManager
	jwt      *auth.JWTManager
	logr     *zap.Logger
}

func NewSessionHandler(open SessionOpener, sessions *services.SessionManager, jwtMgr *auth.JWTManager, logr *zap.Logger) *SessionHandler {
	return &SessionHandler{open: open, sessions: sessions, jwt: jwtMgr, logr: logr}
}

type sessionResp struct {
	Token     string    `json:"token"`
	SessionID string    `json:"session_id"`
	ExpiresAt time.Time `json:"expires_at"`
	Schemas   []string  `json:"schemas"`
}

// POST /api/v1/session
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	var profile models.ConnectionProfile
	if err := decodeJSON(r, &profile); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid payload"})
		return
	}
	if profile.Host == "" || profile.DBName == "" || profile.User == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "host, dbname and user are required"})
		return
	}

	session, err := h.open(r.Context(), profile)
	if err != nil {
		writeError(w, h.logr, "failed to open session", err)
		return
	}

	schemas, err := session.Schemas(r.Context())
	if err != nil {
		_ = session.Close()
		writeError(w, h.logr, "failed to list schemas", err)
		return
	}

	token, exp, err := h.jwt.IssueSessionToken(session.ID)
	if err != nil {
		_ = session.Close()
		writeError(w, h.logr, "failed to issue session token", err)
		return
	}
	h.sessions.Add(session)

	h.logr.Info("session opened", zap.String("session_id", session.ID), zap.String("profile", profile.String()))
	writeJSON(w, http.StatusCreated, sessionResp{
		Token:     token,
		SessionID: session.ID,
		ExpiresAt: exp,
		Schemas:   schemas,
	})
}

// DELETE /api/v1/session
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}
	if err := h.sessions.Remove(session.ID); err != nil && !errors.Is(err, services.ErrSessionNotFound) {
		writeError(w, h.logr, "failed to close session", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/session/log
func (h *SessionHandler) Log(w http.ResponseWriter, r *http.Request) {
	session, ok := mdlwr.SessionFrom(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": session.Log()})
}
