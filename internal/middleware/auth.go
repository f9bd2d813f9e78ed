package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"diglet/internal/auth"
	"diglet/internal/services"

	"go.uber.org/zap"
)

type SessionAuth struct {
	jwt      *auth.JWTManager
	sessions *services.SessionManager
	logr     *zap.Logger
}

type contextKey string

const (
	ContextSessionKey contextKey = "session"
	ContextTokenKey   contextKey = "token"
)

// NewSessionAuth creates the bearer middleware protecting session routes.
func NewSessionAuth(jwtMgr *auth.JWTManager, sessions *services.SessionManager, logr *zap.Logger) *SessionAuth {
	return &SessionAuth{jwt: jwtMgr, sessions: sessions, logr: logr}
}

// Authenticate validates the bearer token and attaches its live session to
// the request context.
func (m *SessionAuth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "missing authorization header", http.StatusUnauthorized)
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			http.Error(w, "invalid token format", http.StatusUnauthorized)
			return
		}

		sessionID, err := m.jwt.SessionID(tokenString)
		if err != nil {
			m.logr.Warn("token parse error", zap.Error(err))
			http.Error(w, "invalid or expired token", http.StatusUnauthorized)
			return
		}

		session, err := m.sessions.Get(sessionID)
		if err != nil {
			if errors.Is(err, services.ErrSessionExpired) {
				m.logr.Info("session expired", zap.String("session_id", sessionID))
			} else {
				m.logr.Warn("unknown session", zap.String("session_id", sessionID))
			}
			http.Error(w, "session closed or expired", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ContextSessionKey, session)
		ctx = context.WithValue(ctx, ContextTokenKey, tokenString)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// SessionFrom returns the session attached by Authenticate.
func SessionFrom(ctx context.Context) (*services.DiagnosticSession, bool) {
	s, ok := ctx.Value(ContextSessionKey).(*services.DiagnosticSession)
	return s, ok && s != nil
}
