package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"diglet/internal/auth"
	"diglet/internal/config"
	"diglet/internal/database"
	"diglet/internal/logger"
	"diglet/internal/models"
	"diglet/internal/services"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type noCatalog struct{}

func (noCatalog) ListSchemas(context.Context) ([]string, error) { return nil, nil }

func (noCatalog) ListGeometryTables(context.Context, string) ([]string, error) { return nil, nil }

type noQuerier struct{}

func (noQuerier) Query(context.Context, string, ...any) (*database.RowSet, error) {
	return &database.RowSet{}, nil
}

func newSession() *services.DiagnosticSession {
	cfg := &config.Config{TargetSRID: 4674, GeometryColumn: "geom", SampleLimit: 5, SampleValues: 5, DisplayLength: 100}
	return services.NewDiagnosticSession(models.ConnectionProfile{}, noCatalog{}, noQuerier{}, nil, cfg,
		zap.NewNop(), logger.NewOperationLog(10))
}

func TestSessionAuth(t *testing.T) {
	jwtMgr, err := auth.NewJWTManager("secret", "diglet", time.Minute)
	require.NoError(t, err)
	sessions := services.NewSessionManager(time.Hour)
	live := newSession()
	sessions.Add(live)

	var got *services.DiagnosticSession
	h := NewSessionAuth(jwtMgr, sessions, zap.NewNop()).Authenticate(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = SessionFrom(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	liveToken, _, err := jwtMgr.IssueSessionToken(live.ID)
	require.NoError(t, err)
	goneToken, _, err := jwtMgr.IssueSessionToken("no-such-session")
	require.NoError(t, err)

	cases := map[string]struct {
		header string
		status int
	}{
		"live session":    {header: "Bearer " + liveToken, status: http.StatusNoContent},
		"missing header":  {header: "", status: http.StatusUnauthorized},
		"not bearer":      {header: liveToken, status: http.StatusUnauthorized},
		"unknown session": {header: "Bearer " + goneToken, status: http.StatusUnauthorized},
		"bad token":       {header: "Bearer abc.def.ghi", status: http.StatusUnauthorized},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			got = nil
			req := httptest.NewRequest(http.MethodGet, "/api/v1/schemas", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			assert.Equal(t, tc.status, rec.Code)
			if tc.status == http.StatusNoContent {
				assert.Same(t, live, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}
