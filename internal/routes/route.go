package routes

import (
	"context"
	"net/http"

	"diglet/internal/auth"
	"diglet/internal/config"
	"diglet/internal/handlers"
	"diglet/internal/logger"
	mdlwr "diglet/internal/middleware"
	"diglet/internal/models"
	"diglet/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

func NewRouter(cfg *config.Config, logr *logger.Logger, sessions *services.SessionManager) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	// CORS middleware with config
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Content-Disposition"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	jwtMgr, err := auth.NewJWTManager(cfg.SessionSecret, "diglet", cfg.SessionTTL)
	if err != nil {
		logr.Fatal("failed to init jwt manager", zap.Error(err))
	}
	if cfg.SessionSecret == "" {
		logr.Warn("SESSION_SECRET not set, using an ephemeral signing key")
	}

	opener := func(ctx context.Context, p models.ConnectionProfile) (*services.DiagnosticSession, error) {
		return services.OpenSession(ctx, p, cfg, logr)
	}

	sessionAuth := mdlwr.NewSessionAuth(jwtMgr, sessions, logr.Logger)

	sessionHandler := handlers.NewSessionHandler(opener, sessions, jwtMgr, logr.Logger)
	credentialsHandler := handlers.NewCredentialsHandler(logr.Logger)
	catalogHandler := handlers.NewCatalogHandler(logr.Logger)
	diagnosticsHandler := handlers.NewDiagnosticsHandler(logr.Logger)
	exportHandler := handlers.NewExportHandler(logr.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, err := w.Write([]byte("ok"))
		if err != nil {
			return
		}
	})

	r.Route("/api/v1", func(r chi.Router) {

		r.Route("/credentials", func(r chi.Router) {
			r.Post("/import", credentialsHandler.Import)
			r.Post("/export", credentialsHandler.Export)
		})

		r.Post("/session", sessionHandler.Create)

		// Session routes
		r.Group(func(r chi.Router) {
			r.Use(sessionAuth.Authenticate)

			r.Delete("/session", sessionHandler.Delete)
			r.Get("/session/log", sessionHandler.Log)

			r.Get("/schemas", catalogHandler.Schemas)
			r.Get("/schemas/{schema}/tables", catalogHandler.Tables)

			r.Post("/aoi", diagnosticsHandler.LoadAOI)
			r.Post("/scan", diagnosticsHandler.Scan)
			r.Get("/diagnostics/tree", diagnosticsHandler.Tree)
			r.Get("/diagnostics/report.csv", diagnosticsHandler.ReportCSV)

			r.Get("/selection", diagnosticsHandler.Selection)
			r.Put("/selection/{table}", diagnosticsHandler.SetSelection)

			r.Post("/export", exportHandler.Export)
		})
	})

	return r
}
