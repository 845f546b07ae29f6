package server

import (
	"log/slog"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kaizenpbi/kaizen/internal/handler"
	"github.com/kaizenpbi/kaizen/internal/metrics"
	"github.com/kaizenpbi/kaizen/internal/server/middleware"
	"github.com/kaizenpbi/kaizen/internal/service"
	"github.com/kaizenpbi/kaizen/internal/signature"
)

// AuthDeps are the collaborators of the auth service router.
type AuthDeps struct {
	Login    *service.LoginService
	Reports  *service.ReportService
	Sessions *service.SessionService
	Signer   *signature.Signer
	Metrics  *metrics.Metrics
	// Store backs /readyz.
	Store   Pinger
	OpenAPI *openapi3.T
}

// NewAuth builds the auth service: public license and report endpoints plus
// the signed internal endpoints the edge calls.
func NewAuth(cfg Config, deps AuthDeps, logger *slog.Logger) *Server {
	s := newServer("auth", cfg, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(middleware.Logger(s.logger, deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders: []string{"X-Request-ID", "Retry-After"},
			MaxAge:         300,
		}))
	}
	r.Use(chimw.Compress(5))

	r.Get("/healthz", handleHealthz)
	checks := map[string]Pinger{}
	if deps.Store != nil {
		checks["database"] = deps.Store
	}
	r.Get("/readyz", readyz(s.logger, checks))
	r.Handle("/metrics", deps.Metrics.Handler())
	if deps.OpenAPI != nil {
		doc := deps.OpenAPI
		r.Get("/openapi.json", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, doc)
		})
	}

	licenses := handler.NewLicenseHandler(deps.Login, deps.Reports, s.logger)
	for _, p := range []string{"/login", "/license/login", "/auth/login", "/auth/license/login"} {
		r.Post(p, licenses.Login)
	}

	reports := handler.NewReportsHandler(deps.Reports, s.logger)
	r.Route("/reports", func(r chi.Router) {
		r.Post("/options", licenses.Options)
		r.Get("/home", reports.Home)
		r.Get("/client-info", reports.ClientInfo)
		r.Get("/{code}", reports.ByCode)
	})

	internal := handler.NewInternalHandler(deps.Sessions, s.logger)
	r.Route("/internal/auth", func(r chi.Router) {
		r.Use(middleware.VerifySignature(deps.Signer, deps.Metrics, s.logger))
		r.Post("/license/login", internal.Login)
		r.Post("/refresh", internal.Refresh)
	})

	r.NotFound(notFound)
	s.router = r
	return s
}
