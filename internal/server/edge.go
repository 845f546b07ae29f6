package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/kaizenpbi/kaizen/internal/handler"
	"github.com/kaizenpbi/kaizen/internal/metrics"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/rate"
	"github.com/kaizenpbi/kaizen/internal/server/middleware"
	"github.com/kaizenpbi/kaizen/internal/session"
)

// RateLimit bounds /auth/* requests per client IP in the in-process limiter.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// EdgeDeps are the collaborators of the edge router.
type EdgeDeps struct {
	Auth     handler.AuthLogin
	Sessions *session.Manager
	// AuthURL is where /reports/* is proxied.
	AuthURL string
	// Limiter, when set, replaces the in-process limiter so several edge
	// instances share one budget per IP.
	Limiter        rate.Limiter
	RateLimit      RateLimit
	RequireSession bool
	Metrics        *metrics.Metrics
}

// NewEdge builds the browser-facing edge: cookie sessions over the auth
// service and a reverse proxy for the report endpoints.
func NewEdge(cfg Config, deps EdgeDeps, logger *slog.Logger) (*Server, error) {
	if deps.Sessions == nil || deps.Auth == nil {
		return nil, fmt.Errorf("edge needs an auth client and a session manager")
	}
	target, err := url.Parse(deps.AuthURL)
	if err != nil || target.Scheme == "" || target.Host == "" {
		return nil, fmt.Errorf("invalid auth url %q", deps.AuthURL)
	}
	s := newServer("edge", cfg, logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP(cfg.TrustedProxies))
	r.Use(middleware.Logger(s.logger, deps.Metrics))
	r.Use(chimw.Recoverer)
	r.Use(middleware.SecurityHeaders)
	if len(cfg.CORSOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   cfg.CORSOrigins,
			AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
			AllowedHeaders:   []string{"Accept", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID", "Retry-After"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	r.Get("/healthz", handleHealthz)
	r.Handle("/metrics", deps.Metrics.Handler())

	edge := handler.NewEdgeHandler(deps.Auth, deps.Sessions, s.logger)
	r.Route("/auth", func(r chi.Router) {
		if deps.Limiter != nil {
			r.Use(middleware.SharedRateLimit(deps.Limiter, s.logger))
		} else {
			r.Use(middleware.RateLimit(deps.RateLimit.Requests, deps.RateLimit.Window))
		}
		r.Post("/license/login", edge.Login)
		r.Post("/login", edge.Login)
		r.Get("/me", edge.Me)
		r.Post("/logout", edge.Logout)
	})

	proxy := newAuthProxy(target, s.logger)
	r.Route("/reports", func(r chi.Router) {
		r.Post("/options", http.MaxBytesHandler(proxy, middleware.MaxBodyBytes).ServeHTTP)
		r.Group(func(r chi.Router) {
			if deps.RequireSession {
				r.Use(middleware.RequireSession(deps.Sessions))
			}
			r.Get("/*", proxy.ServeHTTP)
		})
	})

	r.NotFound(notFound)
	s.router = r
	return s, nil
}

// newAuthProxy forwards to the auth service. The browser address travels in
// X-Forwarded-For and the request id is kept so both logs correlate.
func newAuthProxy(target *url.URL, logger *slog.Logger) *httputil.ReverseProxy {
	return &httputil.ReverseProxy{
		Rewrite: func(pr *httputil.ProxyRequest) {
			pr.SetURL(target)
			pr.SetXForwarded()
			pr.Out.Host = target.Host
			// Session cookies stay at the edge.
			pr.Out.Header.Del("Cookie")
			if id := middleware.GetRequestID(pr.In.Context()); id != "" {
				pr.Out.Header.Set("X-Request-ID", id)
			}
		},
		ModifyResponse: func(resp *http.Response) error {
			middleware.StripSecurityHeaders(resp.Header)
			resp.Header.Del("X-Request-ID")
			return nil
		},
		ErrorHandler: func(w http.ResponseWriter, r *http.Request, err error) {
			logger.Error("auth proxy failed",
				"path", r.URL.Path,
				"error", err,
				"request_id", middleware.GetRequestID(r.Context()),
			)
			s := model.StatusBadAuthResponse
			writeJSON(w, s.HTTPStatus(), model.StatusResponse{Status: s, Error: s})
		},
	}
}
