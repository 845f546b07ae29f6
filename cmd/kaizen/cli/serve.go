package cli

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kaizenpbi/kaizen/internal/authclient"
	"github.com/kaizenpbi/kaizen/internal/config"
	"github.com/kaizenpbi/kaizen/internal/license"
	"github.com/kaizenpbi/kaizen/internal/metrics"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/openapi"
	"github.com/kaizenpbi/kaizen/internal/rate"
	"github.com/kaizenpbi/kaizen/internal/server"
	"github.com/kaizenpbi/kaizen/internal/service"
	"github.com/kaizenpbi/kaizen/internal/session"
	"github.com/kaizenpbi/kaizen/internal/signature"
	"github.com/kaizenpbi/kaizen/internal/store"
	"github.com/kaizenpbi/kaizen/internal/token"
)

type serveOptions struct {
	auth    bool
	edge    bool
	dev     bool
	migrate bool
}

func newServeCmd() *cobra.Command {
	var opts serveOptions

	cmd := &cobra.Command{
		Use:   "serve [auth|edge]",
		Short: "Start the auth and edge services",
		Long: `Start the HTTP services. Without an argument both run in one process; the
edge then talks to the auth service over its configured auth_url.`,
		Example: `  kaizen serve
  kaizen serve auth --migrate
  kaizen serve --dev`,
		Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
		ValidArgs: []string{"auth", "edge"},
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.auth, opts.edge = true, true
			if len(args) == 1 {
				opts.auth = args[0] == "auth"
				opts.edge = args[0] == "edge"
			}
			return runServe(cmd.Context(), opts)
		},
	}

	cmd.Flags().BoolVar(&opts.dev, "dev", false, "Development mode: in-memory store, generated secrets, a demo license, insecure cookies")
	cmd.Flags().BoolVar(&opts.migrate, "migrate", false, "Apply pending migrations before serving")

	return cmd
}

func runServe(ctx context.Context, opts serveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if opts.dev {
		cfg.Log.Level = "debug"
		if err := applyDevDefaults(cfg); err != nil {
			return err
		}
	}
	logger := newLogger(cfg.Log, os.Stderr)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	var servers []*server.Server
	var cleanup []func() error
	defer func() {
		for i := len(cleanup) - 1; i >= 0; i-- {
			if err := cleanup[i](); err != nil {
				logger.Warn("cleanup failed", "error", err)
			}
		}
	}()

	if opts.auth {
		srv, closeFn, err := buildAuth(ctx, cfg, opts, logger)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, closeFn)
		servers = append(servers, srv)
	}
	if opts.edge {
		srv, closeFn, err := buildEdge(ctx, cfg, logger)
		if err != nil {
			return err
		}
		cleanup = append(cleanup, closeFn)
		servers = append(servers, srv)
	}

	g, ctx := errgroup.WithContext(ctx)
	for _, srv := range servers {
		srv := srv
		g.Go(func() error { return srv.ListenAndServe(ctx) })
	}
	logger.Info("kaizen started", "version", versionString(), "auth", opts.auth, "edge", opts.edge)
	return g.Wait()
}

// applyDevDefaults fills every missing secret with a random value shared by
// both roles and relaxes the cookie policy for plain-http localhost.
func applyDevDefaults(cfg *config.Config) error {
	fill := func(dst ...*string) error {
		if *dst[0] != "" {
			for _, d := range dst[1:] {
				if *d == "" {
					*d = *dst[0]
				}
			}
			return nil
		}
		buf := make([]byte, 24)
		if _, err := rand.Read(buf); err != nil {
			return fmt.Errorf("generate dev secret: %w", err)
		}
		for _, d := range dst {
			*d = hex.EncodeToString(buf)
		}
		return nil
	}
	if err := fill(&cfg.Auth.Pepper); err != nil {
		return err
	}
	if err := fill(&cfg.Auth.JWT.Secret, &cfg.Edge.JWTVerifySecret); err != nil {
		return err
	}
	if err := fill(&cfg.Auth.HMACSecret, &cfg.Edge.HMACSecret); err != nil {
		return err
	}
	cfg.Edge.Cookie.Secure = false
	cfg.Edge.Cookie.HostPrefix = false
	if cfg.Edge.Cookie.SameSite == "none" {
		cfg.Edge.Cookie.SameSite = "lax"
	}
	return nil
}

func buildAuth(ctx context.Context, cfg *config.Config, opts serveOptions, logger *slog.Logger) (*server.Server, func() error, error) {
	if err := cfg.ValidateAuth(); err != nil {
		return nil, nil, err
	}

	var st *store.Store
	var err error
	if opts.dev {
		st, err = store.OpenMemory(ctx)
	} else {
		st, err = openStore(ctx, cfg)
	}
	if err != nil {
		return nil, nil, err
	}
	if opts.migrate && !opts.dev {
		if err := st.Migrate(); err != nil {
			st.Close()
			return nil, nil, err
		}
	}

	m, err := metrics.New()
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	if err := m.RegisterDBStats(st.Driver(), st.Stats); err != nil {
		st.Close()
		return nil, nil, err
	}

	issuer, err := token.NewIssuer(token.Config{
		Secret:     cfg.Auth.JWT.Secret,
		Issuer:     cfg.Auth.JWT.Issuer,
		AccessTTL:  cfg.Auth.JWT.AccessTTL,
		RefreshTTL: cfg.Auth.JWT.RefreshTTL,
	})
	if err != nil {
		st.Close()
		return nil, nil, err
	}
	signer, err := signature.New(cfg.Auth.HMACSecret, cfg.Auth.SignatureSkew)
	if err != nil {
		st.Close()
		return nil, nil, err
	}

	authLogger := logger.With("service", "auth")
	resolver := service.NewResolver(st, cfg.Auth.Pepper, m, authLogger)
	login := service.NewLoginService(resolver, st, model.LockoutPolicy{
		Threshold: cfg.Auth.Lockout.Threshold,
		Window:    cfg.Auth.Lockout.Window,
		Duration:  cfg.Auth.Lockout.Duration,
	}, m, authLogger)
	reports := service.NewReportService(st, resolver, cfg.Auth.ReportCache)

	if opts.dev {
		if err := seedDemo(ctx, st, resolver.Pepper(), logger); err != nil {
			st.Close()
			return nil, nil, err
		}
	}

	srv := server.NewAuth(server.Config{
		Addr:            cfg.Auth.Listen,
		ShutdownTimeout: cfg.ShutdownTimeout,
		CORSOrigins:     cfg.Auth.CORSOrigins,
	}, server.AuthDeps{
		Login:    login,
		Reports:  reports,
		Sessions: service.NewSessionService(login, resolver, issuer, m),
		Signer:   signer,
		Metrics:  m,
		Store:    st,
		OpenAPI:  openapi.Generate(versionString(), ""),
	}, logger)
	return srv, st.Close, nil
}

func buildEdge(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*server.Server, func() error, error) {
	if err := cfg.ValidateEdge(); err != nil {
		return nil, nil, err
	}
	e := cfg.Edge

	verifier, err := token.NewIssuer(token.Config{Secret: e.JWTVerifySecret, Issuer: e.JWTIssuer})
	if err != nil {
		return nil, nil, err
	}
	signer, err := signature.New(e.HMACSecret, 0)
	if err != nil {
		return nil, nil, err
	}
	client, err := authclient.New(e.AuthURL, signer, nil)
	if err != nil {
		return nil, nil, err
	}
	sessions, err := session.NewManager(session.CookieConfig{
		Domain:     e.Cookie.Domain,
		Secure:     e.Cookie.Secure,
		SameSite:   e.Cookie.SameSite,
		HostPrefix: e.Cookie.HostPrefix,
	}, verifier, client, logger.With("service", "edge"))
	if err != nil {
		return nil, nil, err
	}
	m, err := metrics.New()
	if err != nil {
		return nil, nil, err
	}

	closeFn := func() error { return nil }
	var limiter rate.Limiter
	if e.RateLimit.RedisAddr != "" {
		rc, err := rate.NewRedisClient(ctx, e.RateLimit.RedisAddr, e.RateLimit.RedisPassword, e.RateLimit.RedisDB)
		if err != nil {
			return nil, nil, err
		}
		limiter = rate.NewRedisLimiter(rc, "", e.RateLimit.Requests, e.RateLimit.Window)
		closeFn = rc.Close
	}

	srv, err := server.NewEdge(server.Config{
		Addr:            e.Listen,
		ShutdownTimeout: cfg.ShutdownTimeout,
		CORSOrigins:     e.CORSOrigins,
	}, server.EdgeDeps{
		Auth:           client,
		Sessions:       sessions,
		AuthURL:        e.AuthURL,
		Limiter:        limiter,
		RateLimit:      server.RateLimit{Requests: e.RateLimit.Requests, Window: e.RateLimit.Window},
		RequireSession: e.RequireSession,
		Metrics:        m,
	}, logger)
	if err != nil {
		closeFn()
		return nil, nil, err
	}
	return srv, closeFn, nil
}

// seedDemo registers client DEMO with two reports and logs a fresh license
// for it.
func seedDemo(ctx context.Context, st *store.Store, pepper license.Pepper, logger *slog.Logger) error {
	if err := st.CreateClient(ctx, &model.Client{Prefix: "DEMO", Name: "Demo Client"}); err != nil {
		return fmt.Errorf("seed client: %w", err)
	}
	for _, r := range []model.Report{
		{ClientPrefix: "DEMO", Code: "OVERVIEW", Name: "Overview", EmbedURL: "https://example.com/embed/overview", IsDefault: true, IsActive: true},
		{ClientPrefix: "DEMO", Code: "SALES", Name: "Sales", EmbedURL: "https://example.com/embed/sales", IsActive: true},
	} {
		if err := st.CreateReport(ctx, &r); err != nil {
			return fmt.Errorf("seed report %s: %w", r.Code, err)
		}
	}
	key, err := license.Generate("DEMO")
	if err != nil {
		return err
	}
	if err := st.CreateLicense(ctx, &model.License{
		ClientPrefix:    "DEMO",
		Hash:            license.Hash(pepper, key),
		AllowAllReports: true,
	}); err != nil {
		return fmt.Errorf("seed license: %w", err)
	}
	logger.Warn("dev mode: in-memory store seeded", "license", key.String())
	return nil
}
