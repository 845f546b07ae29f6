package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/viper"

	"github.com/kaizenpbi/kaizen/internal/config"
	"github.com/kaizenpbi/kaizen/internal/service"
	"github.com/kaizenpbi/kaizen/internal/store"
)

// loadConfig reads .env files, the config file and the environment into a
// fresh viper and returns the validated configuration.
func loadConfig() (*config.Config, error) {
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, err
	}
	v := viper.New()
	if err := config.Setup(v, cfgFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newLogger builds the process logger from the log settings.
func newLogger(c config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(c.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(c.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// storeConfig maps the database settings onto the store. A MySQL DSN is
// assembled from the discrete fields when none is given.
func storeConfig(d config.DatabaseConfig) (store.Config, error) {
	sc := store.DefaultConfig()
	sc.Driver = d.Driver
	sc.DSN = d.DSN
	if d.MaxOpenConns > 0 {
		sc.MaxOpenConns = d.MaxOpenConns
	}
	if d.MaxIdleConns > 0 {
		sc.MaxIdleConns = d.MaxIdleConns
	}
	if d.ConnMaxLifetime > 0 {
		sc.ConnMaxLifetime = d.ConnMaxLifetime
	}
	if d.QueryTimeout > 0 {
		sc.QueryTimeout = d.QueryTimeout
	}
	if sc.DSN != "" || d.Driver != "mysql" {
		return sc, nil
	}

	dsn, err := store.MySQLDSN(store.MySQLOptions{
		Host:     d.Host,
		Port:     d.Port,
		User:     d.User,
		Password: d.Password,
		Database: d.Name,
		TLS: store.TLSOptions{
			Enabled:            d.TLS.Enabled || d.TLS.CAPath != "" || d.TLS.CABase64 != "",
			CAPath:             d.TLS.CAPath,
			CABase64:           d.TLS.CABase64,
			RejectUnauthorized: d.TLS.RejectUnauthorized,
		},
		ConnectTimeout: d.ConnectTimeout,
		ReadTimeout:    d.ReadTimeout,
		WriteTimeout:   d.WriteTimeout,
	})
	if err != nil {
		return store.Config{}, err
	}
	sc.DSN = dsn
	return sc, nil
}

// openStore opens the configured credential store without migrating it.
func openStore(ctx context.Context, cfg *config.Config) (*store.Store, error) {
	if err := cfg.ValidateDatabase(); err != nil {
		return nil, err
	}
	sc, err := storeConfig(cfg.Database)
	if err != nil {
		return nil, err
	}
	st, err := store.Open(ctx, sc)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

// withStore loads the configuration, opens the store and runs fn.
func withStore(ctx context.Context, fn func(cfg *config.Config, st *store.Store) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	st, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer st.Close()
	return fn(cfg, st)
}

// newResolver returns a resolver that hashes with the configured pepper.
func newResolver(cfg *config.Config, st *store.Store) (*service.Resolver, error) {
	if strings.TrimSpace(cfg.Auth.Pepper) == "" {
		return nil, fmt.Errorf("auth.pepper is required (set AUTH_PEPPER or KAIZEN_AUTH_PEPPER)")
	}
	return service.NewResolver(st, cfg.Auth.Pepper, nil, nil), nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
