// Package session keeps the browser session in httpOnly cookies on the edge.
// The access cookie is verified locally; an expired or missing one is
// replaced by refreshing through the auth service.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/kaizenpbi/kaizen/internal/authclient"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/token"
)

const (
	accessName  = "kaizen_at"
	refreshName = "kaizen_rt"
	hostPrefix  = "__Host-"
)

// CookieConfig controls the attributes of both session cookies.
type CookieConfig struct {
	Domain     string
	Secure     bool
	SameSite   string // strict, lax or none
	HostPrefix bool
}

// Verifier checks access tokens locally.
type Verifier interface {
	Verify(raw string, kind token.Kind) (model.Session, error)
}

// Refresher exchanges a refresh token with the auth service.
type Refresher interface {
	Refresh(ctx context.Context, refreshToken string) (*authclient.Response, error)
}

// Manager reads, writes and refreshes session cookies.
type Manager struct {
	cookies    CookieConfig
	sameSite   http.SameSite
	accessKey  string
	refreshKey string
	verifier   Verifier
	refresher  Refresher
	logger     *slog.Logger
	group      singleflight.Group
}

// NewManager validates cfg and returns a Manager.
func NewManager(cfg CookieConfig, v Verifier, r Refresher, logger *slog.Logger) (*Manager, error) {
	ss, err := parseSameSite(cfg.SameSite)
	if err != nil {
		return nil, err
	}
	if cfg.HostPrefix && (!cfg.Secure || cfg.Domain != "") {
		return nil, errors.New("__Host- cookies require secure cookies and no domain")
	}
	if ss == http.SameSiteNoneMode && !cfg.Secure {
		return nil, errors.New("samesite=none requires secure cookies")
	}
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		cookies:    cfg,
		sameSite:   ss,
		accessKey:  accessName,
		refreshKey: refreshName,
		verifier:   v,
		refresher:  r,
		logger:     logger,
	}
	if cfg.HostPrefix {
		m.accessKey = hostPrefix + accessName
		m.refreshKey = hostPrefix + refreshName
	}
	return m, nil
}

func parseSameSite(v string) (http.SameSite, error) {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "", "strict":
		return http.SameSiteStrictMode, nil
	case "lax":
		return http.SameSiteLaxMode, nil
	case "none":
		return http.SameSiteNoneMode, nil
	}
	return 0, fmt.Errorf("unknown samesite mode %q", v)
}

// CookieNames returns the access and refresh cookie names.
func (m *Manager) CookieNames() (access, refresh string) {
	return m.accessKey, m.refreshKey
}

// Set writes both cookies from a minted session. TTLs are in seconds; zero
// falls back to the token defaults.
func (m *Manager) Set(w http.ResponseWriter, s *model.SessionResponse) {
	accessTTL := ttlOr(s.AccessTTL, token.DefaultAccessTTL)
	refreshTTL := ttlOr(s.RefreshTTL, token.DefaultRefreshTTL)
	http.SetCookie(w, m.cookie(m.accessKey, s.Tokens.AccessToken, accessTTL))
	http.SetCookie(w, m.cookie(m.refreshKey, s.Tokens.RefreshToken, refreshTTL))
}

// Clear expires both cookies.
func (m *Manager) Clear(w http.ResponseWriter) {
	for _, name := range []string{m.accessKey, m.refreshKey} {
		c := m.cookie(name, "", 0)
		c.MaxAge = -1
		c.Expires = time.Unix(0, 0)
		http.SetCookie(w, c)
	}
}

func (m *Manager) cookie(name, value string, ttl time.Duration) *http.Cookie {
	c := &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		HttpOnly: true,
		Secure:   m.cookies.Secure,
		SameSite: m.sameSite,
		MaxAge:   int(ttl / time.Second),
	}
	if !m.cookies.HostPrefix {
		c.Domain = m.cookies.Domain
	}
	return c
}

func ttlOr(seconds int64, fallback time.Duration) time.Duration {
	if seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Authenticate returns the caller's session. A valid access cookie is
// accepted as is. Otherwise the refresh cookie is exchanged and both cookies
// are rewritten on w. Concurrent refreshes of the same token share one call.
func (m *Manager) Authenticate(w http.ResponseWriter, r *http.Request) (model.Session, model.Status) {
	if c, err := r.Cookie(m.accessKey); err == nil && c.Value != "" {
		if s, err := m.verifier.Verify(c.Value, token.Access); err == nil {
			return s, model.StatusOK
		}
	}

	c, err := r.Cookie(m.refreshKey)
	if err != nil || c.Value == "" {
		return model.Session{}, model.StatusNoSession
	}

	sum := sha256.Sum256([]byte(c.Value))
	v, err, _ := m.group.Do(hex.EncodeToString(sum[:]), func() (any, error) {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), 15*time.Second)
		defer cancel()
		return m.refresher.Refresh(ctx, c.Value)
	})
	if err != nil {
		m.logger.Warn("session refresh failed", "error", err)
		return model.Session{}, model.StatusRefreshFailed
	}
	resp := v.(*authclient.Response)
	if !resp.OK() {
		return model.Session{}, model.StatusRefreshFailed
	}

	s, err := m.verifier.Verify(resp.Session.Tokens.AccessToken, token.Access)
	if err != nil {
		m.logger.Warn("refreshed access token rejected", "error", err)
		return model.Session{}, model.StatusRefreshFailed
	}
	m.Set(w, resp.Session)
	return s, model.StatusOK
}
