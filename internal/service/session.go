package service

import (
	"context"
	"fmt"
	"strconv"

	"github.com/kaizenpbi/kaizen/internal/metrics"
	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/token"
)

// SessionService mints session tokens for successful logins and rotates
// them on refresh.
type SessionService struct {
	login    *LoginService
	resolver *Resolver
	issuer   *token.Issuer
	metrics  *metrics.Metrics
}

// NewSessionService wires a SessionService.
func NewSessionService(login *LoginService, r *Resolver, issuer *token.Issuer, m *metrics.Metrics) *SessionService {
	return &SessionService{login: login, resolver: r, issuer: issuer, metrics: m}
}

// Issued is a minted session.
type Issued struct {
	Session model.Session
	Tokens  model.TokenPair
}

// Login runs the login pipeline and, on success, mints a token pair.
func (s *SessionService) Login(ctx context.Context, a Attempt) (LoginResult, *Issued, error) {
	res, err := s.login.Login(ctx, a)
	if err != nil || res.Status != model.StatusOK {
		return res, nil, err
	}
	issued, err := s.mint(res.License)
	if err != nil {
		return LoginResult{}, nil, err
	}
	return res, issued, nil
}

// Refresh exchanges a refresh token for a new pair. The license behind the
// session is re-classified, so a revoked or expired license cannot keep a
// session alive. Any rejection is reported as refresh-failed.
func (s *SessionService) Refresh(ctx context.Context, refreshToken string) (*Issued, model.Status, error) {
	sess, err := s.issuer.Verify(refreshToken, token.Refresh)
	if err != nil {
		s.metrics.Refresh(string(model.StatusRefreshFailed))
		return nil, model.StatusRefreshFailed, nil
	}
	id, err := token.LicenseID(sess)
	if err != nil {
		s.metrics.Refresh(string(model.StatusRefreshFailed))
		return nil, model.StatusRefreshFailed, nil
	}

	lic, status, err := s.resolver.ClassifyID(ctx, id)
	if err != nil {
		return nil, "", err
	}
	if status != model.StatusOK || lic.ClientPrefix != sess.TenantID {
		s.metrics.Refresh(string(status))
		return nil, model.StatusRefreshFailed, nil
	}

	issued, err := s.mint(lic)
	if err != nil {
		return nil, "", err
	}
	s.metrics.Refresh(string(model.StatusOK))
	return issued, model.StatusOK, nil
}

// Issuer exposes the token issuer for TTLs.
func (s *SessionService) Issuer() *token.Issuer {
	return s.issuer
}

func (s *SessionService) mint(lic *model.License) (*Issued, error) {
	pair, sess, err := s.issuer.Mint(model.Session{
		Subject:  strconv.FormatInt(lic.ID, 10),
		TenantID: lic.ClientPrefix,
		Scope:    []string{model.ScopeDashView},
	})
	if err != nil {
		return nil, fmt.Errorf("mint session for license %d: %w", lic.ID, err)
	}
	return &Issued{Session: sess, Tokens: pair}, nil
}
