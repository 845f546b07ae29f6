// Package token mints and verifies the HS256 session tokens exchanged
// between the auth service and the edge.
package token

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/kaizenpbi/kaizen/internal/model"
)

// ErrInvalidToken is returned for any token that fails verification:
// bad signature, wrong type, wrong issuer, or expired.
var ErrInvalidToken = errors.New("invalid token")

// Kind distinguishes access tokens from refresh tokens. A token of one kind
// is never accepted where the other is expected.
type Kind string

const (
	Access  Kind = "access"
	Refresh Kind = "refresh"
)

const (
	DefaultIssuer     = "kaizen-auth"
	DefaultAccessTTL  = 15 * time.Minute
	DefaultRefreshTTL = 30 * 24 * time.Hour
)

// Claims is the JWT payload.
type Claims struct {
	TenantID string   `json:"tenantId"`
	Scope    []string `json:"scope"`
	Type     Kind     `json:"typ"`
	jwt.RegisteredClaims
}

// Config configures an Issuer.
type Config struct {
	Secret     string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Issuer signs and verifies session tokens with a shared HMAC secret.
type Issuer struct {
	secret     []byte
	issuer     string
	accessTTL  time.Duration
	refreshTTL time.Duration
	now        func() time.Time
}

// NewIssuer validates cfg and returns an Issuer. Zero TTLs take the defaults.
func NewIssuer(cfg Config) (*Issuer, error) {
	if len(cfg.Secret) < 16 {
		return nil, errors.New("jwt secret must be at least 16 bytes")
	}
	i := &Issuer{
		secret:     []byte(cfg.Secret),
		issuer:     cfg.Issuer,
		accessTTL:  cfg.AccessTTL,
		refreshTTL: cfg.RefreshTTL,
		now:        time.Now,
	}
	if i.issuer == "" {
		i.issuer = DefaultIssuer
	}
	if i.accessTTL <= 0 {
		i.accessTTL = DefaultAccessTTL
	}
	if i.refreshTTL <= 0 {
		i.refreshTTL = DefaultRefreshTTL
	}
	if i.refreshTTL < i.accessTTL {
		return nil, fmt.Errorf("refresh ttl %s is shorter than access ttl %s", i.refreshTTL, i.accessTTL)
	}
	return i, nil
}

// AccessTTL returns the access token lifetime.
func (i *Issuer) AccessTTL() time.Duration { return i.accessTTL }

// RefreshTTL returns the refresh token lifetime.
func (i *Issuer) RefreshTTL() time.Duration { return i.refreshTTL }

// Mint signs an access and a refresh token for the same session. The
// returned session carries the access token's expiry.
func (i *Issuer) Mint(s model.Session) (model.TokenPair, model.Session, error) {
	if len(s.Scope) == 0 {
		s.Scope = []string{model.ScopeDashView}
	}
	now := i.now()

	access, exp, err := i.sign(s, Access, now, i.accessTTL)
	if err != nil {
		return model.TokenPair{}, model.Session{}, err
	}
	refresh, _, err := i.sign(s, Refresh, now, i.refreshTTL)
	if err != nil {
		return model.TokenPair{}, model.Session{}, err
	}
	s.ExpiresAt = exp
	return model.TokenPair{AccessToken: access, RefreshToken: refresh}, s, nil
}

func (i *Issuer) sign(s model.Session, kind Kind, now time.Time, ttl time.Duration) (string, time.Time, error) {
	exp := now.Add(ttl)
	claims := Claims{
		TenantID: s.TenantID,
		Scope:    s.Scope,
		Type:     kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   s.Subject,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign %s token: %w", kind, err)
	}
	return signed, exp, nil
}

// Verify checks raw's signature, issuer, expiry and kind, and returns the
// session it carries.
func (i *Issuer) Verify(raw string, kind Kind) (model.Session, error) {
	if raw == "" {
		return model.Session{}, ErrInvalidToken
	}

	claims := &Claims{}
	tok, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return i.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(i.issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.now),
	)
	if err != nil || !tok.Valid {
		return model.Session{}, ErrInvalidToken
	}
	if claims.Type != kind || claims.TenantID == "" || claims.Subject == "" {
		return model.Session{}, ErrInvalidToken
	}

	return model.Session{
		Subject:   claims.Subject,
		TenantID:  claims.TenantID,
		Scope:     claims.Scope,
		ExpiresAt: claims.ExpiresAt.Time,
	}, nil
}

// LicenseID parses the license id out of a session subject.
func LicenseID(s model.Session) (int64, error) {
	id, err := strconv.ParseInt(s.Subject, 10, 64)
	if err != nil || id <= 0 {
		return 0, ErrInvalidToken
	}
	return id, nil
}
