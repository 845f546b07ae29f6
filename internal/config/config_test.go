package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func load(t *testing.T, path string) *Config {
	t.Helper()
	v := viper.New()
	if err := Setup(v, path); err != nil {
		t.Fatalf("Setup: %v", err)
	}
	cfg, err := Load(v)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Database.Driver != "mysql" || cfg.Database.MaxOpenConns != 10 || cfg.Database.MaxIdleConns != 5 {
		t.Errorf("database defaults = %+v", cfg.Database)
	}
	if cfg.Database.ConnMaxLifetime != 5*time.Minute || cfg.Database.QueryTimeout != 15*time.Second {
		t.Errorf("database timeouts = %s %s", cfg.Database.ConnMaxLifetime, cfg.Database.QueryTimeout)
	}
	if cfg.Auth.JWT.AccessTTL != 15*time.Minute || cfg.Auth.JWT.RefreshTTL != 30*24*time.Hour {
		t.Errorf("jwt ttls = %s %s", cfg.Auth.JWT.AccessTTL, cfg.Auth.JWT.RefreshTTL)
	}
	if cfg.Auth.Lockout.Threshold != 5 || cfg.Auth.Lockout.Window != 15*time.Minute {
		t.Errorf("lockout = %+v", cfg.Auth.Lockout)
	}
	if !cfg.Edge.Cookie.Secure || cfg.Edge.Cookie.SameSite != "strict" || !cfg.Edge.RequireSession {
		t.Errorf("edge cookie = %+v", cfg.Edge.Cookie)
	}
	if cfg.Edge.RateLimit.Requests != 20 || cfg.Edge.RateLimit.Window != time.Minute {
		t.Errorf("rate limit = %+v", cfg.Edge.RateLimit)
	}
	if !cfg.Database.TLS.RejectUnauthorized {
		t.Error("tls should reject unauthorized by default")
	}
}

func TestLegacyEnvNames(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MYSQL_HOST", "db.internal")
	t.Setenv("MYSQL_PORT", "3307")
	t.Setenv("MYSQL_DB", "kaizen")
	t.Setenv("MYSQL_SSL_REJECT_UNAUTHORIZED", "false")
	t.Setenv("AUTH_PEPPER", "pep")
	t.Setenv("JWT_REFRESH_TTL", "7d")
	t.Setenv("JWT_ACCESS_TTL", "600")
	t.Setenv("EDGE_HMAC_SECRET", "shared-hmac-secret-value")
	t.Setenv("CORS_ORIGIN", "https://a.example, https://b.example")
	t.Setenv("JWT_SECRET", "jwt-secret-0123456789")

	cfg := load(t, "")
	if cfg.Database.Host != "db.internal" || cfg.Database.Port != 3307 || cfg.Database.Name != "kaizen" {
		t.Errorf("database = %+v", cfg.Database)
	}
	if cfg.Database.TLS.RejectUnauthorized {
		t.Error("MYSQL_SSL_REJECT_UNAUTHORIZED=false not applied")
	}
	if cfg.Auth.Pepper != "pep" {
		t.Errorf("pepper = %q", cfg.Auth.Pepper)
	}
	if cfg.Auth.JWT.RefreshTTL != 7*24*time.Hour || cfg.Auth.JWT.AccessTTL != 10*time.Minute {
		t.Errorf("ttls = %s %s", cfg.Auth.JWT.AccessTTL, cfg.Auth.JWT.RefreshTTL)
	}
	if cfg.Auth.HMACSecret != "shared-hmac-secret-value" || cfg.Edge.HMACSecret != "shared-hmac-secret-value" {
		t.Error("EDGE_HMAC_SECRET should feed both roles")
	}
	if got := strings.Join(cfg.Edge.CORSOrigins, "|"); got != "https://a.example|https://b.example" {
		t.Errorf("cors origins = %q", got)
	}
	if cfg.Edge.JWTVerifySecret != "jwt-secret-0123456789" {
		t.Errorf("verify secret should fall back to the signing secret, got %q", cfg.Edge.JWTVerifySecret)
	}
}

func TestPrefixedEnvWins(t *testing.T) {
	chdir(t, t.TempDir())
	t.Setenv("MYSQL_HOST", "legacy")
	t.Setenv("KAIZEN_DATABASE_HOST", "prefixed")
	t.Setenv("KAIZEN_EDGE_RATE_LIMIT_REQUESTS", "50")

	cfg := load(t, "")
	if cfg.Database.Host != "prefixed" {
		t.Errorf("host = %q, want prefixed", cfg.Database.Host)
	}
	if cfg.Edge.RateLimit.Requests != 50 {
		t.Errorf("requests = %d", cfg.Edge.RateLimit.Requests)
	}
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "kaizen.yaml")
	body := `
log:
  level: debug
database:
  driver: sqlite
  dsn: file:kaizen.db
auth:
  jwt:
    refresh_ttl: 14d
  lockout:
    threshold: 3
edge:
  cookie:
    same_site: lax
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg := load(t, path)
	if cfg.Log.Level != "debug" || cfg.Database.Driver != "sqlite" || cfg.Database.DSN != "file:kaizen.db" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Auth.JWT.RefreshTTL != 14*24*time.Hour || cfg.Auth.Lockout.Threshold != 3 {
		t.Errorf("auth = %+v", cfg.Auth)
	}
	if cfg.Edge.Cookie.SameSite != "lax" {
		t.Errorf("same_site = %q", cfg.Edge.Cookie.SameSite)
	}
}

func TestExplicitMissingFile(t *testing.T) {
	v := viper.New()
	if err := Setup(v, filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("expected error for a missing explicit config file")
	}
}

func TestParseDuration(t *testing.T) {
	tests := map[string]time.Duration{
		"15m":  15 * time.Minute,
		"30d":  30 * 24 * time.Hour,
		"900":  900 * time.Second,
		"1h5m": time.Hour + 5*time.Minute,
		"":     0,
	}
	for in, want := range tests {
		got, err := ParseDuration(in)
		if err != nil || got != want {
			t.Errorf("ParseDuration(%q) = %s, %v; want %s", in, got, err, want)
		}
	}
	for _, bad := range []string{"xd", "soon", "1.5d"} {
		if _, err := ParseDuration(bad); err == nil {
			t.Errorf("ParseDuration(%q) should fail", bad)
		}
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := Default()
		cfg.Database.Host, cfg.Database.User, cfg.Database.Name = "h", "u", "d"
		cfg.Auth.Pepper = "pepper"
		cfg.Auth.JWT.Secret = "0123456789abcdef"
		cfg.Auth.HMACSecret = "0123456789abcdef"
		cfg.Edge.HMACSecret = "0123456789abcdef"
		cfg.Edge.JWTVerifySecret = "0123456789abcdef"
		return cfg
	}

	cfg := valid()
	for name, fn := range map[string]func() error{
		"common": cfg.Validate, "database": cfg.ValidateDatabase,
		"auth": cfg.ValidateAuth, "edge": cfg.ValidateEdge,
	} {
		if err := fn(); err != nil {
			t.Errorf("%s: %v", name, err)
		}
	}

	tests := []struct {
		name   string
		mutate func(*Config)
		check  func(*Config) error
	}{
		{"bad level", func(c *Config) { c.Log.Level = "loud" }, (*Config).Validate},
		{"sqlite without dsn", func(c *Config) { c.Database.Driver = "sqlite" }, (*Config).ValidateDatabase},
		{"mysql without host", func(c *Config) { c.Database.Host = "" }, (*Config).ValidateDatabase},
		{"missing pepper", func(c *Config) { c.Auth.Pepper = "" }, (*Config).ValidateAuth},
		{"short jwt secret", func(c *Config) { c.Auth.JWT.Secret = "short" }, (*Config).ValidateAuth},
		{"refresh shorter than access", func(c *Config) { c.Auth.JWT.RefreshTTL = time.Minute }, (*Config).ValidateAuth},
		{"host prefix with domain", func(c *Config) { c.Edge.Cookie.HostPrefix = true; c.Edge.Cookie.Domain = "x.com" }, (*Config).ValidateEdge},
		{"wildcard cors", func(c *Config) { c.Edge.CORSOrigins = []string{"*"} }, (*Config).ValidateEdge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			if err := tt.check(c); !errors.Is(err, ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestRedactedAndWriteDefault(t *testing.T) {
	cfg := Default()
	cfg.Auth.Pepper = "secret-pepper"
	cfg.Database.Password = "pw"

	data, err := cfg.Redacted().YAML()
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "secret-pepper") || strings.Contains(out, "pw\n") {
		t.Errorf("secrets leaked:\n%s", out)
	}
	if !strings.Contains(out, redacted) {
		t.Error("expected redaction marker")
	}
	if cfg.Auth.Pepper != "secret-pepper" {
		t.Error("Redacted must not modify the receiver")
	}

	path := filepath.Join(t.TempDir(), "kaizen.yaml")
	if err := WriteDefault(path, false); err != nil {
		t.Fatalf("WriteDefault: %v", err)
	}
	if err := WriteDefault(path, false); err == nil {
		t.Error("second write without force should fail")
	}
	if err := WriteDefault(path, true); err != nil {
		t.Errorf("forced write: %v", err)
	}
	reloaded := load(t, path)
	if reloaded.Auth.JWT.RefreshTTL != 30*24*time.Hour {
		t.Errorf("reloaded refresh ttl = %s", reloaded.Auth.JWT.RefreshTTL)
	}
}
