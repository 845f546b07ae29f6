package config

import (
	"slices"
	"strings"
)

var (
	logLevels  = []string{"debug", "info", "warn", "error"}
	logFormats = []string{"text", "json"}
)

// Validate checks settings shared by every role.
func (c *Config) Validate() error {
	if !slices.Contains(logLevels, strings.ToLower(c.Log.Level)) {
		return invalid("log.level %q", c.Log.Level)
	}
	if !slices.Contains(logFormats, strings.ToLower(c.Log.Format)) {
		return invalid("log.format %q", c.Log.Format)
	}
	return nil
}

// ValidateDatabase checks that a store can be opened.
func (c *Config) ValidateDatabase() error {
	d := c.Database
	if d.DSN == "" {
		if d.Driver != "mysql" {
			return invalid("database.dsn is required for driver %q", d.Driver)
		}
		if d.Host == "" || d.User == "" || d.Name == "" {
			return invalid("database.host, database.user and database.name are required when database.dsn is empty")
		}
	}
	if d.MaxOpenConns <= 0 {
		return invalid("database.max_open_conns must be positive")
	}
	if d.QueryTimeout <= 0 {
		return invalid("database.query_timeout must be positive")
	}
	return nil
}

// ValidateAuth checks the auth role's secrets and policy.
func (c *Config) ValidateAuth() error {
	a := c.Auth
	if a.Pepper == "" {
		return invalid("auth.pepper is required")
	}
	if len(a.JWT.Secret) < 16 {
		return invalid("auth.jwt.secret must be at least 16 bytes")
	}
	if len(a.HMACSecret) < 16 {
		return invalid("auth.hmac_secret must be at least 16 bytes")
	}
	if a.JWT.AccessTTL <= 0 || a.JWT.RefreshTTL < a.JWT.AccessTTL {
		return invalid("auth.jwt ttls: access %s, refresh %s", a.JWT.AccessTTL, a.JWT.RefreshTTL)
	}
	if a.Lockout.Threshold <= 0 || a.Lockout.Window <= 0 || a.Lockout.Duration <= 0 {
		return invalid("auth.lockout threshold, window and duration must be positive")
	}
	return nil
}

// ValidateEdge checks the edge role's secrets and cookie policy.
func (c *Config) ValidateEdge() error {
	e := c.Edge
	if e.AuthURL == "" {
		return invalid("edge.auth_url is required")
	}
	if len(e.HMACSecret) < 16 {
		return invalid("edge.hmac_secret must be at least 16 bytes")
	}
	if len(e.JWTVerifySecret) < 16 {
		return invalid("edge.jwt_verify_secret must be at least 16 bytes")
	}
	if e.Cookie.HostPrefix && (!e.Cookie.Secure || e.Cookie.Domain != "") {
		return invalid("edge.cookie.host_prefix needs secure cookies without a domain")
	}
	if e.RateLimit.Requests <= 0 || e.RateLimit.Window <= 0 {
		return invalid("edge.rate_limit requests and window must be positive")
	}
	if slices.Contains(e.CORSOrigins, "*") {
		return invalid("edge.cors_origins cannot contain * with credentialed requests")
	}
	return nil
}
