package model

import "time"

// License statuses as persisted in the licenses table.
const (
	LicenseActive  = "active"
	LicenseExpired = "expired"
	LicenseRevoked = "revoked"
)

// License is one issued credential. The raw license string is never stored;
// only the peppered SHA-256 hash of its canonical form is persisted.
type License struct {
	ID              int64      `json:"id" db:"id"`
	ClientPrefix    string     `json:"client_prefix" db:"client_prefix"`
	Hash            string     `json:"-" db:"license_hash"` // peppered SHA-256, never expose
	Status          string     `json:"status" db:"status"`
	ExpiresAt       *time.Time `json:"expires_at,omitempty" db:"expires_at"`
	AllowAllReports bool       `json:"allow_all_reports" db:"allow_all_reports"`
	CreatedAt       time.Time  `json:"created_at" db:"created_at"`
	LastUsedAt      *time.Time `json:"last_used_at,omitempty" db:"last_used_at"`
}

// ExpiredAt reports whether the license is past its expiry at the given
// instant. Expiry is exact: a license whose expires_at equals now is expired.
func (l *License) ExpiredAt(now time.Time) bool {
	if l.ExpiresAt == nil {
		return false
	}
	return !now.Before(*l.ExpiresAt)
}

// Client is a tenant, identified by the prefix embedded in its license strings.
type Client struct {
	Prefix    string    `json:"prefix" db:"prefix"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
