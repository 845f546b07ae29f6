package model

import "time"

// Login event outcomes.
const (
	OutcomeSuccess     = "success"
	OutcomeFailed      = "failed"
	OutcomeRateLimited = "rate-limited"
)

// Login event sources, recording which endpoint presented the license.
const (
	SourceLogin   = "login"
	SourceOptions = "options"
)

// LoginEvent is one append-only audit row per authentication attempt.
type LoginEvent struct {
	ID            string    `json:"id" db:"id"` // ULID
	ClientPrefix  string    `json:"client_prefix" db:"client_prefix"`
	LicenseID     *int64    `json:"license_id,omitempty" db:"license_id"`
	Outcome       string    `json:"outcome" db:"outcome"`
	Reason        string    `json:"reason" db:"reason"`
	Source        string    `json:"source" db:"source"`
	IPHash        string    `json:"ip_hash" db:"ip_hash"`
	IPMasked      string    `json:"ip_masked" db:"ip_masked"`
	UserAgent     string    `json:"user_agent" db:"user_agent"`
	EdgeRequestID string    `json:"edge_request_id,omitempty" db:"edge_request_id"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}

// Failed reports whether the event counts toward the lockout counter.
func (e *LoginEvent) Failed() bool {
	return e.Outcome == OutcomeFailed
}

// LockoutPolicy configures brute-force accounting per (prefix, ip) pair.
type LockoutPolicy struct {
	Threshold int           // failures within Window that trigger a lock
	Window    time.Duration // trailing window failures are counted over
	Duration  time.Duration // how long a triggered lock lasts
}

// LockoutState is the lockout accounting as observed inside the audit
// transaction.
type LockoutState struct {
	Failures    int       // failures inside the trailing window
	InFlight    int       // reserved attempts still awaiting an outcome
	LockedUntil time.Time // zero when not locked
}

// Locked reports whether the state blocks attempts at the given instant.
func (s LockoutState) Locked(now time.Time) bool {
	return !s.LockedUntil.IsZero() && now.Before(s.LockedUntil)
}
