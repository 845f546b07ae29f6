package model

import "time"

// ScopeDashView is the only scope minted for license sessions.
const ScopeDashView = "dash:view"

// Session is the claim set minted for a successful license login. It lives
// only inside signed tokens; nothing is persisted server-side.
type Session struct {
	Subject   string    `json:"sub"`      // license id
	TenantID  string    `json:"tenantId"` // client prefix
	Scope     []string  `json:"scope"`
	ExpiresAt time.Time `json:"-"`
}
