package model

// StatusResponse is the minimal envelope for outcomes without a payload.
// Error and Status carry the same value so older clients reading "error"
// keep working.
type StatusResponse struct {
	Status Status `json:"status"`
	Error  Status `json:"error,omitempty"`
	Until  string `json:"until,omitempty"`
}

// LoginResponse is returned for a successful license login. It carries no
// license material and no internal identifiers.
type LoginResponse struct {
	Status Status `json:"status"`
	Prefix string `json:"prefix"`
}

// ReportDTO is the browser-facing shape of a visible report.
type ReportDTO struct {
	Code      string `json:"code"`
	Name      string `json:"name"`
	IsDefault bool   `json:"isDefault"`
	URL       string `json:"url"`
}

// ClientDTO is the browser-facing shape of a tenant.
type ClientDTO struct {
	Prefix string `json:"prefix"`
	Name   string `json:"name"`
}

// LicenseDTO is the browser-facing license summary. ExpiryDate is the UTC
// calendar date, ExpiresAt the exact RFC 3339 instant.
type LicenseDTO struct {
	Status     string `json:"status"`
	ExpiryDate string `json:"expiryDate,omitempty"`
	ExpiresAt  string `json:"expiresAt,omitempty"`
}

// ReportOptionsResponse is returned by report options and client-info.
type ReportOptionsResponse struct {
	Status            Status      `json:"status"`
	Client            ClientDTO   `json:"client"`
	License           LicenseDTO  `json:"license"`
	DefaultReportCode *string     `json:"defaultReportCode"`
	Reports           []ReportDTO `json:"reports"`
}

// ReportURLResponse is returned by home and by-code resolution.
type ReportURLResponse struct {
	Status     Status `json:"status"`
	URL        string `json:"url"`
	ReportCode string `json:"reportCode"`
}

// TokenPair is the internal service token pair exchanged for cookies.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// SessionResponse is returned by the signed internal login and refresh
// endpoints. TTLs are in seconds.
type SessionResponse struct {
	Status     Status    `json:"status"`
	Prefix     string    `json:"prefix,omitempty"`
	Claims     Session   `json:"claims"`
	Tokens     TokenPair `json:"tokens"`
	AccessTTL  int64     `json:"accessTtl"`
	RefreshTTL int64     `json:"refreshTtl"`
}

// MeResponse describes the current browser session.
type MeResponse struct {
	Status Status `json:"status"`
	User   MeUser `json:"user"`
}

// MeUser is the identity portion of MeResponse.
type MeUser struct {
	ID       string `json:"id"`
	TenantID string `json:"tenantId"`
}
