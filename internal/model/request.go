package model

// LicenseRequest is the browser body for login and report options.
type LicenseRequest struct {
	License string `json:"license"`
}

// LoginMeta carries the browser context the edge observed for an attempt.
type LoginMeta struct {
	ClientIP      string `json:"clientIp"`
	UserAgent     string `json:"userAgent"`
	EdgeRequestID string `json:"edgeRequestId"`
}

// InternalLoginRequest is the signed edge to auth login body.
type InternalLoginRequest struct {
	License string    `json:"license"`
	Meta    LoginMeta `json:"meta"`
}

// RefreshRequest is the signed edge to auth refresh body.
type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}
