package model

import "net/http"

// Status is a typed business outcome. Every JSON response carries one under
// the "status" key; the browser maps them to localized messages.
type Status string

const (
	StatusOK Status = "ok"

	// Input errors.
	StatusMissingLicense Status = "missing-license"
	StatusInvalidLicense Status = "invalid-license"
	StatusMissingPrefix  Status = "missing-prefix"
	StatusInvalidBody    Status = "invalid-body"

	// Authorization outcomes.
	StatusMismatch  Status = "mismatch_or_not_found"
	StatusExpired   Status = "expired"
	StatusRevoked   Status = "revoked"
	StatusNotActive Status = "license-not-active"

	StatusRateLimited Status = "rate-limited"

	// Business data not found.
	StatusNotFound       Status = "not_found"
	StatusNoDefault      Status = "no_default"
	StatusReportNotFound Status = "report_not_found"

	// Session and internal call outcomes.
	StatusNoSession        Status = "no-session"
	StatusRefreshFailed    Status = "refresh-failed"
	StatusInvalidSignature Status = "invalid-signature"
	StatusForbidden        Status = "forbidden"
	StatusBadAuthResponse  Status = "bad-auth-response"

	StatusServerError Status = "server-error"
)

// IsAuthFailure reports whether s is an authorization outcome that is
// recorded in the audit trail and counted toward lockout.
func (s Status) IsAuthFailure() bool {
	switch s {
	case StatusMismatch, StatusExpired, StatusRevoked, StatusNotActive:
		return true
	}
	return false
}

// StatusForLicense maps a stored, non-active license status to the outcome
// returned to callers. Unknown stored values collapse to license-not-active
// so arbitrary column contents never reach the browser.
func StatusForLicense(stored string) Status {
	switch stored {
	case LicenseActive:
		return StatusOK
	case LicenseExpired:
		return StatusExpired
	case LicenseRevoked:
		return StatusRevoked
	default:
		return StatusNotActive
	}
}

// HTTPStatus maps s to the response code it is served with.
func (s Status) HTTPStatus() int {
	switch s {
	case StatusOK:
		return http.StatusOK
	case StatusMissingLicense, StatusInvalidLicense, StatusMissingPrefix, StatusInvalidBody, StatusReportNotFound:
		return http.StatusBadRequest
	case StatusMismatch, StatusExpired, StatusRevoked, StatusNotActive,
		StatusNoSession, StatusRefreshFailed, StatusInvalidSignature:
		return http.StatusUnauthorized
	case StatusForbidden:
		return http.StatusForbidden
	case StatusNotFound, StatusNoDefault:
		return http.StatusNotFound
	case StatusRateLimited:
		return http.StatusTooManyRequests
	case StatusBadAuthResponse:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}
