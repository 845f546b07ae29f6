package model

import "time"

// Report is a dashboard registered for a client prefix. Visibility to a
// particular license is decided either by the license's allow-all flag or by
// an explicit grant.
type Report struct {
	ID           int64     `json:"id" db:"id"`
	ClientPrefix string    `json:"client_prefix" db:"client_prefix"`
	Code         string    `json:"code" db:"code"`
	Name         string    `json:"name" db:"name"`
	EmbedURL     string    `json:"embed_url" db:"embed_url"`
	IsDefault    bool      `json:"is_default" db:"is_default"`
	IsActive     bool      `json:"is_active" db:"is_active"`
	CreatedAt    time.Time `json:"created_at" db:"created_at"`
}

// ReportList is the resolved set of reports visible to one license.
// DefaultCode is empty when no visible report is flagged as default.
type ReportList struct {
	Reports     []Report
	DefaultCode string
}
