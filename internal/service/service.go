// Package service holds the license decision logic: resolving a raw license
// to an outcome, the audited login pipeline with lockout accounting, and
// report visibility. Expected business outcomes are returned as
// model.Status values; a non-nil error always means an infrastructure
// failure the caller must surface as server-error.
package service

import (
	"context"
	"time"

	"github.com/kaizenpbi/kaizen/internal/model"
	"github.com/kaizenpbi/kaizen/internal/store"
)

// LicenseStore is the subset of the store the resolver needs.
type LicenseStore interface {
	FindLicenseByHash(ctx context.Context, hash string) (*model.License, error)
	GetLicense(ctx context.Context, id int64) (*model.License, error)
	CurrentLicense(ctx context.Context, prefix string) (*model.License, error)
	ExpireLicense(ctx context.Context, id int64) (bool, error)
}

// AuditStore records login attempts and keeps the lockout accounting.
// ReserveAttempt must be atomic with the failure count it checks.
type AuditStore interface {
	ReserveAttempt(ctx context.Context, prefix, ipHash string, now time.Time, policy model.LockoutPolicy) (model.LockoutState, bool, error)
	ReleaseAttempt(ctx context.Context, prefix, ipHash string) error
	RecordLogin(ctx context.Context, ev *model.LoginEvent, policy model.LockoutPolicy) (model.LockoutState, error)
}

// ReportStore reads clients and report catalogs.
type ReportStore interface {
	GetClient(ctx context.Context, prefix string) (*model.Client, error)
	ListActiveReports(ctx context.Context, prefix string) ([]model.Report, error)
	ListGrantedReports(ctx context.Context, licenseID int64, prefix string) ([]model.Report, error)
}

var (
	_ LicenseStore = (*store.Store)(nil)
	_ AuditStore   = (*store.Store)(nil)
	_ ReportStore  = (*store.Store)(nil)
)

// DefaultLockoutPolicy locks a (prefix, ip) pair for 15 minutes after 5
// failures within 15 minutes.
var DefaultLockoutPolicy = model.LockoutPolicy{
	Threshold: 5,
	Window:    15 * time.Minute,
	Duration:  15 * time.Minute,
}
