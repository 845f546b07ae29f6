package store

import (
	"context"
	"fmt"
	"time"

	"github.com/kaizenpbi/kaizen/internal/model"
)

const licenseColumns = `id, client_prefix, license_hash, status, expires_at,
	allow_all_reports, created_at, last_used_at`

// CreateLicense inserts a license and fills in its ID and CreatedAt. The
// hash must already be computed; the raw license never reaches the store.
func (s *Store) CreateLicense(ctx context.Context, l *model.License) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if l.Status == "" {
		l.Status = model.LicenseActive
	}
	l.CreatedAt = time.Now().UTC()
	if l.ExpiresAt != nil {
		utc := l.ExpiresAt.UTC()
		l.ExpiresAt = &utc
	}

	id, err := s.insert(ctx, s.db,
		`INSERT INTO licenses (client_prefix, license_hash, status, expires_at, allow_all_reports, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		l.ClientPrefix, l.Hash, l.Status, l.ExpiresAt, l.AllowAllReports, l.CreatedAt)
	if err != nil {
		return fmt.Errorf("create license: %w", s.conflict(err))
	}
	l.ID = id
	return nil
}

// FindLicenseByHash returns the most recently issued license with the given
// hash.
func (s *Store) FindLicenseByHash(ctx context.Context, hash string) (*model.License, error) {
	return s.getLicense(ctx,
		"SELECT "+licenseColumns+" FROM licenses WHERE license_hash = ? ORDER BY id DESC LIMIT 1", hash)
}

// GetLicense returns a license by id.
func (s *Store) GetLicense(ctx context.Context, id int64) (*model.License, error) {
	return s.getLicense(ctx, "SELECT "+licenseColumns+" FROM licenses WHERE id = ?", id)
}

// CurrentLicense returns the most recently issued license for a client,
// whatever its status.
func (s *Store) CurrentLicense(ctx context.Context, prefix string) (*model.License, error) {
	return s.getLicense(ctx,
		"SELECT "+licenseColumns+" FROM licenses WHERE client_prefix = ? ORDER BY id DESC LIMIT 1", prefix)
}

func (s *Store) getLicense(ctx context.Context, query string, args ...any) (*model.License, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var l model.License
	if err := s.db.GetContext(ctx, &l, s.q(query), args...); err != nil {
		return nil, notFound(err)
	}
	return &l, nil
}

// ListLicenses returns licenses newest first, optionally filtered by prefix.
func (s *Store) ListLicenses(ctx context.Context, prefix string) ([]model.License, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := "SELECT " + licenseColumns + " FROM licenses"
	var args []any
	if prefix != "" {
		query += " WHERE client_prefix = ?"
		args = append(args, prefix)
	}
	query += " ORDER BY id DESC"

	var licenses []model.License
	if err := s.db.SelectContext(ctx, &licenses, s.q(query), args...); err != nil {
		return nil, err
	}
	return licenses, nil
}

// ExpireLicense flips an active license to expired. It is idempotent and
// safe under concurrency: only the caller that performed the transition
// gets true.
func (s *Store) ExpireLicense(ctx context.Context, id int64) (bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE licenses SET status = ? WHERE id = ? AND status = ?"),
		model.LicenseExpired, id, model.LicenseActive)
	if err != nil {
		return false, fmt.Errorf("expire license %d: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetLicenseStatus overwrites a license's status.
func (s *Store) SetLicenseStatus(ctx context.Context, id int64, status string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	res, err := s.db.ExecContext(ctx,
		s.q("UPDATE licenses SET status = ? WHERE id = ?"), status, id)
	if err != nil {
		return fmt.Errorf("set license %d status: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
