package store

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/kaizenpbi/kaizen/internal/model"
)

const reportColumns = `r.id, r.client_prefix, r.code, r.name, r.embed_url,
	r.is_default, r.is_active, r.created_at`

const reportOrder = " ORDER BY r.is_default DESC, r.name, r.code"

// CreateReport registers a report for a client. An active default report
// takes the default flag from the client's other active reports in the same
// transaction, so at most one active report is ever the default.
func (s *Store) CreateReport(ctx context.Context, r *model.Report) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	r.CreatedAt = time.Now().UTC()
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if r.IsDefault && r.IsActive {
			if err := s.clearDefault(ctx, tx, r.ClientPrefix, r.Code); err != nil {
				return err
			}
		}
		id, err := s.insert(ctx, tx,
			`INSERT INTO reports (client_prefix, code, name, embed_url, is_default, is_active, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)`,
			r.ClientPrefix, r.Code, r.Name, r.EmbedURL, r.IsDefault, r.IsActive, r.CreatedAt)
		if err != nil {
			return s.conflict(err)
		}
		r.ID = id
		return nil
	})
}

// clearDefault drops the default flag from every active report of prefix
// other than code.
func (s *Store) clearDefault(ctx context.Context, tx *sqlx.Tx, prefix, code string) error {
	_, err := tx.ExecContext(ctx,
		s.q("UPDATE reports SET is_default = ? WHERE client_prefix = ? AND code <> ? AND is_active = ? AND is_default = ?"),
		false, prefix, code, true, true)
	if err != nil {
		return fmt.Errorf("clear default report: %w", err)
	}
	return nil
}

// GetReport returns a client's report by code, active or not.
func (s *Store) GetReport(ctx context.Context, prefix, code string) (*model.Report, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var r model.Report
	err := s.db.GetContext(ctx, &r,
		s.q("SELECT "+reportColumns+" FROM reports r WHERE r.client_prefix = ? AND r.code = ?"),
		prefix, code)
	if err != nil {
		return nil, notFound(err)
	}
	return &r, nil
}

// ListActiveReports returns every active report of a client, default
// first, then by name and code.
func (s *Store) ListActiveReports(ctx context.Context, prefix string) ([]model.Report, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var reports []model.Report
	err := s.db.SelectContext(ctx, &reports,
		s.q("SELECT "+reportColumns+" FROM reports r WHERE r.client_prefix = ? AND r.is_active = ?"+reportOrder),
		prefix, true)
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// ListGrantedReports returns the active reports explicitly granted to a
// license. Grants pointing at another client's reports are ignored.
func (s *Store) ListGrantedReports(ctx context.Context, licenseID int64, prefix string) ([]model.Report, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var reports []model.Report
	err := s.db.SelectContext(ctx, &reports,
		s.q(`SELECT `+reportColumns+` FROM reports r
		JOIN report_grants g ON g.report_id = r.id
		WHERE g.license_id = ? AND r.client_prefix = ? AND r.is_active = ?`+reportOrder),
		licenseID, prefix, true)
	if err != nil {
		return nil, err
	}
	return reports, nil
}

// GrantReport makes a report visible to a license. Granting twice is a no-op.
func (s *Store) GrantReport(ctx context.Context, licenseID, reportID int64) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx,
		s.q("INSERT INTO report_grants (license_id, report_id, created_at) VALUES (?, ?, ?)"),
		licenseID, reportID, time.Now().UTC())
	if err != nil {
		if s.dialect.isUniqueViolation(err) {
			return nil
		}
		return fmt.Errorf("grant report %d to license %d: %w", reportID, licenseID, err)
	}
	return nil
}

// SetReportActive toggles whether a report is offered to anyone.
// Reactivating a default report makes it the client's only active default.
func (s *Store) SetReportActive(ctx context.Context, prefix, code string, active bool) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var isDefault bool
		err := tx.GetContext(ctx, &isDefault,
			s.q("SELECT is_default FROM reports WHERE client_prefix = ? AND code = ?"+s.dialect.forUpdate),
			prefix, code)
		if err != nil {
			return notFound(err)
		}
		if active && isDefault {
			if err := s.clearDefault(ctx, tx, prefix, code); err != nil {
				return err
			}
		}
		if _, err := tx.ExecContext(ctx,
			s.q("UPDATE reports SET is_active = ? WHERE client_prefix = ? AND code = ?"),
			active, prefix, code); err != nil {
			return fmt.Errorf("set report active: %w", err)
		}
		return nil
	})
}
