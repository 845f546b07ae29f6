package store

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"

	"github.com/jmoiron/sqlx"
	"github.com/oklog/ulid/v2"

	"github.com/kaizenpbi/kaizen/internal/model"
)

// reservationTTL bounds how long an in-flight reservation holds a slot.
// Reservations older than this belong to attempts that died without
// recording an outcome and are dropped on the next reservation.
const reservationTTL = time.Minute

// Lockout times are stored as unix milliseconds.
type lockoutRow struct {
	Pending     int   `db:"pending"`
	PendingAt   int64 `db:"pending_at"`
	LockedUntil int64 `db:"locked_until"`
}

func (r lockoutRow) lockedAt(now time.Time) bool {
	return r.LockedUntil > now.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms <= 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}

// LockedUntil returns when the (prefix, ip) pair stops being locked out. The
// zero time means no lock is set; callers compare against now.
func (s *Store) LockedUntil(ctx context.Context, prefix, ipHash string) (time.Time, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	var ms int64
	err := s.db.GetContext(ctx, &ms,
		s.q("SELECT locked_until FROM login_lockouts WHERE client_prefix = ? AND ip_hash = ?"),
		prefix, ipHash)
	if err != nil {
		if err = notFound(err); errors.Is(err, ErrNotFound) {
			return time.Time{}, nil
		}
		return time.Time{}, err
	}
	return fromMillis(ms), nil
}

// ReserveAttempt claims a slot for one login attempt from the (prefix, ip)
// pair before its license is resolved. The slot is refused while the pair is
// locked, or when the failures in the trailing window plus the attempts
// already in flight would reach policy.Threshold, so concurrent attempts can
// never outrun the lock. A granted slot is given back by RecordLogin or
// ReleaseAttempt.
func (s *Store) ReserveAttempt(ctx context.Context, prefix, ipHash string, now time.Time, policy model.LockoutPolicy) (model.LockoutState, bool, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	now = now.UTC()
	if err := s.ensureLockout(ctx, prefix, ipHash, now); err != nil {
		return model.LockoutState{}, false, err
	}
	var (
		state model.LockoutState
		ok    bool
	)
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		row, err := s.lockRow(ctx, tx, prefix, ipHash)
		if err != nil {
			return err
		}
		if row.lockedAt(now) {
			state.LockedUntil = fromMillis(row.LockedUntil)
			return nil
		}
		if row.Pending > 0 && now.UnixMilli()-row.PendingAt > reservationTTL.Milliseconds() {
			row.Pending = 0
		}
		failures, err := s.recentFailures(ctx, tx, prefix, ipHash, now, policy.Window)
		if err != nil {
			return err
		}
		state.Failures = failures
		state.InFlight = row.Pending
		if policy.Threshold > 0 && failures+row.Pending >= policy.Threshold {
			return nil
		}

		row.Pending++
		if _, err := tx.ExecContext(ctx,
			s.q("UPDATE login_lockouts SET pending = ?, pending_at = ?, updated_at = ? WHERE client_prefix = ? AND ip_hash = ?"),
			row.Pending, now.UnixMilli(), now, prefix, ipHash); err != nil {
			return fmt.Errorf("update reservation: %w", err)
		}
		state.InFlight = row.Pending
		ok = true
		return nil
	})
	if err != nil {
		return model.LockoutState{}, false, fmt.Errorf("reserve attempt: %w", err)
	}
	return state, ok, nil
}

// ReleaseAttempt gives back a slot from ReserveAttempt for an attempt that
// ends without RecordLogin.
func (s *Store) ReleaseAttempt(ctx context.Context, prefix, ipHash string) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	_, err := s.db.ExecContext(ctx, s.q(releaseQuery), prefix, ipHash)
	if err != nil {
		return fmt.Errorf("release attempt: %w", err)
	}
	return nil
}

const releaseQuery = `UPDATE login_lockouts
	SET pending = CASE WHEN pending > 0 THEN pending - 1 ELSE 0 END
	WHERE client_prefix = ? AND ip_hash = ?`

// RecordLogin appends ev to the audit log and updates the lockout state in a
// single transaction, giving back the slot taken by ReserveAttempt. A failure
// is counted over the trailing policy.Window for ev's (prefix, ip) pair,
// locking the pair once policy.Threshold failures fall inside it; a success
// clears the failures and touches the license's last_used_at. Rate limited
// attempts are logged without touching the lockout state.
//
// The returned state is the one observed after this attempt.
func (s *Store) RecordLogin(ctx context.Context, ev *model.LoginEvent, policy model.LockoutPolicy) (model.LockoutState, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	if ev.ID == "" {
		ev.ID = ulid.Make().String()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now()
	}
	ev.CreatedAt = ev.CreatedAt.UTC()
	now := ev.CreatedAt
	if ev.Failed() {
		if err := s.ensureLockout(ctx, ev.ClientPrefix, ev.IPHash, now); err != nil {
			return model.LockoutState{}, fmt.Errorf("record login: %w", err)
		}
	}

	var state model.LockoutState
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := s.insertEvent(ctx, tx, ev); err != nil {
			return err
		}

		switch ev.Outcome {
		case model.OutcomeFailed:
			st, err := s.countFailure(ctx, tx, ev.ClientPrefix, ev.IPHash, now, policy)
			if err != nil {
				return err
			}
			state = st
		case model.OutcomeSuccess:
			if err := s.clearFailures(ctx, tx, ev.ClientPrefix, ev.IPHash, now); err != nil {
				return err
			}
			if ev.LicenseID != nil {
				if _, err := tx.ExecContext(ctx,
					s.q("UPDATE licenses SET last_used_at = ? WHERE id = ?"),
					now, *ev.LicenseID); err != nil {
					return fmt.Errorf("touch license: %w", err)
				}
			}
		}
		return nil
	})
	if err != nil {
		return model.LockoutState{}, fmt.Errorf("record login: %w", err)
	}
	return state, nil
}

func (s *Store) insertEvent(ctx context.Context, tx *sqlx.Tx, ev *model.LoginEvent) error {
	_, err := tx.ExecContext(ctx, s.q(`INSERT INTO login_events
		(id, client_prefix, license_id, outcome, reason, source, ip_hash, ip_masked,
		 user_agent, edge_request_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`),
		ev.ID, ev.ClientPrefix, ev.LicenseID, ev.Outcome, ev.Reason, ev.Source,
		ev.IPHash, ev.IPMasked, truncate(ev.UserAgent, 255), truncate(ev.EdgeRequestID, 64), ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert login event: %w", err)
	}
	return nil
}

// ensureLockout creates the pair's lockout row outside any transaction, so
// the transactions that follow only ever lock an existing row.
func (s *Store) ensureLockout(ctx context.Context, prefix, ipHash string, now time.Time) error {
	if _, err := s.db.ExecContext(ctx, s.q(s.dialect.lockoutEnsure), prefix, ipHash, now); err != nil {
		return fmt.Errorf("ensure lockout: %w", err)
	}
	return nil
}

// lockRow reads the pair's lockout row under a row lock, so every
// reservation and outcome for the pair serializes on it.
func (s *Store) lockRow(ctx context.Context, tx *sqlx.Tx, prefix, ipHash string) (lockoutRow, error) {
	var row lockoutRow
	if err := tx.GetContext(ctx, &row,
		s.q("SELECT pending, pending_at, locked_until FROM login_lockouts WHERE client_prefix = ? AND ip_hash = ?"+s.dialect.forUpdate),
		prefix, ipHash); err != nil {
		return lockoutRow{}, fmt.Errorf("read lockout: %w", err)
	}
	return row, nil
}

// recentFailures prunes failures that have left the trailing window ending
// at now and counts the rest.
func (s *Store) recentFailures(ctx context.Context, tx *sqlx.Tx, prefix, ipHash string, now time.Time, window time.Duration) (int, error) {
	cutoff := now.Add(-window).UnixMilli()
	if _, err := tx.ExecContext(ctx,
		s.q("DELETE FROM login_failures WHERE client_prefix = ? AND ip_hash = ? AND failed_at <= ?"),
		prefix, ipHash, cutoff); err != nil {
		return 0, fmt.Errorf("prune failures: %w", err)
	}
	var n int
	if err := tx.GetContext(ctx, &n,
		s.q("SELECT COUNT(*) FROM login_failures WHERE client_prefix = ? AND ip_hash = ?"),
		prefix, ipHash); err != nil {
		return 0, fmt.Errorf("count failures: %w", err)
	}
	return n, nil
}

// countFailure records one failure and sets the lock once the trailing
// window holds policy.Threshold of them. A triggered lock consumes those
// failures, so counting starts over when it expires.
func (s *Store) countFailure(ctx context.Context, tx *sqlx.Tx, prefix, ipHash string, now time.Time, policy model.LockoutPolicy) (model.LockoutState, error) {
	row, err := s.lockRow(ctx, tx, prefix, ipHash)
	if err != nil {
		return model.LockoutState{}, err
	}
	if _, err := tx.ExecContext(ctx,
		s.q("INSERT INTO login_failures (client_prefix, ip_hash, failed_at) VALUES (?, ?, ?)"),
		prefix, ipHash, now.UnixMilli()); err != nil {
		return model.LockoutState{}, fmt.Errorf("insert failure: %w", err)
	}
	failures, err := s.recentFailures(ctx, tx, prefix, ipHash, now, policy.Window)
	if err != nil {
		return model.LockoutState{}, err
	}

	if row.Pending > 0 {
		row.Pending--
	}
	if !row.lockedAt(now) {
		row.LockedUntil = 0
	}
	if policy.Threshold > 0 && failures >= policy.Threshold {
		row.LockedUntil = now.Add(policy.Duration).UnixMilli()
		if _, err := tx.ExecContext(ctx,
			s.q("DELETE FROM login_failures WHERE client_prefix = ? AND ip_hash = ?"),
			prefix, ipHash); err != nil {
			return model.LockoutState{}, fmt.Errorf("consume failures: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		s.q("UPDATE login_lockouts SET pending = ?, locked_until = ?, updated_at = ? WHERE client_prefix = ? AND ip_hash = ?"),
		row.Pending, row.LockedUntil, now, prefix, ipHash); err != nil {
		return model.LockoutState{}, fmt.Errorf("set lockout: %w", err)
	}
	return model.LockoutState{
		Failures:    failures,
		InFlight:    row.Pending,
		LockedUntil: fromMillis(row.LockedUntil),
	}, nil
}

// clearFailures resets the pair after a success: its failures are dropped,
// any lock is lifted and its reservation is given back.
func (s *Store) clearFailures(ctx context.Context, tx *sqlx.Tx, prefix, ipHash string, now time.Time) error {
	if _, err := tx.ExecContext(ctx,
		s.q("DELETE FROM login_failures WHERE client_prefix = ? AND ip_hash = ?"),
		prefix, ipHash); err != nil {
		return fmt.Errorf("reset failures: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		s.q(`UPDATE login_lockouts
			SET pending = CASE WHEN pending > 0 THEN pending - 1 ELSE 0 END, locked_until = 0, updated_at = ?
			WHERE client_prefix = ? AND ip_hash = ?`),
		now, prefix, ipHash); err != nil {
		return fmt.Errorf("reset lockout: %w", err)
	}
	return nil
}

// LoginEventFilter narrows ListLoginEvents.
type LoginEventFilter struct {
	Prefix  string
	Outcome string
	Since   time.Time
	Limit   int
}

// ListLoginEvents returns audit rows newest first.
func (s *Store) ListLoginEvents(ctx context.Context, f LoginEventFilter) ([]model.LoginEvent, error) {
	ctx, cancel := s.bound(ctx)
	defer cancel()

	query := `SELECT id, client_prefix, license_id, outcome, reason, source, ip_hash,
		ip_masked, user_agent, edge_request_id, created_at FROM login_events WHERE 1 = 1`
	var args []any
	if f.Prefix != "" {
		query += " AND client_prefix = ?"
		args = append(args, f.Prefix)
	}
	if f.Outcome != "" {
		query += " AND outcome = ?"
		args = append(args, f.Outcome)
	}
	if !f.Since.IsZero() {
		query += " AND created_at >= ?"
		args = append(args, f.Since.UTC())
	}
	limit := f.Limit
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	// ULIDs sort by creation time, which also breaks created_at ties.
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT %d", limit)

	var events []model.LoginEvent
	if err := s.db.SelectContext(ctx, &events, s.q(query), args...); err != nil {
		return nil, err
	}
	return events, nil
}

// truncate caps s at n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
