// Package store is the credential store: licenses, clients, report
// catalogs and grants, and the audit/lockout tables. All access goes through
// a bounded sqlx pool owned by the caller; every call runs under the
// configured query timeout.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

var (
	// ErrNotFound is returned when a requested row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when an insert violates a uniqueness rule.
	ErrConflict = errors.New("already exists")
)

// Config controls how the store connects and how long calls may block.
type Config struct {
	Driver          string // mysql, postgres or sqlite
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	QueryTimeout    time.Duration
}

// DefaultConfig returns pool settings suitable for a single auth instance.
func DefaultConfig() Config {
	return Config{
		Driver:          "mysql",
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		QueryTimeout:    15 * time.Second,
	}
}

// Store is the relational credential store.
type Store struct {
	db           *sqlx.DB
	dsn          string
	dialect      dialect
	queryTimeout time.Duration
}

// Open connects to the database described by cfg and configures the pool.
// It does not apply migrations; call Migrate for that.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	d, err := dialectFor(cfg.Driver)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", d.name, err)
	}

	if d.name == "sqlite" {
		// SQLite serializes writers; a single long-lived connection also
		// keeps an in-memory database and its pragmas alive.
		db.SetMaxOpenConns(1)
	} else {
		if cfg.MaxOpenConns > 0 {
			db.SetMaxOpenConns(cfg.MaxOpenConns)
		}
		if cfg.MaxIdleConns > 0 {
			db.SetMaxIdleConns(cfg.MaxIdleConns)
		}
		if cfg.ConnMaxLifetime > 0 {
			db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
		}
	}

	s := &Store{db: db, dsn: cfg.DSN, dialect: d, queryTimeout: cfg.QueryTimeout}

	pingCtx, cancel := s.bound(ctx)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping %s: %w", d.name, err)
	}

	if d.name == "sqlite" {
		if _, err := db.ExecContext(pingCtx, "PRAGMA foreign_keys = ON"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable foreign keys: %w", err)
		}
	}
	return s, nil
}

// OpenMemory opens a migrated, in-memory SQLite store. It backs tests and
// the --dev mode of the server.
func OpenMemory(ctx context.Context) (*Store, error) {
	s, err := Open(ctx, Config{Driver: "sqlite", DSN: ":memory:", QueryTimeout: 15 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := s.Migrate(); err != nil {
		s.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := s.bound(ctx)
	defer cancel()
	return s.db.PingContext(ctx)
}

// Stats returns connection pool statistics.
func (s *Store) Stats() sql.DBStats {
	return s.db.Stats()
}

// Driver returns the dialect name: mysql, postgres or sqlite.
func (s *Store) Driver() string {
	return s.dialect.name
}

// bound applies the query timeout to ctx. In-flight statements are not
// cancelled by the HTTP client going away, only by this deadline.
func (s *Store) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if s.queryTimeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.queryTimeout)
}

// q rebinds a query written with ? placeholders for the active dialect.
func (s *Store) q(query string) string {
	return s.db.Rebind(query)
}

// withTx runs fn inside a transaction, committing on success. The deferred
// rollback is a no-op after commit.
func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// insert executes an INSERT and returns the generated id. PostgreSQL has no
// LastInsertId, so the id is read back through RETURNING there.
func (s *Store) insert(ctx context.Context, ext sqlx.ExtContext, query string, args ...any) (int64, error) {
	if s.dialect.returning {
		var id int64
		if err := sqlx.GetContext(ctx, ext, &id, s.q(query+" RETURNING id"), args...); err != nil {
			return 0, err
		}
		return id, nil
	}
	res, err := ext.ExecContext(ctx, s.q(query), args...)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	return err
}
