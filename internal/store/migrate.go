package store

import (
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	migratemysql "github.com/golang-migrate/migrate/v4/database/mysql"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	migratesqlite "github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jmoiron/sqlx"

	"github.com/kaizenpbi/kaizen/internal/store/migrations"
)

// Migrate applies all pending schema migrations for the active dialect.
// Running it against an up-to-date schema is a no-op.
func (s *Store) Migrate() error {
	m, closeFn, err := s.migrator()
	if err != nil {
		return err
	}
	defer closeFn()

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("apply migrations: %w", err)
	}
	return nil
}

// SchemaVersion reports the applied migration version and whether the last
// migration left the schema dirty.
func (s *Store) SchemaVersion() (uint, bool, error) {
	m, closeFn, err := s.migrator()
	if err != nil {
		return 0, false, err
	}
	defer closeFn()

	v, dirty, err := m.Version()
	if errors.Is(err, migrate.ErrNilVersion) {
		return 0, false, nil
	}
	return v, dirty, err
}

// migrator builds a migrate instance for the active dialect. SQLite
// migrates over the shared pool so an in-memory database is visible; the
// network dialects get a dedicated connection, since their drivers pin a
// conn for the lifetime of the instance, and the returned func releases it.
func (s *Store) migrator() (*migrate.Migrate, func(), error) {
	src, err := iofs.New(migrations.FS, s.dialect.name)
	if err != nil {
		return nil, nil, fmt.Errorf("migration source: %w", err)
	}

	var (
		driver    database.Driver
		dedicated bool
	)
	switch s.dialect.name {
	case "sqlite":
		driver, err = migratesqlite.WithInstance(s.db.DB, &migratesqlite.Config{})
	case "postgres":
		var db *sqlx.DB
		if db, err = sqlx.Open(s.dialect.driverName, s.dsn); err == nil {
			dedicated = true
			if driver, err = migratepgx.WithInstance(db.DB, &migratepgx.Config{}); err != nil {
				db.Close()
			}
		}
	case "mysql":
		var db *sqlx.DB
		if db, err = s.multiStatementConn(); err == nil {
			dedicated = true
			if driver, err = migratemysql.WithInstance(db.DB, &migratemysql.Config{}); err != nil {
				db.Close()
			}
		}
	default:
		err = fmt.Errorf("no migrations for dialect %s", s.dialect.name)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, s.dialect.name, driver)
	if err != nil {
		if dedicated {
			driver.Close()
		}
		return nil, nil, fmt.Errorf("init migrate: %w", err)
	}
	if !dedicated {
		// Closing m would close the shared pool.
		return m, func() { src.Close() }, nil
	}
	return m, func() { m.Close() }, nil
}

func (s *Store) multiStatementConn() (*sqlx.DB, error) {
	cfg, err := mysql.ParseDSN(s.dsn)
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}
	cfg.MultiStatements = true
	return sqlx.Open("mysql", cfg.FormatDSN())
}
