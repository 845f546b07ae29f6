package store

import (
	"fmt"
	"sort"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

// dialect captures the few places where the supported databases differ.
// Queries are otherwise written once with ? placeholders and rebound.
type dialect struct {
	name       string
	driverName string
	returning  bool

	// lockoutEnsure creates the (prefix, ip) lockout row if it is missing
	// and leaves an existing one alone. It runs outside transactions.
	// Arguments: prefix, ip hash, now.
	lockoutEnsure string
	// forUpdate is appended to a SELECT that must lock the rows it reads.
	// SQLite takes no row locks; its single connection serializes writers.
	forUpdate string

	isUniqueViolation func(err error) bool
}

const ensureOnConflict = `INSERT INTO login_lockouts
	(client_prefix, ip_hash, pending, pending_at, locked_until, updated_at)
	VALUES (?, ?, 0, 0, 0, ?)
	ON CONFLICT (client_prefix, ip_hash) DO NOTHING`

const ensureOnDuplicate = `INSERT INTO login_lockouts
	(client_prefix, ip_hash, pending, pending_at, locked_until, updated_at)
	VALUES (?, ?, 0, 0, 0, ?)
	ON DUPLICATE KEY UPDATE client_prefix = client_prefix`

var dialects = map[string]dialect{
	"mysql": {
		name:              "mysql",
		driverName:        "mysql",
		lockoutEnsure:     ensureOnDuplicate,
		forUpdate:         " FOR UPDATE",
		isUniqueViolation: isMySQLDuplicate,
	},
	"postgres": {
		name:              "postgres",
		driverName:        "pgx",
		returning:         true,
		lockoutEnsure:     ensureOnConflict,
		forUpdate:         " FOR UPDATE",
		isUniqueViolation: isPostgresUnique,
	},
	"sqlite": {
		name:              "sqlite",
		driverName:        "sqlite",
		lockoutEnsure:     ensureOnConflict,
		isUniqueViolation: isSQLiteUnique,
	},
}

func dialectFor(driver string) (dialect, error) {
	if driver == "pgx" || driver == "postgresql" {
		driver = "postgres"
	}
	d, ok := dialects[driver]
	if !ok {
		return dialect{}, fmt.Errorf("unsupported driver: %s (available: %v)", driver, Drivers())
	}
	return d, nil
}

// Drivers lists the supported driver names.
func Drivers() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
