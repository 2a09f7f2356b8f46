package catalog

// Database driver imports for side-effect registration with database/sql.

import (
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	_ "github.com/lib/pq"              // PostgreSQL driver
	_ "modernc.org/sqlite"             // SQLite driver
)

// driverName maps a configured driver to its database/sql name.
func driverName(driver string) (string, bool) {
	switch driver {
	case "", "sqlite", "sqlite3":
		return "sqlite", true
	case "postgres", "postgresql", "pg":
		return "postgres", true
	case "mysql", "mariadb":
		return "mysql", true
	}
	return "", false
}
