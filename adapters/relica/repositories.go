package relica

import (
	"database/sql"

	"github.com/coregx/leadbus"
)

// Repositories holds all repository implementations.
type Repositories struct {
	Lead      leadbus.LeadRepository
	AccessLog leadbus.AccessLogRepository
}

// NewRepositories creates all repository implementations using Relica.
//
// The db parameter should be an *sql.DB connected to MySQL, PostgreSQL, or SQLite.
// The driverName should be "mysql", "postgres", or "sqlite3".
// Tables use the "crm_" prefix created by leadbus.ApplyMigrations.
func NewRepositories(db *sql.DB, driverName string) *Repositories {
	return &Repositories{
		Lead:      NewLeadRepository(db, driverName),
		AccessLog: NewAccessLogRepository(db, driverName),
	}
}

// NewRepositoriesWithPrefix creates all repository implementations with a custom table prefix.
func NewRepositoriesWithPrefix(db *sql.DB, driverName, prefix string) *Repositories {
	return &Repositories{
		Lead:      NewLeadRepositoryWithPrefix(db, driverName, prefix),
		AccessLog: NewAccessLogRepositoryWithPrefix(db, driverName, prefix),
	}
}
