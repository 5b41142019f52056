// Package model contains the domain models of the lead event pipeline: the
// event envelope that flows through topics and queues, the lead record it
// describes, audit log entries, and dead letter statistics.
package model

// tablePrefix is the default prefix for all tables owned by this module.
const tablePrefix = "crm_"

// TablePrefix returns the default table prefix used by the SQL migrations.
func TablePrefix() string {
	return tablePrefix
}
