// Package relica provides repository implementations using Relica query builder.
//
// Relica (github.com/coregx/relica) is a lightweight, type-safe database query builder
// for Go with zero production dependencies.
//
// This package implements the leadbus repository interfaces:
//   - LeadRepository
//   - AccessLogRepository
//
// Example usage:
//
//	import (
//	    "database/sql"
//	    "github.com/coregx/leadbus"
//	    "github.com/coregx/leadbus/adapters/relica"
//	    _ "github.com/lib/pq"
//	)
//
//	db, err := sql.Open("postgres", "host=localhost user=crm dbname=crm sslmode=disable")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	if err := leadbus.ApplyMigrations(ctx, db, "postgres"); err != nil {
//	    log.Fatal(err)
//	}
//
//	repos := relica.NewRepositories(db, "postgres")
//	leads, err := leadbus.NewLeadService(
//	    leadbus.WithLeadRepository(repos.Lead),
//	    leadbus.WithLeadTopic(topic),
//	    leadbus.WithLeadServiceAudit(leadbus.NewRepositoryAuditLogger(repos.AccessLog, logger)),
//	)
package relica
