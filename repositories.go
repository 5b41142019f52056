package leadbus

import (
	"context"

	"github.com/coregx/leadbus/model"
)

// LeadRepository defines the persistence interface for leads.
//
// Implementations must be safe for concurrent use.
type LeadRepository interface {
	// Load retrieves a lead by ID.
	// Returns ErrNoData if not found.
	Load(ctx context.Context, id int64) (model.Lead, error)

	// Save creates a new lead (if ID=0) or updates an existing one.
	// Returns the saved lead with populated ID.
	Save(ctx context.Context, m model.Lead) (model.Lead, error)

	// Delete permanently removes a lead.
	Delete(ctx context.Context, m model.Lead) error

	// UpdateCategory sets the category assigned by the lead processor.
	// Returns ErrNoData if the lead does not exist.
	UpdateCategory(ctx context.Context, id int64, category model.LeadCategory) error

	// FindByWorkspace lists the leads of a workspace, newest first.
	// Returns empty slice if none found.
	FindByWorkspace(ctx context.Context, workspaceID int64, limit int) ([]model.Lead, error)
}

// AccessLogRepository defines the persistence interface for audit records.
type AccessLogRepository interface {
	// Save appends an access log entry.
	// Returns the saved entry with populated ID.
	Save(ctx context.Context, m model.AccessLog) (model.AccessLog, error)

	// FindRecent returns the latest entries, newest first.
	FindRecent(ctx context.Context, limit int) ([]model.AccessLog, error)
}
