package relica

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/coregx/relica"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/model"
)

// LeadRepository implements leadbus.LeadRepository using Relica ORM.
type LeadRepository struct {
	db          *relica.DB
	tablePrefix string
}

// NewLeadRepository creates a new LeadRepository with default table prefix.
func NewLeadRepository(sqlDB *sql.DB, driverName string) *LeadRepository {
	return NewLeadRepositoryWithPrefix(sqlDB, driverName, model.TablePrefix())
}

// NewLeadRepositoryWithPrefix creates a new LeadRepository with custom table prefix.
func NewLeadRepositoryWithPrefix(sqlDB *sql.DB, driverName, prefix string) *LeadRepository {
	return &LeadRepository{db: relica.WrapDB(sqlDB, driverName), tablePrefix: prefix}
}

func (r *LeadRepository) tableName() string {
	return r.tablePrefix + "lead"
}

// Load retrieves a lead by ID.
func (r *LeadRepository) Load(ctx context.Context, id int64) (model.Lead, error) {
	var lead model.Lead
	err := r.db.WithContext(ctx).Select("*").From(r.tableName()).Where("id = ?", id).One(&lead)
	if errors.Is(err, sql.ErrNoRows) {
		return lead, leadbus.ErrNoData
	}
	if err != nil {
		return lead, leadbus.NewErrorWithCause(leadbus.ErrCodeDatabase, "failed to load lead", err)
	}
	return lead, nil
}

// Save creates or updates a lead.
func (r *LeadRepository) Save(ctx context.Context, m model.Lead) (model.Lead, error) {
	if m.ID == 0 {
		// m.ID is populated by Insert
		err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Insert()
		if err != nil {
			return m, leadbus.NewErrorWithCause(leadbus.ErrCodeDatabase, "failed to insert lead", err)
		}
		return m, nil
	}

	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Update()
	if err != nil {
		return m, leadbus.NewErrorWithCause(leadbus.ErrCodeDatabase, "failed to update lead", err)
	}
	return m, nil
}

// Delete removes a lead.
func (r *LeadRepository) Delete(ctx context.Context, m model.Lead) error {
	err := r.db.WithContext(ctx).Model(&m).Table(r.tableName()).Delete()
	if err != nil {
		return leadbus.NewErrorWithCause(leadbus.ErrCodeDatabase, "failed to delete lead", err)
	}
	return nil
}

// UpdateCategory sets the category assigned by the lead processor.
func (r *LeadRepository) UpdateCategory(ctx context.Context, id int64, category model.LeadCategory) error {
	res, err := r.db.WithContext(ctx).Update(r.tableName()).
		Set(map[string]interface{}{
			"category":   string(category),
			"updated_at": time.Now().UTC(),
		}).
		Where("id = ?", id).
		WithContext(ctx).
		Execute()
	if err != nil {
		return leadbus.NewErrorWithCause(leadbus.ErrCodeDatabase, "failed to update lead category", err)
	}

	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return leadbus.ErrNoData
	}
	return nil
}

// FindByWorkspace lists the leads of a workspace, newest first.
func (r *LeadRepository) FindByWorkspace(ctx context.Context, workspaceID int64, limit int) ([]model.Lead, error) {
	var leads []model.Lead
	err := r.db.WithContext(ctx).Select("*").
		From(r.tableName()).
		Where("workspace_id = ?", workspaceID).
		OrderBy("id DESC").
		Limit(int64(limit)).
		WithContext(ctx).
		All(&leads)
	if err != nil {
		return nil, leadbus.NewErrorWithCause(leadbus.ErrCodeDatabase, "failed to find leads by workspace", err)
	}
	return leads, nil
}
