package model

import "time"

// Lead statuses accepted by the lead service.
const (
	LeadStatusNew       = "new"
	LeadStatusContacted = "contacted"
	LeadStatusQualified = "qualified"
	LeadStatusConverted = "converted"
	LeadStatusLost      = "lost"
	LeadStatusFailed    = "failed"
)

// LeadStatuses lists every valid lead status.
var LeadStatuses = []string{
	LeadStatusNew,
	LeadStatusContacted,
	LeadStatusQualified,
	LeadStatusConverted,
	LeadStatusLost,
	LeadStatusFailed,
}

// LeadCategory is the classification assigned by the lead processor.
type LeadCategory string

const (
	LeadCategoryGeneral   LeadCategory = "General"
	LeadCategoryWeb       LeadCategory = "Web Lead"
	LeadCategoryReferral  LeadCategory = "Referral Lead"
	LeadCategoryMarketing LeadCategory = "Marketing Lead"
	LeadCategoryTest      LeadCategory = "Test Lead"
)

// CategoryForSource maps a lead source to its category.
func CategoryForSource(source string) LeadCategory {
	switch source {
	case "website":
		return LeadCategoryWeb
	case "referral":
		return LeadCategoryReferral
	case "advertisement":
		return LeadCategoryMarketing
	case "test":
		return LeadCategoryTest
	default:
		return LeadCategoryGeneral
	}
}

// Lead is a prospective customer owned by a workspace.
type Lead struct {
	ID          int64     `json:"id" db:"id"`
	WorkspaceID int64     `json:"workspaceID" db:"workspace_id"`
	Name        string    `json:"name" db:"name"`
	Email       string    `json:"email" db:"email"`
	Phone       string    `json:"phone" db:"phone"`
	Status      string    `json:"status" db:"status"`
	Source      string    `json:"source" db:"source"`
	Category    string    `json:"category" db:"category"`
	CreatedBy   string    `json:"createdBy" db:"created_by"`
	CreatedAt   time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt   time.Time `json:"updatedAt" db:"updated_at"`
}

// TableName returns the database table name for Lead.
func (l Lead) TableName() string {
	return tablePrefix + "lead"
}

// NewLead creates a lead in the "new" status.
func NewLead(workspaceID int64, name, email, phone, source, createdBy string) Lead {
	now := time.Now().UTC()
	return Lead{
		WorkspaceID: workspaceID,
		Name:        name,
		Email:       email,
		Phone:       phone,
		Status:      LeadStatusNew,
		Source:      source,
		CreatedBy:   createdBy,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Touch records a modification.
func (l *Lead) Touch() {
	l.UpdatedAt = time.Now().UTC()
}

// Payload returns the snapshot of the lead carried by events.
func (l Lead) Payload() LeadPayload {
	return LeadPayload{
		ID:          l.ID,
		Name:        l.Name,
		Email:       l.Email,
		Phone:       l.Phone,
		Status:      l.Status,
		Source:      l.Source,
		WorkspaceID: l.WorkspaceID,
	}
}
