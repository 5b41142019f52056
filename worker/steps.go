package worker

import (
	"context"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/model"
)

// Mailer sends the welcome email to a new lead.
type Mailer interface {
	SendWelcomeEmail(ctx context.Context, email, name string) error
}

// CRMUpdater pushes a lead to the CRM system.
type CRMUpdater interface {
	UpdateLead(ctx context.Context, lead model.LeadPayload) error
}

// CategoryStore persists the category assigned to a lead.
// leadbus.LeadRepository satisfies it.
type CategoryStore interface {
	UpdateCategory(ctx context.Context, id int64, category model.LeadCategory) error
}

// LoggingMailer only logs the email it would send.
type LoggingMailer struct {
	Logger leadbus.Logger
}

// SendWelcomeEmail logs the email.
func (m LoggingMailer) SendWelcomeEmail(_ context.Context, email, name string) error {
	if m.Logger != nil {
		m.Logger.Infof("Welcome email sent to %s at %s", name, email)
	}
	return nil
}

// LoggingCRM only logs the CRM update it would perform.
type LoggingCRM struct {
	Logger leadbus.Logger
}

// UpdateLead logs the update.
func (c LoggingCRM) UpdateLead(_ context.Context, lead model.LeadPayload) error {
	if c.Logger != nil {
		c.Logger.Infof("CRM record updated for lead %d", lead.ID)
	}
	return nil
}
