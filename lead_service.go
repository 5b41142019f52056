package leadbus

import (
	"context"
	"fmt"
	"strconv"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/coregx/leadbus/model"
)

// Actor identifies who performs a lead operation.
type Actor struct {
	UserID      string
	WorkspaceID string
}

// CreateLeadRequest represents a request to create a lead.
type CreateLeadRequest struct {
	WorkspaceID int64  `json:"workspaceId"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Source      string `json:"source"`

	// SimulateError marks the published event so a fault-injecting worker
	// fails it.
	SimulateError bool `json:"simulateError"`
}

// Validate implements validation.Validatable.
func (r CreateLeadRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.WorkspaceID, validation.Required, validation.Min(int64(1))),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.Required, is.Email, validation.Length(3, 255)),
		validation.Field(&r.Phone, validation.Length(0, 50)),
		validation.Field(&r.Source, validation.Length(0, 50)),
	)
}

// UpdateLeadRequest represents a partial lead update. Nil fields are kept.
type UpdateLeadRequest struct {
	Name   *string `json:"name"`
	Email  *string `json:"email"`
	Phone  *string `json:"phone"`
	Status *string `json:"status"`
	Source *string `json:"source"`
}

// Validate implements validation.Validatable.
func (r UpdateLeadRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.NilOrNotEmpty, validation.Length(1, 255)),
		validation.Field(&r.Email, validation.NilOrNotEmpty, is.Email),
		validation.Field(&r.Phone, validation.Length(0, 50)),
		validation.Field(&r.Status, validation.NilOrNotEmpty, validation.In(leadStatusValues()...)),
		validation.Field(&r.Source, validation.Length(0, 50)),
	)
}

func leadStatusValues() []interface{} {
	values := make([]interface{}, len(model.LeadStatuses))
	for i, s := range model.LeadStatuses {
		values[i] = s
	}
	return values
}

// LeadOutcome is the result of a lead operation: the stored lead, the event
// published for it and how the topic delivered that event.
type LeadOutcome struct {
	Lead    model.Lead     `json:"lead"`
	Event   model.Event    `json:"event"`
	Publish *PublishResult `json:"publish,omitempty"`
}

// LeadService persists leads and publishes a lead event for every change.
type LeadService struct {
	repo   LeadRepository
	topic  *Topic
	logger Logger
	audit  AuditLogger
}

// LeadServiceOption configures a LeadService.
type LeadServiceOption func(*LeadService) error

// WithLeadRepository sets the lead repository. Required.
func WithLeadRepository(repo LeadRepository) LeadServiceOption {
	return func(s *LeadService) error {
		if repo == nil {
			return fmt.Errorf("lead repository cannot be nil")
		}
		s.repo = repo
		return nil
	}
}

// WithLeadTopic sets the topic lead events are published to. Required.
func WithLeadTopic(topic *Topic) LeadServiceOption {
	return func(s *LeadService) error {
		if topic == nil {
			return fmt.Errorf("topic cannot be nil")
		}
		s.topic = topic
		return nil
	}
}

// WithLeadServiceLogger sets the logger. Defaults to NoopLogger.
func WithLeadServiceLogger(logger Logger) LeadServiceOption {
	return func(s *LeadService) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		s.logger = logger
		return nil
	}
}

// WithLeadServiceAudit sets the audit logger. Defaults to NoopAuditLogger.
func WithLeadServiceAudit(audit AuditLogger) LeadServiceOption {
	return func(s *LeadService) error {
		if audit == nil {
			return fmt.Errorf("audit logger cannot be nil")
		}
		s.audit = audit
		return nil
	}
}

// NewLeadService creates a new LeadService with the provided options.
//
// Required options:
//   - WithLeadRepository
//   - WithLeadTopic
func NewLeadService(opts ...LeadServiceOption) (*LeadService, error) {
	s := &LeadService{
		logger: &NoopLogger{},
		audit:  NoopAuditLogger{},
	}

	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply lead service option", err)
		}
	}

	if s.repo == nil {
		return nil, NewError(ErrCodeConfiguration, "LeadRepository is required (use WithLeadRepository)")
	}
	if s.topic == nil {
		return nil, NewError(ErrCodeConfiguration, "Topic is required (use WithLeadTopic)")
	}

	return s, nil
}

// CreateLead stores a new lead and publishes Lead.New.
//
// The lead is stored before publishing, so it exists even when an error is
// returned for the publish. A dead-lettered event is not an error here: the
// event is preserved and can be replayed. A dropped event or a publish
// failure is returned together with the outcome.
func (s *LeadService) CreateLead(ctx context.Context, actor Actor, req CreateLeadRequest) (*LeadOutcome, error) {
	if req.WorkspaceID == 0 {
		if id, err := strconv.ParseInt(actor.WorkspaceID, 10, 64); err == nil {
			req.WorkspaceID = id
		}
	}
	if err := req.Validate(); err != nil {
		s.auditLead(ctx, actor, "create lead", false, err.Error())
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid lead", err)
	}

	lead := model.NewLead(req.WorkspaceID, req.Name, req.Email, req.Phone, req.Source, actor.UserID)
	lead, err := s.repo.Save(ctx, lead)
	if err != nil {
		s.auditLead(ctx, actor, "create lead", false, err.Error())
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save lead", err)
	}

	s.logger.Infof("Lead created: id=%d, workspace=%d, source=%s", lead.ID, lead.WorkspaceID, lead.Source)

	event := model.NewEvent(model.EventTypeLeadNew, lead.Payload(), actor.UserID, actor.WorkspaceID)
	event.Metadata.SimulateError = req.SimulateError

	return s.publish(ctx, actor, "create lead", lead, event)
}

// UpdateLead applies req to the lead and publishes Lead.Updated.
// Returns ErrNoData when the lead does not exist in the actor's workspace.
func (s *LeadService) UpdateLead(ctx context.Context, actor Actor, id int64, req UpdateLeadRequest) (*LeadOutcome, error) {
	if err := req.Validate(); err != nil {
		s.auditLead(ctx, actor, "update lead", false, err.Error())
		return nil, NewErrorWithCause(ErrCodeValidation, "invalid lead update", err)
	}

	lead, err := s.load(ctx, actor, id)
	if err != nil {
		s.auditLead(ctx, actor, "update lead", false, err.Error())
		return nil, err
	}

	if req.Name != nil {
		lead.Name = *req.Name
	}
	if req.Email != nil {
		lead.Email = *req.Email
	}
	if req.Phone != nil {
		lead.Phone = *req.Phone
	}
	if req.Status != nil {
		lead.Status = *req.Status
	}
	if req.Source != nil {
		lead.Source = *req.Source
	}
	lead.Touch()

	lead, err = s.repo.Save(ctx, lead)
	if err != nil {
		s.auditLead(ctx, actor, "update lead", false, err.Error())
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to save lead", err)
	}

	event := model.NewEvent(model.EventTypeLeadUpdated, lead.Payload(), actor.UserID, actor.WorkspaceID)
	return s.publish(ctx, actor, "update lead", lead, event)
}

// DeleteLead removes the lead and publishes Lead.Deleted.
// Returns ErrNoData when the lead does not exist in the actor's workspace.
func (s *LeadService) DeleteLead(ctx context.Context, actor Actor, id int64) (*LeadOutcome, error) {
	lead, err := s.load(ctx, actor, id)
	if err != nil {
		s.auditLead(ctx, actor, "delete lead", false, err.Error())
		return nil, err
	}

	if err := s.repo.Delete(ctx, lead); err != nil {
		s.auditLead(ctx, actor, "delete lead", false, err.Error())
		return nil, NewErrorWithCause(ErrCodeDatabase, "failed to delete lead", err)
	}

	event := model.NewEvent(model.EventTypeLeadDeleted, lead.Payload(), actor.UserID, actor.WorkspaceID)
	return s.publish(ctx, actor, "delete lead", lead, event)
}

func (s *LeadService) load(ctx context.Context, actor Actor, id int64) (model.Lead, error) {
	lead, err := s.repo.Load(ctx, id)
	if err != nil {
		if IsNoData(err) {
			return model.Lead{}, NewErrorWithCause(ErrCodeNoData, fmt.Sprintf("lead %d not found", id), err)
		}
		return model.Lead{}, NewErrorWithCause(ErrCodeDatabase, "failed to load lead", err)
	}

	// Leads of other workspaces are reported as missing.
	if actor.WorkspaceID != "" && actor.WorkspaceID != strconv.FormatInt(lead.WorkspaceID, 10) {
		return model.Lead{}, NewError(ErrCodeNoData, fmt.Sprintf("lead %d not found", id))
	}
	return lead, nil
}

func (s *LeadService) publish(ctx context.Context, actor Actor, action string, lead model.Lead, event model.Event) (*LeadOutcome, error) {
	result, err := s.topic.Publish(ctx, event)
	outcome := &LeadOutcome{Lead: lead, Event: event, Publish: result}

	switch {
	case err == nil:
		s.auditLead(ctx, actor, action, true, fmt.Sprintf("lead %d, event %s", lead.ID, event.ID))
		return outcome, nil
	case IsDropped(err) || IsPublishFailure(err):
		s.logger.Errorf("Event %s for lead %d was not delivered: %v", event.ID, lead.ID, err)
		s.auditLead(ctx, actor, action, false, fmt.Sprintf("lead %d, event %s: %v", lead.ID, event.ID, err))
		return outcome, err
	default:
		s.logger.Warnf("Event %s for lead %d was dead-lettered: %v", event.ID, lead.ID, err)
		s.auditLead(ctx, actor, action, true, fmt.Sprintf("lead %d, event %s dead-lettered", lead.ID, event.ID))
		return outcome, nil
	}
}

func (s *LeadService) auditLead(ctx context.Context, actor Actor, action string, ok bool, details string) {
	s.audit.LogAccessAttempt(ctx, model.NewAccessLog("/api/v1/leads", action, ok,
		actor.UserID, actor.WorkspaceID, details, model.APITypeGeneral))
}
