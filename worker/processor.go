package worker

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/model"
)

const auditEndpoint = "/events/lead-processor"

// TaskLatency is the simulated duration of each processing step.
type TaskLatency struct {
	Email      time.Duration
	CRM        time.Duration
	Categorize time.Duration
}

// DefaultTaskLatency returns the latencies of the simulated external
// systems: 200ms for email, 150ms for the CRM and 100ms for categorization.
func DefaultTaskLatency() TaskLatency {
	return TaskLatency{
		Email:      200 * time.Millisecond,
		CRM:        150 * time.Millisecond,
		Categorize: 100 * time.Millisecond,
	}
}

// LeadProcessor handles Lead.New events.
type LeadProcessor struct {
	mailer     Mailer
	crm        CRMUpdater
	categories CategoryStore
	fault      FaultInjector
	latency    TaskLatency
	audit      leadbus.AuditLogger
	logger     leadbus.Logger
	tracer     trace.Tracer
}

// Option configures a LeadProcessor.
type Option func(*LeadProcessor) error

// WithMailer sets the welcome email sender. Defaults to LoggingMailer.
func WithMailer(m Mailer) Option {
	return func(p *LeadProcessor) error {
		if m == nil {
			return fmt.Errorf("mailer cannot be nil")
		}
		p.mailer = m
		return nil
	}
}

// WithCRM sets the CRM updater. Defaults to LoggingCRM.
func WithCRM(c CRMUpdater) Option {
	return func(p *LeadProcessor) error {
		if c == nil {
			return fmt.Errorf("crm updater cannot be nil")
		}
		p.crm = c
		return nil
	}
}

// WithCategoryStore persists the computed category. Without it the category
// is only logged.
func WithCategoryStore(s CategoryStore) Option {
	return func(p *LeadProcessor) error {
		if s == nil {
			return fmt.Errorf("category store cannot be nil")
		}
		p.categories = s
		return nil
	}
}

// WithFault installs a fault injector consulted before the first step.
func WithFault(f FaultInjector) Option {
	return func(p *LeadProcessor) error {
		if f == nil {
			return fmt.Errorf("fault injector cannot be nil")
		}
		p.fault = f
		return nil
	}
}

// WithTaskLatency sets the simulated step latencies. Defaults to zero.
func WithTaskLatency(l TaskLatency) Option {
	return func(p *LeadProcessor) error {
		if l.Email < 0 || l.CRM < 0 || l.Categorize < 0 {
			return fmt.Errorf("task latency must be >= 0")
		}
		p.latency = l
		return nil
	}
}

// WithAudit sets the audit logger. Defaults to leadbus.NoopAuditLogger.
func WithAudit(a leadbus.AuditLogger) Option {
	return func(p *LeadProcessor) error {
		if a == nil {
			return fmt.Errorf("audit logger cannot be nil")
		}
		p.audit = a
		return nil
	}
}

// WithLogger sets the logger. Defaults to leadbus.NoopLogger.
func WithLogger(l leadbus.Logger) Option {
	return func(p *LeadProcessor) error {
		if l == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		p.logger = l
		return nil
	}
}

// NewLeadProcessor creates a LeadProcessor with the provided options.
func NewLeadProcessor(opts ...Option) (*LeadProcessor, error) {
	p := &LeadProcessor{
		audit:  leadbus.NoopAuditLogger{},
		logger: &leadbus.NoopLogger{},
		tracer: otel.Tracer("github.com/coregx/leadbus/worker"),
	}

	for _, opt := range opts {
		if err := opt(p); err != nil {
			return nil, leadbus.NewErrorWithCause(leadbus.ErrCodeConfiguration, "failed to apply lead processor option", err)
		}
	}

	if p.mailer == nil {
		p.mailer = LoggingMailer{Logger: p.logger}
	}
	if p.crm == nil {
		p.crm = LoggingCRM{Logger: p.logger}
	}
	return p, nil
}

// Register installs the processor as a handler of q.
func (p *LeadProcessor) Register(q *leadbus.Queue) {
	q.Handle(p.Handle)
}

// Handle processes one event. It has the leadbus.Handler signature.
//
// Events other than Lead.New are ignored. Any failing step fails the event
// with that step's error.
func (p *LeadProcessor) Handle(ctx context.Context, event model.Event) (err error) {
	if event.EventType != model.EventTypeLeadNew {
		p.logger.Warnf("Lead processor received unexpected event type %s (event %s), ignoring", event.EventType, event.ID)
		return nil
	}

	ctx, span := p.tracer.Start(ctx, "worker.LeadProcessor.Handle", trace.WithAttributes(
		attribute.String("leadbus.event_id", event.ID),
		attribute.Int64("leadbus.lead_id", event.Lead.ID),
		attribute.Int("leadbus.retry_count", event.Metadata.RetryCount),
	))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	lead := event.Lead
	p.logger.Infof("Processing lead %d - %s (%s), attempt %d", lead.ID, lead.Name, lead.Email, event.Metadata.RetryCount+1)

	category, err := p.process(ctx, event)
	if err != nil {
		p.logger.Errorf("Failed to process lead %d: %v", lead.ID, err)
		p.audit.LogAccessAttempt(context.WithoutCancel(ctx), p.accessLog(event, false, "Error: "+err.Error()))
		return err
	}

	p.logger.Infof("Lead %d processed, categorized as %s", lead.ID, category)
	p.audit.LogAccessAttempt(ctx, p.accessLog(event, true,
		fmt.Sprintf("Successfully processed event for lead: %d - %s", lead.ID, lead.Name)))
	return nil
}

func (p *LeadProcessor) process(ctx context.Context, event model.Event) (model.LeadCategory, error) {
	lead := event.Lead

	if p.fault != nil {
		if err := p.fault.Inject(ctx, event); err != nil {
			return "", err
		}
	}

	if err := wait(ctx, p.latency.Email); err != nil {
		return "", err
	}
	if err := p.mailer.SendWelcomeEmail(ctx, lead.Email, lead.Name); err != nil {
		return "", fmt.Errorf("send welcome email: %w", err)
	}

	if err := wait(ctx, p.latency.CRM); err != nil {
		return "", err
	}
	if err := p.crm.UpdateLead(ctx, lead); err != nil {
		return "", fmt.Errorf("update crm: %w", err)
	}

	if err := wait(ctx, p.latency.Categorize); err != nil {
		return "", err
	}
	category := model.CategoryForSource(lead.Source)
	if p.categories != nil {
		err := p.categories.UpdateCategory(ctx, lead.ID, category)
		switch {
		case leadbus.IsNoData(err):
			// The lead was deleted after the event was published.
			p.logger.Warnf("Lead %d no longer exists, category %s not stored", lead.ID, category)
		case err != nil:
			return "", fmt.Errorf("store category: %w", err)
		}
	}
	return category, nil
}

func (p *LeadProcessor) accessLog(event model.Event, ok bool, details string) model.AccessLog {
	userID, workspaceID := event.Metadata.UserID, event.Metadata.WorkspaceID
	if userID == "" {
		userID = "system"
	}
	if workspaceID == "" {
		workspaceID = "unknown"
	}
	return model.NewAccessLog(auditEndpoint, "process new lead event", ok, userID, workspaceID, details, model.APITypeEvent)
}

func wait(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
