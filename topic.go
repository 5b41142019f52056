package leadbus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coregx/leadbus/broker"
	"github.com/coregx/leadbus/model"
)

// Topic fans published events out to its subscriptions.
//
// Thread safety: Safe for concurrent use.
type Topic struct {
	name         string
	logger       Logger
	publishDelay time.Duration
	mirror       broker.MessageBroker
	mirrorEntity string
	tracer       trace.Tracer

	mu            sync.RWMutex
	subscriptions []*Subscription
}

// TopicOption configures a Topic.
type TopicOption func(*Topic) error

// WithTopicLogger sets the logger. Defaults to NoopLogger.
func WithTopicLogger(logger Logger) TopicOption {
	return func(t *Topic) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		t.logger = logger
		return nil
	}
}

// WithPublishDelay adds a simulated network latency before every fan-out.
func WithPublishDelay(delay time.Duration) TopicOption {
	return func(t *Topic) error {
		if delay < 0 {
			return fmt.Errorf("publish delay must be >= 0, got %v", delay)
		}
		t.publishDelay = delay
		return nil
	}
}

// WithMirror forwards every published event, JSON encoded, to entity on b
// before the fan-out. A broker failure aborts the publish.
func WithMirror(b broker.MessageBroker, entity string) TopicOption {
	return func(t *Topic) error {
		if b == nil {
			return fmt.Errorf("broker cannot be nil")
		}
		if entity == "" {
			return fmt.Errorf("mirror entity is required")
		}
		t.mirror = b
		t.mirrorEntity = entity
		return nil
	}
}

// WithTopicTracer sets the tracer used for publish spans.
func WithTopicTracer(tracer trace.Tracer) TopicOption {
	return func(t *Topic) error {
		if tracer == nil {
			return fmt.Errorf("tracer cannot be nil")
		}
		t.tracer = tracer
		return nil
	}
}

// NewTopic creates a topic with no subscriptions.
func NewTopic(name string, opts ...TopicOption) (*Topic, error) {
	if name == "" {
		return nil, NewError(ErrCodeConfiguration, "topic name is required")
	}

	t := &Topic{
		name:   name,
		logger: &NoopLogger{},
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if err := opt(t); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply topic option", err)
		}
	}
	return t, nil
}

// Name returns the topic name.
func (t *Topic) Name() string { return t.name }

// Subscribe registers a subscription delivering events that pass filter to
// queue. Subscribing the same queue twice yields two independent deliveries.
func (t *Topic) Subscribe(queue *Queue, filter Filter) (*Subscription, error) {
	if queue == nil {
		return nil, NewError(ErrCodeValidation, "queue is required")
	}

	sub := &Subscription{
		topic:  t,
		queue:  queue,
		filter: NewFilter(filter.EventTypes...),
	}

	t.mu.Lock()
	t.subscriptions = append(t.subscriptions, sub)
	t.mu.Unlock()

	t.logger.Infof("Queue %s subscribed to topic %s for %v", queue.name, t.name, filter.EventTypes)
	return sub, nil
}

// Subscriptions returns the subscriptions in registration order.
func (t *Topic) Subscriptions() []*Subscription {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return append([]*Subscription(nil), t.subscriptions...)
}

// PublishResult represents the result of a publish operation.
type PublishResult struct {
	EventID       string `json:"eventId"`
	Subscriptions int    `json:"subscriptions"` // Subscriptions at publish time
	Matched       int    `json:"matched"`       // Subscriptions whose filter accepted the event
	Filtered      int    `json:"filtered"`      // Subscriptions that dropped the event silently
	Delivered     int    `json:"delivered"`
	DeadLettered  int    `json:"deadLettered"`
	Dropped       int    `json:"dropped"`
}

// Publish delivers event to every subscription, in registration order, one
// at a time.
//
// Every matching subscription is tried even if an earlier one failed. The
// returned error joins the failures of all subscriptions, so a non-nil error
// does not necessarily mean data loss: use IsDeadLettered and IsDropped to
// tell an event preserved in a dead letter queue from a lost one. An error
// with code PUBLISH_ERROR (IsPublishFailure) means no subscription saw the
// event; in that case the result is nil.
//
// An event without ID or timestamp gets fresh ones.
func (t *Topic) Publish(ctx context.Context, event model.Event) (result *PublishResult, err error) {
	if !event.EventType.IsValid() {
		return nil, NewError(ErrCodeValidation, fmt.Sprintf("unknown event type %q", event.EventType))
	}
	if event.ID == "" {
		event.ID = model.NewEventID()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	ctx, span := t.tracer.Start(ctx, "leadbus.Topic.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("leadbus.topic", t.name),
			attribute.String("leadbus.event_id", event.ID),
			attribute.String("leadbus.event_type", event.EventType.String()),
			attribute.Int64("leadbus.lead_id", event.Lead.ID),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if t.mirror != nil {
		if err := t.mirrorEvent(ctx, event); err != nil {
			t.logger.Errorf("Failed to mirror event %s to %s: %v", event.ID, t.mirrorEntity, err)
			return nil, NewErrorWithCause(ErrCodePublish, fmt.Sprintf("failed to publish event %s", event.ID), err)
		}
	}

	if err := sleepContext(ctx, t.publishDelay); err != nil {
		return nil, NewErrorWithCause(ErrCodePublish, fmt.Sprintf("publish of event %s interrupted", event.ID), err)
	}

	subs := t.Subscriptions()
	result = &PublishResult{EventID: event.ID, Subscriptions: len(subs)}

	var errs []error
	for _, sub := range subs {
		matched, err := sub.ProcessEvent(ctx, event)
		if !matched {
			result.Filtered++
			continue
		}
		result.Matched++

		switch {
		case err == nil:
			result.Delivered++
		case IsDeadLettered(err):
			result.DeadLettered++
			errs = append(errs, err)
		default:
			result.Dropped++
			errs = append(errs, err)
		}
	}

	span.SetAttributes(
		attribute.Int("leadbus.matched", result.Matched),
		attribute.Int("leadbus.delivered", result.Delivered),
	)
	t.logger.Infof("Published event %s (%s) to topic %s: matched=%d delivered=%d dead_lettered=%d dropped=%d",
		event.ID, event.EventType, t.name, result.Matched, result.Delivered, result.DeadLettered, result.Dropped)

	return result, errors.Join(errs...)
}

func (t *Topic) mirrorEvent(ctx context.Context, event model.Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to encode event: %w", err)
	}
	headers := map[string]string{
		"eventId":   event.ID,
		"eventType": event.EventType.String(),
		"topic":     t.name,
	}
	return t.mirror.Publish(ctx, t.mirrorEntity, data, headers)
}
