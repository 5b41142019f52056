package dlq

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/model"
)

// Inspector reads, clears and replays the events of a dead letter queue.
//
// Thread safety: Safe for concurrent use.
type Inspector struct {
	dlq    *leadbus.Queue
	topic  *leadbus.Topic
	logger leadbus.Logger
	now    func() time.Time
}

// Option configures an Inspector.
type Option func(*Inspector) error

// WithLogger sets the logger. Defaults to leadbus.NoopLogger.
func WithLogger(logger leadbus.Logger) Option {
	return func(i *Inspector) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		i.logger = logger
		return nil
	}
}

// WithClock overrides the time source used for replay timestamps and stats.
func WithClock(now func() time.Time) Option {
	return func(i *Inspector) error {
		if now == nil {
			return fmt.Errorf("clock cannot be nil")
		}
		i.now = now
		return nil
	}
}

// NewInspector creates an Inspector over dlq that replays events to topic.
func NewInspector(dlq *leadbus.Queue, topic *leadbus.Topic, opts ...Option) (*Inspector, error) {
	if dlq == nil {
		return nil, leadbus.NewError(leadbus.ErrCodeConfiguration, "dead letter queue is required")
	}
	if topic == nil {
		return nil, leadbus.NewError(leadbus.ErrCodeConfiguration, "topic is required")
	}

	i := &Inspector{
		dlq:    dlq,
		topic:  topic,
		logger: &leadbus.NoopLogger{},
		now:    func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		if err := opt(i); err != nil {
			return nil, leadbus.NewErrorWithCause(leadbus.ErrCodeConfiguration, "failed to apply inspector option", err)
		}
	}
	return i, nil
}

// Queue returns the inspected dead letter queue.
func (i *Inspector) Queue() *leadbus.Queue { return i.dlq }

// List returns a snapshot of the dead-lettered events, oldest first.
func (i *Inspector) List() []model.Event {
	return i.dlq.GetMessages()
}

// Count returns the number of dead-lettered events.
func (i *Inspector) Count() int {
	return i.dlq.MessageCount()
}

// Clear removes every event and returns how many were removed.
func (i *Inspector) Clear() int {
	n := i.dlq.ClearMessages()
	i.logger.Infof("Cleared %d messages from dead letter queue %s", n, i.dlq.Name())
	return n
}

// Stats aggregates the current contents.
func (i *Inspector) Stats() model.DLQStats {
	return model.ComputeDLQStats(i.dlq.GetMessages(), i.now())
}

// SyntheticMessage describes a failed event injected for testing. Zero
// fields get defaults.
type SyntheticMessage struct {
	LeadID       int64  `json:"leadId"`
	Name         string `json:"name"`
	Email        string `json:"email"`
	ErrorMessage string `json:"errorMessage"`
}

// Add stores a synthetic failed Lead.New event, as if it had exhausted three
// retries a minute ago, and returns it.
func (i *Inspector) Add(msg SyntheticMessage) model.Event {
	if msg.LeadID == 0 {
		msg.LeadID = rand.Int64N(10000) + 1
	}
	if msg.Name == "" {
		msg.Name = "Test DLQ Lead"
	}
	if msg.Email == "" {
		msg.Email = "test-dlq@example.com"
	}
	if msg.ErrorMessage == "" {
		msg.ErrorMessage = "Simulated error for testing DLQ"
	}

	now := i.now()
	originalTime := now.Add(-time.Minute)
	event := model.Event{
		ID:        model.NewEventID(),
		EventType: model.EventTypeLeadProcessingFailed,
		Timestamp: now,
		Lead: model.LeadPayload{
			ID:          msg.LeadID,
			Name:        msg.Name,
			Email:       msg.Email,
			Status:      model.LeadStatusFailed,
			Source:      "test-error",
			WorkspaceID: 1,
		},
		Metadata: model.Metadata{
			UserID:            "dev-test-user",
			WorkspaceID:       "1",
			RetryCount:        3,
			ErrorMessage:      msg.ErrorMessage,
			OriginalEventTime: &originalTime,
			OriginalEventType: model.EventTypeLeadNew,
		},
	}

	i.dlq.AddMessage(event)
	i.logger.Infof("Added synthetic message %s for lead %d to dead letter queue %s", event.ID, msg.LeadID, i.dlq.Name())
	return event
}

// Selector picks the events to replay. With neither field set every event
// is replayed. Index takes precedence over LeadID.
type Selector struct {
	Index  *int   `json:"index,omitempty"`
	LeadID *int64 `json:"leadId,omitempty"`
}

// ByIndex selects the event at position index.
func ByIndex(index int) Selector { return Selector{Index: &index} }

// ByLeadID selects every event of a lead.
func ByLeadID(id int64) Selector { return Selector{LeadID: &id} }

// All selects every event.
func All() Selector { return Selector{} }

// RetryResult reports a replay.
type RetryResult struct {
	Retried      []model.Event `json:"retriedMessages"` // Events as republished
	Delivered    int           `json:"delivered"`
	DeadLettered int           `json:"deadLettered"`
	Dropped      int           `json:"dropped"`
}

// Retry removes the selected events from the dead letter queue and
// publishes them again, in queue order.
//
// It returns an error with code NO_DATA when the queue is empty or no event
// of the selected lead is stored, and VALIDATION_ERROR for an out of range
// index. Otherwise the error joins the publish failures, as Topic.Publish.
func (i *Inspector) Retry(ctx context.Context, sel Selector) (*RetryResult, error) {
	taken, err := i.take(sel)
	if err != nil {
		return nil, err
	}

	i.logger.Infof("Retrying %d message(s) from dead letter queue %s", len(taken), i.dlq.Name())

	result := &RetryResult{Retried: make([]model.Event, 0, len(taken))}
	var errs []error
	for _, dead := range taken {
		replay := dead.ForReplay(i.now())
		result.Retried = append(result.Retried, replay)

		published, err := i.topic.Publish(ctx, replay)
		if published != nil {
			result.Delivered += published.Delivered
			result.DeadLettered += published.DeadLettered
			result.Dropped += published.Dropped
		}
		if err != nil {
			i.logger.Warnf("Replay of event %s (lead %d) failed: %v", replay.ID, replay.Lead.ID, err)
			if leadbus.IsPublishFailure(err) {
				// Never reached a queue, keep it.
				i.dlq.AddMessage(dead)
			}
			errs = append(errs, err)
		}
	}

	return result, errors.Join(errs...)
}

func (i *Inspector) take(sel Selector) ([]model.Event, error) {
	if i.dlq.MessageCount() == 0 {
		return nil, leadbus.NewError(leadbus.ErrCodeNoData, "dead letter queue is empty")
	}

	switch {
	case sel.Index != nil:
		index := *sel.Index
		taken := i.dlq.TakeMessages(func(pos int, _ model.Event) bool { return pos == index })
		if len(taken) == 0 {
			n := i.dlq.MessageCount()
			return nil, leadbus.NewError(leadbus.ErrCodeValidation,
				fmt.Sprintf("invalid index: %d. DLQ has %d messages (0-%d)", index, n, n-1))
		}
		return taken, nil

	case sel.LeadID != nil:
		id := *sel.LeadID
		taken := i.dlq.TakeMessages(func(_ int, e model.Event) bool { return e.Lead.ID == id })
		if len(taken) == 0 {
			return nil, leadbus.NewError(leadbus.ErrCodeNoData, fmt.Sprintf("no message found in DLQ with leadId: %d", id))
		}
		return taken, nil

	default:
		taken := i.dlq.TakeMessages(func(int, model.Event) bool { return true })
		if len(taken) == 0 {
			return nil, leadbus.NewError(leadbus.ErrCodeNoData, "dead letter queue is empty")
		}
		return taken, nil
	}
}
