package model

import (
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

// EventType tags an event with what happened to a lead.
type EventType string

const (
	// EventTypeLeadNew is published when a lead is created.
	EventTypeLeadNew EventType = "Lead.New"

	// EventTypeLeadUpdated is published when a lead is modified.
	EventTypeLeadUpdated EventType = "Lead.Updated"

	// EventTypeLeadDeleted is published when a lead is removed.
	EventTypeLeadDeleted EventType = "Lead.Deleted"

	// EventTypeLeadProcessingFailed marks an event that exhausted its retries
	// and was moved to a dead letter queue.
	EventTypeLeadProcessingFailed EventType = "Lead.ProcessingFailed"
)

// IsValid reports whether t is one of the known event types.
func (t EventType) IsValid() bool {
	switch t {
	case EventTypeLeadNew, EventTypeLeadUpdated, EventTypeLeadDeleted, EventTypeLeadProcessingFailed:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (t EventType) String() string {
	return string(t)
}

const eventIDAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// NewEventID returns a fresh random event identifier.
func NewEventID() string {
	id, err := gonanoid.Generate(eventIDAlphabet, 16)
	if err != nil {
		// The alphabet and size are constant, Generate only fails on a broken
		// entropy source.
		panic(err)
	}
	return "evt_" + id
}

// LeadPayload is the lead snapshot carried by an event.
type LeadPayload struct {
	ID          int64  `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	Phone       string `json:"phone,omitempty"`
	Status      string `json:"status"`
	Source      string `json:"source,omitempty"`
	WorkspaceID int64  `json:"workspace_id"`
}

// Metadata carries the actor of an event and its delivery bookkeeping.
type Metadata struct {
	UserID      string `json:"userID"`
	WorkspaceID string `json:"workspaceID"`

	// RetryCount is the number of delivery attempts already made for this
	// logical event. It never decreases across redeliveries.
	RetryCount   int    `json:"retryCount"`
	ErrorMessage string `json:"errorMessage,omitempty"`

	OriginalEventTime *time.Time `json:"originalEventTime,omitempty"`
	OriginalEventType EventType  `json:"originalEventType,omitempty"`
	RetriedAt         *time.Time `json:"retriedAt,omitempty"`

	// SimulateError asks a fault-injecting handler to fail this event.
	SimulateError bool `json:"simulateError,omitempty"`
}

// Event is the message envelope published to topics and delivered to queues.
//
// Event is a value type. Delivery never mutates an event in place: each
// retry, dead-lettering or replay derives a new value through WithRetry,
// DeadLettered or ForReplay, which only touch the bookkeeping fields.
type Event struct {
	ID        string      `json:"id"`
	EventType EventType   `json:"eventType"`
	Timestamp time.Time   `json:"timestamp"`
	Lead      LeadPayload `json:"lead"`
	Metadata  Metadata    `json:"metadata"`
}

// NewEvent creates an event of the given type for a lead, stamped with the
// current UTC time and a fresh ID.
func NewEvent(eventType EventType, lead LeadPayload, userID, workspaceID string) Event {
	return Event{
		ID:        NewEventID(),
		EventType: eventType,
		Timestamp: time.Now().UTC(),
		Lead:      lead,
		Metadata: Metadata{
			UserID:      userID,
			WorkspaceID: workspaceID,
		},
	}
}

// WithRetry returns the event for the next delivery attempt after err:
// RetryCount is incremented and ErrorMessage records err.
func (e Event) WithRetry(err error) Event {
	next := e
	next.Metadata.RetryCount = e.Metadata.RetryCount + 1
	next.Metadata.ErrorMessage = errorText(err)
	return next
}

// DeadLettered returns the event as it is stored in a dead letter queue after
// the final failed attempt. The type becomes Lead.ProcessingFailed and the
// pre-failure type and first event time are preserved in the metadata.
func (e Event) DeadLettered(err error) Event {
	dead := e.WithRetry(err)
	dead.EventType = EventTypeLeadProcessingFailed
	if e.EventType != EventTypeLeadProcessingFailed {
		dead.Metadata.OriginalEventType = e.EventType
	}
	if e.Metadata.OriginalEventTime == nil {
		ts := e.Timestamp
		dead.Metadata.OriginalEventTime = &ts
	}
	return dead
}

// ForReplay returns a dead-lettered event prepared for republishing at now:
// the original type is restored (Lead.New when unknown), retry bookkeeping and
// the simulated error flag are cleared, and RetriedAt is set.
func (e Event) ForReplay(now time.Time) Event {
	replay := e
	replay.EventType = e.Metadata.OriginalEventType
	if replay.EventType == "" || replay.EventType == EventTypeLeadProcessingFailed {
		replay.EventType = EventTypeLeadNew
	}
	replay.Timestamp = now
	replay.Metadata.RetryCount = 0
	replay.Metadata.ErrorMessage = ""
	replay.Metadata.SimulateError = false
	retriedAt := now
	replay.Metadata.RetriedAt = &retriedAt
	return replay
}

// IsDeadLettered reports whether the event has been marked as failed.
func (e Event) IsDeadLettered() bool {
	return e.EventType == EventTypeLeadProcessingFailed
}

// FirstSeenAt returns the time the logical event was first published.
func (e Event) FirstSeenAt() time.Time {
	if e.Metadata.OriginalEventTime != nil {
		return *e.Metadata.OriginalEventTime
	}
	return e.Timestamp
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// Clone returns a deep copy of the event. Pointer fields are duplicated so the
// copy shares no memory with e.
func (e Event) Clone() Event {
	c := e
	if e.Metadata.OriginalEventTime != nil {
		t := *e.Metadata.OriginalEventTime
		c.Metadata.OriginalEventTime = &t
	}
	if e.Metadata.RetriedAt != nil {
		t := *e.Metadata.RetriedAt
		c.Metadata.RetriedAt = &t
	}
	return c
}
