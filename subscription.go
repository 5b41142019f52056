package leadbus

import (
	"context"

	"github.com/coregx/leadbus/model"
)

// Filter selects the events a subscription forwards. An event matches when
// its type is one of EventTypes; an empty filter matches nothing.
type Filter struct {
	EventTypes []model.EventType `json:"eventType"`
}

// NewFilter creates a filter accepting the given event types.
func NewFilter(types ...model.EventType) Filter {
	return Filter{EventTypes: append([]model.EventType(nil), types...)}
}

// Matches reports whether eventType passes the filter.
func (f Filter) Matches(eventType model.EventType) bool {
	for _, t := range f.EventTypes {
		if t == eventType {
			return true
		}
	}
	return false
}

// Subscription binds a topic to a queue through a filter.
type Subscription struct {
	topic  *Topic
	queue  *Queue
	filter Filter
}

// Topic returns the topic the subscription belongs to.
func (s *Subscription) Topic() *Topic { return s.topic }

// Queue returns the target queue.
func (s *Subscription) Queue() *Queue { return s.queue }

// Filter returns a copy of the subscription filter.
func (s *Subscription) Filter() Filter { return NewFilter(s.filter.EventTypes...) }

// ProcessEvent forwards event to the queue when it passes the filter and
// reports whether it did. Filtered events are dropped silently. The error is
// whatever the queue's SendMessage returned.
func (s *Subscription) ProcessEvent(ctx context.Context, event model.Event) (bool, error) {
	if !s.filter.Matches(event.EventType) {
		s.topic.logger.Debugf("Event %s (%s) filtered out by subscription %s -> %s",
			event.ID, event.EventType, s.topic.name, s.queue.name)
		return false, nil
	}
	return true, s.queue.SendMessage(ctx, event)
}
