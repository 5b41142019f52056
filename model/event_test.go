package model

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLead() LeadPayload {
	return LeadPayload{
		ID:          42,
		Name:        "Jane Doe",
		Email:       "jane@example.com",
		Status:      LeadStatusNew,
		Source:      "website",
		WorkspaceID: 7,
	}
}

func TestNewEvent(t *testing.T) {
	before := time.Now().UTC()
	e := NewEvent(EventTypeLeadNew, testLead(), "user-1", "7")

	assert.True(t, strings.HasPrefix(e.ID, "evt_"))
	assert.Len(t, e.ID, len("evt_")+16)
	assert.Equal(t, EventTypeLeadNew, e.EventType)
	assert.WithinDuration(t, before, e.Timestamp, time.Second)
	assert.Equal(t, "user-1", e.Metadata.UserID)
	assert.Equal(t, "7", e.Metadata.WorkspaceID)
	assert.Equal(t, 0, e.Metadata.RetryCount)
	assert.Nil(t, e.Metadata.OriginalEventTime)
}

func TestNewEventID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewEventID()
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestEventType_IsValid(t *testing.T) {
	assert.True(t, EventTypeLeadNew.IsValid())
	assert.True(t, EventTypeLeadUpdated.IsValid())
	assert.True(t, EventTypeLeadDeleted.IsValid())
	assert.True(t, EventTypeLeadProcessingFailed.IsValid())
	assert.False(t, EventType("Insight.New").IsValid())
	assert.False(t, EventType("").IsValid())
}

func TestEvent_WithRetry(t *testing.T) {
	original := NewEvent(EventTypeLeadNew, testLead(), "user-1", "7")

	next := original.WithRetry(errors.New("smtp timeout"))

	assert.Equal(t, 1, next.Metadata.RetryCount)
	assert.Equal(t, "smtp timeout", next.Metadata.ErrorMessage)

	// Only the bookkeeping fields change.
	assert.Equal(t, original.ID, next.ID)
	assert.Equal(t, original.EventType, next.EventType)
	assert.Equal(t, original.Timestamp, next.Timestamp)
	assert.Equal(t, original.Lead, next.Lead)

	// The source value is untouched.
	assert.Equal(t, 0, original.Metadata.RetryCount)
	assert.Empty(t, original.Metadata.ErrorMessage)
}

func TestEvent_DeadLettered(t *testing.T) {
	e := NewEvent(EventTypeLeadNew, testLead(), "user-1", "7")
	e.Metadata.RetryCount = 3

	dead := e.DeadLettered(errors.New("crm unavailable"))

	assert.Equal(t, EventTypeLeadProcessingFailed, dead.EventType)
	assert.Equal(t, EventTypeLeadNew, dead.Metadata.OriginalEventType)
	assert.Equal(t, 4, dead.Metadata.RetryCount)
	assert.Equal(t, "crm unavailable", dead.Metadata.ErrorMessage)
	require.NotNil(t, dead.Metadata.OriginalEventTime)
	assert.Equal(t, e.Timestamp, *dead.Metadata.OriginalEventTime)
	assert.True(t, dead.IsDeadLettered())
	assert.False(t, e.IsDeadLettered())
}

func TestEvent_DeadLettered_KeepsOriginalEventTime(t *testing.T) {
	first := time.Now().Add(-time.Hour).UTC()
	e := NewEvent(EventTypeLeadUpdated, testLead(), "user-1", "7")
	e.Metadata.OriginalEventTime = &first

	dead := e.DeadLettered(errors.New("boom"))

	require.NotNil(t, dead.Metadata.OriginalEventTime)
	assert.Equal(t, first, *dead.Metadata.OriginalEventTime)
	assert.Equal(t, first, dead.FirstSeenAt())
	assert.Equal(t, EventTypeLeadUpdated, dead.Metadata.OriginalEventType)
}

func TestEvent_ForReplay(t *testing.T) {
	e := NewEvent(EventTypeLeadUpdated, testLead(), "user-1", "7")
	e.Metadata.SimulateError = true
	dead := e.WithRetry(errors.New("a")).WithRetry(errors.New("b")).DeadLettered(errors.New("c"))

	now := time.Now().UTC()
	replay := dead.ForReplay(now)

	assert.Equal(t, EventTypeLeadUpdated, replay.EventType)
	assert.Equal(t, 0, replay.Metadata.RetryCount)
	assert.Empty(t, replay.Metadata.ErrorMessage)
	assert.False(t, replay.Metadata.SimulateError)
	assert.Equal(t, now, replay.Timestamp)
	require.NotNil(t, replay.Metadata.RetriedAt)
	assert.Equal(t, now, *replay.Metadata.RetriedAt)
	assert.Equal(t, EventTypeLeadUpdated, replay.Metadata.OriginalEventType)
	assert.Equal(t, e.Timestamp, replay.FirstSeenAt())
	assert.Equal(t, e.ID, replay.ID)
}

func TestEvent_ForReplay_DefaultsToLeadNew(t *testing.T) {
	e := Event{EventType: EventTypeLeadProcessingFailed}

	replay := e.ForReplay(time.Now())

	assert.Equal(t, EventTypeLeadNew, replay.EventType)
}

func TestEvent_Clone(t *testing.T) {
	first := time.Now().UTC()
	e := NewEvent(EventTypeLeadNew, testLead(), "user-1", "7")
	e.Metadata.OriginalEventTime = &first
	e.Metadata.RetriedAt = &first

	c := e.Clone()
	*c.Metadata.OriginalEventTime = first.Add(time.Hour)
	*c.Metadata.RetriedAt = first.Add(time.Hour)

	assert.Equal(t, first, *e.Metadata.OriginalEventTime)
	assert.Equal(t, first, *e.Metadata.RetriedAt)
}
