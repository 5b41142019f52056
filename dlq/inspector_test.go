package dlq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coregx/leadbus"
	"github.com/coregx/leadbus/broker"
	"github.com/coregx/leadbus/model"
	"github.com/coregx/leadbus/retry"
)

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type pipeline struct {
	topic     *leadbus.Topic
	queue     *leadbus.Queue
	dlq       *leadbus.Queue
	inspector *Inspector
	received  []model.Event
	fail      bool
}

func newPipeline(t *testing.T, topicOpts ...leadbus.TopicOption) *pipeline {
	t.Helper()
	p := &pipeline{}

	var err error
	p.dlq, err = leadbus.NewDeadLetterQueue("lead-dlq")
	require.NoError(t, err)
	p.queue, err = leadbus.NewQueue("lead-processing",
		leadbus.WithDeadLetterQueue(p.dlq),
		leadbus.WithRetryStrategy(retry.Strategy{MaxRetries: 3, BaseDelay: time.Millisecond}),
	)
	require.NoError(t, err)
	p.queue.Handle(func(_ context.Context, e model.Event) error {
		p.received = append(p.received, e)
		if p.fail || e.Metadata.SimulateError {
			return errors.New("simulated failure")
		}
		return nil
	})

	p.topic, err = leadbus.NewTopic("lead-events", topicOpts...)
	require.NoError(t, err)
	_, err = p.topic.Subscribe(p.queue, leadbus.NewFilter(model.EventTypeLeadNew, model.EventTypeLeadUpdated))
	require.NoError(t, err)

	p.inspector, err = NewInspector(p.dlq, p.topic, WithClock(func() time.Time { return fixedNow }))
	require.NoError(t, err)
	return p
}

func deadEvent(leadID int64, simulate bool) model.Event {
	e := model.NewEvent(model.EventTypeLeadNew, model.LeadPayload{ID: leadID, Name: "Lead", Email: "l@example.com"}, "u1", "1")
	e.Metadata.SimulateError = simulate
	return e.DeadLettered(errors.New("simulated failure"))
}

func TestNewInspector_Validation(t *testing.T) {
	dlq, _ := leadbus.NewDeadLetterQueue("dlq")
	topic, _ := leadbus.NewTopic("t")

	_, err := NewInspector(nil, topic)
	assert.Error(t, err)
	_, err = NewInspector(dlq, nil)
	assert.Error(t, err)
	_, err = NewInspector(dlq, topic, WithLogger(nil))
	assert.Error(t, err)
	_, err = NewInspector(dlq, topic, WithClock(nil))
	assert.Error(t, err)
}

func TestInspector_AddListClear(t *testing.T) {
	p := newPipeline(t)

	added := p.inspector.Add(SyntheticMessage{LeadID: 5})

	list := p.inspector.List()
	require.Len(t, list, 1)
	assert.Equal(t, added.ID, list[0].ID)
	assert.Equal(t, model.EventTypeLeadProcessingFailed, list[0].EventType)
	assert.Equal(t, int64(5), list[0].Lead.ID)
	assert.Equal(t, "Test DLQ Lead", list[0].Lead.Name)
	assert.Equal(t, "test-dlq@example.com", list[0].Lead.Email)
	assert.Equal(t, 3, list[0].Metadata.RetryCount)
	assert.Equal(t, "Simulated error for testing DLQ", list[0].Metadata.ErrorMessage)
	assert.Equal(t, model.EventTypeLeadNew, list[0].Metadata.OriginalEventType)
	assert.Equal(t, fixedNow.Add(-time.Minute), *list[0].Metadata.OriginalEventTime)
	assert.Empty(t, p.received)

	assert.Equal(t, 1, p.inspector.Clear())
	assert.Empty(t, p.inspector.List())
	assert.Equal(t, 0, p.inspector.Count())
}

func TestInspector_Add_RandomLeadID(t *testing.T) {
	p := newPipeline(t)
	e := p.inspector.Add(SyntheticMessage{})
	assert.Greater(t, e.Lead.ID, int64(0))
	assert.LessOrEqual(t, e.Lead.ID, int64(10000))
}

func TestInspector_RetryByIndex(t *testing.T) {
	p := newPipeline(t)
	first := deadEvent(1, true)
	second := deadEvent(2, true)
	p.dlq.AddMessage(first)
	p.dlq.AddMessage(second)

	result, err := p.inspector.Retry(context.Background(), ByIndex(0))
	require.NoError(t, err)

	require.Len(t, result.Retried, 1)
	assert.Equal(t, 1, result.Delivered)

	require.Len(t, p.received, 1)
	replayed := p.received[0]
	assert.Equal(t, first.ID, replayed.ID)
	assert.Equal(t, model.EventTypeLeadNew, replayed.EventType)
	assert.Equal(t, 0, replayed.Metadata.RetryCount)
	assert.False(t, replayed.Metadata.SimulateError)
	assert.Empty(t, replayed.Metadata.ErrorMessage)
	assert.Equal(t, fixedNow, replayed.Timestamp)
	require.NotNil(t, replayed.Metadata.RetriedAt)
	assert.Equal(t, fixedNow, *replayed.Metadata.RetriedAt)

	left := p.inspector.List()
	require.Len(t, left, 1)
	assert.Equal(t, second.ID, left[0].ID)
}

func TestInspector_RetryByIndex_OutOfRange(t *testing.T) {
	p := newPipeline(t)
	p.dlq.AddMessage(deadEvent(1, false))

	for _, idx := range []int{-1, 1, 10} {
		_, err := p.inspector.Retry(context.Background(), ByIndex(idx))
		assert.True(t, leadbus.IsValidation(err), "index %d", idx)
	}
	assert.Equal(t, 1, p.inspector.Count())
}

func TestInspector_RetryByLeadID(t *testing.T) {
	p := newPipeline(t)
	p.dlq.AddMessage(deadEvent(1, false))
	p.dlq.AddMessage(deadEvent(2, false))
	p.dlq.AddMessage(deadEvent(1, false))

	result, err := p.inspector.Retry(context.Background(), ByLeadID(1))
	require.NoError(t, err)

	assert.Len(t, result.Retried, 2)
	assert.Equal(t, 2, result.Delivered)
	left := p.inspector.List()
	require.Len(t, left, 1)
	assert.Equal(t, int64(2), left[0].Lead.ID)

	_, err = p.inspector.Retry(context.Background(), ByLeadID(99))
	assert.True(t, leadbus.IsNoData(err))
}

func TestInspector_RetryAll(t *testing.T) {
	p := newPipeline(t)
	p.dlq.AddMessage(deadEvent(1, false))
	p.dlq.AddMessage(deadEvent(2, false))

	result, err := p.inspector.Retry(context.Background(), All())
	require.NoError(t, err)

	assert.Len(t, result.Retried, 2)
	assert.Equal(t, 0, p.inspector.Count())
	require.Len(t, p.received, 2)
	assert.Equal(t, int64(1), p.received[0].Lead.ID)
	assert.Equal(t, int64(2), p.received[1].Lead.ID)
}

func TestInspector_Retry_EmptyQueue(t *testing.T) {
	p := newPipeline(t)
	_, err := p.inspector.Retry(context.Background(), All())
	assert.True(t, leadbus.IsNoData(err))
}

func TestInspector_Retry_FailsAgain(t *testing.T) {
	p := newPipeline(t)
	p.fail = true
	p.dlq.AddMessage(deadEvent(1, false))

	result, err := p.inspector.Retry(context.Background(), All())

	assert.True(t, leadbus.IsDeadLettered(err))
	assert.Equal(t, 1, result.DeadLettered)
	assert.Len(t, p.received, 4)

	back := p.inspector.List()
	require.Len(t, back, 1)
	assert.Equal(t, 4, back[0].Metadata.RetryCount)
	assert.Equal(t, model.EventTypeLeadNew, back[0].Metadata.OriginalEventType)
}

func TestInspector_Retry_PublishFailureKeepsEvent(t *testing.T) {
	b := broker.NewMemoryBroker()
	b.Err = errors.New("broker down")
	p := newPipeline(t, leadbus.WithMirror(b, "crm.leads"))
	dead := deadEvent(1, false)
	p.dlq.AddMessage(dead)

	_, err := p.inspector.Retry(context.Background(), All())

	assert.True(t, leadbus.IsPublishFailure(err))
	left := p.inspector.List()
	require.Len(t, left, 1)
	assert.Equal(t, dead.ID, left[0].ID)
	assert.Equal(t, model.EventTypeLeadProcessingFailed, left[0].EventType)
}

func TestInspector_Stats(t *testing.T) {
	p := newPipeline(t)
	p.inspector.Add(SyntheticMessage{LeadID: 1, ErrorMessage: "smtp down"})
	p.inspector.Add(SyntheticMessage{LeadID: 2, ErrorMessage: "smtp down"})

	stats := p.inspector.Stats()

	assert.Equal(t, 2, stats.TotalItems)
	assert.Equal(t, 2, stats.ByOriginalEventType[model.EventTypeLeadNew])
	assert.Equal(t, "smtp down", stats.TopErrorMessage)
	assert.Equal(t, int64(60), stats.OldestItemAgeSeconds)
	assert.Equal(t, fixedNow, stats.LastUpdated)
}
