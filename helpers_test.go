package leadbus

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/coregx/leadbus/model"
	"github.com/coregx/leadbus/retry"
)

var errBoom = errors.New("boom")

// fastStrategy keeps the default retry bound with a negligible delay.
func fastStrategy() retry.Strategy {
	return retry.Strategy{MaxRetries: retry.DefaultMaxRetries, BaseDelay: time.Millisecond, ExponentialBase: 1}
}

func newTestEvent(eventType model.EventType) model.Event {
	return model.NewEvent(eventType, model.LeadPayload{
		ID:          42,
		Name:        "Ada Lovelace",
		Email:       "ada@example.com",
		Status:      model.LeadStatusNew,
		Source:      "normal",
		WorkspaceID: 7,
	}, "user-1", "7")
}

// countingHandler records every event it receives and fails the first
// failures calls (all calls when failures < 0).
type countingHandler struct {
	mu       sync.Mutex
	failures int
	events   []model.Event
}

func (h *countingHandler) handle(_ context.Context, e model.Event) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
	if h.failures < 0 || len(h.events) <= h.failures {
		return errBoom
	}
	return nil
}

func (h *countingHandler) calls() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func (h *countingHandler) received() []model.Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]model.Event(nil), h.events...)
}

func newQueueWithDLQ(t *testing.T, opts ...QueueOption) (*Queue, *Queue) {
	t.Helper()
	dlq, err := NewDeadLetterQueue("test-dlq")
	require.NoError(t, err)
	opts = append([]QueueOption{WithDeadLetterQueue(dlq), WithRetryStrategy(fastStrategy())}, opts...)
	q, err := NewQueue("test-queue", opts...)
	require.NoError(t, err)
	return q, dlq
}

type recordingNotifier struct {
	mu           sync.Mutex
	failures     int
	deadLettered []model.Event
	dropped      int
}

func (n *recordingNotifier) NotifyDeliveryFailure(_ context.Context, _ string, _ model.Event, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.failures++
	return nil
}

func (n *recordingNotifier) NotifyDeadLettered(_ context.Context, _ string, dead model.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.deadLettered = append(n.deadLettered, dead)
	return nil
}

func (n *recordingNotifier) NotifyDropped(_ context.Context, _ string, _ model.Event, _ error) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.dropped++
	return nil
}

// ctxCheckingAccessLogs rejects saves on a done context, like a SQL-backed
// repository would.
type ctxCheckingAccessLogs struct {
	mu      sync.Mutex
	entries []model.AccessLog
}

func (r *ctxCheckingAccessLogs) Save(ctx context.Context, m model.AccessLog) (model.AccessLog, error) {
	if err := ctx.Err(); err != nil {
		return model.AccessLog{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	m.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, m)
	return m, nil
}

func (r *ctxCheckingAccessLogs) FindRecent(_ context.Context, _ int) ([]model.AccessLog, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AccessLog(nil), r.entries...), nil
}

func (r *ctxCheckingAccessLogs) saved() []model.AccessLog {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]model.AccessLog(nil), r.entries...)
}
