package leadbus

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/coregx/leadbus/model"
	"github.com/coregx/leadbus/retry"
)

const tracerName = "github.com/coregx/leadbus"

// Handler processes one delivered event. Returning an error (or panicking)
// fails the delivery attempt.
type Handler func(ctx context.Context, event model.Event) error

// Queue runs its registered handlers against every event sent to it,
// redelivering failed events according to its retry strategy and routing
// events that exhaust their retries to its dead letter queue.
//
// A Queue also stores events added with AddMessage. Dead letter queues use
// this storage; a stored event never reaches the handlers.
//
// Thread safety: Safe for concurrent use. Deliveries of distinct events may
// run concurrently; the attempts of a single event run strictly one after
// another.
type Queue struct {
	name           string
	description    string
	isDeadLetter   bool
	deadLetter     *Queue
	strategy       retry.Strategy
	handlerTimeout time.Duration
	logger         Logger
	notifications  NotificationService
	audit          AuditLogger
	tracer         trace.Tracer

	mu       sync.RWMutex
	handlers []Handler
	messages []model.Event
}

// NewQueue creates a queue with the provided options.
//
// Optional options:
//   - WithQueueDescription
//   - WithDeadLetterQueue: where exhausted events go (default: dropped)
//   - WithRetryStrategy: default retry.DefaultStrategy()
//   - WithHandlerTimeout: per-attempt bound (default: none)
//   - WithQueueLogger, WithQueueNotifications, WithQueueAudit, WithQueueTracer
func NewQueue(name string, opts ...QueueOption) (*Queue, error) {
	return newQueue(name, false, opts)
}

// NewDeadLetterQueue creates a queue meant to store dead-lettered events.
// It never retries: a handler failure inside a dead letter queue drops the
// event.
func NewDeadLetterQueue(name string, opts ...QueueOption) (*Queue, error) {
	return newQueue(name, true, opts)
}

func newQueue(name string, isDeadLetter bool, opts []QueueOption) (*Queue, error) {
	if name == "" {
		return nil, NewError(ErrCodeConfiguration, "queue name is required")
	}

	q := &Queue{
		name:          name,
		isDeadLetter:  isDeadLetter,
		strategy:      retry.DefaultStrategy(),
		logger:        &NoopLogger{},
		notifications: &NoOpNotificationService{},
		audit:         NoopAuditLogger{},
		tracer:        otel.Tracer(tracerName),
	}
	if isDeadLetter {
		q.strategy = retry.NoRetry()
	}

	for _, opt := range opts {
		if err := opt(q); err != nil {
			return nil, NewErrorWithCause(ErrCodeConfiguration, "failed to apply queue option", err)
		}
	}

	if q.isDeadLetter && q.deadLetter != nil {
		return nil, NewError(ErrCodeConfiguration, fmt.Sprintf("dead letter queue %q cannot have a dead letter queue", name))
	}
	if q.isDeadLetter {
		q.strategy = retry.NoRetry()
	}

	return q, nil
}

// Name returns the queue name.
func (q *Queue) Name() string { return q.name }

// Description returns the queue description.
func (q *Queue) Description() string { return q.description }

// IsDeadLetter reports whether the queue was created with NewDeadLetterQueue.
func (q *Queue) IsDeadLetter() bool { return q.isDeadLetter }

// DeadLetterQueue returns the configured dead letter queue, or nil.
func (q *Queue) DeadLetterQueue() *Queue { return q.deadLetter }

// RetryStrategy returns the queue's retry strategy.
func (q *Queue) RetryStrategy() retry.Strategy { return q.strategy }

// Handle registers h and returns it. Handlers run in registration order.
func (q *Queue) Handle(h Handler) Handler {
	if h == nil {
		return nil
	}
	q.mu.Lock()
	q.handlers = append(q.handlers, h)
	q.mu.Unlock()
	return h
}

// HandlerCount returns the number of registered handlers.
func (q *Queue) HandlerCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.handlers)
}

// SendMessage delivers event to every registered handler, sequentially.
//
// If a handler fails, the remaining handlers are skipped and the whole
// attempt is retried with RetryCount incremented, after the strategy's delay,
// while the strategy allows it. When retries run out the event is moved to
// the dead letter queue and an error with code DEAD_LETTERED is returned; if
// there is no dead letter queue (or this queue is one) the event is dropped
// and an error with code MESSAGE_DROPPED is returned. Both wrap the last
// handler error, so errors.Is works against it.
//
// A queue with no handlers treats the event as consumed and returns nil.
//
// Cancelling ctx during a retry wait stops the retries: the event is
// dead-lettered (or dropped) right away with the context error recorded.
func (q *Queue) SendMessage(ctx context.Context, event model.Event) (err error) {
	q.mu.RLock()
	handlers := append([]Handler(nil), q.handlers...)
	q.mu.RUnlock()

	if len(handlers) == 0 {
		q.logger.Debugf("Queue %s has no handlers, event %s consumed", q.name, event.ID)
		return nil
	}

	ctx, span := q.tracer.Start(ctx, "leadbus.Queue.SendMessage",
		trace.WithSpanKind(trace.SpanKindConsumer),
		trace.WithAttributes(
			attribute.String("leadbus.queue", q.name),
			attribute.String("leadbus.event_id", event.ID),
			attribute.String("leadbus.event_type", event.EventType.String()),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	current := event
	for attempt := 1; ; attempt++ {
		attemptErr := q.attempt(ctx, handlers, current)
		if attemptErr == nil {
			span.SetAttributes(attribute.Int("leadbus.attempts", attempt))
			q.logger.Debugf("Event %s delivered by queue %s on attempt %d", current.ID, q.name, attempt)
			q.audit.LogAccessAttempt(ctx, q.accessLog(current, true,
				fmt.Sprintf("event %s delivered on attempt %d", current.ID, attempt)))
			return nil
		}

		retryCount := current.Metadata.RetryCount
		if q.isDeadLetter || !q.strategy.IsRetryable(retryCount) {
			span.SetAttributes(attribute.Int("leadbus.attempts", attempt))
			return q.exhaust(ctx, current, attemptErr)
		}

		q.logger.Warnf("Delivery of event %s failed on queue %s (retry %d/%d): %v",
			current.ID, q.name, retryCount+1, q.strategy.MaxRetries, attemptErr)
		if nerr := q.notifications.NotifyDeliveryFailure(ctx, q.name, current, attemptErr); nerr != nil {
			q.logger.Warnf("Failed to send delivery failure notification: %v", nerr)
		}

		if werr := sleepContext(ctx, q.strategy.CalculateRetryDelay(retryCount+1)); werr != nil {
			span.SetAttributes(attribute.Int("leadbus.attempts", attempt))
			return q.exhaust(ctx, current, fmt.Errorf("%w; retry aborted: %w", attemptErr, werr))
		}

		current = current.WithRetry(attemptErr)
	}
}

// attempt runs the handlers once against event, stopping at the first failure.
func (q *Queue) attempt(ctx context.Context, handlers []Handler, event model.Event) error {
	if q.handlerTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, q.handlerTimeout)
		defer cancel()
	}

	for _, h := range handlers {
		if err := invokeHandler(ctx, h, event.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func invokeHandler(ctx context.Context, h Handler, event model.Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewError(ErrCodeHandlerFailure, fmt.Sprintf("handler panicked: %v", r))
		}
	}()
	return h(ctx, event)
}

// exhaust moves event to the dead letter queue, or drops it, after its last
// failed attempt. Notifications and audit run detached from ctx cancellation
// so the outcome is recorded even when the caller has gone away.
func (q *Queue) exhaust(ctx context.Context, event model.Event, cause error) error {
	ctx = context.WithoutCancel(ctx)
	if q.deadLetter != nil && !q.isDeadLetter {
		dead := event.DeadLettered(cause)
		q.deadLetter.AddMessage(dead)

		q.logger.Warnf("Event %s moved from queue %s to dead letter queue %s after %d attempts: %v",
			event.ID, q.name, q.deadLetter.name, dead.Metadata.RetryCount, cause)
		if nerr := q.notifications.NotifyDeadLettered(ctx, q.name, dead); nerr != nil {
			q.logger.Warnf("Failed to send dead letter notification: %v", nerr)
		}
		q.audit.LogAccessAttempt(ctx, q.accessLog(event, false,
			fmt.Sprintf("event %s dead-lettered to %s: %v", event.ID, q.deadLetter.name, cause)))

		return NewErrorWithCause(ErrCodeDeadLettered,
			fmt.Sprintf("event %s moved to dead letter queue %s after %d attempts", event.ID, q.deadLetter.name, dead.Metadata.RetryCount),
			cause)
	}

	attempts := event.Metadata.RetryCount + 1
	q.logger.Errorf("Event %s dropped by queue %s after %d attempts, no dead letter queue: %v",
		event.ID, q.name, attempts, cause)
	if nerr := q.notifications.NotifyDropped(ctx, q.name, event, cause); nerr != nil {
		q.logger.Warnf("Failed to send drop notification: %v", nerr)
	}
	q.audit.LogAccessAttempt(ctx, q.accessLog(event, false,
		fmt.Sprintf("event %s dropped: %v", event.ID, cause)))

	return NewErrorWithCause(ErrCodeDropped,
		fmt.Sprintf("event %s dropped by queue %s after %d attempts", event.ID, q.name, attempts),
		cause)
}

func (q *Queue) accessLog(event model.Event, successful bool, details string) model.AccessLog {
	return model.NewAccessLog("queue:"+q.name, "deliver "+event.EventType.String(), successful,
		event.Metadata.UserID, event.Metadata.WorkspaceID, details, model.APITypeEvent)
}

// AddMessage stores event without invoking any handler.
func (q *Queue) AddMessage(event model.Event) {
	q.mu.Lock()
	q.messages = append(q.messages, event.Clone())
	q.mu.Unlock()
}

// GetMessages returns a snapshot of the stored events, oldest first.
// Modifying the result does not affect the queue.
func (q *Queue) GetMessages() []model.Event {
	q.mu.RLock()
	defer q.mu.RUnlock()

	out := make([]model.Event, len(q.messages))
	for i, m := range q.messages {
		out[i] = m.Clone()
	}
	return out
}

// MessageCount returns the number of stored events.
func (q *Queue) MessageCount() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.messages)
}

// ClearMessages removes every stored event and returns how many were removed.
func (q *Queue) ClearMessages() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	n := len(q.messages)
	q.messages = nil
	return n
}

// TakeMessages removes the stored events for which match returns true and
// returns them in storage order. match receives each event's index at the
// time of the call.
func (q *Queue) TakeMessages(match func(index int, event model.Event) bool) []model.Event {
	q.mu.Lock()
	defer q.mu.Unlock()

	var taken []model.Event
	kept := q.messages[:0:0]
	for i, m := range q.messages {
		if match(i, m.Clone()) {
			taken = append(taken, m)
			continue
		}
		kept = append(kept, m)
	}
	q.messages = kept
	return taken
}

// sleepContext waits for d or until ctx is done.
func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
