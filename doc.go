// Package leadbus provides an in-process publish/subscribe pipeline for lead
// events: topics fan events out to filtered subscriptions, each subscription
// feeds a queue, and queues retry failed deliveries before moving them to a
// dead letter queue.
//
// Delivery is at-least-once and best-effort. Everything lives in memory;
// nothing survives a restart unless a broker mirror is configured on the topic.
//
// # Components
//
//   - Topic: holds subscriptions in registration order and fans every
//     published event out to them, one at a time.
//   - Subscription: forwards an event to its queue when the event type
//     passes the subscription filter. Other events are dropped silently.
//   - Queue: runs its handlers against each event, retries failed attempts
//     according to its retry.Strategy and routes exhausted events to its
//     dead letter queue.
//   - Dead letter queue: a Queue created with NewDeadLetterQueue that
//     stores failed events for inspection and replay (see package dlq).
//   - LeadService: stores leads and publishes Lead.New, Lead.Updated and
//     Lead.Deleted events.
//
// # Quick Start
//
//	dlq, _ := leadbus.NewDeadLetterQueue("lead-processing-dlq")
//	queue, _ := leadbus.NewQueue("lead-processing",
//	    leadbus.WithDeadLetterQueue(dlq),
//	    leadbus.WithRetryStrategy(retry.DefaultStrategy()),
//	)
//	queue.Handle(func(ctx context.Context, e model.Event) error {
//	    return sendWelcomeEmail(ctx, e.Lead)
//	})
//
//	topic, _ := leadbus.NewTopic("lead-events")
//	topic.Subscribe(queue, leadbus.NewFilter(model.EventTypeLeadNew))
//
//	result, err := topic.Publish(ctx, model.NewEvent(model.EventTypeLeadNew, lead, "user-1", "42"))
//
// # Failure semantics
//
// Publish returns an error whenever a matching subscription did not
// complete successfully. The error may be a joined set of failures, one per
// subscription:
//
//   - IsDeadLettered(err): retries ran out, the event is in a dead letter
//     queue with Lead.ProcessingFailed as its type and can be replayed.
//   - IsDropped(err): retries ran out and no dead letter queue took the
//     event. It is lost; the queue logs this at error level.
//   - IsPublishFailure(err): the event never reached any subscription.
//
// In all delivery failures errors.Is matches the last handler error.
//
// # Retry
//
// A queue retries an event while its RetryCount is below the strategy's
// MaxRetries. Each retry is a new event value with RetryCount incremented and
// ErrorMessage set; the default strategy makes 4 attempts in total, 500ms apart.
// Dead letter queues never retry.
//
// # Cancellation
//
// All blocking operations take a context. Cancelling it during a retry wait
// ends the retries and dead-letters (or drops) the event immediately.
// WithHandlerTimeout bounds every attempt.
//
// # Persistence
//
// Leads and the audit trail are stored through LeadRepository and
// AccessLogRepository. The adapters/relica package implements both for
// PostgreSQL, MySQL and SQLite; MigrationFiles holds the schema.
package leadbus
