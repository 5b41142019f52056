package leadbus

import (
	"fmt"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/coregx/leadbus/retry"
)

// QueueOption is a function that configures a Queue.
//
// Example:
//
//	dlq, _ := leadbus.NewDeadLetterQueue("lead-processing-dlq")
//	queue, err := leadbus.NewQueue("lead-processing",
//	    leadbus.WithQueueDescription("Processes new leads"),
//	    leadbus.WithDeadLetterQueue(dlq),
//	    leadbus.WithRetryStrategy(retry.DefaultStrategy()),
//	    leadbus.WithQueueLogger(logger),
//	)
type QueueOption func(*Queue) error

// WithQueueDescription sets a human-readable description.
func WithQueueDescription(description string) QueueOption {
	return func(q *Queue) error {
		q.description = description
		return nil
	}
}

// WithDeadLetterQueue routes events that exhaust their retries to dlq.
// Without it such events are dropped and logged at error level.
func WithDeadLetterQueue(dlq *Queue) QueueOption {
	return func(q *Queue) error {
		if dlq == nil {
			return fmt.Errorf("dead letter queue cannot be nil")
		}
		q.deadLetter = dlq
		return nil
	}
}

// WithRetryStrategy sets the retry strategy for failed deliveries.
// This is an optional configuration - if not provided, retry.DefaultStrategy()
// is used (3 retries, fixed 500ms delay).
func WithRetryStrategy(strategy retry.Strategy) QueueOption {
	return func(q *Queue) error {
		if err := strategy.Validate(); err != nil {
			return err
		}
		q.strategy = strategy
		return nil
	}
}

// WithHandlerTimeout bounds every delivery attempt. Zero disables the bound.
func WithHandlerTimeout(timeout time.Duration) QueueOption {
	return func(q *Queue) error {
		if timeout < 0 {
			return fmt.Errorf("handler timeout must be >= 0, got %v", timeout)
		}
		q.handlerTimeout = timeout
		return nil
	}
}

// WithQueueLogger sets the logger. Defaults to NoopLogger.
func WithQueueLogger(logger Logger) QueueOption {
	return func(q *Queue) error {
		if logger == nil {
			return fmt.Errorf("logger cannot be nil")
		}
		q.logger = logger
		return nil
	}
}

// WithQueueNotifications sets an optional notification service.
// If not provided, NoOpNotificationService is used.
//
// The notification service receives callbacks for:
//   - Delivery failures (every attempt that will be retried)
//   - Dead-lettered events
//   - Dropped events
func WithQueueNotifications(service NotificationService) QueueOption {
	return func(q *Queue) error {
		if service == nil {
			return fmt.Errorf("notification service cannot be nil")
		}
		q.notifications = service
		return nil
	}
}

// WithQueueAudit sets the audit logger receiving one entry per delivery
// outcome. Defaults to NoopAuditLogger.
func WithQueueAudit(audit AuditLogger) QueueOption {
	return func(q *Queue) error {
		if audit == nil {
			return fmt.Errorf("audit logger cannot be nil")
		}
		q.audit = audit
		return nil
	}
}

// WithQueueTracer sets the tracer used for delivery spans.
func WithQueueTracer(tracer trace.Tracer) QueueOption {
	return func(q *Queue) error {
		if tracer == nil {
			return fmt.Errorf("tracer cannot be nil")
		}
		q.tracer = tracer
		return nil
	}
}
