package leadbus

import (
	"context"

	"github.com/coregx/leadbus/model"
)

// NotificationService defines an optional interface for sending notifications
// about delivery problems (failed attempts, dead-lettered or dropped events).
//
// Implementations might send emails, Slack messages, SMS, or log to monitoring systems.
type NotificationService interface {
	// NotifyDeliveryFailure is called after every failed delivery attempt that
	// will be retried.
	NotifyDeliveryFailure(ctx context.Context, queueName string, event model.Event, err error) error

	// NotifyDeadLettered is called when an event is moved to a dead letter queue.
	NotifyDeadLettered(ctx context.Context, queueName string, dead model.Event) error

	// NotifyDropped is called when an event exhausted its retries and no dead
	// letter queue could take it.
	NotifyDropped(ctx context.Context, queueName string, event model.Event, err error) error
}

// NoOpNotificationService is a no-op implementation of NotificationService.
// Use this when notifications are not needed.
type NoOpNotificationService struct{}

// NotifyDeliveryFailure does nothing.
func (n *NoOpNotificationService) NotifyDeliveryFailure(_ context.Context, _ string, _ model.Event, _ error) error {
	return nil
}

// NotifyDeadLettered does nothing.
func (n *NoOpNotificationService) NotifyDeadLettered(_ context.Context, _ string, _ model.Event) error {
	return nil
}

// NotifyDropped does nothing.
func (n *NoOpNotificationService) NotifyDropped(_ context.Context, _ string, _ model.Event, _ error) error {
	return nil
}

// LoggingNotificationService is a simple implementation that logs notifications.
type LoggingNotificationService struct {
	logger Logger
}

// NewLoggingNotificationService creates a new LoggingNotificationService.
func NewLoggingNotificationService(logger Logger) *LoggingNotificationService {
	return &LoggingNotificationService{logger: logger}
}

// NotifyDeliveryFailure logs a failed attempt.
func (n *LoggingNotificationService) NotifyDeliveryFailure(_ context.Context, queueName string, event model.Event, err error) error {
	n.logger.Warnf("⚠️ Delivery failed: queue=%s, event_id=%s, type=%s, lead_id=%d, retry=%d, error=%v",
		queueName, event.ID, event.EventType, event.Lead.ID, event.Metadata.RetryCount, err)
	return nil
}

// NotifyDeadLettered logs a dead-lettered event.
func (n *LoggingNotificationService) NotifyDeadLettered(_ context.Context, queueName string, dead model.Event) error {
	n.logger.Warnf("⚠️ Event moved to DLQ: queue=%s, event_id=%s, original_type=%s, lead_id=%d, attempts=%d, reason=%s",
		queueName, dead.ID, dead.Metadata.OriginalEventType, dead.Lead.ID, dead.Metadata.RetryCount, dead.Metadata.ErrorMessage)
	return nil
}

// NotifyDropped logs a lost event.
func (n *LoggingNotificationService) NotifyDropped(_ context.Context, queueName string, event model.Event, err error) error {
	n.logger.Errorf("🔴 Event dropped: queue=%s, event_id=%s, type=%s, lead_id=%d, error=%v",
		queueName, event.ID, event.EventType, event.Lead.ID, err)
	return nil
}
