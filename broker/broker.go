// Package broker mirrors published events to an external message broker.
//
// The in-process pipeline does not depend on a broker for delivery. A topic
// configured with a mirror forwards every published event to the broker
// before fanning it out to its subscriptions, so other services can observe
// the same stream.
package broker

import "context"

// MessageBroker defines the operations to publish messages to a broker.
type MessageBroker interface {
	// Publish sends the message to the specified topic or exchange with optional headers.
	Publish(ctx context.Context, entity string, data []byte, headers map[string]string) error
	// Close cleans up any resources (connections).
	Close() error
}
