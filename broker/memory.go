package broker

import (
	"context"
	"sync"
)

// PublishedMessage is a message captured by MemoryBroker.
type PublishedMessage struct {
	Entity  string
	Data    []byte
	Headers map[string]string
}

// MemoryBroker records published messages in memory. It backs the mirror in
// tests and in local setups without RabbitMQ. Err, when set, is returned from
// every Publish call.
type MemoryBroker struct {
	mu       sync.Mutex
	messages []PublishedMessage
	closed   bool
	Err      error
}

// NewMemoryBroker creates an empty MemoryBroker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{}
}

// Publish records the message.
func (m *MemoryBroker) Publish(_ context.Context, entity string, data []byte, headers map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.Err != nil {
		return m.Err
	}

	h := make(map[string]string, len(headers))
	for k, v := range headers {
		h[k] = v
	}
	m.messages = append(m.messages, PublishedMessage{
		Entity:  entity,
		Data:    append([]byte(nil), data...),
		Headers: h,
	})
	return nil
}

// Messages returns a copy of the recorded messages.
func (m *MemoryBroker) Messages() []PublishedMessage {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]PublishedMessage(nil), m.messages...)
}

// Close marks the broker closed.
func (m *MemoryBroker) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

// Closed reports whether Close has been called.
func (m *MemoryBroker) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
