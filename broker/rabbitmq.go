package broker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// DefaultPublishTimeout bounds a single publish including its confirmation.
const DefaultPublishTimeout = 5 * time.Second

// RabbitMQBroker publishes messages to a RabbitMQ topic exchange with
// publisher confirms. The exchange name is the entity passed to Publish and
// the routing key is taken from the "eventType" header.
type RabbitMQBroker struct {
	url            string
	publishTimeout time.Duration

	mu       sync.Mutex
	conn     *amqp.Connection
	channel  *amqp.Channel
	confirms chan amqp.Confirmation
	declared map[string]bool
}

// NewRabbitMQBroker dials RabbitMQ and opens a confirm-mode channel.
func NewRabbitMQBroker(url string) (*RabbitMQBroker, error) {
	if url == "" {
		return nil, errors.New("rabbitmq url cannot be empty")
	}

	b := &RabbitMQBroker{
		url:            url,
		publishTimeout: DefaultPublishTimeout,
		declared:       make(map[string]bool),
	}
	if err := b.connect(); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *RabbitMQBroker) connect() error {
	conn, err := amqp.Dial(b.url)
	if err != nil {
		return fmt.Errorf("failed to connect to rabbitmq: %w", err)
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return fmt.Errorf("failed to open channel: %w", err)
	}

	if err := ch.Confirm(false); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return fmt.Errorf("failed to enable publisher confirms: %w", err)
	}

	b.conn = conn
	b.channel = ch
	b.confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	b.declared = make(map[string]bool)
	return nil
}

// Publish sends data to the exchange named entity and waits for the broker
// to confirm it.
func (b *RabbitMQBroker) Publish(ctx context.Context, entity string, data []byte, headers map[string]string) (err error) {
	ctx, span := otel.Tracer("leadbus").Start(ctx, "broker.Publish",
		trace.WithSpanKind(trace.SpanKindProducer),
		trace.WithAttributes(
			attribute.String("messaging.system", "rabbitmq"),
			attribute.String("messaging.destination", entity),
			attribute.Int("messaging.message_payload_size_bytes", len(data)),
		),
	)
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	b.mu.Lock()
	defer b.mu.Unlock()

	if b.conn == nil || b.conn.IsClosed() {
		if err := b.connect(); err != nil {
			return err
		}
	}

	if !b.declared[entity] {
		if err := b.channel.ExchangeDeclare(entity, "topic", true, false, false, false, nil); err != nil {
			return fmt.Errorf("failed to declare exchange %s: %w", entity, err)
		}
		b.declared[entity] = true
	}

	// Trace context travels in the message headers.
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)

	table := amqp.Table{}
	for k, v := range headers {
		table[k] = v
	}
	for k, v := range carrier {
		table[k] = v
	}

	ctx, cancel := context.WithTimeout(ctx, b.publishTimeout)
	defer cancel()

	err = b.channel.PublishWithContext(ctx, entity, headers["eventType"], false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    headers["eventId"],
		Timestamp:    time.Now().UTC(),
		Headers:      table,
		Body:         data,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", entity, err)
	}

	select {
	case confirm, ok := <-b.confirms:
		if !ok {
			return errors.New("confirmation channel closed")
		}
		if !confirm.Ack {
			return fmt.Errorf("broker rejected message (delivery tag %d)", confirm.DeliveryTag)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for publish confirmation: %w", ctx.Err())
	}
}

// Close closes the channel and the connection.
func (b *RabbitMQBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var errs []error
	if b.channel != nil {
		if err := b.channel.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if b.conn != nil {
		if err := b.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
