package rabbitmq

import (
	"context"
	"encoding/json"
	"log"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/PATILYASHH/SwiftChat/internal/observability"
	"github.com/PATILYASHH/SwiftChat/internal/telemetry"
)

// Publisher publishes relay events and audit envelopes.
type Publisher interface {
	Publish(ctx context.Context, routingKey string, event any) error
	Close() error
}

// NewPublisher connects to the broker and declares the topic exchange. Any
// failure, including an unset URL, degrades to a noop publisher so the relay
// keeps serving without the broker.
func NewPublisher(amqpURL, exchange string) Publisher {
	if amqpURL == "" {
		return newNoop("amqp url not configured")
	}

	conn, err := amqp.Dial(amqpURL)
	if err != nil {
		return newNoop(err.Error())
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return newNoop(err.Error())
	}

	durable := true
	if err := ch.ExchangeDeclare(exchange, "topic", durable, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()
		return newNoop(err.Error())
	}

	log.Printf("amqp connected, exchange=%s", exchange)
	return &amqpPublisher{conn: conn, ch: ch, exchange: exchange}
}

type amqpPublisher struct {
	conn     *amqp.Connection
	ch       *amqp.Channel
	exchange string
}

func (p *amqpPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	body, err := json.Marshal(event)
	if err != nil {
		return err
	}

	err = p.ch.PublishWithContext(ctx, p.exchange, routingKey, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Body:         body,
	})
	if err != nil {
		observability.IncAMQPPublishError()
		log.Printf("amqp publish failed, routing_key=%s: %v", routingKey, err)
	}
	return err
}

func (p *amqpPublisher) Close() error {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		return p.conn.Close()
	}
	return nil
}

// noopPublisher stands in when the broker is unreachable. Audit envelopes are
// still surfaced in the process log so nothing is silently lost.
type noopPublisher struct {
	reason string
}

func newNoop(reason string) noopPublisher {
	log.Printf("amqp disabled, publishing to log only: %s", reason)
	return noopPublisher{reason: reason}
}

func (noopPublisher) Publish(ctx context.Context, routingKey string, event any) error {
	if envelope, ok := auditEnvelope(event); ok {
		log.Printf("amqp noop, routing_key=%s level=%s request_id=%s text=%q", routingKey, envelope.Payload.Level, envelope.RequestID, envelope.Payload.Text)
		return nil
	}
	log.Printf("amqp noop, routing_key=%s", routingKey)
	return nil
}

func (noopPublisher) Close() error {
	return nil
}

func auditEnvelope(event any) (telemetry.AuditEnvelope, bool) {
	switch envelope := event.(type) {
	case telemetry.AuditEnvelope:
		return envelope, true
	case *telemetry.AuditEnvelope:
		return *envelope, true
	default:
		return telemetry.AuditEnvelope{}, false
	}
}

// PublisherMode reports the active publisher implementation for startup logs.
func PublisherMode(p Publisher) string {
	switch p.(type) {
	case *amqpPublisher:
		return "amqp"
	case noopPublisher:
		return "noop"
	default:
		return "unknown"
	}
}
