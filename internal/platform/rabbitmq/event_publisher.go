package rabbitmq

import (
	"context"
	"fmt"

	amqp "github.com/rabbitmq/amqp091-go"

	"chatroom-backend/internal/realtime"
)

// EventPublisher writes socket envelopes to the durable relay queue instead of
// handing them to the hub directly. The relay worker delivers them.
type EventPublisher struct {
	conn      *amqp.Connection
	queueName string
}

func NewEventPublisher(conn *amqp.Connection, queueName string) *EventPublisher {
	return &EventPublisher{
		conn:      conn,
		queueName: queueName,
	}
}

func (p *EventPublisher) Broadcast(ctx context.Context, eventType string, payload interface{}) error {
	body, err := realtime.NewWsMessage(eventType, payload)
	if err != nil {
		return fmt.Errorf("encode %q event failed: %w", eventType, err)
	}

	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("open rabbitmq channel failed: %w", err)
	}
	defer ch.Close()

	if err := DeclareEventQueue(ch, p.queueName); err != nil {
		return err
	}

	if err := ch.PublishWithContext(
		ctx,
		"",
		p.queueName,
		false,
		false,
		amqp.Publishing{
			ContentType:  "application/json",
			Type:         eventType,
			Body:         body,
			DeliveryMode: amqp.Persistent,
		},
	); err != nil {
		return fmt.Errorf("publish %q event failed: %w", eventType, err)
	}
	return nil
}
