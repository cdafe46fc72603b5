package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	amqp "github.com/rabbitmq/amqp091-go"

	rabbitmqClient "chatroom-backend/internal/platform/rabbitmq"
	"chatroom-backend/internal/realtime"
)

type FrameBroadcaster interface {
	BroadcastFrame(ctx context.Context, frame []byte) error
}

// EventRelayWorker drains the relay queue into the hub. A delivery is acked
// only once the hub accepted the frame.
type EventRelayWorker struct {
	conn      *amqp.Connection
	hub       FrameBroadcaster
	queueName string
	log       *slog.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewEventRelayWorker(conn *amqp.Connection, hub FrameBroadcaster, queueName string, log *slog.Logger) *EventRelayWorker {
	return &EventRelayWorker{
		conn:      conn,
		hub:       hub,
		queueName: queueName,
		log:       log,
	}
}

func (w *EventRelayWorker) Start(ctx context.Context) error {
	if w.cancel != nil {
		return nil
	}

	workerCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel

	ch, err := w.conn.Channel()
	if err != nil {
		cancel()
		return fmt.Errorf("open worker channel failed: %w", err)
	}

	if err := rabbitmqClient.DeclareEventQueue(ch, w.queueName); err != nil {
		_ = ch.Close()
		cancel()
		return err
	}

	deliveries, err := ch.Consume(
		w.queueName,
		"",
		false,
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		_ = ch.Close()
		cancel()
		return fmt.Errorf("consume queue failed: %w", err)
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer ch.Close()
		w.relay(workerCtx, deliveries)
	}()

	return nil
}

func (w *EventRelayWorker) relay(ctx context.Context, deliveries <-chan amqp.Delivery) {
	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			w.handle(ctx, d)
		}
	}
}

func (w *EventRelayWorker) handle(ctx context.Context, d amqp.Delivery) {
	var msg realtime.WsMessage
	if err := json.Unmarshal(d.Body, &msg); err != nil || msg.Type == "" {
		w.log.Warn("relay dropped undecodable event", "delivery_tag", d.DeliveryTag, "error", err)
		_ = d.Nack(false, false)
		return
	}

	if err := w.hub.BroadcastFrame(ctx, d.Body); err != nil {
		w.log.Warn("relay broadcast failed, requeueing", "event", msg.Type, "error", err)
		_ = d.Nack(false, true)
		return
	}

	_ = d.Ack(false)
}

func (w *EventRelayWorker) Close() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
}
