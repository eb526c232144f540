package queue

import (
	"context"
	"encoding/json"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cartelera/seat-reservation/internal/logger"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

// Publisher delivers seat events to RabbitMQ and satisfies the
// engine's notification port.  Every publish dials its own short-lived
// connection: seat events are low-volume and fire-and-forget, so a
// fresh connection per event keeps the publisher robust against broker
// restarts without connection-management machinery.  Errors are logged
// and returned; callers are expected to drop them.
type Publisher struct {
	url string
	log logger.Logger
}

func NewPublisher(url string, log logger.Logger) *Publisher {
	return &Publisher{url: url, log: log}
}

var _ reservation.Notifier = (*Publisher)(nil)

func (p *Publisher) SeatsLocked(ctx context.Context, showtimeID string, seatIDs []string, holderID string, expiresAt time.Time) error {
	return p.publish(ctx, SeatEvent{
		Type:       EventSeatsLocked,
		ShowtimeID: showtimeID,
		SeatIDs:    seatIDs,
		HolderID:   holderID,
		ExpiresAt:  expiresAt.UTC().Format(time.RFC3339),
	})
}

func (p *Publisher) SeatsBooked(ctx context.Context, showtimeID string, seatIDs []string, purchaseID string) error {
	return p.publish(ctx, SeatEvent{
		Type:       EventSeatsBooked,
		ShowtimeID: showtimeID,
		SeatIDs:    seatIDs,
		PurchaseID: purchaseID,
	})
}

func (p *Publisher) SeatsFreed(ctx context.Context, showtimeID string, seatIDs []string) error {
	return p.publish(ctx, SeatEvent{
		Type:       EventSeatsFreed,
		ShowtimeID: showtimeID,
		SeatIDs:    seatIDs,
	})
}

// publish declares the durable seat.events queue (idempotent) and
// sends the event as a persistent JSON message.
func (p *Publisher) publish(ctx context.Context, event SeatEvent) error {
	event.OccurredAt = time.Now().UTC().Format(time.RFC3339)

	conn, err := amqp.Dial(p.url)
	if err != nil {
		p.log.Error("rabbitmq dial failed", "error", err)
		return err
	}
	defer func() { _ = conn.Close() }()

	ch, err := conn.Channel()
	if err != nil {
		p.log.Error("rabbitmq channel open failed", "error", err)
		return err
	}
	defer func() { _ = ch.Close() }()

	if _, err := ch.QueueDeclare(
		seatEventsQueue, // name
		true,            // durable
		false,           // autoDelete
		false,           // exclusive
		false,           // noWait
		nil,             // args
	); err != nil {
		p.log.Error("rabbitmq queue declare failed", "error", err)
		return err
	}

	body, err := json.Marshal(event)
	if err != nil {
		p.log.Error("seat event marshal failed", "error", err)
		return err
	}

	if err := ch.PublishWithContext(ctx,
		"",              // default exchange
		seatEventsQueue, // routing key = queue name
		false,           // mandatory
		false,           // immediate
		amqp.Publishing{
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    time.Now().UTC(),
			Body:         body,
		},
	); err != nil {
		p.log.Error("rabbitmq publish failed", "error", err)
		return err
	}
	return nil
}
