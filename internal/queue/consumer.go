package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/cartelera/seat-reservation/internal/logger"
)

// StartSeatEventConsumer connects to RabbitMQ, declares the durable
// seat.events queue and consumes seat events until ctx is cancelled.
// Each event is appended to logs/seat-events.log in a single-line,
// human-friendly format, giving operators an audit trail of every
// availability change.  The function runs a reconnect loop with
// exponential backoff; processing errors are logged and the offending
// message is rejected without requeue so the consumer keeps moving.
func StartSeatEventConsumer(ctx context.Context, url string, log logger.Logger) {
	backoff := time.Second
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, err := amqp.Dial(url)
		if err != nil {
			log.Warn("seat event consumer dial failed", "error", err, "retry_in", backoff.String())
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := consumeLoop(ctx, conn, log); err != nil {
			log.Warn("seat event consume loop ended", "error", err)
			_ = conn.Close()
			select {
			case <-ctx.Done():
				return
			case <-time.After(2 * time.Second):
			}
			continue
		}
		_ = conn.Close()
		return
	}
}

func consumeLoop(ctx context.Context, conn *amqp.Connection, log logger.Logger) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Warn("seat event consumer set QoS failed", "error", err)
	}

	if _, err := ch.QueueDeclare(seatEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}

	msgs, err := ch.Consume(seatEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			if err := appendAuditLine(d.Body); err != nil {
				log.Error("seat event handling failed", "error", err)
				_ = d.Nack(false, false) // reject, do not requeue to avoid tight loops
				continue
			}
			_ = d.Ack(false)
		}
	}
}

func appendAuditLine(body []byte) error {
	var ev SeatEvent
	if err := json.Unmarshal(body, &ev); err != nil {
		return fmt.Errorf("unmarshal: %w", err)
	}
	if err := os.MkdirAll("logs", 0o755); err != nil {
		return fmt.Errorf("mkdir logs: %w", err)
	}
	fpath := filepath.Join("logs", "seat-events.log")
	f, err := os.OpenFile(fpath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(formatAuditLine(ev)); err != nil {
		return fmt.Errorf("write log: %w", err)
	}
	return nil
}

func formatAuditLine(ev SeatEvent) string {
	seats := "[" + strings.Join(ev.SeatIDs, ",") + "]"
	switch ev.Type {
	case EventSeatsLocked:
		return fmt.Sprintf("[%s] Seats locked | showtime=%s | holder=%s | expires_at=%s | seats=%s\n",
			ev.OccurredAt, ev.ShowtimeID, ev.HolderID, ev.ExpiresAt, seats)
	case EventSeatsBooked:
		return fmt.Sprintf("[%s] Seats booked | showtime=%s | purchase=%s | seats=%s\n",
			ev.OccurredAt, ev.ShowtimeID, ev.PurchaseID, seats)
	case EventSeatsFreed:
		return fmt.Sprintf("[%s] Seats freed | showtime=%s | seats=%s\n",
			ev.OccurredAt, ev.ShowtimeID, seats)
	default:
		return fmt.Sprintf("[%s] Unknown seat event %q | showtime=%s | seats=%s\n",
			ev.OccurredAt, ev.Type, ev.ShowtimeID, seats)
	}
}
