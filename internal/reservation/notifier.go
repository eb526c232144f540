package reservation

import (
	"context"
	"time"
)

// Notifier is the outbound port the engine calls after any state
// change affecting visible availability.  Calls are one-way and
// fire-and-forget: the engine dispatches them on their own goroutine
// with a bounded timeout, and a failed delivery never rolls back a
// state transition.  A pub/sub broker, a websocket fanout or a plain
// log writer all satisfy this interface.
type Notifier interface {
	SeatsLocked(ctx context.Context, showtimeID string, seatIDs []string, holderID string, expiresAt time.Time) error
	SeatsBooked(ctx context.Context, showtimeID string, seatIDs []string, purchaseID string) error
	SeatsFreed(ctx context.Context, showtimeID string, seatIDs []string) error
}

// NopNotifier discards every notification.  Useful for tests and for
// deployments without a broker.
type NopNotifier struct{}

func (NopNotifier) SeatsLocked(context.Context, string, []string, string, time.Time) error {
	return nil
}
func (NopNotifier) SeatsBooked(context.Context, string, []string, string) error { return nil }
func (NopNotifier) SeatsFreed(context.Context, string, []string) error          { return nil }

// notifyTimeout bounds a single fire-and-forget delivery attempt.
const notifyTimeout = 5 * time.Second

// dispatch runs fn on its own goroutine, detached from the request
// context so the delivery survives the response being sent.  Errors
// are logged and dropped.
func (e *Engine) dispatch(event, showtimeID string, fn func(ctx context.Context) error) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), notifyTimeout)
		defer cancel()
		if err := fn(ctx); err != nil {
			e.log.Warn("seat event delivery failed", "event", event, "showtime_id", showtimeID, "error", err)
		}
	}()
}
