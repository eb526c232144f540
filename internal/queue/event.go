// Package queue defines the seat-event payloads exchanged over the
// message broker, the publisher that emits them and the background
// consumer that audits them.
package queue

// Seat event types carried in SeatEvent.Type.
const (
	EventSeatsLocked = "seats.locked"
	EventSeatsBooked = "seats.booked"
	EventSeatsFreed  = "seats.freed"
)

// seatEventsQueue is the durable queue every seat event is published
// to and consumed from.
const seatEventsQueue = "seat.events"

// SeatEvent is published whenever the visible availability of a
// showtime changes: seats were locked, booked or freed.  It contains
// enough information for downstream consumers to broadcast, log or
// trigger analytics without querying the primary store.  HolderID,
// PurchaseID and ExpiresAt are populated depending on Type.
type SeatEvent struct {
	Type       string   `json:"type"`
	ShowtimeID string   `json:"showtime_id"`
	SeatIDs    []string `json:"seat_ids"`
	HolderID   string   `json:"holder_id,omitempty"`
	PurchaseID string   `json:"purchase_id,omitempty"`
	ExpiresAt  string   `json:"expires_at,omitempty"`
	OccurredAt string   `json:"occurred_at"`
}
