package queue

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatAuditLine(t *testing.T) {
	locked := SeatEvent{
		Type:       EventSeatsLocked,
		ShowtimeID: "st-1",
		SeatIDs:    []string{"A1", "A2"},
		HolderID:   "user-1",
		ExpiresAt:  "2025-06-01T20:05:00Z",
		OccurredAt: "2025-06-01T20:00:00Z",
	}
	assert.Equal(t,
		"[2025-06-01T20:00:00Z] Seats locked | showtime=st-1 | holder=user-1 | expires_at=2025-06-01T20:05:00Z | seats=[A1,A2]\n",
		formatAuditLine(locked))

	booked := SeatEvent{
		Type:       EventSeatsBooked,
		ShowtimeID: "st-1",
		SeatIDs:    []string{"A1"},
		PurchaseID: "purchase-1",
		OccurredAt: "2025-06-01T20:01:00Z",
	}
	assert.Equal(t,
		"[2025-06-01T20:01:00Z] Seats booked | showtime=st-1 | purchase=purchase-1 | seats=[A1]\n",
		formatAuditLine(booked))

	freed := SeatEvent{
		Type:       EventSeatsFreed,
		ShowtimeID: "st-1",
		SeatIDs:    []string{"A1"},
		OccurredAt: "2025-06-01T20:02:00Z",
	}
	assert.Equal(t,
		"[2025-06-01T20:02:00Z] Seats freed | showtime=st-1 | seats=[A1]\n",
		formatAuditLine(freed))
}

func TestFormatAuditLine_UnknownType(t *testing.T) {
	line := formatAuditLine(SeatEvent{Type: "seats.exploded", ShowtimeID: "st-1", OccurredAt: "now"})
	require.Contains(t, line, `Unknown seat event "seats.exploded"`)
	require.Contains(t, line, "showtime=st-1")
}
