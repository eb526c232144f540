package model

import "time"

// LedgerEntry is the permanent record of a booked seat.  Entries are
// created only by the atomic lock-to-purchase transition and are
// immutable afterwards: a seat, once booked, is never reassigned by
// this subsystem.  Cancellation is an administrative action handled
// elsewhere.
//
// Fields:
//  ShowtimeID – showtime the seat belongs to.
//  SeatID     – seat token, unique within the showtime's ledger.
//  PurchaseID – purchase that claimed the seat (external entity,
//               referenced by ID only).
//  CreatedAt  – when the booking was recorded.
type LedgerEntry struct {
	ShowtimeID string    // seat_ledger.showtime_id
	SeatID     string    // seat_ledger.seat_id
	PurchaseID string    // seat_ledger.purchase_id
	CreatedAt  time.Time // seat_ledger.created_at
}
