package model

// Showtime describes the seat space of a single scheduled screening.
// Each showtime owns an independent seat map: a fixed set of seat
// tokens (e.g. "A1".."F12"), a capacity derived from that set and a
// uniform ticket price.  Seat tokens follow the row+number convention
// and are validated against this map before any lock or booking is
// attempted.
//
// Fields:
//  ID         – opaque showtime identifier.
//  PriceCents – ticket price per seat in cents.
type Showtime struct {
	ID         string              // showtimes.id
	PriceCents uint32              // showtimes.price_cents
	seats      map[string]struct{} // valid seat tokens
}

// NewShowtime builds a Showtime from its identifier, seat tokens and
// price.  Duplicate tokens are collapsed.
func NewShowtime(id string, seatIDs []string, priceCents uint32) Showtime {
	seats := make(map[string]struct{}, len(seatIDs))
	for _, s := range seatIDs {
		seats[s] = struct{}{}
	}
	return Showtime{ID: id, PriceCents: priceCents, seats: seats}
}

// Capacity returns the number of seats in the showtime's seat map.
func (s Showtime) Capacity() int { return len(s.seats) }

// HasSeat reports whether the given token exists in the seat map.
func (s Showtime) HasSeat(seatID string) bool {
	_, ok := s.seats[seatID]
	return ok
}

// SeatIDs returns a copy of all seat tokens in the map.  Order is not
// specified.
func (s Showtime) SeatIDs() []string {
	ids := make([]string, 0, len(s.seats))
	for id := range s.seats {
		ids = append(ids, id)
	}
	return ids
}
