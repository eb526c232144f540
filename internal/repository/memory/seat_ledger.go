package memory

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

// SeatLedger keeps permanent bookings per showtime in process memory.
// Entries are write-once: nothing in this package ever removes or
// reassigns a booked seat.
type SeatLedger struct {
	mu      sync.RWMutex
	entries map[string]map[string]model.LedgerEntry // showtimeID -> seatID -> entry
}

func NewSeatLedger() *SeatLedger {
	return &SeatLedger{entries: make(map[string]map[string]model.LedgerEntry)}
}

func (s *SeatLedger) BookedSeats(_ context.Context, showtimeID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byShowtime := s.entries[showtimeID]
	out := make([]string, 0, len(byShowtime))
	for seatID := range byShowtime {
		out = append(out, seatID)
	}
	return out, nil
}

func (s *SeatLedger) IsBooked(_ context.Context, showtimeID, seatID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[showtimeID][seatID]
	return ok, nil
}

func (s *SeatLedger) BookSeats(_ context.Context, showtimeID string, seatIDs []string, purchaseID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byShowtime := s.entries[showtimeID]
	if byShowtime == nil {
		byShowtime = make(map[string]model.LedgerEntry)
		s.entries[showtimeID] = byShowtime
	}
	// Verify the whole batch before touching anything so a conflict
	// leaves no partial booking behind.
	var conflicts []string
	for _, seatID := range seatIDs {
		if _, ok := byShowtime[seatID]; ok {
			conflicts = append(conflicts, seatID)
		}
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: %s", reservation.ErrSeatBooked, strings.Join(conflicts, ","))
	}
	now := time.Now().UTC()
	for _, seatID := range seatIDs {
		byShowtime[seatID] = model.LedgerEntry{
			ShowtimeID: showtimeID,
			SeatID:     seatID,
			PurchaseID: purchaseID,
			CreatedAt:  now,
		}
	}
	return nil
}

var _ reservation.SeatLedger = (*SeatLedger)(nil)
