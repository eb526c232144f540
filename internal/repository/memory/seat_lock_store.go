// Package memory provides map-based implementations of the
// reservation stores.  They are the default for single-instance
// deployments and back the test suite; multi-instance deployments
// should use the mysql or redis implementations so state survives
// process restarts.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

// SeatLockStore keeps active locks per showtime in process memory.
// Expired records stay in the map until PurgeExpired runs, but every
// reader filters them out by timestamp, so eventual cleanup never
// affects correctness.
type SeatLockStore struct {
	mu    sync.RWMutex
	locks map[string]map[string]model.SeatLock // showtimeID -> seatID -> lock
}

func NewSeatLockStore() *SeatLockStore {
	return &SeatLockStore{locks: make(map[string]map[string]model.SeatLock)}
}

func (s *SeatLockStore) ActiveLocks(_ context.Context, showtimeID string, now time.Time) ([]model.SeatLock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.SeatLock
	for _, l := range s.locks[showtimeID] {
		if l.Active(now) {
			out = append(out, l)
		}
	}
	return out, nil
}

func (s *SeatLockStore) Upsert(_ context.Context, showtimeID, seatID, holderID string, now time.Time, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byShowtime := s.locks[showtimeID]
	if byShowtime == nil {
		byShowtime = make(map[string]model.SeatLock)
		s.locks[showtimeID] = byShowtime
	}
	createdAt := now
	if existing, ok := byShowtime[seatID]; ok && existing.Active(now) {
		if !existing.HeldBy(holderID) {
			return reservation.ErrLockHeld
		}
		createdAt = existing.CreatedAt // renewal keeps the original acquisition time
	}
	byShowtime[seatID] = model.SeatLock{
		ShowtimeID: showtimeID,
		SeatID:     seatID,
		HolderID:   holderID,
		CreatedAt:  createdAt,
		ExpiresAt:  now.Add(ttl),
	}
	return nil
}

func (s *SeatLockStore) Release(_ context.Context, showtimeID, seatID, holderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	byShowtime := s.locks[showtimeID]
	if l, ok := byShowtime[seatID]; ok && l.HeldBy(holderID) {
		delete(byShowtime, seatID)
		if len(byShowtime) == 0 {
			delete(s.locks, showtimeID)
		}
	}
	return nil
}

func (s *SeatLockStore) ReleaseAllForHolder(_ context.Context, showtimeID, holderID string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byShowtime := s.locks[showtimeID]
	var freed []string
	for seatID, l := range byShowtime {
		if l.HeldBy(holderID) {
			delete(byShowtime, seatID)
			freed = append(freed, seatID)
		}
	}
	if len(byShowtime) == 0 {
		delete(s.locks, showtimeID)
	}
	return freed, nil
}

func (s *SeatLockStore) PurgeExpired(_ context.Context, showtimeID string, now time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byShowtime := s.locks[showtimeID]
	var freed []string
	for seatID, l := range byShowtime {
		if !l.Active(now) {
			delete(byShowtime, seatID)
			freed = append(freed, seatID)
		}
	}
	if len(byShowtime) == 0 {
		delete(s.locks, showtimeID)
	}
	return freed, nil
}

func (s *SeatLockStore) ShowtimeIDs(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.locks))
	for id := range s.locks {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ reservation.SeatLockStore = (*SeatLockStore)(nil)
