// Package redis implements the seat lock store on Redis so that locks
// survive process restarts and can be shared by multiple instances.
// Each lock lives in its own key with a matching native TTL; the TTL
// is a safety net, the authoritative expiry is still the expires_at
// field compared at read time.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

const showtimesKey = "seatlock:showtimes"

// lockRecord is the JSON payload stored per seat key.
type lockRecord struct {
	HolderID  string    `json:"holder_id"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (r lockRecord) active(now time.Time) bool { return r.ExpiresAt.After(now) }

// SeatLockStore keys:
//
//	seatlock:{showtime}:{seat}  STRING, JSON lockRecord, PX = ttl
//	seatlock:{showtime}:seats   SET of seat tokens with a lock key
//	seatlock:showtimes          SET of showtimes with any lock key
//
// The index sets let the sweeper enumerate locks even after native
// TTLs have deleted the underlying keys; stale members are pruned
// opportunistically on read.
type SeatLockStore struct {
	client *redis.Client
}

func NewSeatLockStore(client *redis.Client) *SeatLockStore {
	return &SeatLockStore{client: client}
}

func seatKey(showtimeID, seatID string) string {
	return fmt.Sprintf("seatlock:%s:%s", showtimeID, seatID)
}

func seatsKey(showtimeID string) string {
	return fmt.Sprintf("seatlock:%s:seats", showtimeID)
}

func (s *SeatLockStore) ActiveLocks(ctx context.Context, showtimeID string, now time.Time) ([]model.SeatLock, error) {
	seats, err := s.client.SMembers(ctx, seatsKey(showtimeID)).Result()
	if err != nil {
		return nil, err
	}
	var locks []model.SeatLock
	for _, seatID := range seats {
		rec, ok, err := s.getRecord(ctx, showtimeID, seatID)
		if err != nil {
			return nil, err
		}
		if !ok || !rec.active(now) {
			continue
		}
		locks = append(locks, model.SeatLock{
			ShowtimeID: showtimeID,
			SeatID:     seatID,
			HolderID:   rec.HolderID,
			CreatedAt:  rec.CreatedAt,
			ExpiresAt:  rec.ExpiresAt,
		})
	}
	return locks, nil
}

func (s *SeatLockStore) Upsert(ctx context.Context, showtimeID, seatID, holderID string, now time.Time, ttl time.Duration) error {
	key := seatKey(showtimeID, seatID)
	rec, ok, err := s.getRecord(ctx, showtimeID, seatID)
	if err != nil {
		return err
	}

	createdAt := now
	if ok && rec.active(now) {
		if rec.HolderID != holderID {
			return reservation.ErrLockHeld
		}
		createdAt = rec.CreatedAt
	}
	payload, err := json.Marshal(lockRecord{HolderID: holderID, CreatedAt: createdAt, ExpiresAt: now.Add(ttl)})
	if err != nil {
		return err
	}

	if !ok {
		// Fresh seat: SET NX so a concurrent instance cannot slip in
		// between our read and write.
		set, err := s.client.SetNX(ctx, key, string(payload), ttl).Result()
		if err != nil {
			return err
		}
		if !set {
			return reservation.ErrLockHeld
		}
	} else {
		// Renewal or takeover of an expired record: plain SET resets
		// the native TTL alongside expires_at.
		if err := s.client.Set(ctx, key, string(payload), ttl).Err(); err != nil {
			return err
		}
	}
	if err := s.client.SAdd(ctx, seatsKey(showtimeID), seatID).Err(); err != nil {
		return err
	}
	return s.client.SAdd(ctx, showtimesKey, showtimeID).Err()
}

func (s *SeatLockStore) Release(ctx context.Context, showtimeID, seatID, holderID string) error {
	rec, ok, err := s.getRecord(ctx, showtimeID, seatID)
	if err != nil {
		return err
	}
	if !ok || rec.HolderID != holderID {
		return nil // idempotent: nothing of ours to release
	}
	if err := s.client.Del(ctx, seatKey(showtimeID, seatID)).Err(); err != nil {
		return err
	}
	return s.client.SRem(ctx, seatsKey(showtimeID), seatID).Err()
}

func (s *SeatLockStore) ReleaseAllForHolder(ctx context.Context, showtimeID, holderID string) ([]string, error) {
	seats, err := s.client.SMembers(ctx, seatsKey(showtimeID)).Result()
	if err != nil {
		return nil, err
	}
	var freed []string
	for _, seatID := range seats {
		rec, ok, err := s.getRecord(ctx, showtimeID, seatID)
		if err != nil {
			return nil, err
		}
		if !ok || rec.HolderID != holderID {
			continue
		}
		if err := s.client.Del(ctx, seatKey(showtimeID, seatID)).Err(); err != nil {
			return nil, err
		}
		if err := s.client.SRem(ctx, seatsKey(showtimeID), seatID).Err(); err != nil {
			return nil, err
		}
		freed = append(freed, seatID)
	}
	return freed, nil
}

func (s *SeatLockStore) PurgeExpired(ctx context.Context, showtimeID string, now time.Time) ([]string, error) {
	seats, err := s.client.SMembers(ctx, seatsKey(showtimeID)).Result()
	if err != nil {
		return nil, err
	}
	var freed []string
	for _, seatID := range seats {
		rec, ok, err := s.getRecord(ctx, showtimeID, seatID)
		if err != nil {
			return nil, err
		}
		if ok && rec.active(now) {
			continue
		}
		// Either the native TTL already deleted the key or the record
		// is past expires_at; drop both the key and the index member.
		if ok {
			if err := s.client.Del(ctx, seatKey(showtimeID, seatID)).Err(); err != nil {
				return nil, err
			}
		}
		if err := s.client.SRem(ctx, seatsKey(showtimeID), seatID).Err(); err != nil {
			return nil, err
		}
		freed = append(freed, seatID)
	}
	remaining, err := s.client.SCard(ctx, seatsKey(showtimeID)).Result()
	if err != nil {
		return nil, err
	}
	if remaining == 0 {
		if err := s.client.SRem(ctx, showtimesKey, showtimeID).Err(); err != nil {
			return nil, err
		}
	}
	return freed, nil
}

func (s *SeatLockStore) ShowtimeIDs(ctx context.Context) ([]string, error) {
	return s.client.SMembers(ctx, showtimesKey).Result()
}

func (s *SeatLockStore) getRecord(ctx context.Context, showtimeID, seatID string) (lockRecord, bool, error) {
	raw, err := s.client.Get(ctx, seatKey(showtimeID, seatID)).Result()
	if err == redis.Nil {
		return lockRecord{}, false, nil
	}
	if err != nil {
		return lockRecord{}, false, err
	}
	var rec lockRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return lockRecord{}, false, fmt.Errorf("decode lock record %s: %w", seatKey(showtimeID, seatID), err)
	}
	return rec, true, nil
}

var _ reservation.SeatLockStore = (*SeatLockStore)(nil)
