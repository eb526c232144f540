// Package mysql implements the reservation stores on top of MySQL.
// All timestamps are stored and compared in UTC; callers must pass
// UTC-normalized clocks.  The engine's per-showtime boundary already
// serializes mutations within one process, so the transactions here
// only need to guard against other instances sharing the database.
package mysql

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

const mysqlTimeLayout = "2006-01-02 15:04:05"

// SeatLockStore persists seat locks in the seat_locks table:
//
//	CREATE TABLE seat_locks (
//	    showtime_id VARCHAR(64)  NOT NULL,
//	    seat_id     VARCHAR(16)  NOT NULL,
//	    holder_id   VARCHAR(128) NOT NULL,
//	    created_at  DATETIME     NOT NULL,
//	    expires_at  DATETIME     NOT NULL,
//	    PRIMARY KEY (showtime_id, seat_id)
//	);
type SeatLockStore struct {
	db *sql.DB
}

func NewSeatLockStore(db *sql.DB) *SeatLockStore { return &SeatLockStore{db: db} }

func (s *SeatLockStore) ActiveLocks(ctx context.Context, showtimeID string, now time.Time) ([]model.SeatLock, error) {
	const q = `SELECT showtime_id, seat_id, holder_id, created_at, expires_at
	           FROM seat_locks
	           WHERE showtime_id = ? AND expires_at > ?`
	rows, err := s.db.QueryContext(ctx, q, showtimeID, now.UTC().Format(mysqlTimeLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var locks []model.SeatLock
	for rows.Next() {
		var l model.SeatLock
		if err := rows.Scan(&l.ShowtimeID, &l.SeatID, &l.HolderID, &l.CreatedAt, &l.ExpiresAt); err != nil {
			return nil, err
		}
		locks = append(locks, l)
	}
	return locks, rows.Err()
}

// Upsert places or renews the lock inside a transaction.  The current
// row is read FOR UPDATE so two instances racing for the same seat
// serialize on the row lock; an active row owned by someone else makes
// the call fail with reservation.ErrLockHeld.
func (s *SeatLockStore) Upsert(ctx context.Context, showtimeID, seatID, holderID string, now time.Time, ttl time.Duration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var owner string
	var createdAt, expiresAt time.Time
	nowUTC := now.UTC()
	err = tx.QueryRowContext(ctx,
		`SELECT holder_id, created_at, expires_at FROM seat_locks
		 WHERE showtime_id = ? AND seat_id = ? FOR UPDATE`,
		showtimeID, seatID,
	).Scan(&owner, &createdAt, &expiresAt)
	switch {
	case err == sql.ErrNoRows:
		createdAt = nowUTC
	case err != nil:
		return err
	case expiresAt.After(nowUTC) && owner != holderID:
		return reservation.ErrLockHeld
	case owner != holderID:
		// Expired foreign lock: take it over with a fresh created_at.
		createdAt = nowUTC
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO seat_locks (showtime_id, seat_id, holder_id, created_at, expires_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON DUPLICATE KEY UPDATE holder_id = VALUES(holder_id),
		                         created_at = VALUES(created_at),
		                         expires_at = VALUES(expires_at)`,
		showtimeID, seatID, holderID,
		createdAt.Format(mysqlTimeLayout), nowUTC.Add(ttl).Format(mysqlTimeLayout),
	)
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

func (s *SeatLockStore) Release(ctx context.Context, showtimeID, seatID, holderID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM seat_locks WHERE showtime_id = ? AND seat_id = ? AND holder_id = ?`,
		showtimeID, seatID, holderID,
	)
	return err
}

func (s *SeatLockStore) ReleaseAllForHolder(ctx context.Context, showtimeID, holderID string) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	seatIDs, err := collectSeatIDs(ctx, tx,
		`SELECT seat_id FROM seat_locks WHERE showtime_id = ? AND holder_id = ?`,
		showtimeID, holderID)
	if err != nil {
		return nil, err
	}
	if len(seatIDs) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM seat_locks WHERE showtime_id = ? AND holder_id = ?`,
			showtimeID, holderID,
		); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return seatIDs, nil
}

func (s *SeatLockStore) PurgeExpired(ctx context.Context, showtimeID string, now time.Time) ([]string, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	cutoff := now.UTC().Format(mysqlTimeLayout)
	freed, err := collectSeatIDs(ctx, tx,
		`SELECT seat_id FROM seat_locks WHERE showtime_id = ? AND expires_at <= ?`,
		showtimeID, cutoff)
	if err != nil {
		return nil, err
	}
	if len(freed) > 0 {
		if _, err := tx.ExecContext(ctx,
			`DELETE FROM seat_locks WHERE showtime_id = ? AND expires_at <= ?`,
			showtimeID, cutoff,
		); err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	committed = true
	return freed, nil
}

func (s *SeatLockStore) ShowtimeIDs(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT showtime_id FROM seat_locks`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func collectSeatIDs(ctx context.Context, tx *sql.Tx, query string, args ...any) ([]string, error) {
	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

var _ reservation.SeatLockStore = (*SeatLockStore)(nil)
