package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/go-sql-driver/mysql"

	"github.com/cartelera/seat-reservation/internal/reservation"
)

// mysqlDuplicateEntry is the server error number for a unique key
// violation.
const mysqlDuplicateEntry = 1062

// SeatLedger persists permanent bookings in the seat_ledger table:
//
//	CREATE TABLE seat_ledger (
//	    showtime_id VARCHAR(64)  NOT NULL,
//	    seat_id     VARCHAR(16)  NOT NULL,
//	    purchase_id VARCHAR(64)  NOT NULL,
//	    created_at  DATETIME     NOT NULL DEFAULT UTC_TIMESTAMP(),
//	    PRIMARY KEY (showtime_id, seat_id)
//	);
//
// The primary key enforces the one-entry-per-seat invariant even when
// multiple instances share the database.
type SeatLedger struct {
	db *sql.DB
}

func NewSeatLedger(db *sql.DB) *SeatLedger { return &SeatLedger{db: db} }

func (s *SeatLedger) BookedSeats(ctx context.Context, showtimeID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT seat_id FROM seat_ledger WHERE showtime_id = ?`, showtimeID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		seats = append(seats, id)
	}
	return seats, rows.Err()
}

func (s *SeatLedger) IsBooked(ctx context.Context, showtimeID, seatID string) (bool, error) {
	var one int
	err := s.db.QueryRowContext(ctx,
		`SELECT 1 FROM seat_ledger WHERE showtime_id = ? AND seat_id = ?`,
		showtimeID, seatID,
	).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// BookSeats inserts the whole batch in one transaction.  Seats that
// already have an entry are reported up front; a unique key violation
// from a concurrent instance maps to the same conflict error, and in
// either case the rollback leaves no partial booking behind.
func (s *SeatLedger) BookSeats(ctx context.Context, showtimeID string, seatIDs []string, purchaseID string) error {
	if len(seatIDs) == 0 {
		return nil
	}
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

	args := make([]any, 0, len(seatIDs)+1)
	args = append(args, showtimeID)
	for _, id := range seatIDs {
		args = append(args, id)
	}
	conflicts, err := collectSeatIDs(ctx, tx,
		fmt.Sprintf(`SELECT seat_id FROM seat_ledger
		             WHERE showtime_id = ? AND seat_id IN (%s) FOR UPDATE`,
			placeholders(len(seatIDs))),
		args...)
	if err != nil {
		return err
	}
	if len(conflicts) > 0 {
		return fmt.Errorf("%w: %s", reservation.ErrSeatBooked, strings.Join(conflicts, ","))
	}

	insert := `INSERT INTO seat_ledger (showtime_id, seat_id, purchase_id, created_at) VALUES `
	insertArgs := make([]any, 0, len(seatIDs)*3)
	for i, id := range seatIDs {
		if i > 0 {
			insert += ","
		}
		insert += "(?, ?, ?, UTC_TIMESTAMP())"
		insertArgs = append(insertArgs, showtimeID, id, purchaseID)
	}
	if _, err := tx.ExecContext(ctx, insert, insertArgs...); err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return fmt.Errorf("%w: %s", reservation.ErrSeatBooked, strings.Join(seatIDs, ","))
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}

var _ reservation.SeatLedger = (*SeatLedger)(nil)
