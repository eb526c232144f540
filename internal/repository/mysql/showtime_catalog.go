package mysql

import (
	"context"
	"database/sql"

	"github.com/cartelera/seat-reservation/internal/model"
	"github.com/cartelera/seat-reservation/internal/reservation"
)

// ShowtimeCatalog reads seat maps owned by the scheduling subsystem:
//
//	CREATE TABLE showtimes (
//	    id          VARCHAR(64) NOT NULL PRIMARY KEY,
//	    price_cents INT UNSIGNED NOT NULL
//	);
//	CREATE TABLE showtime_seats (
//	    showtime_id VARCHAR(64) NOT NULL,
//	    seat_id     VARCHAR(16) NOT NULL,
//	    PRIMARY KEY (showtime_id, seat_id)
//	);
//
// This package never writes to either table; showtime CRUD is an
// external collaborator.
type ShowtimeCatalog struct {
	db *sql.DB
}

func NewShowtimeCatalog(db *sql.DB) *ShowtimeCatalog { return &ShowtimeCatalog{db: db} }

func (c *ShowtimeCatalog) Showtime(ctx context.Context, showtimeID string) (model.Showtime, error) {
	var priceCents uint32
	err := c.db.QueryRowContext(ctx,
		`SELECT price_cents FROM showtimes WHERE id = ?`, showtimeID,
	).Scan(&priceCents)
	if err == sql.ErrNoRows {
		return model.Showtime{}, reservation.ErrShowtimeUnknown
	}
	if err != nil {
		return model.Showtime{}, err
	}

	rows, err := c.db.QueryContext(ctx,
		`SELECT seat_id FROM showtime_seats WHERE showtime_id = ?`, showtimeID)
	if err != nil {
		return model.Showtime{}, err
	}
	defer rows.Close()
	var seats []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return model.Showtime{}, err
		}
		seats = append(seats, id)
	}
	if err := rows.Err(); err != nil {
		return model.Showtime{}, err
	}
	return model.NewShowtime(showtimeID, seats, priceCents), nil
}

var _ reservation.ShowtimeCatalog = (*ShowtimeCatalog)(nil)
