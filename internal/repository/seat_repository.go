package repository

import (
	"context"
	"database/sql"

	"github.com/oveida/ticketing/internal/model"
)

// SeatRef identifies a seat within its event.  It is the unit the
// ledger reconciliation works with when rebuilding sold markers.
type SeatRef struct {
	EventID int64
	SeatID  int64
}

// SeatRepo provides data access to the seats table.  The table is the
// authoritative source for seat state: the Redis sold markers are a
// derived cache rebuilt from it on startup.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo returns a new SeatRepo bound to the provided database.
func NewSeatRepo(db *sql.DB) *SeatRepo { return &SeatRepo{db: db} }

// MarkSold conditionally updates a single seat to SOLD, matched on
// (id, event_id).  It returns the number of affected rows; zero means
// the ids were invalid and the caller must not proceed with any cache
// side effects.
func (r *SeatRepo) MarkSold(ctx context.Context, eventID, seatID int64) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE seats SET status = ? WHERE id = ? AND event_id = ?`,
		model.SeatSold, seatID, eventID,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// FindSold returns every (event_id, id) pair currently SOLD.  Used by
// the ledger to repopulate sold markers after a restart; a full scan
// is the accepted cost of never letting the cache drift from the
// authoritative store.
func (r *SeatRepo) FindSold(ctx context.Context) ([]SeatRef, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT event_id, id FROM seats WHERE status = ?`, model.SeatSold)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var refs []SeatRef
	for rows.Next() {
		var ref SeatRef
		if err := rows.Scan(&ref.EventID, &ref.SeatID); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return refs, nil
}

// ListByEvent returns all seats of an event ordered by row and column,
// for the seat-map snapshot endpoint.  An event with no seat rows
// yields an empty slice; existence of the event itself is the caller's
// check (EventRepo.GetByID).
func (r *SeatRepo) ListByEvent(ctx context.Context, eventID int64) ([]model.Seat, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, row_no, col_no, price, status
		   FROM seats
		  WHERE event_id = ?
		  ORDER BY row_no ASC, col_no ASC`, eventID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		var s model.Seat
		if err := rows.Scan(&s.ID, &s.EventID, &s.RowNo, &s.ColNo, &s.Price, &s.Status); err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return seats, nil
}

// ResetEvent sets every seat of an event back to AVAILABLE.  Part of
// the administrative bulk reset; callers are responsible for the
// matching cache invalidation (hold keys and sold markers).
func (r *SeatRepo) ResetEvent(ctx context.Context, eventID int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE seats SET status = ? WHERE event_id = ?`,
		model.SeatAvailable, eventID,
	)
	return err
}
