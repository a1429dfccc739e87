package repository

import (
	"context"
	"database/sql"

	"github.com/oveida/ticketing/internal/model"
)

// EventRepo provides read access to the events table.  Event CRUD is
// owned by an external catalog administration tool; this service only
// lists events and verifies their existence.
type EventRepo struct {
	db *sql.DB
}

// NewEventRepo returns a new EventRepo bound to the provided database.
func NewEventRepo(db *sql.DB) *EventRepo { return &EventRepo{db: db} }

// List returns all events ordered by date.
func (r *EventRepo) List(ctx context.Context) ([]model.Event, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, title, description, date_time FROM events ORDER BY date_time ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.Event
	for rows.Next() {
		var ev model.Event
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.Description, &ev.DateTime); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// GetByID returns a single event or ErrEventNotFound.
func (r *EventRepo) GetByID(ctx context.Context, id int64) (*model.Event, error) {
	var ev model.Event
	err := r.db.QueryRowContext(ctx,
		`SELECT id, title, description, date_time FROM events WHERE id = ?`, id).
		Scan(&ev.ID, &ev.Title, &ev.Description, &ev.DateTime)
	if err == sql.ErrNoRows {
		return nil, ErrEventNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}
