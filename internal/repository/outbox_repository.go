package repository

import (
	"context"
	"database/sql"

	"github.com/oveida/ticketing/internal/model"
)

// OutboxRepo provides data access to the outbox table.  Rows are
// inserted inside the business transaction that produced them (see
// SagaStore) and drained by the relay worker.
type OutboxRepo struct {
	db *sql.DB
}

// NewOutboxRepo returns a new OutboxRepo bound to the provided database.
func NewOutboxRepo(db *sql.DB) *OutboxRepo { return &OutboxRepo{db: db} }

// InsertTx writes a PENDING outbox row within the provided
// transaction.  The caller must commit or roll back; if the owning
// business change does not commit, neither does this row.
func (r *OutboxRepo) InsertTx(ctx context.Context, tx *sql.Tx, ev *model.OutboxEvent) error {
	res, err := tx.ExecContext(ctx,
		`INSERT INTO outbox (event_type, payload, status, trace_id) VALUES (?, ?, ?, ?)`,
		ev.EventType, ev.Payload, model.OutboxPending, ev.TraceID,
	)
	if err != nil {
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	ev.ID = id
	ev.Status = model.OutboxPending
	return nil
}

// FindPending returns all PENDING rows, oldest first.  The relay polls
// this on every tick; a crash between commit and publish simply leaves
// the row PENDING for the next tick (at-least-once delivery).
func (r *OutboxRepo) FindPending(ctx context.Context) ([]model.OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_type, payload, status, trace_id, created_at
		   FROM outbox
		  WHERE status = ?
		  ORDER BY id ASC`, model.OutboxPending)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var events []model.OutboxEvent
	for rows.Next() {
		var (
			ev      model.OutboxEvent
			traceID sql.NullString
		)
		if err := rows.Scan(&ev.ID, &ev.EventType, &ev.Payload, &ev.Status, &traceID, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.TraceID = traceID.String
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return events, nil
}

// MarkSent moves a row to SENT after a successful publish.
func (r *OutboxRepo) MarkSent(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, model.OutboxSent)
}

// MarkFailed moves a row to FAILED after a publish error.  FAILED is
// durable state, not an exception: the relay has no caller to raise
// to, and this design does not retry FAILED rows automatically.
func (r *OutboxRepo) MarkFailed(ctx context.Context, id int64) error {
	return r.setStatus(ctx, id, model.OutboxFailed)
}

func (r *OutboxRepo) setStatus(ctx context.Context, id int64, status string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox SET status = ?, updated_at = NOW() WHERE id = ?`, status, id)
	return err
}
