package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-sql-driver/mysql"

	"github.com/oveida/ticketing/internal/model"
)

// mysqlDuplicateEntry is the server error number for a unique-key
// violation (ER_DUP_ENTRY).
const mysqlDuplicateEntry = 1062

// OrderRepo provides data access to the orders table.  Orders are
// created once per idempotency key and afterwards mutated only by the
// saga worker; rows are never deleted.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the provided database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// DB exposes the underlying pool so callers can open transactions that
// span orders and the outbox.
func (r *OrderRepo) DB() *sql.DB { return r.db }

// Create inserts a new CREATED order.  The orders.idempotency_key
// unique index is the concurrency guard: when two identical requests
// race, exactly one insert wins and the loser receives
// ErrDuplicateKey, after which it should re-read the stored row.
func (r *OrderRepo) Create(ctx context.Context, o *model.Order) error {
	seatJSON, err := model.EncodeSeatIDs(o.SeatIDs)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO orders (event_id, seat_ids, status, idempotency_key, trace_id)
		 VALUES (?, ?, ?, ?, ?)`,
		o.EventID, seatJSON, model.OrderCreated, o.IdempotencyKey, o.TraceID,
	)
	if err != nil {
		var me *mysql.MySQLError
		if errors.As(err, &me) && me.Number == mysqlDuplicateEntry {
			return ErrDuplicateKey
		}
		return err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	o.ID = id
	o.Status = model.OrderCreated
	return nil
}

// GetByID returns a single order or ErrOrderNotFound.
func (r *OrderRepo) GetByID(ctx context.Context, id int64) (*model.Order, error) {
	return r.getOne(ctx, `WHERE id = ?`, id)
}

// GetByIdempotencyKey returns the order created under the given key,
// or ErrOrderNotFound.
func (r *OrderRepo) GetByIdempotencyKey(ctx context.Context, key string) (*model.Order, error) {
	return r.getOne(ctx, `WHERE idempotency_key = ?`, key)
}

func (r *OrderRepo) getOne(ctx context.Context, where string, arg interface{}) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT id, event_id, seat_ids, status, idempotency_key, trace_id, created_at, updated_at
		   FROM orders `+where, arg)
	o, err := scanOrder(row.Scan)
	if err == sql.ErrNoRows {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return o, nil
}

// FindByStatus returns all orders in the given status, oldest first.
// The saga worker polls this with CREATED on every tick.
func (r *OrderRepo) FindByStatus(ctx context.Context, status string) ([]model.Order, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, event_id, seat_ids, status, idempotency_key, trace_id, created_at, updated_at
		   FROM orders
		  WHERE status = ?
		  ORDER BY id ASC`, status)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows.Scan)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

// UpdateStatusTx conditionally moves an order from one status to
// another inside the provided transaction and reports the number of
// affected rows.  The WHERE clause on the previous status is the
// row-scoped guard against lost updates under concurrent pollers.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, orderID int64, from, to string) (int64, error) {
	res, err := tx.ExecContext(ctx,
		`UPDATE orders SET status = ?, updated_at = NOW() WHERE id = ? AND status = ?`,
		to, orderID, from,
	)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// scanOrder maps one orders row, decoding the JSON seat_ids column.
// trace_id is nullable for orders created before tracing existed.
func scanOrder(scan func(dest ...interface{}) error) (*model.Order, error) {
	var (
		o        model.Order
		seatJSON string
		traceID  sql.NullString
	)
	if err := scan(&o.ID, &o.EventID, &seatJSON, &o.Status, &o.IdempotencyKey,
		&traceID, &o.CreatedAt, &o.UpdatedAt); err != nil {
		return nil, err
	}
	ids, err := model.DecodeSeatIDs(seatJSON)
	if err != nil {
		return nil, err
	}
	o.SeatIDs = ids
	o.TraceID = traceID.String
	return &o, nil
}
