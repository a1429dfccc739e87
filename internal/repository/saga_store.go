package repository

import (
	"context"
	"database/sql"

	"github.com/oveida/ticketing/internal/model"
)

// SagaStore bundles the order and outbox repositories behind one
// transaction boundary for the saga worker.  Finalize is the single
// atomic unit the saga pattern depends on: the order status change and
// the outbox insert either both commit or neither does.
type SagaStore struct {
	db     *sql.DB
	orders *OrderRepo
	outbox *OutboxRepo
}

// NewSagaStore returns a SagaStore over the given pool and repositories.
func NewSagaStore(db *sql.DB, orders *OrderRepo, outbox *OutboxRepo) *SagaStore {
	return &SagaStore{db: db, orders: orders, outbox: outbox}
}

// FindCreated returns all orders still awaiting a payment outcome.
func (s *SagaStore) FindCreated(ctx context.Context) ([]model.Order, error) {
	return s.orders.FindByStatus(ctx, model.OrderCreated)
}

// Finalize moves an order from CREATED to the given terminal status
// and inserts exactly one outbox event, in one transaction.  The
// status update is conditional on the order still being CREATED; when
// another poller already finalized it, zero rows match, the outbox
// insert is skipped and the transaction is rolled back, reporting
// done=false.
func (s *SagaStore) Finalize(ctx context.Context, orderID int64, status string, ev *model.OutboxEvent) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	rows, err := s.orders.UpdateStatusTx(ctx, tx, orderID, model.OrderCreated, status)
	if err != nil {
		return false, err
	}
	if rows == 0 {
		return false, nil
	}
	if err := s.outbox.InsertTx(ctx, tx, ev); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	committed = true
	return true, nil
}
