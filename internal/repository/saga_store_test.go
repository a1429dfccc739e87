package repository

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oveida/ticketing/internal/model"
)

func newSagaStoreMock(t *testing.T) (*SagaStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewSagaStore(db, NewOrderRepo(db), NewOutboxRepo(db)), mock
}

func outboxEvent() *model.OutboxEvent {
	return &model.OutboxEvent{
		EventType: "PAYMENT_SUCCESS",
		Payload:   `{"orderId":11}`,
		TraceID:   "trace-f",
	}
}

func TestFinalizeCommitsStatusAndOutboxTogether(t *testing.T) {
	store, mock := newSagaStoreMock(t)
	ev := outboxEvent()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(model.OrderConfirmed, int64(11), model.OrderCreated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(ev.EventType, ev.Payload, model.OutboxPending, ev.TraceID).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectCommit()

	done, err := store.Finalize(context.Background(), 11, model.OrderConfirmed, ev)
	require.NoError(t, err)
	assert.True(t, done)
	assert.Equal(t, int64(41), ev.ID)
	assert.Equal(t, model.OutboxPending, ev.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRollsBackWhenOutboxInsertFails(t *testing.T) {
	store, mock := newSagaStoreMock(t)

	// The status update has already executed inside the transaction;
	// the failed outbox insert must take it down too.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(model.OrderConfirmed, int64(11), model.OrderCreated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").
		WillReturnError(errors.New("outbox insert failed"))
	mock.ExpectRollback()

	done, err := store.Finalize(context.Background(), 11, model.OrderConfirmed, outboxEvent())
	assert.Error(t, err)
	assert.False(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeRollsBackWhenUpdateFails(t *testing.T) {
	store, mock := newSagaStoreMock(t)

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").
		WillReturnError(errors.New("connection lost"))
	mock.ExpectRollback()

	done, err := store.Finalize(context.Background(), 11, model.OrderCancelled, outboxEvent())
	assert.Error(t, err)
	assert.False(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeLostRaceCommitsNothing(t *testing.T) {
	store, mock := newSagaStoreMock(t)

	// Another poller already finalized the order, so the conditional
	// update matches zero rows: no outbox insert, no commit.
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(model.OrderConfirmed, int64(11), model.OrderCreated).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	done, err := store.Finalize(context.Background(), 11, model.OrderConfirmed, outboxEvent())
	require.NoError(t, err)
	assert.False(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFinalizeCommitErrorReported(t *testing.T) {
	store, mock := newSagaStoreMock(t)
	ev := outboxEvent()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders SET status").
		WithArgs(model.OrderConfirmed, int64(11), model.OrderCreated).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO outbox").
		WithArgs(ev.EventType, ev.Payload, model.OutboxPending, ev.TraceID).
		WillReturnResult(sqlmock.NewResult(41, 1))
	mock.ExpectCommit().WillReturnError(errors.New("deadlock"))

	done, err := store.Finalize(context.Background(), 11, model.OrderConfirmed, ev)
	assert.Error(t, err)
	assert.False(t, done)
	assert.NoError(t, mock.ExpectationsWereMet())
}
