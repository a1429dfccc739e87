package worker

import (
	"context"
	"encoding/json"
	"log"
	"time"

	"github.com/oveida/ticketing/internal/model"
	"github.com/oveida/ticketing/internal/payment"
	"github.com/oveida/ticketing/internal/queue"
	"github.com/oveida/ticketing/internal/trace"
)

// SagaStore is the transactional order/outbox boundary the saga
// drives.  Finalize must apply the status change and the outbox insert
// in one atomic unit, reporting done=false when the order was no
// longer CREATED.
type SagaStore interface {
	FindCreated(ctx context.Context) ([]model.Order, error)
	Finalize(ctx context.Context, orderID int64, status string, ev *model.OutboxEvent) (bool, error)
}

// Saga polls CREATED orders, asks the payment authorizer for a
// verdict, and finalizes the order plus exactly one outbox event in a
// single transaction.  When the payment call errors or the outcome is
// undecidable the order stays CREATED and is retried on the next tick;
// the retry is implicit, unbounded and without backoff, mirroring the
// upstream workflow this service replaces.
type Saga struct {
	store    SagaStore
	payments payment.Authorizer
	interval time.Duration
}

// NewSaga returns a saga orchestrator ticking at the given interval.
func NewSaga(store SagaStore, payments payment.Authorizer, interval time.Duration) *Saga {
	if interval <= 0 {
		interval = time.Second
	}
	return &Saga{store: store, payments: payments, interval: interval}
}

// Run ticks until ctx is cancelled.
func (s *Saga) Run(ctx context.Context) {
	t := time.NewTicker(s.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[SAGA] stopping")
			return
		case <-t.C:
			s.tick(ctx)
		}
	}
}

func (s *Saga) tick(ctx context.Context) {
	orders, err := s.store.FindCreated(ctx)
	if err != nil {
		log.Printf("[SAGA] find created failed: %v", err)
		return
	}
	for i := range orders {
		s.processOrder(ctx, &orders[i])
	}
}

// processOrder runs one order through payment and finalization.  No
// lock is held across the payment call; the row-scoped conditional
// update inside Finalize is the only guard.
func (s *Saga) processOrder(ctx context.Context, o *model.Order) {
	traceID := o.TraceID
	if traceID == "" {
		traceID = trace.NewID()
	}
	log.Printf("[SAGA] processing orderId=%d traceId=%s", o.ID, traceID)

	approved, err := s.payments.Authorize(ctx, o.ID, traceID)
	if err != nil {
		// Left CREATED; the next tick retries.
		log.Printf("[SAGA] payment undecided orderId=%d traceId=%s error=%v", o.ID, traceID, err)
		return
	}

	status := model.OrderCancelled
	eventType := queue.EventPaymentFailed
	if approved {
		status = model.OrderConfirmed
		eventType = queue.EventPaymentSuccess
	}

	payload, err := json.Marshal(queue.PaymentEvent{
		OrderID:   o.ID,
		EventID:   o.EventID,
		SeatIDs:   o.SeatIDs,
		EventType: eventType,
		TraceID:   traceID,
	})
	if err != nil {
		log.Printf("[SAGA] payload marshal failed orderId=%d: %v", o.ID, err)
		return
	}

	done, err := s.store.Finalize(ctx, o.ID, status, &model.OutboxEvent{
		EventType: eventType,
		Payload:   string(payload),
		TraceID:   traceID,
	})
	if err != nil {
		log.Printf("[SAGA] finalize failed orderId=%d traceId=%s error=%v", o.ID, traceID, err)
		return
	}
	if !done {
		log.Printf("[SAGA] order already finalized elsewhere orderId=%d traceId=%s", o.ID, traceID)
		return
	}
	log.Printf("[SAGA] order %s orderId=%d traceId=%s", status, o.ID, traceID)
}
