// Package worker contains the fixed-interval background loops: the
// outbox relay and the saga orchestrator.  Both assume a single active
// instance per deployment; see DESIGN.md for the multi-instance gap.
package worker

import (
	"context"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oveida/ticketing/internal/model"
	"github.com/oveida/ticketing/internal/queue"
	"github.com/oveida/ticketing/internal/trace"
)

// OutboxStore is the slice of the outbox repository the relay needs.
type OutboxStore interface {
	FindPending(ctx context.Context) ([]model.OutboxEvent, error)
	MarkSent(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64) error
}

// BusPublisher publishes a message body to a named queue.  Satisfied
// by *queue.Publisher.
type BusPublisher interface {
	Publish(ctx context.Context, queueName string, body []byte, headers amqp.Table) error
}

// OutboxRelay drains PENDING outbox rows to the message bus on a fixed
// tick.  Because rows only become visible after their owning
// transaction committed, a crash between commit and publish leaves the
// row PENDING for the next tick: delivery is at-least-once and
// consumers must be idempotent.  A publish error marks the row FAILED;
// FAILED rows are not retried by this component.
type OutboxRelay struct {
	store    OutboxStore
	bus      BusPublisher
	interval time.Duration
}

// NewOutboxRelay returns a relay ticking at the given interval.
func NewOutboxRelay(store OutboxStore, bus BusPublisher, interval time.Duration) *OutboxRelay {
	if interval <= 0 {
		interval = time.Second
	}
	return &OutboxRelay{store: store, bus: bus, interval: interval}
}

// Run ticks until ctx is cancelled.
func (r *OutboxRelay) Run(ctx context.Context) {
	t := time.NewTicker(r.interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Printf("[OUTBOX] relay stopping")
			return
		case <-t.C:
			r.tick(ctx)
		}
	}
}

// tick publishes every PENDING row once.
func (r *OutboxRelay) tick(ctx context.Context) {
	pending, err := r.store.FindPending(ctx)
	if err != nil {
		log.Printf("[OUTBOX] find pending failed: %v", err)
		return
	}
	for _, ev := range pending {
		// Carry the stored trace id; fall back to the current trace
		// context (or a fresh id) for rows written without one.
		traceID := ev.TraceID
		if traceID == "" {
			if traceID = trace.FromContext(ctx); traceID == "" {
				traceID = trace.NewID()
			}
		}
		headers := amqp.Table{
			"event_type":  ev.EventType,
			"traceparent": traceID,
		}

		if err := r.bus.Publish(ctx, queue.OrderEventsQueue, []byte(ev.Payload), headers); err != nil {
			log.Printf("[OUTBOX] publish failed eventId=%d type=%s error=%v", ev.ID, ev.EventType, err)
			if err := r.store.MarkFailed(ctx, ev.ID); err != nil {
				log.Printf("[OUTBOX] mark failed error eventId=%d: %v", ev.ID, err)
			}
			continue
		}
		log.Printf("[OUTBOX] published eventId=%d type=%s trace=%s", ev.ID, ev.EventType, traceID)
		if err := r.store.MarkSent(ctx, ev.ID); err != nil {
			// Row stays PENDING and will be republished; consumers
			// must tolerate the duplicate.
			log.Printf("[OUTBOX] mark sent error eventId=%d: %v", ev.ID, err)
		}
	}
}
