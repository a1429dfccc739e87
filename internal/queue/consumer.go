package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/oveida/ticketing/internal/ledger"
	"github.com/oveida/ticketing/internal/trace"
)

// LedgerOps is the slice of the hold ledger the consumer drives.
type LedgerOps interface {
	Confirm(ctx context.Context, eventID, seatID int64, traceID string) error
	Release(ctx context.Context, eventID, seatID int64, traceID string) error
}

// DeadLetterer forwards a raw message to a side queue.  Satisfied by
// *Publisher.
type DeadLetterer interface {
	Publish(ctx context.Context, queueName string, body []byte, headers amqp.Table) error
}

// Consumer listens on the domain-event queue and applies payment
// outcomes to the hold ledger.  Any message that cannot be parsed or
// handled is forwarded unchanged to the dead-letter queue and the
// original is acknowledged, so one poison message never blocks the
// rest of the queue.
type Consumer struct {
	url    string
	ledger LedgerOps
	dlq    DeadLetterer
}

// NewConsumer builds a Consumer for the given broker URL.
func NewConsumer(url string, l LedgerOps, dlq DeadLetterer) *Consumer {
	return &Consumer{url: url, ledger: l, dlq: dlq}
}

// Start connects to the broker and consumes until ctx is cancelled.
// It runs a reconnect loop with capped exponential backoff and only
// logs processing errors, so a broker outage never takes the server
// down with it.
func (c *Consumer) Start(ctx context.Context) {
	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return
		}
		conn, err := amqp.Dial(c.url)
		if err != nil {
			log.Printf("order-consumer: failed to dial broker: %v; retrying in %s", err, backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second // reset after successful connect

		if err := c.consumeLoop(ctx, conn); err != nil {
			log.Printf("order-consumer: consume loop ended: %v; reconnecting", err)
		}
		_ = conn.Close()
		if ctx.Err() != nil {
			return
		}
		time.Sleep(2 * time.Second)
	}
}

func (c *Consumer) consumeLoop(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		log.Printf("order-consumer: set QoS failed: %v", err)
	}
	if _, err := ch.QueueDeclare(OrderEventsQueue, true, false, false, false, nil); err != nil {
		return fmt.Errorf("queue declare: %w", err)
	}
	msgs, err := ch.Consume(OrderEventsQueue, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("queue consume: %w", err)
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-msgs:
			if !ok {
				return errors.New("deliveries channel closed")
			}
			c.process(ctx, d)
		}
	}
}

// process handles one delivery and always acknowledges it: either the
// handler succeeded, or the raw message has been parked on the DLQ.
func (c *Consumer) process(ctx context.Context, d amqp.Delivery) {
	msgCtx := restoreTrace(ctx, d.Headers)
	if err := c.handle(msgCtx, d.Body); err != nil {
		log.Printf("order-consumer: handle message failed: %v; moving to %s", err, OrderEventsDLQ)
		if dlqErr := c.dlq.Publish(ctx, OrderEventsDLQ, d.Body, d.Headers); dlqErr != nil {
			// Requeue so the message is not lost while the DLQ is down.
			log.Printf("order-consumer: dead-letter publish failed: %v", dlqErr)
			_ = d.Nack(false, true)
			return
		}
	}
	_ = d.Ack(false)
}

// handle parses the envelope and dispatches on eventType.
func (c *Consumer) handle(ctx context.Context, body []byte) error {
	var env Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.EventType {
	case EventPaymentSuccess:
		var ev PaymentEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.EventType, err)
		}
		log.Printf("[CONSUME] payment success orderId=%d traceId=%s -> mark sold", ev.OrderID, ev.TraceID)
		for _, seatID := range ev.SeatIDs {
			if err := c.ledger.Confirm(ctx, ev.EventID, seatID, ev.TraceID); err != nil {
				return fmt.Errorf("confirm seat %d: %w", seatID, err)
			}
		}
	case EventPaymentFailed:
		var ev PaymentEvent
		if err := json.Unmarshal(body, &ev); err != nil {
			return fmt.Errorf("unmarshal %s: %w", env.EventType, err)
		}
		log.Printf("[CONSUME] payment failed orderId=%d traceId=%s -> release seats", ev.OrderID, ev.TraceID)
		for _, seatID := range ev.SeatIDs {
			err := c.ledger.Release(ctx, ev.EventID, seatID, ev.TraceID)
			if err != nil && !errors.Is(err, ledger.ErrHoldExpired) {
				return fmt.Errorf("release seat %d: %w", seatID, err)
			}
			// An expired hold already reached the goal state (not held).
		}
	default:
		log.Printf("[CONSUME] unknown eventType=%q, dropping", env.EventType)
	}
	return nil
}

// restoreTrace lifts the trace id out of the transport headers into
// the local context so downstream ledger operations and their
// notifications link back to the originating request.
func restoreTrace(ctx context.Context, headers amqp.Table) context.Context {
	for _, key := range []string{"traceparent", "trace-id"} {
		if v, ok := headers[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				return trace.WithID(ctx, s)
			}
		}
	}
	return ctx
}
