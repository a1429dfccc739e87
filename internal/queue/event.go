// Package queue defines the domain-event payloads exchanged over the
// message broker and the consumer/publisher that move them.
package queue

// Queue names.  The dead-letter queue runs parallel to the primary
// topic; poison messages are forwarded there unchanged so the main
// consumption loop always makes forward progress.
const (
	OrderEventsQueue = "order.events"
	OrderEventsDLQ   = "order.events.dlq"
)

// Event type discriminators carried in the envelope.
const (
	EventPaymentSuccess = "PAYMENT_SUCCESS"
	EventPaymentFailed  = "PAYMENT_FAILED"
)

// Envelope is the minimal shape every domain event shares; consumers
// parse it first to dispatch on EventType.
type Envelope struct {
	EventType string `json:"eventType"`
}

// PaymentEvent announces the outcome of a payment attempt for an
// order.  It is written to the outbox by the saga worker and applied
// to the hold ledger by the consumer.
type PaymentEvent struct {
	OrderID   int64   `json:"orderId"`
	EventID   int64   `json:"eventId"`
	SeatIDs   []int64 `json:"seatIds"`
	EventType string  `json:"eventType"`
	TraceID   string  `json:"traceId"`
}
