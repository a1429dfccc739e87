package model

import "time"

// Outbox statuses.  A row is inserted PENDING in the same transaction
// as the business change it announces, moved to SENT once the relay
// published it, or to FAILED when the publish attempt errored.  FAILED
// is not retried automatically.
const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
	OutboxFailed  = "FAILED"
)

// OutboxEvent is a to-be-published domain event persisted alongside
// the state change that produced it (transactional outbox).
//
// Fields:
//  ID        – primary key identifier.
//  EventType – discriminator, e.g. PAYMENT_SUCCESS or PAYMENT_FAILED.
//  Payload   – JSON body published verbatim to the bus.
//  Status    – PENDING, SENT or FAILED.
//  TraceID   – trace identifier carried into the transport headers.
//  CreatedAt – creation timestamp.
type OutboxEvent struct {
	ID        int64     // outbox.id
	EventType string    // outbox.event_type
	Payload   string    // outbox.payload
	Status    string    // outbox.status
	TraceID   string    // outbox.trace_id
	CreatedAt time.Time // outbox.created_at
}
