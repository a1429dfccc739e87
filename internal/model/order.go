package model

import (
	"encoding/json"
	"time"
)

// Order status values.  Orders start CREATED and are moved to
// CONFIRMED or CANCELLED by the saga worker only; rows are never
// deleted.
const (
	OrderCreated   = "CREATED"
	OrderConfirmed = "CONFIRMED"
	OrderCancelled = "CANCELLED"
)

// Order records a purchase intent for one or more seats of an event.
// Exactly one row exists per idempotency key; a repeated create with
// the same key must return the original row, never insert a second.
//
// Fields:
//  ID             – primary key identifier.
//  EventID        – event being purchased.
//  SeatIDs        – seats included in the order.
//  Status         – CREATED, CONFIRMED or CANCELLED.
//  IdempotencyKey – client-supplied token, globally unique.
//  TraceID        – trace identifier of the originating request.
//  CreatedAt      – creation timestamp.
//  UpdatedAt      – last status change timestamp.
type Order struct {
	ID             int64     // orders.id
	EventID        int64     // orders.event_id
	SeatIDs        []int64   // orders.seat_ids (JSON column)
	Status         string    // orders.status
	IdempotencyKey string    // orders.idempotency_key
	TraceID        string    // orders.trace_id
	CreatedAt      time.Time // orders.created_at
	UpdatedAt      time.Time // orders.updated_at
}

// EncodeSeatIDs renders the seat id list as the JSON array stored in
// the seat_ids column, e.g. "[272,273]".
func EncodeSeatIDs(ids []int64) (string, error) {
	b, err := json.Marshal(ids)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// DecodeSeatIDs parses the JSON array stored in the seat_ids column.
// An empty string decodes to an empty slice.
func DecodeSeatIDs(raw string) ([]int64, error) {
	if raw == "" {
		return []int64{}, nil
	}
	var ids []int64
	if err := json.Unmarshal([]byte(raw), &ids); err != nil {
		return nil, err
	}
	return ids, nil
}
