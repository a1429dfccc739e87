// Package repository provides data access to the events, seats, orders
// and outbox tables using plain SQL.  This file defines sentinel error
// values shared across repositories so that higher layers such as
// handlers can distinguish between failure scenarios without string
// matching.
package repository

import "errors"

// ErrOrderNotFound is returned when an order lookup matches no row.
// Handlers should translate this into an HTTP 404 response.
var ErrOrderNotFound = errors.New("order not found")

// ErrEventNotFound is returned when an event lookup matches no row.
// Handlers should translate this into an HTTP 404 response.
var ErrEventNotFound = errors.New("event not found")

// ErrDuplicateKey is returned when an insert violates a unique
// constraint, most importantly the orders.idempotency_key index.
// Callers handle it by re-reading the already-committed row.
var ErrDuplicateKey = errors.New("duplicate key")
