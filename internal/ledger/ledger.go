// Package ledger implements the atomic seat-hold ledger on top of
// Redis.  A hold is a time-bounded exclusive claim on one seat of one
// event; Redis is the sole arbiter of hold exclusivity and every
// check-and-set runs as a single Lua script so concurrent callers can
// never interleave between the check and the write.  The relational
// seats table stays authoritative for SOLD; the "sold" marker keys are
// a derived cache rebuilt from it on startup.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/oveida/ticketing/internal/model"
	"github.com/oveida/ticketing/internal/repository"
)

// Sentinel errors translated by the HTTP and consumer boundaries.
var (
	// ErrAlreadySold is returned by Hold when the seat's sold marker is
	// set; no hold is created.
	ErrAlreadySold = errors.New("seat already sold")
	// ErrHoldExpired is returned by Extend and Release when no hold
	// exists for the key.  Neither operation ever creates one.
	ErrHoldExpired = errors.New("hold already expired or not found")
	// ErrValidationFailed is returned by Confirm when the conditional
	// seat update matched zero rows (invalid ids or already sold).
	ErrValidationFailed = errors.New("invalid eventId/seatId")
)

// holdScript performs the whole hold check-and-set in one atomic step:
// sold marker check, existing-hold check, then SET with expiry.
// KEYS[1] is the hold key, KEYS[2] the sold marker.  Returns -2 when
// sold, 0 when already held (existing hold untouched, no TTL refresh),
// or the TTL on success.
const holdScript = `
if redis.call('EXISTS', KEYS[2]) == 1 then
  return -2
end
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[2], 'EX', tonumber(ARGV[1]))
return tonumber(ARGV[1])
`

// extendScript adds ARGV[1] seconds to the remaining TTL of an
// existing hold, clamping the remainder at zero.  Returns -1 when the
// hold is absent, else the new TTL in seconds.
const extendScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local remain = redis.call('TTL', KEYS[1])
if remain < 0 then
  remain = 0
end
local newttl = remain + tonumber(ARGV[1])
redis.call('EXPIRE', KEYS[1], newttl)
return newttl
`

// releaseScript deletes an existing hold.  Returns -1 when absent.
const releaseScript = `
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
redis.call('DEL', KEYS[1])
return 1
`

// confirmScript retires the hold key and sets the sold marker in one
// step, after the authoritative row has already been updated.
const confirmScript = `
redis.call('DEL', KEYS[1])
redis.call('SET', KEYS[2], ARGV[1])
return 1
`

// store is the slice of Redis the ledger needs.  The production
// implementation wraps *redis.Client (see redis.go); tests substitute
// an in-memory fake that interprets the scripts above.
type store interface {
	Eval(ctx context.Context, script string, keys []string, args ...interface{}) (int64, error)
	Del(ctx context.Context, keys ...string) error
	ScanKeys(ctx context.Context, pattern string) ([]string, error)
}

// SeatStore is the authoritative seat state the ledger confirms
// against and reconciles from.
type SeatStore interface {
	MarkSold(ctx context.Context, eventID, seatID int64) (int64, error)
	FindSold(ctx context.Context) ([]repository.SeatRef, error)
}

// Notifier receives seat state transitions for real-time fanout.  The
// call must be fire-and-forget: it returns immediately and its failure
// never delays or fails the ledger operation that triggered it.
type Notifier interface {
	SeatChanged(eventID, seatID int64, status string, version int, traceID string)
}

// HoldResult reports the outcome of a hold attempt.  Success false
// with a nil error means the seat is currently held by someone else.
type HoldResult struct {
	Success   bool
	ExpiresAt time.Time
}

// holdPayload is the JSON value stored under the hold key.
type holdPayload struct {
	EventID int64  `json:"eventId"`
	SeatID  int64  `json:"seatId"`
	TraceID string `json:"traceId"`
	HeldAt  string `json:"heldAt"`
	TTLSec  int    `json:"ttlSec"`
}

// Ledger coordinates holds in Redis with the authoritative seats table.
type Ledger struct {
	kv     store
	seats  SeatStore
	notify Notifier
}

// New returns a Ledger over the given store, seat repository and
// notifier.  All dependencies must be non-nil.
func New(kv store, seats SeatStore, notify Notifier) *Ledger {
	if kv == nil || seats == nil || notify == nil {
		panic("nil dependency passed to ledger.New")
	}
	return &Ledger{kv: kv, seats: seats, notify: notify}
}

// HoldKey returns the cache key for a hold: hold:{eventId}:{seatId}.
func HoldKey(eventID, seatID int64) string {
	return fmt.Sprintf("hold:%d:%d", eventID, seatID)
}

// SoldKey returns the cache key for a derived sold marker:
// sold:{eventId}:{seatId}.
func SoldKey(eventID, seatID int64) string {
	return fmt.Sprintf("sold:%d:%d", eventID, seatID)
}

// Hold attempts to place an exclusive hold on (eventID, seatID) for
// ttlSeconds.  The sold-marker check, existing-hold check and
// conditional set execute as one atomic script; a plain read-then-write
// here would race under concurrent callers.
func (l *Ledger) Hold(ctx context.Context, eventID, seatID int64, ttlSeconds int, traceID string) (HoldResult, error) {
	payload, err := json.Marshal(holdPayload{
		EventID: eventID,
		SeatID:  seatID,
		TraceID: traceID,
		HeldAt:  time.Now().UTC().Format(time.RFC3339),
		TTLSec:  ttlSeconds,
	})
	if err != nil {
		return HoldResult{}, err
	}

	ret, err := l.kv.Eval(ctx, holdScript,
		[]string{HoldKey(eventID, seatID), SoldKey(eventID, seatID)},
		ttlSeconds, string(payload),
	)
	if err != nil {
		return HoldResult{}, err
	}
	switch {
	case ret == -2:
		log.Printf("[LEDGER] hold conflict eventId=%d seatId=%d traceId=%s reason=already_sold",
			eventID, seatID, traceID)
		return HoldResult{}, ErrAlreadySold
	case ret == 0:
		log.Printf("[LEDGER] hold conflict eventId=%d seatId=%d traceId=%s reason=already_held",
			eventID, seatID, traceID)
		return HoldResult{}, nil
	}

	expiresAt := time.Now().Add(time.Duration(ret) * time.Second)
	l.notify.SeatChanged(eventID, seatID, model.SeatHeld, 1, traceID)
	log.Printf("[LEDGER] hold eventId=%d seatId=%d ttl=%ds expiresAt=%s traceId=%s",
		eventID, seatID, ttlSeconds, expiresAt.UTC().Format(time.RFC3339), traceID)
	return HoldResult{Success: true, ExpiresAt: expiresAt}, nil
}

// Extend adds addSeconds to the remaining TTL of an existing hold and
// returns the new absolute expiry.  A missing hold fails with
// ErrHoldExpired; Extend never silently (re)creates one.
func (l *Ledger) Extend(ctx context.Context, eventID, seatID int64, addSeconds int, traceID string) (time.Time, error) {
	ret, err := l.kv.Eval(ctx, extendScript,
		[]string{HoldKey(eventID, seatID)}, addSeconds)
	if err != nil {
		return time.Time{}, err
	}
	if ret < 0 {
		log.Printf("[LEDGER] extend failed eventId=%d seatId=%d traceId=%s reason=not_found_or_expired",
			eventID, seatID, traceID)
		return time.Time{}, ErrHoldExpired
	}
	expiresAt := time.Now().Add(time.Duration(ret) * time.Second)
	l.notify.SeatChanged(eventID, seatID, model.SeatHeld, 1, traceID)
	log.Printf("[LEDGER] extend eventId=%d seatId=%d newTtl=%ds expiresAt=%s traceId=%s",
		eventID, seatID, ret, expiresAt.UTC().Format(time.RFC3339), traceID)
	return expiresAt, nil
}

// Release deletes an existing hold.  A missing hold fails with
// ErrHoldExpired so callers can distinguish "released" from "was
// already gone"; the event consumer treats the latter as benign.
func (l *Ledger) Release(ctx context.Context, eventID, seatID int64, traceID string) error {
	ret, err := l.kv.Eval(ctx, releaseScript,
		[]string{HoldKey(eventID, seatID)})
	if err != nil {
		return err
	}
	if ret < 0 {
		log.Printf("[LEDGER] release failed eventId=%d seatId=%d traceId=%s reason=not_found_or_expired",
			eventID, seatID, traceID)
		return ErrHoldExpired
	}
	l.notify.SeatChanged(eventID, seatID, model.SeatAvailable, 1, traceID)
	log.Printf("[LEDGER] release eventId=%d seatId=%d traceId=%s", eventID, seatID, traceID)
	return nil
}

// Confirm converts a hold into a permanent sale.  The authoritative
// row update runs first because the database is the durability
// boundary; only after exactly one row was updated are the hold key
// retired and the sold marker set.  Zero affected rows fail with
// ErrValidationFailed and no cache writes happen.  A cache error after
// the commit is logged, not returned: the marker is rebuilt by
// Reconcile on the next start.
func (l *Ledger) Confirm(ctx context.Context, eventID, seatID int64, traceID string) error {
	rows, err := l.seats.MarkSold(ctx, eventID, seatID)
	if err != nil {
		return err
	}
	if rows == 0 {
		log.Printf("[LEDGER] confirm failed eventId=%d seatId=%d traceId=%s reason=invalid_ids",
			eventID, seatID, traceID)
		return ErrValidationFailed
	}

	if _, err := l.kv.Eval(ctx, confirmScript,
		[]string{HoldKey(eventID, seatID), SoldKey(eventID, seatID)}, "1"); err != nil {
		log.Printf("[LEDGER] confirm cache update failed eventId=%d seatId=%d traceId=%s error=%v",
			eventID, seatID, traceID, err)
	}

	l.notify.SeatChanged(eventID, seatID, model.SeatSold, 1, traceID)
	log.Printf("[LEDGER] confirm eventId=%d seatId=%d traceId=%s", eventID, seatID, traceID)
	return nil
}

// Reconcile rebuilds the derived sold markers from the authoritative
// store: clear every sold:* key, then set one marker per SOLD seat
// row.  Run on process start so the cache can never outlive the truth
// it mirrors; the full scan is the accepted startup cost.
func (l *Ledger) Reconcile(ctx context.Context) error {
	keys, err := l.kv.ScanKeys(ctx, "sold:*")
	if err != nil {
		return err
	}
	if len(keys) > 0 {
		if err := l.kv.Del(ctx, keys...); err != nil {
			return err
		}
	}
	refs, err := l.seats.FindSold(ctx)
	if err != nil {
		return err
	}
	for _, ref := range refs {
		if _, err := l.kv.Eval(ctx, confirmScript,
			[]string{HoldKey(ref.EventID, ref.SeatID), SoldKey(ref.EventID, ref.SeatID)}, "1"); err != nil {
			return err
		}
	}
	log.Printf("[LEDGER] reconcile cleared=%d repopulated=%d", len(keys), len(refs))
	return nil
}

// ResetEvent drops every hold key and sold marker of one event.  It is
// the cache-invalidation half of the administrative bulk reset; the
// caller resets the seat rows.
func (l *Ledger) ResetEvent(ctx context.Context, eventID int64) error {
	for _, pattern := range []string{
		fmt.Sprintf("hold:%d:*", eventID),
		fmt.Sprintf("sold:%d:*", eventID),
	} {
		keys, err := l.kv.ScanKeys(ctx, pattern)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := l.kv.Del(ctx, keys...); err != nil {
				return err
			}
		}
	}
	return nil
}

// HeldSeats returns the seat ids of the event that currently have a
// live hold key.  Used to overlay HELD onto the seat-map snapshot.
func (l *Ledger) HeldSeats(ctx context.Context, eventID int64) (map[int64]bool, error) {
	keys, err := l.kv.ScanKeys(ctx, fmt.Sprintf("hold:%d:*", eventID))
	if err != nil {
		return nil, err
	}
	held := make(map[int64]bool, len(keys))
	for _, k := range keys {
		var ev, seat int64
		if _, err := fmt.Sscanf(k, "hold:%d:%d", &ev, &seat); err == nil {
			held[seat] = true
		}
	}
	return held, nil
}
