package ledger

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oveida/ticketing/internal/repository"
)

// fakeStore is an in-memory stand-in for Redis that interprets the
// ledger's scripts with the same atomicity guarantee: one mutex around
// each Eval, so concurrent holds serialize exactly like a Lua script
// does on a real server.
type fakeStore struct {
	mu   sync.Mutex
	data map[string]string
	ttl  map[string]int
	err  error // when set, every call fails with it
}

func newFakeStore() *fakeStore {
	return &fakeStore{data: make(map[string]string), ttl: make(map[string]int)}
}

func (f *fakeStore) Eval(_ context.Context, script string, keys []string, args ...interface{}) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	switch script {
	case holdScript:
		if _, sold := f.data[keys[1]]; sold {
			return -2, nil
		}
		if _, held := f.data[keys[0]]; held {
			return 0, nil
		}
		ttl := args[0].(int)
		f.data[keys[0]] = args[1].(string)
		f.ttl[keys[0]] = ttl
		return int64(ttl), nil
	case extendScript:
		if _, ok := f.data[keys[0]]; !ok {
			return -1, nil
		}
		newTTL := f.ttl[keys[0]] + args[0].(int)
		f.ttl[keys[0]] = newTTL
		return int64(newTTL), nil
	case releaseScript:
		if _, ok := f.data[keys[0]]; !ok {
			return -1, nil
		}
		delete(f.data, keys[0])
		delete(f.ttl, keys[0])
		return 1, nil
	case confirmScript:
		delete(f.data, keys[0])
		delete(f.ttl, keys[0])
		f.data[keys[1]] = args[0].(string)
		return 1, nil
	}
	return 0, nil
}

func (f *fakeStore) Del(_ context.Context, keys ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, k := range keys {
		delete(f.data, k)
		delete(f.ttl, k)
	}
	return nil
}

func (f *fakeStore) ScanKeys(_ context.Context, pattern string) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	prefix := strings.TrimSuffix(pattern, "*")
	var out []string
	for k := range f.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	return out, nil
}

func (f *fakeStore) get(key string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	v, ok := f.data[key]
	return v, ok
}

type fakeSeats struct {
	mu       sync.Mutex
	rows     int64 // MarkSold result
	err      error
	sold     []repository.SeatRef
	markArgs []repository.SeatRef
}

func (f *fakeSeats) MarkSold(_ context.Context, eventID, seatID int64) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.markArgs = append(f.markArgs, repository.SeatRef{EventID: eventID, SeatID: seatID})
	return f.rows, f.err
}

func (f *fakeSeats) FindSold(_ context.Context) ([]repository.SeatRef, error) {
	return f.sold, nil
}

type recordedChange struct {
	eventID, seatID int64
	status          string
}

type fakeNotifier struct {
	mu      sync.Mutex
	changes []recordedChange
}

func (f *fakeNotifier) SeatChanged(eventID, seatID int64, status string, version int, traceID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.changes = append(f.changes, recordedChange{eventID, seatID, status})
}

func (f *fakeNotifier) last() (recordedChange, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.changes) == 0 {
		return recordedChange{}, false
	}
	return f.changes[len(f.changes)-1], true
}

func newTestLedger() (*Ledger, *fakeStore, *fakeSeats, *fakeNotifier) {
	kv := newFakeStore()
	seats := &fakeSeats{rows: 1}
	notes := &fakeNotifier{}
	return New(kv, seats, notes), kv, seats, notes
}

func TestHoldSuccessStoresPayloadAndNotifies(t *testing.T) {
	led, kv, _, notes := newTestLedger()

	res, err := led.Hold(context.Background(), 7, 42, 60, "trace-1")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.WithinDuration(t, time.Now().Add(60*time.Second), res.ExpiresAt, 2*time.Second)

	raw, ok := kv.get(HoldKey(7, 42))
	require.True(t, ok)
	var p holdPayload
	require.NoError(t, json.Unmarshal([]byte(raw), &p))
	assert.Equal(t, int64(7), p.EventID)
	assert.Equal(t, int64(42), p.SeatID)
	assert.Equal(t, "trace-1", p.TraceID)
	assert.Equal(t, 60, p.TTLSec)

	ch, ok := notes.last()
	require.True(t, ok)
	assert.Equal(t, recordedChange{7, 42, "HELD"}, ch)
}

func TestHoldConflictLeavesExistingHoldUntouched(t *testing.T) {
	led, kv, _, _ := newTestLedger()

	first, err := led.Hold(context.Background(), 1, 2, 30, "winner")
	require.NoError(t, err)
	require.True(t, first.Success)
	original, _ := kv.get(HoldKey(1, 2))

	second, err := led.Hold(context.Background(), 1, 2, 90, "loser")
	require.NoError(t, err)
	assert.False(t, second.Success)

	// The winner's payload and TTL survive the losing attempt.
	after, _ := kv.get(HoldKey(1, 2))
	assert.Equal(t, original, after)
	assert.Equal(t, 30, kv.ttl[HoldKey(1, 2)])
}

func TestHoldRejectedWhenSeatSold(t *testing.T) {
	led, kv, _, notes := newTestLedger()
	kv.data[SoldKey(3, 4)] = "1"

	_, err := led.Hold(context.Background(), 3, 4, 60, "t")
	assert.ErrorIs(t, err, ErrAlreadySold)
	_, held := kv.get(HoldKey(3, 4))
	assert.False(t, held)
	_, notified := notes.last()
	assert.False(t, notified)
}

func TestConcurrentHoldsExactlyOneWinner(t *testing.T) {
	led, _, _, _ := newTestLedger()

	const n = 50
	var wg sync.WaitGroup
	results := make([]bool, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := led.Hold(context.Background(), 9, 9, 30, "t")
			if err == nil && res.Success {
				results[i] = true
			}
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, won := range results {
		if won {
			winners++
		}
	}
	assert.Equal(t, 1, winners)
}

func TestExtendAddsToRemainingTTL(t *testing.T) {
	led, kv, _, _ := newTestLedger()
	_, err := led.Hold(context.Background(), 5, 6, 40, "t")
	require.NoError(t, err)

	expiresAt, err := led.Extend(context.Background(), 5, 6, 30, "t")
	require.NoError(t, err)
	assert.Equal(t, 70, kv.ttl[HoldKey(5, 6)])
	assert.WithinDuration(t, time.Now().Add(70*time.Second), expiresAt, 2*time.Second)
}

func TestExtendMissingHold(t *testing.T) {
	led, _, _, _ := newTestLedger()
	_, err := led.Extend(context.Background(), 5, 6, 30, "t")
	assert.ErrorIs(t, err, ErrHoldExpired)
}

func TestReleaseDeletesHold(t *testing.T) {
	led, kv, _, notes := newTestLedger()
	_, err := led.Hold(context.Background(), 5, 6, 40, "t")
	require.NoError(t, err)

	require.NoError(t, led.Release(context.Background(), 5, 6, "t"))
	_, ok := kv.get(HoldKey(5, 6))
	assert.False(t, ok)
	ch, _ := notes.last()
	assert.Equal(t, "AVAILABLE", ch.status)

	// Second release reports the hold as gone.
	assert.ErrorIs(t, led.Release(context.Background(), 5, 6, "t"), ErrHoldExpired)
}

func TestConfirmUpdatesRowThenCache(t *testing.T) {
	led, kv, seats, notes := newTestLedger()
	_, err := led.Hold(context.Background(), 5, 6, 40, "t")
	require.NoError(t, err)

	require.NoError(t, led.Confirm(context.Background(), 5, 6, "t"))
	assert.Equal(t, []repository.SeatRef{{EventID: 5, SeatID: 6}}, seats.markArgs)

	_, holdLeft := kv.get(HoldKey(5, 6))
	assert.False(t, holdLeft)
	_, soldSet := kv.get(SoldKey(5, 6))
	assert.True(t, soldSet)
	ch, _ := notes.last()
	assert.Equal(t, "SOLD", ch.status)
}

func TestConfirmZeroRowsSkipsCache(t *testing.T) {
	led, kv, seats, notes := newTestLedger()
	seats.rows = 0
	_, err := led.Hold(context.Background(), 5, 6, 40, "t")
	require.NoError(t, err)
	notes.changes = nil

	err = led.Confirm(context.Background(), 5, 6, "t")
	assert.ErrorIs(t, err, ErrValidationFailed)

	// Hold stays, no sold marker, no notification.
	_, holdLeft := kv.get(HoldKey(5, 6))
	assert.True(t, holdLeft)
	_, soldSet := kv.get(SoldKey(5, 6))
	assert.False(t, soldSet)
	assert.Empty(t, notes.changes)
}

func TestReconcileRebuildsSoldMarkers(t *testing.T) {
	led, kv, seats, _ := newTestLedger()
	kv.data[SoldKey(1, 1)] = "stale"
	kv.data[SoldKey(1, 2)] = "stale"
	seats.sold = []repository.SeatRef{
		{EventID: 1, SeatID: 2},
		{EventID: 2, SeatID: 7},
	}

	require.NoError(t, led.Reconcile(context.Background()))

	_, staleGone := kv.get(SoldKey(1, 1))
	assert.False(t, staleGone)
	_, kept := kv.get(SoldKey(1, 2))
	assert.True(t, kept)
	_, added := kv.get(SoldKey(2, 7))
	assert.True(t, added)
}

func TestResetEventClearsOnlyThatEvent(t *testing.T) {
	led, kv, _, _ := newTestLedger()
	_, err := led.Hold(context.Background(), 1, 5, 30, "t")
	require.NoError(t, err)
	_, err = led.Hold(context.Background(), 2, 5, 30, "t")
	require.NoError(t, err)
	kv.data[SoldKey(1, 9)] = "1"

	require.NoError(t, led.ResetEvent(context.Background(), 1))

	_, gone := kv.get(HoldKey(1, 5))
	assert.False(t, gone)
	_, soldGone := kv.get(SoldKey(1, 9))
	assert.False(t, soldGone)
	_, other := kv.get(HoldKey(2, 5))
	assert.True(t, other)
}

func TestHeldSeats(t *testing.T) {
	led, _, _, _ := newTestLedger()
	_, err := led.Hold(context.Background(), 4, 10, 30, "t")
	require.NoError(t, err)
	_, err = led.Hold(context.Background(), 4, 11, 30, "t")
	require.NoError(t, err)
	_, err = led.Hold(context.Background(), 5, 10, 30, "t")
	require.NoError(t, err)

	held, err := led.HeldSeats(context.Background(), 4)
	require.NoError(t, err)
	assert.Equal(t, map[int64]bool{10: true, 11: true}, held)
}
