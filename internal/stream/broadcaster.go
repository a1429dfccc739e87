// Package stream implements the real-time seat-update fanout: a hub of
// per-event subscriber sets with a bounded replay history.  The hub is
// explicitly owned state with subscribe/publish/unregister as its only
// surface; subscriber lifecycle is tied to connect and disconnect, and
// unregistering one subscriber never affects the others.
package stream

import "sync"

// HistoryLimit caps the per-event replay buffer.  Entries evicted past
// this window are unrecoverable; reconnecting clients with an older
// Last-Event-ID simply miss them and should fall back to a full state
// fetch.
const HistoryLimit = 1000

// subscriberBuffer must hold a full history replay plus a burst of
// live events, so a replaying Subscribe never blocks under the hub
// lock.
const subscriberBuffer = HistoryLimit + 64

// Event is one broadcast entry.  IDs are strictly increasing per
// event aggregate, starting at 1; no ordering holds across aggregates.
type Event struct {
	ID   int64       `json:"id"`
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// Subscriber is a registered live-push connection.  Consumers read
// Events() until Done() is closed, which happens when the subscriber
// is unregistered (by the consumer itself, or by the hub after a
// failed send).
type Subscriber struct {
	eventID int64
	ch      chan Event
	done    chan struct{}
	removed bool // guarded by the hub mutex
}

// Events returns the delivery channel, replayed history first.
func (s *Subscriber) Events() <-chan Event { return s.ch }

// Done is closed once the subscriber has been unregistered.
func (s *Subscriber) Done() <-chan struct{} { return s.done }

type topic struct {
	nextID  int64
	history []Event
	subs    map[*Subscriber]struct{}
}

// Hub owns all subscriber sets and histories, keyed by event id.
type Hub struct {
	mu     sync.Mutex
	topics map[int64]*topic
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{topics: make(map[int64]*topic)}
}

func (h *Hub) topicLocked(eventID int64) *topic {
	t, ok := h.topics[eventID]
	if !ok {
		t = &topic{subs: make(map[*Subscriber]struct{})}
		h.topics[eventID] = t
	}
	return t
}

// Subscribe registers a new subscriber for the event.  When lastSeenID
// is >= 0, every retained history entry with a greater id is queued
// for delivery first, in ascending order; ids already evicted from the
// window are silently skipped.  Pass a negative lastSeenID for live
// events only.
func (h *Hub) Subscribe(eventID, lastSeenID int64) *Subscriber {
	sub := &Subscriber{
		eventID: eventID,
		ch:      make(chan Event, subscriberBuffer),
		done:    make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.topicLocked(eventID)
	if lastSeenID >= 0 {
		for _, ev := range t.history {
			if ev.ID > lastSeenID {
				sub.ch <- ev // buffer is sized to hold the whole window
			}
		}
	}
	t.subs[sub] = struct{}{}
	return sub
}

// Publish assigns the next monotonic id, appends the event to the
// history (evicting the oldest entry beyond HistoryLimit) and pushes
// it to every registered subscriber.  A subscriber whose buffer is
// full counts as a failed send and is unregistered on the spot; the
// remaining subscribers still receive the event.
func (h *Hub) Publish(eventID int64, typ string, data interface{}) Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	t := h.topicLocked(eventID)
	t.nextID++
	ev := Event{ID: t.nextID, Type: typ, Data: data}

	t.history = append(t.history, ev)
	if len(t.history) > HistoryLimit {
		copy(t.history, t.history[1:])
		t.history = t.history[:HistoryLimit]
	}

	for sub := range t.subs {
		select {
		case sub.ch <- ev:
		default:
			h.removeLocked(t, sub)
		}
	}
	return ev
}

// Unregister removes the subscriber and closes its Done channel.  Safe
// to call multiple times and concurrently with an in-flight Publish.
func (h *Hub) Unregister(sub *Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[sub.eventID]; ok {
		h.removeLocked(t, sub)
	}
}

func (h *Hub) removeLocked(t *topic, sub *Subscriber) {
	if sub.removed {
		return
	}
	sub.removed = true
	delete(t.subs, sub)
	close(sub.done)
}

// Subscribers reports the current subscriber count for an event.
func (h *Hub) Subscribers(eventID int64) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	if t, ok := h.topics[eventID]; ok {
		return len(t.subs)
	}
	return 0
}
