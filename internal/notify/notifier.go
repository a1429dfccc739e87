// Package notify delivers seat state changes to the internal
// seat-update webhook that feeds the stream broadcaster.  Delivery is
// fire-and-forget with at-most-once semantics: a bounded worker pool
// drains a queue, a full queue discards the update, and any HTTP error
// is swallowed after logging.  The caller's response is never delayed
// or failed by a notification problem; clients that miss an increment
// resynchronize through the full seat-map fetch.
package notify

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/oveida/ticketing/internal/trace"
)

// SeatUpdate is the webhook body.
type SeatUpdate struct {
	EventID int64  `json:"eventId"`
	SeatID  int64  `json:"seatId"`
	Status  string `json:"status"`
	Version int    `json:"version"`
	TraceID string `json:"traceId"`
}

// Notifier posts seat updates from a fixed pool of workers.
type Notifier struct {
	url       string
	client    *http.Client
	jobs      chan SeatUpdate
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New starts a Notifier with the given pool size and queue capacity,
// posting to url.  Close must be called on shutdown to drain the pool.
func New(url string, workers, queue int) *Notifier {
	if workers < 1 {
		workers = 1
	}
	if queue < 1 {
		queue = 1
	}
	n := &Notifier{
		url:    url,
		client: &http.Client{Timeout: 2 * time.Second},
		jobs:   make(chan SeatUpdate, queue),
	}
	n.wg.Add(workers)
	for i := 0; i < workers; i++ {
		go n.worker()
	}
	return n
}

// SeatChanged enqueues one update and returns immediately.  When the
// queue is full the update is discarded; real-time push is best effort
// by contract.
func (n *Notifier) SeatChanged(eventID, seatID int64, status string, version int, traceID string) {
	u := SeatUpdate{EventID: eventID, SeatID: seatID, Status: status, Version: version, TraceID: traceID}
	select {
	case n.jobs <- u:
	default:
		log.Printf("[NOTIFY] queue full, dropping eventId=%d seatId=%d status=%s traceId=%s",
			eventID, seatID, status, traceID)
	}
}

// Close stops accepting work and waits for in-flight deliveries.
func (n *Notifier) Close() {
	n.closeOnce.Do(func() { close(n.jobs) })
	n.wg.Wait()
}

func (n *Notifier) worker() {
	defer n.wg.Done()
	for u := range n.jobs {
		n.post(u)
	}
}

func (n *Notifier) post(u SeatUpdate) {
	body, err := json.Marshal(u)
	if err != nil {
		log.Printf("[NOTIFY] marshal failed eventId=%d seatId=%d error=%v", u.EventID, u.SeatID, err)
		return
	}
	req, err := http.NewRequest(http.MethodPost, n.url, bytes.NewReader(body))
	if err != nil {
		log.Printf("[NOTIFY] request build failed error=%v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")
	if u.TraceID != "" {
		req.Header.Set(trace.Header, u.TraceID)
	}
	resp, err := n.client.Do(req)
	if err != nil {
		log.Printf("[NOTIFY] delivery failed eventId=%d seatId=%d status=%s traceId=%s error=%v",
			u.EventID, u.SeatID, u.Status, u.TraceID, err)
		return
	}
	_ = resp.Body.Close()
	if resp.StatusCode >= 300 {
		log.Printf("[NOTIFY] delivery rejected eventId=%d seatId=%d status=%s http=%d",
			u.EventID, u.SeatID, u.Status, resp.StatusCode)
	}
}
