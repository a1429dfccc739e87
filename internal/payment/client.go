// Package payment defines the boundary to the external payment
// authorization step.  The integration itself is out of scope: the
// saga only needs a yes/no answer, and anything else (transport error,
// unknown status) must leave the order untouched for a later retry.
package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/oveida/ticketing/internal/trace"
)

// Authorizer decides whether a payment for an order is approved.  A
// returned error means the outcome could not be determined and the
// caller must not finalize the order either way.
type Authorizer interface {
	Authorize(ctx context.Context, orderID int64, traceID string) (bool, error)
}

// Client calls the payment authorization endpoint over HTTP.  The call
// is synchronous with meaningful latency (hundreds of milliseconds);
// callers must not hold any broader lock while it is in flight.
type Client struct {
	url    string
	client *http.Client
}

// NewClient returns a Client posting to the given authorize URL.
func NewClient(url string) *Client {
	return &Client{
		url:    url,
		client: &http.Client{Timeout: 5 * time.Second},
	}
}

type authorizeRequest struct {
	OrderID int64 `json:"orderId"`
}

type authorizeResponse struct {
	OrderID int64  `json:"orderId"`
	Status  string `json:"status"`
	TraceID string `json:"traceId"`
}

// Authorize posts the order id and interprets the returned status:
// "success" approves, "fail" declines, anything else is undecidable.
func (c *Client) Authorize(ctx context.Context, orderID int64, traceID string) (bool, error) {
	body, err := json.Marshal(authorizeRequest{OrderID: orderID})
	if err != nil {
		return false, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return false, err
	}
	req.Header.Set("Content-Type", "application/json")
	if traceID != "" {
		req.Header.Set(trace.Header, traceID)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("payment call: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("payment call: unexpected status %d", resp.StatusCode)
	}

	var out authorizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return false, fmt.Errorf("payment response: %w", err)
	}
	switch out.Status {
	case "success":
		return true, nil
	case "fail":
		return false, nil
	default:
		return false, fmt.Errorf("payment response: undecidable status %q", out.Status)
	}
}
