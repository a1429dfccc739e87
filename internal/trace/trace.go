// Package trace carries a per-request trace identifier through contexts,
// HTTP headers and message-bus headers so that log lines emitted by the
// workers and the consumer can be correlated with the originating request.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
)

// Header is the HTTP header used between clients, services and responses.
const Header = "Trace-Id"

type ctxKey struct{}

// NewID returns a fresh 32-character hexadecimal trace identifier.
func NewID() string {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively unrecoverable; fall back to
		// a fixed marker rather than propagate an error for a log id.
		return "00000000000000000000000000000000"
	}
	return hex.EncodeToString(b)
}

// WithID stores a trace id in the context.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext extracts the trace id from the context, or "" when absent.
func FromContext(ctx context.Context) string {
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}
