package parseredux

import (
	"context"
	"fmt"
)

// Transport issues server requests. Retry, backoff and timeouts live in
// the implementation, not here; this core only reacts to resolved
// success or failure.
type Transport interface {
	Request(ctx context.Context, method, path string, body map[string]any) (map[string]any, error)
}

// TransportError is a request failure already resolved by the
// transport.
type TransportError struct {
	Code    int
	Message string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("parse-redux: request failed: %d %s", e.Code, e.Message)
}
