package gateway

import (
	"errors"
	"fmt"
)

// ErrUnauthorized is wrapped by every 401 StatusError so callers can test
// with errors.Is without caring about the body.
var ErrUnauthorized = errors.New("gateway: unauthorized")

// StatusError is a non-2xx backend response. The body snippet is truncated;
// the trace ID is the one sent with the request, for correlating with
// backend logs.
type StatusError struct {
	Status  int
	Snippet string
	TraceID string
}

func (e *StatusError) Error() string {
	if e.Snippet == "" {
		return fmt.Sprintf("gateway: backend returned %d (trace %s)", e.Status, e.TraceID)
	}
	return fmt.Sprintf("gateway: backend returned %d: %s (trace %s)", e.Status, e.Snippet, e.TraceID)
}

func (e *StatusError) Unwrap() error {
	if e.Status == 401 {
		return ErrUnauthorized
	}
	return nil
}
