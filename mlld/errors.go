package mlld

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrHandleConsumed reports a second concurrent wait on the same handle. The
// first wait takes the handle's receiver; waiting again before it resolves is
// a caller bug, not a transport failure.
var ErrHandleConsumed = errors.New("request handle already awaited")

// WorkerError is a structured failure reported by the worker itself: the
// process ran and answered, but the answer was an error payload.
type WorkerError struct {
	Message string
	Code    string // machine-readable, e.g. "REQUEST_NOT_FOUND"; may be empty
}

func (e *WorkerError) Error() string {
	return fmt.Sprintf("mlld error: %s", e.Message)
}

// TransportError means the worker could not be reached or stopped being
// usable: spawn failure, write failure, disconnect, or a reply stream that
// broke correlation.
type TransportError struct {
	Reason string
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("transport error: %s", e.Reason)
}

// TimeoutError is returned when a wait exceeds its configured deadline.
type TimeoutError struct {
	Timeout time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timeout after %s", e.Timeout)
}

type errorPayload struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// workerError translates a result's embedded error payload.
func workerError(payload json.RawMessage) *WorkerError {
	parsed := errorPayload{Message: "mlld request failed"}
	json.Unmarshal(payload, &parsed)
	if parsed.Message == "" {
		parsed.Message = "mlld request failed"
	}
	return &WorkerError{Message: parsed.Message, Code: parsed.Code}
}
