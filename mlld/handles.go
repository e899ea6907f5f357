package mlld

import (
	"encoding/json"
	"time"

	"github.com/mlld-lang/mlld-go/live"
)

// requestHandle is the shared core of the public handle types. The first
// wait consumes the receiver and caches the resolved (payload, state writes)
// pair; repeated waits return the cache without touching the channel. A
// handle is not safe for concurrent waits from multiple goroutines.
type requestHandle struct {
	client  *Client
	session *live.Session
	id      uint64
	ch      <-chan live.Message // nil once consumed
	timeout time.Duration

	cached        bool
	cachedPayload json.RawMessage
	cachedWrites  []StateWrite
}

func (h *requestHandle) requestID() uint64 {
	return h.id
}

func (h *requestHandle) cancel() {
	h.client.cancelRequest(h.id)
}

func (h *requestHandle) updateState(path string, value any) error {
	return h.client.updateStateRequest(h.id, path, value, h.timeout)
}

func (h *requestHandle) waitRaw() (json.RawMessage, []StateWrite, error) {
	if h.cached {
		return h.cachedPayload, h.cachedWrites, nil
	}
	if h.ch == nil {
		return nil, nil, ErrHandleConsumed
	}

	ch := h.ch
	h.ch = nil

	payload, writes, err := h.client.awaitRequest(h.session, h.id, ch, h.timeout)
	if err != nil {
		return nil, nil, err
	}

	h.cached = true
	h.cachedPayload = payload
	h.cachedWrites = writes
	return payload, writes, nil
}

// ProcessHandle is an in-flight process request.
type ProcessHandle struct {
	request requestHandle
}

// RequestID returns the live request identifier.
func (h *ProcessHandle) RequestID() uint64 {
	return h.request.requestID()
}

// Cancel requests graceful cancellation of the in-flight execution.
// Advisory only; safe to call after the handle has resolved.
func (h *ProcessHandle) Cancel() {
	h.request.cancel()
}

// UpdateState sends a state:update for this in-flight execution.
func (h *ProcessHandle) UpdateState(path string, value any) error {
	return h.request.updateState(path, value)
}

// Wait blocks for completion and returns the output. Idempotent.
func (h *ProcessHandle) Wait() (string, error) {
	return h.Result()
}

// Result blocks for completion and returns the output. Idempotent.
func (h *ProcessHandle) Result() (string, error) {
	payload, _, err := h.request.waitRaw()
	if err != nil {
		return "", err
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return "", nil
	}

	output := fields["output"]
	if output == nil {
		output = fields["value"]
	}
	if output == nil {
		return "", nil
	}

	var text string
	if err := json.Unmarshal(output, &text); err == nil {
		return text, nil
	}
	// Non-string output is returned in its serialized form.
	return string(output), nil
}

// ExecuteHandle is an in-flight execute request.
type ExecuteHandle struct {
	request requestHandle
}

// RequestID returns the live request identifier.
func (h *ExecuteHandle) RequestID() uint64 {
	return h.request.requestID()
}

// Cancel requests graceful cancellation of the in-flight execution.
// Advisory only; safe to call after the handle has resolved.
func (h *ExecuteHandle) Cancel() {
	h.request.cancel()
}

// UpdateState sends a state:update for this in-flight execution.
func (h *ExecuteHandle) UpdateState(path string, value any) error {
	return h.request.updateState(path, value)
}

// Wait blocks for completion and returns the structured output. Idempotent.
func (h *ExecuteHandle) Wait() (*ExecuteResult, error) {
	return h.Result()
}

// Result blocks for completion and returns the structured output. Writes
// embedded in the result payload come before writes collected from events;
// duplicates by (path, serialized value) are dropped. Idempotent.
func (h *ExecuteHandle) Result() (*ExecuteResult, error) {
	payload, eventWrites, err := h.request.waitRaw()
	if err != nil {
		return nil, err
	}

	stripped := stripID(payload)

	var result ExecuteResult
	if err := json.Unmarshal(stripped, &result); err != nil {
		// Unexpected shape stays non-fatal: surface the raw payload as text.
		result = ExecuteResult{Output: string(stripped)}
	}

	result.StateWrites = mergeStateWrites(result.StateWrites, eventWrites)
	return &result, nil
}
