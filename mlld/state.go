package mlld

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

const (
	codeRequestNotFound = "REQUEST_NOT_FOUND"

	// The worker registers a request id as eligible for live state mutation
	// asynchronously relative to the client learning the request started, so
	// a short not-found window is expected and absorbed by retrying. A
	// request that already completed keeps answering not-found, so the retry
	// is bounded by stateUpdateMaxWait.
	stateUpdateRetryInterval = 25 * time.Millisecond
	stateUpdateMaxWait       = 2 * time.Second
)

// parseStateWrite decodes a state:write event payload. Returns false for any
// other event shape.
func parseStateWrite(event json.RawMessage) (StateWrite, bool) {
	var probe struct {
		Type  string `json:"type"`
		Write *struct {
			Path      string `json:"path"`
			Value     any    `json:"value"`
			Timestamp string `json:"timestamp"`
		} `json:"write"`
	}
	if err := json.Unmarshal(event, &probe); err != nil {
		return StateWrite{}, false
	}
	if probe.Type != "state:write" || probe.Write == nil || probe.Write.Path == "" {
		return StateWrite{}, false
	}
	return StateWrite{
		Path:      probe.Write.Path,
		Value:     probe.Write.Value,
		Timestamp: probe.Write.Timestamp,
	}, true
}

// mergeStateWrites combines two sources of writes, deduplicating by
// (path, serialized value) with first-seen-wins ordering. Primary entries
// take precedence over secondary ones.
func mergeStateWrites(primary, secondary []StateWrite) []StateWrite {
	if len(secondary) == 0 {
		return primary
	}
	if len(primary) == 0 {
		return secondary
	}

	merged := make([]StateWrite, 0, len(primary)+len(secondary))
	seen := make(map[string]bool)
	for _, w := range append(append([]StateWrite{}, primary...), secondary...) {
		key := stateWriteKey(w)
		if !seen[key] {
			seen[key] = true
			merged = append(merged, w)
		}
	}
	return merged
}

func stateWriteKey(w StateWrite) string {
	value, err := json.Marshal(w.Value)
	if err != nil {
		value = []byte("null")
	}
	return w.Path + "|" + string(value)
}

// updateStateRequest issues a state:update against an in-flight request id,
// retrying the expected registration race.
func (c *Client) updateStateRequest(requestID uint64, path string, value any, timeout time.Duration) error {
	if strings.TrimSpace(path) == "" {
		return &TransportError{Reason: "state update path is required"}
	}

	maxWait := timeout
	if maxWait <= 0 {
		maxWait = stateUpdateMaxWait
	}
	deadline := time.Now().Add(maxWait)

	params := map[string]any{
		"requestId": requestID,
		"path":      path,
		"value":     value,
	}

	for {
		_, _, err := c.request("state:update", params, timeout)
		if err == nil {
			return nil
		}

		var workerErr *WorkerError
		if !errors.As(err, &workerErr) || workerErr.Code != codeRequestNotFound {
			return err
		}
		if !time.Now().Before(deadline) {
			return &WorkerError{
				Message: fmt.Sprintf("no active request for id %d", requestID),
				Code:    codeRequestNotFound,
			}
		}
		time.Sleep(stateUpdateRetryInterval)
	}
}
