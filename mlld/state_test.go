package mlld

import (
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestParseStateWrite(t *testing.T) {
	tests := []struct {
		name     string
		event    string
		wantOK   bool
		wantPath string
	}{
		{
			name:     "valid write",
			event:    `{"id":1,"type":"state:write","write":{"path":"count","value":2,"timestamp":"2026-01-01T00:00:00Z"}}`,
			wantOK:   true,
			wantPath: "count",
		},
		{
			name:   "wrong event type",
			event:  `{"id":1,"type":"progress","write":{"path":"count","value":2}}`,
			wantOK: false,
		},
		{
			name:   "missing write payload",
			event:  `{"id":1,"type":"state:write"}`,
			wantOK: false,
		},
		{
			name:   "missing path",
			event:  `{"id":1,"type":"state:write","write":{"value":2}}`,
			wantOK: false,
		},
		{
			name:     "null value kept",
			event:    `{"id":1,"type":"state:write","write":{"path":"flag","value":null}}`,
			wantOK:   true,
			wantPath: "flag",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			write, ok := parseStateWrite(json.RawMessage(tt.event))
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && write.Path != tt.wantPath {
				t.Errorf("Path = %q, want %q", write.Path, tt.wantPath)
			}
		})
	}
}

func TestMergeStateWrites(t *testing.T) {
	a := StateWrite{Path: "count", Value: float64(2)}
	b := StateWrite{Path: "flag", Value: true}
	aOther := StateWrite{Path: "count", Value: float64(3)}

	tests := []struct {
		name      string
		primary   []StateWrite
		secondary []StateWrite
		wantPaths []string
	}{
		{"both empty", nil, nil, nil},
		{"primary only", []StateWrite{a}, nil, []string{"count"}},
		{"secondary only", nil, []StateWrite{b}, []string{"flag"}},
		{"duplicate dropped", []StateWrite{a, b}, []StateWrite{a}, []string{"count", "flag"}},
		{"same path different value kept", []StateWrite{a}, []StateWrite{aOther}, []string{"count", "count"}},
		{"primary order wins", []StateWrite{b, a}, []StateWrite{a, b}, []string{"flag", "count"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			merged := mergeStateWrites(tt.primary, tt.secondary)
			if len(merged) != len(tt.wantPaths) {
				t.Fatalf("merged = %+v, want %d entries", merged, len(tt.wantPaths))
			}
			for i, path := range tt.wantPaths {
				if merged[i].Path != path {
					t.Errorf("merged[%d].Path = %q, want %q", i, merged[i].Path, path)
				}
			}
		})
	}
}

func TestUpdateState_BlankPath(t *testing.T) {
	// Fails before any round trip: no worker needed.
	c := New()
	c.Command = "/nonexistent/mlld-binary"

	err := c.updateStateRequest(1, "   ", true, 0)
	var transportErr *TransportError
	if !errors.As(err, &transportErr) {
		t.Fatalf("Expected TransportError, got %v", err)
	}
	if !strings.Contains(transportErr.Reason, "path is required") {
		t.Errorf("Reason = %q", transportErr.Reason)
	}
}

func TestUpdateState_RetriesNotFound(t *testing.T) {
	// First state:update answers REQUEST_NOT_FOUND; the retry succeeds.
	flag := filepath.Join(t.TempDir(), "caught-up")
	c := newTestClient(t, fmt.Sprintf(`while read line; do
  id=$(printf '%%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  if [ ! -f %q ]; then
    touch %q
    printf '{"result":{"id":%%s,"error":{"message":"No active request","code":"REQUEST_NOT_FOUND"}}}\n' "$id"
  else
    printf '{"result":{"id":%%s,"output":"ok"}}\n' "$id"
  fi
done`, flag, flag))

	start := time.Now()
	if err := c.updateStateRequest(7, "exit", true, 0); err != nil {
		t.Fatalf("updateStateRequest failed: %v", err)
	}
	if elapsed := time.Since(start); elapsed < stateUpdateRetryInterval {
		t.Errorf("Succeeded in %v without the retry sleep", elapsed)
	}
}

func TestUpdateState_NotFoundUntilDeadline(t *testing.T) {
	c := newTestClient(t, `while read line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  printf '{"result":{"id":%s,"error":{"message":"No active request","code":"REQUEST_NOT_FOUND"}}}\n' "$id"
done`)

	err := c.updateStateRequest(9, "exit", true, 150*time.Millisecond)

	var workerErr *WorkerError
	if !errors.As(err, &workerErr) {
		t.Fatalf("Expected WorkerError, got %v", err)
	}
	if workerErr.Code != codeRequestNotFound {
		t.Errorf("Code = %q, want %s", workerErr.Code, codeRequestNotFound)
	}
	if !strings.Contains(workerErr.Message, "9") {
		t.Errorf("Message = %q, want target id included", workerErr.Message)
	}
}

func TestUpdateState_OtherErrorImmediate(t *testing.T) {
	c := newTestClient(t, `while read line; do
  id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
  printf '{"result":{"id":%s,"error":{"message":"path is read-only","code":"FORBIDDEN"}}}\n' "$id"
done`)

	start := time.Now()
	err := c.updateStateRequest(3, "exit", true, 0)
	elapsed := time.Since(start)

	var workerErr *WorkerError
	if !errors.As(err, &workerErr) {
		t.Fatalf("Expected WorkerError, got %v", err)
	}
	if workerErr.Code != "FORBIDDEN" {
		t.Errorf("Code = %q, want FORBIDDEN", workerErr.Code)
	}
	if elapsed > time.Second {
		t.Errorf("Took %v, want immediate failure without retries", elapsed)
	}
}

func TestUpdateState_ViaHandle(t *testing.T) {
	// A state:update for the in-flight request unblocks the worker's loop;
	// the original request then completes.
	c := newTestClient(t, `read first
first_id=$(printf '%s' "$first" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
read update
update_id=$(printf '%s' "$update" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"result":{"id":%s,"output":"updated"}}\n' "$update_id"
printf '{"result":{"id":%s,"output":"loop-stopped"}}\n' "$first_id"
read rest`)

	h, err := c.ProcessAsync("loop until exit", nil)
	if err != nil {
		t.Fatalf("ProcessAsync failed: %v", err)
	}

	if err := h.UpdateState("exit", true); err != nil {
		t.Fatalf("UpdateState failed: %v", err)
	}

	output, err := h.Result()
	if err != nil {
		t.Fatalf("Result failed: %v", err)
	}
	if output != "loop-stopped" {
		t.Errorf("Output = %q, want loop-stopped", output)
	}
}
