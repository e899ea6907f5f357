package mlld

import (
	"errors"
	"testing"
)

func TestProcessHandle_ResultIdempotent(t *testing.T) {
	c := newTestClient(t, `read line
id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"event":{"id":%s,"type":"state:write","write":{"path":"count","value":1}}}\n' "$id"
printf '{"result":{"id":%s,"output":"once"}}\n' "$id"
read rest`)

	h, err := c.ProcessAsync("script", nil)
	if err != nil {
		t.Fatalf("ProcessAsync failed: %v", err)
	}

	first, err := h.Result()
	if err != nil {
		t.Fatalf("First Result failed: %v", err)
	}
	second, err := h.Result()
	if err != nil {
		t.Fatalf("Second Result failed: %v", err)
	}
	if first != second || first != "once" {
		t.Errorf("Results differ: %q then %q", first, second)
	}
}

func TestProcessHandle_OutputFallsBackToValue(t *testing.T) {
	c := newTestClient(t, `read line
id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"result":{"id":%s,"value":"from-value"}}\n' "$id"
read rest`)

	output, err := c.Process("script", nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if output != "from-value" {
		t.Errorf("Output = %q, want from-value", output)
	}
}

func TestProcessHandle_NonStringOutput(t *testing.T) {
	c := newTestClient(t, `read line
id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"result":{"id":%s,"output":42}}\n' "$id"
read rest`)

	output, err := c.Process("script", nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if output != "42" {
		t.Errorf("Output = %q, want serialized 42", output)
	}
}

func TestProcessHandle_NoOutputKey(t *testing.T) {
	c := newTestClient(t, `read line
id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"result":{"id":%s}}\n' "$id"
read rest`)

	output, err := c.Process("script", nil)
	if err != nil {
		t.Fatalf("Process failed: %v", err)
	}
	if output != "" {
		t.Errorf("Output = %q, want empty", output)
	}
}

func TestExecuteHandle_ResultIdempotent(t *testing.T) {
	c := newTestClient(t, `read line
id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"result":{"id":%s,"output":"done","stateWrites":[{"path":"count","value":3}]}}\n' "$id"
read rest`)

	h, err := c.ExecuteAsync("main.mld", nil, nil)
	if err != nil {
		t.Fatalf("ExecuteAsync failed: %v", err)
	}

	first, err := h.Result()
	if err != nil {
		t.Fatalf("First Result failed: %v", err)
	}
	second, err := h.Result()
	if err != nil {
		t.Fatalf("Second Result failed: %v", err)
	}

	if first.Output != second.Output || first.Output != "done" {
		t.Errorf("Outputs differ: %q then %q", first.Output, second.Output)
	}
	if len(first.StateWrites) != 1 || len(second.StateWrites) != 1 {
		t.Fatalf("StateWrites = %+v then %+v, want one each", first.StateWrites, second.StateWrites)
	}
	if first.StateWrites[0].Path != second.StateWrites[0].Path {
		t.Errorf("State write paths differ: %q then %q",
			first.StateWrites[0].Path, second.StateWrites[0].Path)
	}
}

func TestExecuteHandle_PlainTextFallback(t *testing.T) {
	// output has the wrong type for structural decoding; the raw payload
	// (minus the id) is surfaced as text instead of failing the call.
	c := newTestClient(t, `read line
id=$(printf '%s' "$line" | sed -n 's/.*"id":\([0-9]*\).*/\1/p')
printf '{"result":{"id":%s,"output":{"unexpected":"shape"}}}\n' "$id"
read rest`)

	result, err := c.Execute("main.mld", nil, nil)
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Output == "" {
		t.Error("Expected raw payload as fallback output")
	}
}

func TestRequestHandle_ConsumedReceiver(t *testing.T) {
	h := &requestHandle{client: New()}

	_, _, err := h.waitRaw()
	if !errors.Is(err, ErrHandleConsumed) {
		t.Fatalf("Expected ErrHandleConsumed, got %v", err)
	}
}
