package mlld

import (
	"encoding/json"
	"strings"
	"testing"
	"time"
)

func TestErrorStrings(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"worker", &WorkerError{Message: "parse failed", Code: "PARSE_ERROR"}, "mlld error: parse failed"},
		{"transport", &TransportError{Reason: "worker crashed"}, "transport error: worker crashed"},
		{"timeout", &TimeoutError{Timeout: 30 * time.Second}, "timeout after 30s"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWorkerError_FromPayload(t *testing.T) {
	tests := []struct {
		name        string
		payload     string
		wantMessage string
		wantCode    string
	}{
		{
			name:        "message and code",
			payload:     `{"message":"No active request","code":"REQUEST_NOT_FOUND"}`,
			wantMessage: "No active request",
			wantCode:    "REQUEST_NOT_FOUND",
		},
		{
			name:        "message only",
			payload:     `{"message":"boom"}`,
			wantMessage: "boom",
		},
		{
			name:        "empty payload gets default message",
			payload:     `{}`,
			wantMessage: "mlld request failed",
		},
		{
			name:        "non-object payload gets default message",
			payload:     `"oops"`,
			wantMessage: "mlld request failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := workerError(json.RawMessage(tt.payload))
			if err.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", err.Message, tt.wantMessage)
			}
			if err.Code != tt.wantCode {
				t.Errorf("Code = %q, want %q", err.Code, tt.wantCode)
			}
		})
	}
}

func TestValidationDistinguishableByMessage(t *testing.T) {
	err := &TransportError{Reason: "state update path is required"}
	if !strings.Contains(err.Error(), "path is required") {
		t.Errorf("Validation failure not identifiable from %q", err.Error())
	}
}
