package live

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// MessageKind discriminates deliveries on a pending request's channel.
type MessageKind int

const (
	// KindEvent is a non-terminal out-of-band notification. Zero or more may
	// be delivered per request.
	KindEvent MessageKind = iota

	// KindResult is the terminal reply. Exactly one is delivered on success;
	// it may carry an embedded error payload.
	KindResult

	// KindClosed is delivered to every still-pending request when the worker
	// or its stdout stream becomes unusable. Terminal.
	KindClosed
)

// Message is one delivery on a pending request's channel.
type Message struct {
	Kind    MessageKind
	Payload json.RawMessage // event or result body; nil for KindClosed
	Reason  string          // set for KindClosed only
}

// Request is the client→worker line shape.
type Request struct {
	Method string `json:"method"`
	ID     uint64 `json:"id"`
	Params any    `json:"params,omitempty"`
}

// EncodeRequest serializes a request as a single newline-terminated JSON line.
func EncodeRequest(req Request) ([]byte, error) {
	data, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode request %d: %w", req.ID, err)
	}
	return append(data, '\n'), nil
}

// envelope is one worker→client line. At most one of Event or Result is set;
// a field is nil when the key is absent.
type envelope struct {
	Event  json.RawMessage `json:"event"`
	Result json.RawMessage `json:"result"`
}

func decodeEnvelope(line []byte) (envelope, error) {
	var env envelope
	err := json.Unmarshal(line, &env)
	if err == nil {
		return env, nil
	}
	// Valid JSON that is not an object (a bare number, array, or string)
	// carries no envelope keys. Such a line is a no-op, not a correlation
	// failure.
	if json.Valid(line) {
		return envelope{}, nil
	}
	return envelope{}, err
}

// requestID accepts both JSON numbers and numeric strings; workers are not
// consistent about which they emit.
type requestID uint64

func (r *requestID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return fmt.Errorf("request id %q is not numeric", s)
		}
		*r = requestID(n)
		return nil
	}
	var n uint64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*r = requestID(n)
	return nil
}

// payloadID extracts the correlation id from an event or result body.
func payloadID(body json.RawMessage) (uint64, bool) {
	var probe struct {
		ID *requestID `json:"id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil || probe.ID == nil {
		return 0, false
	}
	return uint64(*probe.ID), true
}
