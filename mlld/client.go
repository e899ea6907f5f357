// Package mlld provides a Go client for the mlld CLI.
//
// The client drives a persistent worker process (`mlld live --stdio`) and
// multiplexes concurrent requests over it. Each operation has a synchronous
// form and an async form returning a handle that supports wait, cancel, and
// live state updates. A dead worker is replaced transparently on the next
// request.
//
// Example:
//
//	client := mlld.New()
//	defer client.Close()
//	output, err := client.Process(`/var @name = "World"
//	Hello, @name!`, nil)
package mlld

import (
	"encoding/json"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mlld-lang/mlld-go/config"
	"github.com/mlld-lang/mlld-go/live"
	"github.com/mlld-lang/mlld-go/logger"
)

// DefaultTimeout bounds operations when the caller sets no other deadline.
const DefaultTimeout = 30 * time.Second

// Client wraps the mlld CLI's persistent live transport.
//
// The exported fields configure how the worker is spawned and must not be
// changed once the first request has been issued. Any number of goroutines
// may issue requests concurrently against one Client.
type Client struct {
	// Command invokes the mlld CLI. Defaults to "mlld".
	Command string

	// CommandArgs are extra args placed before the live-mode selector.
	// Example: Command "node", CommandArgs ["./dist/cli.cjs"].
	CommandArgs []string

	// Timeout is the default deadline for operations. Zero means no timeout.
	Timeout time.Duration

	// WorkingDir is the working directory for script execution.
	WorkingDir string

	// mu guards the session slot. Held for the spawn/register/send sequence
	// only, never across a blocking wait.
	mu      sync.Mutex
	session *live.Session

	// nextRequestID is allocated atomically before any I/O and never reused,
	// even across session restarts.
	nextRequestID atomic.Uint64

	log *slog.Logger
}

// New creates a Client with default settings.
func New() *Client {
	return &Client{
		Command: "mlld",
		Timeout: DefaultTimeout,
		log:     logger.WithComponent("client"),
	}
}

// NewFromProject creates a Client configured from the project's
// .mlld/sdk.yaml, if present. Absent file or absent fields keep defaults.
func NewFromProject(projectPath string) (*Client, error) {
	cfg, err := config.Load(projectPath)
	if err != nil {
		return nil, err
	}
	c := New()
	c.ApplyConfig(cfg)
	return c, nil
}

// ApplyConfig overlays non-empty config fields onto the client. A nil config
// is a no-op.
func (c *Client) ApplyConfig(cfg *config.Config) {
	if cfg == nil {
		return
	}
	if cfg.Command != "" {
		c.Command = cfg.Command
	}
	if len(cfg.CommandArgs) > 0 {
		c.CommandArgs = cfg.CommandArgs
	}
	if cfg.WorkingDir != "" {
		c.WorkingDir = cfg.WorkingDir
	}
	if cfg.Timeout != nil {
		c.Timeout = cfg.Timeout.Duration
	}
}

// Close shuts down the persistent worker, if any. The client remains usable;
// the next request spawns a fresh worker.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session != nil {
		c.session.Close()
		c.session = nil
	}
}

// Process executes an mlld script string and returns the output.
func (c *Client) Process(script string, opts *ProcessOptions) (string, error) {
	handle, err := c.ProcessAsync(script, opts)
	if err != nil {
		return "", err
	}
	return handle.Result()
}

// ProcessAsync starts an mlld script execution and returns an in-flight
// request handle.
func (c *Client) ProcessAsync(script string, opts *ProcessOptions) (*ProcessHandle, error) {
	if opts == nil {
		opts = &ProcessOptions{}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.Timeout
	}

	id, ch, session, err := c.startRequest("process", processParams(script, opts))
	if err != nil {
		return nil, err
	}

	return &ProcessHandle{request: requestHandle{
		client:  c,
		session: session,
		id:      id,
		ch:      ch,
		timeout: timeout,
	}}, nil
}

// Execute runs an mlld file with a payload and optional state.
func (c *Client) Execute(filepath string, payload any, opts *ExecuteOptions) (*ExecuteResult, error) {
	handle, err := c.ExecuteAsync(filepath, payload, opts)
	if err != nil {
		return nil, err
	}
	return handle.Result()
}

// ExecuteAsync starts an mlld file execution and returns an in-flight
// request handle.
func (c *Client) ExecuteAsync(filepath string, payload any, opts *ExecuteOptions) (*ExecuteHandle, error) {
	if opts == nil {
		opts = &ExecuteOptions{}
	}

	timeout := opts.Timeout
	if timeout == 0 {
		timeout = c.Timeout
	}

	id, ch, session, err := c.startRequest("execute", executeParams(filepath, payload, opts))
	if err != nil {
		return nil, err
	}

	return &ExecuteHandle{request: requestHandle{
		client:  c,
		session: session,
		id:      id,
		ch:      ch,
		timeout: timeout,
	}}, nil
}

// Analyze performs static analysis on an mlld module without executing it.
func (c *Client) Analyze(filepath string) (*AnalyzeResult, error) {
	payload, _, err := c.request("analyze", map[string]any{"filepath": filepath}, c.Timeout)
	if err != nil {
		return nil, err
	}

	var result AnalyzeResult
	if err := json.Unmarshal(stripID(payload), &result); err != nil {
		return nil, &TransportError{Reason: "unexpected analyze result shape: " + err.Error()}
	}
	return &result, nil
}

// request is the synchronous round trip used by operations with no handle.
func (c *Client) request(method string, params any, timeout time.Duration) (json.RawMessage, []StateWrite, error) {
	id, ch, session, err := c.startRequest(method, params)
	if err != nil {
		return nil, nil, err
	}
	return c.awaitRequest(session, id, ch, timeout)
}

// startRequest allocates the next request id, acquires a live session
// (spawning one if needed), registers the id, and sends the request line.
// This is the only place ids are allocated and the only place sends happen
// for new requests. Registration precedes the send so a fast reply cannot
// arrive before its channel exists.
func (c *Client) startRequest(method string, params any) (uint64, <-chan live.Message, *live.Session, error) {
	id := c.nextRequestID.Add(1)

	c.mu.Lock()
	defer c.mu.Unlock()

	session, err := c.ensureSessionLocked()
	if err != nil {
		return 0, nil, nil, err
	}

	ch := session.Register(id)
	if err := session.Send(live.Request{Method: method, ID: id, Params: params}); err != nil {
		session.Remove(id)
		go drainMessages(ch)
		return 0, nil, nil, &TransportError{Reason: err.Error()}
	}

	c.clog().Debug("request sent", "method", method, "request_id", id)
	return id, ch, session, nil
}

// clog returns the client logger, initializing it for clients built as
// struct literals. Caller holds c.mu.
func (c *Client) clog() *slog.Logger {
	if c.log == nil {
		c.log = logger.WithComponent("client")
	}
	return c.log
}

// ensureSessionLocked returns the current session, replacing it if absent or
// dead. Caller holds c.mu.
func (c *Client) ensureSessionLocked() (*live.Session, error) {
	if c.session != nil && c.session.IsRunning() {
		return c.session, nil
	}

	if c.session != nil {
		c.clog().Info("worker is dead, spawning replacement")
		c.session.Close()
		c.session = nil
	}

	session, err := live.Spawn(c.Command, c.CommandArgs, c.WorkingDir)
	if err != nil {
		return nil, &TransportError{Reason: err.Error()}
	}
	c.session = session
	return session, nil
}

// awaitRequest blocks until the request's terminal message, collecting
// state:write events along the way. On timeout it sends a best-effort cancel
// and removes the registry entry so a late reply is simply dropped.
func (c *Client) awaitRequest(session *live.Session, id uint64, ch <-chan live.Message, timeout time.Duration) (json.RawMessage, []StateWrite, error) {
	var deadline <-chan time.Time
	if timeout > 0 {
		timer := time.NewTimer(timeout)
		defer timer.Stop()
		deadline = timer.C
	}

	var stateWrites []StateWrite
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				// The channel closes only after a terminal delivery or
				// removal, neither of which this waiter has seen; treat it
				// as a disconnect.
				c.invalidateSession(session)
				return nil, nil, &TransportError{Reason: "live transport disconnected"}
			}

			switch msg.Kind {
			case live.KindEvent:
				if write, ok := parseStateWrite(msg.Payload); ok {
					stateWrites = append(stateWrites, write)
				}

			case live.KindResult:
				var probe struct {
					Error json.RawMessage `json:"error"`
				}
				if err := json.Unmarshal(msg.Payload, &probe); err == nil && probe.Error != nil {
					return nil, nil, workerError(probe.Error)
				}
				return msg.Payload, stateWrites, nil

			case live.KindClosed:
				c.invalidateSession(session)
				return nil, nil, &TransportError{Reason: msg.Reason}
			}

		case <-deadline:
			c.cancelRequest(id)
			session.Remove(id)
			// A result that raced the removal may still be queued; drain
			// until the router-side queue shuts down.
			go drainMessages(ch)
			return nil, nil, &TimeoutError{Timeout: timeout}
		}
	}
}

// drainMessages discards deliveries for an abandoned request until its
// channel closes.
func drainMessages(ch <-chan live.Message) {
	for range ch {
	}
}

// cancelRequest sends a fire-and-forget cancel for id. No acknowledgment is
// awaited and send failures are ignored. The send happens outside the client
// lock so a stalled worker pipe cannot wedge other requests or teardown.
func (c *Client) cancelRequest(id uint64) {
	c.mu.Lock()
	session := c.session
	log := c.clog()
	c.mu.Unlock()

	if session == nil {
		return
	}
	if err := session.Send(live.Request{Method: "cancel", ID: id}); err != nil {
		log.Debug("cancel send failed", "request_id", id, "error", err)
	}
}

// invalidateSession clears the slot after a disconnect so the next request
// spawns fresh. The slot is only cleared if it still holds the session the
// caller observed the disconnect on; a replacement spawned in the meantime
// is left alone.
func (c *Client) invalidateSession(session *live.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.session == session {
		c.session.Close()
		c.session = nil
	}
}

// stripID removes the correlation id from a result payload before
// structural decoding.
func stripID(payload json.RawMessage) json.RawMessage {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(payload, &fields); err != nil {
		return payload
	}
	delete(fields, "id")
	stripped, err := json.Marshal(fields)
	if err != nil {
		return payload
	}
	return stripped
}
