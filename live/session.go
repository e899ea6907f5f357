// Package live implements the persistent stdio transport for the mlld CLI.
//
// One Session owns one `mlld live --stdio` worker process and multiplexes
// concurrent requests over its pipes: requests go out as JSON lines on stdin,
// and a background reader correlates event and result lines from stdout back
// to per-request delivery channels. A second background reader collects
// stderr so a disconnect can carry the worker's diagnostic text.
package live

import (
	"bufio"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/mlld-lang/mlld-go/logger"
)

const (
	// genericClosedReason is used when the worker exits without stderr output.
	genericClosedReason = "live transport closed"

	// maxLineBytes bounds a single reply line. Structured results can embed
	// whole rendered documents, so this is generous.
	maxLineBytes = 16 * 1024 * 1024
)

// Session owns exactly one live worker process, its three pipes, and the
// pending-request registry.
type Session struct {
	id  string
	log *slog.Logger

	cmd   *exec.Cmd
	stdin io.WriteCloser

	// writeMu serializes request lines onto the worker's stdin.
	writeMu sync.Mutex

	pending *registry

	// stderr diagnostic text, newline-joined, guarded by stderrMu.
	stderrMu  sync.Mutex
	stderrBuf strings.Builder

	// stderrDone is closed when the stderr collector has seen EOF. The stdout
	// reader waits on it before composing a Closed reason, so diagnostic text
	// written just before exit is not lost to a pipe race.
	stderrDone chan struct{}

	// waitDone is closed by the waiter goroutine once both readers have
	// finished and cmd.Wait has returned. The waiter is the sole caller of
	// cmd.Wait; Close and IsRunning coordinate through this channel.
	waitDone chan struct{}

	readers   sync.WaitGroup
	closeOnce sync.Once
}

// Spawn starts command with commandArgs plus the live-mode selector, captures
// stdin/stdout/stderr as pipes, and launches the reader goroutines.
func Spawn(command string, commandArgs []string, workingDir string) (*Session, error) {
	args := append([]string{}, commandArgs...)
	args = append(args, "live", "--stdio")

	cmd := exec.Command(command, args...)
	if workingDir != "" {
		cmd.Dir = workingDir
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to get stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		stdin.Close()
		return nil, fmt.Errorf("failed to start %s: %w", command, err)
	}

	s := &Session{
		id:         uuid.New().String(),
		cmd:        cmd,
		stdin:      stdin,
		pending:    newRegistry(),
		stderrDone: make(chan struct{}),
		waitDone:   make(chan struct{}),
	}
	s.log = logger.WithSession(s.id)
	s.log.Info("live session started", "command", command, "pid", cmd.Process.Pid)

	s.readers.Add(2)
	go func() {
		defer s.readers.Done()
		s.readStdout(stdout)
	}()
	go func() {
		defer s.readers.Done()
		s.readStderr(stderr)
	}()

	// The waiter joins the readers before reaping: both see EOF once the
	// process exits, and waiting here keeps cmd.Wait from closing the pipes
	// underneath them.
	go func() {
		s.readers.Wait()
		err := cmd.Wait()
		s.log.Debug("worker exited", "error", err)
		close(s.waitDone)
	}()

	return s, nil
}

// ID returns the session's identifier used for log correlation.
func (s *Session) ID() string {
	return s.id
}

// Register creates and inserts a fresh delivery channel for id and returns
// the consumer end. Must be called before Send for that id so a fast reply
// cannot arrive ahead of its channel.
func (s *Session) Register(id uint64) <-chan Message {
	return s.pending.add(id)
}

// Remove unconditionally drops the registry entry for id.
func (s *Session) Remove(id uint64) {
	s.pending.remove(id)
}

// Send writes one encoded request line to the worker's stdin. Write failures
// surface here, to the caller, never deferred to the reader.
func (s *Session) Send(req Request) error {
	line, err := EncodeRequest(req)
	if err != nil {
		return err
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.stdin.Write(line); err != nil {
		return fmt.Errorf("failed to write to worker: %w", err)
	}
	return nil
}

// IsRunning reports whether the worker process is still alive. Non-blocking.
func (s *Session) IsRunning() bool {
	select {
	case <-s.waitDone:
		return false
	default:
		return true
	}
}

// Close tears the session down: the worker is killed, stdin is closed, and
// the readers are joined via the waiter. Killing the worker closes its
// stdout, which unblocks the reader even if the worker ignores EOF on its
// stdin. The kill happens before writeMu is taken: a Send stalled on a full
// stdin pipe holds writeMu and only unblocks once the worker is gone.
// Safe to call multiple times.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.log.Debug("closing live session")

		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}

		s.writeMu.Lock()
		s.stdin.Close()
		s.writeMu.Unlock()

		<-s.waitDone

		s.log.Info("live session closed")
	})
}

// readStdout reads reply lines until end of stream or a read error.
//
// Blank lines are skipped. A malformed line makes correlation impossible, so
// every currently-pending request is failed with a Closed carrying the parse
// error — but the reader keeps going; later well-formed replies for new
// requests are routed normally. End of stream or a read error drains the
// registry with the collected stderr text (trimmed) as the reason.
func (s *Session) readStdout(stdout io.Reader) {
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		env, err := decodeEnvelope([]byte(line))
		if err != nil {
			s.log.Warn("unparseable line from worker", "error", err)
			s.pending.drainAll(fmt.Sprintf("invalid live response: %v", err))
			continue
		}

		if env.Event != nil {
			if id, ok := payloadID(env.Event); ok {
				s.pending.routeEvent(id, Message{Kind: KindEvent, Payload: env.Event})
			}
		}
		if env.Result != nil {
			if id, ok := payloadID(env.Result); ok {
				s.pending.routeResult(id, Message{Kind: KindResult, Payload: env.Result})
			}
		}
	}

	if err := scanner.Err(); err != nil {
		s.log.Debug("stdout read error", "error", err)
		s.pending.drainAll(fmt.Sprintf("live transport read error: %v", err))
		return
	}

	// EOF: the worker closed stdout (exit or kill). Wait for the stderr
	// collector so the Closed reason can carry the worker's last words.
	s.log.Debug("EOF on stdout - worker exited")
	<-s.stderrDone
	s.pending.drainAll(s.closeReason())
}

// readStderr collects diagnostic lines into the shared buffer. It never
// delivers to pending requests itself; it only supplies context text for the
// stdout reader's eventual Closed reason.
func (s *Session) readStderr(stderr io.Reader) {
	defer close(s.stderrDone)

	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		line := scanner.Text()
		s.stderrMu.Lock()
		if s.stderrBuf.Len() > 0 {
			s.stderrBuf.WriteByte('\n')
		}
		s.stderrBuf.WriteString(line)
		s.stderrMu.Unlock()
		s.log.Debug("worker stderr", "line", line)
	}
}

// closeReason returns the trimmed stderr text, or a generic reason if the
// worker produced none.
func (s *Session) closeReason() string {
	s.stderrMu.Lock()
	defer s.stderrMu.Unlock()
	text := strings.TrimSpace(s.stderrBuf.String())
	if text == "" {
		return genericClosedReason
	}
	return text
}
