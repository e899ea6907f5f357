package live

import "sync"

// registry maps in-flight request ids to their delivery queues.
//
// Invariant: an id is present from the moment its request line is written
// until exactly one terminal message (Result or Closed) has been delivered
// for it. The entry is removed either by routeResult/drainAll (router side)
// or by remove (timeout/cancel cleanup) — never both. A registered entry
// never loses a message: a consumer may start waiting long after its replies
// arrive, so queues grow without bound instead of applying backpressure to
// the reader.
type registry struct {
	mu      sync.Mutex
	pending map[uint64]*pendingEntry
}

// pendingEntry buffers deliveries for one request and feeds them to the
// consumer channel in order through a pump goroutine. The pump exits after
// flushing a terminal message, or immediately when the entry is removed;
// either way it closes out.
type pendingEntry struct {
	mu      sync.Mutex
	queue   []Message
	closing bool // terminal queued; pump flushes the queue then exits

	ready    chan struct{} // wakes the pump, capacity 1
	canceled chan struct{} // closed by remove: exit now, discard the queue
	out      chan Message
}

func newPendingEntry() *pendingEntry {
	return &pendingEntry{
		ready:    make(chan struct{}, 1),
		canceled: make(chan struct{}),
		out:      make(chan Message),
	}
}

// push appends one delivery. terminal marks the queue complete; pushes after
// a terminal are discarded.
func (e *pendingEntry) push(msg Message, terminal bool) {
	e.mu.Lock()
	if e.closing {
		e.mu.Unlock()
		return
	}
	e.queue = append(e.queue, msg)
	e.closing = terminal
	e.mu.Unlock()

	select {
	case e.ready <- struct{}{}:
	default:
	}
}

func (e *pendingEntry) pump() {
	defer close(e.out)
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			closing := e.closing
			e.mu.Unlock()
			if closing {
				return
			}
			select {
			case <-e.ready:
				continue
			case <-e.canceled:
				return
			}
		}
		msg := e.queue[0]
		e.queue = e.queue[1:]
		e.mu.Unlock()

		select {
		case e.out <- msg:
		case <-e.canceled:
			return
		}
	}
}

func newRegistry() *registry {
	return &registry{pending: make(map[uint64]*pendingEntry)}
}

// add creates and inserts a fresh delivery queue for id and returns its
// consumer end. Ids are unique per client, so an existing entry is never
// overwritten.
func (r *registry) add(id uint64) <-chan Message {
	e := newPendingEntry()
	go e.pump()
	r.mu.Lock()
	r.pending[id] = e
	r.mu.Unlock()
	return e.out
}

// remove unconditionally drops the entry for id and stops its pump,
// discarding anything still queued. Used by timeout and cancel cleanup so a
// reply that will never be awaited cannot leak a queue.
func (r *registry) remove(id uint64) {
	r.mu.Lock()
	e := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()
	if e != nil {
		close(e.canceled)
	}
}

// size returns the number of pending entries.
func (r *registry) size() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pending)
}

// routeEvent delivers msg without removing the entry: more events or the
// terminal result may still follow. Unknown ids are silently dropped.
func (r *registry) routeEvent(id uint64, msg Message) {
	r.mu.Lock()
	e := r.pending[id]
	r.mu.Unlock()
	if e != nil {
		e.push(msg, false)
	}
}

// routeResult removes the entry as part of delivery, so a second result for
// the same id is undeliverable. Unknown ids are silently dropped.
func (r *registry) routeResult(id uint64, msg Message) {
	r.mu.Lock()
	e := r.pending[id]
	delete(r.pending, id)
	r.mu.Unlock()
	if e != nil {
		e.push(msg, true)
	}
}

// drainAll removes every pending entry and queues a terminal Closed with the
// given reason for each. The lock is not held during delivery.
func (r *registry) drainAll(reason string) {
	r.mu.Lock()
	entries := make([]*pendingEntry, 0, len(r.pending))
	for _, e := range r.pending {
		entries = append(entries, e)
	}
	r.pending = make(map[uint64]*pendingEntry)
	r.mu.Unlock()

	for _, e := range entries {
		e.push(Message{Kind: KindClosed, Reason: reason}, true)
	}
}
