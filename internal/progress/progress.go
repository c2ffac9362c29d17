// Package progress fans out job-run events to SSE subscribers: one
// device-level executor.Result as each device finishes, then a final
// runner.JobResult when the job closes.
package progress

import (
	"sync"

	"github.com/velocitycollector/velocitycollector/internal/executor"
	"github.com/velocitycollector/velocitycollector/internal/runner"
)

const defaultBufferCap = 1000

// EventKind distinguishes a per-device update from the terminal job
// summary on an Event.
type EventKind int

const (
	EventDevice EventKind = iota
	EventJobDone
)

// Event is one message in a job run's event stream.
type Event struct {
	Kind   EventKind
	Device *executor.Result
	Job    *runner.JobResult
}

// run holds the state for a single job run's event stream.
type run struct {
	buf     []Event // circular buffer
	pos     int     // next write position
	count   int     // total events written (may exceed cap)
	clients map[chan Event]struct{}
	done    bool
}

// events returns the buffered events in order from oldest to newest.
func (r *run) events() []Event {
	n := len(r.buf)
	if n == 0 || r.pos == 0 {
		// Buffer is empty, or full with pos just wrapped to 0 — either
		// way buf is already in order.
		return r.buf
	}
	// pos points to the oldest entry once the buffer has wrapped; while it
	// is still filling, pos == n and buf[pos:] is empty.
	out := make([]Event, n)
	copy(out, r.buf[r.pos:])
	copy(out[n-r.pos:], r.buf[:r.pos])
	return out
}

// append adds an event to the circular buffer. O(1) regardless of size.
func (r *run) append(ev Event) {
	if len(r.buf) < cap(r.buf) {
		r.buf = append(r.buf, ev)
	} else {
		r.buf[r.pos] = ev
	}
	r.pos = (r.pos + 1) % cap(r.buf)
	r.count++
}

// Hub fans out job-run events to multiple SSE subscribers. It buffers
// the last defaultBufferCap events per run so late-joining clients
// receive catchup output before live streaming.
type Hub struct {
	mu   sync.Mutex
	runs map[int64]*run
}

// New creates a Hub ready for use.
func New() *Hub {
	return &Hub{
		runs: make(map[int64]*run),
	}
}

// getOrCreate returns the run for historyID, creating it if needed.
// Caller must hold h.mu.
func (h *Hub) getOrCreate(historyID int64) *run {
	r, ok := h.runs[historyID]
	if !ok {
		r = &run{
			buf:     make([]Event, 0, defaultBufferCap),
			clients: make(map[chan Event]struct{}),
		}
		h.runs[historyID] = r
	}
	return r
}

// PublishDevice fans out one device's result as it completes.
func (h *Hub) PublishDevice(historyID int64, res executor.Result) {
	h.publish(historyID, Event{Kind: EventDevice, Device: &res})
}

// PublishJobDone fans out the terminal job summary and should be
// followed by Close once subscribers have had a chance to read it.
func (h *Hub) PublishJobDone(historyID int64, result *runner.JobResult) {
	h.publish(historyID, Event{Kind: EventJobDone, Job: result})
}

func (h *Hub) publish(historyID int64, ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.getOrCreate(historyID)
	if r.done {
		return
	}

	r.append(ev)

	// Fan out to all connected clients. Non-blocking send so a slow
	// consumer cannot stall publishing.
	for ch := range r.clients {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Subscribe returns a channel that receives future events for the run
// and an unsubscribe function. Buffered events are sent immediately on
// the returned channel. If the run is already done, the buffered
// events are sent and the channel is closed.
func (h *Hub) Subscribe(historyID int64) (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r := h.getOrCreate(historyID)

	// Buffer enough for catchup + some live headroom.
	ch := make(chan Event, defaultBufferCap+64)

	// Replay buffered history.
	for _, ev := range r.events() {
		ch <- ev
	}

	if r.done {
		close(ch)
		return ch, func() {}
	}

	r.clients[ch] = struct{}{}

	unsubscribe := func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(r.clients, ch)
	}

	return ch, unsubscribe
}

// Close marks the run as done and closes all subscriber channels.
// Subsequent publishes for this run are no-ops. New subscribers will
// receive the full buffer and a closed channel.
func (h *Hub) Close(historyID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[historyID]
	if !ok {
		return
	}

	r.done = true
	for ch := range r.clients {
		close(ch)
	}
	r.clients = nil
}

// Remove deletes a run entirely, freeing its buffer memory. Any
// remaining subscribers are closed first.
func (h *Hub) Remove(historyID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[historyID]
	if !ok {
		return
	}

	for ch := range r.clients {
		close(ch)
	}
	delete(h.runs, historyID)
}

// IsActive returns true if the run exists and has not been closed.
func (h *Hub) IsActive(historyID int64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.runs[historyID]
	if !ok {
		return false
	}
	return !r.done
}
