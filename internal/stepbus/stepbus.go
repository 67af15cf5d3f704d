// Package stepbus implements the per-session bounded progress-event queue
// that streams orchestrator step events to an SSE consumer.
//
// Semantics are ported from the original service's asyncio.Queue-based
// streaming_steps module: any number of producers may emit events for a
// session, exactly one consumer streams them, emission is non-blocking
// (a full queue silently drops the newest event rather than block an
// agent), and the queue is torn down when the stream terminates.
package stepbus

import (
	"sync"
	"time"
)

// EventType enumerates the kinds of events a Step Bus can carry.
type EventType string

const (
	EventStep     EventType = "step"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
	EventTimeout  EventType = "timeout"
)

// Event is a single progress record. Agent/Action/Details describe what
// happened; Message is populated for error/timeout events.
type Event struct {
	Type      EventType `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	Action    string    `json:"action,omitempty"`
	Details   string    `json:"details,omitempty"`
	Message   string    `json:"message,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// DefaultQueueSize bounds each session's event channel. Overflow drops the
// newest event; progress loss is acceptable, back-pressure on agents is not.
const DefaultQueueSize = 256

// Bus maps session IDs to bounded event channels, single-writer-many /
// single-reader each. It is safe for concurrent use by many producers and
// many concurrently-streaming sessions.
type Bus struct {
	mu        sync.Mutex
	queues    map[string]chan Event
	queueSize int
	mirror    *KafkaMirror
}

// New constructs an empty Step Bus with the given per-session queue
// capacity. A non-positive size falls back to DefaultQueueSize.
func New(queueSize int) *Bus {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Bus{queues: make(map[string]chan Event), queueSize: queueSize}
}

// SetMirror attaches an optional durable Kafka mirror; a nil mirror
// disables mirroring (the default, and the only mode when no broker list
// is configured).
func (b *Bus) SetMirror(m *KafkaMirror) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mirror = m
}

// EnsureQueue idempotently creates (or returns the existing) queue for a
// session. Callers that want to guarantee no events are lost between
// "stream connected" and "first emit" should call this before starting
// any producer work.
func (b *Bus) EnsureQueue(sessionID string) chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	if q, ok := b.queues[sessionID]; ok {
		return q
	}
	q := make(chan Event, b.queueSize)
	b.queues[sessionID] = q
	return q
}

// Emit pushes an event onto a session's queue without blocking. If the
// session has no queue, or the queue is full, the event is silently
// dropped: producers (agents/orchestrator nodes) must never be made to
// wait on a slow or absent consumer.
func (b *Bus) Emit(sessionID string, ev Event) {
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now()
	}
	b.mu.Lock()
	q, ok := b.queues[sessionID]
	mirror := b.mirror
	b.mu.Unlock()
	if mirror != nil {
		go mirror.Publish(sessionID, ev)
	}
	if !ok {
		return
	}
	select {
	case q <- ev:
	default:
		// queue full: drop the newest event
	}
}

// Cleanup removes a session's queue. Safe to call multiple times.
func (b *Bus) Cleanup(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.queues, sessionID)
}

// Stream invokes fn for every event received on the session's queue until
// it observes an EventComplete event, the provided timeout elapses since
// streaming started (events do not reset it), or ctxDone fires. The queue is always
// removed before Stream returns, regardless of how it terminated.
//
// fn's return value controls continuation: returning false stops the
// stream early (e.g. the HTTP client disconnected).
func (b *Bus) Stream(sessionID string, timeout time.Duration, ctxDone <-chan struct{}, fn func(Event) bool) {
	q := b.EnsureQueue(sessionID)
	defer b.Cleanup(sessionID)

	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	poll := time.NewTicker(time.Second)
	defer poll.Stop()

	for {
		select {
		case <-ctxDone:
			return
		case <-deadline.C:
			fn(Event{Type: EventTimeout, Message: "Step streaming timed out", Timestamp: time.Now()})
			return
		case ev := <-q:
			if !fn(ev) {
				return
			}
			if ev.Type == EventComplete {
				return
			}
		case <-poll.C:
			// no event since last poll; loop back to re-check the deadline
		}
	}
}
