package indexer

import (
	"sync"
	"time"
)

// eventQueue is an unbounded FIFO connecting event producers (lifecycle
// calls, watcher, rescan ticker) to the single worker. Enqueue never blocks
// the caller; Dequeue blocks with a timeout so the worker can observe
// shutdown requests promptly. Only lifecycle-driven event kinds ever flow
// through it, so no backpressure is needed.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	signal chan struct{}
	closed bool
}

func newEventQueue() *eventQueue {
	return &eventQueue{
		signal: make(chan struct{}, 1),
	}
}

// Enqueue appends an event. Returns false if the queue has been closed.
func (q *eventQueue) Enqueue(ev Event) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// Dequeue pops the oldest event, waiting up to timeout for one to arrive.
// The second return is false when the wait timed out or the queue is closed
// and drained.
func (q *eventQueue) Dequeue(timeout time.Duration) (Event, bool) {
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		q.mu.Lock()
		if len(q.items) > 0 {
			ev := q.items[0]
			q.items = q.items[1:]
			q.mu.Unlock()
			return ev, true
		}
		closed := q.closed
		q.mu.Unlock()

		if closed {
			return Event{}, false
		}

		select {
		case <-q.signal:
		case <-deadline.C:
			return Event{}, false
		}
	}
}

// Len returns the number of pending events.
func (q *eventQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Close marks the queue closed and wakes any waiter. Pending events are
// still drained by subsequent Dequeue calls.
func (q *eventQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}
