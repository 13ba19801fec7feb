package store

import "sync"

// changeQueue is a thread-safe FIFO of committed changes awaiting delivery
// to one context.
//
// Writers on any goroutine enqueue; the context owner drains. The queue uses
// a channel for signaling to enable context-aware waiting in Context.Run.
type changeQueue struct {
	mu      sync.Mutex
	changes []Change
	closed  bool
	signal  chan struct{} // Signals change availability (buffered, size 1)
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		changes: make([]Change, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a change to the back of the queue.
// Returns false if the queue is closed.
func (q *changeQueue) Enqueue(c Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	q.changes = append(q.changes, c)

	// Non-blocking: the buffer of 1 coalesces multiple signals
	select {
	case q.signal <- struct{}{}:
	default:
	}

	return true
}

// Drain removes and returns every queued change in enqueue order.
func (q *changeQueue) Drain() []Change {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return nil
	}
	out := q.changes
	q.changes = make([]Change, 0, cap(out))
	return out
}

// Wait returns a channel that signals when changes may be available.
// The channel is closed when the queue is closed.
func (q *changeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Len returns the current queue length.
func (q *changeQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.changes)
}

// Close drops pending changes and wakes any waiters.
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return
	}

	q.closed = true
	q.changes = nil
	close(q.signal)
}
