package service

import (
	"context"
	"sync"

	"github.com/eapache/queue"
)

// intake is the unbounded FIFO between producers and the engine worker.
// push never blocks; pop blocks until an item arrives, the intake closes, or
// ctx ends.
type intake struct {
	mu     sync.Mutex
	items  *queue.Queue
	closed bool
	wake   chan struct{}
}

func newIntake() *intake {
	return &intake{
		items: queue.New(),
		wake:  make(chan struct{}, 1),
	}
}

func (q *intake) push(c command) bool {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	q.items.Add(c)
	q.mu.Unlock()

	select {
	case q.wake <- struct{}{}:
	default:
	}
	return true
}

func (q *intake) pop(ctx context.Context) (command, bool) {
	for {
		q.mu.Lock()
		if q.closed {
			q.mu.Unlock()
			return nil, false
		}
		if q.items.Length() > 0 {
			c := q.items.Remove().(command)
			q.mu.Unlock()
			return c, true
		}
		q.mu.Unlock()

		select {
		case <-q.wake:
		case <-ctx.Done():
			return nil, false
		}
	}
}

// close refuses further pushes and drops whatever is still queued. Waiting
// queries are released with ErrNotRunning. Returns the number dropped.
func (q *intake) close() int {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return 0
	}
	q.closed = true
	var dropped []command
	for q.items.Length() > 0 {
		dropped = append(dropped, q.items.Remove().(command))
	}
	q.mu.Unlock()

	for _, c := range dropped {
		if qc, ok := c.(queryCommand); ok {
			qc.done <- queryResult{err: ErrNotRunning}
		}
	}
	select {
	case q.wake <- struct{}{}:
	default:
	}
	return len(dropped)
}

func (q *intake) len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.items.Length()
}
