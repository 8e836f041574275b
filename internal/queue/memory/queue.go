// Package memory provides the in-process task queue used by the worker pool.
package memory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/JakeFAU/coursebot/internal/portal"
)

// ErrClosed is returned once the queue has been closed.
var ErrClosed = errors.New("queue closed")

// Queue is a bounded in-memory queue with context-aware operations.
type Queue struct {
	ch     chan portal.QueueItem
	mu     sync.RWMutex
	closed bool
}

var _ portal.Queue = (*Queue)(nil)

// NewQueue constructs a queue holding up to capacity pending tasks.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{ch: make(chan portal.QueueItem, capacity)}
}

// Enqueue pushes a task or returns when ctx ends.
func (q *Queue) Enqueue(ctx context.Context, item portal.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case q.ch <- item:
		return nil
	}
}

// Dequeue pops the next task, respecting context cancellation.
func (q *Queue) Dequeue(ctx context.Context) (portal.QueueItem, error) {
	select {
	case <-ctx.Done():
		return portal.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return portal.QueueItem{}, ErrClosed
		}
		return item, nil
	}
}

// Len reports the number of pending tasks.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops intake. Pending tasks can still be dequeued.
func (q *Queue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return
	}
	close(q.ch)
	q.closed = true
}
