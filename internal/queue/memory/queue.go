// Package memory provides the bounded in-process task queue that feeds the
// generation workers.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/conductio-api/internal/conductio"
)

// Queue is a bounded FIFO with context-aware operations.
type Queue struct {
	ch        chan conductio.QueueItem
	done      chan struct{}
	closeOnce sync.Once
	mu        sync.RWMutex
	closed    bool
}

// NewQueue constructs a queue holding at most capacity pending items.
func NewQueue(capacity int) *Queue {
	if capacity < 0 {
		capacity = 0
	}
	return &Queue{ch: make(chan conductio.QueueItem, capacity), done: make(chan struct{})}
}

// Enqueue adds an item, waiting for space until ctx ends or the queue closes.
func (q *Queue) Enqueue(ctx context.Context, item conductio.QueueItem) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return conductio.ErrQueueClosed
	}
	select {
	case <-ctx.Done():
		return fmt.Errorf("enqueue canceled: %w", ctx.Err())
	case <-q.done:
		return conductio.ErrQueueClosed
	case q.ch <- item:
		return nil
	}
}

// Dequeue returns the next item, blocking until one arrives or ctx ends.
func (q *Queue) Dequeue(ctx context.Context) (conductio.QueueItem, error) {
	select {
	case <-ctx.Done():
		return conductio.QueueItem{}, fmt.Errorf("dequeue canceled: %w", ctx.Err())
	case item, ok := <-q.ch:
		if !ok {
			return conductio.QueueItem{}, conductio.ErrQueueClosed
		}
		return item, nil
	}
}

// Len reports the number of pending items.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting items and releases blocked enqueuers. Pending items
// can still be dequeued.
func (q *Queue) Close() {
	q.closeOnce.Do(func() {
		close(q.done)
		q.mu.Lock()
		defer q.mu.Unlock()
		q.closed = true
		close(q.ch)
	})
}
