// Package dispatcher runs the worker pool over the generation queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/conductio-api/internal/conductio"
	"github.com/JakeFAU/conductio-api/internal/worker"
)

// Dispatcher fans out queue work to a pool of workers.
type Dispatcher struct {
	queue   conductio.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue conductio.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// Run starts all workers and blocks until every worker has returned, which
// happens when ctx ends or the queue is closed and drained.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}

// Enqueue hands an accepted job to the pool.
func (d *Dispatcher) Enqueue(ctx context.Context, item conductio.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}

// Size returns the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}
