// Package dispatcher manages worker fan-out over the task queue.
package dispatcher

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/coursebot/internal/portal"
	"github.com/JakeFAU/coursebot/internal/worker"
)

// Dispatcher fans out queued tasks to a pool of workers.
type Dispatcher struct {
	queue   portal.Queue
	workers []*worker.Worker
}

// New creates a Dispatcher.
func New(queue portal.Queue, workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{
		queue:   queue,
		workers: workers,
	}
}

// NewPool creates a Dispatcher with n workers sharing runner. Browser work is
// serialized by the portal session, so n is usually small.
func NewPool(n int, queue portal.Queue, tasks portal.TaskStore, runner worker.Runner, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := make([]*worker.Worker, 0, n)
	for i := 0; i < n; i++ {
		workers = append(workers, worker.New(queue, tasks, runner, logger.With(zap.Int("worker", i))))
	}
	return New(queue, workers)
}

// Run starts all workers and blocks until every worker has returned, which
// happens once ctx finishes or the queue closes.
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

// Enqueue proxies to the underlying queue.
func (d *Dispatcher) Enqueue(ctx context.Context, item portal.QueueItem) error {
	if err := d.queue.Enqueue(ctx, item); err != nil {
		return fmt.Errorf("queue enqueue: %w", err)
	}
	return nil
}
