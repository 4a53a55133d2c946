package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
)

// Job is one unit of work. Jobs sharing a Key run one at a time in
// submission order; jobs with different keys run concurrently.
type Job struct {
	Key string
	Run func(ctx context.Context)
}

// Dispatcher runs jobs on a bounded number of workers.
type Dispatcher struct {
	slots  chan struct{}
	logger *slog.Logger

	mu     sync.Mutex
	queues map[string][]Job
	wg     sync.WaitGroup
}

// New creates a Dispatcher running at most workers jobs at once.
func New(workers int, logger *slog.Logger) *Dispatcher {
	if workers < 1 {
		workers = 1
	}
	return &Dispatcher{
		slots:  make(chan struct{}, workers),
		logger: logger,
		queues: make(map[string][]Job),
	}
}

// Run consumes jobs until ctx is cancelled or jobs is closed, then waits for
// every accepted job to finish. Jobs run with a context that is not cancelled
// on shutdown, so in-flight work completes. It returns nil on graceful shutdown.
func (d *Dispatcher) Run(ctx context.Context, jobs <-chan Job) error {
	d.logger.Info("starting dispatcher", "workers", cap(d.slots))

	jobCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			d.logger.Info("shutting down dispatcher, draining")
			d.Wait()
			return nil
		case job, ok := <-jobs:
			if !ok {
				d.Wait()
				return nil
			}
			d.Submit(jobCtx, job)
		}
	}
}

// Submit queues job behind any pending jobs with the same key.
func (d *Dispatcher) Submit(ctx context.Context, job Job) {
	d.mu.Lock()
	pending, busy := d.queues[job.Key]
	d.queues[job.Key] = append(pending, job)
	d.mu.Unlock()

	if busy {
		return
	}
	d.wg.Add(1)
	go d.drain(ctx, job.Key)
}

// Wait blocks until every submitted job has finished.
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}

// drain runs the queue for key until it is empty.
func (d *Dispatcher) drain(ctx context.Context, key string) {
	defer d.wg.Done()

	for {
		d.mu.Lock()
		queue := d.queues[key]
		if len(queue) == 0 {
			delete(d.queues, key)
			d.mu.Unlock()
			return
		}
		job := queue[0]
		d.mu.Unlock()

		d.slots <- struct{}{}
		d.runOne(ctx, job)
		<-d.slots

		d.mu.Lock()
		d.queues[key] = d.queues[key][1:]
		d.mu.Unlock()
	}
}

func (d *Dispatcher) runOne(ctx context.Context, job Job) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("job panicked",
				"key", job.Key,
				"panic", fmt.Sprint(r),
				"stack", string(debug.Stack()),
			)
		}
	}()
	job.Run(ctx)
}
