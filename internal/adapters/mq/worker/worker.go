// Package worker runs queued training jobs off the request path.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/okian/stride/internal/adapters/mq/queue"
	"github.com/okian/stride/pkg/logger"
	"github.com/okian/stride/pkg/metrics"
)

const (
	defaultWorkerCount  = 1
	poolShutdownTimeout = 30 * time.Second
)

// Job abstracts what workers read off the queue.
type Job = queue.Job

// Handler executes one job.
type Handler interface {
	Handle(ctx context.Context, j Job) error
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, j Job) error

// Handle calls f.
func (f HandlerFunc) Handle(ctx context.Context, j Job) error { return f(ctx, j) }

// Queue defines how workers receive jobs.
type Queue interface {
	Dequeue(ctx context.Context) <-chan Job
}

// Worker processes jobs until stopped.
type Worker interface {
	// Run starts the worker loop until ctx is canceled.
	Run(ctx context.Context)

	// Shutdown stops the worker after its current job, or after the
	// remaining jobs when the queue is already closed.
	Shutdown(ctx context.Context) error
}

// InMemoryWorker implements Worker over a Queue.
type InMemoryWorker struct {
	queue   Queue
	handler Handler
	name    string

	shutdown     chan struct{}
	shutdownOnce sync.Once
	done         chan struct{}

	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, h Handler, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:    q,
		handler:  h,
		name:     "worker",
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
		logger:   logger.Discard(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = w.logger.Named(w.name)
	return w
}

// Run starts the worker loop. After Shutdown, a worker over a closed queue
// keeps handling jobs until the queue is drained; otherwise it returns once
// the current job is done. Cancelling ctx stops it immediately.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := w.queue.Dequeue(ctx)
	shutdown := w.shutdown
	for {
		select {
		case <-ctx.Done():
			return
		case <-shutdown:
			if !w.draining() {
				return
			}
			w.logger.Info(ctx, "draining queued training jobs")
			shutdown = nil
		case j, ok := <-jobs:
			if !ok {
				return
			}
			if err := w.process(ctx, j); err != nil {
				w.logger.Error(ctx, "training job failed", logger.Error(err))
			}
		}
	}
}

// draining reports whether the queue was closed and only needs emptying.
func (w *InMemoryWorker) draining() bool {
	c, ok := w.queue.(interface{ IsClosed() bool })
	return ok && c.IsClosed()
}

// Shutdown gracefully stops the worker.
func (w *InMemoryWorker) Shutdown(ctx context.Context) error {
	w.shutdownOnce.Do(func() { close(w.shutdown) })

	select {
	case <-w.done:
		return nil
	case <-ctx.Done():
		w.logger.Warn(ctx, "shutdown timed out")
		return fmt.Errorf("shutdown timed out: %w", ctx.Err())
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, j Job) (err error) {
	start := time.Now()
	metrics.AddWorkerBusy(1)
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("job %s panicked: %v", j.ID, p)
		}
		metrics.AddWorkerBusy(-1)
		metrics.RecordWorkerJob(time.Since(start), err != nil)
		if err != nil {
			metrics.RecordErrorByComponent("worker", "job_failed")
		}
	}()

	w.logger.Info(ctx, "training job started",
		logger.String("job_id", j.ID),
		logger.String("event", j.Event))
	if err := w.handler.Handle(ctx, j); err != nil {
		return fmt.Errorf("job %s for %s: %w", j.ID, j.Event, err)
	}
	w.logger.Info(ctx, "training job finished",
		logger.String("job_id", j.ID),
		logger.Duration("took", time.Since(start)))
	return nil
}

// Pool manages multiple workers.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue
	cancel  context.CancelFunc
	logger  logger.Logger
}

// NewPool creates a pool of workerCount workers sharing q and h.
func NewPool(workerCount int, q Queue, h Handler, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = defaultWorkerCount
	}
	p := &Pool{
		workers: make([]*InMemoryWorker, workerCount),
		queue:   q,
		logger:  logger.Discard(),
	}
	for i := range p.workers {
		wopts := append([]Option{WithName("worker-" + strconv.Itoa(i))}, opts...)
		p.workers[i] = NewInMemoryWorker(q, h, wopts...)
	}
	if len(p.workers) > 0 {
		p.logger = p.workers[0].logger
	}
	metrics.UpdateWorkerCount(workerCount)
	return p
}

// Size returns the number of workers.
func (p *Pool) Size() int { return len(p.workers) }

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	ctx, p.cancel = context.WithCancel(ctx)
	for _, w := range p.workers {
		go w.Run(ctx)
	}
}

// Shutdown closes the queue and waits for the workers to handle every job
// already queued, up to the pool timeout or ctx, whichever ends first. On
// timeout the running jobs are cancelled and an error is returned; jobs still
// queued at that point are dropped.
func (p *Pool) Shutdown(ctx context.Context) error {
	if closer, ok := p.queue.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			p.logger.Error(ctx, "error closing queue", logger.Error(err))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	var firstErr error
	for i, w := range p.workers {
		if err := w.Shutdown(shutdownCtx); err != nil {
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	if p.cancel != nil {
		p.cancel()
	}
	if firstErr != nil {
		if l, ok := p.queue.(interface{ Len(context.Context) int }); ok {
			p.logger.Warn(ctx, "training jobs dropped on shutdown", logger.Int("queued", l.Len(ctx)))
		}
	}
	metrics.UpdateWorkerCount(0)
	return firstErr
}
