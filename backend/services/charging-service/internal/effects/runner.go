// Package effects runs best-effort side effects off the request path. A failed effect
// is logged and counted; it never fails the transition that scheduled it.
package effects

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"chargeway/backend/services/charging-service/internal/metrics"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
	defaultTimeout   = 5 * time.Second
)

// Options sizes the worker pool. Zero values fall back to defaults.
type Options struct {
	Workers   int
	QueueSize int
	Timeout   time.Duration
}

type job struct {
	name string
	fn   func(ctx context.Context) error
}

// Runner is a bounded worker pool for fire-and-forget writes.
type Runner struct {
	queue   chan job
	timeout time.Duration
	logger  *zap.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	idle    *sync.Cond
	pending int
	closed  bool

	workers sync.WaitGroup
}

// NewRunner starts the workers.
func NewRunner(opts Options, rec *metrics.Recorder, logger *zap.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = defaultQueueSize
	}
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	r := &Runner{
		queue:   make(chan job, opts.QueueSize),
		timeout: opts.Timeout,
		logger:  logger.Named("effects"),
		metrics: rec,
	}
	r.idle = sync.NewCond(&r.mu)
	for i := 0; i < opts.Workers; i++ {
		r.workers.Add(1)
		go r.work()
	}
	return r
}

// Go schedules fn. It never blocks: when the queue is full or the runner is closed the
// effect is dropped and logged.
func (r *Runner) Go(name string, fn func(ctx context.Context) error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		r.logger.Warn("effect dropped after close", zap.String("effect", name))
		r.metrics.EffectFailed(name)
		return
	}
	select {
	case r.queue <- job{name: name, fn: fn}:
		r.pending++
	default:
		r.logger.Warn("effect dropped, queue full", zap.String("effect", name))
		r.metrics.EffectFailed(name)
	}
}

// Flush blocks until every scheduled effect has finished.
func (r *Runner) Flush() {
	r.mu.Lock()
	for r.pending > 0 {
		r.idle.Wait()
	}
	r.mu.Unlock()
}

// Close stops accepting effects and waits for queued ones to drain or ctx to end.
func (r *Runner) Close(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	r.mu.Unlock()

	done := make(chan struct{})
	go func() {
		r.workers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Runner) work() {
	defer r.workers.Done()
	for j := range r.queue {
		r.run(j)
		r.mu.Lock()
		r.pending--
		if r.pending == 0 {
			r.idle.Broadcast()
		}
		r.mu.Unlock()
	}
}

func (r *Runner) run(j job) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("effect panicked", zap.String("effect", j.name), zap.Any("panic", rec))
			r.metrics.EffectFailed(j.name)
		}
	}()
	if err := j.fn(ctx); err != nil {
		r.logger.Warn("effect failed", zap.String("effect", j.name), zap.Error(err))
		r.metrics.EffectFailed(j.name)
	}
}
