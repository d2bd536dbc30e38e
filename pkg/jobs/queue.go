package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// ErrQueueFull is returned by Submit when the buffer has no room left.
var ErrQueueFull = errors.New("jobs: queue full")

// Options tunes a queue's worker pool.
type Options struct {
	Workers     int
	Buffer      int
	MaxAttempts int
	Backoff     time.Duration
	JobTimeout  time.Duration
	Logger      *zap.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Buffer <= 0 {
		o.Buffer = o.Workers * 8
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 3
	}
	if o.Backoff <= 0 {
		o.Backoff = time.Second
	}
	if o.JobTimeout <= 0 {
		o.JobTimeout = 30 * time.Second
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	return o
}

type envelope[T any] struct {
	payload T
	attempt int
}

// Queue dispatches payloads of one type to a fixed worker pool. Submit
// buffers from construction time, so producers may enqueue before Start;
// nothing runs until the pool starts.
type Queue[T any] struct {
	name    string
	handler func(context.Context, T) error
	opts    Options

	jobs    chan envelope[T]
	dropped atomic.Uint64

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	started bool
}

// New builds a queue that feeds payloads to handler.
func New[T any](name string, handler func(context.Context, T) error, opts Options) *Queue[T] {
	opts = opts.withDefaults()
	return &Queue[T]{
		name:    name,
		handler: handler,
		opts:    opts,
		jobs:    make(chan envelope[T], opts.Buffer),
	}
}

// Start launches the worker pool. Repeated calls are no-ops.
func (q *Queue[T]) Start(ctx context.Context) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.started {
		return
	}
	ctx, q.cancel = context.WithCancel(ctx)
	q.done = make(chan struct{})
	var wg sync.WaitGroup
	for i := 0; i < q.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q.run(ctx)
		}()
	}
	go func() {
		wg.Wait()
		close(q.done)
	}()
	q.started = true
	q.opts.Logger.Info("worker pool started",
		zap.String("queue", q.name),
		zap.Int("workers", q.opts.Workers))
}

// Stop cancels the workers and waits for in-flight jobs to finish.
func (q *Queue[T]) Stop() {
	q.mu.Lock()
	if !q.started {
		q.mu.Unlock()
		return
	}
	q.cancel()
	done := q.done
	q.started = false
	q.mu.Unlock()
	<-done
	q.opts.Logger.Info("worker pool stopped", zap.String("queue", q.name))
}

// Submit enqueues a payload. Non-blocking: a full buffer rejects the
// job rather than stalling the producer.
func (q *Queue[T]) Submit(payload T) error {
	select {
	case q.jobs <- envelope[T]{payload: payload, attempt: 1}:
		return nil
	default:
		q.dropped.Add(1)
		return ErrQueueFull
	}
}

// Dropped reports how many submissions were rejected on a full buffer.
func (q *Queue[T]) Dropped() uint64 {
	return q.dropped.Load()
}

func (q *Queue[T]) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case job := <-q.jobs:
			q.process(ctx, job)
		}
	}
}

func (q *Queue[T]) process(ctx context.Context, job envelope[T]) {
	jobCtx, cancel := context.WithTimeout(ctx, q.opts.JobTimeout)
	err := q.handler(jobCtx, job.payload)
	cancel()
	if err == nil {
		return
	}
	if job.attempt >= q.opts.MaxAttempts {
		q.opts.Logger.Error("job abandoned after retries",
			zap.String("queue", q.name),
			zap.Int("attempts", job.attempt),
			zap.Error(err))
		return
	}
	q.opts.Logger.Warn("job failed, backing off",
		zap.String("queue", q.name),
		zap.Int("attempt", job.attempt),
		zap.Error(err))

	// Linear backoff scaled by attempt number. The retry goroutine dies
	// with the pool context so Stop never hangs on it.
	delay := time.Duration(job.attempt) * q.opts.Backoff
	job.attempt++
	go func() {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			select {
			case q.jobs <- job:
			default:
				q.dropped.Add(1)
				q.opts.Logger.Error("retry dropped on full buffer", zap.String("queue", q.name))
			}
		}
	}()
}
