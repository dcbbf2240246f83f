// Package tasks runs bulk jobs off the request path. Every job declares the
// cache namespaces it touches; they are invalidated exactly once when the job
// finishes, whether it succeeded or not.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"student-records-api/internal/cache"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

var (
	// ErrQueueFull is returned by Submit when no queue slot is free.
	ErrQueueFull = errors.New("task queue is full")
	// ErrClosed is returned by Submit after Shutdown.
	ErrClosed = errors.New("task runner is shut down")
)

// Kind names what a task does.
type Kind string

const (
	KindImport     Kind = "import"
	KindBulkDelete Kind = "bulk_delete"
)

// invalidateTimeout bounds the post-task invalidation, which runs even when
// the runner context is already cancelled.
const invalidateTimeout = 10 * time.Second

// Task is a unit of background work.
type Task struct {
	Kind   Kind
	UserID uint
	// Run does the work and reports how many records it affected.
	Run func(ctx context.Context) (int64, error)
	// Invalidate lists the cache prefixes to drop once Run returns.
	Invalidate []string
}

// Result describes a finished task.
type Result struct {
	ID       string        `json:"task_id"`
	Kind     Kind          `json:"kind"`
	UserID   uint          `json:"-"`
	Affected int64         `json:"affected"`
	Err      error         `json:"-"`
	Duration time.Duration `json:"-"`
}

// Options configures a Runner.
type Options struct {
	// Workers is how many tasks run concurrently.
	//
	// Default is 2.
	Workers int

	// QueueSize caps how many submitted tasks may wait for a worker.
	//
	// Default is 64.
	QueueSize int

	// OnDone, if set, is called from the worker after each task and its
	// invalidation have finished.
	OnDone func(Result)
}

type job struct {
	id   string
	task Task
}

// Runner is a fixed-size worker pool fed by a bounded queue.
type Runner struct {
	inv   cache.Invalidator
	opts  Options
	queue chan job

	mu      sync.RWMutex
	closed  bool
	started bool
	wg      sync.WaitGroup
}

// NewRunner creates a Runner that invalidates through inv. Call Start to
// begin processing.
func NewRunner(inv cache.Invalidator, opts Options) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	return &Runner{
		inv:   inv,
		opts:  opts,
		queue: make(chan job, opts.QueueSize),
	}
}

// Start launches the workers. Tasks run with ctx, not with the context of the
// request that submitted them. Calling Start more than once is a no-op.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started || r.closed {
		return
	}
	r.started = true
	r.wg.Add(r.opts.Workers)
	for i := 0; i < r.opts.Workers; i++ {
		go func() {
			defer r.wg.Done()
			for j := range r.queue {
				r.process(ctx, j)
			}
		}()
	}
}

// Submit enqueues t and returns its id without waiting for it to run.
func (r *Runner) Submit(t Task) (string, error) {
	if t.Run == nil {
		return "", errors.New("tasks: task has no Run func")
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.closed {
		return "", ErrClosed
	}
	j := job{id: uuid.NewString(), task: t}
	queued.Inc()
	select {
	case r.queue <- j:
		return j.id, nil
	default:
		queued.Dec()
		return "", ErrQueueFull
	}
}

// Shutdown stops accepting tasks and waits for queued and running ones to
// finish, or for ctx to be done. If Start was never called, tasks already
// queued run on the calling goroutine.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	if !r.closed {
		r.closed = true
		close(r.queue)
	}
	started := r.started
	r.mu.Unlock()
	if !started {
		for j := range r.queue {
			r.process(ctx, j)
		}
		return nil
	}

	done := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("tasks: shutdown: %w", ctx.Err())
	}
}

func (r *Runner) process(ctx context.Context, j job) {
	queued.Dec()
	lg := zerolog.Ctx(ctx).With().
		Str("task_id", j.id).
		Str("kind", string(j.task.Kind)).
		Uint("user_id", j.task.UserID).
		Logger()
	ctx = lg.WithContext(ctx)

	lg.Info().Msg("task started")
	start := time.Now()
	affected, err := runSafely(ctx, j.task.Run)
	res := Result{
		ID:       j.id,
		Kind:     j.task.Kind,
		UserID:   j.task.UserID,
		Affected: affected,
		Err:      err,
		Duration: time.Since(start),
	}

	r.invalidate(ctx, j.task.Invalidate)

	if err != nil {
		completed.WithLabelValues(string(j.task.Kind), "failed").Inc()
		lg.Error().Err(err).Dur("duration", res.Duration).Msg("task failed")
	} else {
		completed.WithLabelValues(string(j.task.Kind), "succeeded").Inc()
		lg.Info().Int64("affected", affected).Dur("duration", res.Duration).Msg("task finished")
	}
	if r.opts.OnDone != nil {
		r.opts.OnDone(res)
	}
}

func (r *Runner) invalidate(ctx context.Context, prefixes []string) {
	if r.inv == nil || len(prefixes) == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), invalidateTimeout)
	defer cancel()
	lg := zerolog.Ctx(ctx)
	for _, p := range prefixes {
		if _, err := r.inv.InvalidatePrefix(ctx, p); err != nil {
			lg.Error().Err(err).Str("prefix", p).Msg("cache invalidation after task failed")
		}
	}
}

func runSafely(ctx context.Context, run func(context.Context) (int64, error)) (n int64, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("tasks: panic: %v", rec)
		}
	}()
	return run(ctx)
}

var (
	queued = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "background_tasks_queued",
		Help: "Tasks waiting for a worker.",
	})
	completed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "background_tasks_completed_total",
		Help: "Finished background tasks.",
	}, []string{"kind", "outcome"})
)

func init() {
	prometheus.MustRegister(queued, completed)
}
