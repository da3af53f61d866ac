package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/danieloza/salonos/internal/observability/metrics"
	"github.com/danieloza/salonos/pkg/logging"
)

// HandlerFunc executes one job.
type HandlerFunc func(ctx context.Context, job *Job) error

// Runner polls the queue and dispatches jobs to registered handlers.
type Runner struct {
	store          Store
	logger         *logging.Logger
	metrics        *metrics.BookingMetrics
	handlers       map[string]HandlerFunc
	workers        int
	pollInterval   time.Duration
	staleThreshold time.Duration
}

// NewRunner creates a runner with default polling settings.
func NewRunner(store Store, logger *logging.Logger, m *metrics.BookingMetrics) *Runner {
	if logger == nil {
		logger = logging.Default()
	}
	return &Runner{
		store:          store,
		logger:         logger,
		metrics:        m,
		handlers:       make(map[string]HandlerFunc),
		workers:        2,
		pollInterval:   2 * time.Second,
		staleThreshold: 15 * time.Minute,
	}
}

func (r *Runner) WithWorkers(n int) *Runner {
	if n > 0 {
		r.workers = n
	}
	return r
}

func (r *Runner) WithPollInterval(interval time.Duration) *Runner {
	if interval > 0 {
		r.pollInterval = interval
	}
	return r
}

func (r *Runner) WithStaleThreshold(threshold time.Duration) *Runner {
	if threshold > 0 {
		r.staleThreshold = threshold
	}
	return r
}

// Register binds a handler to a job type. Jobs with no handler dead-letter
// through the normal retry path.
func (r *Runner) Register(jobType string, handler HandlerFunc) {
	r.handlers[jobType] = handler
}

// Start runs the polling workers until ctx is cancelled.
func (r *Runner) Start(ctx context.Context) {
	if r.store == nil {
		return
	}

	var wg sync.WaitGroup
	for i := 0; i < r.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			r.poll(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.reclaimLoop(ctx)
	}()

	wg.Wait()
}

func (r *Runner) poll(ctx context.Context) {
	ticker := time.NewTicker(r.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Drain(ctx)
		}
	}
}

// Drain claims and runs jobs until the queue is empty.
func (r *Runner) Drain(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		job, err := r.store.ClaimNext(ctx)
		if err != nil {
			r.logger.Error("job claim failed", "error", err)
			return
		}
		if job == nil {
			return
		}
		r.run(ctx, job)
	}
}

func (r *Runner) run(ctx context.Context, job *Job) {
	handler, ok := r.handlers[job.JobType]
	if !ok {
		r.fail(ctx, job, fmt.Errorf("no handler for job type %q", job.JobType))
		return
	}

	if err := handler(ctx, job); err != nil {
		r.fail(ctx, job, err)
		return
	}

	if err := r.store.Complete(ctx, job.ID); err != nil {
		r.logger.Error("failed to mark job completed", "error", err, "job_id", job.ID)
		return
	}
	r.metrics.ObserveJob(job.JobType, "completed")
	r.logger.Info("job completed", "job_id", job.ID, "type", job.JobType, "attempts", job.Attempts)
}

func (r *Runner) fail(ctx context.Context, job *Job, jobErr error) {
	r.logger.Error("job failed", "error", jobErr, "job_id", job.ID, "type", job.JobType, "attempt", job.Attempts)
	if err := r.store.Fail(ctx, job, jobErr); err != nil {
		r.logger.Error("failed to record job failure", "error", err, "job_id", job.ID)
		return
	}
	outcome := "retried"
	if job.Attempts >= job.MaxAttempts {
		outcome = "dead_letter"
	}
	r.metrics.ObserveJob(job.JobType, outcome)
}

func (r *Runner) reclaimLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			count, err := r.store.ReclaimStale(ctx, r.staleThreshold)
			if err != nil {
				r.logger.Error("stale reclaim failed", "error", err)
				continue
			}
			if count > 0 {
				r.logger.Warn("reclaimed stale running jobs", "count", count)
			}
		}
	}
}
