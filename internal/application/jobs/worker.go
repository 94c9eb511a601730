// Package jobs runs queued background jobs.
package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/petition-hub/petition-hub/internal/domain/job"
	"github.com/petition-hub/petition-hub/internal/domain/unitofwork"
	"github.com/petition-hub/petition-hub/internal/infrastructure/metrics"
)

// Handler processes one job. A returned error schedules a retry.
type Handler func(ctx context.Context, j *job.Job) error

// Options tune claiming and retries.
type Options struct {
	Lease   time.Duration
	Backoff time.Duration
}

// Worker claims due jobs and dispatches them to registered handlers.
type Worker struct {
	queue    job.Queue
	opts     Options
	metrics  *metrics.Metrics
	logger   zerolog.Logger
	now      func() time.Time
	mu       sync.RWMutex
	handlers map[string]Handler
}

func NewWorker(queue job.Queue, opts Options, m *metrics.Metrics, logger zerolog.Logger) *Worker {
	if opts.Lease <= 0 {
		opts.Lease = 5 * time.Minute
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 5 * time.Second
	}
	return &Worker{
		queue:    queue,
		opts:     opts,
		metrics:  m,
		logger:   logger.With().Str("service", "jobs").Logger(),
		now:      unitofwork.Now,
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job name, replacing any previous one.
func (w *Worker) Register(name string, h Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[name] = h
}

func (w *Worker) handler(name string) (Handler, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	h, ok := w.handlers[name]
	return h, ok
}

// ProcessPending runs up to limit due jobs one after another. Each job is claimed just
// before it runs, so no job sits leased behind a long-running one. It returns how many
// completed successfully.
func (w *Worker) ProcessPending(ctx context.Context, limit int) (int, error) {
	processed := 0
	for i := 0; i < limit; i++ {
		if err := ctx.Err(); err != nil {
			return processed, err
		}
		claimed, err := w.queue.Claim(ctx, 1, w.opts.Lease)
		if err != nil {
			return processed, fmt.Errorf("failed to claim jobs: %w", err)
		}
		if len(claimed) == 0 {
			break
		}
		if w.process(ctx, claimed[0]) {
			processed++
		}
	}
	return processed, nil
}

func (w *Worker) process(ctx context.Context, j *job.Job) bool {
	log := w.logger.With().
		Str("job_id", j.JobID.String()).
		Str("job", j.Name).
		Int("attempt", j.Attempts).
		Logger()

	start := time.Now()
	stop := w.keepLeased(ctx, j, log)
	err := w.run(ctx, j)
	stop()
	w.metrics.JobDone(j.Name, err, time.Since(start))

	if err == nil {
		if err := w.queue.Complete(ctx, j.JobID); err != nil {
			log.Error().Err(err).Msg("failed to mark job completed")
			return false
		}
		log.Debug().Msg("job completed")
		return true
	}

	var retryAt *time.Time
	if j.CanRetry() {
		at := j.NextRunAt(w.now(), w.opts.Backoff)
		retryAt = &at
		log.Warn().Err(err).Time("retry_at", at).Msg("job failed, will retry")
	} else {
		log.Error().Err(err).Msg("job failed permanently")
	}
	if ferr := w.queue.Fail(ctx, j.JobID, err.Error(), retryAt); ferr != nil {
		log.Error().Err(ferr).Msg("failed to record job failure")
	}
	return false
}

// keepLeased renews the job's lease every third of the lease until stop is called.
func (w *Worker) keepLeased(ctx context.Context, j *job.Job, log zerolog.Logger) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.opts.Lease / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.queue.Touch(ctx, j.JobID, w.opts.Lease); err != nil && ctx.Err() == nil {
					log.Warn().Err(err).Msg("failed to renew job lease")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func (w *Worker) run(ctx context.Context, j *job.Job) (err error) {
	h, ok := w.handler(j.Name)
	if !ok {
		return fmt.Errorf("%w: %s", job.ErrUnknownJob, j.Name)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("job %s panicked: %v", j.Name, r)
		}
	}()
	return h(ctx, j)
}

// Run polls the queue every interval until ctx is cancelled. A full batch is followed
// immediately by another poll.
func (w *Worker) Run(ctx context.Context, interval time.Duration, batch int) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		for {
			n, err := w.ProcessPending(ctx, batch)
			if err != nil {
				if ctx.Err() != nil {
					return nil
				}
				w.logger.Error().Err(err).Msg("job poll failed")
				break
			}
			if n < batch {
				break
			}
		}
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}
