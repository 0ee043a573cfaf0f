// Package worker polls the job store and drives a bounded set of
// concurrently-running job tasks.
package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/openclinic/fhird/internal/store"
)

// Task is one running unit of background work.
type Task interface {
	Run(ctx context.Context) error
}

// TaskFactory builds a task for a leased job. The etag is the lease the task
// must present when heartbeating or completing the job.
type TaskFactory interface {
	Create(record *store.JobRecord, etag *store.WeakETag) (Task, error)
}

// Config tunes one worker loop.
type Config struct {
	MaxConcurrent    int
	PollInterval     time.Duration
	HeartbeatTimeout time.Duration
	DrainTimeout     time.Duration
}

// Worker runs the polling loop. Multiple workers may run concurrently across
// process instances; lease correctness is the store's job, not ours.
type Worker struct {
	jobs    store.JobStore
	factory TaskFactory
	cfg     Config
	logger  zerolog.Logger

	inFlight atomic.Int64
	tasks    sync.WaitGroup
}

// New creates a Worker.
func New(jobs store.JobStore, factory TaskFactory, cfg Config, logger zerolog.Logger) *Worker {
	if cfg.MaxConcurrent < 1 {
		cfg.MaxConcurrent = 1
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	if cfg.HeartbeatTimeout <= 0 {
		cfg.HeartbeatTimeout = time.Minute
	}
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = 30 * time.Second
	}
	return &Worker{
		jobs:    jobs,
		factory: factory,
		cfg:     cfg,
		logger:  logger.With().Str("component", "job_worker").Logger(),
	}
}

// InFlight reports how many tasks are currently running.
func (w *Worker) InFlight() int {
	return int(w.inFlight.Load())
}

// Run polls until ctx is cancelled. A failed iteration is logged and the
// loop continues; only cancellation stops it. On shutdown, in-flight tasks
// are drained for at most the configured grace period before returning.
//
// Intended to be called as: go worker.Run(ctx)
func (w *Worker) Run(ctx context.Context) {
	w.logger.Info().
		Int("max_concurrent", w.cfg.MaxConcurrent).
		Dur("poll_interval", w.cfg.PollInterval).
		Msg("job worker started")

	for {
		if ctx.Err() != nil {
			break
		}
		w.pollOnce(ctx)

		select {
		case <-ctx.Done():
		case <-time.After(w.cfg.PollInterval):
		}
		if ctx.Err() != nil {
			break
		}
	}

	w.logger.Info().Msg("job worker stopping, draining tasks")
	w.drain()
}

// pollOnce acquires up to the remaining capacity and starts one task per
// leased job. Errors never escape; cancellation is not logged as a failure.
func (w *Worker) pollOnce(ctx context.Context) {
	capacity := w.cfg.MaxConcurrent - int(w.inFlight.Load())
	if capacity <= 0 {
		return
	}

	outcomes, err := w.jobs.AcquireJobs(ctx, capacity, w.cfg.HeartbeatTimeout)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		w.logger.Error().Err(err).Msg("acquire jobs failed")
		return
	}

	for _, outcome := range outcomes {
		w.start(ctx, outcome)
	}
}

func (w *Worker) start(ctx context.Context, outcome *store.JobOutcome) {
	task, err := w.factory.Create(outcome.Record, outcome.ETag)
	if err != nil {
		w.logger.Error().Err(err).
			Str("job_id", outcome.Record.ID).
			Str("job_type", outcome.Record.Type).
			Msg("task creation failed")
		return
	}

	w.inFlight.Add(1)
	w.tasks.Add(1)
	go func() {
		defer w.tasks.Done()
		defer w.inFlight.Add(-1)

		if err := task.Run(ctx); err != nil && ctx.Err() == nil {
			w.logger.Error().Err(err).
				Str("job_id", outcome.Record.ID).
				Str("job_type", outcome.Record.Type).
				Msg("job task failed")
		}
	}()
}

func (w *Worker) drain() {
	done := make(chan struct{})
	go func() {
		w.tasks.Wait()
		close(done)
	}()
	select {
	case <-done:
		w.logger.Info().Msg("job worker stopped")
	case <-time.After(w.cfg.DrainTimeout):
		w.logger.Warn().
			Int("in_flight", w.InFlight()).
			Msg("drain timeout elapsed with tasks still running")
	}
}
