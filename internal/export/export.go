// Package export implements the bulk-export background job: it pages the
// current versions of a resource type in surrogate-id order while keeping
// its lease alive, and records the outcome on the job.
package export

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/openclinic/fhird/internal/store"
)

// JobType is the job record type handled by this runner.
const JobType = "export"

// Request is the job payload.
type Request struct {
	ResourceType string `json:"resourceType"`
}

// Result is written to the job record on completion.
type Result struct {
	ResourceType string `json:"resourceType"`
	Count        int    `json:"count"`
	Error        string `json:"error,omitempty"`
}

// Runner executes export jobs. Export is idempotent, so the at-least-once
// delivery of the leasing contract needs no dedup here; a lost lease aborts
// the run and the next leaseholder starts over.
type Runner struct {
	resources store.ResourceStore
	jobs      store.JobStore
	pageSize  int
	logger    zerolog.Logger
}

// NewRunner creates a Runner.
func NewRunner(resources store.ResourceStore, jobs store.JobStore, pageSize int, logger zerolog.Logger) *Runner {
	if pageSize < 1 {
		pageSize = 100
	}
	return &Runner{
		resources: resources,
		jobs:      jobs,
		pageSize:  pageSize,
		logger:    logger.With().Str("component", "export").Logger(),
	}
}

// Run is a worker.RunnerFunc.
func (r *Runner) Run(ctx context.Context, record *store.JobRecord, etag *store.WeakETag) error {
	var req Request
	if err := json.Unmarshal(record.Payload, &req); err != nil {
		return r.fail(ctx, record.ID, etag, fmt.Errorf("decode export payload: %w", err))
	}
	if req.ResourceType == "" {
		return r.fail(ctx, record.ID, etag, errors.New("export payload missing resourceType"))
	}

	var after store.SurrogateID
	count := 0
	for {
		page, last, err := r.resources.Scan(ctx, req.ResourceType, after, r.pageSize)
		if err != nil {
			return r.fail(ctx, record.ID, etag, fmt.Errorf("scan %s: %w", req.ResourceType, err))
		}
		if len(page) == 0 {
			break
		}
		count += len(page)
		after = last

		// Heartbeat between pages; a stale etag means the lease moved to
		// another worker and this run must stop.
		outcome, err := r.jobs.HeartbeatJob(ctx, record.ID, etag)
		if err != nil {
			var stale *store.PreconditionFailedError
			if errors.As(err, &stale) {
				r.logger.Warn().Str("job_id", record.ID).Msg("export lease lost")
			}
			return err
		}
		etag = outcome.ETag
	}

	result, err := json.Marshal(Result{ResourceType: req.ResourceType, Count: count})
	if err != nil {
		return r.fail(ctx, record.ID, etag, err)
	}
	if _, err := r.jobs.CompleteJob(ctx, record.ID, store.JobStatusCompleted, result, etag); err != nil {
		return err
	}
	r.logger.Info().Str("job_id", record.ID).Str("resource_type", req.ResourceType).Int("count", count).Msg("export completed")
	return nil
}

func (r *Runner) fail(ctx context.Context, id string, etag *store.WeakETag, cause error) error {
	result, _ := json.Marshal(Result{Error: cause.Error()})
	if _, err := r.jobs.CompleteJob(ctx, id, store.JobStatusFailed, result, etag); err != nil {
		return errors.Join(cause, err)
	}
	return cause
}
