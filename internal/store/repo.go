package store

import (
	"context"
	"time"
)

// ResourceStore defines versioned resource persistence.
type ResourceStore interface {
	// Upsert writes a new version of the resource. When precondition is
	// non-nil it must match the current stored version or the call fails
	// with *PreconditionFailedError (*ResourceNotFoundError if the resource
	// does not exist at all). When precondition is nil and the resource does
	// not exist, allowCreate false fails with *MethodNotAllowedError.
	// A nil outcome with a nil error signals a redundant delete: the
	// incoming wrapper is a tombstone and the current version already is.
	Upsert(ctx context.Context, resource *ResourceWrapper, precondition *WeakETag, allowCreate, keepHistory bool) (*UpsertOutcome, error)

	// Get returns the addressed version when key.VersionID is set, the
	// current version otherwise. Returns nil with no error when the
	// resource has never been created or was hard-deleted.
	Get(ctx context.Context, key ResourceKey) (*ResourceWrapper, error)

	// HardDelete physically removes every version of the resource along
	// with its index rows. Deleting a nonexistent resource is a no-op.
	HardDelete(ctx context.Context, key ResourceKey) error

	// Scan pages current, non-deleted versions of a type in surrogate-id
	// order, starting after the given surrogate id. Used by bulk jobs.
	Scan(ctx context.Context, resourceType string, after SurrogateID, limit int) ([]*ResourceWrapper, SurrogateID, error)
}

// JobStore defines job persistence and the lease-acquisition contract shared
// with the worker.
type JobStore interface {
	// CreateJob persists a new job record and returns it with its initial
	// row-version ETag. Fails with *OperationFailedError on storage errors.
	CreateJob(ctx context.Context, record *JobRecord) (*JobOutcome, error)

	// AcquireJobs atomically leases up to maxCount runnable jobs whose
	// heartbeat is absent or older than heartbeatTimeout, refreshing their
	// heartbeats. Two concurrent callers never receive the same job within
	// one heartbeat window.
	AcquireJobs(ctx context.Context, maxCount int, heartbeatTimeout time.Duration) ([]*JobOutcome, error)

	// HeartbeatJob refreshes the lease on a running job. Fails with
	// *PreconditionFailedError when the ETag is stale, which means the
	// lease was lost and another worker may own the job.
	HeartbeatJob(ctx context.Context, id string, etag *WeakETag) (*JobOutcome, error)

	// CompleteJob transitions a job to a terminal status, guarded by the
	// lease ETag like HeartbeatJob.
	CompleteJob(ctx context.Context, id string, status string, result []byte, etag *WeakETag) (*JobOutcome, error)

	// GetJob reads one job record by id. Returns nil with no error when
	// absent.
	GetJob(ctx context.Context, id string) (*JobOutcome, error)
}
