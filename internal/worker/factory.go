package worker

import (
	"context"
	"fmt"
	"sync"

	"github.com/openclinic/fhird/internal/store"
)

// RunnerFunc executes one leased job to completion.
type RunnerFunc func(ctx context.Context, record *store.JobRecord, etag *store.WeakETag) error

// Registry is a TaskFactory dispatching on job type. Runners are kept in
// registration order, which is also the order they appear in capability
// listings.
type Registry struct {
	mu      sync.RWMutex
	runners map[string]RunnerFunc
	order   []string
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{runners: make(map[string]RunnerFunc)}
}

// Register adds a runner for a job type. Registering a type twice replaces
// the runner but keeps its original position.
func (r *Registry) Register(jobType string, fn RunnerFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.runners[jobType]; !exists {
		r.order = append(r.order, jobType)
	}
	r.runners[jobType] = fn
}

// JobTypes returns the registered job types in registration order.
func (r *Registry) JobTypes() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

func (r *Registry) Create(record *store.JobRecord, etag *store.WeakETag) (Task, error) {
	r.mu.RLock()
	fn, ok := r.runners[record.Type]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no runner registered for job type %q", record.Type)
	}
	return taskFunc(func(ctx context.Context) error {
		return fn(ctx, record, etag)
	}), nil
}

type taskFunc func(ctx context.Context) error

func (f taskFunc) Run(ctx context.Context) error { return f(ctx) }
