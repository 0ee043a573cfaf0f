package export

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/openclinic/fhird/internal/store"
)

// pagedResources serves wrappers in fixed-size pages keyed by surrogate id.
type pagedResources struct {
	wrappers []*store.ResourceWrapper
	scanErr  error
}

func (p *pagedResources) Scan(ctx context.Context, resourceType string, after store.SurrogateID, limit int) ([]*store.ResourceWrapper, store.SurrogateID, error) {
	if p.scanErr != nil {
		return nil, after, p.scanErr
	}
	start := int(after)
	if start >= len(p.wrappers) {
		return nil, after, nil
	}
	end := start + limit
	if end > len(p.wrappers) {
		end = len(p.wrappers)
	}
	return p.wrappers[start:end], store.SurrogateID(end), nil
}

func (p *pagedResources) Upsert(ctx context.Context, resource *store.ResourceWrapper, precondition *store.WeakETag, allowCreate, keepHistory bool) (*store.UpsertOutcome, error) {
	return nil, errors.New("not implemented")
}

func (p *pagedResources) Get(ctx context.Context, key store.ResourceKey) (*store.ResourceWrapper, error) {
	return nil, nil
}

func (p *pagedResources) HardDelete(ctx context.Context, key store.ResourceKey) error {
	return nil
}

// leaseJobStore tracks heartbeats and completion; the etag version bumps on
// every guarded update, mirroring the row-version behavior of the real store.
type leaseJobStore struct {
	version      int64
	heartbeats   int
	completed    string
	result       []byte
	heartbeatErr error
}

func (s *leaseJobStore) etag() *store.WeakETag {
	return store.ETagFromVersion(strconv.FormatInt(s.version, 10))
}

func (s *leaseJobStore) HeartbeatJob(ctx context.Context, id string, etag *store.WeakETag) (*store.JobOutcome, error) {
	if s.heartbeatErr != nil {
		return nil, s.heartbeatErr
	}
	if etag.VersionID() != strconv.FormatInt(s.version, 10) {
		return nil, &store.PreconditionFailedError{Supplied: etag.VersionID()}
	}
	s.version++
	s.heartbeats++
	return &store.JobOutcome{Record: &store.JobRecord{ID: id}, ETag: s.etag()}, nil
}

func (s *leaseJobStore) CompleteJob(ctx context.Context, id string, status string, result []byte, etag *store.WeakETag) (*store.JobOutcome, error) {
	if etag.VersionID() != strconv.FormatInt(s.version, 10) {
		return nil, &store.PreconditionFailedError{Supplied: etag.VersionID()}
	}
	s.version++
	s.completed = status
	s.result = result
	return &store.JobOutcome{Record: &store.JobRecord{ID: id}, ETag: s.etag()}, nil
}

func (s *leaseJobStore) CreateJob(ctx context.Context, record *store.JobRecord) (*store.JobOutcome, error) {
	return nil, errors.New("not implemented")
}

func (s *leaseJobStore) AcquireJobs(ctx context.Context, maxCount int, heartbeatTimeout time.Duration) ([]*store.JobOutcome, error) {
	return nil, nil
}

func (s *leaseJobStore) GetJob(ctx context.Context, id string) (*store.JobOutcome, error) {
	return nil, nil
}

func wrappers(n int) []*store.ResourceWrapper {
	out := make([]*store.ResourceWrapper, n)
	for i := range out {
		out[i] = &store.ResourceWrapper{ResourceType: "Patient", ID: strconv.Itoa(i)}
	}
	return out
}

func exportRecord(t *testing.T, resourceType string) *store.JobRecord {
	t.Helper()
	payload, err := json.Marshal(Request{ResourceType: resourceType})
	require.NoError(t, err)
	return &store.JobRecord{ID: "job1", Type: JobType, Payload: payload}
}

func TestExportCountsAllPages(t *testing.T) {
	resources := &pagedResources{wrappers: wrappers(5)}
	jobs := &leaseJobStore{version: 1}
	runner := NewRunner(resources, jobs, 2, zerolog.Nop())

	err := runner.Run(context.Background(), exportRecord(t, "Patient"), jobs.etag())
	require.NoError(t, err)

	assert.Equal(t, store.JobStatusCompleted, jobs.completed)
	assert.Equal(t, 3, jobs.heartbeats, "one heartbeat per page")

	var result Result
	require.NoError(t, json.Unmarshal(jobs.result, &result))
	assert.Equal(t, 5, result.Count)
	assert.Equal(t, "Patient", result.ResourceType)
}

func TestExportLeaseLostAborts(t *testing.T) {
	resources := &pagedResources{wrappers: wrappers(5)}
	jobs := &leaseJobStore{version: 1, heartbeatErr: &store.PreconditionFailedError{Supplied: "1"}}
	runner := NewRunner(resources, jobs, 2, zerolog.Nop())

	err := runner.Run(context.Background(), exportRecord(t, "Patient"), jobs.etag())

	var stale *store.PreconditionFailedError
	require.ErrorAs(t, err, &stale)
	assert.Empty(t, jobs.completed, "a lost lease must not complete the job")
}

func TestExportScanErrorFailsJob(t *testing.T) {
	resources := &pagedResources{scanErr: errors.New("connection refused")}
	jobs := &leaseJobStore{version: 1}
	runner := NewRunner(resources, jobs, 2, zerolog.Nop())

	err := runner.Run(context.Background(), exportRecord(t, "Patient"), jobs.etag())
	require.Error(t, err)
	assert.Equal(t, store.JobStatusFailed, jobs.completed)

	var result Result
	require.NoError(t, json.Unmarshal(jobs.result, &result))
	assert.Contains(t, result.Error, "connection refused")
}

func TestExportBadPayloadFailsJob(t *testing.T) {
	jobs := &leaseJobStore{version: 1}
	runner := NewRunner(&pagedResources{}, jobs, 2, zerolog.Nop())

	record := &store.JobRecord{ID: "job1", Type: JobType, Payload: []byte("{")}
	err := runner.Run(context.Background(), record, jobs.etag())
	require.Error(t, err)
	assert.Equal(t, store.JobStatusFailed, jobs.completed)
}

func TestExportEmptyTypeCompletesZero(t *testing.T) {
	jobs := &leaseJobStore{version: 1}
	runner := NewRunner(&pagedResources{}, jobs, 2, zerolog.Nop())

	err := runner.Run(context.Background(), exportRecord(t, "Patient"), jobs.etag())
	require.NoError(t, err)

	var result Result
	require.NoError(t, json.Unmarshal(jobs.result, &result))
	assert.Equal(t, 0, result.Count)
	assert.Equal(t, 0, jobs.heartbeats)
}
