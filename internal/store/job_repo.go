package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresJobStore implements JobStore using PostgreSQL.
//
// Lease acquisition relies on FOR UPDATE SKIP LOCKED so concurrent workers
// never receive the same job within one heartbeat window; no in-process
// locking is involved.
type PostgresJobStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger
}

// NewPostgresJobStore creates a PostgresJobStore.
func NewPostgresJobStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresJobStore {
	return &PostgresJobStore{
		pool:   pool,
		logger: logger.With().Str("component", "job_store").Logger(),
	}
}

const jobColumns = `id, job_type, status, payload, result, heartbeat_at, row_version, created_at, updated_at`

func (s *PostgresJobStore) CreateJob(ctx context.Context, record *JobRecord) (*JobOutcome, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.Status == "" {
		record.Status = JobStatusQueued
	}

	const q = `INSERT INTO jobs (id, job_type, status, payload, row_version, created_at, updated_at)
VALUES ($1, $2, $3, $4, 1, now(), now())
RETURNING ` + jobColumns
	outcome, err := s.scanJob(conn(ctx, s.pool).QueryRow(ctx, q, record.ID, record.Type, record.Status, record.Payload))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		s.logger.Error().Err(err).Str("job_type", record.Type).Msg("create job failed")
		return nil, &OperationFailedError{Op: "create job", Err: err}
	}
	return outcome, nil
}

func (s *PostgresJobStore) AcquireJobs(ctx context.Context, maxCount int, heartbeatTimeout time.Duration) ([]*JobOutcome, error) {
	const q = `UPDATE jobs SET
	status = $3,
	heartbeat_at = now(),
	row_version = row_version + 1,
	updated_at = now()
WHERE id IN (
	SELECT id FROM jobs
	WHERE status IN ($4, $3)
	  AND (heartbeat_at IS NULL OR heartbeat_at < now() - make_interval(secs => $2))
	ORDER BY created_at
	LIMIT $1
	FOR UPDATE SKIP LOCKED
)
RETURNING ` + jobColumns

	rows, err := conn(ctx, s.pool).Query(ctx, q, maxCount, heartbeatTimeout.Seconds(), JobStatusRunning, JobStatusQueued)
	if err != nil {
		return nil, s.fault(ctx, "acquire jobs", err)
	}
	defer rows.Close()

	var acquired []*JobOutcome
	for rows.Next() {
		outcome, err := s.scanJob(rows)
		if err != nil {
			return nil, s.fault(ctx, "scan acquired job", err)
		}
		acquired = append(acquired, outcome)
	}
	if err := rows.Err(); err != nil {
		return nil, s.fault(ctx, "acquire jobs", err)
	}
	return acquired, nil
}

func (s *PostgresJobStore) HeartbeatJob(ctx context.Context, id string, etag *WeakETag) (*JobOutcome, error) {
	const q = `UPDATE jobs SET
	heartbeat_at = now(),
	row_version = row_version + 1,
	updated_at = now()
WHERE id = $1 AND row_version = $2
RETURNING ` + jobColumns
	return s.guardedUpdate(ctx, id, etag, q, id, mustRowVersion(etag))
}

func (s *PostgresJobStore) CompleteJob(ctx context.Context, id string, status string, result []byte, etag *WeakETag) (*JobOutcome, error) {
	const q = `UPDATE jobs SET
	status = $3,
	result = $4,
	row_version = row_version + 1,
	updated_at = now()
WHERE id = $1 AND row_version = $2
RETURNING ` + jobColumns
	return s.guardedUpdate(ctx, id, etag, q, id, mustRowVersion(etag), status, result)
}

func (s *PostgresJobStore) GetJob(ctx context.Context, id string) (*JobOutcome, error) {
	const q = `SELECT ` + jobColumns + ` FROM jobs WHERE id = $1`
	outcome, err := s.scanJob(conn(ctx, s.pool).QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, s.fault(ctx, "get job", err)
	}
	return outcome, nil
}

// guardedUpdate runs an etag-guarded job update and distinguishes a stale
// lease from a vanished job when no row matched.
func (s *PostgresJobStore) guardedUpdate(ctx context.Context, id string, etag *WeakETag, q string, args ...any) (*JobOutcome, error) {
	outcome, err := s.scanJob(conn(ctx, s.pool).QueryRow(ctx, q, args...))
	if err == nil {
		return outcome, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, s.fault(ctx, "update job", err)
	}

	key := ResourceKey{ResourceType: "Job", ID: id}
	current, err := s.GetJob(ctx, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, &ResourceNotFoundError{Key: key}
	}
	return nil, &PreconditionFailedError{
		Key:      key,
		Supplied: etag.VersionID(),
		Current:  current.ETag.VersionID(),
	}
}

func (s *PostgresJobStore) scanJob(row pgx.Row) (*JobOutcome, error) {
	rec := &JobRecord{}
	err := row.Scan(
		&rec.ID, &rec.Type, &rec.Status, &rec.Payload, &rec.Result,
		&rec.HeartbeatAt, &rec.rowVersion, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &JobOutcome{Record: rec, ETag: etagFromRowVersion(rec.rowVersion)}, nil
}

func (s *PostgresJobStore) fault(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Error().Err(err).Str("op", op).Msg("storage failure")
	return fmt.Errorf("%s: %w", op, err)
}

func mustRowVersion(etag *WeakETag) int64 {
	// Row versions are always positive; -1 can never match a stored row, so
	// a missing or unparsable etag deterministically fails the guard. The
	// sentinel only ever appears in a WHERE clause, never in stored data.
	if etag == nil {
		return -1
	}
	v, err := strconv.ParseInt(etag.VersionID(), 10, 64)
	if err != nil {
		return -1
	}
	return v
}
