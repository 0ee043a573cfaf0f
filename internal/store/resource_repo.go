package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"
)

// PostgresResourceStore implements ResourceStore using PostgreSQL.
//
// Versions for a given (type, id) are assigned inside a transaction that
// locks the current-version row, so the precondition check and the version
// increment are atomic: concurrent writers to the same id serialize on the
// row lock and one of them fails its precondition instead of losing the
// update.
type PostgresResourceStore struct {
	pool   *pgxpool.Pool
	logger zerolog.Logger

	typeIDs   map[string]int16
	typeIDsMu sync.RWMutex

	surrogateSeq atomic.Uint32
}

// NewPostgresResourceStore creates a PostgresResourceStore.
func NewPostgresResourceStore(pool *pgxpool.Pool, logger zerolog.Logger) *PostgresResourceStore {
	return &PostgresResourceStore{
		pool:    pool,
		logger:  logger.With().Str("component", "resource_store").Logger(),
		typeIDs: make(map[string]int16),
	}
}

func (s *PostgresResourceStore) Upsert(ctx context.Context, resource *ResourceWrapper, precondition *WeakETag, allowCreate, keepHistory bool) (*UpsertOutcome, error) {
	tx, err := begin(ctx, s.pool)
	if err != nil {
		return nil, s.storageFault(ctx, "begin upsert", err)
	}
	defer tx.Rollback(ctx)

	typeID, err := s.typeID(ctx, tx, resource.ResourceType)
	if err != nil {
		return nil, err
	}

	key := ResourceKey{ResourceType: resource.ResourceType, ID: resource.ID}

	const lockQ = `SELECT version, is_deleted FROM resource
WHERE resource_type_id = $1 AND resource_id = $2 AND is_history = false
FOR UPDATE`

	var currentVersion int64
	var currentDeleted bool
	exists := true
	err = tx.QueryRow(ctx, lockQ, typeID, resource.ID).Scan(&currentVersion, &currentDeleted)
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			return nil, s.storageFault(ctx, "read current version", err)
		}
		exists = false
	}

	var newVersion int64
	outcome := SaveUpdated
	switch {
	case !exists:
		if precondition != nil {
			return nil, &ResourceNotFoundError{Key: key}
		}
		if !allowCreate {
			return nil, &MethodNotAllowedError{Key: key}
		}
		newVersion = 1
		outcome = SaveCreated
	default:
		if precondition != nil && precondition.VersionID() != strconv.FormatInt(currentVersion, 10) {
			return nil, &PreconditionFailedError{
				Key:      key,
				Supplied: precondition.VersionID(),
				Current:  strconv.FormatInt(currentVersion, 10),
			}
		}
		if resource.IsDeleted && currentDeleted {
			// Redundant delete: nothing to write, not an error.
			return nil, nil
		}
		newVersion = currentVersion + 1
	}

	lastUpdated := time.Now().UTC().Truncate(time.Millisecond)
	surrogate := NewSurrogateID(lastUpdated, s.surrogateSeq.Add(1))

	if exists {
		const supersedeQ = `UPDATE resource SET is_history = true
WHERE resource_type_id = $1 AND resource_id = $2 AND is_history = false`
		if _, err := tx.Exec(ctx, supersedeQ, typeID, resource.ID); err != nil {
			return nil, s.storageFault(ctx, "supersede current version", err)
		}
		if !keepHistory {
			const purgeQ = `DELETE FROM resource
WHERE resource_type_id = $1 AND resource_id = $2 AND is_history = true`
			if _, err := tx.Exec(ctx, purgeQ, typeID, resource.ID); err != nil {
				return nil, s.storageFault(ctx, "purge history", err)
			}
		}
	}

	compressed, err := compressPayload(resource.RawResource)
	if err != nil {
		return nil, err
	}

	const insertQ = `INSERT INTO resource
(resource_type_id, resource_id, version, surrogate_id, is_deleted, is_history, last_updated, payload, payload_format)
VALUES ($1, $2, $3, $4, $5, false, $6, $7, $8)`
	_, err = tx.Exec(ctx, insertQ,
		typeID, resource.ID, newVersion, int64(surrogate),
		resource.IsDeleted, lastUpdated, compressed, resource.Format,
	)
	if err != nil {
		return nil, s.storageFault(ctx, "insert version", err)
	}

	if err := s.replaceIndexRows(ctx, tx, typeID, resource); err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, s.storageFault(ctx, "commit upsert", err)
	}

	stored := *resource
	stored.VersionID = strconv.FormatInt(newVersion, 10)
	stored.LastUpdated = lastUpdated
	stored.IsHistory = false
	return &UpsertOutcome{Resource: &stored, Outcome: outcome}, nil
}

// replaceIndexRows swaps the auxiliary index rows for the resource. Index
// rows track only the current version; tombstones carry no index entries.
func (s *PostgresResourceStore) replaceIndexRows(ctx context.Context, tx pgx.Tx, typeID int16, resource *ResourceWrapper) error {
	const delSearchQ = `DELETE FROM search_index WHERE resource_type_id = $1 AND resource_id = $2`
	if _, err := tx.Exec(ctx, delSearchQ, typeID, resource.ID); err != nil {
		return s.storageFault(ctx, "clear search index", err)
	}
	const delCompQ = `DELETE FROM compartment_index WHERE resource_type_id = $1 AND resource_id = $2`
	if _, err := tx.Exec(ctx, delCompQ, typeID, resource.ID); err != nil {
		return s.storageFault(ctx, "clear compartment index", err)
	}
	if resource.IsDeleted {
		return nil
	}

	const insSearchQ = `INSERT INTO search_index
(resource_type_id, resource_id, param_name, value, system, ref_type, ref_id)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	for _, entry := range resource.SearchIndices {
		if _, err := tx.Exec(ctx, insSearchQ, typeID, resource.ID,
			entry.ParamName, entry.Value, entry.System, entry.RefType, entry.RefID); err != nil {
			return s.storageFault(ctx, "insert search index", err)
		}
	}

	const insCompQ = `INSERT INTO compartment_index
(resource_type_id, resource_id, compartment_type, compartment_id)
VALUES ($1, $2, $3, $4)`
	for _, entry := range resource.CompartmentIndices {
		if _, err := tx.Exec(ctx, insCompQ, typeID, resource.ID,
			entry.CompartmentType, entry.CompartmentID); err != nil {
			return s.storageFault(ctx, "insert compartment index", err)
		}
	}
	return nil
}

func (s *PostgresResourceStore) Get(ctx context.Context, key ResourceKey) (*ResourceWrapper, error) {
	q := conn(ctx, s.pool)

	typeID, ok, err := s.lookupTypeID(ctx, q, key.ResourceType)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}

	var row pgx.Row
	if key.Versioned() {
		version, err := strconv.ParseInt(key.VersionID, 10, 64)
		if err != nil || version < 1 {
			return nil, &InvalidVersionError{VersionID: key.VersionID}
		}
		const versionedQ = `SELECT version, surrogate_id, is_deleted, is_history, last_updated, payload, payload_format
FROM resource WHERE resource_type_id = $1 AND resource_id = $2 AND version = $3`
		row = q.QueryRow(ctx, versionedQ, typeID, key.ID, version)
	} else {
		const currentQ = `SELECT version, surrogate_id, is_deleted, is_history, last_updated, payload, payload_format
FROM resource WHERE resource_type_id = $1 AND resource_id = $2 AND is_history = false`
		row = q.QueryRow(ctx, currentQ, typeID, key.ID)
	}

	wrapper, err := s.scanWrapper(row, key.ResourceType, key.ID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, s.storageFault(ctx, "read resource", err)
	}
	return wrapper, nil
}

func (s *PostgresResourceStore) HardDelete(ctx context.Context, key ResourceKey) error {
	tx, err := begin(ctx, s.pool)
	if err != nil {
		return s.storageFault(ctx, "begin hard delete", err)
	}
	defer tx.Rollback(ctx)

	typeID, ok, err := s.lookupTypeID(ctx, tx, key.ResourceType)
	if err != nil {
		return err
	}
	if !ok {
		// Type never seen, so nothing to delete.
		return nil
	}

	for _, q := range []string{
		`DELETE FROM search_index WHERE resource_type_id = $1 AND resource_id = $2`,
		`DELETE FROM compartment_index WHERE resource_type_id = $1 AND resource_id = $2`,
		`DELETE FROM resource WHERE resource_type_id = $1 AND resource_id = $2`,
	} {
		if _, err := tx.Exec(ctx, q, typeID, key.ID); err != nil {
			return s.storageFault(ctx, "hard delete", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return s.storageFault(ctx, "commit hard delete", err)
	}
	return nil
}

func (s *PostgresResourceStore) Scan(ctx context.Context, resourceType string, after SurrogateID, limit int) ([]*ResourceWrapper, SurrogateID, error) {
	q := conn(ctx, s.pool)

	typeID, ok, err := s.lookupTypeID(ctx, q, resourceType)
	if err != nil {
		return nil, after, err
	}
	if !ok {
		return nil, after, nil
	}

	const scanQ = `SELECT resource_id, version, surrogate_id, is_deleted, is_history, last_updated, payload, payload_format
FROM resource
WHERE resource_type_id = $1 AND is_history = false AND is_deleted = false AND surrogate_id > $2
ORDER BY surrogate_id
LIMIT $3`
	rows, err := q.Query(ctx, scanQ, typeID, int64(after), limit)
	if err != nil {
		return nil, after, s.storageFault(ctx, "scan resources", err)
	}
	defer rows.Close()

	var out []*ResourceWrapper
	last := after
	for rows.Next() {
		var (
			id         string
			version    int64
			surrogate  int64
			isDeleted  bool
			isHistory  bool
			updated    time.Time
			payload    []byte
			formatName string
		)
		if err := rows.Scan(&id, &version, &surrogate, &isDeleted, &isHistory, &updated, &payload, &formatName); err != nil {
			return nil, after, s.storageFault(ctx, "scan resource row", err)
		}
		raw, err := decompressPayload(payload)
		if err != nil {
			return nil, after, err
		}
		out = append(out, &ResourceWrapper{
			ResourceType: resourceType,
			ID:           id,
			VersionID:    strconv.FormatInt(version, 10),
			LastUpdated:  updated,
			IsDeleted:    isDeleted,
			IsHistory:    isHistory,
			RawResource:  raw,
			Format:       formatName,
		})
		last = SurrogateID(surrogate)
	}
	if err := rows.Err(); err != nil {
		return nil, after, s.storageFault(ctx, "scan resources", err)
	}
	return out, last, nil
}

func (s *PostgresResourceStore) scanWrapper(row pgx.Row, resourceType, id string) (*ResourceWrapper, error) {
	var (
		version    int64
		surrogate  int64
		isDeleted  bool
		isHistory  bool
		updated    time.Time
		payload    []byte
		formatName string
	)
	if err := row.Scan(&version, &surrogate, &isDeleted, &isHistory, &updated, &payload, &formatName); err != nil {
		return nil, err
	}
	raw, err := decompressPayload(payload)
	if err != nil {
		return nil, err
	}
	return &ResourceWrapper{
		ResourceType: resourceType,
		ID:           id,
		VersionID:    strconv.FormatInt(version, 10),
		LastUpdated:  updated,
		IsDeleted:    isDeleted,
		IsHistory:    isHistory,
		RawResource:  raw,
		Format:       formatName,
	}, nil
}

// typeID resolves a resource type name to its small integer id, inserting on
// first sight. The in-process cache only ever grows; ids are stable.
func (s *PostgresResourceStore) typeID(ctx context.Context, q querier, name string) (int16, error) {
	s.typeIDsMu.RLock()
	id, ok := s.typeIDs[name]
	s.typeIDsMu.RUnlock()
	if ok {
		return id, nil
	}

	const upsertQ = `INSERT INTO resource_type (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`
	if err := q.QueryRow(ctx, upsertQ, name).Scan(&id); err != nil {
		return 0, s.storageFault(ctx, "resolve resource type", err)
	}

	s.typeIDsMu.Lock()
	s.typeIDs[name] = id
	s.typeIDsMu.Unlock()
	return id, nil
}

// lookupTypeID resolves without inserting; ok is false when the type has
// never been written.
func (s *PostgresResourceStore) lookupTypeID(ctx context.Context, q querier, name string) (int16, bool, error) {
	s.typeIDsMu.RLock()
	id, ok := s.typeIDs[name]
	s.typeIDsMu.RUnlock()
	if ok {
		return id, true, nil
	}

	const selQ = `SELECT id FROM resource_type WHERE name = $1`
	err := q.QueryRow(ctx, selQ, name).Scan(&id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, s.storageFault(ctx, "resolve resource type", err)
	}

	s.typeIDsMu.Lock()
	s.typeIDs[name] = id
	s.typeIDsMu.Unlock()
	return id, true, nil
}

// storageFault logs an unmapped backend error with context and wraps it.
// Cancellation is passed through untouched so callers can tell a canceled
// call from a genuine storage failure.
func (s *PostgresResourceStore) storageFault(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	s.logger.Error().Err(err).Str("op", op).Msg("storage failure")
	return fmt.Errorf("%s: %w", op, err)
}
