package store

import (
	"strconv"
	"time"
)

// Payload formats carried alongside the opaque resource bytes. The store
// never interprets the payload; the tag travels with it for callers.
const (
	FormatJSON = "json"
	FormatXML  = "xml"
)

// ResourceKey identifies one resource, or one specific version of it when
// VersionID is set.
type ResourceKey struct {
	ResourceType string
	ID           string
	VersionID    string
}

// Versioned reports whether the key addresses a specific version.
func (k ResourceKey) Versioned() bool {
	return k.VersionID != ""
}

// SearchIndexEntry is one derived search-index row extracted from a resource
// at write time. Which value columns are populated depends on the parameter
// type.
type SearchIndexEntry struct {
	ParamName string
	Value     string
	System    string
	RefType   string
	RefID     string
}

// CompartmentEntry links a resource into a compartment (for example the
// Patient compartment) at write time.
type CompartmentEntry struct {
	CompartmentType string
	CompartmentID   string
}

// ResourceWrapper is a stored resource version together with the derived
// indexing data used to populate auxiliary indexes on write.
type ResourceWrapper struct {
	ResourceType string
	ID           string
	VersionID    string
	LastUpdated  time.Time
	IsDeleted    bool
	IsHistory    bool
	RawResource  []byte
	Format       string

	SearchIndices      []SearchIndexEntry
	CompartmentIndices []CompartmentEntry
}

// Key returns the fully versioned key of this wrapper.
func (w *ResourceWrapper) Key() ResourceKey {
	return ResourceKey{ResourceType: w.ResourceType, ID: w.ID, VersionID: w.VersionID}
}

// WeakETag wraps a version id for use as an optimistic-concurrency
// precondition. A nil *WeakETag means "no precondition".
type WeakETag struct {
	versionID string
}

// ETagFromVersion builds a WeakETag for a version id string.
func ETagFromVersion(versionID string) *WeakETag {
	return &WeakETag{versionID: versionID}
}

// VersionID returns the wrapped version id.
func (e *WeakETag) VersionID() string {
	return e.versionID
}

// String renders the HTTP weak-ETag form, W/"<version>".
func (e *WeakETag) String() string {
	return `W/"` + e.versionID + `"`
}

// ParseWeakETag accepts either a bare version id or the W/"..." HTTP form.
// Returns nil for an empty input.
func ParseWeakETag(s string) *WeakETag {
	if s == "" {
		return nil
	}
	if len(s) > 4 && s[:3] == `W/"` && s[len(s)-1] == '"' {
		s = s[3 : len(s)-1]
	}
	return &WeakETag{versionID: s}
}

// SaveOutcome distinguishes a first create from an update of an existing
// resource.
type SaveOutcome int

const (
	SaveCreated SaveOutcome = iota
	SaveUpdated
)

func (o SaveOutcome) String() string {
	if o == SaveCreated {
		return "created"
	}
	return "updated"
}

// UpsertOutcome is the result of a successful Upsert: the stored wrapper with
// its newly assigned version and whether the call created or updated.
type UpsertOutcome struct {
	Resource *ResourceWrapper
	Outcome  SaveOutcome
}

// Job lifecycle states persisted in the jobs table.
const (
	JobStatusQueued    = "queued"
	JobStatusRunning   = "running"
	JobStatusCompleted = "completed"
	JobStatusFailed    = "failed"
	JobStatusCancelled = "cancelled"
)

// JobRecord is an arbitrary-typed unit of background work persisted in the
// jobs table. Payload and Result are opaque to the store.
type JobRecord struct {
	ID          string
	Type        string
	Status      string
	Payload     []byte
	Result      []byte
	HeartbeatAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time

	rowVersion int64
}

// RowVersion returns the persisted row version backing this record's ETag.
func (r *JobRecord) RowVersion() int64 {
	return r.rowVersion
}

// JobOutcome pairs a job record with the WeakETag of the row version it was
// read (or leased) at.
type JobOutcome struct {
	Record *JobRecord
	ETag   *WeakETag
}

func etagFromRowVersion(v int64) *WeakETag {
	return ETagFromVersion(strconv.FormatInt(v, 10))
}
