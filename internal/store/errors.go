package store

import "fmt"

// PreconditionFailedError is returned when a supplied WeakETag does not match
// the current stored version. Callers retry with a fresh version.
type PreconditionFailedError struct {
	Key      ResourceKey
	Supplied string
	Current  string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("precondition failed for %s/%s: supplied version %q, current %q",
		e.Key.ResourceType, e.Key.ID, e.Supplied, e.Current)
}

// ResourceNotFoundError is returned when a precondition was supplied for a
// resource that does not exist, or a versioned read misses.
type ResourceNotFoundError struct {
	Key ResourceKey
}

func (e *ResourceNotFoundError) Error() string {
	if e.Key.Versioned() {
		return fmt.Sprintf("resource %s/%s version %s not found", e.Key.ResourceType, e.Key.ID, e.Key.VersionID)
	}
	return fmt.Sprintf("resource %s/%s not found", e.Key.ResourceType, e.Key.ID)
}

// MethodNotAllowedError is returned when an upsert without a precondition
// targets a nonexistent resource and create is disallowed by policy.
type MethodNotAllowedError struct {
	Key ResourceKey
}

func (e *MethodNotAllowedError) Error() string {
	return fmt.Sprintf("create of %s/%s is not allowed", e.Key.ResourceType, e.Key.ID)
}

// InvalidVersionError is returned when a versioned read carries a version id
// that is not a positive integer.
type InvalidVersionError struct {
	VersionID string
}

func (e *InvalidVersionError) Error() string {
	return fmt.Sprintf("invalid version id %q", e.VersionID)
}

// OperationFailedError wraps a fatal storage failure while materializing a
// new record, for example creating a job. Not retried at this layer.
type OperationFailedError struct {
	Op  string
	Err error
}

func (e *OperationFailedError) Error() string {
	return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
}

func (e *OperationFailedError) Unwrap() error { return e.Err }
