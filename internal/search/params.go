package search

import (
	"fmt"
	"sort"
	"sync"
)

// ParamType enumerates supported search parameter types.
type ParamType string

const (
	TypeString    ParamType = "string"
	TypeToken     ParamType = "token"
	TypeReference ParamType = "reference"
	TypeNumber    ParamType = "number"
	TypeDate      ParamType = "date"
)

// SearchParameter describes one search parameter supported on a resource
// type. Path addresses the JSON element the index extractor reads; for
// reference parameters it points at the element holding the "Type/id"
// reference string.
type SearchParameter struct {
	Name        string
	Type        ParamType
	TargetTypes []string
	Path        []string
}

// Definitions resolves parameter names per resource type.
type Definitions interface {
	// GetSearchParameter fails with *SearchParameterNotSupportedError when
	// the parameter is not defined on the resource type.
	GetSearchParameter(resourceType, name string) (*SearchParameter, error)
}

// SearchParameterNotSupportedError signals an unknown parameter name on a
// resource type. The parser swallows it during chain fan-out; everywhere
// else it propagates.
type SearchParameterNotSupportedError struct {
	ResourceType string
	Name         string
}

func (e *SearchParameterNotSupportedError) Error() string {
	return fmt.Sprintf("search parameter %q is not supported on %s", e.Name, e.ResourceType)
}

// InvalidSearchOperationError signals a malformed or unresolvable search
// key. Segment names the offending part of the key.
type InvalidSearchOperationError struct {
	Segment string
	Reason  string
}

func (e *InvalidSearchOperationError) Error() string {
	return fmt.Sprintf("invalid search operation at %q: %s", e.Segment, e.Reason)
}

// Registry is an in-memory Definitions implementation. Parameters registered
// under the empty resource type apply to every type.
type Registry struct {
	mu     sync.RWMutex
	params map[string]map[string]*SearchParameter
}

// NewRegistry creates a Registry preloaded with the core parameters that
// every resource type carries.
func NewRegistry() *Registry {
	r := &Registry{params: make(map[string]map[string]*SearchParameter)}
	r.Register("", &SearchParameter{Name: "_id", Type: TypeToken, Path: []string{"id"}})
	r.Register("", &SearchParameter{Name: "_lastUpdated", Type: TypeDate, Path: []string{"meta", "lastUpdated"}})
	return r
}

// Register adds a parameter definition for a resource type ("" for all
// types). Later registrations for the same name win.
func (r *Registry) Register(resourceType string, param *SearchParameter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	byName, ok := r.params[resourceType]
	if !ok {
		byName = make(map[string]*SearchParameter)
		r.params[resourceType] = byName
	}
	byName[param.Name] = param
}

func (r *Registry) GetSearchParameter(resourceType, name string) (*SearchParameter, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if param, ok := r.params[resourceType][name]; ok {
		return param, nil
	}
	if param, ok := r.params[""][name]; ok {
		return param, nil
	}
	return nil, &SearchParameterNotSupportedError{ResourceType: resourceType, Name: name}
}

// Types returns the resource types with registered parameters, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []string
	for resourceType := range r.params {
		if resourceType != "" {
			out = append(out, resourceType)
		}
	}
	sort.Strings(out)
	return out
}

// Parameters returns the definitions registered for a resource type,
// including the type-independent core parameters, sorted by name so
// capability listings are stable across runs.
func (r *Registry) Parameters(resourceType string) []*SearchParameter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*SearchParameter
	for _, param := range r.params[""] {
		out = append(out, param)
	}
	if resourceType != "" {
		for _, param := range r.params[resourceType] {
			out = append(out, param)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
