// Package index derives search and compartment index entries from raw
// resource JSON at write time. It reads only the elements the registered
// search parameters point at; the payload is never fully decoded.
package index

import (
	"strings"
	"time"

	"github.com/buger/jsonparser"

	"github.com/openclinic/fhird/internal/search"
	"github.com/openclinic/fhird/internal/store"
)

// Compartment types recognized when indexing reference parameters.
var compartmentTypes = map[string]bool{
	"Patient":       true,
	"Encounter":     true,
	"Practitioner":  true,
	"Device":        true,
	"RelatedPerson": true,
}

// Extractor extracts index entries using the parameter paths registered for
// each resource type.
type Extractor struct {
	defs *search.Registry
}

// NewExtractor creates an Extractor over the registry.
func NewExtractor(defs *search.Registry) *Extractor {
	return &Extractor{defs: defs}
}

// Extract returns the search-index and compartment rows for one resource
// payload. Parameters whose path is absent from the payload contribute no
// rows; malformed elements are skipped rather than failing the write.
func (e *Extractor) Extract(resourceType string, raw []byte) ([]store.SearchIndexEntry, []store.CompartmentEntry) {
	var entries []store.SearchIndexEntry
	var compartments []store.CompartmentEntry

	for _, param := range e.defs.Parameters(resourceType) {
		if len(param.Path) == 0 {
			continue
		}
		collect(raw, param.Path, func(value []byte, vt jsonparser.ValueType) {
			switch param.Type {
			case search.TypeToken:
				entries = append(entries, tokenEntry(param.Name, value, vt))
			case search.TypeDate:
				entry, ok := dateEntry(param.Name, value, vt)
				if !ok {
					return
				}
				entries = append(entries, entry)
			case search.TypeReference:
				entry, ok := referenceEntry(param.Name, value, vt)
				if !ok {
					return
				}
				entries = append(entries, entry)
				if compartmentTypes[entry.RefType] {
					compartments = append(compartments, store.CompartmentEntry{
						CompartmentType: entry.RefType,
						CompartmentID:   entry.RefID,
					})
				}
			default:
				if vt == jsonparser.String || vt == jsonparser.Number || vt == jsonparser.Boolean {
					entries = append(entries, store.SearchIndexEntry{
						ParamName: param.Name,
						Value:     string(value),
					})
				}
			}
		})
	}
	return entries, compartments
}

// tokenEntry handles bare codes, Coding objects (system/code), and
// Identifier objects (system/value).
func tokenEntry(name string, value []byte, vt jsonparser.ValueType) store.SearchIndexEntry {
	entry := store.SearchIndexEntry{ParamName: name}
	if vt == jsonparser.Object {
		entry.System, _ = jsonparser.GetString(value, "system")
		code, err := jsonparser.GetString(value, "code")
		if err != nil {
			code, _ = jsonparser.GetString(value, "value")
		}
		entry.Value = code
		return entry
	}
	entry.Value = string(value)
	return entry
}

// dateEntry normalizes date literals to RFC 3339 so index values and the
// query translator's binds compare in one format. Partial dates (year or
// year-month) widen to their first instant, matching the value parser.
func dateEntry(name string, value []byte, vt jsonparser.ValueType) (store.SearchIndexEntry, bool) {
	if vt != jsonparser.String {
		return store.SearchIndexEntry{}, false
	}
	t, err := search.ParseDate(string(value))
	if err != nil {
		return store.SearchIndexEntry{}, false
	}
	return store.SearchIndexEntry{ParamName: name, Value: t.Format(time.RFC3339)}, true
}

// referenceEntry handles both Reference objects and bare "Type/id" strings.
func referenceEntry(name string, value []byte, vt jsonparser.ValueType) (store.SearchIndexEntry, bool) {
	ref := string(value)
	if vt == jsonparser.Object {
		var err error
		ref, err = jsonparser.GetString(value, "reference")
		if err != nil {
			return store.SearchIndexEntry{}, false
		}
	}
	entry := store.SearchIndexEntry{ParamName: name, RefID: ref}
	if refType, id, found := strings.Cut(ref, "/"); found {
		entry.RefType = refType
		entry.RefID = id
	}
	return entry, entry.RefID != ""
}

// collect walks a dotted element path, fanning out over arrays at any level,
// and invokes fn for each terminal value found.
func collect(data []byte, path []string, fn func(value []byte, vt jsonparser.ValueType)) {
	value, vt, _, err := jsonparser.Get(data, path[0])
	if err != nil {
		return
	}
	emit := func(item []byte, ivt jsonparser.ValueType) {
		if len(path) == 1 {
			fn(item, ivt)
			return
		}
		if ivt == jsonparser.Object {
			collect(item, path[1:], fn)
		}
	}
	if vt == jsonparser.Array {
		_, _ = jsonparser.ArrayEach(value, func(item []byte, ivt jsonparser.ValueType, _ int, _ error) {
			emit(item, ivt)
		})
		return
	}
	emit(value, vt)
}
