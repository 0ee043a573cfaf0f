package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/openclinic/fhird/internal/search"
	"github.com/openclinic/fhird/internal/util"
)

// Query parameters that tune the request rather than filter resources.
var controlParams = map[string]bool{
	"_count":  true,
	"_format": true,
}

// SearchResources parses every filter parameter into an expression, combines
// them conjunctively, and returns the matching current versions as a bundle.
func (h *handlers) SearchResources(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")
	limit := util.ParseLimit(r, 50, 500)

	var filters []search.Expression
	for key, values := range r.URL.Query() {
		if controlParams[key] {
			continue
		}
		for _, value := range values {
			expr, err := h.parser.Parse(resourceType, key, value)
			if err != nil {
				h.writeStoreError(w, err)
				return
			}
			filters = append(filters, expr)
		}
	}

	var expr search.Expression
	switch len(filters) {
	case 0:
	case 1:
		expr = filters[0]
	default:
		expr = search.And(filters...)
	}

	matches, err := h.resources.Search(r.Context(), resourceType, expr, limit)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	type entry struct {
		Resource json.RawMessage `json:"resource"`
	}
	bundle := struct {
		ResourceType string  `json:"resourceType"`
		Type         string  `json:"type"`
		Total        int     `json:"total"`
		Entry        []entry `json:"entry"`
	}{
		ResourceType: "Bundle",
		Type:         "searchset",
		Total:        len(matches),
		Entry:        make([]entry, 0, len(matches)),
	}
	for _, match := range matches {
		bundle.Entry = append(bundle.Entry, entry{Resource: match.RawResource})
	}
	util.WriteJSON(w, http.StatusOK, bundle)
}
