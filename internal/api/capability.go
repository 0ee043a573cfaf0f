package api

import (
	"net/http"

	"github.com/openclinic/fhird/internal/search"
	"github.com/openclinic/fhird/internal/util"
	"github.com/openclinic/fhird/internal/worker"
)

// Capability is the server's self-description returned from /metadata.
type Capability struct {
	ResourceTypes []string            `json:"resourceTypes"`
	SearchParams  map[string][]string `json:"searchParams"`
	Operations    []string            `json:"operations"`
}

// CapabilityContributor adds one subsystem's share to the capability
// listing. Contributors run in registration order; nothing depends on their
// concrete types.
type CapabilityContributor interface {
	Contribute(c *Capability)
}

// GetMetadata assembles the capability listing from the registered
// contributors.
func (h *handlers) GetMetadata(w http.ResponseWriter, r *http.Request) {
	c := &Capability{SearchParams: make(map[string][]string)}
	for _, contributor := range h.contributors {
		contributor.Contribute(c)
	}
	util.WriteJSON(w, http.StatusOK, c)
}

// SearchCapability contributes the registered resource types and their
// search parameters.
type SearchCapability struct {
	Registry *search.Registry
}

func (s *SearchCapability) Contribute(c *Capability) {
	for _, resourceType := range s.Registry.Types() {
		c.ResourceTypes = append(c.ResourceTypes, resourceType)
		for _, param := range s.Registry.Parameters(resourceType) {
			c.SearchParams[resourceType] = append(c.SearchParams[resourceType], param.Name)
		}
	}
}

// JobCapability contributes the runnable job types as operations.
type JobCapability struct {
	Registry *worker.Registry
}

func (j *JobCapability) Contribute(c *Capability) {
	for _, jobType := range j.Registry.JobTypes() {
		c.Operations = append(c.Operations, "$"+jobType)
	}
}
