package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/openclinic/fhird/internal/export"
	"github.com/openclinic/fhird/internal/store"
	"github.com/openclinic/fhird/internal/util"
)

type jobResponse struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Status    string          `json:"status"`
	Result    json.RawMessage `json:"result,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

func toJobResponse(outcome *store.JobOutcome) jobResponse {
	rec := outcome.Record
	return jobResponse{
		ID:        rec.ID,
		Type:      rec.Type,
		Status:    rec.Status,
		Result:    rec.Result,
		CreatedAt: rec.CreatedAt,
		UpdatedAt: rec.UpdatedAt,
	}
}

// PostExport queues a bulk-export job and returns its id for polling.
func (h *handlers) PostExport(w http.ResponseWriter, r *http.Request) {
	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	var req export.Request
	if err := json.Unmarshal(body, &req); err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "invalid JSON: "+err.Error())
		return
	}
	if req.ResourceType == "" {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "resourceType is required")
		return
	}

	outcome, err := h.jobs.CreateJob(r.Context(), &store.JobRecord{
		Type:    export.JobType,
		Payload: body,
	})
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	w.Header().Set("ETag", outcome.ETag.String())
	w.Header().Set("Content-Location", "/fhir/jobs/"+outcome.Record.ID)
	util.WriteJSON(w, http.StatusAccepted, toJobResponse(outcome))
}

// GetJob reports the status of a background job.
func (h *handlers) GetJob(w http.ResponseWriter, r *http.Request) {
	outcome, err := h.jobs.GetJob(r.Context(), chi.URLParam(r, "jobID"))
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if outcome == nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "job not found")
		return
	}
	w.Header().Set("ETag", outcome.ETag.String())
	util.WriteJSON(w, http.StatusOK, toJobResponse(outcome))
}
