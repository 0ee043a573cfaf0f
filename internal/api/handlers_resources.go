package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/openclinic/fhird/internal/search"
	"github.com/openclinic/fhird/internal/store"
	"github.com/openclinic/fhird/internal/util"
)

// PutResource updates (or creates, policy permitting) a resource at a
// client-chosen id. An If-Match header supplies the version precondition.
func (h *handlers) PutResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")
	resourceID := chi.URLParam(r, "resourceID")

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	precondition := store.ParseWeakETag(r.Header.Get("If-Match"))
	wrapper := h.wrap(resourceType, resourceID, body, false)

	outcome, err := h.resources.Upsert(r.Context(), wrapper, precondition, h.cfg.AllowUpdateCreate, h.cfg.KeepHistory)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Outcome == store.SaveCreated {
		status = http.StatusCreated
	}
	h.writeResource(w, status, outcome.Resource)
}

// PostResource creates a resource under a server-assigned id.
func (h *handlers) PostResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")

	body, ok := h.readBody(w, r)
	if !ok {
		return
	}

	wrapper := h.wrap(resourceType, uuid.NewString(), body, false)
	outcome, err := h.resources.Upsert(r.Context(), wrapper, nil, true, h.cfg.KeepHistory)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	h.writeResource(w, http.StatusCreated, outcome.Resource)
}

// GetResource returns the current version.
func (h *handlers) GetResource(w http.ResponseWriter, r *http.Request) {
	h.getByKey(w, r, store.ResourceKey{
		ResourceType: chi.URLParam(r, "resourceType"),
		ID:           chi.URLParam(r, "resourceID"),
	})
}

// GetResourceVersion returns one specific version.
func (h *handlers) GetResourceVersion(w http.ResponseWriter, r *http.Request) {
	h.getByKey(w, r, store.ResourceKey{
		ResourceType: chi.URLParam(r, "resourceType"),
		ID:           chi.URLParam(r, "resourceID"),
		VersionID:    chi.URLParam(r, "versionID"),
	})
}

func (h *handlers) getByKey(w http.ResponseWriter, r *http.Request, key store.ResourceKey) {
	wrapper, err := h.resources.Get(r.Context(), key)
	if err != nil {
		h.writeStoreError(w, err)
		return
	}
	if wrapper == nil {
		util.WriteError(w, http.StatusNotFound, "not_found", "resource not found")
		return
	}
	if wrapper.IsDeleted {
		w.Header().Set("ETag", store.ETagFromVersion(wrapper.VersionID).String())
		util.WriteError(w, http.StatusGone, "deleted", "resource has been deleted")
		return
	}
	h.writeResource(w, http.StatusOK, wrapper)
}

// DeleteResource tombstones the current version. With ?hard=true every
// version is physically removed instead. Both are idempotent.
func (h *handlers) DeleteResource(w http.ResponseWriter, r *http.Request) {
	resourceType := chi.URLParam(r, "resourceType")
	resourceID := chi.URLParam(r, "resourceID")
	key := store.ResourceKey{ResourceType: resourceType, ID: resourceID}

	if r.URL.Query().Get("hard") == "true" {
		if err := h.resources.HardDelete(r.Context(), key); err != nil {
			h.writeStoreError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
		return
	}

	tombstone := h.wrap(resourceType, resourceID, nil, true)
	outcome, err := h.resources.Upsert(r.Context(), tombstone, nil, false, h.cfg.KeepHistory)
	if err != nil {
		var notAllowed *store.MethodNotAllowedError
		if errors.As(err, &notAllowed) {
			// Deleting what never existed is a no-op.
			w.WriteHeader(http.StatusNoContent)
			return
		}
		h.writeStoreError(w, err)
		return
	}
	if outcome != nil {
		w.Header().Set("ETag", store.ETagFromVersion(outcome.Resource.VersionID).String())
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) readBody(w http.ResponseWriter, r *http.Request) ([]byte, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, h.cfg.MaxBodyBytes+1))
	if err != nil {
		util.WriteError(w, http.StatusBadRequest, "invalid_request", "failed to read body")
		return nil, false
	}
	if int64(len(body)) > h.cfg.MaxBodyBytes {
		util.WriteError(w, http.StatusRequestEntityTooLarge, "invalid_request", "body too large")
		return nil, false
	}
	return body, true
}

// wrap assembles the wrapper written to the store, including the index rows
// derived from the payload. Tombstones carry no payload and no index rows.
func (h *handlers) wrap(resourceType, id string, body []byte, deleted bool) *store.ResourceWrapper {
	wrapper := &store.ResourceWrapper{
		ResourceType: resourceType,
		ID:           id,
		IsDeleted:    deleted,
		RawResource:  body,
		Format:       store.FormatJSON,
	}
	if !deleted {
		wrapper.SearchIndices, wrapper.CompartmentIndices = h.extractor.Extract(resourceType, body)
	}
	return wrapper
}

func (h *handlers) writeResource(w http.ResponseWriter, status int, wrapper *store.ResourceWrapper) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("ETag", store.ETagFromVersion(wrapper.VersionID).String())
	w.Header().Set("Last-Modified", wrapper.LastUpdated.UTC().Format(time.RFC1123))
	w.WriteHeader(status)
	w.Write(wrapper.RawResource)
}

// writeStoreError maps the typed error taxonomy onto status codes.
func (h *handlers) writeStoreError(w http.ResponseWriter, err error) {
	var (
		precondition *store.PreconditionFailedError
		notFound     *store.ResourceNotFoundError
		notAllowed   *store.MethodNotAllowedError
		badVersion   *store.InvalidVersionError
		badSearch    *search.InvalidSearchOperationError
		unsupported  *search.SearchParameterNotSupportedError
		opFailed     *store.OperationFailedError
	)
	switch {
	case errors.As(err, &precondition):
		util.WriteError(w, http.StatusPreconditionFailed, "precondition_failed", err.Error())
	case errors.As(err, &notFound):
		util.WriteError(w, http.StatusNotFound, "not_found", err.Error())
	case errors.As(err, &notAllowed):
		util.WriteError(w, http.StatusMethodNotAllowed, "not_allowed", err.Error())
	case errors.As(err, &badVersion):
		util.WriteError(w, http.StatusBadRequest, "invalid_version", err.Error())
	case errors.As(err, &badSearch):
		util.WriteError(w, http.StatusBadRequest, "invalid_search", err.Error())
	case errors.As(err, &unsupported):
		util.WriteError(w, http.StatusBadRequest, "unsupported_parameter", err.Error())
	case errors.As(err, &opFailed):
		util.WriteError(w, http.StatusInternalServerError, "operation_failed", "storage operation failed")
	default:
		h.logger.Error().Err(err).Msg("unhandled store error")
		util.WriteError(w, http.StatusInternalServerError, "internal", "internal error")
	}
}
