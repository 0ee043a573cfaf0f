// Package api exposes the resource operations engine over HTTP.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/openclinic/fhird/internal/config"
	"github.com/openclinic/fhird/internal/index"
	"github.com/openclinic/fhird/internal/search"
	"github.com/openclinic/fhird/internal/store"
)

// ResourceStore is the store surface the handlers need: versioned CRUD plus
// expression search.
type ResourceStore interface {
	store.ResourceStore
	Search(ctx context.Context, resourceType string, expr search.Expression, limit int) ([]*store.ResourceWrapper, error)
}

// NewRouter creates the HTTP router.
func NewRouter(
	resources ResourceStore,
	jobs store.JobStore,
	parser *search.Parser,
	extractor *index.Extractor,
	contributors []CapabilityContributor,
	cfg config.Config,
	logger zerolog.Logger,
) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Timeout(30 * time.Second))

	h := &handlers{
		resources:    resources,
		jobs:         jobs,
		parser:       parser,
		extractor:    extractor,
		contributors: contributors,
		cfg:          cfg,
		logger:       logger.With().Str("component", "api").Logger(),
	}

	r.Get("/healthz", h.GetHealth)
	r.Get("/metadata", h.GetMetadata)

	r.Route("/fhir", func(r chi.Router) {
		r.Post("/$export", h.PostExport)
		r.Get("/jobs/{jobID}", h.GetJob)

		r.Route("/{resourceType}", func(r chi.Router) {
			r.Post("/", h.PostResource)
			r.Get("/", h.SearchResources)
			r.Route("/{resourceID}", func(r chi.Router) {
				r.Put("/", h.PutResource)
				r.Get("/", h.GetResource)
				r.Delete("/", h.DeleteResource)
				r.Get("/_history/{versionID}", h.GetResourceVersion)
			})
		})
	})

	return r
}

type handlers struct {
	resources    ResourceStore
	jobs         store.JobStore
	parser       *search.Parser
	extractor    *index.Extractor
	contributors []CapabilityContributor
	cfg          config.Config
	logger       zerolog.Logger
}

func (h *handlers) GetHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNoContent)
}
