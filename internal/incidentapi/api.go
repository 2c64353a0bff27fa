// Package incidentapi serves the incident backend over HTTP.
package incidentapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/waypoint/internal/incident"
)

// maxBodyBytes caps create payloads.
const maxBodyBytes = 1 << 20

// IncidentService defines the business operations incidentapi needs.
type IncidentService interface {
	Create(ctx context.Context, req incident.CreateRequest) (*incident.Incident, error)
	Get(ctx context.Context, id string) (*incident.Detail, bool, error)
	List(ctx context.Context, limit, offset int) (*incident.Page, error)
}

// API holds dependencies for HTTP handlers.
type API struct {
	logger log.Logger
	svc    IncidentService
}

// New creates a new API handler.
func New(logger log.Logger, svc IncidentService) *API {
	if logger == nil {
		logger = log.Nop()
	}
	if svc == nil {
		panic(xerrors.New("incident service is required"))
	}
	return &API{
		logger: logger,
		svc:    svc,
	}
}

// RegisterRoutes attaches API endpoints to the router.
func (a *API) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", a.handleListIncidents)
		r.Post("/", a.handleCreateIncident)
		r.Get("/{id}", a.handleGetIncident)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
