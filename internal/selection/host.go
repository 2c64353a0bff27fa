package selection

import (
	"context"

	"github.com/linnemanlabs/waypoint/internal/incident"
)

// FeatureDetail is what the host shows for a selected feature.
type FeatureDetail struct {
	Ref        FeatureReference
	Layer      string
	Properties map[string]any
}

// Host is the view embedding a Session. Calls are made with the session lock
// held and must not call back into the Session.
type Host interface {
	OpenDetail(d FeatureDetail)
	CloseDetail()
	SetShareLink(l ShareLink)
}

// Backend is the incident persistence API.
type Backend interface {
	ListIncidents(ctx context.Context, limit, offset int) (*incident.Page, error)
	GetIncident(ctx context.Context, id string) (*incident.Detail, error)
	CreateIncident(ctx context.Context, req incident.CreateRequest) (*incident.Incident, error)
}

type nopHost struct{}

func (nopHost) OpenDetail(FeatureDetail) {}
func (nopHost) CloseDetail()             {}
func (nopHost) SetShareLink(ShareLink)   {}
