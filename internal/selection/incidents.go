package selection

import (
	"context"
	"fmt"

	"github.com/linnemanlabs/waypoint/internal/incident"
)

// CreateIncident persists the working set as a new incident. An empty
// working set fails with ErrEmptySelection before any request is made. On
// success the submitted references leave the working set along with their
// highlights and the cached incident list is refreshed. On failure all local
// state is kept so the user can retry.
func (s *Session) CreateIncident(ctx context.Context, meta incident.Metadata) (*incident.Incident, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	refs := s.work.Items()
	s.mu.Unlock()

	if len(refs) == 0 {
		return nil, ErrEmptySelection
	}

	req := incident.CreateRequest{Metadata: meta, Entries: make([]incident.Entry, 0, len(refs))}
	for _, ref := range refs {
		req.Entries = append(req.Entries, ref.Entry())
	}

	inc, err := s.backend.CreateIncident(ctx, req)
	s.hooks.created(err)
	if err != nil {
		s.logger.Error(ctx, err, "incident create failed", "entries", len(refs))
		return nil, fmt.Errorf("create incident: %w", err)
	}

	s.mu.Lock()
	for _, ref := range refs {
		s.removeRefLocked(ref)
	}
	s.pruneClustersLocked()
	s.page = nil
	s.mu.Unlock()

	s.logger.Info(ctx, "incident created", "incident_id", inc.ID, "entries", len(refs))

	if _, err := s.ListIncidents(ctx, 0, 0); err != nil {
		s.logger.Warn(ctx, "incident list refresh failed", "err", err.Error())
	}
	return inc, nil
}

// ListIncidents fetches one page of incidents and caches it. A non-positive
// limit uses the configured page size.
func (s *Session) ListIncidents(ctx context.Context, limit, offset int) (*incident.Page, error) {
	if limit <= 0 {
		limit = s.cfg.PageSize
	}
	page, err := s.backend.ListIncidents(ctx, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list incidents: %w", err)
	}
	s.mu.Lock()
	s.page = page
	s.mu.Unlock()
	return page, nil
}

// Incidents returns the last fetched incident page, or nil.
func (s *Session) Incidents() *incident.Page {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// OpenIncidentDetails loads an incident, highlights each entry in every
// representation on the map, schedules highlighting of the clusters holding
// them and points the share link at the incident. The single selection is
// dropped; the working set is kept. Details are cached and
// concurrent loads of one id share a single request. If another incident is
// opened or closed while this one loads, the detail is returned but not
// shown. The returned detail is shared with the cache and must not be
// modified.
func (s *Session) OpenIncidentDetails(ctx context.Context, id string) (*incident.Detail, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	s.openSeq++
	seq := s.openSeq
	s.mu.Unlock()

	d, err := s.incidentDetail(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("incident %s: %w", id, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.openSeq || s.closed {
		s.hooks.stale()
		return d, nil
	}

	s.ctrl.release()
	s.closeIncidentLocked(false)
	open := &openIncident{id: id}
	for _, e := range d.Entries {
		ref := FeatureReference{SourceTable: e.SourceTable, SourceID: e.SourceID}
		open.refs = append(open.refs, ref)
		open.keys = append(open.keys, recordKeys(s.eng, s.datasetForTable(ref.SourceTable).Layers(), ref.SourceID)...)
	}
	s.marks.set(open.keys...)
	s.open = open
	s.host.SetShareLink(ShareLink{Param: ParamIncident, Value: id})
	s.pruneClustersLocked()
	return d, nil
}

// CloseIncidentDetails hides the open incident: its highlights, the cluster
// highlights derived from it and the share link unless a feature selected
// since holds it. Loads still in flight will
// not be shown.
func (s *Session) CloseIncidentDetails() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.openSeq++
	s.closeIncidentLocked(true)
}

// OpenIncident returns the id of the incident being shown.
func (s *Session) OpenIncident() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.open == nil {
		return "", false
	}
	return s.open.id, true
}

// HoverIncident prefetches an incident after the configured delay unless the
// hover ends or moves to another incident first. Prefetch failures are only
// logged.
func (s *Session) HoverIncident(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.hover != nil {
		s.hover.Stop()
		s.hover = nil
	}
	if s.cache.Contains(id) {
		return
	}
	s.hover = s.clock.AfterFunc(s.cfg.PrefetchDelay, func() {
		if _, err := s.incidentDetail(s.ctx, id); err != nil && s.ctx.Err() == nil {
			s.logger.Warn(s.ctx, "incident prefetch failed", "incident_id", id, "err", err.Error())
		}
	})
}

// HoverEnd cancels a pending prefetch.
func (s *Session) HoverEnd() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.hover != nil {
		s.hover.Stop()
		s.hover = nil
	}
}

// incidentDetail serves from the cache or fetches once per id on the session
// context, so one caller giving up does not fail the others.
func (s *Session) incidentDetail(ctx context.Context, id string) (*incident.Detail, error) {
	if d, ok := s.cache.Get(id); ok {
		s.hooks.detailCache(true)
		return d, nil
	}
	s.hooks.detailCache(false)

	ch := s.flight.DoChan(id, func() (any, error) {
		d, err := s.backend.GetIncident(s.ctx, id)
		if err != nil {
			return nil, err
		}
		s.cache.Add(id, d)
		return d, nil
	})
	select {
	case r := <-ch:
		if r.Err != nil {
			return nil, r.Err
		}
		return r.Val.(*incident.Detail), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *Session) closeIncidentLocked(clearLink bool) {
	if s.open == nil {
		return
	}
	s.marks.unset(s.open.keys...)
	s.open = nil
	if clearLink && !s.ctrl.linked {
		s.host.SetShareLink(ShareLink{})
	}
	s.pruneClustersLocked()
}
