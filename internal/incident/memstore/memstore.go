// Package memstore provides an in-memory implementation of incident.Store.
package memstore

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"github.com/linnemanlabs/waypoint/internal/incident"
)

type record struct {
	inc     incident.Incident
	entries []incident.Entry
}

// Store holds incidents in memory. Suitable for dev/testing.
type Store struct {
	mu      sync.RWMutex
	records map[string]*record // incident ID -> record
	order   []string           // insertion order, oldest first
}

// New initializes a new in-memory Store.
func New() *Store {
	return &Store{records: make(map[string]*record)}
}

// Create stores a copy of the incident and its entries.
func (s *Store) Create(_ context.Context, inc *incident.Incident, entries []incident.Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.records[inc.ID]; exists {
		return fmt.Errorf("incident %s already exists", inc.ID)
	}
	s.records[inc.ID] = &record{inc: *inc, entries: slices.Clone(entries)}
	s.order = append(s.order, inc.ID)
	return nil
}

// Get retrieves an incident with its entries. Returns a copy.
func (s *Store) Get(_ context.Context, id string) (*incident.Detail, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.records[id]
	if !ok {
		return nil, false, nil
	}
	return &incident.Detail{
		Incident: r.inc,
		Data:     incident.Summarize(r.entries),
		Entries:  slices.Clone(r.entries),
	}, true, nil
}

// List returns incidents newest first.
func (s *Store) List(_ context.Context, limit, offset int) ([]incident.Incident, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	total := len(s.order)
	out := make([]incident.Incident, 0, min(limit, total))
	for i := total - 1 - offset; i >= 0 && len(out) < limit; i-- {
		out = append(out, s.records[s.order[i]].inc)
	}
	return out, total, nil
}
