package incident

import "context"

// Store is the persistence interface for incidents.
type Store interface {
	// Create persists an incident and its entries atomically.
	Create(ctx context.Context, inc *Incident, entries []Entry) error
	Get(ctx context.Context, id string) (*Detail, bool, error)
	// List returns a page of incidents ordered newest first and the total count.
	List(ctx context.Context, limit, offset int) ([]Incident, int, error)
}
