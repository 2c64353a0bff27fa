package incident

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"
	"github.com/oklog/ulid/v2"
)

// List paging bounds.
const (
	DefaultLimit = 50
	MaxLimit     = 200
)

// ErrInvalid is returned for create requests that fail validation.
var ErrInvalid = errors.New("invalid incident")

// Notifier is told about newly created incidents.
type Notifier interface {
	IncidentCreated(ctx context.Context, inc *Incident) error
}

// Hooks receives service events. Nil funcs are skipped.
type Hooks struct {
	OnCreate func(entries int, duration float64, err error)
	OnGet    func(found bool, duration float64, err error)
	OnList   func(duration float64, err error)
}

// Service is the business boundary for incident operations.
type Service struct {
	store    Store
	notifier Notifier
	logger   log.Logger
	hooks    Hooks
	now      func() time.Time
}

// NewService creates a new incident service. notifier may be nil.
func NewService(store Store, notifier Notifier, logger log.Logger, hooks Hooks) *Service {
	if store == nil {
		panic(xerrors.New("incident store is required"))
	}
	if logger == nil {
		logger = log.Nop()
	}
	return &Service{
		store:    store,
		notifier: notifier,
		logger:   logger,
		hooks:    hooks,
		now:      time.Now,
	}
}

// Create validates req, assigns an id and persists the incident.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Incident, error) {
	start := time.Now()
	inc, err := s.create(ctx, req)
	if s.hooks.OnCreate != nil {
		s.hooks.OnCreate(len(req.Entries), time.Since(start).Seconds(), err)
	}
	return inc, err
}

func (s *Service) create(ctx context.Context, req CreateRequest) (*Incident, error) {
	req, err := Normalize(req)
	if err != nil {
		return nil, err
	}

	inc := &Incident{
		ID:         ulid.Make().String(),
		Metadata:   req.Metadata,
		EntryCount: len(req.Entries),
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.Create(ctx, inc, req.Entries); err != nil {
		return nil, fmt.Errorf("store incident: %w", err)
	}

	s.logger.Info(ctx, "incident created", "incident_id", inc.ID, "entries", inc.EntryCount)

	if s.notifier != nil {
		cp := *inc
		go func() {
			nctx := context.WithoutCancel(ctx)
			if err := s.notifier.IncidentCreated(nctx, &cp); err != nil {
				s.logger.Error(nctx, err, "incident notification failed", "incident_id", cp.ID)
			}
		}()
	}
	return inc, nil
}

// Get retrieves an incident and its entries by id.
func (s *Service) Get(ctx context.Context, id string) (*Detail, bool, error) {
	start := time.Now()
	d, ok, err := s.store.Get(ctx, id)
	if s.hooks.OnGet != nil {
		s.hooks.OnGet(ok, time.Since(start).Seconds(), err)
	}
	return d, ok, err
}

// List returns one page of incidents. limit is clamped to 1..MaxLimit with
// DefaultLimit for zero, and a negative offset is treated as zero.
func (s *Service) List(ctx context.Context, limit, offset int) (*Page, error) {
	start := time.Now()
	limit, offset = ClampPage(limit, offset)
	items, total, err := s.store.List(ctx, limit, offset)
	if s.hooks.OnList != nil {
		s.hooks.OnList(time.Since(start).Seconds(), err)
	}
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []Incident{}
	}
	return &Page{Incidents: items, Total: total, Limit: limit, Offset: offset}, nil
}

// ClampPage applies the list paging bounds.
func ClampPage(limit, offset int) (int, int) {
	switch {
	case limit <= 0:
		limit = DefaultLimit
	case limit > MaxLimit:
		limit = MaxLimit
	}
	return limit, max(offset, 0)
}

// Normalize trims the request, collapses duplicate entries and validates it.
// Validation failures wrap ErrInvalid.
func Normalize(req CreateRequest) (CreateRequest, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Description = strings.TrimSpace(req.Description)
	req.IncidentType = strings.TrimSpace(req.IncidentType)
	req.ResponsibleParty = strings.TrimSpace(req.ResponsibleParty)
	req.ImpactDescription = strings.TrimSpace(req.ImpactDescription)
	req.SupportingEvidence = strings.TrimSpace(req.SupportingEvidence)

	var errs []error
	if req.Name == "" {
		errs = append(errs, errors.New("name is required"))
	}
	if len(req.Entries) == 0 {
		errs = append(errs, errors.New("at least one entry is required"))
	}

	type key struct{ table, id string }
	seen := make(map[key]struct{}, len(req.Entries))
	entries := make([]Entry, 0, len(req.Entries))
	for i, e := range req.Entries {
		e.SourceTable = strings.TrimSpace(e.SourceTable)
		e.SourceID = strings.TrimSpace(e.SourceID)
		if e.SourceTable == "" || e.SourceID == "" {
			errs = append(errs, fmt.Errorf("entry %d: source_table and source_id are required", i))
			continue
		}
		k := key{e.SourceTable, e.SourceID}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		entries = append(entries, e)
	}
	req.Entries = entries

	if len(errs) > 0 {
		return req, fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return req, nil
}
