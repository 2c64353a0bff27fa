package selection

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/require"

	"github.com/linnemanlabs/go-core/log"

	"github.com/linnemanlabs/waypoint/internal/incident"
	"github.com/linnemanlabs/waypoint/internal/mapview"
	"github.com/linnemanlabs/waypoint/internal/mapview/memmap"
)

const (
	eventually = 2 * time.Second
	tick       = 5 * time.Millisecond
)

var alertsDataset = Dataset{Table: "alerts", Kind: KindAlerts}

func point(id string, lon, lat float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{lon, lat})
	f.ID = id
	return f
}

func square(id string, lon, lat, size float64) *geojson.Feature {
	f := geojson.NewFeature(orb.Polygon{orb.Ring{
		{lon, lat}, {lon + size, lat}, {lon + size, lat + size}, {lon, lat + size}, {lon, lat},
	}})
	f.ID = id
	return f
}

func line(id string, from, to orb.Point) *geojson.Feature {
	f := geojson.NewFeature(orb.LineString{from, to})
	f.ID = id
	return f
}

// standardFeatures: p1, p2 and the centroid of polygon 123 share a cluster
// below zoom 14; line l1 and point p3 stand alone.
func standardFeatures() []*geojson.Feature {
	return []*geojson.Feature{
		point("p1", 0.001, 0.001),
		point("p2", 0.002, 0.002),
		square("123", 0.003, 0.003, 0.001),
		line("l1", orb.Point{5, 5}, orb.Point{5.01, 5.01}),
		point("p3", 10, 10),
	}
}

// fakeBackend is an in-memory Backend with failure injection and per-id gates.
type fakeBackend struct {
	mu        sync.Mutex
	details   map[string]*incident.Detail
	created   []incident.CreateRequest
	createErr error
	getErr    error
	gates     map[string]chan struct{}
	seq       int

	getCalls  atomic.Int32
	listCalls atomic.Int32
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		details: make(map[string]*incident.Detail),
		gates:   make(map[string]chan struct{}),
	}
}

func (b *fakeBackend) put(id string, entries ...incident.Entry) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.details[id] = &incident.Detail{
		Incident: incident.Incident{ID: id, Metadata: incident.Metadata{Name: id}, EntryCount: len(entries)},
		Data:     incident.Summarize(entries),
		Entries:  entries,
	}
}

func (b *fakeBackend) gate(id string) chan struct{} {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan struct{})
	b.gates[id] = ch
	return ch
}

func (b *fakeBackend) ListIncidents(_ context.Context, limit, offset int) (*incident.Page, error) {
	b.listCalls.Add(1)
	b.mu.Lock()
	defer b.mu.Unlock()
	page := &incident.Page{Limit: limit, Offset: offset, Total: len(b.details)}
	for _, d := range b.details {
		page.Incidents = append(page.Incidents, d.Incident)
	}
	return page, nil
}

func (b *fakeBackend) GetIncident(ctx context.Context, id string) (*incident.Detail, error) {
	b.getCalls.Add(1)
	b.mu.Lock()
	gate := b.gates[id]
	b.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.getErr != nil {
		return nil, b.getErr
	}
	d, ok := b.details[id]
	if !ok {
		return nil, errors.New("incident not found")
	}
	return d, nil
}

func (b *fakeBackend) CreateIncident(_ context.Context, req incident.CreateRequest) (*incident.Incident, error) {
	b.mu.Lock()
	if b.createErr != nil {
		b.mu.Unlock()
		return nil, b.createErr
	}
	b.created = append(b.created, req)
	b.seq++
	id := fmt.Sprintf("inc-%d", b.seq)
	b.mu.Unlock()

	b.put(id, req.Entries...)
	return &incident.Incident{ID: id, Metadata: req.Metadata, EntryCount: len(req.Entries)}, nil
}

func (b *fakeBackend) createdRequests() []incident.CreateRequest {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]incident.CreateRequest(nil), b.created...)
}

// recordingHost records host callbacks.
type recordingHost struct {
	mu     sync.Mutex
	links  []ShareLink
	opened []FeatureDetail
	closed int
}

func (h *recordingHost) OpenDetail(d FeatureDetail) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened = append(h.opened, d)
}

func (h *recordingHost) CloseDetail() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed++
}

func (h *recordingHost) SetShareLink(l ShareLink) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.links = append(h.links, l)
}

func (h *recordingHost) lastLink() ShareLink {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.links) == 0 {
		return ShareLink{}
	}
	return h.links[len(h.links)-1]
}

type env struct {
	t       *testing.T
	m       *memmap.Map
	clock   *clockwork.FakeClock
	backend *fakeBackend
	host    *recordingHost
	stale   atomic.Int32
	s       *Session
}

func newEnv(t *testing.T, zoom float64, features ...*geojson.Feature) *env {
	t.Helper()
	m := memmap.New(memmap.Options{Zoom: zoom})
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	require.NoError(t, memmap.AddDataset(m, "alerts", fc, 12))

	e := &env{
		t:       t,
		m:       m,
		clock:   clockwork.NewFakeClock(),
		backend: newFakeBackend(),
		host:    &recordingHost{},
	}
	s, err := New(DefaultConfig(), Deps{
		Engine:  m,
		Backend: e.backend,
		Host:    e.host,
		Logger:  log.Nop(),
		Clock:   e.clock,
		Hooks:   Hooks{OnStale: func() { e.stale.Add(1) }},
	})
	require.NoError(t, err)
	s.SetDataset(alertsDataset)
	t.Cleanup(s.Close)
	e.s = s
	return e
}

// rendered returns the feature with id drawn in layer.
func (e *env) rendered(layer, id string) mapview.Feature {
	e.t.Helper()
	for _, f := range e.m.QueryRenderedFeatures(nil, []string{layer}) {
		if f.IDString() == id {
			return f
		}
	}
	e.t.Fatalf("feature %q not rendered in %s", id, layer)
	return mapview.Feature{}
}

// cluster returns the single cluster drawn on the alerts cluster layer.
func (e *env) cluster() mapview.Feature {
	e.t.Helper()
	fs := e.m.QueryRenderedFeatures(nil, []string{"alerts-clusters"})
	require.Len(e.t, fs, 1)
	return fs[0]
}

func (e *env) clusterID() int {
	e.t.Helper()
	id, ok := e.cluster().ClusterID()
	require.True(e.t, ok)
	return id
}

// selectedIDs returns the distinct record ids flagged selected on the map.
func (e *env) selectedIDs() map[string]bool {
	ids := make(map[string]bool)
	for _, k := range e.m.Selected() {
		ids[k.ID] = true
	}
	return ids
}

func (e *env) settle() {
	e.clock.Advance(DefaultConfig().ClusterDebounce)
}

func (e *env) highlighted() []int {
	return e.s.ClusterHighlights("alerts-clusters")
}
