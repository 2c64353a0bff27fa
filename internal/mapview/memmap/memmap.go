// Package memmap is an in-memory map engine implementing mapview.Engine.
// It keeps sources, layers, feature state and paint properties in memory and
// re-clusters point sources on every zoom change, so cluster ids are only
// valid for the current render pass, as with a real renderer.
package memmap

import (
	"fmt"
	"maps"
	"math"
	"sort"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/linnemanlabs/waypoint/internal/mapview"
)

// Options configures a Map.
type Options struct {
	Width, Height  float64
	Center         orb.Point
	Zoom           float64
	ClusterRadius  float64 // pixels
	ClusterMaxZoom float64 // no clustering at or above this zoom
	// SyncLeaves delivers GetClusterLeaves callbacks before returning instead
	// of on a separate goroutine.
	SyncLeaves bool
}

// LayerSpec describes a layer added with AddLayer.
type LayerSpec struct {
	ID      string
	Source  string
	Type    mapview.LayerType
	MinZoom float64
	MaxZoom float64 // 0 means unbounded
	// Clusters marks a layer that draws the cluster markers of a clustered
	// source. Other layers on a clustered source draw only unclustered points.
	Clusters bool
	Filter   func(f *geojson.Feature) bool
	Paint    map[string]any
}

type layer struct {
	spec  LayerSpec
	paint map[string]any
}

type cluster struct {
	id     int
	center orb.Point
	leaves []int
}

type source struct {
	id        string
	features  []*geojson.Feature
	clustered bool
	promoteID string

	clusters []*cluster
	byID     map[int]*cluster
	loose    []int
}

// Map is an in-memory mapview.Engine.
type Map struct {
	mu sync.Mutex

	opts   Options
	zoom   float64
	center orb.Point

	sources map[string]*source
	layers  map[string]*layer
	order   []string
	state   map[mapview.FeatureKey]mapview.FeatureState

	dragPan    bool
	dragRotate bool

	held    bool
	pending []func()
}

var _ mapview.Engine = (*Map)(nil)

// New creates an empty Map.
func New(opts Options) *Map {
	if opts.Width <= 0 {
		opts.Width = 1024
	}
	if opts.Height <= 0 {
		opts.Height = 768
	}
	if opts.ClusterRadius <= 0 {
		opts.ClusterRadius = 50
	}
	if opts.ClusterMaxZoom <= 0 {
		opts.ClusterMaxZoom = 14
	}
	return &Map{
		opts:       opts,
		zoom:       opts.Zoom,
		center:     opts.Center,
		sources:    make(map[string]*source),
		layers:     make(map[string]*layer),
		state:      make(map[mapview.FeatureKey]mapview.FeatureState),
		dragPan:    true,
		dragRotate: true,
	}
}

// AddSource registers a GeoJSON source. Clustered sources must hold points.
// promoteID names the property used as the feature id, as renderers do for
// clustered sources whose native ids are not stable.
func (m *Map) AddSource(id string, fc *geojson.FeatureCollection, clustered bool, promoteID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := &source{id: id, clustered: clustered, promoteID: promoteID}
	if fc != nil {
		s.features = fc.Features
	}
	m.sources[id] = s
	m.renderSource(s)
}

// AddLayer registers a style layer on top of the existing ones.
func (m *Map) AddLayer(spec LayerSpec) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[spec.Source]; !ok {
		return fmt.Errorf("layer %q source %q: %w", spec.ID, spec.Source, mapview.ErrNotFound)
	}
	paint := make(map[string]any, len(spec.Paint))
	maps.Copy(paint, spec.Paint)
	if _, exists := m.layers[spec.ID]; !exists {
		m.order = append(m.order, spec.ID)
	}
	m.layers[spec.ID] = &layer{spec: spec, paint: paint}
	return nil
}

// SetZoom changes the zoom level and runs a new render pass.
func (m *Map) SetZoom(z float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.zoom = z
	for _, s := range m.sources {
		m.renderSource(s)
	}
}

// Zoom returns the current zoom level.
func (m *Map) Zoom() float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.zoom
}

// SetCenter pans the viewport.
func (m *Map) SetCenter(c orb.Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.center = c
}

// HoldLeaves queues cluster leaf callbacks until the returned release func
// runs. Used to simulate a slow clustering index.
func (m *Map) HoldLeaves() (release func()) {
	m.mu.Lock()
	m.held = true
	m.mu.Unlock()
	return func() {
		m.mu.Lock()
		m.held = false
		pending := m.pending
		m.pending = nil
		m.mu.Unlock()
		for _, fn := range pending {
			fn()
		}
	}
}

// PendingLeaves returns the number of callbacks queued by HoldLeaves.
func (m *Map) PendingLeaves() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// QueryRenderedFeatures implements mapview.Engine.
func (m *Map) QueryRenderedFeatures(box *mapview.PixelBox, layers []string) []mapview.Feature {
	m.mu.Lock()
	defer m.mu.Unlock()

	ids := layers
	if len(ids) == 0 {
		ids = m.order
	}

	var out []mapview.Feature
	for _, id := range ids {
		l, ok := m.layers[id]
		if !ok || !m.visible(l) {
			continue
		}
		s := m.sources[l.spec.Source]
		if l.spec.Clusters {
			for _, c := range s.clusters {
				if box != nil && !box.Contains(m.project(c.center)) {
					continue
				}
				out = append(out, m.clusterFeature(l, s, c))
			}
			continue
		}
		for _, i := range m.drawn(s) {
			gf := s.features[i]
			if l.spec.Filter != nil && !l.spec.Filter(gf) {
				continue
			}
			if box != nil && !box.Intersects(m.projectBound(gf.Geometry.Bound())) {
				continue
			}
			out = append(out, m.feature(l.spec.ID, s, gf))
		}
	}
	return out
}

// QuerySourceFeatures implements mapview.Engine.
func (m *Map) QuerySourceFeatures(sourceID, _ string) []mapview.Feature {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok {
		return nil
	}
	out := make([]mapview.Feature, 0, len(s.features))
	for _, gf := range s.features {
		out = append(out, m.feature("", s, gf))
	}
	return out
}

// ClusterSource implements mapview.Engine.
func (m *Map) ClusterSource(sourceID string) (mapview.ClusterSource, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok || !s.clustered {
		return nil, false
	}
	return &clusterSource{m: m, id: sourceID}, true
}

// SetFeatureState implements mapview.Engine.
func (m *Map) SetFeatureState(key mapview.FeatureKey, st mapview.FeatureState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sources[key.Source]; !ok {
		return fmt.Errorf("feature state %s/%s: %w", key.Source, key.ID, mapview.ErrNotFound)
	}
	if st == (mapview.FeatureState{}) {
		delete(m.state, key)
		return nil
	}
	m.state[key] = st
	return nil
}

// FeatureState returns the state stored for key.
func (m *Map) FeatureState(key mapview.FeatureKey) mapview.FeatureState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state[key]
}

// Selected returns every key with selected=true, sorted.
func (m *Map) Selected() []mapview.FeatureKey {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []mapview.FeatureKey
	for k, st := range m.state {
		if st.Selected {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Source != out[j].Source {
			return out[i].Source < out[j].Source
		}
		return out[i].ID < out[j].ID
	})
	return out
}

// SetPaintProperty implements mapview.Engine.
func (m *Map) SetPaintProperty(layerID, property string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[layerID]
	if !ok {
		return fmt.Errorf("paint %s.%s: %w", layerID, property, mapview.ErrNotFound)
	}
	l.paint[property] = value
	return nil
}

// GetPaintProperty implements mapview.Engine.
func (m *Map) GetPaintProperty(layerID, property string) (any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[layerID]
	if !ok {
		return nil, fmt.Errorf("paint %s.%s: %w", layerID, property, mapview.ErrNotFound)
	}
	return l.paint[property], nil
}

// Layer implements mapview.Engine.
func (m *Map) Layer(id string) (mapview.Layer, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	l, ok := m.layers[id]
	if !ok {
		return mapview.Layer{}, false
	}
	return mapview.Layer{ID: id, Source: l.spec.Source, Type: l.spec.Type}, true
}

// HasSource implements mapview.Engine.
func (m *Map) HasSource(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sources[id]
	return ok
}

// SetDragPan implements mapview.Engine.
func (m *Map) SetDragPan(enabled bool) {
	m.mu.Lock()
	m.dragPan = enabled
	m.mu.Unlock()
}

// SetDragRotate implements mapview.Engine.
func (m *Map) SetDragRotate(enabled bool) {
	m.mu.Lock()
	m.dragRotate = enabled
	m.mu.Unlock()
}

// DragEnabled reports the pan and rotate gesture flags.
func (m *Map) DragEnabled() (pan, rotate bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.dragPan, m.dragRotate
}

// Project implements mapview.Engine.
func (m *Map) Project(p orb.Point) mapview.Pixel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.project(p)
}

// Clusters returns the ids of the clusters in the current render pass of a
// source, in render order.
func (m *Map) Clusters(sourceID string) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok {
		return nil
	}
	ids := make([]int, 0, len(s.clusters))
	for _, c := range s.clusters {
		ids = append(ids, c.id)
	}
	return ids
}

func (m *Map) visible(l *layer) bool {
	if m.zoom < l.spec.MinZoom {
		return false
	}
	return l.spec.MaxZoom <= 0 || m.zoom < l.spec.MaxZoom
}

func (m *Map) drawn(s *source) []int {
	if s.clustered {
		return s.loose
	}
	idx := make([]int, len(s.features))
	for i := range idx {
		idx[i] = i
	}
	return idx
}

func (m *Map) feature(layerID string, s *source, gf *geojson.Feature) mapview.Feature {
	cp := *gf
	cp.Properties = maps.Clone(gf.Properties)
	if s.promoteID != "" {
		if v, ok := gf.Properties[s.promoteID]; ok {
			cp.ID = v
		}
	}
	return mapview.Feature{Feature: cp, Layer: layerID, Source: s.id}
}

func (m *Map) clusterFeature(l *layer, s *source, c *cluster) mapview.Feature {
	gf := geojson.NewFeature(c.center)
	gf.ID = c.id
	gf.Properties[mapview.PropCluster] = true
	gf.Properties[mapview.PropClusterID] = c.id
	gf.Properties[mapview.PropPointCount] = len(c.leaves)
	return mapview.Feature{Feature: *gf, Layer: l.spec.ID, Source: s.id}
}

func (m *Map) leaves(sourceID string, clusterID, limit, offset int) ([]mapview.Feature, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sources[sourceID]
	if !ok {
		return nil, fmt.Errorf("source %q: %w", sourceID, mapview.ErrNotFound)
	}
	c, ok := s.byID[clusterID]
	if !ok {
		return nil, fmt.Errorf("memmap: cluster %d not in current render pass", clusterID)
	}
	if offset < 0 || offset >= len(c.leaves) {
		return nil, nil
	}
	end := len(c.leaves)
	if limit >= 0 && offset+limit < end {
		end = offset + limit
	}
	out := make([]mapview.Feature, 0, end-offset)
	for _, i := range c.leaves[offset:end] {
		out = append(out, m.feature("", s, s.features[i]))
	}
	return out, nil
}

type clusterSource struct {
	m  *Map
	id string
}

func (c *clusterSource) GetClusterLeaves(clusterID, limit, offset int, cb mapview.LeavesCallback) {
	leaves, err := c.m.leaves(c.id, clusterID, limit, offset)
	deliver := func() { cb(err, leaves) }

	c.m.mu.Lock()
	if c.m.held {
		c.m.pending = append(c.m.pending, deliver)
		c.m.mu.Unlock()
		return
	}
	inline := c.m.opts.SyncLeaves
	c.m.mu.Unlock()

	if inline {
		deliver()
		return
	}
	go deliver()
}

// worldSize is the width of the world in pixels at zoom z (512px tiles).
func worldSize(z float64) float64 {
	return 512 * math.Pow(2, z)
}

func mercator(p orb.Point) (x, y float64) {
	x = (p.Lon() + 180) / 360
	siny := math.Sin(p.Lat() * math.Pi / 180)
	siny = math.Min(math.Max(siny, -0.9999), 0.9999)
	y = 0.5 - math.Log((1+siny)/(1-siny))/(4*math.Pi)
	return x, y
}

func (m *Map) project(p orb.Point) mapview.Pixel {
	ws := worldSize(m.zoom)
	px, py := mercator(p)
	cx, cy := mercator(m.center)
	return mapview.Pixel{
		X: (px-cx)*ws + m.opts.Width/2,
		Y: (py-cy)*ws + m.opts.Height/2,
	}
}

func (m *Map) projectBound(b orb.Bound) mapview.PixelBox {
	return mapview.NewPixelBox(m.project(b.Min), m.project(b.Max))
}
