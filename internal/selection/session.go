package selection

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hashicorp/golang-lru/v2"
	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/singleflight"

	"github.com/linnemanlabs/go-core/log"
	"github.com/linnemanlabs/go-core/xerrors"

	"github.com/linnemanlabs/waypoint/internal/incident"
	"github.com/linnemanlabs/waypoint/internal/mapview"
)

// Mode is the active interaction mode of a view. Exactly one is active.
type Mode int

const (
	ModeSingle Mode = iota
	ModeMulti
	ModeBox
)

func (m Mode) String() string {
	switch m {
	case ModeMulti:
		return "multi"
	case ModeBox:
		return "box"
	}
	return "single"
}

// Deps are the collaborators of a Session. Engine and Backend are required.
type Deps struct {
	Engine  mapview.Engine
	Backend Backend
	Host    Host
	Logger  log.Logger
	Clock   clockwork.Clock
	Hooks   Hooks
}

// Session owns the selection state of one map view.
type Session struct {
	cfg     Config
	eng     mapview.Engine
	backend Backend
	host    Host
	logger  log.Logger
	clock   clockwork.Clock
	hooks   Hooks

	// ctx outlives individual calls: shared fetches and timers run on it.
	ctx    context.Context
	cancel context.CancelFunc

	resolver *ClusterResolver
	clusters *ClusterHighlights
	cache    *lru.Cache[string, *incident.Detail]
	flight   singleflight.Group

	mu       sync.Mutex
	closed   bool
	mode     Mode
	modeSeq  uint64
	dataset  Dataset
	datasets map[string]Dataset // layer family base -> dataset
	marks    *marks
	ctrl     *Controller
	box      *BoxSelector
	work     WorkingSet
	workKeys map[FeatureReference][]mapview.FeatureKey
	settle   clockwork.Timer
	hover    clockwork.Timer
	open     *openIncident
	openSeq  uint64
	page     *incident.Page
}

type openIncident struct {
	id   string
	refs []FeatureReference
	keys []mapview.FeatureKey
}

// New creates a Session in single-select mode.
func New(cfg Config, deps Deps) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if deps.Engine == nil {
		panic(xerrors.New("map engine is required"))
	}
	if deps.Backend == nil {
		panic(xerrors.New("incident backend is required"))
	}
	if deps.Host == nil {
		deps.Host = nopHost{}
	}
	if deps.Logger == nil {
		deps.Logger = log.Nop()
	}
	if deps.Clock == nil {
		deps.Clock = clockwork.NewRealClock()
	}

	cache, err := lru.New[string, *incident.Detail](cfg.DetailCacheSize)
	if err != nil {
		return nil, fmt.Errorf("incident cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		cfg:      cfg,
		eng:      deps.Engine,
		backend:  deps.Backend,
		host:     deps.Host,
		logger:   deps.Logger,
		clock:    deps.Clock,
		hooks:    deps.Hooks,
		ctx:      ctx,
		cancel:   cancel,
		resolver: NewClusterResolver(deps.Engine),
		clusters: NewClusterHighlights(deps.Engine, cfg.HighlightColor),
		cache:    cache,
		datasets: make(map[string]Dataset),
		marks:    newMarks(deps.Engine),
		box:      newBoxSelector(deps.Engine),
		workKeys: make(map[FeatureReference][]mapview.FeatureKey),
	}
	s.ctrl = newController(deps.Engine, deps.Host, s.marks, s.scheduleSettleLocked, s.fallbackLinkLocked)
	return s, nil
}

// Close tears the session down: timers stop, in-flight fetches are cancelled
// and late results are dropped.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	s.stopTimersLocked()
	s.box.Disable()
	s.cancel()
}

// SetDataset makes ds the active dataset and registers its layer family.
// Changing the active dataset drops the single selection; the working set and
// an open incident keep their highlights.
func (s *Session) SetDataset(ds Dataset) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.datasets[ds.Layers().Base] = ds
	if s.dataset == ds {
		return
	}
	s.dataset = ds
	s.resetSingleLocked()
}

// SetMode switches the interaction mode. Switching clears the single
// selection, the working set, incident highlights and cluster highlights.
func (s *Session) SetMode(m Mode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if m == s.mode {
		return nil
	}

	s.ctrl.ResetSelectedFeature()
	s.clearWorkLocked()
	s.closeIncidentLocked(true)
	s.clusters.Clear()
	s.stopTimersLocked()

	s.mode = m
	s.modeSeq++
	if m == ModeBox {
		s.box.Enable()
	} else {
		s.box.Disable()
	}
	s.logger.Info(s.ctx, "selection mode changed", "mode", m.String())
	return nil
}

// Mode returns the active mode.
func (s *Session) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// SelectFeature selects one feature in single-select mode.
func (s *Session) SelectFeature(f mapview.Feature, layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.mode != ModeSingle {
		return ErrWrongMode
	}
	if err := s.ctrl.SelectFeature(f, layerID, s.datasetForLayer(layerID)); err != nil {
		return err
	}
	s.hooks.selected("single")
	return nil
}

// ResetSelectedFeature clears the single selection.
func (s *Session) ResetSelectedFeature() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetSingleLocked()
}

// Selected returns the single selection.
func (s *Session) Selected() (FeatureReference, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ctrl.Selected()
}

// HandleMultiSelectFeature adds the record behind f to the working set and
// highlights it. Clicking a record already in the set leaves it selected;
// only RemoveSourceFromSelection takes records out.
func (s *Session) HandleMultiSelectFeature(f mapview.Feature, layerID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.mode == ModeSingle {
		return ErrWrongMode
	}
	if f.IsCluster() {
		return ErrClusterNotSelectable
	}
	id, ok := SourceID(f)
	if !ok {
		return ErrNoIdentity
	}
	ds := s.datasetForLayer(layerID)
	if s.addRefLocked(FeatureReference{SourceTable: ds.SourceTable(), SourceID: id}, ds.Layers()) {
		s.hooks.selected("multi")
		s.scheduleSettleLocked()
	}
	return nil
}

// AddSourceToSelection adds ref to the working set. Adding a present
// reference is a no-op.
func (s *Session) AddSourceToSelection(ref FeatureReference) error {
	if !ref.Valid() {
		return ErrNoIdentity
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.addRefLocked(ref, s.datasetForTable(ref.SourceTable).Layers()) {
		s.scheduleSettleLocked()
	}
	return nil
}

// RemoveSourceFromSelection removes ref from the working set. Removing an
// absent reference is a no-op.
func (s *Session) RemoveSourceFromSelection(ref FeatureReference) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.removeRefLocked(ref) {
		s.scheduleSettleLocked()
	}
}

// ClearSelection empties the working set and drops its highlights.
func (s *Session) ClearSelection() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.clearWorkLocked()
	s.pruneClustersLocked()
}

// WorkingSet returns the working set in insertion order.
func (s *Session) WorkingSet() []FeatureReference {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.work.Items()
}

// ClusterHighlights returns the ids highlighted on a cluster layer.
func (s *Session) ClusterHighlights(clusterLayer string) []int {
	return s.clusters.IDs(clusterLayer)
}

// BoxPointerDown starts drawing a box in bounding-box mode.
func (s *Session) BoxPointerDown(p mapview.Pixel) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.box.PointerDown(p)
}

// BoxPointerMove stretches the box being drawn.
func (s *Session) BoxPointerMove(p mapview.Pixel) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.box.PointerMove(p)
}

// BoxCancel aborts the box being drawn.
func (s *Session) BoxCancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.box.Cancel()
}

// BoxState returns the state of the box gesture and the box being drawn.
func (s *Session) BoxState() (BoxState, mapview.PixelBox) {
	s.mu.Lock()
	defer s.mu.Unlock()
	b, _ := s.box.Current()
	return s.box.State(), b
}

// BoxPointerUp closes the box at p, resolves it and adds every record inside
// to the working set. Clusters inside the box contribute all their leaves and
// are highlighted. It returns the number of records added. A result that
// arrives after a mode change or Close is dropped. Clusters are only tracked
// when no recomputation started meanwhile; otherwise their ids may name a
// previous render pass and membership is recomputed instead.
func (s *Session) BoxPointerUp(ctx context.Context, p mapview.Pixel) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, ErrClosed
	}
	if s.mode != ModeBox {
		s.mu.Unlock()
		return 0, ErrWrongMode
	}
	box, ok := s.box.finish(p)
	if !ok {
		s.mu.Unlock()
		return 0, nil
	}
	seq := s.modeSeq
	gen := s.clusters.Generation()
	datasets := s.datasetListLocked()
	s.mu.Unlock()

	res, err := ResolveBox(ctx, s.eng, box, datasets)

	s.mu.Lock()
	defer s.mu.Unlock()
	if seq != s.modeSeq || s.closed {
		s.hooks.stale()
		return 0, nil
	}
	s.box.done()
	if err != nil {
		return 0, fmt.Errorf("resolve box: %w", err)
	}

	added := 0
	for _, hit := range res.Hits {
		id, ok := SourceID(hit.Feature)
		if !ok {
			continue
		}
		ref := FeatureReference{SourceTable: hit.Dataset.SourceTable(), SourceID: id}
		if s.addRefLocked(ref, hit.Dataset.Layers()) {
			added++
		}
	}
	if s.clusters.Generation() == gen {
		for layer, ids := range res.Clusters {
			s.clusters.Track(layer, ids...)
		}
	} else if len(res.Clusters) > 0 {
		s.hooks.stale()
		s.scheduleSettleLocked()
	}
	if added > 0 {
		s.hooks.selected("box")
	}
	return added, nil
}

// HandleIncidentClusterZoom recomputes cluster highlights for everything the
// session tracks: the open incident, the working set and the single
// selection. Hosts call it when a zoom or pan ends; it replaces any pending
// debounced recomputation.
func (s *Session) HandleIncidentClusterZoom(ctx context.Context) error {
	s.mu.Lock()
	if s.settle != nil {
		s.settle.Stop()
	}
	s.mu.Unlock()
	return s.reconcileClusters(ctx)
}

func (s *Session) reconcileClusters(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	targets := s.targetsLocked()
	gen := s.clusters.Invalidate()
	for _, layer := range s.clusters.Layers() {
		if _, ok := targets[layer]; !ok {
			s.clusters.Forget(layer)
		}
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(ctx, s.cfg.ClusterTimeout)
	defer cancel()

	for _, layer := range sortedKeys(targets) {
		start := time.Now()
		found, rendered, err := s.resolver.Containing(ctx, layer, targets[layer])
		s.hooks.clusterResult(time.Since(start).Seconds(), err)

		if s.clusters.Generation() != gen {
			s.hooks.stale()
			s.logger.Info(ctx, "discarding stale cluster result", "layer", layer)
			return nil
		}
		if err != nil {
			s.logger.Warn(ctx, "cluster resolution failed", "layer", layer, "err", err.Error())
			continue
		}
		if !s.clusters.Apply(gen, layer, found, rendered) {
			s.hooks.stale()
			return nil
		}
	}
	return nil
}

// targetsLocked groups every tracked record id by cluster layer.
func (s *Session) targetsLocked() map[string]map[string]struct{} {
	t := make(map[string]map[string]struct{})
	add := func(layer, id string) {
		if t[layer] == nil {
			t[layer] = make(map[string]struct{})
		}
		t[layer][id] = struct{}{}
	}
	if layer, id, ok := s.ctrl.target(); ok {
		add(layer, id)
	}
	for _, ref := range s.work.Items() {
		add(s.datasetForTable(ref.SourceTable).Layers().Clusters(), ref.SourceID)
	}
	if s.open != nil {
		for _, ref := range s.open.refs {
			add(s.datasetForTable(ref.SourceTable).Layers().Clusters(), ref.SourceID)
		}
	}
	return t
}

// resetSingleLocked drops the single selection and the cluster highlights
// only it was holding.
func (s *Session) resetSingleLocked() {
	if _, ok := s.ctrl.Selected(); !ok {
		return
	}
	s.ctrl.ResetSelectedFeature()
	s.pruneClustersLocked()
}

// pruneClustersLocked forgets cluster layers that no longer hold a tracked
// record, invalidates in-flight results and schedules recomputation of the
// rest.
func (s *Session) pruneClustersLocked() {
	s.clusters.Invalidate()
	targets := s.targetsLocked()
	for _, layer := range s.clusters.Layers() {
		if _, ok := targets[layer]; !ok {
			s.clusters.Forget(layer)
		}
	}
	s.scheduleSettleLocked()
}

// fallbackLinkLocked is the share link once the single selection goes away.
func (s *Session) fallbackLinkLocked() ShareLink {
	if s.open != nil {
		return ShareLink{Param: ParamIncident, Value: s.open.id}
	}
	return ShareLink{}
}

// scheduleSettleLocked (re)arms the debounced cluster recomputation.
func (s *Session) scheduleSettleLocked() {
	if s.closed {
		return
	}
	if s.settle != nil {
		s.settle.Stop()
	}
	s.settle = s.clock.AfterFunc(s.cfg.ClusterDebounce, func() {
		_ = s.reconcileClusters(s.ctx)
	})
}

func (s *Session) stopTimersLocked() {
	if s.settle != nil {
		s.settle.Stop()
		s.settle = nil
	}
	if s.hover != nil {
		s.hover.Stop()
		s.hover = nil
	}
}

func (s *Session) addRefLocked(ref FeatureReference, fam mapview.Layers) bool {
	if !s.work.Add(ref) {
		return false
	}
	keys := recordKeys(s.eng, fam, ref.SourceID)
	s.marks.set(keys...)
	s.workKeys[ref] = keys
	return true
}

func (s *Session) removeRefLocked(ref FeatureReference) bool {
	if !s.work.Remove(ref) {
		return false
	}
	s.marks.unset(s.workKeys[ref]...)
	delete(s.workKeys, ref)
	return true
}

func (s *Session) clearWorkLocked() {
	for _, ref := range s.work.Items() {
		s.removeRefLocked(ref)
	}
}

func (s *Session) datasetForLayer(layerID string) Dataset {
	if base, _, ok := mapview.SplitLayerID(layerID); ok {
		if ds, ok := s.datasets[base]; ok {
			return ds
		}
		if s.dataset.Table == "" {
			return Dataset{Table: base}
		}
	}
	return s.dataset
}

// datasetForTable finds the dataset recording refs under table. Unknown
// tables follow the convention that the layer family is named after the
// table.
func (s *Session) datasetForTable(table string) Dataset {
	if s.dataset.Table != "" && s.dataset.SourceTable() == table {
		return s.dataset
	}
	for _, base := range sortedKeys(s.datasets) {
		if ds := s.datasets[base]; ds.SourceTable() == table {
			return ds
		}
	}
	return Dataset{Table: table}
}

func (s *Session) datasetListLocked() []Dataset {
	if len(s.datasets) == 0 && s.dataset.Table != "" {
		return []Dataset{s.dataset}
	}
	out := make([]Dataset, 0, len(s.datasets))
	for _, base := range sortedKeys(s.datasets) {
		out = append(out, s.datasets[base])
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
