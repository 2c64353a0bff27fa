package selection

import (
	"context"
	"errors"
	"maps"
	"slices"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/waypoint/internal/mapview"
)

// ClusterResolver finds rendered clusters whose leaves contain target records.
type ClusterResolver struct {
	eng mapview.Engine
}

// NewClusterResolver returns a resolver over eng.
func NewClusterResolver(eng mapview.Engine) *ClusterResolver {
	return &ClusterResolver{eng: eng}
}

// Containing queries the clusters currently drawn in clusterLayer, resolves
// the complete leaf list of each concurrently and returns the ids of those
// holding any of targets (record ids). rendered is the number of clusters
// drawn, which callers need to tell "none match" from "none drawn".
// A missing layer or a non-clustered source yields no clusters.
func (r *ClusterResolver) Containing(ctx context.Context, clusterLayer string, targets map[string]struct{}) (found []int, rendered int, err error) {
	l, ok := r.eng.Layer(clusterLayer)
	if !ok {
		return nil, 0, nil
	}
	src, ok := r.eng.ClusterSource(l.Source)
	if !ok {
		return nil, 0, nil
	}

	var ids []int
	for _, f := range r.eng.QueryRenderedFeatures(nil, []string{clusterLayer}) {
		if id, ok := f.ClusterID(); ok {
			ids = append(ids, id)
		}
	}
	if len(ids) == 0 || len(targets) == 0 {
		return nil, len(ids), nil
	}

	hits := make([]bool, len(ids))
	g, gctx := errgroup.WithContext(ctx)
	for i, id := range ids {
		g.Go(func() error {
			leaves, err := mapview.Leaves(gctx, src, id)
			if err != nil {
				return err
			}
			for _, leaf := range leaves {
				if lid, ok := SourceID(leaf); ok {
					if _, hit := targets[lid]; hit {
						hits[i] = true
						return nil
					}
				}
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, len(ids), err
	}

	for i, id := range ids {
		if hits[i] {
			found = append(found, id)
		}
	}
	return found, len(ids), nil
}

// ClusterHighlights is the highlighted cluster set: for each cluster layer,
// the ids of rendered clusters believed to contain a tracked record. It
// repaints the cluster layer whenever its set changes.
//
// Every reconciliation carries a generation obtained from Invalidate. Results
// from an older generation are discarded, since the cluster ids they name may
// belong to a previous render pass.
type ClusterHighlights struct {
	eng   mapview.Engine
	color string

	mu       sync.Mutex
	gen      uint64
	sets     map[string]map[int]struct{} // cluster layer -> cluster ids
	defaults map[string]any              // cluster layer -> original paint value
}

// NewClusterHighlights returns an empty set painting matches in color.
func NewClusterHighlights(eng mapview.Engine, color string) *ClusterHighlights {
	return &ClusterHighlights{
		eng:      eng,
		color:    color,
		sets:     make(map[string]map[int]struct{}),
		defaults: make(map[string]any),
	}
}

// Invalidate starts a new generation and returns it.
func (h *ClusterHighlights) Invalidate() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	return h.gen
}

// Generation returns the current generation.
func (h *ClusterHighlights) Generation() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.gen
}

// Apply records a fresh containment result for clusterLayer. When no clusters
// were rendered the previous ids are kept, so zooming back out re-shows them
// without another leaf lookup. It reports false and changes nothing when gen
// is stale.
func (h *ClusterHighlights) Apply(gen uint64, clusterLayer string, found []int, rendered int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	if gen != h.gen {
		return false
	}
	if rendered == 0 {
		return true
	}
	set := make(map[int]struct{}, len(found))
	for _, id := range found {
		set[id] = struct{}{}
	}
	h.replace(clusterLayer, set)
	return true
}

// Track adds ids validated against the current render pass.
func (h *ClusterHighlights) Track(clusterLayer string, ids ...int) {
	if len(ids) == 0 {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	set := maps.Clone(h.sets[clusterLayer])
	if set == nil {
		set = make(map[int]struct{}, len(ids))
	}
	for _, id := range ids {
		set[id] = struct{}{}
	}
	h.replace(clusterLayer, set)
}

// Forget drops the set of one cluster layer and restores its paint.
func (h *ClusterHighlights) Forget(clusterLayer string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.replace(clusterLayer, nil)
}

// Clear drops every set, restores paint and invalidates in-flight results.
func (h *ClusterHighlights) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.gen++
	for layer := range h.sets {
		h.replace(layer, nil)
	}
}

// IDs returns the tracked ids of a cluster layer in ascending order.
func (h *ClusterHighlights) IDs(clusterLayer string) []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Sorted(maps.Keys(h.sets[clusterLayer]))
}

// Layers returns the cluster layers with a non-empty set.
func (h *ClusterHighlights) Layers() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Sorted(maps.Keys(h.sets))
}

func (h *ClusterHighlights) replace(layer string, set map[int]struct{}) {
	if maps.Equal(h.sets[layer], set) {
		return
	}
	if len(set) == 0 {
		delete(h.sets, layer)
	} else {
		h.sets[layer] = set
	}
	h.repaint(layer)
}

func (h *ClusterHighlights) repaint(layer string) {
	def, ok := h.defaults[layer]
	if !ok {
		v, err := h.eng.GetPaintProperty(layer, mapview.ClusterColorProperty)
		if errors.Is(err, mapview.ErrNotFound) {
			return
		}
		def = v
		h.defaults[layer] = def
	}

	ids := slices.Sorted(maps.Keys(h.sets[layer]))
	if len(ids) == 0 {
		_ = h.eng.SetPaintProperty(layer, mapview.ClusterColorProperty, def)
		return
	}
	_ = h.eng.SetPaintProperty(layer, mapview.ClusterColorProperty, HighlightExpression(ids, h.color, def))
}

// HighlightExpression builds the paint expression coloring clusters whose id
// is in ids with color and every other cluster with def.
func HighlightExpression(ids []int, color string, def any) []any {
	lit := make([]any, len(ids))
	for i, id := range ids {
		lit[i] = id
	}
	return []any{
		"case",
		[]any{"in", []any{"get", mapview.PropClusterID}, []any{"literal", lit}},
		color,
		def,
	}
}
