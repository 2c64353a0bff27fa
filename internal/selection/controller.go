package selection

import "github.com/linnemanlabs/waypoint/internal/mapview"

// Controller implements single selection: at most one record is selected, in
// every representation the map currently has for it. It is not safe for
// concurrent use; Session serializes calls.
type Controller struct {
	eng   mapview.Engine
	host  Host
	marks *marks
	// settle runs after every selection change so the owner can schedule a
	// cluster-containment check once the render pass settles.
	settle func()
	// fallback is the share link of whatever the view shows once the
	// selection goes away.
	fallback func() ShareLink

	cur *selected
	// linked is set while the share link points at the selection.
	linked bool
}

type selected struct {
	ref          FeatureReference
	layer        string
	clusterLayer string
	keys         []mapview.FeatureKey
}

func newController(eng mapview.Engine, host Host, m *marks, settle func(), fallback func() ShareLink) *Controller {
	if fallback == nil {
		fallback = func() ShareLink { return ShareLink{} }
	}
	return &Controller{eng: eng, host: host, marks: m, settle: settle, fallback: fallback}
}

// SelectFeature selects the record behind f as drawn in layerID. Cluster
// pseudo-features are rejected. A layer that is no longer on the map is a
// no-op.
func (c *Controller) SelectFeature(f mapview.Feature, layerID string, ds Dataset) error {
	if f.IsCluster() {
		return ErrClusterNotSelectable
	}
	id := CanonicalID(f, layerID)
	if id == "" {
		return ErrNoIdentity
	}
	layer, ok := c.eng.Layer(layerID)
	if !ok {
		return nil
	}

	c.clear()

	keys := []mapview.FeatureKey{layerKey(layer, id)}
	if mapview.IsCentroidLayer(layerID) || mapview.IsAreaOrLine(f.GeometryType()) {
		hint, _ := f.Prop(mapview.PropGeometryType)
		if hint == "" {
			hint = f.GeometryType()
		}
		if comp, ok := mapview.CompanionLayer(c.eng, layerID, id, hint); ok {
			if k := layerKey(comp, id); k != keys[0] {
				keys = append(keys, k)
			}
		}
	}
	c.marks.set(keys...)

	ref := FeatureReference{SourceTable: ds.SourceTable(), SourceID: id}
	sel := &selected{ref: ref, layer: layerID, keys: keys}
	if base, _, ok := mapview.SplitLayerID(layerID); ok {
		sel.clusterLayer = mapview.LayersFor(base).Clusters()
	}
	c.cur = sel

	c.host.SetShareLink(ShareLink{Param: ds.LinkParam(), Value: id})
	c.linked = true
	c.host.OpenDetail(FeatureDetail{Ref: ref, Layer: layerID, Properties: f.Properties})
	if c.settle != nil {
		c.settle()
	}
	return nil
}

// ResetSelectedFeature clears the selection, its highlights in both
// representations and the detail view. If the share link still points at
// the selection it falls back to whatever else the view shows. Cluster
// highlights belong to the owner, which recomputes them.
func (c *Controller) ResetSelectedFeature() {
	if c.cur == nil {
		return
	}
	c.clear()
	c.host.CloseDetail()
	if c.linked {
		c.linked = false
		c.host.SetShareLink(c.fallback())
	}
}

// release drops the selection when another context takes over the view and
// its share link.
func (c *Controller) release() {
	c.linked = false
	if c.cur == nil {
		return
	}
	c.clear()
	c.host.CloseDetail()
}

// Selected returns the current selection.
func (c *Controller) Selected() (FeatureReference, bool) {
	if c.cur == nil {
		return FeatureReference{}, false
	}
	return c.cur.ref, true
}

func (c *Controller) clear() {
	if c.cur == nil {
		return
	}
	c.marks.unset(c.cur.keys...)
	c.cur = nil
}

// target returns the cluster layer and record id to reconcile, if any.
func (c *Controller) target() (clusterLayer, id string, ok bool) {
	if c.cur == nil || c.cur.clusterLayer == "" {
		return "", "", false
	}
	return c.cur.clusterLayer, c.cur.ref.SourceID, true
}
