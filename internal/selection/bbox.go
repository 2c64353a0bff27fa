package selection

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/linnemanlabs/waypoint/internal/mapview"
)

// BoxState is the state of the bounding-box gesture.
type BoxState int

const (
	BoxIdle BoxState = iota
	BoxDrawing
	BoxResolving
)

func (s BoxState) String() string {
	switch s {
	case BoxDrawing:
		return "drawing"
	case BoxResolving:
		return "resolving"
	}
	return "idle"
}

// BoxSelector tracks the drag gesture. While enabled it turns off map drag
// pan and rotate so the drag draws a box instead of moving the map. It is not
// safe for concurrent use; Session serializes calls.
type BoxSelector struct {
	eng     mapview.Engine
	enabled bool
	state   BoxState
	start   mapview.Pixel
	end     mapview.Pixel
}

func newBoxSelector(eng mapview.Engine) *BoxSelector {
	return &BoxSelector{eng: eng}
}

// Enable arms the gesture.
func (b *BoxSelector) Enable() {
	if b.enabled {
		return
	}
	b.enabled = true
	b.eng.SetDragPan(false)
	b.eng.SetDragRotate(false)
}

// Disable disarms the gesture, abandoning any box being drawn.
func (b *BoxSelector) Disable() {
	if !b.enabled {
		return
	}
	b.enabled = false
	b.state = BoxIdle
	b.eng.SetDragPan(true)
	b.eng.SetDragRotate(true)
}

// State returns the gesture state.
func (b *BoxSelector) State() BoxState { return b.state }

// PointerDown starts a box at p.
func (b *BoxSelector) PointerDown(p mapview.Pixel) bool {
	if !b.enabled || b.state != BoxIdle {
		return false
	}
	b.state = BoxDrawing
	b.start, b.end = p, p
	return true
}

// PointerMove stretches the box to p.
func (b *BoxSelector) PointerMove(p mapview.Pixel) {
	if b.state == BoxDrawing {
		b.end = p
	}
}

// Cancel aborts a box being drawn (Escape).
func (b *BoxSelector) Cancel() {
	if b.state == BoxDrawing {
		b.state = BoxIdle
	}
}

// Current returns the box being drawn.
func (b *BoxSelector) Current() (mapview.PixelBox, bool) {
	if b.state != BoxDrawing {
		return mapview.PixelBox{}, false
	}
	return mapview.NewPixelBox(b.start, b.end), true
}

// finish closes the box at p and moves to resolving.
func (b *BoxSelector) finish(p mapview.Pixel) (mapview.PixelBox, bool) {
	if b.state != BoxDrawing {
		return mapview.PixelBox{}, false
	}
	b.end = p
	b.state = BoxResolving
	return mapview.NewPixelBox(b.start, b.end), true
}

func (b *BoxSelector) done() {
	if b.state == BoxResolving {
		b.state = BoxIdle
	}
}

// BoxHit is a record found inside a box.
type BoxHit struct {
	Dataset Dataset
	Feature mapview.Feature
}

// BoxResult is everything a box resolved to.
type BoxResult struct {
	Hits []BoxHit
	// Clusters maps a cluster layer to the ids of its clusters inside the box.
	Clusters map[string][]int
}

// ResolveBox collects the records inside box across datasets: individually
// drawn features from the selectable layers and every leaf of each cluster
// whose marker lies in the box. A box without area resolves to nothing.
func ResolveBox(ctx context.Context, eng mapview.Engine, box mapview.PixelBox, datasets []Dataset) (BoxResult, error) {
	res := BoxResult{Clusters: make(map[string][]int)}
	if box.Empty() {
		return res, nil
	}

	type clusterJob struct {
		ds    Dataset
		layer string
		src   mapview.ClusterSource
		id    int
	}
	var jobs []clusterJob

	for _, ds := range datasets {
		fam := ds.Layers()
		var ids []string
		for _, l := range mapview.Existing(eng, fam.Selectable()) {
			ids = append(ids, l.ID)
		}
		if len(ids) > 0 {
			for _, f := range eng.QueryRenderedFeatures(&box, ids) {
				if !f.IsCluster() {
					res.Hits = append(res.Hits, BoxHit{Dataset: ds, Feature: f})
				}
			}
		}

		cl, ok := eng.Layer(fam.Clusters())
		if !ok {
			continue
		}
		src, ok := eng.ClusterSource(cl.Source)
		if !ok {
			continue
		}
		for _, f := range eng.QueryRenderedFeatures(&box, []string{cl.ID}) {
			if id, ok := f.ClusterID(); ok {
				jobs = append(jobs, clusterJob{ds: ds, layer: cl.ID, src: src, id: id})
			}
		}
	}

	leaves := make([][]mapview.Feature, len(jobs))
	g, gctx := errgroup.WithContext(ctx)
	for i, job := range jobs {
		g.Go(func() error {
			l, err := mapview.Leaves(gctx, job.src, job.id)
			leaves[i] = l
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return BoxResult{}, err
	}

	for i, job := range jobs {
		for _, leaf := range leaves[i] {
			res.Hits = append(res.Hits, BoxHit{Dataset: job.ds, Feature: leaf})
		}
		res.Clusters[job.layer] = append(res.Clusters[job.layer], job.id)
	}
	return res, nil
}
