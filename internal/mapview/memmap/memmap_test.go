package memmap

import (
	"errors"
	"testing"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/linnemanlabs/waypoint/internal/mapview"
)

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

func testMap(t *testing.T, zoom float64, features ...*geojson.Feature) *Map {
	t.Helper()
	m := New(Options{Zoom: zoom, SyncLeaves: true})
	fc := geojson.NewFeatureCollection()
	for _, f := range features {
		fc.Append(f)
	}
	if err := AddDataset(m, "alerts", fc, 12); err != nil {
		t.Fatalf("AddDataset: %v", err)
	}
	return m
}

func ids(fs []mapview.Feature) map[string]bool {
	out := make(map[string]bool, len(fs))
	for _, f := range fs {
		out[f.IDString()] = true
	}
	return out
}

func TestMap_ClustersNearbyPoints(t *testing.T) {
	t.Parallel()

	m := testMap(t, 10,
		point("p1", 0.001, 0.001),
		point("p2", 0.002, 0.002),
		point("p3", 10, 10),
	)

	clusters := m.QueryRenderedFeatures(nil, []string{"alerts-clusters"})
	if len(clusters) != 1 {
		t.Fatalf("clusters = %d, want 1", len(clusters))
	}
	if !clusters[0].IsCluster() {
		t.Fatal("expected cluster feature")
	}
	if n := clusters[0].Properties[mapview.PropPointCount]; n != 2 {
		t.Errorf("point_count = %v, want 2", n)
	}

	loose := ids(m.QueryRenderedFeatures(nil, []string{"alerts-point"}))
	if !loose["p3"] || loose["p1"] || loose["p2"] {
		t.Errorf("loose points = %v, want only p3", loose)
	}
}

func TestMap_ClusterIDsChangeWithZoom(t *testing.T) {
	t.Parallel()

	m := testMap(t, 10, point("p1", 0.001, 0.001), point("p2", 0.002, 0.002))
	before := m.Clusters("alerts-clustered")
	m.SetZoom(11)
	after := m.Clusters("alerts-clustered")
	if len(before) != 1 || len(after) != 1 {
		t.Fatalf("clusters before=%v after=%v", before, after)
	}
	if before[0] == after[0] {
		t.Errorf("cluster id %d reused across zoom levels", before[0])
	}

	src, _ := m.ClusterSource("alerts-clustered")
	var gotErr error
	src.GetClusterLeaves(before[0], mapview.AllLeaves, 0, func(err error, _ []mapview.Feature) { gotErr = err })
	if gotErr == nil {
		t.Error("expected error for cluster id from previous render pass")
	}
}

func TestMap_ClusteringStopsAtMaxZoom(t *testing.T) {
	t.Parallel()

	m := testMap(t, 10, point("p1", 0.001, 0.001), point("p2", 0.002, 0.002))
	m.SetZoom(15)
	if got := m.Clusters("alerts-clustered"); len(got) != 0 {
		t.Errorf("clusters at max zoom = %v, want none", got)
	}
	if got := ids(m.QueryRenderedFeatures(nil, []string{"alerts-point"})); len(got) != 2 {
		t.Errorf("points = %v, want 2", got)
	}
}

func TestMap_GetClusterLeaves(t *testing.T) {
	t.Parallel()

	m := testMap(t, 10,
		point("p1", 0.001, 0.001),
		point("p2", 0.002, 0.002),
		point("p3", 0.003, 0.003),
	)
	cid := m.Clusters("alerts-clustered")[0]
	src, ok := m.ClusterSource("alerts-clustered")
	if !ok {
		t.Fatal("expected clustered source")
	}

	var leaves []mapview.Feature
	src.GetClusterLeaves(cid, 2, 1, func(err error, l []mapview.Feature) {
		if err != nil {
			t.Errorf("GetClusterLeaves: %v", err)
		}
		leaves = l
	})
	if len(leaves) != 2 {
		t.Fatalf("leaves = %d, want 2 (limit)", len(leaves))
	}
	if leaves[0].IDString() != "p2" {
		t.Errorf("first leaf = %q, want p2 (offset 1)", leaves[0].IDString())
	}
}

func TestMap_HoldLeaves(t *testing.T) {
	t.Parallel()

	m := testMap(t, 10, point("p1", 0.001, 0.001), point("p2", 0.002, 0.002))
	cid := m.Clusters("alerts-clustered")[0]
	src, _ := m.ClusterSource("alerts-clustered")

	release := m.HoldLeaves()
	called := false
	src.GetClusterLeaves(cid, mapview.AllLeaves, 0, func(error, []mapview.Feature) { called = true })
	if called {
		t.Fatal("callback ran while leaves were held")
	}
	release()
	if !called {
		t.Fatal("callback did not run on release")
	}
}

func TestMap_CentroidsBelowGeometryZoom(t *testing.T) {
	t.Parallel()

	m := testMap(t, 8, square("a1", 20, 20, 0.5))

	if got := m.QueryRenderedFeatures(nil, []string{"alerts-polygon"}); len(got) != 0 {
		t.Errorf("polygon layer drew %d features below its min zoom", len(got))
	}
	cents := m.QueryRenderedFeatures(nil, []string{"alerts-centroid"})
	if len(cents) != 1 {
		t.Fatalf("centroids = %d, want 1", len(cents))
	}
	if cents[0].IDString() != "a1" {
		t.Errorf("centroid id = %q, want promoted a1", cents[0].IDString())
	}
	if gt, _ := cents[0].Prop(mapview.PropGeometryType); gt != "Polygon" {
		t.Errorf("geometry_type = %q, want Polygon", gt)
	}

	m.SetZoom(13)
	if got := ids(m.QueryRenderedFeatures(nil, []string{"alerts-polygon"})); !got["a1"] {
		t.Errorf("polygon layer at zoom 13 = %v, want a1", got)
	}
	if got := m.QueryRenderedFeatures(nil, []string{"alerts-centroid"}); len(got) != 0 {
		t.Errorf("centroid layer drew %d features above its max zoom", len(got))
	}
}

func TestMap_QueryRenderedFeaturesBox(t *testing.T) {
	t.Parallel()

	m := testMap(t, 13, point("near", 0, 0), point("far", 1, 1))
	center := m.Project(orb.Point{0, 0})
	box := mapview.NewPixelBox(
		mapview.Pixel{X: center.X - 5, Y: center.Y - 5},
		mapview.Pixel{X: center.X + 5, Y: center.Y + 5},
	)

	got := ids(m.QueryRenderedFeatures(&box, []string{"alerts-point"}))
	if !got["near"] || got["far"] {
		t.Errorf("box query = %v, want only near", got)
	}
}

func TestMap_FeatureState(t *testing.T) {
	t.Parallel()

	m := testMap(t, 10, point("p1", 0, 0))
	key := mapview.FeatureKey{Source: "alerts-clustered", ID: "p1"}
	if err := m.SetFeatureState(key, mapview.FeatureState{Selected: true}); err != nil {
		t.Fatalf("SetFeatureState: %v", err)
	}
	if !m.FeatureState(key).Selected {
		t.Fatal("expected selected")
	}
	if got := m.Selected(); len(got) != 1 || got[0] != key {
		t.Errorf("Selected = %v", got)
	}

	if err := m.SetFeatureState(key, mapview.FeatureState{}); err != nil {
		t.Fatalf("SetFeatureState: %v", err)
	}
	if len(m.Selected()) != 0 {
		t.Error("expected no selected features after clearing")
	}

	err := m.SetFeatureState(mapview.FeatureKey{Source: "missing", ID: "x"}, mapview.FeatureState{Selected: true})
	if !errors.Is(err, mapview.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMap_PaintProperty(t *testing.T) {
	t.Parallel()

	m := testMap(t, 10, point("p1", 0, 0))
	v, err := m.GetPaintProperty("alerts-clusters", mapview.ClusterColorProperty)
	if err != nil {
		t.Fatalf("GetPaintProperty: %v", err)
	}
	if v != DefaultClusterColor {
		t.Errorf("default color = %v", v)
	}
	if err := m.SetPaintProperty("alerts-clusters", mapview.ClusterColorProperty, "#f00"); err != nil {
		t.Fatalf("SetPaintProperty: %v", err)
	}
	v, _ = m.GetPaintProperty("alerts-clusters", mapview.ClusterColorProperty)
	if v != "#f00" {
		t.Errorf("color = %v, want #f00", v)
	}
	if err := m.SetPaintProperty("nope", "circle-color", "#f00"); !errors.Is(err, mapview.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestMap_DragFlags(t *testing.T) {
	t.Parallel()

	m := New(Options{})
	m.SetDragPan(false)
	m.SetDragRotate(false)
	if pan, rot := m.DragEnabled(); pan || rot {
		t.Errorf("DragEnabled = %v,%v, want false,false", pan, rot)
	}
}
