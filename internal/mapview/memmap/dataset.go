package memmap

import (
	"maps"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"

	"github.com/linnemanlabs/waypoint/internal/mapview"
)

// ClusteredSuffix names the clustered point source built next to a dataset's
// geometry source.
const ClusteredSuffix = "-clustered"

// DefaultClusterColor is the initial circle-color of cluster layers.
const DefaultClusterColor = "#3b82f6"

// AddDataset loads a feature collection as one layer family named after base.
//
// Polygons and lines go into source base and draw from geometryMinZoom up.
// Below that zoom they draw as centroids in the clustered source
// base+ClusteredSuffix, each centroid carrying the record id in feature_id
// and the original geometry type. Points always draw from the clustered
// source.
func AddDataset(m *Map, base string, fc *geojson.FeatureCollection, geometryMinZoom float64) error {
	shapes := geojson.NewFeatureCollection()
	points := geojson.NewFeatureCollection()

	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		props := maps.Clone(f.Properties)
		if props == nil {
			props = geojson.Properties{}
		}
		props[mapview.PropPromotedID] = f.ID

		if p, ok := f.Geometry.(orb.Point); ok {
			pf := geojson.NewFeature(p)
			pf.ID = f.ID
			pf.Properties = props
			points.Append(pf)
			continue
		}

		shapes.Append(f)
		c, _ := planar.CentroidArea(f.Geometry)
		cf := geojson.NewFeature(c)
		cf.ID = f.ID
		props[mapview.PropGeometryType] = f.Geometry.GeoJSONType()
		cf.Properties = props
		points.Append(cf)
	}

	fam := mapview.LayersFor(base)
	clustered := base + ClusteredSuffix
	m.AddSource(base, shapes, false, "")
	m.AddSource(clustered, points, true, mapview.PropPromotedID)

	specs := []LayerSpec{
		{ID: fam.Polygon(), Source: base, Type: mapview.LayerFill, MinZoom: geometryMinZoom, Filter: geometryIs("Polygon", "MultiPolygon")},
		{ID: fam.LineString(), Source: base, Type: mapview.LayerLine, MinZoom: geometryMinZoom, Filter: geometryIs("LineString", "MultiLineString")},
		{ID: fam.Centroid(), Source: clustered, Type: mapview.LayerCircle, MaxZoom: geometryMinZoom, Filter: hasProp(mapview.PropGeometryType, true)},
		{ID: fam.Point(), Source: clustered, Type: mapview.LayerCircle, Filter: hasProp(mapview.PropGeometryType, false)},
		{ID: fam.Clusters(), Source: clustered, Type: mapview.LayerCircle, Clusters: true, Paint: map[string]any{mapview.ClusterColorProperty: DefaultClusterColor}},
	}
	for _, spec := range specs {
		if err := m.AddLayer(spec); err != nil {
			return err
		}
	}
	return nil
}

func geometryIs(types ...string) func(*geojson.Feature) bool {
	return func(f *geojson.Feature) bool {
		if f.Geometry == nil {
			return false
		}
		t := f.Geometry.GeoJSONType()
		for _, want := range types {
			if t == want {
				return true
			}
		}
		return false
	}
}

func hasProp(key string, want bool) func(*geojson.Feature) bool {
	return func(f *geojson.Feature) bool {
		_, ok := f.Properties[key]
		return ok == want
	}
}
