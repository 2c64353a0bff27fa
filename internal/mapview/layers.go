package mapview

import "strings"

// Layer id suffixes. Every dataset renders as one family of layers sharing a
// base name, usually the dataset's table name.
const (
	SuffixPolygon    = "-polygon"
	SuffixLineString = "-linestring"
	SuffixPoint      = "-point"
	SuffixCentroid   = "-centroid"
	SuffixClusters   = "-clusters"
)

// ClusterColorProperty is the paint property repainted to highlight clusters.
const ClusterColorProperty = "circle-color"

// Layers names the layer family of one dataset.
type Layers struct {
	Base string
}

// LayersFor returns the layer family for a base name.
func LayersFor(base string) Layers { return Layers{Base: base} }

func (l Layers) Polygon() string    { return l.Base + SuffixPolygon }
func (l Layers) LineString() string { return l.Base + SuffixLineString }
func (l Layers) Point() string      { return l.Base + SuffixPoint }
func (l Layers) Centroid() string   { return l.Base + SuffixCentroid }
func (l Layers) Clusters() string   { return l.Base + SuffixClusters }

// Geometry returns the full-geometry layers that have a centroid companion.
func (l Layers) Geometry() []string {
	return []string{l.Polygon(), l.LineString()}
}

// Selectable returns every layer whose features represent individual records.
func (l Layers) Selectable() []string {
	return []string{l.Polygon(), l.LineString(), l.Point(), l.Centroid()}
}

// Existing filters ids down to layers present on the engine.
func Existing(eng Engine, ids []string) []Layer {
	out := make([]Layer, 0, len(ids))
	for _, id := range ids {
		if l, ok := eng.Layer(id); ok {
			out = append(out, l)
		}
	}
	return out
}

// SplitLayerID splits a layer id into its base and convention suffix.
func SplitLayerID(id string) (base, suffix string, ok bool) {
	for _, s := range []string{SuffixPolygon, SuffixLineString, SuffixPoint, SuffixCentroid, SuffixClusters} {
		if strings.HasSuffix(id, s) && len(id) > len(s) {
			return strings.TrimSuffix(id, s), s, true
		}
	}
	return "", "", false
}

// IsCentroidLayer reports whether the layer draws generated centroids.
func IsCentroidLayer(id string) bool {
	_, s, ok := SplitLayerID(id)
	return ok && s == SuffixCentroid
}

// IsClusterLayer reports whether the layer draws cluster markers.
func IsClusterLayer(id string) bool {
	_, s, ok := SplitLayerID(id)
	return ok && s == SuffixClusters
}

// IsGeometryLayer reports whether the layer draws polygons or lines.
func IsGeometryLayer(id string) bool {
	_, s, ok := SplitLayerID(id)
	return ok && (s == SuffixPolygon || s == SuffixLineString)
}

// IsAreaOrLine reports whether a GeoJSON geometry type is polygonal or linear.
func IsAreaOrLine(geomType string) bool {
	switch geomType {
	case "Polygon", "MultiPolygon", "LineString", "MultiLineString":
		return true
	}
	return false
}
