// Package mapview describes the map rendering engine as seen by the selection
// core: rendered-feature queries, the clustering index, per-feature state and
// paint properties. It also holds the layer naming conventions shared by every
// dataset and the companion-layer lookup built on them.
package mapview

import (
	"errors"
	"fmt"
	"math"
	"strconv"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// ErrNotFound is returned by engine mutations that target a layer or source
// that is not currently on the map.
var ErrNotFound = errors.New("mapview: layer or source not found")

// Feature property names the engine and the datasets agree on.
const (
	PropCluster      = "cluster"
	PropClusterID    = "cluster_id"
	PropPointCount   = "point_count"
	PropPromotedID   = "feature_id"
	PropGeometryType = "geometry_type"
)

// Pixel is a screen-space point relative to the map container.
type Pixel struct {
	X, Y float64
}

// PixelBox is an axis-aligned screen rectangle with Min <= Max on both axes.
type PixelBox struct {
	Min, Max Pixel
}

// NewPixelBox normalizes two drag corners into a PixelBox.
func NewPixelBox(a, b Pixel) PixelBox {
	return PixelBox{
		Min: Pixel{X: math.Min(a.X, b.X), Y: math.Min(a.Y, b.Y)},
		Max: Pixel{X: math.Max(a.X, b.X), Y: math.Max(a.Y, b.Y)},
	}
}

// Empty reports whether the box has no area.
func (b PixelBox) Empty() bool {
	return b.Max.X-b.Min.X <= 0 || b.Max.Y-b.Min.Y <= 0
}

// Contains reports whether p lies inside the box, edges included.
func (b PixelBox) Contains(p Pixel) bool {
	return p.X >= b.Min.X && p.X <= b.Max.X && p.Y >= b.Min.Y && p.Y <= b.Max.Y
}

// Intersects reports whether two boxes overlap, edges included.
func (b PixelBox) Intersects(o PixelBox) bool {
	return b.Min.X <= o.Max.X && o.Min.X <= b.Max.X && b.Min.Y <= o.Max.Y && o.Min.Y <= b.Max.Y
}

// LayerType is the style type of a rendering layer.
type LayerType string

const (
	LayerFill   LayerType = "fill"
	LayerLine   LayerType = "line"
	LayerCircle LayerType = "circle"
)

// Layer is the engine's view of a style layer.
type Layer struct {
	ID          string
	Source      string
	SourceLayer string
	Type        LayerType
}

// Feature is a rendered or source feature returned by the engine.
type Feature struct {
	geojson.Feature

	Layer       string
	Source      string
	SourceLayer string
}

// IDString returns the native feature id as a string, or "" when unset.
func (f Feature) IDString() string {
	return idString(f.ID)
}

// IsCluster reports whether f is a cluster pseudo-feature rather than a record.
func (f Feature) IsCluster() bool {
	if f.Properties == nil {
		return false
	}
	if v, ok := f.Properties[PropCluster].(bool); ok && v {
		return true
	}
	_, ok := f.Properties[PropClusterID]
	return ok
}

// ClusterID returns the cluster id carried by a cluster pseudo-feature.
func (f Feature) ClusterID() (int, bool) {
	if f.Properties == nil {
		return 0, false
	}
	switch v := f.Properties[PropClusterID].(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	case float64:
		return int(v), true
	}
	return 0, false
}

// GeometryType returns the GeoJSON type of the feature geometry, or "".
func (f Feature) GeometryType() string {
	if f.Geometry == nil {
		return ""
	}
	return f.Geometry.GeoJSONType()
}

// Prop returns a property as a string, accepting the numeric forms that
// GeoJSON decoding produces.
func (f Feature) Prop(key string) (string, bool) {
	if f.Properties == nil {
		return "", false
	}
	v, ok := f.Properties[key]
	if !ok || v == nil {
		return "", false
	}
	s := idString(v)
	return s, s != ""
}

func idString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case uint64:
		return strconv.FormatUint(t, 10)
	case float64:
		if t == math.Trunc(t) {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return fmt.Sprint(t)
	}
}

// FeatureKey addresses a feature in the engine's feature-state store.
type FeatureKey struct {
	Source      string
	SourceLayer string
	ID          string
}

// FeatureState is the per-feature state the selection core toggles.
type FeatureState struct {
	Selected bool
}

// LeavesCallback receives the result of a cluster leaf lookup.
type LeavesCallback func(err error, leaves []Feature)

// ClusterSource is a clustering-capable source. The callback may run on any
// goroutine and may run after the cluster id has become stale.
type ClusterSource interface {
	GetClusterLeaves(clusterID, limit, offset int, cb LeavesCallback)
}

// Engine is the map rendering engine consumed by the selection core.
type Engine interface {
	// QueryRenderedFeatures returns features currently drawn in the given
	// layers. A nil box means the whole viewport.
	QueryRenderedFeatures(box *PixelBox, layers []string) []Feature
	// QuerySourceFeatures returns every feature loaded in a source, drawn or not.
	QuerySourceFeatures(source, sourceLayer string) []Feature
	ClusterSource(source string) (ClusterSource, bool)

	SetFeatureState(key FeatureKey, state FeatureState) error
	SetPaintProperty(layerID, property string, value any) error
	GetPaintProperty(layerID, property string) (any, error)

	Layer(id string) (Layer, bool)
	HasSource(id string) bool

	SetDragPan(enabled bool)
	SetDragRotate(enabled bool)
	Project(p orb.Point) Pixel
}
