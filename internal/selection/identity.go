package selection

import "github.com/linnemanlabs/waypoint/internal/mapview"

// sourceIDAccessors derive a record id from a feature, tried in order. The
// native feature id comes last: engines that generate ids would otherwise
// shadow the record id carried in properties.
//
// "_id" and "alertID" are property names used by datasets imported before ids
// were promoted to feature_id. They are a migration shim: remove them once no
// loaded dataset lacks feature_id.
var sourceIDAccessors = []func(mapview.Feature) (string, bool){
	func(f mapview.Feature) (string, bool) { return f.Prop(mapview.PropPromotedID) },
	func(f mapview.Feature) (string, bool) { return f.Prop("_id") },
	func(f mapview.Feature) (string, bool) { return f.Prop("alertID") },
	nativeID,
}

func nativeID(f mapview.Feature) (string, bool) {
	id := f.IDString()
	return id, id != ""
}

// SourceID returns the record id of a feature for the working set.
func SourceID(f mapview.Feature) (string, bool) {
	for _, get := range sourceIDAccessors {
		if id, ok := get(f); ok {
			return id, true
		}
	}
	return "", false
}

// CanonicalID returns the id used for single selection. Centroid layers carry
// the record id in the promoted property; every other layer uses the native
// feature id.
func CanonicalID(f mapview.Feature, layerID string) string {
	if mapview.IsCentroidLayer(layerID) {
		id, _ := f.Prop(mapview.PropPromotedID)
		return id
	}
	return f.IDString()
}
