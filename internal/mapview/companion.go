package mapview

// CompanionLayer returns the layer holding the alternate representation of
// the same record: the centroid layer for a polygon or line layer, and the
// matching geometry layer for a centroid layer.
//
// Centroid companions follow the naming convention. Geometry companions are
// probed: each candidate geometry layer's source is searched for a feature
// whose id equals featureID and whose geometry the layer draws. geometryHint, when set to a GeoJSON type, moves
// the matching candidate to the front of the probe order.
func CompanionLayer(eng Engine, layerID, featureID, geometryHint string) (Layer, bool) {
	base, suffix, ok := SplitLayerID(layerID)
	if !ok {
		return Layer{}, false
	}
	fam := LayersFor(base)

	switch suffix {
	case SuffixPolygon, SuffixLineString:
		return eng.Layer(fam.Centroid())
	case SuffixCentroid:
		if featureID == "" {
			return Layer{}, false
		}
		for _, l := range Existing(eng, probeOrder(fam, geometryHint)) {
			if sourceHasFeature(eng, l, featureID) {
				return l, true
			}
		}
	}
	return Layer{}, false
}

func probeOrder(fam Layers, hint string) []string {
	switch hint {
	case "LineString", "MultiLineString":
		return []string{fam.LineString(), fam.Polygon()}
	default:
		return []string{fam.Polygon(), fam.LineString()}
	}
}

func sourceHasFeature(eng Engine, l Layer, id string) bool {
	_, suffix, _ := SplitLayerID(l.ID)
	for _, f := range eng.QuerySourceFeatures(l.Source, l.SourceLayer) {
		if f.IDString() == id && drawsGeometry(suffix, f.GeometryType()) {
			return true
		}
	}
	return false
}

func drawsGeometry(suffix, geomType string) bool {
	switch suffix {
	case SuffixPolygon:
		return geomType == "Polygon" || geomType == "MultiPolygon"
	case SuffixLineString:
		return geomType == "LineString" || geomType == "MultiLineString"
	}
	return false
}
