package selection

import "github.com/linnemanlabs/waypoint/internal/mapview"

// marks reference-counts the selected flag on feature-state keys so that the
// working set, an open incident and the single selection can highlight the
// same record independently.
type marks struct {
	eng    mapview.Engine
	counts map[mapview.FeatureKey]int
}

func newMarks(eng mapview.Engine) *marks {
	return &marks{eng: eng, counts: make(map[mapview.FeatureKey]int)}
}

func (m *marks) set(keys ...mapview.FeatureKey) {
	for _, k := range keys {
		m.counts[k]++
		if m.counts[k] == 1 {
			setSelected(m.eng, k, true)
		}
	}
}

func (m *marks) unset(keys ...mapview.FeatureKey) {
	for _, k := range keys {
		n, ok := m.counts[k]
		if !ok {
			continue
		}
		if n > 1 {
			m.counts[k] = n - 1
			continue
		}
		delete(m.counts, k)
		setSelected(m.eng, k, false)
	}
}

// setSelected toggles the selected flag. A source that left the map is not
// an error: its features are gone along with their state.
func setSelected(eng mapview.Engine, key mapview.FeatureKey, on bool) {
	_ = eng.SetFeatureState(key, mapview.FeatureState{Selected: on})
}

// recordKeys returns one key per distinct source among the selectable layers
// of fam, so a record is flagged in every representation that exists.
func recordKeys(eng mapview.Engine, fam mapview.Layers, id string) []mapview.FeatureKey {
	var keys []mapview.FeatureKey
	seen := make(map[mapview.FeatureKey]struct{})
	for _, l := range mapview.Existing(eng, fam.Selectable()) {
		k := mapview.FeatureKey{Source: l.Source, SourceLayer: l.SourceLayer, ID: id}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	return keys
}

func layerKey(l mapview.Layer, id string) mapview.FeatureKey {
	return mapview.FeatureKey{Source: l.Source, SourceLayer: l.SourceLayer, ID: id}
}
