package selection

import (
	"slices"

	"github.com/linnemanlabs/waypoint/internal/incident"
)

// FeatureReference is the durable identity of a record, stable across map
// representations and across the backend.
type FeatureReference struct {
	SourceTable string `json:"source_table"`
	SourceID    string `json:"source_id"`
}

// Valid reports whether both parts are set.
func (r FeatureReference) Valid() bool {
	return r.SourceTable != "" && r.SourceID != ""
}

func (r FeatureReference) String() string {
	return r.SourceTable + "/" + r.SourceID
}

// Entry converts the reference to an incident entry.
func (r FeatureReference) Entry() incident.Entry {
	return incident.Entry{SourceTable: r.SourceTable, SourceID: r.SourceID}
}

// WorkingSet is an ordered, duplicate-free set of references. The zero value
// is ready to use. It is not safe for concurrent use.
type WorkingSet struct {
	items []FeatureReference
	index map[FeatureReference]struct{}
}

// Add appends r unless it is already present and reports whether it was added.
func (w *WorkingSet) Add(r FeatureReference) bool {
	if w.index == nil {
		w.index = make(map[FeatureReference]struct{})
	}
	if _, ok := w.index[r]; ok {
		return false
	}
	w.index[r] = struct{}{}
	w.items = append(w.items, r)
	return true
}

// Remove deletes r and reports whether it was present.
func (w *WorkingSet) Remove(r FeatureReference) bool {
	if _, ok := w.index[r]; !ok {
		return false
	}
	delete(w.index, r)
	w.items = slices.DeleteFunc(w.items, func(x FeatureReference) bool { return x == r })
	return true
}

// Contains reports whether r is in the set.
func (w *WorkingSet) Contains(r FeatureReference) bool {
	_, ok := w.index[r]
	return ok
}

// Len returns the number of references.
func (w *WorkingSet) Len() int { return len(w.items) }

// Items returns a copy of the references in insertion order.
func (w *WorkingSet) Items() []FeatureReference {
	return slices.Clone(w.items)
}

// Clear empties the set.
func (w *WorkingSet) Clear() {
	w.items = nil
	w.index = nil
}
