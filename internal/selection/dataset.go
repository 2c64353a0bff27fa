package selection

import "github.com/linnemanlabs/waypoint/internal/mapview"

// MapeoTable is the source table of every Mapeo dataset, whatever its layer
// family is called.
const MapeoTable = "mapeo_data"

// DatasetKind distinguishes datasets with their own share-link parameter.
type DatasetKind int

const (
	KindGeneric DatasetKind = iota
	KindAlerts
	KindMapeo
)

// Dataset is a table rendered as one layer family.
type Dataset struct {
	// Table is the backend table and, by convention, the layer family base.
	Table string
	Kind  DatasetKind
	// Base overrides the layer family base when it differs from Table.
	Base string
}

// SourceTable returns the table recorded in feature references.
func (d Dataset) SourceTable() string {
	if d.Kind == KindMapeo {
		return MapeoTable
	}
	return d.Table
}

// Layers returns the dataset's layer family.
func (d Dataset) Layers() mapview.Layers {
	if d.Base != "" {
		return mapview.LayersFor(d.Base)
	}
	return mapview.LayersFor(d.Table)
}

// LinkParam returns the share-link parameter for selected features.
func (d Dataset) LinkParam() LinkParam {
	switch d.Kind {
	case KindAlerts:
		return ParamAlert
	case KindMapeo:
		return ParamMapeo
	}
	return ""
}
