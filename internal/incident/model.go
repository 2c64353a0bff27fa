package incident

import "time"

// Metadata is the descriptive part of an incident supplied by the user.
type Metadata struct {
	Name               string `json:"name"`
	Description        string `json:"description,omitempty"`
	IncidentType       string `json:"incident_type,omitempty"`
	ResponsibleParty   string `json:"responsible_party,omitempty"`
	ImpactDescription  string `json:"impact_description,omitempty"`
	SupportingEvidence string `json:"supporting_evidence,omitempty"`
}

// Incident is a persisted, named grouping of feature references.
type Incident struct {
	ID string `json:"id"`
	Metadata
	EntryCount int       `json:"entry_count"`
	CreatedAt  time.Time `json:"created_at"`
}

// Entry links an incident to one record of a source table.
type Entry struct {
	SourceTable string `json:"source_table"`
	SourceID    string `json:"source_id"`
	Notes       string `json:"notes,omitempty"`
}

// CreateRequest is the payload for creating an incident.
type CreateRequest struct {
	Metadata
	Entries []Entry `json:"entries"`
}

// Page is one page of the incident list, newest first.
type Page struct {
	Incidents []Incident `json:"incidents"`
	Total     int        `json:"total"`
	Limit     int        `json:"limit"`
	Offset    int        `json:"offset"`
}

// Summary aggregates an incident's entries.
type Summary struct {
	EntriesByTable map[string]int `json:"entries_by_table"`
}

// Detail is an incident with its entries.
type Detail struct {
	Incident Incident `json:"incident"`
	Data     Summary  `json:"incidentData"`
	Entries  []Entry  `json:"entries"`
}

// Summarize counts entries per source table.
func Summarize(entries []Entry) Summary {
	s := Summary{EntriesByTable: make(map[string]int)}
	for _, e := range entries {
		s.EntriesByTable[e.SourceTable]++
	}
	return s
}
