package selection

import "net/url"

// LinkParam is a share-link query parameter.
type LinkParam string

const (
	ParamAlert    LinkParam = "alertId"
	ParamMapeo    LinkParam = "mapeoDocId"
	ParamIncident LinkParam = "incidentId"
)

var linkParams = []LinkParam{ParamIncident, ParamAlert, ParamMapeo}

// ShareLink identifies what the view is showing. The zero value clears the
// link.
type ShareLink struct {
	Param LinkParam
	Value string
}

// Apply writes the link into q. At most one link parameter is left set.
func (l ShareLink) Apply(q url.Values) {
	for _, p := range linkParams {
		q.Del(string(p))
	}
	if l.Param != "" && l.Value != "" {
		q.Set(string(l.Param), l.Value)
	}
}

// ParseShareLink reads a link from q. Incident links win over feature links.
func ParseShareLink(q url.Values) (ShareLink, bool) {
	for _, p := range linkParams {
		if v := q.Get(string(p)); v != "" {
			return ShareLink{Param: p, Value: v}, true
		}
	}
	return ShareLink{}, false
}
