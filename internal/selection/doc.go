// Package selection is the map-facing selection core. A Session owns one map
// view's selection state: the single-feature Controller, the bounding-box
// gesture, the working set of feature references being assembled into an
// incident, cluster highlight tracking, and the incident cache.
//
// Session methods are safe for concurrent use. Mutations are serialized by
// the session lock in the order callers make them; cluster highlighting is
// eventually consistent and settles after the configured debounce.
package selection
