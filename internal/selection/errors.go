package selection

import "errors"

var (
	// ErrEmptySelection is returned when creating an incident with an empty
	// working set. No request is made.
	ErrEmptySelection = errors.New("selection: working set is empty")

	ErrClusterNotSelectable = errors.New("selection: clusters cannot be selected")
	ErrNoIdentity           = errors.New("selection: feature has no usable id")
	ErrWrongMode            = errors.New("selection: operation not available in current mode")
	ErrClosed               = errors.New("selection: session closed")
)
