package instructions

import "errors"

var (
	// ErrMarkersNotFound is returned when a document has no injected-rule region.
	ErrMarkersNotFound = errors.New("injected-rule markers not found")

	// ErrMarkersOutOfOrder is returned when the end marker precedes the start marker.
	ErrMarkersOutOfOrder = errors.New("injected-rule end marker precedes start marker")
)
