package feed

import "errors"

// Sentinel errors shared between the controller and its sources.
var (
	// ErrContentUnchanged is returned by a Source when the remote
	// collection confirmed that the cached page is still current.
	// The controller treats it as a benign no-op, never as a failure.
	ErrContentUnchanged = errors.New("content unchanged")

	// ErrNotFound indicates an item that is not part of the current
	// collection, e.g. a favorite toggle for an unknown symbol.
	ErrNotFound = errors.New("item not found")
)
