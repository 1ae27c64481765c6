package shared

import "errors"

var (
	// ErrNotFound indicates resource not found.
	ErrNotFound = errors.New("not found")
	// ErrRunInFlight indicates a closure run is already executing for the
	// same model and period.
	ErrRunInFlight = errors.New("closure run already in flight")
)
