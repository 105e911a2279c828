package hub

import "errors"

// Sentinel errors for the hub's operational taxonomy. The API layer maps
// these onto HTTP statuses with errors.Is; everything else is a 500.
var (
	// ErrValidation marks a malformed or incomplete ingress message.
	ErrValidation = errors.New("validation failed")

	// ErrCapacity marks an ingest rejected because the pipeline could not
	// be acquired within the admission budget.
	ErrCapacity = errors.New("hub at capacity")

	// ErrNotFound marks a lookup for an advisory or pattern the hub does
	// not hold.
	ErrNotFound = errors.New("not found")
)
