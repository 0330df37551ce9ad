package models

import "errors"

// Pipeline-fatal errors. Only these two abort a review; every other failure
// degrades into review state (a failed reference, a skipped detector, a
// fail-open compile verdict) so the pipeline always reaches synthesis.
var (
	ErrNotFound     = errors.New("not found")
	ErrUnauthorized = errors.New("unauthorized")
)
