package training

import "errors"

// Sentinel kinds for training failures surfaced as errors. Everything else
// (too little data, failing candidates) is reported through Outcome.
var (
	ErrPersistence = errors.New("training persistence failure")
	ErrHistory     = errors.New("training history unavailable")
)
