package features

import "errors"

// Sentinel kinds for feature store errors.
var (
	ErrNotFound     = errors.New("feature vector not found")
	ErrInvalidInput = errors.New("invalid feature vector")
)
