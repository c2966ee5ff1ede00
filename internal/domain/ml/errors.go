package ml

import "errors"

// Sentinel kinds for fitting, prediction and artifact errors.
var (
	ErrEmptyDataset      = errors.New("empty dataset")
	ErrDimensionMismatch = errors.New("dimension mismatch")
	ErrNotFitted         = errors.New("model not fitted")
	ErrSingular          = errors.New("singular system")
	ErrNonFinite         = errors.New("non-finite value")
	ErrUnknownAlgorithm  = errors.New("unknown algorithm")
	ErrChecksumMismatch  = errors.New("artifact checksum mismatch")
	ErrCorruptedArtifact = errors.New("corrupted artifact")
)
