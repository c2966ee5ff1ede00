package repository

import "errors"

// Sentinel kinds for storage errors.
var (
	ErrNotFound         = errors.New("record not found")
	ErrArtifactNotFound = errors.New("artifact not found")
	ErrOpen             = errors.New("open store")
	ErrMigrate          = errors.New("apply schema")
)
