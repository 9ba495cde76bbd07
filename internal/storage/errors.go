package storage

import "errors"

// Errors returned by the asset, facet and evolution stores.
var (
	// ErrSessionIDRequired is returned when a facet is cached without a session ID.
	ErrSessionIDRequired = errors.New("session ID is required")

	// ErrAssetNotFound is returned when no partition holds the requested asset ID.
	ErrAssetNotFound = errors.New("asset not found")

	// ErrMemoryDirNotFound is returned when the memory directory does not exist.
	ErrMemoryDirNotFound = errors.New("memory directory not found")
)
