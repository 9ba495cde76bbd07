package types

import "errors"

// Sentinel errors for record validation. Using sentinels allows callers to
// match with errors.Is for reliable error handling.
var (
	// ErrInvalidAssetType is returned for an asset type outside gene/sop/pref.
	ErrInvalidAssetType = errors.New("invalid asset type")

	// ErrInvalidStatus is returned for a status outside active/provisional/deprecated.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidEventKind is returned when an evolution event kind is unknown.
	ErrInvalidEventKind = errors.New("invalid event kind")

	// ErrTitleRequired is returned when an asset is created without a title.
	ErrTitleRequired = errors.New("title is required")
)
