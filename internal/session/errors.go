package session

import "errors"

var (
	// ErrSessionTooShort is returned when the transcript text is below the
	// minimum length worth validating.
	ErrSessionTooShort = errors.New("session transcript too short")

	// ErrNoAssets is returned when no active or provisional asset exists.
	ErrNoAssets = errors.New("no injectable assets")

	// ErrInvalidMode is returned for an unknown run mode.
	ErrInvalidMode = errors.New("invalid mode")
)
