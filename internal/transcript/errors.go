package transcript

import "errors"

// ErrNoTranscript is returned when no session transcript can be located.
var ErrNoTranscript = errors.New("no session transcript found")
