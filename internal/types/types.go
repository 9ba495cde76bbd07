// Package types defines the records shared by the memory stores: assets,
// session facets, evolution events and transcript messages.
package types

import "time"

// TranscriptMessage is one user or assistant turn read from a session
// transcript. Tool traffic and metadata lines are not represented.
type TranscriptMessage struct {
	// Type is the line type (user, assistant).
	Type string `json:"type"`

	// Timestamp is when the message was recorded, if the line carried one.
	Timestamp time.Time `json:"timestamp,omitempty"`

	// Text is the flattened text content of the message.
	Text string `json:"text"`

	// Index is the position of the line in the transcript.
	Index int `json:"index"`
}
