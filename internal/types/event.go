package types

import (
	"fmt"
	"time"
)

// EventKind names an evolution log entry.
type EventKind string

const (
	EventCreate           EventKind = "create"
	EventUpdate           EventKind = "update"
	EventDeprecate        EventKind = "deprecate"
	EventMerge            EventKind = "merge"
	EventAbsorb           EventKind = "absorb"
	EventValidate         EventKind = "validate"
	EventNoMatch          EventKind = "no_match"
	EventInjectReflection EventKind = "inject_reflection"
	EventSessionValidate  EventKind = "session_validate"
)

// EventKinds lists every kind accepted by the log.
var EventKinds = []EventKind{
	EventCreate, EventUpdate, EventDeprecate, EventMerge, EventAbsorb,
	EventValidate, EventNoMatch, EventInjectReflection, EventSessionValidate,
}

// ParseEventKind validates a raw event kind.
func ParseEventKind(raw string) (EventKind, error) {
	for _, k := range EventKinds {
		if string(k) == raw {
			return k, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidEventKind, raw)
}

// EvolutionEvent is one immutable line of the evolution log.
type EvolutionEvent struct {
	ID           string         `json:"id,omitempty"`
	Timestamp    string         `json:"ts"`
	Event        EventKind      `json:"event"`
	AssetID      string         `json:"asset_id"`
	AssetType    AssetType      `json:"asset_type,omitempty"`
	ReviewPeriod string         `json:"review_period,omitempty"`
	Details      map[string]any `json:"details"`
}

// Time parses the event timestamp. Unparseable timestamps yield the zero time.
func (e *EvolutionEvent) Time() time.Time {
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05.999999-07:00", "2006-01-02"} {
		if t, err := time.Parse(layout, e.Timestamp); err == nil {
			return t
		}
	}
	return time.Time{}
}

// DetailString returns a string-valued detail, or "".
func (e EvolutionEvent) DetailString(key string) string {
	s, _ := e.Details[key].(string)
	return s
}

// Date layout used for review periods and asset dates.
const DateLayout = "2006-01-02"
