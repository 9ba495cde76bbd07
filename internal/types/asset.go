package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
)

// AssetType partitions assets into their stores.
type AssetType string

const (
	// AssetGene describes a general method or technique.
	AssetGene AssetType = "gene"

	// AssetSOP describes an ordered standard operating procedure.
	AssetSOP AssetType = "sop"

	// AssetPref describes a preferred choice with rationale and tradeoff.
	AssetPref AssetType = "pref"
)

// AssetTypes lists every partition in store order.
var AssetTypes = []AssetType{AssetGene, AssetSOP, AssetPref}

// ParseAssetType validates a raw type string.
func ParseAssetType(raw string) (AssetType, error) {
	switch t := AssetType(raw); t {
	case AssetGene, AssetSOP, AssetPref:
		return t, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAssetType, raw)
}

// Status is the lifecycle state of an asset.
type Status string

const (
	StatusActive      Status = "active"
	StatusProvisional Status = "provisional"
	StatusDeprecated  Status = "deprecated"
)

// ParseStatus validates a raw status string.
func ParseStatus(raw string) (Status, error) {
	switch s := Status(raw); s {
	case StatusActive, StatusProvisional, StatusDeprecated:
		return s, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, raw)
}

// Injectable reports whether assets in this status may appear in the
// instruction document and take part in validation.
func (s Status) Injectable() bool {
	return s == StatusActive || s == StatusProvisional
}

// Confidence thresholds that define status.
const (
	ActiveThreshold      = 0.85
	ProvisionalThreshold = 0.50

	// InitialConfidence is assigned to newly created assets.
	InitialConfidence = 0.70
)

// StatusForConfidence derives the lifecycle status from a confidence value:
// >= 0.85 active, >= 0.50 provisional, otherwise deprecated.
func StatusForConfidence(confidence float64) Status {
	switch {
	case confidence >= ActiveThreshold:
		return StatusActive
	case confidence >= ProvisionalThreshold:
		return StatusProvisional
	default:
		return StatusDeprecated
	}
}

// ClampConfidence rounds to 4 decimal places and clamps into [0, 1].
func ClampConfidence(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	v = math.Round(v*10000) / 10000
	return math.Max(0, math.Min(1, v))
}

// Body is the type-specific payload of an asset.
type Body interface {
	Kind() AssetType
}

// GeneBody holds a gene's method checklist.
type GeneBody struct {
	Method Steps
}

// Kind implements Body.
func (GeneBody) Kind() AssetType { return AssetGene }

// SOPBody holds an SOP's ordered steps.
type SOPBody struct {
	Steps Steps
}

// Kind implements Body.
func (SOPBody) Kind() AssetType { return AssetSOP }

// PrefBody holds a preference.
type PrefBody struct {
	Preferred string
	Rationale string
	Tradeoff  string
}

// Kind implements Body.
func (PrefBody) Kind() AssetType { return AssetPref }

// Asset is a persisted behavioral rule: a common envelope plus a Body variant
// keyed by Type.
type Asset struct {
	ID              string
	Type            AssetType
	Title           string
	Domain          StringList
	Trigger         string
	Confidence      float64
	Status          Status
	Version         int
	ValidatedCount  int
	FailedCount     int
	CreatedAt       string
	LastValidated   string
	LastFailed      *string
	Tags            []string
	SkipWhen        string
	Checkpoint      string
	ExpectedOutcome string
	Evidence        []string
	CreatedFrom     string
	Body            Body

	// Extra preserves fields this version does not model (for example
	// promoted_to_shared) so a load/save cycle never drops data.
	Extra map[string]json.RawMessage
}

// Checklist returns the gene method or SOP steps. Prefs have no checklist.
func (a *Asset) Checklist() Steps {
	switch b := a.Body.(type) {
	case GeneBody:
		return b.Method
	case SOPBody:
		return b.Steps
	}
	return nil
}

// Pref returns the preference body, if this asset is a pref.
func (a *Asset) Pref() (PrefBody, bool) {
	b, ok := a.Body.(PrefBody)
	return b, ok
}

// Outcome returns the expected outcome annotation, falling back to the checkpoint.
func (a *Asset) Outcome() string {
	if a.ExpectedOutcome != "" {
		return a.ExpectedOutcome
	}
	return a.Checkpoint
}

// Clone returns a deep copy.
func (a *Asset) Clone() *Asset {
	c := *a
	c.Domain = append(StringList(nil), a.Domain...)
	c.Tags = append([]string(nil), a.Tags...)
	c.Evidence = append([]string(nil), a.Evidence...)
	if a.LastFailed != nil {
		lf := *a.LastFailed
		c.LastFailed = &lf
	}
	switch b := a.Body.(type) {
	case GeneBody:
		c.Body = GeneBody{Method: append(Steps(nil), b.Method...)}
	case SOPBody:
		c.Body = SOPBody{Steps: append(Steps(nil), b.Steps...)}
	}
	if a.Extra != nil {
		c.Extra = make(map[string]json.RawMessage, len(a.Extra))
		for k, v := range a.Extra {
			c.Extra[k] = v
		}
	}
	return &c
}

// assetJSON is the on-disk shape shared by all partitions.
type assetJSON struct {
	ID              string     `json:"id"`
	AssetType       AssetType  `json:"asset_type,omitempty"`
	Title           string     `json:"title"`
	Domain          StringList `json:"domain"`
	Trigger         string     `json:"trigger"`
	Version         int        `json:"version"`
	Confidence      float64    `json:"confidence"`
	Status          Status     `json:"status"`
	ValidatedCount  int        `json:"validated_count"`
	FailedCount     int        `json:"failed_count"`
	CreatedAt       string     `json:"created_at,omitempty"`
	LastValidated   string     `json:"last_validated,omitempty"`
	LastFailed      *string    `json:"last_failed"`
	Tags            []string   `json:"tags"`
	SkipWhen        string     `json:"skip_when"`
	Checkpoint      string     `json:"checkpoint"`
	ExpectedOutcome string     `json:"expected_outcome"`
	Evidence        []string   `json:"evidence"`
	CreatedFrom     string     `json:"created_from"`

	Method    *Steps  `json:"method,omitempty"`
	Steps     *Steps  `json:"steps,omitempty"`
	Preferred *string `json:"preferred,omitempty"`
	Rationale *string `json:"rationale,omitempty"`
	Tradeoff  *string `json:"tradeoff,omitempty"`
}

var assetKnownKeys = []string{
	"id", "asset_type", "title", "domain", "trigger", "version", "confidence",
	"status", "validated_count", "failed_count", "created_at", "last_validated",
	"last_failed", "tags", "skip_when", "checkpoint", "expected_outcome",
	"evidence", "created_from", "method", "steps", "preferred", "rationale", "tradeoff",
}

// DecodeAsset parses one asset record. fallback is the partition type used
// when the record carries no asset_type of its own.
func DecodeAsset(data []byte, fallback AssetType) (*Asset, error) {
	var aj assetJSON
	if err := json.Unmarshal(data, &aj); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}
	for _, k := range assetKnownKeys {
		delete(raw, k)
	}

	t := aj.AssetType
	if t == "" {
		t = fallback
	}
	if t == "" {
		t = inferAssetType(&aj)
	}

	a := &Asset{
		ID:              aj.ID,
		Type:            t,
		Title:           aj.Title,
		Domain:          aj.Domain,
		Trigger:         aj.Trigger,
		Confidence:      aj.Confidence,
		Status:          aj.Status,
		Version:         aj.Version,
		ValidatedCount:  aj.ValidatedCount,
		FailedCount:     aj.FailedCount,
		CreatedAt:       aj.CreatedAt,
		LastValidated:   aj.LastValidated,
		LastFailed:      aj.LastFailed,
		Tags:            aj.Tags,
		SkipWhen:        aj.SkipWhen,
		Checkpoint:      aj.Checkpoint,
		ExpectedOutcome: aj.ExpectedOutcome,
		Evidence:        aj.Evidence,
		CreatedFrom:     aj.CreatedFrom,
		Body:            bodyFor(t, &aj),
	}
	if len(raw) > 0 {
		a.Extra = raw
	}
	return a, nil
}

func inferAssetType(aj *assetJSON) AssetType {
	switch {
	case aj.Steps != nil:
		return AssetSOP
	case aj.Preferred != nil || aj.Rationale != nil:
		return AssetPref
	default:
		return AssetGene
	}
}

func bodyFor(t AssetType, aj *assetJSON) Body {
	deref := func(s *string) string {
		if s == nil {
			return ""
		}
		return *s
	}
	switch t {
	case AssetSOP:
		if aj.Steps != nil {
			return SOPBody{Steps: *aj.Steps}
		}
		return SOPBody{}
	case AssetPref:
		return PrefBody{Preferred: deref(aj.Preferred), Rationale: deref(aj.Rationale), Tradeoff: deref(aj.Tradeoff)}
	default:
		if aj.Method != nil {
			return GeneBody{Method: *aj.Method}
		}
		return GeneBody{}
	}
}

// UnmarshalJSON implements json.Unmarshaler.
func (a *Asset) UnmarshalJSON(data []byte) error {
	decoded, err := DecodeAsset(data, "")
	if err != nil {
		return err
	}
	*a = *decoded
	return nil
}

// MarshalJSON implements json.Marshaler.
func (a Asset) MarshalJSON() ([]byte, error) {
	aj := assetJSON{
		ID:              a.ID,
		AssetType:       a.Type,
		Title:           a.Title,
		Domain:          a.Domain,
		Trigger:         a.Trigger,
		Version:         a.Version,
		Confidence:      a.Confidence,
		Status:          a.Status,
		ValidatedCount:  a.ValidatedCount,
		FailedCount:     a.FailedCount,
		CreatedAt:       a.CreatedAt,
		LastValidated:   a.LastValidated,
		LastFailed:      a.LastFailed,
		Tags:            nonNil(a.Tags),
		SkipWhen:        a.SkipWhen,
		Checkpoint:      a.Checkpoint,
		ExpectedOutcome: a.ExpectedOutcome,
		Evidence:        nonNil(a.Evidence),
		CreatedFrom:     a.CreatedFrom,
	}
	if aj.Domain == nil {
		aj.Domain = StringList{}
	}
	switch b := a.Body.(type) {
	case GeneBody:
		m := nonNilSteps(b.Method)
		aj.Method = &m
	case SOPBody:
		s := nonNilSteps(b.Steps)
		aj.Steps = &s
	case PrefBody:
		aj.Preferred, aj.Rationale, aj.Tradeoff = &b.Preferred, &b.Rationale, &b.Tradeoff
	}

	data, err := marshalNoEscape(aj)
	if err != nil || len(a.Extra) == 0 {
		return data, err
	}

	var merged map[string]json.RawMessage
	if err := json.Unmarshal(data, &merged); err != nil {
		return nil, err
	}
	for k, v := range a.Extra {
		if _, known := merged[k]; !known {
			merged[k] = v
		}
	}
	return marshalNoEscape(merged)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func nonNilSteps(s Steps) Steps {
	if s == nil {
		return Steps{}
	}
	return s
}

// marshalNoEscape marshals without HTML escaping so rule text with < > &
// stays readable in the stores.
func marshalNoEscape(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}

// StringList accepts either a JSON string or an array of strings.
type StringList []string

// UnmarshalJSON implements json.Unmarshaler.
func (l *StringList) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*l = nil
		return nil
	}
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*l = StringList{}
		} else {
			*l = StringList{one}
		}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return fmt.Errorf("string or string list: %w", err)
	}
	*l = many
	return nil
}

// Step is one checklist entry. Stores may hold plain strings or objects with
// an action or description; the original JSON is kept for round-trips.
type Step struct {
	Text string
	raw  json.RawMessage
}

// NewStep builds a plain-text step.
func NewStep(text string) Step { return Step{Text: text} }

// UnmarshalJSON implements json.Unmarshaler.
func (s *Step) UnmarshalJSON(data []byte) error {
	var text string
	if err := json.Unmarshal(data, &text); err == nil {
		*s = Step{Text: text}
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(data, &obj); err != nil {
		*s = Step{Text: string(data), raw: append(json.RawMessage(nil), data...)}
		return nil
	}
	text, _ = obj["action"].(string)
	if text == "" {
		text, _ = obj["description"].(string)
	}
	if text == "" {
		text = string(data)
	}
	*s = Step{Text: text, raw: append(json.RawMessage(nil), data...)}
	return nil
}

// MarshalJSON implements json.Marshaler.
func (s Step) MarshalJSON() ([]byte, error) {
	if len(s.raw) > 0 {
		return s.raw, nil
	}
	return marshalNoEscape(s.Text)
}

// Steps is a checklist. A bare string in the store becomes a single step.
type Steps []Step

// UnmarshalJSON implements json.Unmarshaler.
func (ss *Steps) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		*ss = nil
		return nil
	}
	var text string
	if err := json.Unmarshal(trimmed, &text); err == nil {
		if text == "" {
			*ss = Steps{}
		} else {
			*ss = Steps{NewStep(text)}
		}
		return nil
	}
	var list []Step
	if err := json.Unmarshal(trimmed, &list); err != nil {
		return fmt.Errorf("steps: %w", err)
	}
	*ss = list
	return nil
}

// Texts returns the step texts in order.
func (ss Steps) Texts() []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = s.Text
	}
	return out
}

// StepsFromStrings builds a plain-text checklist.
func StepsFromStrings(texts ...string) Steps {
	out := make(Steps, len(texts))
	for i, t := range texts {
		out[i] = NewStep(t)
	}
	return out
}
