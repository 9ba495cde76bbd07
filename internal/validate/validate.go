// Package validate runs the batch validation protocol: every live asset is
// matched against the review period's facets, graded for compliance and
// given a judgment. Run is a pure scoring pass; Apply persists a report.
package validate

import (
	"time"

	"github.com/google/uuid"

	"github.com/madness-retro/madness/internal/lifecycle"
	"github.com/madness-retro/madness/internal/match"
	"github.com/madness-retro/madness/internal/types"
)

// Match statuses of a result row.
const (
	StatusMatched = "matched"
	StatusNoMatch = "no_match"
)

// Highlight kinds.
const (
	PromotionCandidate = "promotion_candidate"
	ComplianceSuccess  = "compliance_success"
)

// Options configures a batch run.
type Options struct {
	Weights             match.Weights
	Thresholds          match.Thresholds
	Deltas              lifecycle.Deltas
	ExploratoryCategory types.GoalCategory
	EvidenceCap         int
	EscalationThreshold int
}

// DefaultOptions returns the stock configuration.
func DefaultOptions() Options {
	return Options{
		Weights:             match.DefaultWeights(),
		Thresholds:          match.DefaultThresholds(),
		Deltas:              lifecycle.DefaultDeltas(),
		ExploratoryCategory: types.GoalExploreLearn,
		EvidenceCap:         5,
		EscalationThreshold: lifecycle.DefaultEscalationThreshold,
	}
}

// Result is the verdict for one asset.
type Result struct {
	AssetID             string             `json:"asset_id" yaml:"asset_id"`
	AssetType           types.AssetType    `json:"asset_type" yaml:"asset_type"`
	AssetTitle          string             `json:"asset_title" yaml:"asset_title"`
	MatchStatus         string             `json:"match_status" yaml:"match_status"`
	MatchedSessions     []string           `json:"matched_sessions" yaml:"matched_sessions"`
	HighMatches         int                `json:"high_matches" yaml:"high_matches"`
	MediumMatches       int                `json:"medium_matches" yaml:"medium_matches"`
	TriggerScore        int                `json:"trigger_score" yaml:"trigger_score"`
	Compliance          match.Compliance   `json:"compliance" yaml:"compliance"`
	ComplianceRate      float64            `json:"compliance_rate" yaml:"compliance_rate"`
	Outcome             types.Outcome      `json:"outcome,omitempty" yaml:"outcome,omitempty"`
	Judgment            lifecycle.Judgment `json:"judgment" yaml:"judgment"`
	SuggestedDelta      float64            `json:"suggested_delta" yaml:"suggested_delta"`
	CurrentConfidence   float64            `json:"current_confidence" yaml:"current_confidence"`
	NewConfidence       float64            `json:"new_confidence" yaml:"new_confidence"`
	CurrentStatus       types.Status       `json:"current_status" yaml:"current_status"`
	NewStatus           types.Status       `json:"new_status" yaml:"new_status"`
	EvidenceSessions    []string           `json:"evidence_sessions" yaml:"evidence_sessions"`
	NeedsSemanticReview bool               `json:"needs_semantic_review,omitempty" yaml:"needs_semantic_review,omitempty"`
	ExplorationExempt   bool               `json:"exploration_exempt,omitempty" yaml:"exploration_exempt,omitempty"`
	SuggestedFix        string             `json:"suggested_fix,omitempty" yaml:"suggested_fix,omitempty"`
	Alert               *lifecycle.Alert   `json:"alert,omitempty" yaml:"alert,omitempty"`
}

// Matched reports whether any facet matched the asset.
func (r *Result) Matched() bool {
	return r.MatchStatus == StatusMatched
}

// Highlight calls out a result worth a human's attention for good reasons.
type Highlight struct {
	AssetID  string             `json:"asset_id" yaml:"asset_id"`
	Kind     string             `json:"kind" yaml:"kind"`
	Judgment lifecycle.Judgment `json:"judgment" yaml:"judgment"`
	From     float64            `json:"from" yaml:"from"`
	To       float64            `json:"to" yaml:"to"`
}

// Summary aggregates a run.
type Summary struct {
	Judgments      map[lifecycle.Judgment]int `json:"judgments" yaml:"judgments"`
	NeedsAttention int                        `json:"needs_attention" yaml:"needs_attention"`
}

// Report is the output of one batch run.
type Report struct {
	RunID               string      `json:"run_id" yaml:"run_id"`
	ValidatedAt         string      `json:"validated_at" yaml:"validated_at"`
	Since               string      `json:"since,omitempty" yaml:"since,omitempty"`
	TotalAssets         int         `json:"total_assets" yaml:"total_assets"`
	TotalFacets         int         `json:"total_facets" yaml:"total_facets"`
	Results             []Result    `json:"results" yaml:"results"`
	ValidatedHighlights []Highlight `json:"validated_highlights" yaml:"validated_highlights"`
	Summary             Summary     `json:"summary" yaml:"summary"`
}

// Validator runs the batch protocol.
type Validator struct {
	opts    Options
	matcher *match.Matcher
	matrix  *lifecycle.Matrix
	now     func() time.Time
	newID   func() string
}

// New creates a validator.
func New(opts Options) *Validator {
	return &Validator{
		opts:    opts,
		matcher: match.NewMatcher(opts.Weights),
		matrix:  lifecycle.NewMatrix(opts.Deltas),
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// WithClock overrides the clock used for validated_at.
func (v *Validator) WithClock(now func() time.Time) *Validator {
	v.now = now
	return v
}

// Run scores every active or provisional asset against facets. history is
// the evolution log, used only for escalation. Nothing is mutated.
func (v *Validator) Run(assets []*types.Asset, facets []types.Facet, history []types.EvolutionEvent) *Report {
	report := &Report{
		RunID:               v.newID(),
		ValidatedAt:         v.now().UTC().Format(types.DateLayout),
		TotalFacets:         len(facets),
		Results:             []Result{},
		ValidatedHighlights: []Highlight{},
		Summary:             Summary{Judgments: map[lifecycle.Judgment]int{}},
	}

	for _, a := range assets {
		if !a.Status.Injectable() {
			continue
		}
		report.TotalAssets++

		res := v.evaluate(a, facets, history)
		report.Results = append(report.Results, res)
		report.Summary.Judgments[res.Judgment]++
		if res.SuggestedFix != "" || res.Alert != nil {
			report.Summary.NeedsAttention++
		}
		if h, ok := highlight(a, &res); ok {
			report.ValidatedHighlights = append(report.ValidatedHighlights, h)
		}
	}
	return report
}

func (v *Validator) evaluate(a *types.Asset, facets []types.Facet, history []types.EvolutionEvent) Result {
	res := Result{
		AssetID:           a.ID,
		AssetType:         a.Type,
		AssetTitle:        a.Title,
		MatchStatus:       StatusNoMatch,
		MatchedSessions:   []string{},
		Compliance:        match.NotAvailable,
		Judgment:          lifecycle.NoMatch,
		CurrentConfidence: a.Confidence,
		NewConfidence:     a.Confidence,
		CurrentStatus:     a.Status,
		NewStatus:         a.Status,
		EvidenceSessions:  []string{},
	}

	profile := match.NewProfile(a)
	var matched []types.Facet
	seen := map[string]bool{}
	for i := range facets {
		s := v.matcher.ScoreProfile(&facets[i], profile)
		switch s.Tier {
		case match.TierHigh:
			res.HighMatches++
		case match.TierMedium:
			res.MediumMatches++
		default:
			continue
		}
		matched = append(matched, facets[i])
		if s.Points > res.TriggerScore {
			res.TriggerScore = s.Points
		}
		if id := facets[i].Key(); id != "" && !seen[id] {
			seen[id] = true
			res.MatchedSessions = append(res.MatchedSessions, id)
		}
	}

	if len(matched) == 0 {
		return res
	}

	res.MatchStatus = StatusMatched
	res.NeedsSemanticReview = res.HighMatches == 0 && res.MediumMatches > 0

	compliance, rate := match.Classify(a, matched, v.opts.Thresholds)
	if compliance == match.NotAvailable {
		compliance, rate = match.Partial, 0
	}
	res.Compliance = compliance
	res.ComplianceRate = rate
	res.Outcome = lifecycle.DominantOutcome(matched)

	judgment, delta := v.matrix.Lookup(compliance, res.Outcome)
	if compliance == match.NonCompliant && lifecycle.Exploratory(matched, v.opts.ExploratoryCategory) {
		judgment, delta = lifecycle.ExplorationExempt, 0
		res.ExplorationExempt = true
	}
	res.Judgment = judgment
	res.SuggestedDelta = delta
	res.NewConfidence = lifecycle.NextConfidence(a.Confidence, delta)
	res.NewStatus = types.StatusForConfidence(res.NewConfidence)
	res.SuggestedFix = lifecycle.SuggestedFix(judgment)
	res.Alert = lifecycle.Escalate(history, a.ID, judgment, v.opts.EscalationThreshold)

	evidence := append([]string(nil), res.MatchedSessions...)
	if limit := v.opts.EvidenceCap; limit > 0 && len(evidence) > limit {
		evidence = evidence[:limit]
	}
	res.EvidenceSessions = evidence
	return res
}

func highlight(a *types.Asset, res *Result) (Highlight, bool) {
	h := Highlight{AssetID: a.ID, Judgment: res.Judgment, From: res.CurrentConfidence, To: res.NewConfidence}
	switch {
	case a.Status == types.StatusProvisional && res.NewConfidence > res.CurrentConfidence:
		h.Kind = PromotionCandidate
	case a.Status == types.StatusActive && res.Compliance == match.Compliant && res.Outcome == types.OutcomeFullyAchieved:
		h.Kind = ComplianceSuccess
	default:
		return Highlight{}, false
	}
	return h, true
}
