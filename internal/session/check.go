package session

import (
	"math"

	"github.com/madness-retro/madness/internal/keyword"
	"github.com/madness-retro/madness/internal/match"
	"github.com/madness-retro/madness/internal/types"
)

// Triggered is one asset whose trigger fired during the session.
type Triggered struct {
	AssetID           string           `json:"asset_id" yaml:"asset_id"`
	AssetType         types.AssetType  `json:"asset_type" yaml:"asset_type"`
	TriggerMatchScore float64          `json:"trigger_match_score" yaml:"trigger_match_score"`
	Compliance        match.Compliance `json:"compliance" yaml:"compliance"`
	MatchedKeywords   []string         `json:"matched_keywords" yaml:"matched_keywords"`
	ConfidenceDelta   float64          `json:"confidence_delta" yaml:"confidence_delta"`

	current float64
}

// TriggerScore is the share of the trigger's keywords found in the session.
// Assets without trigger keywords never fire.
func TriggerScore(trigger string, session keyword.Set, threshold float64) (bool, float64, []string) {
	kw := keyword.Extract(trigger)
	if len(kw) == 0 {
		return false, 0, nil
	}
	hit := kw.Intersect(session)
	score := float64(len(hit)) / float64(len(kw))
	return score >= threshold, score, hit.Sorted()
}

// CheckCompliance grades the asset against the whole session. Checklists use
// the same step hit logic as the batch classifier; prefs are compliant once
// enough of their keywords appear and never non-compliant.
func CheckCompliance(a *types.Asset, session keyword.Set, opts Options) match.Compliance {
	if pref, ok := a.Pref(); ok {
		kw := match.PrefKeywords(pref)
		if len(kw) == 0 {
			return match.Ambiguous
		}
		need := math.Max(1, float64(len(kw))*opts.PrefOverlapRatio)
		if float64(len(kw.Intersect(session))) >= need {
			return match.Compliant
		}
		return match.Ambiguous
	}

	steps := a.Checklist()
	if len(steps) == 0 {
		return match.Ambiguous
	}
	_, rate := match.StepHitRate(steps, session)
	switch {
	case rate >= opts.CompliantRate:
		return match.Compliant
	case rate <= opts.NonCompliantRate:
		return match.NonCompliant
	default:
		return match.Ambiguous
	}
}

// Delta maps an inline compliance label to its confidence change.
func (o Options) Delta(c match.Compliance) float64 {
	switch c {
	case match.Compliant:
		return o.CompliantDelta
	case match.NonCompliant:
		return o.NonCompliantDelta
	default:
		return 0
	}
}

// Evaluate scores every asset against the session text and returns the
// triggered ones in asset order.
func Evaluate(assets []*types.Asset, text string, opts Options) []Triggered {
	session := keyword.Extract(text)
	out := make([]Triggered, 0)
	for _, a := range assets {
		fired, score, hit := TriggerScore(a.Trigger, session, opts.TriggerThreshold)
		if !fired {
			continue
		}
		c := CheckCompliance(a, session, opts)
		out = append(out, Triggered{
			AssetID:           a.ID,
			AssetType:         a.Type,
			TriggerMatchScore: math.Round(score*100) / 100,
			Compliance:        c,
			MatchedKeywords:   hit,
			ConfidenceDelta:   opts.Delta(c),
			current:           a.Confidence,
		})
	}
	return out
}
