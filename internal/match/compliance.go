package match

import (
	"github.com/madness-retro/madness/internal/keyword"
	"github.com/madness-retro/madness/internal/types"
)

// Compliance is whether recorded behavior followed an asset.
type Compliance string

const (
	Compliant    Compliance = "compliant"
	Partial      Compliance = "partial"
	NonCompliant Compliance = "non_compliant"
	NotAvailable Compliance = "n/a"

	// Ambiguous is only produced by the inline session check.
	Ambiguous Compliance = "ambiguous"
)

// Thresholds are the checklist hit-rate cutoffs of the batch classifier.
type Thresholds struct {
	CompliantRate    float64 `yaml:"compliant_rate" json:"compliant_rate"`
	NonCompliantRate float64 `yaml:"non_compliant_rate" json:"non_compliant_rate"`
}

// DefaultThresholds returns the stock cutoffs: >= 0.8 compliant, < 0.5 non-compliant.
func DefaultThresholds() Thresholds {
	return Thresholds{CompliantRate: 0.8, NonCompliantRate: 0.5}
}

// FacetPool collects the keywords of everything the matched sessions decided
// and learned.
func FacetPool(facets []types.Facet) keyword.Set {
	pool := keyword.Set{}
	for i := range facets {
		f := &facets[i]
		pool.Add(keyword.ExtractAll(f.Goal, f.KeyDecision, f.Learning))
		for _, list := range []types.LooseTexts{f.Decisions, f.Learnings, f.KeyDecisions} {
			pool.Add(keyword.ExtractAll(list...))
		}
	}
	return pool
}

// StepHitRate counts the steps whose keywords intersect pool.
func StepHitRate(steps types.Steps, pool keyword.Set) (hits int, rate float64) {
	if len(steps) == 0 {
		return 0, 0
	}
	for _, step := range steps {
		if keyword.Extract(step.Text).Overlaps(pool) {
			hits++
		}
	}
	return hits, float64(hits) / float64(len(steps))
}

// PrefKeywords returns the keywords of a preference's choice and rationale.
func PrefKeywords(p types.PrefBody) keyword.Set {
	return keyword.ExtractAll(p.Preferred, p.Rationale)
}

// Classify decides whether the matched sessions followed the asset. Gene and
// SOP checklists are graded by hit rate; prefs are all-or-nothing. An empty
// pool or an empty checklist yields NotAvailable.
func Classify(a *types.Asset, matched []types.Facet, th Thresholds) (Compliance, float64) {
	pool := FacetPool(matched)
	if len(pool) == 0 {
		return NotAvailable, 0
	}

	if pref, ok := a.Pref(); ok {
		if PrefKeywords(pref).Overlaps(pool) {
			return Compliant, 1
		}
		return NonCompliant, 0
	}

	steps := a.Checklist()
	if len(steps) == 0 {
		return NotAvailable, 0
	}

	_, rate := StepHitRate(steps, pool)
	switch {
	case rate >= th.CompliantRate:
		return Compliant, rate
	case rate < th.NonCompliantRate:
		return NonCompliant, rate
	default:
		return Partial, rate
	}
}
