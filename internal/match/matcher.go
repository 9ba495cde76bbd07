// Package match scores how relevant a session facet is to an asset and
// classifies whether the session followed the asset's prescription.
package match

import (
	"strings"

	"github.com/madness-retro/madness/internal/keyword"
	"github.com/madness-retro/madness/internal/types"
)

// Tier is the discrete relevance of a facet to an asset.
type Tier string

const (
	TierNone   Tier = "none"
	TierLow    Tier = "low"
	TierMedium Tier = "medium"
	TierHigh   Tier = "high"
)

// Matched reports whether the tier counts as a match.
func (t Tier) Matched() bool {
	return t == TierHigh || t == TierMedium
}

// Weights are the point values and tier cutoffs of the matcher.
type Weights struct {
	CategoryPoints  int `yaml:"category_points" json:"category_points"`
	FrictionPoints  int `yaml:"friction_points" json:"friction_points"`
	TitleGoalCap    int `yaml:"title_goal_cap" json:"title_goal_cap"`
	LearningPoints  int `yaml:"learning_points" json:"learning_points"`
	HighThreshold   int `yaml:"high_threshold" json:"high_threshold"`
	MediumThreshold int `yaml:"medium_threshold" json:"medium_threshold"`
	LowThreshold    int `yaml:"low_threshold" json:"low_threshold"`
}

// DefaultWeights returns the stock weights: 2/2/3/1 points, cutoffs 4/2/1.
func DefaultWeights() Weights {
	return Weights{
		CategoryPoints:  2,
		FrictionPoints:  2,
		TitleGoalCap:    3,
		LearningPoints:  1,
		HighThreshold:   4,
		MediumThreshold: 2,
		LowThreshold:    1,
	}
}

// TierFor maps a point total to a tier.
func (w Weights) TierFor(points int) Tier {
	switch {
	case points >= w.HighThreshold:
		return TierHigh
	case points >= w.MediumThreshold:
		return TierMedium
	case points >= w.LowThreshold:
		return TierLow
	default:
		return TierNone
	}
}

// Score is the breakdown of one facet/asset comparison.
type Score struct {
	Points    int  `json:"points"`
	Tier      Tier `json:"tier"`
	Category  bool `json:"category"`
	Friction  bool `json:"friction"`
	TitleGoal int  `json:"title_goal"`
	Learning  bool `json:"learning"`
}

// Profile holds an asset's precomputed keyword sets.
type Profile struct {
	Asset   *types.Asset
	Trigger keyword.Set
	Title   keyword.Set
	Domains []string
}

// NewProfile extracts the keyword sets of an asset once for many comparisons.
func NewProfile(a *types.Asset) *Profile {
	domains := make([]string, 0, len(a.Domain))
	for _, d := range a.Domain {
		if d = strings.ToLower(strings.TrimSpace(d)); d != "" {
			domains = append(domains, d)
		}
	}
	return &Profile{
		Asset:   a,
		Trigger: keyword.Extract(a.Trigger),
		Title:   keyword.Extract(a.Title),
		Domains: domains,
	}
}

// Matcher scores facets against assets.
type Matcher struct {
	weights Weights
}

// NewMatcher creates a matcher with the given weights.
func NewMatcher(w Weights) *Matcher {
	return &Matcher{weights: w}
}

// Weights returns the matcher's configuration.
func (m *Matcher) Weights() Weights {
	return m.weights
}

// Score compares one facet with one asset.
func (m *Matcher) Score(f *types.Facet, a *types.Asset) Score {
	return m.ScoreProfile(f, NewProfile(a))
}

// ScoreProfile compares one facet with a prepared asset profile.
func (m *Matcher) ScoreProfile(f *types.Facet, p *Profile) Score {
	var s Score

	if categoryMatches(string(f.GoalCategory), p.Domains) {
		s.Category = true
		s.Points += m.weights.CategoryPoints
	}

	if len(p.Trigger) > 0 {
		for _, fr := range f.Friction {
			if keyword.Extract(fr).Overlaps(p.Trigger) {
				s.Friction = true
				s.Points += m.weights.FrictionPoints
				break
			}
		}
	}

	shared := len(p.Title.Intersect(keyword.Extract(f.Goal)))
	if shared > m.weights.TitleGoalCap {
		shared = m.weights.TitleGoalCap
	}
	s.TitleGoal = shared
	s.Points += shared

	if len(p.Trigger) > 0 {
		if p.Trigger.Overlaps(keyword.Extract(f.Learning)) || p.Trigger.Overlaps(keyword.Extract(f.KeyDecision)) {
			s.Learning = true
			s.Points += m.weights.LearningPoints
		}
	}

	s.Tier = m.weights.TierFor(s.Points)
	return s
}

// categoryMatches reports whether the goal category and any domain tag are
// substrings of one another. Empty values never match.
func categoryMatches(category string, domains []string) bool {
	category = strings.ToLower(category)
	if category == "" {
		return false
	}
	for _, d := range domains {
		if strings.Contains(category, d) || strings.Contains(d, category) {
			return true
		}
	}
	return false
}
