// Package lifecycle turns compliance and session outcome into confidence
// changes and applies the resulting status transitions to assets.
package lifecycle

import (
	"github.com/madness-retro/madness/internal/match"
	"github.com/madness-retro/madness/internal/types"
)

// Judgment names the verdict of one validation.
type Judgment string

const (
	Validated         Judgment = "validated"
	WeakValidate      Judgment = "weak_validate"
	Ineffective       Judgment = "ineffective"
	PartialValidate   Judgment = "partial_validate"
	Inconclusive      Judgment = "inconclusive"
	OverScoped        Judgment = "over_scoped"
	Unrelated         Judgment = "unrelated"
	ExplorationExempt Judgment = "exploration_exempt"
	NoMatch           Judgment = "no_match"
)

// Failing reports whether the judgment counts toward an escalation streak.
func (j Judgment) Failing() bool {
	return j == Ineffective || j == OverScoped
}

// Deltas are the confidence changes of the non-zero judgments.
type Deltas struct {
	Validated       float64 `yaml:"validated" json:"validated"`
	WeakValidate    float64 `yaml:"weak_validate" json:"weak_validate"`
	Ineffective     float64 `yaml:"ineffective" json:"ineffective"`
	PartialValidate float64 `yaml:"partial_validate" json:"partial_validate"`
	OverScoped      float64 `yaml:"over_scoped" json:"over_scoped"`
}

// DefaultDeltas returns +0.05/+0.02/-0.15/+0.02/-0.10.
func DefaultDeltas() Deltas {
	return Deltas{
		Validated:       0.05,
		WeakValidate:    0.02,
		Ineffective:     -0.15,
		PartialValidate: 0.02,
		OverScoped:      -0.10,
	}
}

type cell struct {
	compliance match.Compliance
	outcome    types.Outcome
}

// Matrix maps (compliance, outcome) to a judgment and delta.
type Matrix struct {
	judgments map[cell]Judgment
	deltas    map[Judgment]float64
}

// NewMatrix builds the judgment matrix with the given deltas.
func NewMatrix(d Deltas) *Matrix {
	return &Matrix{
		judgments: map[cell]Judgment{
			{match.Compliant, types.OutcomeFullyAchieved}:        Validated,
			{match.Compliant, types.OutcomePartiallyAchieved}:    WeakValidate,
			{match.Compliant, types.OutcomeNotAchieved}:          Ineffective,
			{match.Partial, types.OutcomeFullyAchieved}:          PartialValidate,
			{match.Partial, types.OutcomePartiallyAchieved}:      Inconclusive,
			{match.Partial, types.OutcomeNotAchieved}:            Inconclusive,
			{match.NonCompliant, types.OutcomeFullyAchieved}:     OverScoped,
			{match.NonCompliant, types.OutcomePartiallyAchieved}: Inconclusive,
			{match.NonCompliant, types.OutcomeNotAchieved}:       Unrelated,
		},
		deltas: map[Judgment]float64{
			Validated:       d.Validated,
			WeakValidate:    d.WeakValidate,
			Ineffective:     d.Ineffective,
			PartialValidate: d.PartialValidate,
			OverScoped:      d.OverScoped,
		},
	}
}

// Lookup returns the judgment and delta for a pair. Unmapped pairs are
// inconclusive with no change.
func (m *Matrix) Lookup(c match.Compliance, o types.Outcome) (Judgment, float64) {
	j, ok := m.judgments[cell{c, o}]
	if !ok {
		return Inconclusive, 0
	}
	return j, m.deltas[j]
}

// DominantOutcome returns the most frequent outcome among facets, ties going
// to the outcome seen first. Without any outcome it is not_achieved.
func DominantOutcome(facets []types.Facet) types.Outcome {
	counts := map[types.Outcome]int{}
	var order []types.Outcome
	for _, f := range facets {
		if f.Outcome == "" {
			continue
		}
		if counts[f.Outcome] == 0 {
			order = append(order, f.Outcome)
		}
		counts[f.Outcome]++
	}
	if len(order) == 0 {
		return types.OutcomeNotAchieved
	}
	best := order[0]
	for _, o := range order[1:] {
		if counts[o] > counts[best] {
			best = o
		}
	}
	return best
}

// Exploratory reports whether more than half of the facets belong to the
// exploratory goal category.
func Exploratory(facets []types.Facet, category types.GoalCategory) bool {
	if len(facets) == 0 || category == "" {
		return false
	}
	n := 0
	for _, f := range facets {
		if f.GoalCategory == category {
			n++
		}
	}
	return n*2 > len(facets)
}
