package lifecycle

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/madness-retro/madness/internal/match"
	"github.com/madness-retro/madness/internal/types"
)

func TestMatrixLookup(t *testing.T) {
	m := NewMatrix(DefaultDeltas())
	tests := []struct {
		compliance match.Compliance
		outcome    types.Outcome
		judgment   Judgment
		delta      float64
	}{
		{match.Compliant, types.OutcomeFullyAchieved, Validated, 0.05},
		{match.Compliant, types.OutcomePartiallyAchieved, WeakValidate, 0.02},
		{match.Compliant, types.OutcomeNotAchieved, Ineffective, -0.15},
		{match.Partial, types.OutcomeFullyAchieved, PartialValidate, 0.02},
		{match.Partial, types.OutcomePartiallyAchieved, Inconclusive, 0},
		{match.Partial, types.OutcomeNotAchieved, Inconclusive, 0},
		{match.NonCompliant, types.OutcomeFullyAchieved, OverScoped, -0.10},
		{match.NonCompliant, types.OutcomePartiallyAchieved, Inconclusive, 0},
		{match.NonCompliant, types.OutcomeNotAchieved, Unrelated, 0},
		{match.NotAvailable, types.OutcomeFullyAchieved, Inconclusive, 0},
		{match.Compliant, "abandoned", Inconclusive, 0},
	}
	for _, tt := range tests {
		t.Run(string(tt.compliance)+"/"+string(tt.outcome), func(t *testing.T) {
			for i := 0; i < 2; i++ {
				j, d := m.Lookup(tt.compliance, tt.outcome)
				assert.Equal(t, tt.judgment, j)
				assert.Equal(t, tt.delta, d)
			}
		})
	}
}

func TestMatrixLookup_CustomDeltas(t *testing.T) {
	d := DefaultDeltas()
	d.Validated = 0.1
	j, delta := NewMatrix(d).Lookup(match.Compliant, types.OutcomeFullyAchieved)
	assert.Equal(t, Validated, j)
	assert.Equal(t, 0.1, delta)
}

func TestDominantOutcome(t *testing.T) {
	f := func(outcomes ...types.Outcome) []types.Facet {
		out := make([]types.Facet, len(outcomes))
		for i, o := range outcomes {
			out[i] = types.Facet{Outcome: o}
		}
		return out
	}
	assert.Equal(t, types.OutcomeNotAchieved, DominantOutcome(nil))
	assert.Equal(t, types.OutcomeNotAchieved, DominantOutcome(f("")))
	assert.Equal(t, types.OutcomePartiallyAchieved,
		DominantOutcome(f(types.OutcomeFullyAchieved, types.OutcomePartiallyAchieved, types.OutcomePartiallyAchieved)))
	assert.Equal(t, types.OutcomeFullyAchieved,
		DominantOutcome(f(types.OutcomeFullyAchieved, types.OutcomeNotAchieved)), "tie goes to first seen")
	assert.Equal(t, types.OutcomeNotAchieved,
		DominantOutcome(f(types.OutcomeNotAchieved, types.OutcomeFullyAchieved)), "tie goes to first seen")
}

func TestExploratory(t *testing.T) {
	explore := types.Facet{GoalCategory: types.GoalExploreLearn}
	build := types.Facet{GoalCategory: types.GoalImplement}

	assert.True(t, Exploratory([]types.Facet{explore, explore, build}, types.GoalExploreLearn))
	assert.False(t, Exploratory([]types.Facet{explore, build}, types.GoalExploreLearn), "half is not a majority")
	assert.False(t, Exploratory(nil, types.GoalExploreLearn))
	assert.False(t, Exploratory([]types.Facet{explore}, ""))
}
