package validate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madness-retro/madness/internal/lifecycle"
	"github.com/madness-retro/madness/internal/match"
	"github.com/madness-retro/madness/internal/types"
)

var runDay = time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC)

func newValidator() *Validator {
	return New(DefaultOptions()).WithClock(func() time.Time { return runDay })
}

func geneAsset(id, title, domain string, conf float64, steps ...string) *types.Asset {
	return &types.Asset{
		ID:         id,
		Type:       types.AssetGene,
		Title:      title,
		Domain:     types.StringList{domain},
		Confidence: conf,
		Status:     types.StatusForConfidence(conf),
		Version:    1,
		Body:       types.GeneBody{Method: types.StepsFromStrings(steps...)},
	}
}

func fixtureAssets() []*types.Asset {
	return []*types.Asset{
		geneAsset("flaky", "Fix flaky tests", "debug", 0.90, "rerun with seed", "isolate shared state"),
		geneAsset("docs", "Document api endpoints", "plan", 0.55, "write openapi spec", "review examples"),
		geneAsset("lonely", "Quantum widgets", "", 0.70, "anything"),
		geneAsset("old", "Fix flaky tests", "debug", 0.30, "rerun"),
	}
}

func fixtureFacets() []types.Facet {
	return []types.Facet{
		{
			SessionID: "s1", GoalCategory: types.GoalDebugFix, Goal: "fix flaky tests in ci",
			KeyDecision: "rerun with seed", Learning: "isolate shared state", Outcome: types.OutcomeFullyAchieved,
		},
		{
			SessionID: "s2", GoalCategory: types.GoalPlanDesign, Goal: "document api endpoints",
			KeyDecision: "ship quickly", Learning: "nothing", Outcome: types.OutcomeFullyAchieved,
		},
	}
}

func resultFor(t *testing.T, r *Report, id string) Result {
	t.Helper()
	for _, res := range r.Results {
		if res.AssetID == id {
			return res
		}
	}
	t.Fatalf("no result for %s", id)
	return Result{}
}

func TestRun_Scenarios(t *testing.T) {
	report := newValidator().Run(fixtureAssets(), fixtureFacets(), nil)

	assert.Equal(t, "2026-05-01", report.ValidatedAt)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 3, report.TotalAssets, "deprecated assets are not validated")
	require.Len(t, report.Results, 3)

	t.Run("compliant and achieved is validated", func(t *testing.T) {
		r := resultFor(t, report, "flaky")
		assert.Equal(t, StatusMatched, r.MatchStatus)
		assert.Equal(t, match.Compliant, r.Compliance)
		assert.Equal(t, lifecycle.Validated, r.Judgment)
		assert.Equal(t, 0.95, r.NewConfidence)
		assert.Equal(t, types.StatusActive, r.NewStatus)
		assert.Equal(t, []string{"s1"}, r.EvidenceSessions)
		assert.Equal(t, 1, r.HighMatches)
		assert.False(t, r.NeedsSemanticReview)
	})

	t.Run("ignored but achieved is over scoped", func(t *testing.T) {
		r := resultFor(t, report, "docs")
		assert.Equal(t, match.NonCompliant, r.Compliance)
		assert.Equal(t, lifecycle.OverScoped, r.Judgment)
		assert.Equal(t, -0.10, r.SuggestedDelta)
		assert.Equal(t, 0.45, r.NewConfidence)
		assert.Equal(t, types.StatusDeprecated, r.NewStatus)
		assert.NotEmpty(t, r.SuggestedFix)
	})

	t.Run("no facets is no match", func(t *testing.T) {
		r := resultFor(t, report, "lonely")
		assert.Equal(t, StatusNoMatch, r.MatchStatus)
		assert.Equal(t, lifecycle.NoMatch, r.Judgment)
		assert.Equal(t, r.CurrentConfidence, r.NewConfidence)
		assert.Empty(t, r.MatchedSessions)
	})

	assert.Equal(t, map[lifecycle.Judgment]int{
		lifecycle.Validated:  1,
		lifecycle.OverScoped: 1,
		lifecycle.NoMatch:    1,
	}, report.Summary.Judgments)
	assert.Equal(t, 1, report.Summary.NeedsAttention)

	require.Len(t, report.ValidatedHighlights, 1)
	assert.Equal(t, ComplianceSuccess, report.ValidatedHighlights[0].Kind)
	assert.Equal(t, "flaky", report.ValidatedHighlights[0].AssetID)
}

func TestRun_DoesNotMutateAssets(t *testing.T) {
	assets := fixtureAssets()
	newValidator().Run(assets, fixtureFacets(), nil)
	assert.Equal(t, 0.90, assets[0].Confidence)
	assert.Equal(t, 1, assets[0].Version)
}

func TestRun_ExplorationExempt(t *testing.T) {
	asset := geneAsset("rust", "Learn rust macros", "explore", 0.70, "read the book")
	facet := types.Facet{
		SessionID: "e1", GoalCategory: types.GoalExploreLearn, Goal: "learn rust macros",
		Learning: "tried examples", Outcome: types.OutcomeFullyAchieved,
	}
	report := newValidator().Run([]*types.Asset{asset}, []types.Facet{facet, facet}, nil)

	r := resultFor(t, report, "rust")
	assert.Equal(t, match.NonCompliant, r.Compliance)
	assert.Equal(t, lifecycle.ExplorationExempt, r.Judgment)
	assert.True(t, r.ExplorationExempt)
	assert.Zero(t, r.SuggestedDelta)
	assert.Equal(t, 0.70, r.NewConfidence)
	assert.Equal(t, []string{"e1"}, r.MatchedSessions, "sessions are deduplicated")
}

func TestRun_MediumOnlyNeedsSemanticReview(t *testing.T) {
	asset := geneAsset("zebra", "Zebra", "implement", 0.70, "write code")
	facet := types.Facet{
		SessionID: "m1", GoalCategory: types.GoalImplement, Goal: "build feature",
		KeyDecision: "write code first", Outcome: types.OutcomePartiallyAchieved,
	}
	report := newValidator().Run([]*types.Asset{asset}, []types.Facet{facet}, nil)

	r := resultFor(t, report, "zebra")
	assert.True(t, r.NeedsSemanticReview)
	assert.Equal(t, 1, r.MediumMatches)
	assert.Equal(t, lifecycle.WeakValidate, r.Judgment)
	assert.Equal(t, 0.72, r.NewConfidence)

	require.Len(t, report.ValidatedHighlights, 1)
	assert.Equal(t, PromotionCandidate, report.ValidatedHighlights[0].Kind)
}

func TestRun_NotAvailableTreatedAsPartial(t *testing.T) {
	asset := geneAsset("bare", "Fix flaky tests", "debug", 0.70)
	report := newValidator().Run([]*types.Asset{asset}, fixtureFacets()[:1], nil)

	r := resultFor(t, report, "bare")
	assert.Equal(t, match.Partial, r.Compliance)
	assert.Zero(t, r.ComplianceRate)
	assert.Equal(t, lifecycle.PartialValidate, r.Judgment)
}

func TestRun_EscalationAlert(t *testing.T) {
	asset := geneAsset("flaky", "Fix flaky tests", "debug", 0.70, "rerun with seed")
	facet := fixtureFacets()[0]
	facet.Outcome = types.OutcomeNotAchieved
	history := []types.EvolutionEvent{
		{Event: types.EventValidate, AssetID: "flaky", Details: map[string]any{"judgment": "over_scoped"}},
		{Event: types.EventValidate, AssetID: "flaky", Details: map[string]any{"judgment": "ineffective"}},
	}

	report := newValidator().Run([]*types.Asset{asset}, []types.Facet{facet}, history)
	r := resultFor(t, report, "flaky")
	assert.Equal(t, lifecycle.Ineffective, r.Judgment)
	require.NotNil(t, r.Alert)
	assert.Equal(t, 3, r.Alert.Consecutive)
	assert.Equal(t, 0.55, r.NewConfidence, "alerts never change confidence")
	assert.Equal(t, 1, report.Summary.NeedsAttention)
}

func TestRun_EvidenceCapped(t *testing.T) {
	asset := fixtureAssets()[0]
	var facets []types.Facet
	for i := 0; i < 7; i++ {
		f := fixtureFacets()[0]
		f.SessionID = fmt.Sprintf("s%d", i)
		facets = append(facets, f)
	}
	r := resultFor(t, newValidator().Run([]*types.Asset{asset}, facets, nil), "flaky")
	assert.Len(t, r.MatchedSessions, 7)
	assert.Equal(t, []string{"s0", "s1", "s2", "s3", "s4"}, r.EvidenceSessions)
}
