package validate

import (
	"fmt"
	"time"

	"github.com/madness-retro/madness/internal/lifecycle"
	"github.com/madness-retro/madness/internal/storage"
	"github.com/madness-retro/madness/internal/types"
)

// Applied summarizes what Apply persisted.
type Applied struct {
	RunID       string                  `json:"run_id" yaml:"run_id"`
	Updated     int                     `json:"updated" yaml:"updated"`
	Events      int                     `json:"events" yaml:"events"`
	Transitions []*lifecycle.Transition `json:"transitions" yaml:"transitions"`
	Missing     []string                `json:"missing,omitempty" yaml:"missing,omitempty"`
}

// Apply writes a report through the asset repository and the evolution log.
// Matched results with a non-zero delta update their asset; every result
// appends one validate or no_match event. Deltas apply to the stored
// confidence, so a report replayed against newer stores stays bounded.
func Apply(repo *storage.AssetRepository, log *storage.EvolutionLog, report *Report, now time.Time) (*Applied, error) {
	out := &Applied{RunID: report.RunID, Transitions: []*lifecycle.Transition{}}

	partitions := map[types.AssetType][]*types.Asset{}
	for _, t := range types.AssetTypes {
		assets, err := repo.Load(t)
		if err != nil {
			return nil, err
		}
		partitions[t] = assets
	}

	dirty := map[types.AssetType]bool{}
	applied := map[string]*lifecycle.Transition{}
	for i := range report.Results {
		res := &report.Results[i]
		if !res.Matched() || res.SuggestedDelta == 0 {
			continue
		}
		asset := findIn(partitions[res.AssetType], res.AssetID)
		if asset == nil {
			out.Missing = append(out.Missing, res.AssetID)
			continue
		}
		tr := lifecycle.ApplyDelta(asset, res.SuggestedDelta, now)
		out.Transitions = append(out.Transitions, tr)
		applied[key(res.AssetType, res.AssetID)] = tr
		dirty[res.AssetType] = true
		out.Updated++
	}

	for _, t := range types.AssetTypes {
		if !dirty[t] {
			continue
		}
		if err := repo.Save(t, partitions[t]); err != nil {
			return out, fmt.Errorf("apply %s updates: %w", t, err)
		}
	}

	for i := range report.Results {
		res := &report.Results[i]
		if _, err := log.Append(eventFor(report, res, applied)); err != nil {
			return out, err
		}
		out.Events++
	}
	return out, nil
}

func eventFor(report *Report, res *Result, applied map[string]*lifecycle.Transition) types.EvolutionEvent {
	if !res.Matched() {
		return types.EvolutionEvent{
			Event:     types.EventNoMatch,
			AssetID:   res.AssetID,
			AssetType: res.AssetType,
			Details: map[string]any{
				"run_id":     report.RunID,
				"judgment":   string(res.Judgment),
				"confidence": res.CurrentConfidence,
			},
		}
	}

	before, final := res.CurrentConfidence, res.CurrentConfidence
	if tr, ok := applied[key(res.AssetType, res.AssetID)]; ok {
		before, final = tr.OldConfidence, tr.NewConfidence
	}
	details := map[string]any{
		"run_id":            report.RunID,
		"judgment":          string(res.Judgment),
		"compliance":        string(res.Compliance),
		"compliance_rate":   res.ComplianceRate,
		"outcome":           string(res.Outcome),
		"trigger_score":     res.TriggerScore,
		"delta":             res.SuggestedDelta,
		"confidence_before": before,
		"confidence_after":  final,
		"evidence_sessions": res.EvidenceSessions,
	}
	if res.ExplorationExempt {
		details["exploration_exempt"] = true
	}
	if res.NeedsSemanticReview {
		details["needs_semantic_review"] = true
	}
	if res.Alert != nil {
		details["alert"] = res.Alert.Recommendation
	}
	return types.EvolutionEvent{
		Event:     types.EventValidate,
		AssetID:   res.AssetID,
		AssetType: res.AssetType,
		Details:   details,
	}
}

func findIn(assets []*types.Asset, id string) *types.Asset {
	for _, a := range assets {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func key(t types.AssetType, id string) string {
	return string(t) + "/" + id
}
