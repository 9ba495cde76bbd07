package lifecycle

import (
	"fmt"

	"github.com/madness-retro/madness/internal/types"
)

// DefaultEscalationThreshold is the failing streak that raises an alert.
const DefaultEscalationThreshold = 3

// Alert is advisory output attached to an asset that keeps failing. It never
// changes confidence by itself.
type Alert struct {
	Consecutive    int    `json:"consecutive"`
	Recommendation string `json:"recommendation"`
}

// ConsecutiveFailures counts the failing streak ending at current: current
// itself, then the asset's validate events from newest to oldest until the
// first one whose judgment is not failing. Other event kinds are ignored.
func ConsecutiveFailures(history []types.EvolutionEvent, assetID string, current Judgment) int {
	if !current.Failing() {
		return 0
	}
	streak := 1
	for i := len(history) - 1; i >= 0; i-- {
		e := history[i]
		if e.AssetID != assetID || e.Event != types.EventValidate {
			continue
		}
		if !Judgment(e.DetailString("judgment")).Failing() {
			break
		}
		streak++
	}
	return streak
}

// Escalate returns an alert when the failing streak reaches threshold.
func Escalate(history []types.EvolutionEvent, assetID string, current Judgment, threshold int) *Alert {
	if threshold <= 0 {
		threshold = DefaultEscalationThreshold
	}
	n := ConsecutiveFailures(history, assetID, current)
	if n < threshold {
		return nil
	}
	return &Alert{
		Consecutive:    n,
		Recommendation: fmt.Sprintf("%d consecutive ineffective/over_scoped judgments: deprecate or rewrite the rule", n),
	}
}

// SuggestedFix returns a remediation hint for judgments that indicate a
// badly written rule, or "" when none applies.
func SuggestedFix(j Judgment) string {
	switch j {
	case Ineffective:
		return "followed but the goal was missed: revise the method or steps"
	case OverScoped:
		return "sessions succeeded without it: narrow the trigger or add skip_when"
	}
	return ""
}
