package lifecycle

import (
	"fmt"
	"time"

	"github.com/madness-retro/madness/internal/types"
)

// Transition records one confidence write.
type Transition struct {
	AssetID       string       `json:"asset_id"`
	OldConfidence float64      `json:"old_confidence"`
	NewConfidence float64      `json:"new_confidence"`
	OldStatus     types.Status `json:"old_status"`
	NewStatus     types.Status `json:"new_status"`
	OldVersion    int          `json:"old_version"`
	NewVersion    int          `json:"new_version"`

	// StatusChanged indicates a promotion or demotion happened.
	StatusChanged bool `json:"status_changed"`

	// Reason explains the resulting status.
	Reason string `json:"reason"`
}

// NextConfidence is old + delta, rounded to 4 places and clamped to [0, 1].
func NextConfidence(old, delta float64) float64 {
	return types.ClampConfidence(old + delta)
}

// ApplyDelta writes a confidence change into a, re-deriving status and
// bumping the version by one. Positive deltas count as a validation, negative
// ones as a failure; both stamp the matching date with now.
func ApplyDelta(a *types.Asset, delta float64, now time.Time) *Transition {
	t := &Transition{
		AssetID:       a.ID,
		OldConfidence: a.Confidence,
		OldStatus:     a.Status,
		OldVersion:    a.Version,
	}

	a.Confidence = NextConfidence(a.Confidence, delta)
	a.Status = types.StatusForConfidence(a.Confidence)
	a.Version++

	today := now.UTC().Format(types.DateLayout)
	switch {
	case delta > 0:
		a.ValidatedCount++
		a.LastValidated = today
	case delta < 0:
		a.FailedCount++
		a.LastFailed = &today
	}

	t.NewConfidence = a.Confidence
	t.NewStatus = a.Status
	t.NewVersion = a.Version
	t.StatusChanged = t.OldStatus != t.NewStatus
	t.Reason = statusReason(a.Confidence)
	return t
}

func statusReason(c float64) string {
	switch types.StatusForConfidence(c) {
	case types.StatusActive:
		return fmt.Sprintf("confidence %.4f >= %.2f", c, types.ActiveThreshold)
	case types.StatusProvisional:
		return fmt.Sprintf("%.2f <= confidence %.4f < %.2f", types.ProvisionalThreshold, c, types.ActiveThreshold)
	default:
		return fmt.Sprintf("confidence %.4f < %.2f", c, types.ProvisionalThreshold)
	}
}
