package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madness-retro/madness/internal/types"
)

var now = time.Date(2026, 4, 2, 12, 0, 0, 0, time.UTC)

func TestNextConfidence_AlwaysInRange(t *testing.T) {
	deltas := []float64{-1.5, -0.15, -0.10, -0.05, 0, 0.02, 0.05, 0.3, 2}
	for start := 0.0; start <= 1.0; start += 0.05 {
		for _, d := range deltas {
			got := NextConfidence(start, d)
			assert.GreaterOrEqual(t, got, 0.0)
			assert.LessOrEqual(t, got, 1.0)
		}
	}
}

func TestApplyDelta_Scenarios(t *testing.T) {
	t.Run("active stays active when validated", func(t *testing.T) {
		a := &types.Asset{ID: "a", Confidence: 0.90, Status: types.StatusActive, Version: 4, ValidatedCount: 2}
		tr := ApplyDelta(a, 0.05, now)

		assert.Equal(t, 0.95, a.Confidence)
		assert.Equal(t, types.StatusActive, a.Status)
		assert.Equal(t, 5, a.Version)
		assert.Equal(t, 3, a.ValidatedCount)
		assert.Equal(t, "2026-04-02", a.LastValidated)
		assert.False(t, tr.StatusChanged)
	})

	t.Run("provisional demoted by over scoping", func(t *testing.T) {
		a := &types.Asset{ID: "b", Confidence: 0.55, Status: types.StatusProvisional, Version: 1}
		tr := ApplyDelta(a, -0.10, now)

		assert.Equal(t, 0.45, a.Confidence)
		assert.Equal(t, types.StatusDeprecated, a.Status)
		assert.Equal(t, 1, a.FailedCount)
		require.NotNil(t, a.LastFailed)
		assert.Equal(t, "2026-04-02", *a.LastFailed)
		assert.True(t, tr.StatusChanged)
		assert.Equal(t, types.StatusProvisional, tr.OldStatus)
		assert.Equal(t, types.StatusDeprecated, tr.NewStatus)
	})

	t.Run("promotion to active", func(t *testing.T) {
		a := &types.Asset{Confidence: 0.83, Status: types.StatusProvisional}
		ApplyDelta(a, 0.02, now)
		assert.Equal(t, types.StatusActive, a.Status)
	})

	t.Run("clamped at one", func(t *testing.T) {
		a := &types.Asset{Confidence: 0.99, Status: types.StatusActive}
		ApplyDelta(a, 0.05, now)
		assert.Equal(t, 1.0, a.Confidence)
	})
}

func TestApplyDelta_StatusAlwaysDerived(t *testing.T) {
	for start := 0.0; start <= 1.0; start += 0.01 {
		for _, d := range []float64{-0.15, -0.05, 0, 0.02, 0.05} {
			a := &types.Asset{Confidence: start, Status: types.StatusActive, Version: 7}
			ApplyDelta(a, d, now)
			assert.Equal(t, types.StatusForConfidence(a.Confidence), a.Status)
			assert.Equal(t, 8, a.Version)
		}
	}
}
