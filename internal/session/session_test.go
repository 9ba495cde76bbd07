package session

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/madness-retro/madness/internal/keyword"
	"github.com/madness-retro/madness/internal/match"
	"github.com/madness-retro/madness/internal/storage"
	"github.com/madness-retro/madness/internal/transcript"
	"github.com/madness-retro/madness/internal/types"
)

var sessionDay = time.Date(2026, 6, 2, 18, 0, 0, 0, time.UTC)

const sessionBody = "The flaky test kept failing in ci again today. " +
	"We decided to rerun it with a fixed seed and then isolate the shared state between cases."

func gene(id, trigger string, conf float64, steps ...string) *types.Asset {
	return &types.Asset{
		ID:         id,
		Type:       types.AssetGene,
		Title:      id,
		Trigger:    trigger,
		Confidence: conf,
		Status:     types.StatusForConfidence(conf),
		Version:    1,
		Body:       types.GeneBody{Method: types.StepsFromStrings(steps...)},
	}
}

func fixtureAssets() []*types.Asset {
	return []*types.Asset{
		gene("flaky", "flaky test failure in ci", 0.70, "rerun with fixed seed", "isolate shared state", "quarantine"),
		gene("docs", "flaky ci pipeline", 0.52, "write changelog entry", "notify reviewers"),
		gene("unrelated", "database migration rollout", 0.90, "take backup"),
		gene("retired", "flaky test failure in ci", 0.30, "rerun"),
	}
}

func writeTranscript(t *testing.T, dir, name, text string) string {
	t.Helper()
	var b strings.Builder
	for _, line := range []map[string]any{
		{"type": "user", "message": map[string]any{"role": "user", "content": text}},
		{"type": "assistant", "message": map[string]any{"content": []any{
			map[string]any{"type": "text", "text": strings.Repeat("filler words here. ", 30)},
		}}},
	} {
		data, err := json.Marshal(line)
		require.NoError(t, err)
		b.Write(data)
		b.WriteByte('\n')
	}
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}

type fixture struct {
	memDir     string
	transcript string
	repo       *storage.AssetRepository
	log        *storage.EvolutionLog
	logs       *observer.ObservedLogs
	validator  *Validator
}

func newFixture(t *testing.T, opts Options) *fixture {
	t.Helper()
	root := t.TempDir()
	memDir := filepath.Join(root, "memory")
	require.NoError(t, os.MkdirAll(memDir, 0o755))

	log := storage.NewEvolutionLog(memDir).WithClock(func() time.Time { return sessionDay })
	repo := storage.NewAssetRepository(memDir, storage.WithEvolutionLog(log))
	require.NoError(t, repo.Save(types.AssetGene, fixtureAssets()))

	core, logs := observer.New(zapcore.DebugLevel)
	v := New(repo, log, opts, zap.New(core)).WithClock(func() time.Time { return sessionDay })
	return &fixture{
		memDir:     memDir,
		transcript: writeTranscript(t, root, "session.jsonl", sessionBody),
		repo:       repo,
		log:        log,
		logs:       logs,
		validator:  v,
	}
}

func TestTriggerScore(t *testing.T) {
	session := keyword.Extract(sessionBody)

	fired, score, hit := TriggerScore("flaky test failure in ci", session, 0.5)
	assert.True(t, fired)
	assert.Equal(t, 0.75, score)
	assert.Equal(t, []string{"ci", "flaky", "test"}, hit)

	fired, score, _ = TriggerScore("database migration rollout", session, 0.5)
	assert.False(t, fired)
	assert.Zero(t, score)

	fired, _, hit = TriggerScore("", session, 0.5)
	assert.False(t, fired)
	assert.Nil(t, hit)
}

func TestCheckCompliance(t *testing.T) {
	session := keyword.Extract(sessionBody)
	opts := DefaultOptions()

	tests := []struct {
		name  string
		asset *types.Asset
		want  match.Compliance
	}{
		{"most steps followed", gene("a", "", 0.7, "rerun with fixed seed", "isolate shared state", "quarantine"), match.Compliant},
		{"no steps followed", gene("b", "", 0.7, "write changelog entry", "notify reviewers"), match.NonCompliant},
		{"between cutoffs", gene("c", "", 0.7, "rerun", "alpha", "beta"), match.Ambiguous},
		{"empty checklist", gene("d", "", 0.7), match.Ambiguous},
		{"pref overlap", &types.Asset{Type: types.AssetPref, Body: types.PrefBody{Preferred: "fixed seed", Rationale: "reproducible reruns"}}, match.Compliant},
		{"pref silent", &types.Asset{Type: types.AssetPref, Body: types.PrefBody{Preferred: "postgres", Rationale: "durable storage"}}, match.Ambiguous},
		{"pref without keywords", &types.Asset{Type: types.AssetPref, Body: types.PrefBody{}}, match.Ambiguous},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, CheckCompliance(tt.asset, session, opts))
		})
	}
}

func TestOptionsDelta(t *testing.T) {
	opts := DefaultOptions()
	assert.Equal(t, 0.02, opts.Delta(match.Compliant))
	assert.Equal(t, -0.05, opts.Delta(match.NonCompliant))
	assert.Zero(t, opts.Delta(match.Ambiguous))
}

func TestRun_CheckModeWritesNothing(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	res, ok := f.validator.Run(context.Background(), Input{TranscriptPath: f.transcript, Mode: ModeCheck})
	require.True(t, ok)
	assert.Equal(t, "2026-06-02", res.SessionDate)
	require.Len(t, res.TriggeredAssets, 2)

	flaky := res.TriggeredAssets[0]
	assert.Equal(t, "flaky", flaky.AssetID)
	assert.Equal(t, match.Compliant, flaky.Compliance)
	assert.Equal(t, 0.02, flaky.ConfidenceDelta)
	assert.Equal(t, 0.75, flaky.TriggerMatchScore)

	docs := res.TriggeredAssets[1]
	assert.Equal(t, "docs", docs.AssetID)
	assert.Equal(t, match.NonCompliant, docs.Compliance)
	assert.Equal(t, 0.67, docs.TriggerMatchScore)

	assert.Contains(t, res.Summary, "2 rules")
	assert.Empty(t, res.Warnings)

	stored, err := f.repo.Find("flaky")
	require.NoError(t, err)
	assert.Equal(t, 0.70, stored.Confidence)
	events, err := f.log.ReadAll()
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestRun_UpdateModeAppliesDeltas(t *testing.T) {
	f := newFixture(t, DefaultOptions())

	res, ok := f.validator.Run(context.Background(), Input{TranscriptPath: f.transcript, Mode: ModeUpdate})
	require.True(t, ok)

	flaky, err := f.repo.Find("flaky")
	require.NoError(t, err)
	assert.Equal(t, 0.72, flaky.Confidence)
	assert.Equal(t, 2, flaky.Version)

	docs, err := f.repo.Find("docs")
	require.NoError(t, err)
	assert.Equal(t, 0.47, docs.Confidence)
	assert.Equal(t, types.StatusDeprecated, docs.Status)

	require.Len(t, res.Warnings, 1)
	assert.Contains(t, res.Warnings[0], `"docs"`)
	assert.Equal(t, 1, f.logs.FilterMessage("asset nearing deprecation").Len())

	events, err := f.log.ReadAll()
	require.NoError(t, err)
	var inline []types.EvolutionEvent
	for _, e := range events {
		if e.Event == types.EventSessionValidate {
			inline = append(inline, e)
		}
	}
	require.Len(t, inline, 2)
	assert.Equal(t, "flaky", inline[0].AssetID)
	assert.Equal(t, "compliant", inline[0].DetailString("compliance"))
	assert.Equal(t, 0.70, inline[0].Details["confidence_from"])
	assert.Equal(t, 0.72, inline[0].Details["confidence_to"])
	assert.Len(t, events, 4, "each write also records an update event")
}

func TestRun_FailOpen(t *testing.T) {
	t.Run("short session", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		short := writeTranscript(t, t.TempDir(), "short.jsonl", "hi")
		f.validator.opts.MinLength = 5000

		res, ok := f.validator.Run(context.Background(), Input{TranscriptPath: short})
		assert.False(t, ok)
		assert.Nil(t, res)
		assert.Equal(t, 1, f.logs.FilterMessage("session validation skipped").Len())
	})

	t.Run("missing memory dir", func(t *testing.T) {
		repo := storage.NewAssetRepository(filepath.Join(t.TempDir(), "absent"))
		res, ok := New(repo, nil, DefaultOptions(), nil).Run(context.Background(), Input{})
		assert.False(t, ok)
		assert.Nil(t, res)
	})

	t.Run("no transcript", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		_, ok := f.validator.Run(context.Background(), Input{
			TranscriptsDir: t.TempDir(),
			ProjectDir:     "/nowhere",
		})
		assert.False(t, ok)
	})

	t.Run("corrupt store logs a warning", func(t *testing.T) {
		f := newFixture(t, DefaultOptions())
		require.NoError(t, os.WriteFile(filepath.Join(f.memDir, storage.GenesFile), []byte("{broken"), 0o644))

		_, ok := f.validator.Run(context.Background(), Input{TranscriptPath: f.transcript})
		assert.False(t, ok)
	})
}

func TestRun_FindsLatestTranscript(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	transcripts := t.TempDir()
	project := t.TempDir()
	key, err := transcript.ProjectKey(project)
	require.NoError(t, err)
	dir := filepath.Join(transcripts, key)
	require.NoError(t, os.MkdirAll(dir, 0o755))
	path := writeTranscript(t, dir, "latest.jsonl", sessionBody)

	res, ok := f.validator.Run(context.Background(), Input{
		TranscriptPath: filepath.Join(dir, "missing.jsonl"),
		TranscriptsDir: transcripts,
		ProjectDir:     project,
	})
	require.True(t, ok)
	assert.Equal(t, path, res.Transcript)
}

func TestRun_CancelledApplyKeepsReport(t *testing.T) {
	f := newFixture(t, DefaultOptions())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, ok := f.validator.Run(ctx, Input{TranscriptPath: f.transcript, Mode: ModeUpdate})
	require.True(t, ok)
	assert.Len(t, res.TriggeredAssets, 2)
	assert.Equal(t, 1, f.logs.FilterMessage("session confidence update incomplete").Len())

	stored, err := f.repo.Find("flaky")
	require.NoError(t, err)
	assert.Equal(t, 0.70, stored.Confidence)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeCheck, m)

	m, err = ParseMode("update")
	require.NoError(t, err)
	assert.Equal(t, ModeUpdate, m)

	_, err = ParseMode("write")
	assert.ErrorIs(t, err, ErrInvalidMode)
}

func TestRecovered(t *testing.T) {
	out := recovered(func() ([]string, error) { panic("store exploded") })
	require.Error(t, out.err)
	assert.Contains(t, out.err.Error(), "store exploded")
	assert.Empty(t, out.warnings)

	out = recovered(func() ([]string, error) { return []string{"low"}, nil })
	require.NoError(t, out.err)
	assert.Equal(t, []string{"low"}, out.warnings)
}
