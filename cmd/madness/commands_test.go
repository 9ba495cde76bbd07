package main

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/madness-retro/madness/internal/instructions"
)

type assetJSON struct {
	ID         string  `json:"id"`
	Confidence float64 `json:"confidence"`
	Status     string  `json:"status"`
	Version    int     `json:"version"`
}

type eventJSON struct {
	Event   string `json:"event"`
	AssetID string `json:"asset_id"`
}

func TestVersion(t *testing.T) {
	out := mustRun(t, nil, "version")
	assert.Contains(t, out, "madness version dev")
}

func TestAssetCommands(t *testing.T) {
	newProject(t)

	var created assetJSON
	mustRun(t, &created, "asset", "create", "--type", "gene", "--data", flakyGene, "-o", "json")
	assert.Equal(t, "fix-flaky-tests", created.ID)
	assert.Equal(t, 0.70, created.Confidence)
	assert.Equal(t, "provisional", created.Status)

	var second assetJSON
	mustRun(t, &second, "asset", "create", "--type", "gene", "--data", flakyGene, "-o", "json")
	assert.Equal(t, "fix-flaky-tests-2", second.ID)

	var updated struct {
		Asset   assetJSON      `json:"asset"`
		Changes map[string]any `json:"changes"`
	}
	mustRun(t, &updated, "asset", "update", "--id", "fix-flaky-tests", "--confidence", "0.9", "-o", "json")
	assert.Equal(t, "active", updated.Asset.Status)
	assert.Equal(t, 2, updated.Asset.Version)
	assert.Contains(t, updated.Changes, "confidence")

	var active []assetJSON
	mustRun(t, &active, "asset", "list", "--status", "active", "-o", "json")
	require.Len(t, active, 1)
	assert.Equal(t, "fix-flaky-tests", active[0].ID)

	var shown struct {
		Asset   assetJSON   `json:"asset"`
		History []eventJSON `json:"history"`
	}
	mustRun(t, &shown, "asset", "show", "fix-flaky-tests", "-o", "json")
	require.Len(t, shown.History, 2)
	assert.Equal(t, "create", shown.History[0].Event)
	assert.Equal(t, "update", shown.History[1].Event)

	out := mustRun(t, nil, "asset", "list")
	assert.Contains(t, out, "fix-flaky-tests-2")
	assert.Contains(t, out, "STATUS")

	res := run(t, "asset", "show", "missing")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "asset not found")

	res = run(t, "asset", "create", "--type", "widget", "--data", "{}")
	require.Error(t, res.err)
}

func TestAssetExportPortable(t *testing.T) {
	root := newProject(t)
	mustRun(t, nil, "asset", "create", "--type", "gene", "--data", flakyGene)
	mustRun(t, nil, "asset", "update", "--id", "fix-flaky-tests", "--confidence", "0.9")

	var view struct {
		Path   string         `json:"path"`
		Counts map[string]int `json:"counts"`
	}
	mustRun(t, &view, "asset", "export-portable", "-o", "json")
	assert.Equal(t, filepath.Join(root, "memory", "exports", "portable.json"), view.Path)
	assert.Equal(t, 1, view.Counts["genes"])
	assert.Contains(t, readFile(t, view.Path), `"original_confidence": 0.9`)
}

func TestFacetCommands(t *testing.T) {
	root := newProject(t)
	input := filepath.Join(t.TempDir(), "facet.json")
	require.NoError(t, os.WriteFile(input, []byte(facetJSON(t, "abc-123")), 0o600))

	var cached struct {
		Cached bool   `json:"cached"`
		Path   string `json:"path"`
	}
	mustRun(t, &cached, "facet", "cache", "--input", input, "-o", "json")
	assert.True(t, cached.Cached)
	assert.Equal(t, filepath.Join(root, ".retro", "facets", "abc-123.json"), cached.Path)

	var ids []string
	mustRun(t, &ids, "facet", "list-cached", "-o", "json")
	assert.Equal(t, []string{"abc-123"}, ids)

	var uncached []map[string]any
	mustRun(t, &uncached, "facet", "list-uncached", "-o", "json",
		"--sessions", `[{"session_id":"abc-123"},{"session_id":"zzz","turns":4}]`)
	require.Len(t, uncached, 1)
	assert.Equal(t, "zzz", uncached[0]["session_id"])

	var stats struct {
		TotalSessions int `json:"total_sessions"`
	}
	mustRun(t, &stats, "facet", "stats", "-o", "json")
	assert.Equal(t, 1, stats.TotalSessions)
}

func TestFacetValidate(t *testing.T) {
	newProject(t)

	res := runWithInput(t, facetJSON(t, "ok-1"), "facet", "validate", "-o", "json")
	require.NoError(t, res.err)
	assert.Contains(t, res.stdout, `"valid": true`)

	res = runWithInput(t, `{"session_id":"x"}`, "facet", "validate", "-o", "json")
	require.ErrorIs(t, res.err, errSilent)
	assert.Contains(t, res.stdout, `"valid": false`)

	res = runWithInput(t, `{"session_id":"x"}`, "facet", "cache", "-o", "json")
	require.ErrorIs(t, res.err, errSilent)
	assert.Contains(t, res.stdout, `"cached": false`)
}

func TestValidateCommand(t *testing.T) {
	root := newProject(t)
	mustRun(t, nil, "asset", "create", "--type", "gene", "--data", flakyGene)
	require.NoError(t, runWithInput(t, facetJSON(t, "s1"), "facet", "cache").err)

	type resultJSON struct {
		AssetID       string  `json:"asset_id"`
		Judgment      string  `json:"judgment"`
		NewConfidence float64 `json:"new_confidence"`
	}
	var dry struct {
		TotalFacets int            `json:"total_facets"`
		Results     []resultJSON   `json:"results"`
		Applied     map[string]any `json:"applied"`
	}
	mustRun(t, &dry, "validate", "-o", "json")
	assert.Equal(t, 1, dry.TotalFacets)
	require.Len(t, dry.Results, 1)
	assert.Equal(t, "validated", dry.Results[0].Judgment)
	assert.Equal(t, 0.75, dry.Results[0].NewConfidence)
	assert.Nil(t, dry.Applied)

	var before struct {
		Asset assetJSON `json:"asset"`
	}
	mustRun(t, &before, "asset", "show", "fix-flaky-tests", "-o", "json")
	assert.Equal(t, 0.70, before.Asset.Confidence, "dry run leaves the store alone")

	promPath := filepath.Join(root, "madness.prom")
	var applied struct {
		Applied struct {
			Updated int `json:"updated"`
			Events  int `json:"events"`
		} `json:"applied"`
	}
	mustRun(t, &applied, "validate", "--apply", "--metrics-textfile", promPath, "-o", "json")
	assert.Equal(t, 1, applied.Applied.Updated)
	assert.Equal(t, 1, applied.Applied.Events)
	assert.Contains(t, readFile(t, promPath), `madness_validation_judgments_total{judgment="validated"} 1`)

	var after struct {
		Asset assetJSON `json:"asset"`
	}
	mustRun(t, &after, "asset", "show", "fix-flaky-tests", "-o", "json")
	assert.Equal(t, 0.75, after.Asset.Confidence)

	md := mustRun(t, nil, "validate", "-o", "markdown")
	assert.Contains(t, md, "# Asset validation")

	res := run(t, "validate", "--since", "March")
	require.Error(t, res.err)
}

func TestInjectAndCleanup(t *testing.T) {
	root := newProject(t)
	doc := filepath.Join(root, "CLAUDE.md")
	require.NoError(t, os.WriteFile(doc, []byte("# Project notes\n"), 0o644))
	mustRun(t, nil, "asset", "create", "--type", "gene", "--data", flakyGene)

	out := mustRun(t, nil, "inject", "--dry-run")
	assert.Contains(t, out, "Dry run")
	assert.Equal(t, "# Project notes\n", readFile(t, doc))

	var first instructions.InjectReport
	mustRun(t, &first, "inject", "--backup", "-o", "json")
	assert.True(t, first.Written)
	assert.Equal(t, []string{"fix-flaky-tests"}, first.Rules)
	assert.Equal(t, doc+".bak", first.Backup)
	text := readFile(t, doc)
	assert.True(t, strings.HasPrefix(text, "# Project notes\n"))
	assert.Contains(t, text, instructions.MarkerStart)

	var second instructions.InjectReport
	mustRun(t, &second, "inject", "-o", "json")
	assert.False(t, second.Changed)

	mustRun(t, nil, "asset", "update", "--id", "fix-flaky-tests", "--confidence", "0.3")

	var scan instructions.SweepReport
	mustRun(t, &scan, "cleanup", "-o", "json")
	require.Len(t, scan.StaleRules, 1)
	assert.False(t, scan.Applied)
	assert.Equal(t, text, readFile(t, doc))

	var applied instructions.SweepReport
	mustRun(t, &applied, "cleanup", "--apply", "-o", "json")
	assert.True(t, applied.Applied)
	assert.Equal(t, []string{"fix-flaky-tests"}, applied.RemovedIDs)
	assert.NotContains(t, readFile(t, doc), "fix-flaky-tests")

	var events []eventJSON
	mustRun(t, &events, "evolution", "show", "--asset-id", "fix-flaky-tests", "-o", "json")
	require.NotEmpty(t, events)
	assert.Equal(t, "deprecate", events[len(events)-1].Event)
}

func TestSessionCommand(t *testing.T) {
	root := newProject(t)
	mustRun(t, nil, "asset", "create", "--type", "gene", "--data", flakyGene)
	body := "The flaky test kept failing in ci again today. " +
		"We decided to rerun it with a fixed seed and then isolate the shared state between cases."
	transcript := writeTranscript(t, t.TempDir(), body)

	var check struct {
		TriggeredAssets []struct {
			AssetID    string `json:"asset_id"`
			Compliance string `json:"compliance"`
		} `json:"triggered_assets"`
	}
	mustRun(t, &check, "session", "--session-file", transcript, "-o", "json")
	require.Len(t, check.TriggeredAssets, 1)
	assert.Equal(t, "fix-flaky-tests", check.TriggeredAssets[0].AssetID)
	assert.Equal(t, "compliant", check.TriggeredAssets[0].Compliance)

	mustRun(t, nil, "session", "--mode", "update", "--session-file", transcript)
	var shown struct {
		Asset assetJSON `json:"asset"`
	}
	mustRun(t, &shown, "asset", "show", "fix-flaky-tests", "-o", "json")
	assert.Equal(t, 0.72, shown.Asset.Confidence)

	t.Run("fails open", func(t *testing.T) {
		res := run(t, "session", "--mode", "sideways", "--session-file", transcript)
		require.NoError(t, res.err)
		assert.Empty(t, res.stdout)

		require.NoError(t, os.RemoveAll(filepath.Join(root, "memory")))
		res = run(t, "session", "--session-file", transcript, "--root", root)
		require.NoError(t, res.err)
		assert.Empty(t, res.stdout)
	})
}

func TestEvolutionCommands(t *testing.T) {
	newProject(t)

	var logged struct {
		ID      string         `json:"id"`
		Event   string         `json:"event"`
		Details map[string]any `json:"details"`
	}
	mustRun(t, &logged, "evolution", "log", "--event", "merge", "--asset-id", "a1",
		"--details", `{"into":"a2"}`, "-o", "json")
	assert.NotEmpty(t, logged.ID)
	assert.Equal(t, "a2", logged.Details["into"])

	res := run(t, "evolution", "log", "--event", "explode", "--asset-id", "a1")
	require.Error(t, res.err)

	res = run(t, "evolution", "log", "--event", "merge", "--asset-id", "a1", "--details", "[1]")
	require.Error(t, res.err)

	var events []eventJSON
	mustRun(t, &events, "evolution", "show", "-o", "json")
	require.Len(t, events, 1)

	out := mustRun(t, nil, "evolution", "show", "--limit", "5")
	assert.Contains(t, out, "merge")
}

func TestConfigShow(t *testing.T) {
	newProject(t)
	t.Setenv("MADNESS_INJECT__MAX_RULES", "4")

	var view struct {
		Config struct {
			Inject struct {
				MaxRules int `json:"max_rules"`
			} `json:"inject"`
		} `json:"config"`
		Sources []struct {
			Key    string `json:"key"`
			Source string `json:"source"`
		} `json:"sources"`
	}
	mustRun(t, &view, "config", "show", "-o", "json")
	assert.Equal(t, 4, view.Config.Inject.MaxRules)

	found := false
	for _, s := range view.Sources {
		if s.Key == "inject.max_rules" {
			found = true
			assert.Equal(t, "environment", s.Source)
		}
	}
	assert.True(t, found)

	res := run(t, "config", "show", "-o", "xml")
	require.Error(t, res.err)
}
