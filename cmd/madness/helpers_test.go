package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
)

// newProject creates an empty project with memory/ and .retro/ and makes it
// the working directory. HOME points at an empty directory so no user config
// leaks in.
func newProject(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "memory"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".retro"), 0o755))
	t.Setenv("HOME", t.TempDir())
	t.Setenv("MADNESS_CONFIG", "")
	prevWd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(root))
	t.Cleanup(func() { _ = os.Chdir(prevWd) })
	return root
}

// resetFlags restores every flag in the tree to its default between runs.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

type cliResult struct {
	stdout string
	stderr string
	err    error
}

func runWithInput(t *testing.T, stdin string, args ...string) cliResult {
	t.Helper()
	resetFlags(rootCmd)
	env = nil

	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.Execute()
	return cliResult{stdout: out.String(), stderr: errOut.String(), err: err}
}

func run(t *testing.T, args ...string) cliResult {
	t.Helper()
	return runWithInput(t, "", args...)
}

// mustRun fails the test on error and decodes JSON output into v when v is non-nil.
func mustRun(t *testing.T, v any, args ...string) string {
	t.Helper()
	res := run(t, args...)
	require.NoError(t, res.err, "stderr: %s", res.stderr)
	if v != nil {
		require.NoError(t, json.Unmarshal([]byte(res.stdout), v), "stdout: %s", res.stdout)
	}
	return res.stdout
}

func readFile(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(data)
}

const flakyGene = `{"title":"Fix flaky tests","domain":["debug"],"trigger":"flaky test failure in ci",` +
	`"method":["rerun with fixed seed","isolate shared state"]}`

func facetJSON(t *testing.T, id string) string {
	t.Helper()
	data, err := json.Marshal(map[string]any{
		"session_id":              id,
		"date":                    "2026-03-01",
		"duration_min":            45,
		"goal":                    "fix flaky tests in ci",
		"goal_category":           "debug_fix",
		"outcome":                 "fully_achieved",
		"friction":                []string{"tool_misuse"},
		"loop_detected":           false,
		"loop_detail":             "",
		"key_decision":            "rerun with fixed seed",
		"learning":                "isolate shared state",
		"tools_used":              []string{"Bash"},
		"files_changed":           3,
		"domain_knowledge_gained": "test isolation",
		"ai_collab": map[string]string{
			"sycophancy": "", "logic_leap": "", "lazy_prompting": "",
			"automation_surrender": "", "anchoring_effect": "",
		},
		"extraction_confidence": 0.8,
	})
	require.NoError(t, err)
	return string(data)
}

func writeTranscript(t *testing.T, dir, text string) string {
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
	path := filepath.Join(dir, "session.jsonl")
	require.NoError(t, os.WriteFile(path, []byte(b.String()), 0o644))
	return path
}
