package instructions

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseHeader(t *testing.T) {
	tests := []struct {
		line string
		ok   bool
		want Rule
	}{
		{"# R1 [gene:flaky-tests, c:0.85, v:2]", true, Rule{AssetType: "gene", AssetID: "flaky-tests", Confidence: 0.85, Version: 2}},
		{"  #R12 [pref: spaced id , c:0.5, v:10]  trailing", true, Rule{AssetType: "pref", AssetID: "spaced id", Confidence: 0.5, Version: 10}},
		{"# R1 [gene:测试-规则, c:1.00, v:1]", true, Rule{AssetType: "gene", AssetID: "测试-规则", Confidence: 1, Version: 1}},
		{"# R1 gene:x c:0.1 v:1", false, Rule{}},
		{"IF something:", false, Rule{}},
		{"# R1 [gene:x, c:1.2.3, v:1]", false, Rule{}},
	}
	for _, tt := range tests {
		t.Run(tt.line, func(t *testing.T) {
			got, ok := ParseHeader(tt.line)
			require.Equal(t, tt.ok, ok)
			if !ok {
				return
			}
			assert.Equal(t, tt.want.AssetType, got.AssetType)
			assert.Equal(t, tt.want.AssetID, got.AssetID)
			assert.Equal(t, tt.want.Confidence, got.Confidence)
			assert.Equal(t, tt.want.Version, got.Version)
		})
	}
}

const sampleRegion = MarkerStart + `
## Retro rule set (v3, 2026-07-01)

# R1 [gene:keep, c:0.90, v:1]
IF a:
    APPLY standard_procedure

# R2 [gene:gone, c:0.70, v:3]
IF b:
    step one
    step two  # ...and 2 more steps
# skip_when: never

` + MarkerEnd

func TestParseRules(t *testing.T) {
	rules := ParseRules(sampleRegion)
	require.Len(t, rules, 2)

	assert.Equal(t, "keep", rules[0].AssetID)
	assert.Equal(t, "IF a:\n    APPLY standard_procedure", rules[0].Body())
	assert.Equal(t, "gone", rules[1].AssetID)
	assert.Equal(t, 3, rules[1].Version)
	assert.Equal(t, "IF b:\n    step one\n    step two  # ...and 2 more steps\n# skip_when: never", rules[1].Body())

	byID := RulesByID(rules)
	assert.Contains(t, byID, "keep")
	assert.Contains(t, byID, "gone")
}

func TestDocument_WithRegion(t *testing.T) {
	region := MarkerStart + "\nnew\n" + MarkerEnd

	t.Run("replaces existing region only", func(t *testing.T) {
		doc := ParseDocument("# Title\n\nintro\n" + MarkerStart + "\nold\n" + MarkerEnd + "\noutro\n")
		got, err := doc.WithRegion(region)
		require.NoError(t, err)
		assert.Equal(t, "# Title\n\nintro\n"+region+"\noutro\n", got)
	})

	t.Run("appends when markers are missing", func(t *testing.T) {
		doc := ParseDocument("# Title\n\nhand written\n\n\n")
		got, err := doc.WithRegion(region)
		require.NoError(t, err)
		assert.Equal(t, "# Title\n\nhand written\n\n"+region+"\n", got)
	})

	t.Run("rejects markers out of order", func(t *testing.T) {
		doc := ParseDocument(MarkerEnd + "\n" + MarkerStart)
		_, err := doc.WithRegion(region)
		assert.ErrorIs(t, err, ErrMarkersOutOfOrder)
	})

	t.Run("missing file becomes the region", func(t *testing.T) {
		doc, err := ReadDocument(filepath.Join(t.TempDir(), "AGENTS.md"))
		require.NoError(t, err)
		assert.False(t, doc.Exists)
		_, err = doc.Region()
		assert.ErrorIs(t, err, ErrMarkersNotFound)

		got, err := doc.WithRegion(region)
		require.NoError(t, err)
		assert.Equal(t, region+"\n", got)
	})
}

func TestReadDocument(t *testing.T) {
	path := filepath.Join(t.TempDir(), "doc.md")
	require.NoError(t, os.WriteFile(path, []byte("x\n"+sampleRegion+"\n"), 0o644))

	doc, err := ReadDocument(path)
	require.NoError(t, err)
	assert.True(t, doc.Exists)
	region, err := doc.Region()
	require.NoError(t, err)
	assert.Equal(t, sampleRegion, region)
	assert.Len(t, doc.Rules(), 2)
}
