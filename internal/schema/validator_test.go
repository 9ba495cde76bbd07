package schema

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseFacet() map[string]any {
	return map[string]any{
		"session_id":              "abc-123",
		"date":                    "2026-03-01",
		"duration_min":            45,
		"goal":                    "Fix flaky test",
		"goal_category":           "debug_fix",
		"outcome":                 "fully_achieved",
		"friction":                []any{"tool_misuse"},
		"loop_detected":           false,
		"loop_detail":             "",
		"key_decision":            "pin the clock",
		"learning":                "inject time in tests",
		"tools_used":              []any{"Bash"},
		"files_changed":           3,
		"domain_knowledge_gained": "time handling",
		"ai_collab": map[string]any{
			"sycophancy":           "",
			"logic_leap":           "",
			"lazy_prompting":       "",
			"automation_surrender": "",
			"anchoring_effect":     "",
		},
		"extraction_confidence": 0.8,
		"ai_execution": map[string]any{
			"param_fidelity":       "",
			"spec_compliance":      "",
			"first_round_accuracy": "correct",
			"rework_attribution":   "",
		},
	}
}

func check(t *testing.T, facet map[string]any) Result {
	t.Helper()
	data, err := json.Marshal(facet)
	require.NoError(t, err)
	return NewValidator().Check(data)
}

func anyContains(list []string, subs ...string) bool {
	for _, s := range list {
		ok := true
		for _, sub := range subs {
			if !strings.Contains(s, sub) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

func TestCheck_ValidFacet(t *testing.T) {
	res := check(t, baseFacet())
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Empty(t, res.Errors)
	assert.Empty(t, res.Warnings)
}

func TestCheck_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(map[string]any)
		want   []string
	}{
		{"missing required", func(f map[string]any) { delete(f, "goal") }, []string{"goal"}},
		{"bad date", func(f map[string]any) { f["date"] = "03/01/2026" }, []string{"date"}},
		{"bad goal category", func(f map[string]any) { f["goal_category"] = "vibes" }, []string{"goal_category"}},
		{"bad outcome", func(f map[string]any) { f["outcome"] = "done" }, []string{"outcome"}},
		{"bad friction", func(f map[string]any) { f["friction"] = []any{"gremlins"} }, []string{"friction"}},
		{"wrong type", func(f map[string]any) { f["loop_detected"] = "no" }, []string{"loop_detected"}},
		{"missing collab key", func(f map[string]any) { delete(f["ai_collab"].(map[string]any), "logic_leap") }, []string{"logic_leap"}},
		{"confidence out of range", func(f map[string]any) { f["extraction_confidence"] = 1.5 }, []string{"extraction_confidence"}},
		{"execution not object", func(f map[string]any) { f["ai_execution"] = "bad" }, []string{"ai_execution"}},
		{"execution field type", func(f map[string]any) { f["ai_execution"].(map[string]any)["param_fidelity"] = 123 }, []string{"param_fidelity", "string"}},
		{"execution accuracy enum", func(f map[string]any) { f["ai_execution"].(map[string]any)["first_round_accuracy"] = "meh" }, []string{"first_round_accuracy"}},
		{"execution attribution enum", func(f map[string]any) { f["ai_execution"].(map[string]any)["rework_attribution"] = "fate" }, []string{"rework_attribution"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := baseFacet()
			tt.mutate(f)
			res := check(t, f)
			assert.False(t, res.Valid)
			assert.True(t, anyContains(res.Errors, tt.want...), "errors: %v", res.Errors)
		})
	}
}

func TestCheck_Warnings(t *testing.T) {
	f := baseFacet()
	delete(f["ai_collab"].(map[string]any), "anchoring_effect")
	delete(f, "extraction_confidence")
	f["ai_execution"] = map[string]any{"param_fidelity": "test"}
	f["learning"] = ""

	res := check(t, f)
	assert.True(t, res.Valid, "errors: %v", res.Errors)
	assert.Contains(t, res.Warnings, "ai_collab missing optional key: anchoring_effect")
	assert.Contains(t, res.Warnings, "missing optional field: extraction_confidence")
	assert.Contains(t, res.Warnings, "'learning' is empty")

	missing := 0
	for _, w := range res.Warnings {
		if strings.Contains(w, "ai_execution missing key") {
			missing++
		}
	}
	assert.Equal(t, 3, missing)
}

func TestCheck_MissingExecutionWarnsOnly(t *testing.T) {
	f := baseFacet()
	delete(f, "ai_execution")
	res := check(t, f)
	assert.True(t, res.Valid)
	assert.True(t, anyContains(res.Warnings, "ai_execution"))
}

func TestCheck_EmptyStringEnumsAllowed(t *testing.T) {
	f := baseFacet()
	f["ai_execution"].(map[string]any)["first_round_accuracy"] = ""
	assert.True(t, check(t, f).Valid)
}

func TestCheck_NotJSONOrNotObject(t *testing.T) {
	v := NewValidator()
	res := v.Check([]byte(`{nope`))
	assert.False(t, res.Valid)
	assert.True(t, anyContains(res.Errors, "invalid JSON"))

	res = v.Check([]byte(`[1,2]`))
	assert.False(t, res.Valid)
}

func TestValidate_ReturnsTypedError(t *testing.T) {
	err := NewValidator().Validate([]byte(`{}`))
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.ErrorIs(t, err, ErrInvalidFacet)
	assert.NotEmpty(t, verr.Errors)

	data, _ := json.Marshal(baseFacet())
	assert.NoError(t, NewValidator().Validate(data))
}
