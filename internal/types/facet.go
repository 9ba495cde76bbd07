package types

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Outcome is the recorded result of a session.
type Outcome string

const (
	OutcomeFullyAchieved     Outcome = "fully_achieved"
	OutcomePartiallyAchieved Outcome = "partially_achieved"
	OutcomeNotAchieved       Outcome = "not_achieved"
)

// Outcomes lists the valid outcomes.
var Outcomes = []Outcome{OutcomeFullyAchieved, OutcomePartiallyAchieved, OutcomeNotAchieved}

// GoalCategory classifies what a session set out to do.
type GoalCategory string

const (
	GoalImplement         GoalCategory = "implement"
	GoalRefineMethodology GoalCategory = "refine_methodology"
	GoalDebugFix          GoalCategory = "debug_fix"
	GoalExploreLearn      GoalCategory = "explore_learn"
	GoalReviewCalibrate   GoalCategory = "review_calibrate"
	GoalPlanDesign        GoalCategory = "plan_design"
	GoalVisualizeReport   GoalCategory = "visualize_report"
)

// GoalCategories lists the valid goal categories.
var GoalCategories = []GoalCategory{
	GoalImplement, GoalRefineMethodology, GoalDebugFix, GoalExploreLearn,
	GoalReviewCalibrate, GoalPlanDesign, GoalVisualizeReport,
}

// Friction values recorded against a session.
var Frictions = []string{
	"prompt_too_long", "classification_ambiguity", "serial_bottleneck",
	"data_architecture_mismatch", "scope_creep", "tool_misuse", "context_limit",
	"domain_knowledge_gap", "rework_from_poor_planning", "ai_dependency", "other",
}

// AICollab records behavioral flags about the collaboration. The last two
// fields are optional for older facets.
type AICollab struct {
	Sycophancy          string `json:"sycophancy"`
	LogicLeap           string `json:"logic_leap"`
	LazyPrompting       string `json:"lazy_prompting"`
	AutomationSurrender string `json:"automation_surrender,omitempty"`
	AnchoringEffect     string `json:"anchoring_effect,omitempty"`
}

// AIExecution records how faithfully the assistant executed instructions.
type AIExecution struct {
	ParamFidelity      string `json:"param_fidelity,omitempty"`
	SpecCompliance     string `json:"spec_compliance,omitempty"`
	FirstRoundAccuracy string `json:"first_round_accuracy,omitempty"`
	ReworkAttribution  string `json:"rework_attribution,omitempty"`
}

// Facet is a structured summary of one past session.
type Facet struct {
	SessionID             string       `json:"session_id"`
	ID                    string       `json:"id,omitempty"`
	Date                  string       `json:"date"`
	CreatedAt             string       `json:"created_at,omitempty"`
	DurationMin           float64      `json:"duration_min"`
	Goal                  string       `json:"goal"`
	GoalCategory          GoalCategory `json:"goal_category"`
	Outcome               Outcome      `json:"outcome"`
	Friction              StringList   `json:"friction"`
	LoopDetected          bool         `json:"loop_detected"`
	LoopDetail            string       `json:"loop_detail"`
	KeyDecision           string       `json:"key_decision"`
	Learning              string       `json:"learning"`
	ToolsUsed             []string     `json:"tools_used"`
	FilesChanged          float64      `json:"files_changed"`
	DomainKnowledgeGained string       `json:"domain_knowledge_gained"`
	AICollab              AICollab     `json:"ai_collab"`
	AIExecution           *AIExecution `json:"ai_execution,omitempty"`
	ExtractionConfidence  *float64     `json:"extraction_confidence,omitempty"`

	Decisions    LooseTexts `json:"decisions,omitempty"`
	Learnings    LooseTexts `json:"learnings,omitempty"`
	KeyDecisions LooseTexts `json:"key_decisions,omitempty"`
}

// Key identifies the facet: session_id, falling back to id.
func (f *Facet) Key() string {
	if f.SessionID != "" {
		return f.SessionID
	}
	return f.ID
}

// When returns the date used for review-period filtering.
func (f *Facet) When() string {
	if f.Date != "" {
		return f.Date
	}
	return f.CreatedAt
}

// DecodeFacets parses a facet document holding a single facet or a list.
func DecodeFacets(data []byte) ([]Facet, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []Facet
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("decode facet list: %w", err)
		}
		return list, nil
	}
	var one Facet
	if err := json.Unmarshal(trimmed, &one); err != nil {
		return nil, fmt.Errorf("decode facet: %w", err)
	}
	return []Facet{one}, nil
}

// LooseTexts is a list whose items may be strings or arbitrary JSON values.
// Non-string items are kept as their compact JSON text.
type LooseTexts []string

// UnmarshalJSON implements json.Unmarshaler. Non-list values decode as empty.
func (l *LooseTexts) UnmarshalJSON(data []byte) error {
	var items []json.RawMessage
	if err := json.Unmarshal(data, &items); err != nil {
		*l = nil
		return nil
	}
	out := make(LooseTexts, 0, len(items))
	for _, item := range items {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			out = append(out, s)
			continue
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, item); err != nil {
			out = append(out, string(item))
			continue
		}
		out = append(out, compact.String())
	}
	*l = out
	return nil
}
