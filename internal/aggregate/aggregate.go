// Package aggregate summarizes cached session facets.
package aggregate

import (
	"math"
	"sort"

	"github.com/madness-retro/madness/internal/types"
)

// FrictionTopN is how many friction kinds the summary ranks.
const FrictionTopN = 5

const unknown = "unknown"

// FrictionCount is one ranked friction kind.
type FrictionCount struct {
	Type  string `json:"type" yaml:"type"`
	Count int    `json:"count" yaml:"count"`
}

// AICollabSummary counts sessions with each collaboration flag set.
type AICollabSummary struct {
	SycophancyCount    int `json:"sycophancy_count" yaml:"sycophancy_count"`
	LogicLeapCount     int `json:"logic_leap_count" yaml:"logic_leap_count"`
	LazyPromptingCount int `json:"lazy_prompting_count" yaml:"lazy_prompting_count"`
}

// Stats is the facet summary.
type Stats struct {
	TotalSessions     int             `json:"total_sessions" yaml:"total_sessions"`
	ByGoalCategory    map[string]int  `json:"by_goal_category" yaml:"by_goal_category"`
	ByOutcome         map[string]int  `json:"by_outcome" yaml:"by_outcome"`
	ByDate            map[string]int  `json:"by_date" yaml:"by_date"`
	FrictionTop5      []FrictionCount `json:"friction_top5" yaml:"friction_top5"`
	LoopRate          float64         `json:"loop_rate" yaml:"loop_rate"`
	LoopSessions      []string        `json:"loop_sessions" yaml:"loop_sessions"`
	AICollabSummary   AICollabSummary `json:"ai_collab_summary" yaml:"ai_collab_summary"`
	ToolsDistribution map[string]int  `json:"tools_distribution" yaml:"tools_distribution"`
	AvgDurationMin    float64         `json:"avg_duration_min" yaml:"avg_duration_min"`
	TotalFilesChanged float64         `json:"total_files_changed" yaml:"total_files_changed"`
}

// Compute summarizes facets. An empty input yields zeroed stats with empty,
// non-nil collections.
func Compute(facets []types.Facet) *Stats {
	s := &Stats{
		TotalSessions:     len(facets),
		ByGoalCategory:    map[string]int{},
		ByOutcome:         map[string]int{},
		ByDate:            map[string]int{},
		FrictionTop5:      []FrictionCount{},
		LoopSessions:      []string{},
		ToolsDistribution: map[string]int{},
	}
	if len(facets) == 0 {
		return s
	}

	friction := newRanking()
	var duration float64
	for i := range facets {
		f := &facets[i]
		s.ByGoalCategory[orUnknown(string(f.GoalCategory))]++
		s.ByOutcome[orUnknown(string(f.Outcome))]++
		s.ByDate[orUnknown(f.Date)]++

		for _, fr := range f.Friction {
			friction.add(fr)
		}
		if f.LoopDetected {
			s.LoopSessions = append(s.LoopSessions, f.SessionID)
		}
		if f.AICollab.Sycophancy != "" {
			s.AICollabSummary.SycophancyCount++
		}
		if f.AICollab.LogicLeap != "" {
			s.AICollabSummary.LogicLeapCount++
		}
		if f.AICollab.LazyPrompting != "" {
			s.AICollabSummary.LazyPromptingCount++
		}
		for _, tool := range f.ToolsUsed {
			s.ToolsDistribution[tool]++
		}
		duration += f.DurationMin
		s.TotalFilesChanged += f.FilesChanged
	}

	s.FrictionTop5 = friction.top(FrictionTopN)
	n := float64(len(facets))
	s.LoopRate = round(float64(len(s.LoopSessions))/n, 2)
	s.AvgDurationMin = round(duration/n, 1)
	return s
}

func orUnknown(s string) string {
	if s == "" {
		return unknown
	}
	return s
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}

// ranking counts keys and remembers first-seen order for ties.
type ranking struct {
	counts map[string]int
	order  []string
}

func newRanking() *ranking {
	return &ranking{counts: map[string]int{}}
}

func (r *ranking) add(key string) {
	if _, ok := r.counts[key]; !ok {
		r.order = append(r.order, key)
	}
	r.counts[key]++
}

func (r *ranking) top(n int) []FrictionCount {
	out := make([]FrictionCount, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, FrictionCount{Type: k, Count: r.counts[k]})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Count > out[j].Count
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
