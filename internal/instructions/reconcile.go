package instructions

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/storage"
	"github.com/madness-retro/madness/internal/types"
)

// ActionType names what happened to one asset during reconciliation.
type ActionType string

const (
	ActionNew       ActionType = "new"
	ActionMerge     ActionType = "merge"
	ActionUnchanged ActionType = "unchanged"
	ActionReplace   ActionType = "replace"
)

// Action is one entry of the reconciliation change log.
type Action struct {
	Type       ActionType `json:"type" yaml:"type"`
	AssetID    string     `json:"asset_id" yaml:"asset_id"`
	Position   int        `json:"position,omitempty" yaml:"position,omitempty"`
	OldVersion int        `json:"old_version,omitempty" yaml:"old_version,omitempty"`
	NewVersion int        `json:"new_version,omitempty" yaml:"new_version,omitempty"`
	ReplacedID string     `json:"replaced_id,omitempty" yaml:"replaced_id,omitempty"`
}

// Options controls reconciliation.
type Options struct {
	MaxRules      int     `yaml:"max_rules" json:"max_rules"`
	MinConfidence float64 `yaml:"min_confidence" json:"min_confidence"`
	Backup        bool    `yaml:"backup" json:"backup"`
}

// DefaultOptions injects at most ten rules.
func DefaultOptions() Options {
	return Options{
		MaxRules:      10,
		MinConfidence: types.ProvisionalThreshold,
	}
}

// Entry is an asset as it will be rendered.
type Entry struct {
	Asset      *types.Asset
	Version    int
	Confidence float64
}

// Candidates keeps injectable assets at or above minConfidence, highest
// confidence first, and returns at most limit of them.
func Candidates(assets []*types.Asset, minConfidence float64, limit int) []*types.Asset {
	out := make([]*types.Asset, 0, len(assets))
	for _, a := range assets {
		if a.Status.Injectable() && a.Confidence >= minConfidence {
			out = append(out, a)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	if limit >= 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// Merge folds candidates into the rules already injected. A known asset
// keeps the higher of its injected and stored confidence, and its version
// moves on only when what would be rendered differs. The result is sorted by
// confidence and cut to maxRules; cut assets are reported as replaced.
func Merge(existing map[string]Rule, candidates []*types.Asset, maxRules int) ([]Entry, []Action) {
	var actions []Action
	merged := make([]Entry, 0, len(candidates))
	seen := make(map[string]bool, len(candidates))

	for _, a := range candidates {
		if seen[a.ID] {
			continue
		}
		seen[a.ID] = true

		old, ok := existing[a.ID]
		if !ok {
			merged = append(merged, Entry{Asset: a, Version: 1, Confidence: a.Confidence})
			actions = append(actions, Action{Type: ActionNew, AssetID: a.ID, Position: len(merged)})
			continue
		}

		e := Entry{Asset: a, Version: old.Version, Confidence: max(a.Confidence, old.Confidence)}
		if sameRule(old, e) {
			actions = append(actions, Action{Type: ActionUnchanged, AssetID: a.ID, OldVersion: old.Version, NewVersion: old.Version})
		} else {
			e.Version = old.Version + 1
			actions = append(actions, Action{Type: ActionMerge, AssetID: a.ID, OldVersion: old.Version, NewVersion: e.Version})
		}
		merged = append(merged, e)
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return merged[i].Confidence > merged[j].Confidence
	})
	if maxRules >= 0 && len(merged) > maxRules {
		for _, d := range merged[maxRules:] {
			actions = append(actions, Action{Type: ActionReplace, AssetID: d.Asset.ID, ReplacedID: d.Asset.ID})
		}
		merged = merged[:maxRules]
	}
	return merged, actions
}

func sameRule(old Rule, e Entry) bool {
	return old.AssetType == string(e.Asset.Type) &&
		formatConfidence(old.Confidence) == formatConfidence(e.Confidence) &&
		slices.Equal(old.body, ruleBody(e.Asset))
}

func formatConfidence(c float64) string {
	return fmt.Sprintf("%.2f", c)
}

// ruleBody renders everything below a rule header. Step lists are cut to two
// lines so every rule stays short.
func ruleBody(a *types.Asset) []string {
	trigger := a.Trigger
	if trigger == "" {
		trigger = "condition_unspecified"
	}
	lines := []string{"IF " + trigger + ":"}

	if pref, ok := a.Pref(); ok {
		preferred, rationale := pref.Preferred, pref.Rationale
		if preferred == "" {
			preferred = "option_a"
		}
		if rationale == "" {
			rationale = "apply_preference"
		}
		lines = append(lines, fmt.Sprintf("    PREFER %s: %s", preferred, rationale))
	} else {
		lines = append(lines, summarizeSteps(a.Checklist())...)
	}

	if a.SkipWhen != "" {
		lines = append(lines, "# skip_when: "+a.SkipWhen)
	}
	if outcome := a.Outcome(); outcome != "" {
		lines = append(lines, "# "+outcome)
	}
	return lines
}

func summarizeSteps(steps types.Steps) []string {
	if len(steps) == 0 {
		return []string{"    APPLY standard_procedure"}
	}
	var lines []string
	for _, s := range steps[:min(2, len(steps))] {
		lines = append(lines, "    "+s.Text)
	}
	if len(steps) > 2 {
		lines[len(lines)-1] += fmt.Sprintf("  # ...and %d more steps", len(steps)-2)
	}
	return lines
}

// RenderRule renders one rule block, numbered index.
func RenderRule(index int, e Entry) string {
	header := fmt.Sprintf("# R%d [%s:%s, c:%s, v:%d]", index, e.Asset.Type, e.Asset.ID, formatConfidence(e.Confidence), e.Version)
	return header + "\n" + strings.Join(ruleBody(e.Asset), "\n") + "\n"
}

// Heading is the region title line.
func Heading(entries []Entry, date string) string {
	v := 1
	for _, e := range entries {
		v = max(v, e.Version)
	}
	return fmt.Sprintf("## Retro rule set (v%d, %s)", v, date)
}

// RenderRegion renders the full region, markers included.
func RenderRegion(heading string, entries []Entry) string {
	lines := []string{MarkerStart, heading, ""}
	for i, e := range entries {
		lines = append(lines, RenderRule(i+1, e))
	}
	lines = append(lines, MarkerEnd)
	return strings.Join(lines, "\n")
}

// regionHeading returns the heading line of an existing region.
func regionHeading(region string) (string, bool) {
	lines := strings.SplitN(region, "\n", 3)
	if len(lines) < 2 || !strings.HasPrefix(lines[1], "## ") {
		return "", false
	}
	return lines[1], true
}

// InjectReport is the change log of one reconciliation.
type InjectReport struct {
	Path       string   `json:"path" yaml:"path"`
	Actions    []Action `json:"actions" yaml:"actions"`
	TotalRules int      `json:"total_rules" yaml:"total_rules"`
	Rules      []string `json:"rules" yaml:"rules"`
	Changed    bool     `json:"changed" yaml:"changed"`
	Written    bool     `json:"written" yaml:"written"`
	Backup     string   `json:"backup,omitempty" yaml:"backup,omitempty"`
	Diff       string   `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Reconciler renders the asset stores into an instruction document.
type Reconciler struct {
	assets *storage.AssetRepository
	opts   Options
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler creates a Reconciler reading from assets.
func NewReconciler(assets *storage.AssetRepository, opts Options, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{assets: assets, opts: opts, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for the heading date.
func (r *Reconciler) WithClock(now func() time.Time) *Reconciler {
	r.now = now
	return r
}

// Reconcile merges the current stores into the document at path. With
// dryRun set nothing is written and the report carries a diff instead.
func (r *Reconciler) Reconcile(path string, dryRun bool) (*InjectReport, error) {
	if info, err := os.Stat(r.assets.Dir()); err != nil || !info.IsDir() {
		return nil, fmt.Errorf("%w: %s", storage.ErrMemoryDirNotFound, r.assets.Dir())
	}

	doc, err := ReadDocument(path)
	if err != nil {
		return nil, err
	}

	all := r.assets.LoadAll(types.StatusActive, types.StatusProvisional)
	candidates := Candidates(all, r.opts.MinConfidence, r.opts.MaxRules*2)
	entries, actions := Merge(RulesByID(doc.Rules()), candidates, r.opts.MaxRules)

	region := RenderRegion(Heading(entries, r.now().UTC().Format(types.DateLayout)), entries)
	if old, err := doc.Region(); err == nil {
		if heading, ok := regionHeading(old); ok && RenderRegion(heading, entries) == old {
			region = old
		}
	}

	text, err := doc.WithRegion(region)
	if err != nil {
		return nil, err
	}

	report := &InjectReport{
		Path:       path,
		Actions:    actions,
		TotalRules: len(entries),
		Rules:      make([]string, 0, len(entries)),
		Changed:    !doc.Exists || text != doc.Text,
	}
	if report.Actions == nil {
		report.Actions = []Action{}
	}
	for _, e := range entries {
		report.Rules = append(report.Rules, e.Asset.ID)
	}

	if dryRun {
		report.Diff = UnifiedDiff(path, doc.Text, text)
		return report, nil
	}
	if !report.Changed {
		r.logger.Debug("instruction document already current", zap.String("path", path))
		return report, nil
	}

	bak, err := doc.write(text, r.opts.Backup)
	report.Backup = bak
	if err != nil {
		return report, err
	}
	report.Written = true
	r.logger.Info("instruction document updated",
		zap.String("path", path),
		zap.Int("rules", report.TotalRules),
		zap.Int("actions", len(report.Actions)))
	return report, nil
}
