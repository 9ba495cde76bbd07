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

// SweepReport describes injected rules that should no longer be there.
type SweepReport struct {
	Path string `json:"path" yaml:"path"`

	// StaleRules are rules whose asset is deprecated.
	StaleRules []Rule `json:"stale_rules" yaml:"stale_rules"`

	// Orphans are rules whose asset no longer exists in any store. They are
	// reported only; the next reconcile drops them.
	Orphans []Rule `json:"orphans,omitempty" yaml:"orphans,omitempty"`

	Message    string   `json:"message" yaml:"message"`
	Applied    bool     `json:"applied" yaml:"applied"`
	RemovedIDs []string `json:"removed_ids,omitempty" yaml:"removed_ids,omitempty"`
	Diff       string   `json:"diff,omitempty" yaml:"diff,omitempty"`
}

// Sweeper finds and removes injected rules of deprecated assets.
type Sweeper struct {
	assets *storage.AssetRepository
	events *storage.EvolutionLog
	logger *zap.Logger
	now    func() time.Time
}

// NewSweeper creates a Sweeper. events receives one deprecate event per
// removed rule.
func NewSweeper(assets *storage.AssetRepository, events *storage.EvolutionLog, logger *zap.Logger) *Sweeper {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{assets: assets, events: events, logger: logger, now: time.Now}
}

// WithClock overrides the clock used for event dates.
func (s *Sweeper) WithClock(now func() time.Time) *Sweeper {
	s.now = now
	return s
}

// Scan reports stale and orphaned rules without touching anything. The
// report carries a preview diff of what Apply would write.
func (s *Sweeper) Scan(path string) (*SweepReport, error) {
	report, doc, err := s.scan(path)
	if err != nil || len(report.StaleRules) == 0 {
		return report, err
	}
	region, _ := doc.Region()
	text, err := doc.WithRegion(RemoveRules(region, staleKeys(report.StaleRules)))
	if err != nil {
		return nil, err
	}
	report.Diff = UnifiedDiff(path, doc.Text, text)
	return report, nil
}

// Apply removes stale rules from the document, renumbering the rest, and
// records one deprecate event per removed rule. Events are only written once
// the document has been replaced.
func (s *Sweeper) Apply(path string) (*SweepReport, error) {
	report, doc, err := s.scan(path)
	if err != nil || len(report.StaleRules) == 0 {
		return report, err
	}

	region, _ := doc.Region()
	text, err := doc.WithRegion(RemoveRules(region, staleKeys(report.StaleRules)))
	if err != nil {
		return nil, err
	}
	if _, err := doc.write(text, false); err != nil {
		return report, err
	}

	today := s.now().UTC().Format(types.DateLayout)
	for _, rule := range report.StaleRules {
		if s.events == nil {
			break
		}
		t, _ := types.ParseAssetType(rule.AssetType)
		_, err := s.events.Append(types.EvolutionEvent{
			Event:     types.EventDeprecate,
			AssetID:   rule.AssetID,
			AssetType: t,
			Details: map[string]any{
				"action":                    "claudemd_cleanup",
				"removed_from_instructions": true,
				"date":                      today,
				"previous_confidence":       rule.Confidence,
			},
		})
		if err != nil {
			s.logger.Warn("evolution append failed", zap.String("asset_id", rule.AssetID), zap.Error(err))
		}
	}

	report.Applied = true
	for _, rule := range report.StaleRules {
		report.RemovedIDs = append(report.RemovedIDs, rule.AssetID)
	}
	sort.Strings(report.RemovedIDs)
	report.RemovedIDs = slices.Compact(report.RemovedIDs)
	s.logger.Info("removed deprecated rules",
		zap.String("path", path),
		zap.Strings("asset_ids", report.RemovedIDs))
	return report, nil
}

func (s *Sweeper) scan(path string) (*SweepReport, *Document, error) {
	report := &SweepReport{Path: path, StaleRules: []Rule{}}

	if info, err := os.Stat(s.assets.Dir()); err != nil || !info.IsDir() {
		report.Message = "memory directory not found"
		return report, nil, nil
	}

	doc, err := ReadDocument(path)
	if err != nil {
		return nil, nil, err
	}
	if !doc.Exists {
		report.Message = "instruction document not found"
		return report, doc, nil
	}
	if _, err := doc.Region(); err != nil {
		report.Message = "no injected-rule region"
		return report, doc, nil
	}

	byKey := map[string]types.Status{}
	byID := map[string][]types.Status{}
	for _, a := range s.assets.LoadAll() {
		byKey[assetKey(string(a.Type), a.ID)] = a.Status
		byID[a.ID] = append(byID[a.ID], a.Status)
	}

	for _, rule := range doc.Rules() {
		var statuses []types.Status
		if _, err := types.ParseAssetType(rule.AssetType); err == nil {
			if st, ok := byKey[rule.Key()]; ok {
				statuses = []types.Status{st}
			}
		} else {
			// Header type unknown: any partition holding the id decides.
			statuses = byID[rule.AssetID]
		}
		switch {
		case len(statuses) == 0:
			report.Orphans = append(report.Orphans, rule)
		case slices.Contains(statuses, types.StatusDeprecated):
			report.StaleRules = append(report.StaleRules, rule)
		}
	}

	switch n := len(report.StaleRules); {
	case n > 0:
		report.Message = fmt.Sprintf("found %d deprecated rules in the instruction document", n)
	case len(report.Orphans) > 0:
		report.Message = fmt.Sprintf("no deprecated rules; %d rules have no backing asset", len(report.Orphans))
	default:
		report.Message = "nothing to clean up"
	}
	return report, doc, nil
}

func staleKeys(rules []Rule) map[string]bool {
	keys := make(map[string]bool, len(rules))
	for _, r := range rules {
		keys[r.Key()] = true
	}
	return keys
}

// RemoveRules drops the blocks whose Rule.Key is in keys, renumbers the
// remaining headers and collapses runs of blank lines.
func RemoveRules(region string, keys map[string]bool) string {
	var out []string
	skipping := false
	index := 0

	for _, line := range strings.Split(region, "\n") {
		if rule, ok := ParseHeader(line); ok {
			if keys[rule.Key()] {
				skipping = true
				continue
			}
			skipping = false
			index++
			out = append(out, fmt.Sprintf("# R%d [%s:%s, c:%s, v:%d]",
				index, rule.AssetType, rule.AssetID, rule.rawConfidence, rule.Version))
			continue
		}
		if skipping {
			if isMarker(line) {
				skipping = false
				out = append(out, line)
			}
			continue
		}
		out = append(out, line)
	}

	cleaned := make([]string, 0, len(out))
	prevEmpty := false
	for _, line := range out {
		empty := strings.TrimSpace(line) == ""
		if empty && prevEmpty {
			continue
		}
		cleaned = append(cleaned, line)
		prevEmpty = empty
	}
	return strings.Join(cleaned, "\n")
}
