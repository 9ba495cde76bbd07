package formatter

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/template"

	"github.com/madness-retro/madness/internal/lifecycle"
	"github.com/madness-retro/madness/internal/validate"
)

// MarkdownReport writes a validation report as a retro-ready markdown page.
func MarkdownReport(w io.Writer, r *validate.Report) error {
	tmpl, err := template.New("report").Funcs(templateFuncs()).Parse(reportTemplate)
	if err != nil {
		return fmt.Errorf("parse template: %w", err)
	}
	return tmpl.Execute(w, buildReportData(r))
}

type judgmentCount struct {
	Judgment lifecycle.Judgment
	Count    int
}

type reportData struct {
	*validate.Report
	Counts    []judgmentCount
	Attention []validate.Result
}

func buildReportData(r *validate.Report) *reportData {
	d := &reportData{Report: r}
	for j, n := range r.Summary.Judgments {
		d.Counts = append(d.Counts, judgmentCount{Judgment: j, Count: n})
	}
	sort.Slice(d.Counts, func(i, k int) bool {
		if d.Counts[i].Count != d.Counts[k].Count {
			return d.Counts[i].Count > d.Counts[k].Count
		}
		return d.Counts[i].Judgment < d.Counts[k].Judgment
	})
	for _, res := range r.Results {
		if res.Alert != nil || res.NeedsSemanticReview || res.Judgment.Failing() {
			d.Attention = append(d.Attention, res)
		}
	}
	return d
}

func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"conf": func(f float64) string { return fmt.Sprintf("%.2f", f) },
		"delta": func(f float64) string {
			if f == 0 {
				return "0"
			}
			return fmt.Sprintf("%+.2f", f)
		},
		"code": func(s string) string { return "`" + s + "`" },
		"join": strings.Join,
	}
}

const reportTemplate = `---
run_id: {{ .RunID }}
validated_at: {{ .ValidatedAt }}
{{- if .Since }}
since: {{ .Since }}
{{- end }}
---

# Asset validation {{ .ValidatedAt }}

{{ .TotalAssets }} assets checked against {{ .TotalFacets }} sessions.

| Judgment | Count |
|----------|-------|
{{- range .Counts }}
| {{ .Judgment }} | {{ .Count }} |
{{- end }}

## Results

| Asset | Judgment | Confidence | Delta | Evidence |
|-------|----------|------------|-------|----------|
{{- range .Results }}
| {{ code .AssetID }} | {{ .Judgment }} | {{ conf .CurrentConfidence }} → {{ conf .NewConfidence }} | {{ delta .SuggestedDelta }} | {{ join .EvidenceSessions ", " }} |
{{- end }}

{{- if .Attention }}

## Needs attention
{{ range .Attention }}
- {{ code .AssetID }} ({{ .Judgment }})
{{- if .Alert }}: {{ .Alert.Recommendation }}{{ end }}
{{- if .NeedsSemanticReview }} Only weak matches, review by hand.{{ end }}
{{- if .SuggestedFix }} {{ .SuggestedFix }}{{ end }}
{{- end }}
{{- end }}

{{- if .ValidatedHighlights }}

## Highlights
{{ range .ValidatedHighlights }}
- {{ code .AssetID }} {{ .Kind }}: {{ conf .From }} → {{ conf .To }}
{{- end }}
{{- end }}
`
