package main

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/metrics"
	"github.com/madness-retro/madness/internal/storage"
	"github.com/madness-retro/madness/internal/validate"
)

var (
	validateApply   bool
	validateSince   string
	validateMetrics string
)

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Score every asset against cached session facets",
	Long: `Match every active and provisional asset against the cached facets,
classify compliance, and judge the asset by the sessions' outcomes.

Without --apply nothing is written: the report shows the suggested
confidence changes. With --apply each non-zero change is written through the
asset stores and every result is recorded in the evolution log.

Examples:
  madness validate
  madness validate --since 2026-04-01 -o markdown
  madness validate --apply --metrics-textfile /var/lib/node_exporter/madness.prom`,
	Args: cobra.NoArgs,
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVar(&validateApply, "apply", false, "Write confidence changes and log events")
	validateCmd.Flags().StringVar(&validateSince, "since", "", "Only facets dated on or after YYYY-MM-DD")
	validateCmd.Flags().StringVar(&validateMetrics, "metrics-textfile", "", "Write Prometheus metrics to this file")
	bindConfigFlag(validateCmd, "metrics-textfile", "metrics.textfile")
	rootCmd.AddCommand(validateCmd)
}

type validateView struct {
	*validate.Report
	Applied *validate.Applied `json:"applied,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	if validateSince != "" {
		if _, err := time.Parse("2006-01-02", validateSince); err != nil {
			return fmt.Errorf("invalid --since %q: want YYYY-MM-DD", validateSince)
		}
	}
	if _, err := os.Stat(env.memoryDir); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", storage.ErrMemoryDirNotFound, env.memoryDir)
	}

	repo := env.assets()
	log := env.events()
	facets, err := env.facets().Load(validateSince)
	if err != nil {
		return err
	}
	history, err := log.ReadAll()
	if err != nil {
		return err
	}

	report := validate.New(env.cfg.ValidateOptions()).Run(repo.LoadAll(), facets, history)
	report.Since = validateSince
	env.logger.Info("validation finished",
		zap.String("run_id", report.RunID),
		zap.Int("assets", report.TotalAssets),
		zap.Int("facets", report.TotalFacets),
		zap.Int("needs_attention", report.Summary.NeedsAttention))

	view := validateView{Report: report}
	if validateApply {
		applied, err := validate.Apply(repo, log, report, time.Now())
		if err != nil {
			return err
		}
		view.Applied = applied
		if len(applied.Missing) > 0 {
			env.logger.Warn("assets vanished before apply", zap.Strings("asset_ids", applied.Missing))
		}
	}

	if path := env.cfg.Metrics.Textfile; path != "" {
		m := metrics.New()
		m.ObserveReport(report, time.Now())
		if err := m.WriteTextfile(path); err != nil {
			return err
		}
	}

	w := cmd.OutOrStdout()
	if env.format == formatter.FormatMarkdown {
		return formatter.MarkdownReport(w, report)
	}
	return env.render(w, view, func(w io.Writer) error {
		return validateTable(w, &view)
	})
}

func validateTable(w io.Writer, v *validateView) error {
	fmt.Fprintf(w, "Validated %d assets against %d sessions (%s)\n\n", v.TotalAssets, v.TotalFacets, v.ValidatedAt)
	if len(v.Results) > 0 {
		tbl := formatter.NewTable(w, "ASSET", "MATCHES", "COMPLIANCE", "CONFIDENCE", "JUDGMENT")
		tbl.SetMaxWidth(0, 32)
		for _, r := range v.Results {
			tbl.AddRow(r.AssetID,
				fmt.Sprintf("%d/%d", r.HighMatches, len(r.MatchedSessions)),
				string(r.Compliance),
				fmt.Sprintf("%.2f -> %.2f", r.CurrentConfidence, r.NewConfidence),
				env.palette.Judgment(string(r.Judgment)))
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}
	for _, r := range v.Results {
		if r.Alert != nil {
			fmt.Fprintf(w, "\n! %s: %s", r.AssetID, r.Alert.Recommendation)
		}
	}
	if v.Summary.NeedsAttention > 0 {
		fmt.Fprintf(w, "\n%d assets need attention.\n", v.Summary.NeedsAttention)
	}
	if v.Applied != nil {
		fmt.Fprintf(w, "Applied: %d assets updated, %d events logged.\n", v.Applied.Updated, v.Applied.Events)
	} else if len(v.Results) > 0 {
		fmt.Fprintln(w, "Dry run: re-run with --apply to write these changes.")
	}
	return nil
}
