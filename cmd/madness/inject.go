package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/instructions"
)

var (
	injectDryRun  bool
	injectBackup  bool
	injectMax     int
	injectMinConf float64
)

var injectCmd = &cobra.Command{
	Use:   "inject",
	Short: "Reconcile the injected rules in the instruction document",
	Long: `Render the highest-confidence active and provisional assets into the
marked region of the instruction document (CLAUDE.md by default).

Rules already in the region are merged by asset ID: their version is bumped
only when the rendered rule or its confidence changed. When more than
--max-rules qualify, the lowest-confidence rules are replaced. Text outside
the markers is never touched; a document without markers gets a region
appended.

Examples:
  madness inject --dry-run
  madness inject --backup --max-rules 5`,
	Args: cobra.NoArgs,
	RunE: runInject,
}

func init() {
	injectCmd.Flags().BoolVar(&injectDryRun, "dry-run", false, "Show the diff without writing")
	injectCmd.Flags().BoolVar(&injectBackup, "backup", false, "Copy the document to <path>.bak before writing")
	injectCmd.Flags().IntVar(&injectMax, "max-rules", instructions.DefaultOptions().MaxRules, "Maximum number of injected rules")
	injectCmd.Flags().Float64Var(&injectMinConf, "min-confidence", instructions.DefaultOptions().MinConfidence, "Minimum confidence to inject")
	bindConfigFlag(injectCmd, "backup", "inject.backup")
	bindConfigFlag(injectCmd, "max-rules", "inject.max_rules")
	bindConfigFlag(injectCmd, "min-confidence", "inject.min_confidence")
	rootCmd.AddCommand(injectCmd)
}

func runInject(cmd *cobra.Command, args []string) error {
	report, err := reconcile(injectDryRun)
	if err != nil {
		return err
	}
	return env.render(cmd.OutOrStdout(), report, func(w io.Writer) error {
		return injectTable(w, report, injectDryRun)
	})
}

// reconcile runs the reconciler with the configured options.
func reconcile(dryRun bool) (*instructions.InjectReport, error) {
	r := instructions.NewReconciler(env.assets(), env.cfg.Inject, env.logger)
	report, err := r.Reconcile(env.instructionPath, dryRun)
	if err != nil {
		return nil, err
	}
	env.logger.Debug("reconciled instruction document",
		zap.String("path", report.Path),
		zap.Int("rules", report.TotalRules),
		zap.Bool("changed", report.Changed),
		zap.Bool("written", report.Written))
	return report, nil
}

func injectTable(w io.Writer, report *instructions.InjectReport, dryRun bool) error {
	if len(report.Actions) > 0 {
		tbl := formatter.NewTable(w, "POS", "ASSET", "VERSION", "ACTION")
		for _, a := range report.Actions {
			pos, ver := "", ""
			if a.Position > 0 {
				pos = strconv.Itoa(a.Position)
			}
			if a.NewVersion > 0 {
				ver = fmt.Sprintf("v%d", a.NewVersion)
				if a.OldVersion > 0 && a.OldVersion != a.NewVersion {
					ver = fmt.Sprintf("v%d -> v%d", a.OldVersion, a.NewVersion)
				}
			}
			action := string(a.Type)
			if a.ReplacedID != "" {
				action += " (" + a.ReplacedID + ")"
			}
			tbl.AddRow(pos, a.AssetID, ver, action)
		}
		if err := tbl.Render(); err != nil {
			return err
		}
		fmt.Fprintln(w)
	}

	switch {
	case dryRun && report.Changed:
		fmt.Fprint(w, report.Diff)
		fmt.Fprintln(w, "Dry run: no changes written.")
	case !report.Changed:
		fmt.Fprintf(w, "%s is up to date (%d rules).\n", report.Path, report.TotalRules)
	default:
		fmt.Fprintf(w, "Wrote %d rules to %s\n", report.TotalRules, report.Path)
		if report.Backup != "" {
			fmt.Fprintf(w, "Backup: %s\n", report.Backup)
		}
	}
	return nil
}
