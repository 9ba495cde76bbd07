package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/instructions"
)

var cleanupApply bool

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove injected rules whose asset was deprecated",
	Long: `Scan the injected-rule region for rules whose asset is deprecated.

Without --apply the command only reports (with a diff preview). With --apply
the rules are removed, the remaining rules renumbered, and one deprecate event
per removed rule is logged. Rules whose asset no longer exists are reported
but left for the next inject.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().BoolVar(&cleanupApply, "apply", false, "Remove the stale rules")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	report, err := sweep(cleanupApply)
	if err != nil {
		return err
	}
	return env.render(cmd.OutOrStdout(), report, func(w io.Writer) error {
		return cleanupTable(w, report)
	})
}

func sweep(apply bool) (*instructions.SweepReport, error) {
	s := instructions.NewSweeper(env.assets(), env.events(), env.logger)
	if apply {
		return s.Apply(env.instructionPath)
	}
	return s.Scan(env.instructionPath)
}

func cleanupTable(w io.Writer, report *instructions.SweepReport) error {
	fmt.Fprintln(w, report.Message)
	rows := len(report.StaleRules) + len(report.Orphans)
	if rows > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "ASSET", "TYPE", "CONF", "FINDING")
		for _, r := range report.StaleRules {
			tbl.AddRow(r.AssetID, r.AssetType, fmt.Sprintf("%.2f", r.Confidence), env.palette.Judgment("deprecated"))
		}
		for _, r := range report.Orphans {
			tbl.AddRow(r.AssetID, r.AssetType, fmt.Sprintf("%.2f", r.Confidence), env.palette.Judgment("no_match")+" (no asset)")
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}
	if report.Applied {
		fmt.Fprintf(w, "Removed %d rules.\n", len(report.RemovedIDs))
	} else if report.Diff != "" {
		fmt.Fprintln(w)
		fmt.Fprint(w, report.Diff)
		fmt.Fprintln(w, "Re-run with --apply to remove them.")
	}
	return nil
}
