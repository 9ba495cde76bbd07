package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/madness-retro/madness/internal/config"
	"github.com/madness-retro/madness/internal/formatter"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long: `View madness configuration.

Configuration priority (highest to lowest):
  1. Command-line flags
  2. Environment variables (MADNESS_*)
  3. Project config (.madness/config.yaml, or $MADNESS_CONFIG / --config)
  4. Home config (~/.madness/config.yaml)
  5. Defaults

Environment variables use "__" between section and key:
  MADNESS_OUTPUT=json
  MADNESS_INJECT__MAX_RULES=5
  MADNESS_PATHS__TRANSCRIPTS_DIR=/data/transcripts`,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the effective configuration and where each value came from",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	rootCmd.AddCommand(configCmd)
}

type configView struct {
	Root    string            `json:"root"`
	Config  *config.Config    `json:"config"`
	Sources []config.Resolved `json:"sources"`
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	view := configView{Root: env.root, Config: env.cfg.Config, Sources: env.cfg.Sources()}
	return env.render(cmd.OutOrStdout(), view, func(w io.Writer) error {
		fmt.Fprintf(w, "Project root: %s\n", env.root)
		fmt.Fprintf(w, "Memory dir:   %s\n", env.memoryDir)
		fmt.Fprintf(w, "Retro dir:    %s\n", env.retroDir)
		fmt.Fprintf(w, "Instructions: %s\n", env.instructionPath)
		fmt.Fprintf(w, "Transcripts:  %s\n\n", env.transcriptsDir)
		if len(view.Sources) == 0 {
			fmt.Fprintln(w, "All values are defaults.")
			return nil
		}
		tbl := formatter.NewTable(w, "KEY", "VALUE", "SOURCE")
		for _, r := range view.Sources {
			tbl.AddRow(r.Key, fmt.Sprint(r.Value), string(r.Source))
		}
		return tbl.Render()
	})
}
