package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/config"
	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/logging"
	"github.com/madness-retro/madness/internal/metrics"
	"github.com/madness-retro/madness/internal/session"
	"github.com/madness-retro/madness/pkg/project"
)

var (
	sessionMode        string
	sessionFile        string
	sessionTranscripts string
)

var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Check one finished session against the asset stores",
	Long: `Read a session transcript, find the assets whose trigger fired, and
grade whether the session followed them.

In check mode (default) nothing is written. In update mode each triggered
asset's confidence moves by +0.02 (compliant) or -0.05 (non-compliant).

This command is meant for end-of-session hooks: it always exits 0, and
prints nothing when there is nothing to report. Problems go to the log.

Examples:
  madness session
  madness session --mode update --session-file ~/.claude/projects/x/abc.jsonl`,
	Args: cobra.NoArgs,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := setup(cmd); err != nil {
			env = fallbackEnvironment(cmd, err)
		}
		return nil
	},
	RunE: runSession,
}

func init() {
	sessionCmd.Flags().StringVar(&sessionMode, "mode", string(session.ModeCheck), "check or update")
	sessionCmd.Flags().StringVar(&sessionFile, "session-file", "", "Transcript to check (default: latest for this project)")
	sessionCmd.Flags().StringVar(&sessionTranscripts, "transcripts-dir", "", "Directory of per-project transcript folders")
	bindConfigFlag(sessionCmd, "transcripts-dir", "paths.transcripts_dir")
	rootCmd.AddCommand(sessionCmd)
}

func runSession(cmd *cobra.Command, args []string) error {
	mode, err := session.ParseMode(sessionMode)
	if err != nil {
		env.logger.Warn("session validation skipped", zap.Error(err))
		return nil
	}

	v := session.New(env.assets(), env.events(), env.cfg.Session, env.logger)
	res, ok := v.Run(cmd.Context(), session.Input{
		TranscriptPath: sessionFile,
		TranscriptsDir: env.transcriptsDir,
		ProjectDir:     env.root,
		Mode:           mode,
	})
	if !ok {
		return nil
	}

	if path := env.cfg.Metrics.Textfile; path != "" {
		m := metrics.New()
		m.ObserveSession(res, time.Now())
		if err := m.WriteTextfile(path); err != nil {
			env.logger.Warn("session metrics not written", zap.Error(err))
		}
	}

	err = env.render(cmd.OutOrStdout(), res, func(w io.Writer) error {
		return sessionTable(w, res)
	})
	if err != nil {
		env.logger.Warn("session report not written", zap.Error(err))
	}
	return nil
}

func sessionTable(w io.Writer, res *session.Result) error {
	fmt.Fprintf(w, "%s\n", res.Summary)
	if len(res.TriggeredAssets) > 0 {
		fmt.Fprintln(w)
		tbl := formatter.NewTable(w, "ASSET", "TYPE", "SCORE", "DELTA", "COMPLIANCE")
		for _, t := range res.TriggeredAssets {
			tbl.AddRow(t.AssetID, string(t.AssetType), fmt.Sprintf("%.2f", t.TriggerMatchScore),
				fmt.Sprintf("%+.2f", t.ConfidenceDelta), env.palette.Judgment(string(t.Compliance)))
		}
		if err := tbl.Render(); err != nil {
			return err
		}
	}
	for _, warn := range res.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	return nil
}

// fallbackEnvironment runs the session check on defaults when configuration
// cannot be loaded.
func fallbackEnvironment(cmd *cobra.Command, cause error) *environment {
	loaded := &config.Loaded{Config: config.Default()}
	root := project.RootOrCwd(rootDir)
	logger, err := logging.New(logging.Options{Output: cmd.ErrOrStderr()})
	if err != nil {
		logger = zap.NewNop()
	}
	logger.Warn("configuration not loaded, using defaults", zap.Error(cause))
	return &environment{
		cfg:             loaded,
		logger:          logger,
		format:          formatter.FormatJSON,
		palette:         formatter.NewPalette(false),
		root:            root,
		memoryDir:       project.Resolve(root, loaded.Paths.MemoryDir),
		retroDir:        project.Resolve(root, loaded.Paths.RetroDir),
		instructionPath: project.Resolve(root, loaded.Paths.InstructionFile),
		transcriptsDir:  loaded.Paths.TranscriptsDir,
	}
}
