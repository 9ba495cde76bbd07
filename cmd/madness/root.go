package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/config"
	"github.com/madness-retro/madness/internal/formatter"
	"github.com/madness-retro/madness/internal/logging"
	"github.com/madness-retro/madness/pkg/project"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

var (
	// Global flags
	verbose  bool
	output   string
	cfgFile  string
	rootDir  string
	noColor  bool
	logLevel string
)

// errSilent ends a command with exit status 1 after it printed its own result.
var errSilent = errors.New("")

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "madness",
	Short: "Confidence lifecycle for learned coding assets",
	Long: `madness keeps learned assets (genes, SOPs, prefs) honest.

Core Commands:
  validate     Score every asset against cached session facets
  session      Check one finished session against the asset stores
  inject       Reconcile the injected rules in the instruction document
  cleanup      Remove rules whose asset was deprecated
  watch        Re-run cleanup and inject whenever the stores change

Stores:
  asset        Create, update, list and export assets
  facet        Validate and cache session facets
  evolution    Append to or read the evolution log`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return setup(cmd)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if env != nil {
			_ = logging.Sync(env.logger)
		}
	},
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errSilent) {
			fmt.Fprintln(os.Stderr, color.RedString("Error:"), err)
		}
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "table", "Output format (table, json, yaml, markdown)")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Config file (default: .madness/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&rootDir, "root", "", "Project root (default: nearest parent with memory/ or .retro/)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
}

// setup loads configuration and builds the shared environment.
func setup(cmd *cobra.Command) error {
	if path := strings.TrimSpace(cfgFile); path != "" {
		_ = os.Setenv(config.EnvConfig, path)
	}

	overrides := map[string]any{}
	flags := cmd.Flags()
	if flags.Changed("output") {
		overrides["output"] = output
	}
	if flags.Changed("verbose") {
		overrides["verbose"] = verbose
	}
	if flags.Changed("log-level") {
		overrides["log.level"] = logLevel
	}
	for key, v := range commandOverrides(cmd) {
		overrides[key] = v
	}

	loaded, err := config.Load(overrides)
	if err != nil {
		return err
	}

	level := loaded.Log.Level
	if loaded.Verbose && !flags.Changed("log-level") {
		level = "debug"
	}
	logger, err := logging.New(logging.Options{Level: level, Format: loaded.Log.Format, Output: cmd.ErrOrStderr()})
	if err != nil {
		return err
	}

	format, err := formatter.ParseFormat(loaded.Output)
	if err != nil {
		return err
	}

	root := project.RootOrCwd(rootDir)
	env = &environment{
		cfg:             loaded,
		logger:          logger,
		format:          format,
		palette:         formatter.NewPalette(!noColor && !color.NoColor),
		root:            root,
		memoryDir:       project.Resolve(root, loaded.Paths.MemoryDir),
		retroDir:        project.Resolve(root, loaded.Paths.RetroDir),
		instructionPath: project.Resolve(root, loaded.Paths.InstructionFile),
		transcriptsDir:  loaded.Paths.TranscriptsDir,
	}
	logger.Debug("configuration loaded",
		zap.String("root", root),
		zap.String("memory_dir", env.memoryDir),
		zap.String("output", string(format)))
	return nil
}

// configKeyAnnotation marks a command flag as an override of a config key.
const configKeyAnnotation = "madness/config-key"

// bindConfigFlag makes flag override key when the user sets it.
func bindConfigFlag(cmd *cobra.Command, flag, key string) {
	if err := cmd.Flags().SetAnnotation(flag, configKeyAnnotation, []string{key}); err != nil {
		panic(err)
	}
}

// commandOverrides collects the bound flags the user set.
func commandOverrides(cmd *cobra.Command) map[string]any {
	out := map[string]any{}
	cmd.Flags().Visit(func(f *pflag.Flag) {
		if keys := f.Annotations[configKeyAnnotation]; len(keys) == 1 {
			out[keys[0]] = f.Value.String()
		}
	})
	return out
}
