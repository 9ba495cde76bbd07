package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/storage"
	"github.com/madness-retro/madness/internal/watch"
)

var watchDebounce time.Duration

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Re-run cleanup and inject whenever the asset stores change",
	Long: `Watch the memory directory. After each settled burst of writes to
genes.json, sops.json or prefs.json, remove rules of deprecated assets from
the instruction document and reconcile the injected rules. Runs once at
start, then until interrupted.`,
	Args: cobra.NoArgs,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().DurationVar(&watchDebounce, "debounce", watch.DefaultDebounce, "Quiet period before a sync")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	if info, err := os.Stat(env.memoryDir); err != nil || !info.IsDir() {
		return fmt.Errorf("%w: %s", storage.ErrMemoryDirNotFound, env.memoryDir)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := syncInstructions(ctx, nil); err != nil {
		env.logger.Warn("initial sync failed", zap.Error(err))
	}
	return watch.New(env.memoryDir, watchDebounce, syncInstructions, env.logger).Run(ctx)
}

// syncInstructions sweeps deprecated rules, then reconciles the region.
func syncInstructions(ctx context.Context, changed []string) error {
	swept, err := sweep(true)
	if err != nil {
		return fmt.Errorf("cleanup: %w", err)
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	injected, err := reconcile(false)
	if err != nil {
		return fmt.Errorf("inject: %w", err)
	}
	env.logger.Info("instructions synced",
		zap.Strings("changed", changed),
		zap.Strings("removed", swept.RemovedIDs),
		zap.Int("rules", injected.TotalRules),
		zap.Bool("written", injected.Written))
	return nil
}
