// Package watch re-runs instruction maintenance when the asset stores change.
package watch

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/madness-retro/madness/internal/storage"
)

// DefaultDebounce batches the burst of events an atomic save produces.
const DefaultDebounce = 500 * time.Millisecond

// ErrAlreadyRunning is returned by a second concurrent Run.
var ErrAlreadyRunning = errors.New("watcher already running")

// SyncFunc is called once per settled batch with the changed store files.
type SyncFunc func(ctx context.Context, changed []string) error

// Watcher watches a memory directory for store file writes.
type Watcher struct {
	dir      string
	debounce time.Duration
	sync     SyncFunc
	logger   *zap.Logger
	running  chan struct{}
}

// New creates a watcher for memoryDir.
func New(memoryDir string, debounce time.Duration, sync SyncFunc, logger *zap.Logger) *Watcher {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Watcher{
		dir:      memoryDir,
		debounce: debounce,
		sync:     sync,
		logger:   logger,
		running:  make(chan struct{}, 1),
	}
}

// Run blocks until ctx is cancelled. Sync errors are logged and do not stop
// the loop. The evolution log is ignored so a sync that appends events does
// not trigger itself.
func (w *Watcher) Run(ctx context.Context) error {
	select {
	case w.running <- struct{}{}:
		defer func() { <-w.running }()
	default:
		return ErrAlreadyRunning
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer fw.Close()

	if err := fw.Add(w.dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.dir, err)
	}
	w.logger.Info("watching asset stores", zap.String("dir", w.dir), zap.Duration("debounce", w.debounce))

	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	pending := map[string]bool{}
	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !relevant(event) {
				continue
			}
			w.logger.Debug("store changed", zap.String("path", event.Name), zap.String("op", event.Op.String()))
			pending[filepath.Base(event.Name)] = true
			timer.Reset(w.debounce)

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watch error", zap.Error(err))

		case <-timer.C:
			changed := make([]string, 0, len(pending))
			for name := range pending {
				changed = append(changed, name)
			}
			sort.Strings(changed)
			clear(pending)
			if err := w.sync(ctx, changed); err != nil {
				w.logger.Warn("sync failed", zap.Strings("changed", changed), zap.Error(err))
			}
		}
	}
}

func relevant(event fsnotify.Event) bool {
	if !event.Has(fsnotify.Create) && !event.Has(fsnotify.Write) && !event.Has(fsnotify.Rename) {
		return false
	}
	return storage.IsStoreFile(event.Name) && filepath.Base(event.Name) != storage.EvolutionFile
}
