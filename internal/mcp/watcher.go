package mcp

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Reloadable is an interface for components that can be reloaded.
type Reloadable interface {
	Reload(ctx context.Context) error
}

// FileWatcher reloads a component when a watched file changes.
// The parent directory is watched so atomic renames and SQLite journal files are seen.
type FileWatcher struct {
	reloadable   Reloadable
	watcher      *fsnotify.Watcher
	target       string
	debounceTime time.Duration
	logger       *slog.Logger
	stopCh       chan struct{}
	doneCh       chan struct{}
	startOnce    sync.Once
	stopOnce     sync.Once
}

// NewFileWatcher creates a watcher for path. Nothing is watched until Start.
func NewFileWatcher(reloadable Reloadable, path string, logger *slog.Logger) (*FileWatcher, error) {
	if logger == nil {
		logger = slog.Default()
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if err := watcher.Add(filepath.Dir(path)); err != nil {
		watcher.Close()
		return nil, err
	}

	return &FileWatcher{
		reloadable:   reloadable,
		watcher:      watcher,
		target:       filepath.Base(path),
		debounceTime: 500 * time.Millisecond,
		logger:       logger,
		stopCh:       make(chan struct{}),
		doneCh:       make(chan struct{}),
	}, nil
}

// Start begins watching for file changes.
func (fw *FileWatcher) Start(ctx context.Context) {
	fw.startOnce.Do(func() {
		go fw.watch(ctx)
	})
}

// Stop stops the file watcher. Safe to call more than once, or without Start.
func (fw *FileWatcher) Stop() {
	fw.stopOnce.Do(func() {
		close(fw.stopCh)
		started := true
		fw.startOnce.Do(func() { started = false })
		if started {
			<-fw.doneCh // Wait for goroutine to finish
		}
		fw.watcher.Close()
	})
}

// relevant reports whether an event touches the watched file or its journal.
func (fw *FileWatcher) relevant(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
		return false
	}
	return strings.HasPrefix(filepath.Base(event.Name), fw.target)
}

// watch is the main event loop with debouncing logic.
func (fw *FileWatcher) watch(ctx context.Context) {
	defer close(fw.doneCh)

	var debounceTimer *time.Timer
	reloadCh := make(chan struct{}, 1)
	stopTimer := func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}

	for {
		select {
		case <-ctx.Done():
			stopTimer()
			return

		case <-fw.stopCh:
			stopTimer()
			return

		case event, ok := <-fw.watcher.Events:
			if !ok {
				return
			}
			if !fw.relevant(event) {
				continue
			}
			stopTimer()
			debounceTimer = time.AfterFunc(fw.debounceTime, func() {
				// Non-blocking: one pending reload is enough
				select {
				case reloadCh <- struct{}{}:
				default:
				}
			})

		case <-reloadCh:
			fw.triggerReload(ctx)

		case err, ok := <-fw.watcher.Errors:
			if !ok {
				return
			}
			fw.logger.Warn("file watcher error", "error", err)
		}
	}
}

// triggerReload executes a reload of the reloadable component.
func (fw *FileWatcher) triggerReload(ctx context.Context) {
	start := time.Now()
	if err := fw.reloadable.Reload(ctx); err != nil {
		fw.logger.Warn("reload failed, keeping old graph", "error", err)
		return
	}
	fw.logger.Info("reloaded", "file", fw.target, "took", time.Since(start))
}
