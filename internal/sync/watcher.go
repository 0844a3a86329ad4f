package sync

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/agentmem/substrate/internal/errs"
	"github.com/agentmem/substrate/internal/parser"
)

// Watcher turns filesystem events into sync calls. Events for one file
// are debounced so a burst of editor writes yields one sync.
type Watcher struct {
	orchestrator *Orchestrator
	root         string
	debounce     time.Duration
	logger       *slog.Logger
}

// NewWatcher creates a watcher over root.
func NewWatcher(o *Orchestrator, root string, logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		orchestrator: o,
		root:         root,
		debounce:     300 * time.Millisecond,
		logger:       logger,
	}
}

// Run watches until the context is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return errs.Wrap(errs.Internal, "create fsnotify watcher", err)
	}
	defer fsw.Close()

	if err := addRecursive(fsw, w.root); err != nil {
		return err
	}
	w.logger.Info("watching", "root", w.root)

	pending := map[string]fsnotify.Op{}
	timer := time.NewTimer(w.debounce)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Op&fsnotify.Create != 0 {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := addRecursive(fsw, event.Name); err != nil {
						w.logger.Warn("watch new directory", "path", event.Name, "error", err)
					}
					continue
				}
			}
			if _, ok := parser.DetectLanguage(event.Name); !ok {
				continue
			}
			pending[event.Name] |= event.Op
			timer.Reset(w.debounce)

		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("watcher error", "error", err)

		case <-timer.C:
			for path, op := range pending {
				w.dispatch(ctx, path, op)
			}
			pending = map[string]fsnotify.Op{}
		}
	}
}

func (w *Watcher) dispatch(ctx context.Context, path string, op fsnotify.Op) {
	action := ActionEdit
	switch {
	case op&(fsnotify.Remove|fsnotify.Rename) != 0:
		action = ActionDelete
	case op&fsnotify.Create != 0:
		action = ActionCreate
	}
	res, err := w.orchestrator.Sync(ctx, Request{Path: path, Action: action, Summary: "fs event"})
	if err != nil {
		if errs.Is(err, errs.Overloaded) {
			w.logger.Warn("watch: sync queue full, dropping event", "path", path)
			return
		}
		w.logger.Warn("watch: sync failed", "path", path, "error", err)
		return
	}
	if res.Ambiguous {
		w.logger.Warn("watch: ambiguous path", "path", path, "candidates", res.MatchingFiles)
	}
}

func addRecursive(fsw *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, entry os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !entry.IsDir() {
			return nil
		}
		name := entry.Name()
		if name == ".git" || name == "node_modules" || name == "vendor" {
			return filepath.SkipDir
		}
		return fsw.Add(path)
	})
}
