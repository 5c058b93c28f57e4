package application

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"github.com/eugenenazirov/layerconf/internal/ruleset"
	"github.com/eugenenazirov/layerconf/internal/storage"
)

// Watcher reloads rule-set files into the store when they change on disk.
// A file that fails to decode or compile is logged and the previously
// stored rule set stays active.
type Watcher struct {
	store  storage.Storage
	files  map[string]string
	logger *zap.Logger
	done   chan struct{}
}

// NewWatcher creates a watcher for files, which maps absolute file paths to
// the rule-set names they are stored under.
func NewWatcher(store storage.Storage, files map[string]string, logger *zap.Logger) *Watcher {
	copied := make(map[string]string, len(files))
	for path, name := range files {
		copied[filepath.Clean(path)] = name
	}
	return &Watcher{
		store:  store,
		files:  copied,
		logger: logger,
		done:   make(chan struct{}),
	}
}

// Start registers the watches and processes events in a goroutine until ctx
// is cancelled. Parent directories are watched so that editors replacing a
// file via rename are still observed.
func (w *Watcher) Start(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	dirs := make(map[string]struct{})
	for path := range w.files {
		dir := filepath.Dir(path)
		if _, ok := dirs[dir]; ok {
			continue
		}
		if err := fsw.Add(dir); err != nil {
			_ = fsw.Close()
			return fmt.Errorf("watch %s: %w", dir, err)
		}
		dirs[dir] = struct{}{}
	}

	go w.loop(ctx, fsw)
	return nil
}

// Done is closed once the event loop has exited.
func (w *Watcher) Done() <-chan struct{} {
	return w.done
}

func (w *Watcher) loop(ctx context.Context, fsw *fsnotify.Watcher) {
	defer close(w.done)
	defer fsw.Close()

	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			path := filepath.Clean(event.Name)
			if name, ok := w.files[path]; ok {
				w.reload(path, name)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			w.logger.Warn("rule-set watcher error", zap.Error(err))
		}
	}
}

func (w *Watcher) reload(path, name string) {
	if err := w.apply(path, name); err != nil {
		w.logger.Warn("rule-set reload failed, keeping previous version",
			zap.String("name", name),
			zap.String("path", path),
			zap.Error(err),
		)
		return
	}
	w.logger.Info("rule set reloaded", zap.String("name", name), zap.String("path", path))
}

// apply stores the file under name, even if the document now declares a
// different name, so a reload never creates or shadows another rule set.
func (w *Watcher) apply(path, name string) error {
	doc, err := ruleset.LoadFile(path)
	if err != nil {
		return err
	}
	compiled, err := doc.Compile()
	if err != nil {
		return err
	}
	if doc.Name != name {
		w.logger.Warn("rule-set document name changed, keeping the loaded name",
			zap.String("name", name),
			zap.String("document_name", doc.Name),
		)
	}
	return w.store.SetRuleSet(name, compiled)
}

func absPath(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolve path %s: %w", path, err)
	}
	return filepath.Clean(abs), nil
}
