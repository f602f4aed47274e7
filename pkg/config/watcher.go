package config

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"
)

const defaultDebounce = 200 * time.Millisecond

// Watcher reloads the settings file when it changes on disk and hands
// every successfully loaded copy to a callback. The file's directory is
// watched so editors that replace the file by rename are noticed too.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	logger   *zap.Logger
	debounce time.Duration
	onChange func(*Adjustments)
}

// NewWatcher creates a watcher for path; call Run to start it
func NewWatcher(path string, logger *zap.Logger, onChange func(*Adjustments)) (*Watcher, error) {
	if path == "" {
		return nil, fmt.Errorf("config path must not be empty")
	}
	if onChange == nil {
		return nil, fmt.Errorf("onChange cannot be nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve config path: %w", err)
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		_ = fw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}

	return &Watcher{
		path:     abs,
		watcher:  fw,
		logger:   logger.Named("config"),
		debounce: defaultDebounce,
		onChange: onChange,
	}, nil
}

// Run processes file events until ctx is done, then releases the
// underlying watcher. Bursts of events within the debounce window cause a
// single reload.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.watcher.Close()

	var timer *time.Timer
	var pending <-chan time.Time
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-w.watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("Watch error", zap.Error(err))

		case <-pending:
			pending = nil
			w.reload()
		}
	}
}

func (w *Watcher) reload() {
	adj, err := LoadAdjustments(w.path)
	if err != nil {
		w.logger.Warn("Reload failed; keeping current settings",
			zap.String("path", w.path),
			zap.Error(err))
		return
	}
	w.logger.Info("Settings reloaded", zap.String("path", w.path))
	w.onChange(adj)
}
