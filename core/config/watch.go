package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounceWindow = 200 * time.Millisecond

// Watcher notifies on changes to the persona table and prompt library
// files so they can be reloaded without a restart.
type Watcher struct {
	fs       *fsnotify.Watcher
	logger   *slog.Logger
	onChange func(path string)
	stop     chan struct{}
}

// Watch starts watching paths and calls onChange with the changed file.
// Editors rewrite files in bursts, so events are debounced per path.
func Watch(logger *slog.Logger, onChange func(path string), paths ...string) (*Watcher, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	fs, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("config: start watcher: %w", err)
	}

	watched := make(map[string]bool, len(paths))
	for _, path := range paths {
		if path == "" {
			continue
		}
		abs, err := filepath.Abs(path)
		if err != nil {
			fs.Close()
			return nil, fmt.Errorf("config: resolve %s: %w", path, err)
		}
		watched[abs] = true
		// Watch the directory: editors replace files on save, which
		// drops the watch on the file itself.
		if err := fs.Add(filepath.Dir(abs)); err != nil {
			fs.Close()
			return nil, fmt.Errorf("config: watch %s: %w", path, err)
		}
	}

	w := &Watcher{
		fs:       fs,
		logger:   logger,
		onChange: onChange,
		stop:     make(chan struct{}),
	}
	go w.loop(watched)
	return w, nil
}

func (w *Watcher) loop(watched map[string]bool) {
	var (
		pending = make(map[string]bool)
		timer   *time.Timer
		fire    <-chan time.Time
	)

	for {
		select {
		case <-w.stop:
			return
		case event, ok := <-w.fs.Events:
			if !ok {
				return
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			abs, err := filepath.Abs(event.Name)
			if err != nil || !watched[abs] {
				continue
			}
			pending[abs] = true
			if timer == nil {
				timer = time.NewTimer(debounceWindow)
			} else {
				timer.Reset(debounceWindow)
			}
			fire = timer.C
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watch error", "error", err)
		case <-fire:
			for path := range pending {
				w.logger.Info("configuration file changed", "path", path)
				w.onChange(path)
				delete(pending, path)
			}
			fire = nil
		}
	}
}

// Close stops the watcher.
func (w *Watcher) Close() error {
	close(w.stop)
	return w.fs.Close()
}
