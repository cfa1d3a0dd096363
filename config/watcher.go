package config

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// Watcher reloads the config file when it changes and swaps the result
// into the holder. The parent directory is watched so editors that
// replace the file on save are still seen.
type Watcher struct {
	path    string
	holder  *Holder
	watcher *fsnotify.Watcher
	done    chan struct{}

	mu      sync.Mutex
	started bool
}

// NewWatcher creates a watcher for the given config path.
func NewWatcher(path string, holder *Holder) (*Watcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}

	return &Watcher{
		path:    filepath.Clean(path),
		holder:  holder,
		watcher: fsWatcher,
		done:    make(chan struct{}),
	}, nil
}

// Start begins watching. Reloads happen on write or create events for
// the config file itself.
func (w *Watcher) Start() error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	slog.Info("Watching config file", "path", w.path)

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	go w.loop()
	return nil
}

// Stop closes the watcher and waits for the event loop to exit. Safe to
// call when Start never ran or failed, and safe to call repeatedly.
func (w *Watcher) Stop() {
	w.mu.Lock()
	started := w.started
	w.started = false
	w.mu.Unlock()

	if err := w.watcher.Close(); err != nil {
		slog.Error("Failed to close config watcher", "error", err)
	}
	if started {
		<-w.done
	}
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.reload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Config watcher error", "error", err)
		}
	}
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("Config reload failed, keeping previous configuration",
			"path", w.path,
			"error", err)
		return
	}

	w.holder.Swap(cfg)
	slog.Info("Config reloaded",
		"path", w.path,
		"maxVideoDuration", cfg.MaxVideoDuration,
		"localEnabled", cfg.Backends.LocalEnabled,
		"openaiEnabled", cfg.Backends.OpenAIEnabled,
		"cloudEnabled", cfg.Backends.CloudEnabled)
}
