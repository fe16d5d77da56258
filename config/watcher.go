package config

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/threadline/threadline/errors"
	"github.com/threadline/threadline/logger"
)

// ReloadCallback receives the freshly loaded config after a file change.
type ReloadCallback func(*Config) error

// Watcher watches a config file and re-reads it on change, debouncing the
// rapid event bursts editors produce on save.
type Watcher struct {
	configPath     string
	watcher        *fsnotify.Watcher
	debouncePeriod time.Duration

	mu            sync.RWMutex
	callbacks     []ReloadCallback
	debounceTimer *time.Timer
}

// NewWatcher creates a watcher for the given config file.
func NewWatcher(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}

	if err := fsw.Add(configPath); err != nil {
		fsw.Close()
		return nil, errors.Wrapf(err, "failed to watch config file %s", configPath)
	}

	return &Watcher{
		configPath:     configPath,
		watcher:        fsw,
		debouncePeriod: 500 * time.Millisecond,
	}, nil
}

// OnReload registers a callback invoked after each successful reload.
func (w *Watcher) OnReload(callback ReloadCallback) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.callbacks = append(w.callbacks, callback)
}

// Start begins watching in the background.
func (w *Watcher) Start() {
	go w.watchLoop()
}

// Stop closes the underlying watcher; pending debounced reloads may still
// fire once.
func (w *Watcher) Stop() {
	w.watcher.Close()
}

func (w *Watcher) watchLoop() {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			logger.Logger.Infow("Config file changed",
				"file", event.Name,
				"op", event.Op.String(),
			)
			w.scheduleReload()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logger.Logger.Warnw("Config watcher error", "error", err)
		}
	}
}

// scheduleReload coalesces bursts of events into one reload.
func (w *Watcher) scheduleReload() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.debounceTimer != nil {
		w.debounceTimer.Stop()
	}
	w.debounceTimer = time.AfterFunc(w.debouncePeriod, func() {
		if err := w.reload(); err != nil {
			logger.Logger.Errorw("Config reload failed", "error", err)
		}
	})
}

func (w *Watcher) reload() error {
	cfg, err := LoadFromFile(w.configPath)
	if err != nil {
		return err
	}

	logger.Logger.Infow("Config reloaded", "path", w.configPath)

	w.mu.RLock()
	callbacks := make([]ReloadCallback, len(w.callbacks))
	copy(callbacks, w.callbacks)
	w.mu.RUnlock()

	for _, callback := range callbacks {
		if err := callback(cfg); err != nil {
			logger.Logger.Warnw("Config reload callback error", "error", err)
		}
	}
	return nil
}
