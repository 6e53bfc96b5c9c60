package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// DefaultDebounce collapses the burst of events an editor save produces.
const DefaultDebounce = 500 * time.Millisecond

// ConfigWatcher monitors the config file and reloads it on change
type ConfigWatcher struct {
	path      string
	debounce  time.Duration
	watcher   *fsnotify.Watcher
	callbacks []func(*Config)
	stopCh    chan struct{}
	mu        sync.RWMutex
	running   bool

	timerMu  sync.Mutex
	timer    *time.Timer
	lastMod  time.Time
	lastSize int64
}

// NewConfigWatcher creates a watcher for the file cfg was loaded from
func NewConfigWatcher(cfg *Config) (*ConfigWatcher, error) {
	if cfg == nil || cfg.ConfigFile == "" {
		return nil, fmt.Errorf("config file path is required")
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create file watcher: %w", err)
	}

	return &ConfigWatcher{
		path:     cfg.ConfigFile,
		debounce: DefaultDebounce,
		watcher:  watcher,
		stopCh:   make(chan struct{}),
	}, nil
}

// SetDebounce changes the debounce delay. Call before Start.
func (cw *ConfigWatcher) SetDebounce(d time.Duration) {
	if d > 0 {
		cw.debounce = d
	}
}

// AddCallback adds a callback invoked with every successfully reloaded config
func (cw *ConfigWatcher) AddCallback(callback func(*Config)) {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	cw.callbacks = append(cw.callbacks, callback)
}

// Start starts watching. The directory is watched so that atomic
// rename-on-save editors are picked up.
func (cw *ConfigWatcher) Start() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if cw.running {
		return fmt.Errorf("watcher is already running")
	}

	cw.snapshot()

	if err := cw.watcher.Add(filepath.Dir(cw.path)); err != nil {
		return fmt.Errorf("failed to watch config directory: %w", err)
	}

	cw.running = true
	go cw.watchLoop()

	return nil
}

// Stop stops the watcher
func (cw *ConfigWatcher) Stop() error {
	cw.mu.Lock()
	defer cw.mu.Unlock()

	if !cw.running {
		return nil
	}

	cw.running = false
	close(cw.stopCh)

	cw.timerMu.Lock()
	if cw.timer != nil {
		cw.timer.Stop()
	}
	cw.timerMu.Unlock()

	return cw.watcher.Close()
}

func (cw *ConfigWatcher) watchLoop() {
	for {
		select {
		case event, ok := <-cw.watcher.Events:
			if !ok {
				return
			}
			if !cw.isConfigEvent(event) {
				continue
			}

			cw.timerMu.Lock()
			if cw.timer != nil {
				cw.timer.Stop()
			}
			cw.timer = time.AfterFunc(cw.debounce, cw.handleConfigChange)
			cw.timerMu.Unlock()

		case err, ok := <-cw.watcher.Errors:
			if !ok {
				return
			}
			logrus.Warnf("Config watcher error: %v", err)

		case <-cw.stopCh:
			return
		}
	}
}

func (cw *ConfigWatcher) isConfigEvent(event fsnotify.Event) bool {
	if filepath.Clean(event.Name) != filepath.Clean(cw.path) {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

// snapshot remembers the file's mtime and size; it reports whether they changed.
func (cw *ConfigWatcher) snapshot() bool {
	stat, err := os.Stat(cw.path)
	if err != nil {
		return false
	}
	changed := !stat.ModTime().Equal(cw.lastMod) || stat.Size() != cw.lastSize
	cw.lastMod = stat.ModTime()
	cw.lastSize = stat.Size()
	return changed
}

func (cw *ConfigWatcher) handleConfigChange() {
	cw.timerMu.Lock()
	changed := cw.snapshot()
	cw.timerMu.Unlock()
	if !changed {
		return
	}
	if _, err := cw.TriggerReload(); err != nil {
		logrus.Errorf("Failed to reload configuration, keeping the previous one: %v", err)
	}
}

// TriggerReload loads the file now and notifies callbacks on success
func (cw *ConfigWatcher) TriggerReload() (*Config, error) {
	cfg, err := Load(cw.path)
	if err != nil {
		return nil, err
	}

	cw.mu.RLock()
	callbacks := make([]func(*Config), len(cw.callbacks))
	copy(callbacks, cw.callbacks)
	cw.mu.RUnlock()

	for _, callback := range callbacks {
		callback(cfg)
	}

	logrus.Infof("Configuration reloaded from %s", cw.path)
	return cfg, nil
}
