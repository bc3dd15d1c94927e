package config

import (
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// ReloadFunc receives the freshly loaded config after the file changed.
// Only runtime-tunable sections (log level, orchestrator policy) are re-applied by callers.
type ReloadFunc func(cfg *Config)

// Watcher reloads the config file when it changes on disk.
// The parent directory is watched so atomic-rename saves are seen too.
// Bursts of events are debounced.
type Watcher struct {
	path     string
	fsw      *fsnotify.Watcher
	debounce time.Duration

	mu       sync.Mutex
	handlers []ReloadFunc
	done     chan struct{}
	timer    *time.Timer
}

// NewWatcher creates a watcher for configPath. Call Start to begin watching.
func NewWatcher(configPath string) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		path:     filepath.Clean(configPath),
		fsw:      fsw,
		debounce: 300 * time.Millisecond,
		done:     make(chan struct{}),
	}, nil
}

// OnReload registers fn to run after each successful reload.
func (w *Watcher) OnReload(fn ReloadFunc) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers = append(w.handlers, fn)
}

// Start begins watching.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	go w.loop()
	slog.Info("config: watching for changes", "path", w.path)
	return nil
}

// Stop halts the watcher. It is safe to call once.
func (w *Watcher) Stop() {
	close(w.done)
	w.fsw.Close()
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
}

func (w *Watcher) loop() {
	for {
		select {
		case <-w.done:
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != w.path {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			w.schedule()
		case err, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			slog.Warn("config: watcher error", "error", err)
		}
	}
}

func (w *Watcher) schedule() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.debounce, w.reload)
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		slog.Error("config: reload failed", "path", w.path, "error", err)
		return
	}

	w.mu.Lock()
	handlers := append([]ReloadFunc(nil), w.handlers...)
	w.mu.Unlock()

	for _, h := range handlers {
		h(cfg)
	}
	slog.Info("config: reloaded", "path", w.path)
}
