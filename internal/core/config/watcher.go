package config

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

const reloadDebounce = 100 * time.Millisecond

// Watcher reloads a configuration file when it changes and hands the result to callback.
// Env overrides are reapplied on every reload. Invalid files are logged and ignored.
type Watcher struct {
	path     string
	callback func(*Config)
	logger   *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewWatcher(path string, callback func(*Config), logger *slog.Logger) *Watcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Watcher{
		path:     path,
		callback: callback,
		logger:   logger,
		stop:     make(chan struct{}),
	}
}

func (w *Watcher) Start(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	// Watch the directory so atomic saves that replace the file are seen.
	if err := watcher.Add(filepath.Dir(w.path)); err != nil {
		watcher.Close()
		return err
	}

	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer watcher.Close()

		w.logger.Info("watching config", "path", w.path)

		var timer *time.Timer
		defer func() {
			if timer != nil {
				timer.Stop()
			}
		}()

		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != filepath.Clean(w.path) {
					continue
				}
				if event.Has(fsnotify.Write) || event.Has(fsnotify.Create) {
					if timer != nil {
						timer.Stop()
					}
					timer = time.AfterFunc(reloadDebounce, w.reload)
				}
			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				w.logger.Warn("config watcher error", "error", err)
			case <-w.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.stop) })
	w.wg.Wait()
}

func (w *Watcher) reload() {
	cfg, err := Load(w.path)
	if err != nil {
		w.logger.Warn("config reload failed; keeping previous configuration", "path", w.path, "error", err)
		return
	}
	ApplyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		w.logger.Warn("config reload rejected by env overrides", "path", w.path, "error", err)
		return
	}
	w.logger.Info("config reloaded", "path", w.path)
	if w.callback != nil {
		w.callback(cfg)
	}
}
