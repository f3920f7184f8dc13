package config

import (
	"path/filepath"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/fsnotify/fsnotify"

	"github.com/aatumaykin/nexarchive/internal/logger"
)

// ReloadFunc receives a freshly loaded and validated configuration.
type ReloadFunc func(*Config)

// Watcher reloads the config file when it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onReload ReloadFunc
	logger   *logger.Logger
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
	done  chan struct{}
}

// Watch starts watching path. The directory is watched rather than the file
// so that editors replacing the file by rename are noticed.
func Watch(path string, onReload ReloadFunc, log *logger.Logger) (*Watcher, error) {
	if log == nil {
		log = logger.Nop()
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(err, "resolve config path")
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.Wrap(err, "failed to create fsnotify watcher")
	}
	if err := fw.Add(filepath.Dir(abs)); err != nil {
		fw.Close()
		return nil, errors.Wrapf(err, "failed to watch config directory of %s", abs)
	}

	w := &Watcher{
		path:     abs,
		watcher:  fw,
		onReload: onReload,
		logger:   log.Component("config_watcher"),
		debounce: 300 * time.Millisecond,
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
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
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			w.logger.Debug("config file changed", logger.Field{Key: "op", Value: event.Op.String()})
			w.schedule()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.logger.Warn("config watcher error", logger.Field{Key: "error", Value: err.Error()})
		}
	}
}

// schedule debounces bursts of events into one reload.
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
		w.logger.Error("config reload failed", err)
		return
	}
	if errs := cfg.Validate(); len(errs) > 0 {
		w.logger.Error("reloaded config is invalid, keeping the current one", errors.Join(errs...),
			logger.Field{Key: "problems", Value: len(errs)})
		return
	}
	w.logger.Info("config reloaded", logger.Field{Key: "path", Value: w.path})
	w.onReload(cfg)
}

// Close stops watching.
func (w *Watcher) Close() error {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.mu.Unlock()
	err := w.watcher.Close()
	<-w.done
	return err
}
