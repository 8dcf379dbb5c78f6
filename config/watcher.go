package config

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/bep/debounce"
	"github.com/fsnotify/fsnotify"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	goutils "go.viam.com/utils"

	"github.com/auvlab/losguidance/logging"
)

// WatchDebounce is how long the file must stay quiet after a change before it is re-read.
// Editors often write a file several times per save.
const WatchDebounce = 100 * time.Millisecond

// A Watcher is responsible for delivering a new config whenever the file it was read from
// changes and still validates.
type Watcher interface {
	Config() <-chan *Config
	Close() error
}

// NewWatcher returns an fsnotify based watcher on the given config file. The containing
// directory is watched so editors that replace the file on save are still observed.
func NewWatcher(ctx context.Context, path string, logger logging.Logger) (Watcher, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		return nil, multierr.Combine(errors.Wrapf(err, "cannot watch %q", path), fsWatcher.Close())
	}

	cancelCtx, cancel := context.WithCancel(ctx)
	w := &fsConfigWatcher{
		path:      absPath,
		fsWatcher: fsWatcher,
		configCh:  make(chan *Config),
		cancel:    cancel,
		logger:    logger.Sublogger("watcher"),
	}
	w.activeBackgroundWorkers.Add(1)
	goutils.ManagedGo(func() {
		w.watch(cancelCtx)
	}, w.activeBackgroundWorkers.Done)
	return w, nil
}

type fsConfigWatcher struct {
	path                    string
	fsWatcher               *fsnotify.Watcher
	configCh                chan *Config
	cancel                  func()
	logger                  logging.Logger
	activeBackgroundWorkers sync.WaitGroup
}

func (w *fsConfigWatcher) watch(ctx context.Context) {
	reload := make(chan struct{}, 1)
	debounced := debounce.New(WatchDebounce)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			w.logger.Errorw("error watching config", "error", err)
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			debounced(func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			newConfig, err := Read(w.path)
			if err != nil {
				w.logger.Errorw("ignoring invalid config", "path", w.path, "error", err)
				continue
			}
			select {
			case <-ctx.Done():
				return
			case w.configCh <- newConfig:
			}
		}
	}
}

// Config returns a channel that receives each new valid config.
func (w *fsConfigWatcher) Config() <-chan *Config {
	return w.configCh
}

func (w *fsConfigWatcher) Close() error {
	w.cancel()
	err := w.fsWatcher.Close()
	w.activeBackgroundWorkers.Wait()
	return err
}
