package settings

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"git.home.luguber.info/inful/alarmd/internal/foundation/errors"
	"git.home.luguber.info/inful/alarmd/internal/logfields"
)

// DefaultDebounce collapses editor save bursts into one reload.
const DefaultDebounce = 500 * time.Millisecond

// Watcher reloads a FileStore when its file changes on disk.
type Watcher struct {
	store    *FileStore
	watcher  *fsnotify.Watcher
	debounce time.Duration
	reloadCh chan struct{}
	onReload func(Settings)

	stopOnce sync.Once
	stopCh   chan struct{}
	wg       sync.WaitGroup
}

// NewWatcher prepares a watcher; onReload (optional) runs after each successful reload.
func NewWatcher(store *FileStore, debounce time.Duration, onReload func(Settings)) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.WrapError(err, errors.CategoryRuntime, "create settings watcher").Build()
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Watcher{
		store:    store,
		watcher:  fw,
		debounce: debounce,
		reloadCh: make(chan struct{}, 1),
		onReload: onReload,
		stopCh:   make(chan struct{}),
	}, nil
}

// Start watches the directory holding the settings file, which survives atomic replaces.
func (w *Watcher) Start(ctx context.Context) error {
	abs, err := filepath.Abs(w.store.Path())
	if err != nil {
		return errors.WrapError(err, errors.CategoryConfig, "resolve settings path").Build()
	}
	if err := w.watcher.Add(filepath.Dir(abs)); err != nil {
		return errors.WrapError(err, errors.CategoryRuntime, "watch settings directory").
			WithContext("dir", filepath.Dir(abs)).Build()
	}
	slog.Info("Watching settings file", logfields.Path(abs))

	w.wg.Add(2)
	go w.watchLoop(ctx, filepath.Base(abs))
	go w.reloadLoop(ctx)
	return nil
}

// Stop ends both loops and waits for them.
func (w *Watcher) Stop() error {
	var err error
	w.stopOnce.Do(func() {
		close(w.stopCh)
		err = w.watcher.Close()
		w.wg.Wait()
	})
	return err
}

func (w *Watcher) watchLoop(ctx context.Context, name string) {
	defer w.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case ev, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(ev.Name) != name {
				continue
			}
			if ev.Op.Has(fsnotify.Write) || ev.Op.Has(fsnotify.Create) || ev.Op.Has(fsnotify.Rename) {
				select {
				case w.reloadCh <- struct{}{}:
				default:
				}
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			slog.Error("Settings watcher error", logfields.Error(err))
		}
	}
}

func (w *Watcher) reloadLoop(ctx context.Context) {
	defer w.wg.Done()
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case <-w.reloadCh:
			timer.Reset(w.debounce)
		case <-timer.C:
			if err := w.store.Reload(); err != nil {
				slog.Error("Failed to reload settings", logfields.Error(err))
				continue
			}
			if w.onReload != nil {
				w.onReload(w.store.Current())
			}
		}
	}
}
