// Package watcher observes the token file for out-of-band session changes.
// A login or logout performed by another process is picked up through
// fsnotify and reported after a short debounce, so long-running monitor
// sessions notice when their stored credentials move underneath them.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

// changeDebounce coalesces the burst of fsnotify events an atomic file
// replace produces into one callback.
const changeDebounce = 200 * time.Millisecond

// TokenFileWatcher watches one token file and invokes a callback when it
// is written, created, renamed, or removed.
type TokenFileWatcher struct {
	path     string
	onChange func()
	watcher  *fsnotify.Watcher

	timerMu sync.Mutex
	timer   *time.Timer

	stopOnce sync.Once
	done     chan struct{}
}

// NewTokenFileWatcher prepares a watcher for the token file at path. The
// parent directory is watched rather than the file itself so atomic
// replaces and re-creations keep being observed.
func NewTokenFileWatcher(path string, onChange func()) (*TokenFileWatcher, error) {
	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &TokenFileWatcher{
		path:     filepath.Clean(path),
		onChange: onChange,
		watcher:  fsWatcher,
		done:     make(chan struct{}),
	}, nil
}

// Start begins watching until ctx is cancelled or Stop is called.
func (w *TokenFileWatcher) Start(ctx context.Context) error {
	if err := w.watcher.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	log.Debugf("watcher: watching %s", w.path)

	go w.loop(ctx)
	return nil
}

// Stop ends the watch and cancels any pending debounce callback. Safe to
// call more than once.
func (w *TokenFileWatcher) Stop() {
	w.stopOnce.Do(func() {
		close(w.done)
		_ = w.watcher.Close()
		w.stopTimer()
	})
}

func (w *TokenFileWatcher) loop(ctx context.Context) {
	for {
		select {
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.matches(event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			log.Debugf("watcher: %s on %s", event.Op, event.Name)
			w.scheduleChange()
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			log.Warnf("watcher: %v", err)
		case <-ctx.Done():
			w.Stop()
			return
		case <-w.done:
			return
		}
	}
}

// matches compares event paths against the watched file, tolerating the
// unclean paths some platforms report.
func (w *TokenFileWatcher) matches(name string) bool {
	return filepath.Clean(name) == w.path
}

func (w *TokenFileWatcher) scheduleChange() {
	w.timerMu.Lock()
	defer w.timerMu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(changeDebounce, func() {
		w.timerMu.Lock()
		w.timer = nil
		w.timerMu.Unlock()

		select {
		case <-w.done:
			return
		default:
		}
		w.onChange()
	})
}

func (w *TokenFileWatcher) stopTimer() {
	w.timerMu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.timerMu.Unlock()
}
