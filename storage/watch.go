package storage

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// watchDebounce coalesces bursts of filesystem events (an atomic write is a
// create followed by a rename) into a single callback.
const watchDebounce = 100 * time.Millisecond

// Watch observes external changes to key's file and invokes fn after each
// change settles. This is how a second process's login or logout becomes
// visible in this one. fn runs on a background goroutine; the returned stop
// function releases the watcher.
func (s *FileStore) Watch(key string, fn func()) (func(), error) {
	if err := validKey(key); err != nil {
		return nil, err
	}
	// The directory must exist before it can be watched.
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, err
	}
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(s.dir); err != nil {
		watcher.Close()
		return nil, err
	}

	changed := make(chan struct{}, 1)
	go func() {
		// Closing changed here (and only here) lets the debounce goroutine
		// drain and exit after the watcher shuts down.
		defer close(changed)
		for {
			select {
			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Base(event.Name) != key {
					continue
				}
				if event.Has(fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename) {
					select {
					case changed <- struct{}{}:
					default:
					}
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	go func() {
		var timer *time.Timer
		var fire <-chan time.Time
		for {
			select {
			case _, ok := <-changed:
				if !ok {
					if timer != nil {
						timer.Stop()
					}
					return
				}
				if timer == nil {
					timer = time.NewTimer(watchDebounce)
					fire = timer.C
				} else {
					timer.Reset(watchDebounce)
				}
			case <-fire:
				fn()
			}
		}
	}()

	return func() {
		watcher.Close()
	}, nil
}

var _ Watcher = (*FileStore)(nil)
