// Package confwatcher signals changes of the configuration file.
package confwatcher

import (
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

const debounce = 100 * time.Millisecond

// ConfWatcher watches the directory of the configuration file, so that
// files replaced by rename or created after startup are seen too.
type ConfWatcher struct {
	FilePath string

	inner *fsnotify.Watcher
	path  string

	// out
	signal chan struct{}
	done   chan struct{}
}

// Initialize initializes a ConfWatcher.
func (w *ConfWatcher) Initialize() error {
	abs, err := filepath.Abs(w.FilePath)
	if err != nil {
		return err
	}

	inner, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	if err := inner.Add(filepath.Dir(abs)); err != nil {
		inner.Close()
		return err
	}

	w.inner = inner
	w.path = abs
	w.signal = make(chan struct{})
	w.done = make(chan struct{})

	go w.run()
	return nil
}

// Close closes a ConfWatcher.
func (w *ConfWatcher) Close() {
	go func() {
		for range w.signal {
		}
	}()
	w.inner.Close()
	<-w.done
}

func (w *ConfWatcher) run() {
	defer close(w.done)
	defer close(w.signal)

	// Editors emit several events per save; they are merged into one signal.
	var timer *time.Timer
	var fire <-chan time.Time

	for {
		select {
		case event, ok := <-w.inner.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(debounce)
			} else {
				timer.Reset(debounce)
			}
			fire = timer.C

		case <-fire:
			fire = nil
			w.signal <- struct{}{}

		case _, ok := <-w.inner.Errors:
			if !ok {
				return
			}
		}
	}
}

// Watch returns a channel that receives a value when the configuration
// file has changed.
func (w *ConfWatcher) Watch() chan struct{} {
	return w.signal
}
