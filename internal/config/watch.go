package config

import (
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
)

// Watcher reloads the settings file whenever it changes on disk.
type Watcher struct {
	path     string
	watcher  *fsnotify.Watcher
	onChange func(*Settings)
	closed   chan struct{}
	done     chan struct{}
}

// Watch calls onChange with freshly loaded settings after every write to
// path. Invalid files are logged and skipped.
func Watch(path string, onChange func(*Settings)) (*Watcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve settings path: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create fsnotify watcher: %w", err)
	}
	// Watch the directory so that editors replacing the file are noticed.
	if err := watcher.Add(filepath.Dir(abs)); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch settings dir: %w", err)
	}

	w := &Watcher{
		path:     abs,
		watcher:  watcher,
		onChange: onChange,
		closed:   make(chan struct{}),
		done:     make(chan struct{}),
	}
	go w.loop()
	return w, nil
}

func (w *Watcher) loop() {
	defer close(w.done)

	for {
		select {
		case <-w.closed:
			return
		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(event.Name) != w.path {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write) != 0 {
				w.reload()
			}
		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			logrus.WithFields(logrus.Fields{
				"function": "Watcher.loop",
				"error":    err.Error(),
			}).Warn("Settings watcher error")
		}
	}
}

func (w *Watcher) reload() {
	s, err := Load(w.path)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Watcher.reload",
			"path":     w.path,
			"error":    err.Error(),
		}).Warn("Settings reload failed")
		return
	}

	logrus.WithFields(logrus.Fields{
		"function": "Watcher.reload",
		"path":     w.path,
	}).Info("Settings reloaded")
	w.onChange(s)
}

// Close stops watching.
func (w *Watcher) Close() error {
	close(w.closed)
	err := w.watcher.Close()
	<-w.done
	return err
}
