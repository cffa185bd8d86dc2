package scanner

import (
	"github.com/fsnotify/fsnotify"
)

// Watcher is the platform change-notification source. Paths added are
// directories of the watch set or the manifest file.
type Watcher interface {
	Add(path string) error
	Remove(path string) error
	Events() <-chan fsnotify.Event
	Errors() <-chan error
	WatchList() []string
	Close() error
}

// FSWatcher adapts fsnotify to Watcher.
type FSWatcher struct {
	w *fsnotify.Watcher
}

// NewFSWatcher starts an fsnotify watcher with nothing watched.
func NewFSWatcher() (*FSWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &FSWatcher{w: w}, nil
}

func (f *FSWatcher) Add(path string) error         { return f.w.Add(path) }
func (f *FSWatcher) Remove(path string) error      { return f.w.Remove(path) }
func (f *FSWatcher) Events() <-chan fsnotify.Event { return f.w.Events }
func (f *FSWatcher) Errors() <-chan error          { return f.w.Errors }
func (f *FSWatcher) WatchList() []string           { return f.w.WatchList() }
func (f *FSWatcher) Close() error                  { return f.w.Close() }
