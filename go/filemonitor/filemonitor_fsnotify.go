//go:build !darwin
// +build !darwin

package filemonitor

import (
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	slog "github.com/memestack/devlaunch/go/shinylog"
)

type fsnotifyMonitor struct {
	fileMonitor
	watcher *fsnotify.Watcher

	dirs      map[string]bool
	dirsMutex sync.Mutex
}

const flagsWorthReloadingFor = fsnotify.Write | fsnotify.Create | fsnotify.Remove | fsnotify.Rename

func NewFileMonitor(fileChangeDelay time.Duration) (FileMonitor, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	f := fsnotifyMonitor{
		watcher: watcher,
		dirs:    make(map[string]bool),
	}
	f.fileChangeDelay = fileChangeDelay
	f.changes = make(chan string)
	f.watched = make(map[string]bool)

	go f.serveListeners()
	go f.watch()

	return &f, nil
}

func (f *fsnotifyMonitor) Add(file string) error {
	dir, err := f.track(file)
	if err != nil {
		return err
	}

	f.dirsMutex.Lock()
	defer f.dirsMutex.Unlock()
	if f.dirs[dir] {
		return nil
	}
	if err := f.watcher.Add(dir); err != nil {
		return err
	}
	f.dirs[dir] = true

	return nil
}

func (f *fsnotifyMonitor) Close() error {
	return f.watcher.Close()
}

func (f *fsnotifyMonitor) watch() {
	defer close(f.changes)

	for {
		select {
		case event, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if (event.Op&flagsWorthReloadingFor) == 0 || !f.isWatched(event.Name) {
				continue
			}
			f.changes <- event.Name
		case err, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
			slog.Trace("file watcher error: %v", err)
		}
	}
}
