// Package filemonitor reports changes to a set of files, batching changes
// that arrive close together.
package filemonitor

import (
	"path/filepath"
	"sync"
	"time"
)

const DefaultFileChangeDelay = 300 * time.Millisecond

type FileMonitor interface {
	// Add starts watching file. Its directory is watched rather than the
	// file itself, so editors that save by renaming over the file are
	// still noticed.
	Add(file string) error
	// Listen returns a channel of batches of changed files. A batch is
	// dropped for a listener that has not consumed the previous one. The
	// channel is closed when the monitor is closed.
	Listen() <-chan []string
	Close() error
}

type fileMonitor struct {
	listeners       []chan []string
	listenerMutex   sync.Mutex
	fileChangeDelay time.Duration
	changes         chan string

	watched      map[string]bool
	watchedMutex sync.Mutex
}

func (f *fileMonitor) Listen() <-chan []string {
	f.listenerMutex.Lock()
	defer f.listenerMutex.Unlock()

	c := make(chan []string, 1)
	f.listeners = append(f.listeners, c)
	return c
}

// track records file as watched and returns the directory to watch.
func (f *fileMonitor) track(file string) (string, error) {
	abs, err := filepath.Abs(file)
	if err != nil {
		return "", err
	}

	f.watchedMutex.Lock()
	defer f.watchedMutex.Unlock()
	f.watched[abs] = true

	return filepath.Dir(abs), nil
}

func (f *fileMonitor) isWatched(path string) bool {
	abs, err := filepath.Abs(path)
	if err != nil {
		return false
	}

	f.watchedMutex.Lock()
	defer f.watchedMutex.Unlock()
	return f.watched[abs]
}

// serveListeners gathers changes that happen within fileChangeDelay of the
// first one and hands them to every listener as one batch.
func (f *fileMonitor) serveListeners() {
	defer f.closeListeners()

	for {
		file, ok := <-f.changes
		if !ok {
			return
		}

		changed := map[string]bool{file: true}
		deadline := time.After(f.fileChangeDelay)
		deadlineExpired := false
		for !deadlineExpired {
			select {
			case file, ok := <-f.changes:
				if !ok {
					f.send(changed)
					return
				}
				changed[file] = true
			case <-deadline:
				deadlineExpired = true
			}
		}

		f.send(changed)
	}
}

func (f *fileMonitor) send(changed map[string]bool) {
	f.listenerMutex.Lock()
	defer f.listenerMutex.Unlock()

	for _, l := range f.listeners {
		batch := make([]string, 0, len(changed))
		for file := range changed {
			batch = append(batch, file)
		}
		select {
		case l <- batch:
		default:
		}
	}
}

func (f *fileMonitor) closeListeners() {
	f.listenerMutex.Lock()
	defer f.listenerMutex.Unlock()

	for _, l := range f.listeners {
		close(l)
	}
	f.listeners = nil
}
