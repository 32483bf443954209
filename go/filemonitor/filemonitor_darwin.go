//go:build darwin
// +build darwin

package filemonitor

import (
	"time"

	"github.com/fsnotify/fsevents"
)

const flagsWorthReloadingFor = fsevents.ItemCreated | fsevents.ItemRemoved | fsevents.ItemModified | fsevents.ItemRenamed

type fsEventsMonitor struct {
	fileMonitor
	stream *fsevents.EventStream
	add    chan string
	stop   chan struct{}
}

func NewFileMonitor(fileChangeDelay time.Duration) (FileMonitor, error) {
	f := fsEventsMonitor{
		stream: &fsevents.EventStream{
			Paths:   []string{},
			Latency: fileChangeDelay,
			Flags:   fsevents.FileEvents,
			EventID: fsevents.EventIDSinceNow,
		},
		// Restarting FSEvents can take ~100ms so buffer adds
		// in the channel so they can be grouped together.
		add:  make(chan string, 64),
		stop: make(chan struct{}),
	}
	f.fileChangeDelay = fileChangeDelay
	f.changes = make(chan string)
	f.watched = make(map[string]bool)

	go f.serveListeners()
	go f.handleAdd()

	return &f, nil
}

func (f *fsEventsMonitor) Add(file string) error {
	dir, err := f.track(file)
	if err != nil {
		return err
	}
	f.add <- dir
	return nil
}

func (f *fsEventsMonitor) Close() error {
	select {
	case <-f.stop:
		return nil // Already stopped
	default:
		close(f.stop)
		close(f.add)
	}

	return nil
}

func (f *fsEventsMonitor) watch() {
	defer close(f.changes)

	for {
		select {
		case events := <-f.stream.Events:
			for _, event := range events {
				if (event.Flags&flagsWorthReloadingFor) == 0 || !f.isWatched("/"+trimSlash(event.Path)) {
					continue
				}
				select {
				case f.changes <- "/" + trimSlash(event.Path):
				case <-f.stop:
					return
				}
			}
		case <-f.stop:
			return
		}
	}
}

// FSEvents reports paths without the leading slash on some releases.
func trimSlash(path string) string {
	for len(path) > 0 && path[0] == '/' {
		path = path[1:]
	}
	return path
}

func (f *fsEventsMonitor) handleAdd() {
	watched := make(map[string]bool)
	started := false

	for dir := range f.add {
		if watched[dir] {
			continue
		}

		allDirs := []string{dir}

		// Read all messages waiting in the channel so we can batch restarts
		done := false
		for !done {
			select {
			case dir, ok := <-f.add:
				if !ok {
					done = true
					break
				}
				if !watched[dir] {
					allDirs = append(allDirs, dir)
				}
			default:
				done = true
			}
		}

		for _, dir := range allDirs {
			watched[dir] = true
			f.stream.Paths = append(f.stream.Paths, dir)
		}

		if started {
			f.stream.Restart()
		} else {
			f.stream.Start()
			go f.watch()
			started = true
		}
	}

	if started {
		f.stream.Stop()
	} else {
		close(f.changes)
	}
}
