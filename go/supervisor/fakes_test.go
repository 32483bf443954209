package supervisor_test

import (
	"errors"
	"sync"
	"syscall"

	"github.com/memestack/devlaunch/go/supervisor"
)

type fakeHandle struct {
	pid int

	mu         sync.Mutex
	exited     chan struct{}
	exitErr    error
	groupAlive bool
	ignoreTerm bool
	// vanish makes the group disappear between GroupAlive and the signal.
	vanish  bool
	signals []syscall.Signal
	// leaderSignals are the signals sent to the process alone.
	leaderSignals []syscall.Signal
}

func newFakeHandle(pid int) *fakeHandle {
	return &fakeHandle{pid: pid, exited: make(chan struct{}), groupAlive: true}
}

func (h *fakeHandle) Pid() int                { return h.pid }
func (h *fakeHandle) Pgid() int               { return h.pid }
func (h *fakeHandle) Exited() <-chan struct{} { return h.exited }

func (h *fakeHandle) ExitErr() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.exitErr
}

func (h *fakeHandle) GroupAlive() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.groupAlive
}

func (h *fakeHandle) SignalGroup(sig syscall.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.vanish {
		h.exitLocked(errors.New("signal: terminated"))
	}
	if !h.groupAlive {
		return supervisor.ErrProcessGone
	}
	h.signals = append(h.signals, sig)
	if sig == syscall.SIGKILL || (sig == syscall.SIGTERM && !h.ignoreTerm) {
		h.exitLocked(errors.New("signal: " + sig.String()))
	}
	return nil
}

func (h *fakeHandle) Signal(sig syscall.Signal) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	select {
	case <-h.exited:
		return supervisor.ErrProcessGone
	default:
	}
	h.leaderSignals = append(h.leaderSignals, sig)
	if sig == syscall.SIGKILL || (sig == syscall.SIGTERM && !h.ignoreTerm) {
		h.exitLocked(errors.New("signal: " + sig.String()))
	}
	return nil
}

func (h *fakeHandle) LeaderSignals() []syscall.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]syscall.Signal(nil), h.leaderSignals...)
}

// exit simulates the process exiting on its own.
func (h *fakeHandle) exit(err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.exitLocked(err)
}

func (h *fakeHandle) exitLocked(err error) {
	select {
	case <-h.exited:
		return
	default:
	}
	h.exitErr = err
	h.groupAlive = false
	close(h.exited)
}

func (h *fakeHandle) Signals() []syscall.Signal {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]syscall.Signal(nil), h.signals...)
}

type fakeSpawner struct {
	mu       sync.Mutex
	nextPid  int
	fail     map[supervisor.Role]error
	samePid  bool
	handles  map[supervisor.Role]*fakeHandle
	commands map[supervisor.Role]string
}

func newFakeSpawner() *fakeSpawner {
	return &fakeSpawner{
		nextPid:  1000,
		fail:     make(map[supervisor.Role]error),
		handles:  make(map[supervisor.Role]*fakeHandle),
		commands: make(map[supervisor.Role]string),
	}
}

func (f *fakeSpawner) Spawn(role supervisor.Role, commandLine, dir string) (supervisor.Handle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if err := f.fail[role]; err != nil {
		return nil, err
	}
	if !f.samePid {
		f.nextPid++
	}
	h := newFakeHandle(f.nextPid)
	f.handles[role] = h
	f.commands[role] = commandLine
	return h, nil
}

func (f *fakeSpawner) handle(role supervisor.Role) *fakeHandle {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.handles[role]
}

func launchAll(sup *supervisor.Supervisor) error {
	for _, role := range supervisor.Roles {
		if _, err := sup.Launch(role, "run "+role.String(), ""); err != nil {
			return err
		}
	}
	return nil
}
