package supervisor

import (
	"errors"
	"fmt"
	"sync"
	"syscall"
	"time"

	slog "github.com/memestack/devlaunch/go/shinylog"
	"github.com/memestack/devlaunch/go/supervisor/process"
)

const defaultKillGrace = time.Second

var (
	// ErrProcessGone is what a Handle returns from SignalGroup when the
	// group has already disappeared.
	ErrProcessGone = process.ErrProcessGone

	ErrRoleOccupied   = errors.New("role already has a live process")
	ErrDuplicateGroup = errors.New("process group already managed by another role")
)

// Handle is a started OS process leading its own process group.
// *process.Process implements it; tests substitute fakes.
type Handle interface {
	Pid() int
	Pgid() int
	// Exited is closed once the process has exited.
	Exited() <-chan struct{}
	// ExitErr is the wait error once Exited is closed.
	ExitErr() error
	// SignalGroup signals the whole group, returning ErrProcessGone if
	// nothing in it exists any more.
	SignalGroup(sig syscall.Signal) error
	// Signal signals only the process itself.
	Signal(sig syscall.Signal) error
	// GroupAlive reports whether any member of the group still exists.
	GroupAlive() bool
}

// Spawner starts the process for a role.
type Spawner interface {
	Spawn(role Role, commandLine, dir string) (Handle, error)
}

// ManagedProcess is a snapshot of one role's process.
type ManagedProcess struct {
	Role        Role
	State       State
	CommandLine string
	Pid         int
	Pgid        int
	StartedAt   time.Time
	ExitErr     error
}

type slot struct {
	info   ManagedProcess
	handle Handle
}

// Supervisor owns the processes launched for each role. Launching happens
// before monitoring and teardown after it, but the table is locked so that
// status displays can read it at any time.
type Supervisor struct {
	spawner   Spawner
	killGrace time.Duration
	changes   chan<- struct{}

	mu    sync.Mutex
	slots map[Role]*slot
}

type Option func(*Supervisor)

// WithKillGrace sets how long teardown waits after SIGTERM before sending
// SIGKILL to a group. Zero sends SIGTERM only.
func WithKillGrace(d time.Duration) Option {
	return func(s *Supervisor) {
		s.killGrace = d
	}
}

// WithStateChanges makes the supervisor poke ch, without blocking, after
// every state change.
func WithStateChanges(ch chan<- struct{}) Option {
	return func(s *Supervisor) {
		s.changes = ch
	}
}

func New(spawner Spawner, opts ...Option) *Supervisor {
	s := &Supervisor{
		spawner:   spawner,
		killGrace: defaultKillGrace,
		slots:     make(map[Role]*slot),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Launch starts commandLine in dir for role and records it. A role holds at
// most one process until that process is reaped.
func (s *Supervisor) Launch(role Role, commandLine, dir string) (ManagedProcess, error) {
	s.mu.Lock()
	if existing, ok := s.slots[role]; ok && existing.info.State != Reaped {
		s.mu.Unlock()
		return ManagedProcess{}, fmt.Errorf("%v: %w", role, ErrRoleOccupied)
	}
	sl := &slot{info: ManagedProcess{Role: role, State: Spawning, CommandLine: commandLine}}
	s.slots[role] = sl
	s.mu.Unlock()
	s.notify()

	h, err := s.spawner.Spawn(role, commandLine, dir)
	if err != nil {
		s.release(role, sl)
		return ManagedProcess{}, fmt.Errorf("launching %v: %w", role, err)
	}

	s.mu.Lock()
	for other, osl := range s.slots {
		if other != role && osl.handle != nil && osl.info.State != Reaped && osl.info.Pgid == h.Pgid() {
			s.mu.Unlock()
			s.release(role, sl)
			s.stopStray(role, h)
			return ManagedProcess{}, fmt.Errorf("%v: group %d held by %v: %w", role, h.Pgid(), other, ErrDuplicateGroup)
		}
	}
	sl.handle = h
	sl.info.Pid = h.Pid()
	sl.info.Pgid = h.Pgid()
	sl.info.StartedAt = time.Now()
	sl.info.State = Running
	info := sl.info
	s.mu.Unlock()
	s.notify()

	slog.Trace("launched %v: pid %d, pgid %d: %s", role, info.Pid, info.Pgid, commandLine)
	return info, nil
}

// stopStray stops a process that was spawned but could not be recorded.
// Its group belongs to another role, so only the process itself is
// signaled.
func (s *Supervisor) stopStray(role Role, h Handle) {
	if err := h.Signal(syscall.SIGTERM); err != nil {
		slog.Trace("%v: stray pid %d: %v", role, h.Pid(), err)
		return
	}
	if s.killGrace <= 0 {
		return
	}
	select {
	case <-h.Exited():
	case <-time.After(s.killGrace):
		h.Signal(syscall.SIGKILL)
	}
}

func (s *Supervisor) release(role Role, sl *slot) {
	s.mu.Lock()
	if s.slots[role] == sl {
		delete(s.slots, role)
	}
	s.mu.Unlock()
	s.notify()
}

// Process returns the snapshot for role, if the role is occupied.
func (s *Supervisor) Process(role Role) (ManagedProcess, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sl, ok := s.slots[role]
	if !ok {
		return ManagedProcess{}, false
	}
	return sl.info, true
}

// Snapshot returns every occupied role in launch order.
func (s *Supervisor) Snapshot() []ManagedProcess {
	s.mu.Lock()
	defer s.mu.Unlock()
	procs := make([]ManagedProcess, 0, len(s.slots))
	for _, role := range Roles {
		if sl, ok := s.slots[role]; ok {
			procs = append(procs, sl.info)
		}
	}
	return procs
}

// Alive reports whether role's process is running as far as the
// supervisor knows.
func (s *Supervisor) Alive(role Role) bool {
	s.mu.Lock()
	sl, ok := s.slots[role]
	if !ok || sl.handle == nil || sl.info.State != Running {
		s.mu.Unlock()
		return false
	}
	h := sl.handle
	s.mu.Unlock()
	return !isClosed(h.Exited())
}

func (s *Supervisor) setState(sl *slot, state State) {
	s.mu.Lock()
	changed := sl.info.State != state
	sl.info.State = state
	if state >= Exited && sl.handle != nil && isClosed(sl.handle.Exited()) {
		sl.info.ExitErr = sl.handle.ExitErr()
	}
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

func (s *Supervisor) notify() {
	if s.changes == nil {
		return
	}
	select {
	case s.changes <- struct{}{}:
	default:
	}
}

func isClosed(ch <-chan struct{}) bool {
	select {
	case <-ch:
		return true
	default:
		return false
	}
}
