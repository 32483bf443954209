package supervisor

import (
	"syscall"
	"time"

	slog "github.com/memestack/devlaunch/go/shinylog"
)

const groupPollInterval = 10 * time.Millisecond

// KillAll sends SIGTERM to the process group of every role that still has
// live members, newest role first, escalating to SIGKILL after the kill
// grace period. Empty roles are skipped. A group that vanished before or
// while it was signaled is not an error. Calling KillAll again is a no-op.
func (s *Supervisor) KillAll() {
	for i := len(Roles) - 1; i >= 0; i-- {
		s.kill(Roles[i])
	}
}

func (s *Supervisor) kill(role Role) {
	s.mu.Lock()
	sl, ok := s.slots[role]
	if !ok || sl.handle == nil || sl.info.State == Reaped {
		s.mu.Unlock()
		return
	}
	h := sl.handle
	pgid := sl.info.Pgid
	s.mu.Unlock()

	if !h.GroupAlive() {
		slog.Trace("%v: process group %d not found, nothing to kill", role, pgid)
		s.setState(sl, Reaped)
		return
	}

	if err := h.SignalGroup(syscall.SIGTERM); err != nil {
		if err == ErrProcessGone {
			slog.Trace("%v: process group %d exited before SIGTERM", role, pgid)
		} else {
			slog.ErrorString("Couldn't stop " + role.String() + ": " + err.Error())
		}
		s.setState(sl, Reaped)
		return
	}
	slog.Trace("%v: sent SIGTERM to process group %d", role, pgid)

	if s.killGrace > 0 && !waitGroupGone(h, s.killGrace) {
		if err := h.SignalGroup(syscall.SIGKILL); err != nil && err != ErrProcessGone {
			slog.ErrorString("Couldn't kill " + role.String() + ": " + err.Error())
		} else if err == nil {
			slog.Trace("%v: process group %d ignored SIGTERM, sent SIGKILL", role, pgid)
		}
	}

	s.setState(sl, Reaped)
}

// waitGroupGone polls until no member of h's group exists or timeout
// elapses. The group's members are not all our children, so there is
// nothing to wait on.
func waitGroupGone(h Handle, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for {
		if !h.GroupAlive() {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(groupPollInterval)
	}
}
